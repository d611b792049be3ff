// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/llmbridge/internal/config"
	"github.com/jeranaias/llmbridge/internal/history"
	"github.com/jeranaias/llmbridge/internal/llmerr"
	"github.com/jeranaias/llmbridge/internal/model"
	"github.com/jeranaias/llmbridge/internal/provider"
)

// =============================================================================
// HISTORY PRIMITIVES
// =============================================================================

// History returns c's conversation as (role, content) pairs.
func (e *Engine) History(c *history.Caller) [][]string {
	return model.ToPairs(e.history.Get(c))
}

// SetHistory replaces c's conversation. Every pair must be (role, content)
// with a known role; otherwise nothing changes.
func (e *Engine) SetHistory(c *history.Caller, pairs [][]string) error {
	if err := requireCaller(c); err != nil {
		return err
	}
	msgs, err := model.FromPairs(pairs)
	if err != nil {
		return llmerr.Configuration(err.Error(), "pass [role, content] pairs with role system, user or assistant")
	}
	e.history.Set(c, msgs)
	return nil
}

// ClearHistory empties c's conversation.
func (e *Engine) ClearHistory(c *history.Caller) {
	e.history.Clear(c)
}

// Forget drops c's conversation entirely.
func (e *Engine) Forget(c *history.Caller) {
	e.history.Forget(c)
}

// Reset drops every caller's conversation.
func (e *Engine) Reset() {
	e.history.Reset()
}

// Callers returns how many callers currently have a conversation.
func (e *Engine) Callers() int {
	return e.history.Len()
}

// =============================================================================
// DISCOVERY
// =============================================================================

// ProvidersAll returns every supported provider name.
func (e *Engine) ProvidersAll() []string {
	names := provider.Names()
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = n.String()
	}
	return out
}

// ProviderStatus checks every provider's readiness concurrently against
// the current configuration.
func (e *Engine) ProviderStatus(ctx context.Context) []provider.Status {
	names := provider.Names()
	snap := e.store.Snapshot()
	out := make([]provider.Status, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, n := range names {
		g.Go(func() error {
			st := provider.Status{Name: n}
			p, err := e.providerFor(n, snap)
			if err != nil {
				st.Reason = err.Error()
				out[i] = st
				return nil
			}
			st.Model = provider.ActiveModel(p)
			if err := provider.CheckReadiness(gctx, p); err != nil {
				st.Reason = err.Error()
			} else {
				st.Ready = true
			}
			out[i] = st
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Providers returns the names of providers that are ready to use.
func (e *Engine) Providers(ctx context.Context) []string {
	var ready []string
	for _, st := range e.ProviderStatus(ctx) {
		if st.Ready {
			ready = append(ready, st.Name.String())
		}
	}
	return ready
}

// ProviderHelp returns setup instructions for the named provider.
func (e *Engine) ProviderHelp(name string) (string, error) {
	return provider.Help(name)
}

// Models lists models for the active provider. A local server's installed
// models are preferred over the registry.
func (e *Engine) Models(ctx context.Context) ([]string, error) {
	p, err := e.provider()
	if err != nil {
		return nil, err
	}
	if r, ok := p.(provider.Reachable); ok {
		names, err := r.ListInstalledModels(ctx)
		if err == nil && len(names) > 0 {
			return names, nil
		}
		e.log().Debug("falling back to registry models", zap.Error(err))
	}
	return e.registry.SupportedModels(p.Name().String()), nil
}

// Active returns the active provider and the model it would use.
func (e *Engine) Active() (string, string) {
	p, err := e.provider()
	if err != nil {
		return e.store.GetOrElse(config.KeyProvider, ""), e.store.GetOrElse(config.KeyModel, "")
	}
	return p.Name().String(), provider.ActiveModel(p)
}

// ConfigSummary renders the configuration with credentials masked.
func (e *Engine) ConfigSummary() string {
	return e.store.Summary()
}

// StatusLine formats one status row for display.
func StatusLine(st provider.Status) string {
	if st.Ready {
		return fmt.Sprintf("%-10s ready      %s", st.Name, st.Model)
	}
	return fmt.Sprintf("%-10s not ready  %s", st.Name, st.Reason)
}
