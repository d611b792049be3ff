// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jeranaias/llmbridge/internal/config"
	"github.com/jeranaias/llmbridge/internal/llmerr"
	"github.com/jeranaias/llmbridge/internal/logging"
	"github.com/jeranaias/llmbridge/internal/provider"
)

// =============================================================================
// CONFIG PRIMITIVES
// =============================================================================

// SetProvider switches the active provider after checking it is ready: a
// cloud provider needs its API key, a local server must answer a probe. A
// shared model setting the new provider does not support is dropped so its
// default applies.
func (e *Engine) SetProvider(ctx context.Context, name string) error {
	n, err := provider.ParseName(name)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	snap := e.store.Snapshot()
	prev := snap[config.KeyProvider]
	snap[config.KeyProvider] = n.String()

	dropped := ""
	if m := snap[config.KeyModel]; m != "" && prev != n.String() && !e.registry.IsValidModel(n.String(), m) {
		dropped = m
		delete(snap, config.KeyModel)
	}

	p, err := e.providerFor(n, snap)
	if err != nil {
		return err
	}
	if err := provider.CheckReadiness(ctx, p); err != nil {
		return err
	}

	e.store.LoadFromMap(snap)
	e.log().Info("provider switched",
		zap.String("from", prev),
		zap.String("to", n.String()),
		zap.String("model", provider.ActiveModel(p)),
		zap.String("dropped_model", dropped),
	)
	return nil
}

// SetAPIKey stores key for the active provider.
func (e *Engine) SetAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return llmerr.Configuration("API key must not be empty", "")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	n, err := e.activeName()
	if err != nil {
		return err
	}
	k := n.Key(config.SuffixAPIKey)
	snap := e.store.Snapshot()
	snap[k] = key

	p, err := e.providerFor(n, snap)
	if err != nil {
		return err
	}
	if err := p.ValidateConfig(); err != nil {
		return err
	}

	e.store.Set(k, key)
	e.log().Info("api key set", zap.String("provider", n.String()), zap.String("key", config.Mask(key)))
	return nil
}

// SetModel selects model for the active provider. The model must be known
// to the provider; for a local server the installed models are consulted
// first.
func (e *Engine) SetModel(ctx context.Context, model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return llmerr.Configuration("model name must not be empty", "")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.provider()
	if err != nil {
		return err
	}
	if r, ok := p.(provider.Reachable); ok {
		if _, err := r.ListInstalledModels(ctx); err != nil {
			e.log().Debug("installed model listing failed", zap.Error(err))
		}
	}
	if !p.SupportsModel(model) {
		return llmerr.Configuration(
			fmt.Sprintf("model %q is not available for %s", model, p.Name()),
			"list the choices with models, or load a model override file",
		).WithProvider(p.Name().String())
	}

	updates := map[string]string{config.KeyModel: model}
	if nk := p.Name().Key(config.SuffixModel); e.store.GetOrElse(nk, "") != "" {
		updates[nk] = model
	}
	e.store.UpdateFromMap(updates)
	e.log().Info("model set", zap.String("provider", p.Name().String()), zap.String("model", model))
	return nil
}

// Set stores one config key after validating the result against the active
// provider. Use SetProvider, SetAPIKey and SetModel for those keys.
func (e *Engine) Set(key, value string) error {
	key = config.NormalizeKey(key)
	if key == "" {
		return llmerr.Configuration("config key must not be empty", "")
	}
	switch key {
	case config.KeyProvider:
		return llmerr.Configuration("use set-provider to switch providers", "")
	case config.KeyModel:
		return llmerr.Configuration("use set-model to change the model", "")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	n, err := e.activeName()
	if err != nil {
		return err
	}
	snap := e.store.Snapshot()
	snap[key] = value
	p, err := e.providerFor(n, snap)
	if err != nil {
		return err
	}
	if err := p.ValidateConfig(); err != nil {
		return err
	}

	e.store.Set(key, value)
	if key == config.KeyDebug {
		logging.SetDebug(logging.Truthy(value))
	}
	shown := value
	if config.IsSecretKey(key) {
		shown = config.Mask(value)
	}
	e.log().Info("config set", zap.String("key", key), zap.String("value", shown))
	return nil
}

// LoadConfig replaces the configuration with defaults overlaid by the
// key=value file at path. The file's provider (or the current one when the
// file names none) must pass the readiness check first; on any failure the
// current configuration stays in place. Legacy api_key and base_url lines
// apply to that provider.
func (e *Engine) LoadConfig(ctx context.Context, path string) error {
	resolved, err := config.ResolvePath(path, e.projectDir)
	if err != nil {
		return err
	}
	values, err := config.ParseFile(resolved)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	active := e.store.GetOrElse(config.KeyProvider, config.DefaultProvider)
	if v := strings.TrimSpace(values[config.KeyProvider]); v != "" {
		active = v
	}
	n, err := provider.ParseName(active)
	if err != nil {
		return fmt.Errorf("%s: %w", resolved, err)
	}

	merged := config.Overlay(config.Defaults(), config.RewriteLegacy(values, n.String()))
	merged[config.KeyProvider] = n.String()

	p, err := e.providerFor(n, merged)
	if err != nil {
		return err
	}
	if err := provider.CheckReadiness(ctx, p); err != nil {
		return err
	}
	if _, local := p.(provider.Reachable); !local {
		if m := merged[config.KeyModel]; m != "" && !p.SupportsModel(m) {
			return llmerr.Configuration(
				fmt.Sprintf("%s: model %q is not available for %s", resolved, m, n),
				"fix the model line or load a model override file first",
			).WithProvider(n.String())
		}
	}

	e.store.LoadFromMap(merged)
	e.configPath = resolved
	e.applyDebug()
	e.log().Info("config loaded",
		zap.String("path", resolved),
		zap.String("provider", n.String()),
		zap.Int("keys", len(values)),
	)
	return nil
}

// LoadModelOverrides installs a model override file (TOML, JSON or YAML by
// extension) in place of any earlier one.
func (e *Engine) LoadModelOverrides(path string) error {
	resolved, err := config.ResolvePath(path, e.projectDir)
	if err != nil {
		return err
	}
	if err := e.registry.LoadOverride(resolved); err != nil {
		return err
	}
	e.log().Info("model overrides loaded", zap.String("path", resolved))
	return nil
}

// WatchConfig reloads path through LoadConfig whenever it changes, until
// ctx is done. A reload that fails validation is logged and the previous
// configuration kept.
func (e *Engine) WatchConfig(ctx context.Context, path string) error {
	resolved, err := config.ResolvePath(path, e.projectDir)
	if err != nil {
		return err
	}
	w, err := config.NewWatcher(resolved, config.DefaultDebounce, func(p string) error {
		return e.LoadConfig(ctx, p)
	})
	if err != nil {
		return llmerr.Configurationf("cannot watch %s: %v", resolved, err)
	}
	e.log().Info("watching config", zap.String("path", w.Path()))
	return w.Run(ctx)
}

// activeName returns the configured provider. e.mu must be held.
func (e *Engine) activeName() (provider.Name, error) {
	active := e.store.GetOrElse(config.KeyProvider, "")
	if active == "" {
		return "", llmerr.Configuration("no provider configured", "call set-provider first")
	}
	return provider.ParseName(active)
}
