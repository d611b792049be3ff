// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/llmbridge/internal/config"
	"github.com/jeranaias/llmbridge/internal/logging"
	"github.com/jeranaias/llmbridge/internal/model"
	"github.com/jeranaias/llmbridge/internal/ollama"
)

// Local talks to an Ollama server. It needs no credential, and once the
// installed models have been listed they take precedence over the static
// allow-list.
type Local struct {
	*base
	probeTimeout time.Duration

	mu            sync.RWMutex
	installed     []string
	installedFrom string // base URL the listing came from
}

// NewLocal creates an Ollama provider.
func NewLocal(opts ...Option) *Local {
	o := buildOptions(opts)
	return &Local{
		base:         newBase(NameOllama, localWire{}, o),
		probeTimeout: o.probeTimeout,
	}
}

func (l *Local) client() *ollama.Client {
	return ollama.NewClient(l.baseURL(),
		ollama.WithHTTPClient(l.http),
		ollama.WithProbeTimeout(l.probeTimeout),
	)
}

// CheckReachable probes the server with its own short timeout. It is meant
// for readiness checks, not the request path.
func (l *Local) CheckReachable(ctx context.Context) bool {
	if err := l.client().CheckRunning(ctx); err != nil {
		logging.L().Debug("ollama probe failed", zap.String("url", l.baseURL()), zap.Error(err))
		return false
	}
	return true
}

// ListInstalledModels asks the server for its models and caches the answer
// for SupportsModel.
func (l *Local) ListInstalledModels(ctx context.Context) ([]string, error) {
	from := l.baseURL()
	names, err := l.client().ModelNames(ctx)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.installed = slices.Clone(names)
	l.installedFrom = from
	l.mu.Unlock()
	return names, nil
}

// cachedModels returns the last listing if it came from the current URL.
func (l *Local) cachedModels() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.installedFrom != l.baseURL() {
		return nil
	}
	return l.installed
}

// SupportsModel prefers the live listing. Both "llama3.2" and
// "llama3.2:latest" match an installed "llama3.2:latest".
func (l *Local) SupportsModel(m string) bool {
	live := l.cachedModels()
	if len(live) == 0 {
		return l.base.SupportsModel(m)
	}
	for _, name := range live {
		if name == m || ollama.BaseModelName(name) == m {
			return true
		}
	}
	return false
}

// SetConfig drops the cached listing when the server URL changes.
func (l *Local) SetConfig(key, value string) {
	l.base.SetConfig(key, value)
	switch config.NormalizeKey(key) {
	case NameOllama.Key(config.SuffixBaseURL), config.KeyBaseURL:
		l.mu.Lock()
		l.installed, l.installedFrom = nil, ""
		l.mu.Unlock()
	}
}

// =============================================================================
// WIRE FORMAT
// =============================================================================

type localWire struct{}

func (localWire) buildURL(baseURL, _, _ string) (string, error) {
	return baseURL + "/api/chat", nil
}

// buildHeaders forwards a key when one is configured, for servers behind an
// authenticating proxy.
func (localWire) buildHeaders(h http.Header, apiKey string) {
	if apiKey != "" {
		h.Set("Authorization", "Bearer "+apiKey)
	}
}

func (localWire) buildWireRequest(req model.ChatRequest) (any, error) {
	msgs := make([]ollama.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, ollama.Message{Role: string(m.Role), Content: m.Content})
	}
	out := ollama.ChatRequest{Model: req.ModelID, Messages: msgs, Stream: false}
	if req.Temperature != nil || req.MaxOutputTokens != nil {
		out.Options = &ollama.Options{Temperature: req.Temperature}
		if req.MaxOutputTokens != nil {
			out.Options.NumPredict = *req.MaxOutputTokens
		}
	}
	return out, nil
}

func (localWire) parseWireResponse(body []byte) (*model.ChatResponse, error) {
	var r ollama.ChatResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, err
	}
	if r.Message == nil {
		return nil, errors.New("response has no message")
	}
	reason := r.DoneReason
	if reason == "" && r.Done {
		reason = "stop"
	}
	return &model.ChatResponse{
		CreatedAt: r.CreatedAt,
		ModelID:   r.Model,
		Choices: []model.Choice{{
			Message:      model.NewMessage(wireRole(r.Message.Role), r.Message.Content),
			FinishReason: reason,
		}},
	}, nil
}
