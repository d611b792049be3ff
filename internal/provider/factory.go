// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"net/http"
	"time"

	"github.com/jeranaias/llmbridge/internal/config"
	"github.com/jeranaias/llmbridge/internal/llmerr"
	"github.com/jeranaias/llmbridge/internal/registry"
)

// Factory builds providers. It keeps no state between calls; caching one
// instance and invalidating it on config changes is the caller's job.
type Factory struct {
	HTTPClient   *http.Client       // nil uses the pooled default
	Registry     *registry.Registry // nil uses registry.Global()
	ProbeTimeout time.Duration      // local reachability bound; 0 means one second
}

func (f Factory) options() []Option {
	return []Option{
		WithHTTPClient(f.HTTPClient),
		WithRegistry(f.Registry),
		WithProbeTimeout(f.ProbeTimeout),
	}
}

// Create constructs an unconfigured provider by name or alias.
func (f Factory) Create(name string) (Provider, error) {
	n, err := ParseName(name)
	if err != nil {
		return nil, err
	}
	switch n {
	case NameOpenAI:
		return NewOpenAI(f.options()...), nil
	case NameAnthropic:
		return NewAnthropic(f.options()...), nil
	case NameGemini:
		return NewGemini(f.options()...), nil
	case NameOllama:
		return NewLocal(f.options()...), nil
	}
	return nil, llmerr.Configurationf("provider %q has no implementation", n)
}

// CreateFromConfig reads the active provider from store, constructs it and
// copies every key of store into the provider's snapshot.
func (f Factory) CreateFromConfig(store *config.Store) (Provider, error) {
	snap := store.Snapshot()
	name := snap[config.KeyProvider]
	if name == "" {
		return nil, llmerr.Configuration("no provider configured", "set provider to one of openai, anthropic, gemini, ollama")
	}
	p, err := f.Create(name)
	if err != nil {
		return nil, err
	}
	for k, v := range snap {
		p.SetConfig(k, v)
	}
	return p, nil
}
