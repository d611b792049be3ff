// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/llmbridge/internal/choice"
	"github.com/jeranaias/llmbridge/internal/config"
	"github.com/jeranaias/llmbridge/internal/history"
	"github.com/jeranaias/llmbridge/internal/llmerr"
	"github.com/jeranaias/llmbridge/internal/logging"
	"github.com/jeranaias/llmbridge/internal/provider"
	"github.com/jeranaias/llmbridge/internal/registry"
	"github.com/jeranaias/llmbridge/internal/storage"
)

// Recorder receives every completed round. *storage.TranscriptStore
// implements it.
type Recorder interface {
	Record(ctx context.Context, r storage.Round) (int64, error)
}

// recordTimeout bounds one transcript write.
const recordTimeout = 2 * time.Second

// =============================================================================
// ENGINE
// =============================================================================

// cachedProvider pairs a provider with the store generation it was built
// from.
type cachedProvider struct {
	generation uint64
	p          provider.Provider
}

// Engine exposes the primitive surface. It is safe for concurrent use.
type Engine struct {
	store       *config.Store
	registry    *registry.Registry
	factory     provider.Factory
	history     *history.Manager
	resolver    *choice.Resolver
	transcripts Recorder
	projectDir  string

	// mu serializes config mutations so validate-then-swap is atomic.
	mu         sync.Mutex
	configPath string

	cached atomic.Pointer[cachedProvider]
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore uses store instead of a fresh default store.
func WithStore(store *config.Store) Option {
	return func(e *Engine) {
		if store != nil {
			e.store = store
		}
	}
}

// WithRegistry uses r instead of the process registry.
func WithRegistry(r *registry.Registry) Option {
	return func(e *Engine) {
		if r != nil {
			e.registry = r
		}
	}
}

// WithHTTPClient sends every provider request through hc.
func WithHTTPClient(hc *http.Client) Option {
	return func(e *Engine) {
		e.factory.HTTPClient = hc
	}
}

// WithProbeTimeout bounds local reachability probes.
func WithProbeTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.factory.ProbeTimeout = d
	}
}

// WithResolver sets the choice resolver, typically one with a seeded
// random source.
func WithResolver(r *choice.Resolver) Option {
	return func(e *Engine) {
		if r != nil {
			e.resolver = r
		}
	}
}

// WithTranscripts records every completed round to rec.
func WithTranscripts(rec Recorder) Option {
	return func(e *Engine) {
		e.transcripts = rec
	}
}

// WithProjectDir sets the directory LoadConfig searches for relative paths.
func WithProjectDir(dir string) Option {
	return func(e *Engine) {
		e.projectDir = dir
	}
}

// New creates an engine. Without options it uses a store seeded from the
// defaults and environment, and the process model registry.
func New(opts ...Option) *Engine {
	e := &Engine{
		history:  history.NewManager(),
		resolver: choice.NewResolver(nil),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		e.store = config.NewDefaultStore()
	}
	if e.registry == nil {
		e.registry = registry.Global()
	}
	e.factory.Registry = e.registry
	e.applyDebug()
	return e
}

func (e *Engine) log() *zap.Logger {
	return logging.L().Named("engine")
}

// applyDebug raises the log level when the store asks for it.
func (e *Engine) applyDebug() {
	if debug, err := e.store.Bool(config.KeyDebug, false); err == nil && debug {
		logging.SetDebug(true)
	}
}

// =============================================================================
// PROVIDER CACHE
// =============================================================================

// provider returns the shared provider for the current configuration,
// rebuilding it when the store has changed since it was built.
func (e *Engine) provider() (provider.Provider, error) {
	gen := e.store.Generation()
	if c := e.cached.Load(); c != nil && c.generation == gen {
		return c.p, nil
	}

	p, err := e.factory.CreateFromConfig(e.store)
	if err != nil {
		return nil, err
	}
	e.cached.Store(&cachedProvider{generation: gen, p: p})
	e.log().Debug("provider built", zap.String("provider", p.Name().String()), zap.Uint64("generation", gen))
	return p, nil
}

// providerFor builds name against snap. Legacy unnamespaced keys and the
// shared model key belong to the active provider only.
func (e *Engine) providerFor(name provider.Name, snap map[string]string) (provider.Provider, error) {
	p, err := e.factory.Create(name.String())
	if err != nil {
		return nil, err
	}
	active := snap[config.KeyProvider]
	for k, v := range snap {
		if active != name.String() {
			switch k {
			case config.KeyAPIKey, config.KeyBaseURL, config.KeyModel:
				continue
			}
		}
		p.SetConfig(k, v)
	}
	p.SetConfig(config.KeyProvider, name.String())
	return p, nil
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Store returns the configuration store.
func (e *Engine) Store() *config.Store {
	return e.store
}

// Registry returns the model registry.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// ConfigPath returns the file most recently loaded by LoadConfig, or "".
func (e *Engine) ConfigPath() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.configPath
}

func requireCaller(c *history.Caller) error {
	if c == nil {
		return llmerr.Configuration("caller must not be nil", "create one with history.NewCaller")
	}
	return nil
}
