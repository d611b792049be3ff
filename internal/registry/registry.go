// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package registry

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/llmbridge/internal/llmerr"
	"github.com/jeranaias/llmbridge/internal/logging"
)

//go:embed models.toml
var bundledTOML []byte

// defaultModels are the stable per-provider choices. They are independent of
// the bundled file and of overrides.
var defaultModels = map[string]string{
	"openai":    "gpt-4o-mini",
	"anthropic": "claude-3-5-sonnet-20241022",
	"gemini":    "gemini-1.5-flash",
	"ollama":    "llama3.2",
}

// safetyModels is used when the bundled definition cannot be parsed.
var safetyModels = map[string][]string{
	"openai":    {"gpt-4o-mini", "gpt-4o"},
	"anthropic": {"claude-3-5-sonnet-20241022", "claude-3-5-haiku-20241022"},
	"gemini":    {"gemini-1.5-flash", "gemini-1.5-pro"},
	"ollama":    {"llama3.2"},
}

// DefaultModel returns the hardcoded default model for provider, or "" for
// an unknown provider.
func DefaultModel(provider string) string {
	return defaultModels[provider]
}

// =============================================================================
// FORMATS
// =============================================================================

// Format identifies the encoding of an override file.
type Format int

const (
	FormatTOML Format = iota
	FormatJSON
	FormatYAML
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	default:
		return "toml"
	}
}

// FormatFromPath picks a format from the file extension. Anything that is
// not .json, .yaml or .yml is treated as TOML.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatTOML
	}
}

func decode(data []byte, format Format) (map[string][]string, error) {
	out := make(map[string][]string)
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &out)
	case FormatYAML:
		err = yaml.Unmarshal(data, &out)
	default:
		_, err = toml.NewDecoder(bytes.NewReader(data)).Decode(&out)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// REGISTRY
// =============================================================================

// ProviderModels is one provider's ordered model list.
type ProviderModels struct {
	Provider   string
	Models     []string
	IsOverride bool
}

// Registry is safe for concurrent use. The bundled map never changes after
// construction; the override map is swapped whole under mu.
type Registry struct {
	bundled map[string][]string

	mu       sync.RWMutex
	override map[string][]string
}

// New creates a registry from the embedded definition.
func New() *Registry {
	return newFromBundled(bundledTOML)
}

func newFromBundled(data []byte) *Registry {
	bundled, err := decode(data, FormatTOML)
	if err == nil {
		bundled, err = clean(bundled)
	}
	if err != nil || len(bundled) == 0 {
		logging.L().Warn("bundled model list unusable, using safety set", zap.Error(err))
		bundled = make(map[string][]string, len(safetyModels))
		for p, models := range safetyModels {
			bundled[p] = slices.Clone(models)
		}
	}
	return &Registry{bundled: bundled}
}

// clean trims names, drops blanks and duplicates, and rejects sections that
// end up empty.
func clean(in map[string][]string) (map[string][]string, error) {
	out := make(map[string][]string, len(in))
	for p, models := range in {
		provider := strings.ToLower(strings.TrimSpace(p))
		seen := make(map[string]bool, len(models))
		list := make([]string, 0, len(models))
		for _, m := range models {
			m = strings.TrimSpace(m)
			if m == "" || seen[m] {
				continue
			}
			seen[m] = true
			list = append(list, m)
		}
		if len(list) == 0 {
			return nil, fmt.Errorf("provider %q has no models", provider)
		}
		out[provider] = list
	}
	return out, nil
}

// models returns the active list for provider without copying.
func (r *Registry) models(provider string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if list, ok := r.override[provider]; ok {
		return list, true
	}
	list, ok := r.bundled[provider]
	return list, ok
}

// IsValidModel reports whether model is in provider's active list.
func (r *Registry) IsValidModel(provider, model string) bool {
	list, _ := r.models(provider)
	return slices.Contains(list, model)
}

// SupportedModels returns a copy of provider's active list in order.
func (r *Registry) SupportedModels(provider string) []string {
	list, _ := r.models(provider)
	return slices.Clone(list)
}

// DefaultModel returns the hardcoded default for provider.
func (r *Registry) DefaultModel(provider string) string {
	return DefaultModel(provider)
}

// Providers returns every provider with a bundled or overridden list, sorted.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := maps.Clone(r.bundled)
	for p, list := range r.override {
		set[p] = list
	}
	return slices.Sorted(maps.Keys(set))
}

// Entries returns one entry per provider, sorted by provider name.
func (r *Registry) Entries() []ProviderModels {
	providers := r.Providers()
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ProviderModels, 0, len(providers))
	for _, p := range providers {
		if list, ok := r.override[p]; ok {
			out = append(out, ProviderModels{Provider: p, Models: slices.Clone(list), IsOverride: true})
			continue
		}
		out = append(out, ProviderModels{Provider: p, Models: slices.Clone(r.bundled[p])})
	}
	return out
}

// LoadOverride reads an override file, choosing the format by extension.
func (r *Registry) LoadOverride(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return llmerr.Configuration(
			fmt.Sprintf("cannot read model override file %s: %v", path, err),
			"check the path and file permissions",
		)
	}
	if err := r.LoadOverrideBytes(data, FormatFromPath(path)); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// LoadOverrideBytes installs an override definition in place of any earlier
// one. Every provider section replaces that provider's list entirely. Sections must name a known
// provider and list at least one model. A failed load leaves the registry
// unchanged.
func (r *Registry) LoadOverrideBytes(data []byte, format Format) error {
	raw, err := decode(data, format)
	if err != nil {
		return llmerr.Configurationf("invalid %s model override: %v", format, err)
	}
	parsed, err := clean(raw)
	if err != nil {
		return llmerr.Configurationf("invalid model override: %v", err)
	}
	for p := range parsed {
		if _, known := defaultModels[p]; !known {
			return llmerr.Configurationf("model override names unknown provider %q", p)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.override = parsed
	return nil
}

// Reset drops every override.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.override = nil
}

// =============================================================================
// PROCESS REGISTRY
// =============================================================================

var (
	globalMu       sync.RWMutex
	globalRegistry *Registry
)

// Global returns the process-wide registry, creating it on first use.
func Global() *Registry {
	globalMu.RLock()
	r := globalRegistry
	globalMu.RUnlock()
	if r != nil {
		return r
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalRegistry == nil {
		globalRegistry = New()
	}
	return globalRegistry
}

// SetGlobal replaces the process-wide registry.
func SetGlobal(r *Registry) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalRegistry = r
}

// ResetGlobalForTesting discards the process-wide registry so the next
// Global call rebuilds it from the bundled definition.
func ResetGlobalForTesting() {
	SetGlobal(nil)
}
