// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"io/fs"
	"maps"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// =============================================================================
// DEFAULTS
// =============================================================================

// Default values applied once when a store is created and beneath every
// bulk load.
const (
	DefaultProvider             = "openai"
	DefaultTemperature          = "0.7"
	DefaultTimeoutSeconds       = "30"
	DefaultOllamaTimeoutSeconds = "120"
	DefaultOpenAIBaseURL        = "https://api.openai.com/v1"
	DefaultAnthropicBaseURL     = "https://api.anthropic.com"
	DefaultGeminiBaseURL        = "https://generativelanguage.googleapis.com"
	DefaultOllamaBaseURL        = "http://127.0.0.1:11434"
)

// Environment variables read by ApplyEnvOverrides.
const (
	EnvProvider     = "LLMBRIDGE_PROVIDER"
	EnvModel        = "LLMBRIDGE_MODEL"
	EnvDebug        = "LLMBRIDGE_DEBUG"
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvAnthropicKey = "ANTHROPIC_API_KEY"
	EnvGeminiKey    = "GEMINI_API_KEY"
	EnvOllamaHost   = "OLLAMA_HOST"
)

// APIKeyEnv maps provider names to the environment variable holding their key.
var APIKeyEnv = map[string]string{
	"openai":    EnvOpenAIKey,
	"anthropic": EnvAnthropicKey,
	"gemini":    EnvGeminiKey,
}

// Defaults returns the built-in configuration with environment overrides
// applied. The returned map is a fresh copy.
func Defaults() map[string]string {
	m := map[string]string{
		KeyProvider:       DefaultProvider,
		KeyTemperature:    DefaultTemperature,
		KeyTimeoutSeconds: DefaultTimeoutSeconds,

		ProviderKey("openai", SuffixBaseURL):        DefaultOpenAIBaseURL,
		ProviderKey("anthropic", SuffixBaseURL):     DefaultAnthropicBaseURL,
		ProviderKey("gemini", SuffixBaseURL):        DefaultGeminiBaseURL,
		ProviderKey("ollama", SuffixBaseURL):        DefaultOllamaBaseURL,
		ProviderKey("ollama", SuffixTimeoutSeconds): DefaultOllamaTimeoutSeconds,
	}
	ApplyEnvOverrides(m)
	return m
}

// ApplyEnvOverrides copies recognized environment variables into m.
func ApplyEnvOverrides(m map[string]string) {
	// LLMBRIDGE_PROVIDER
	if p := os.Getenv(EnvProvider); p != "" {
		m[KeyProvider] = strings.ToLower(strings.TrimSpace(p))
	}

	// LLMBRIDGE_MODEL
	if model := os.Getenv(EnvModel); model != "" {
		m[KeyModel] = model
	}

	// LLMBRIDGE_DEBUG
	if debug := os.Getenv(EnvDebug); debug != "" {
		m[KeyDebug] = debug
	}

	// Per-provider API keys
	for provider, env := range APIKeyEnv {
		if key := os.Getenv(env); key != "" {
			m[ProviderKey(provider, SuffixAPIKey)] = key
		}
	}

	// OLLAMA_HOST may be a bare host:port
	if host := os.Getenv(EnvOllamaHost); host != "" {
		if !strings.Contains(host, "://") {
			host = "http://" + host
		}
		m[ProviderKey("ollama", SuffixBaseURL)] = strings.TrimRight(host, "/")
	}
}

// Overlay returns a copy of base with every key of top written over it.
func Overlay(base, top map[string]string) map[string]string {
	out := maps.Clone(base)
	if out == nil {
		out = make(map[string]string, len(top))
	}
	for k, v := range top {
		out[NormalizeKey(k)] = v
	}
	return out
}

// LoadDotEnv loads .env files into the process environment without
// overwriting variables that are already set. Missing files are skipped.
// With no arguments it tries ".env" in the working directory.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}
