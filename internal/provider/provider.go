// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/jeranaias/llmbridge/internal/config"
	"github.com/jeranaias/llmbridge/internal/llmerr"
	"github.com/jeranaias/llmbridge/internal/model"
)

// =============================================================================
// PROVIDER NAMES
// =============================================================================

// Name identifies one supported provider.
type Name string

const (
	NameOpenAI    Name = "openai"
	NameAnthropic Name = "anthropic"
	NameGemini    Name = "gemini"
	NameOllama    Name = "ollama"
)

// Names returns every supported provider in display order.
func Names() []Name {
	return []Name{NameOpenAI, NameAnthropic, NameGemini, NameOllama}
}

// aliases maps accepted spellings onto canonical names.
var aliases = map[string]Name{
	"openai":    NameOpenAI,
	"anthropic": NameAnthropic,
	"claude":    NameAnthropic,
	"gemini":    NameGemini,
	"google":    NameGemini,
	"ollama":    NameOllama,
	"local":     NameOllama,
}

// ParseName resolves a provider name or alias, ignoring case.
func ParseName(s string) (Name, error) {
	if n, ok := aliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return n, nil
	}
	return "", llmerr.Configuration(
		fmt.Sprintf("unknown provider %q", s),
		"known providers: openai, anthropic (claude), gemini (google), ollama (local)",
	)
}

// String returns the canonical name.
func (n Name) String() string {
	return string(n)
}

// IsLocal reports whether n needs no credential.
func (n Name) IsLocal() bool {
	return n == NameOllama
}

// Key returns the namespaced config key for suffix, e.g. "openai_api_key".
func (n Name) Key(suffix string) string {
	return config.ProviderKey(string(n), suffix)
}

// APIKeyEnv returns the environment variable read for n's credential.
func (n Name) APIKeyEnv() string {
	return config.APIKeyEnv[string(n)]
}

// =============================================================================
// CONTRACT
// =============================================================================

// Provider is the uniform chat contract.
type Provider interface {
	Name() Name
	DefaultModel() string
	SupportsModel(model string) bool

	// Chat sends req as given and returns the normalized response.
	Chat(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error)

	// Complete builds a request from msgs and the configured defaults and
	// returns the first reply message.
	Complete(ctx context.Context, msgs []model.ChatMessage) (model.ChatMessage, error)

	SetConfig(key, value string)
	GetConfig(key string) (string, bool)

	// ValidateConfig fails fast with an actionable reason, such as a missing
	// credential, before any request is made.
	ValidateConfig() error
}

// Reachable is implemented by providers backed by a local server.
type Reachable interface {
	CheckReachable(ctx context.Context) bool
	ListInstalledModels(ctx context.Context) ([]string, error)
}
