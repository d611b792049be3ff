// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/llmbridge/internal/config"
	"github.com/jeranaias/llmbridge/internal/llmerr"
)

func TestParseName(t *testing.T) {
	tests := map[string]Name{
		"openai":    NameOpenAI,
		"Claude":    NameAnthropic,
		"google":    NameGemini,
		" LOCAL ":   NameOllama,
		"ollama":    NameOllama,
		"anthropic": NameAnthropic,
	}
	for in, want := range tests {
		got, err := ParseName(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got)
	}

	_, err := ParseName("mistral-cloud")
	require.ErrorIs(t, err, llmerr.ErrConfiguration)
	require.Contains(t, err.Error(), "openai, anthropic")
}

func TestFactory_Create(t *testing.T) {
	f := Factory{}
	for _, n := range Names() {
		p, err := f.Create(string(n))
		require.NoError(t, err)
		require.Equal(t, n, p.Name())
		require.NotEmpty(t, p.DefaultModel())
	}

	p, err := f.Create("local")
	require.NoError(t, err)
	_, reachable := p.(Reachable)
	require.True(t, reachable)

	p, err = f.Create("claude")
	require.NoError(t, err)
	_, reachable = p.(Reachable)
	require.False(t, reachable)

	_, err = f.Create("")
	require.ErrorIs(t, err, llmerr.ErrConfiguration)
}

func TestFactory_CreateFromConfig(t *testing.T) {
	store := config.NewStore()
	_, err := Factory{}.CreateFromConfig(store)
	require.ErrorIs(t, err, llmerr.ErrConfiguration)

	store.LoadFromMap(map[string]string{
		"provider":          "anthropic",
		"anthropic_api_key": "ak-1",
		"openai_api_key":    "sk-1",
		"model":             "claude-3-opus-20240229",
	})
	p, err := Factory{}.CreateFromConfig(store)
	require.NoError(t, err)
	require.Equal(t, NameAnthropic, p.Name())

	for k, v := range store.Snapshot() {
		got, ok := p.GetConfig(k)
		require.True(t, ok, k)
		require.Equal(t, v, got)
	}
	require.NoError(t, p.ValidateConfig())

	// The provider's snapshot is private.
	store.Set("anthropic_api_key", "")
	require.NoError(t, p.ValidateConfig())
	p.SetConfig("model", "claude-3-haiku-20240307")
	m, _ := store.Get("model")
	require.Equal(t, "claude-3-opus-20240229", m)
}

func TestCheckReadiness(t *testing.T) {
	cloud := NewAnthropic()
	err := CheckReadiness(context.Background(), cloud)
	require.ErrorIs(t, err, llmerr.ErrConfiguration)
	require.Contains(t, err.Error(), "anthropic_api_key")

	cloud.SetConfig("anthropic_api_key", "ak")
	require.NoError(t, CheckReadiness(context.Background(), cloud))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Ollama is running"))
	}))
	local := NewLocal()
	local.SetConfig("ollama_base_url", server.URL)
	require.NoError(t, CheckReadiness(context.Background(), local))

	server.Close()
	err = CheckReadiness(context.Background(), local)
	require.ErrorIs(t, err, llmerr.ErrConfiguration)
	require.Contains(t, err.Error(), server.URL)
	require.Contains(t, err.Error(), "ollama serve")
}

func TestHelp(t *testing.T) {
	text, err := Help("gemini")
	require.NoError(t, err)
	require.Contains(t, text, "gemini_api_key")
	require.Contains(t, text, "GEMINI_API_KEY")

	text, err = Help("local")
	require.NoError(t, err)
	require.Contains(t, text, "ollama serve")
	require.False(t, strings.Contains(text, "Needs an API key"))

	_, err = Help("nope")
	require.ErrorIs(t, err, llmerr.ErrConfiguration)
}
