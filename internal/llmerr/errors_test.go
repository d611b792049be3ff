// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llmerr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := Network("openai", "request failed", context.Canceled)

	require.ErrorIs(t, err, ErrNetwork)
	require.NotErrorIs(t, err, ErrTimeout)
	require.ErrorIs(t, err, context.Canceled)

	wrapped := fmt.Errorf("chat: %w", err)
	require.ErrorIs(t, wrapped, ErrNetwork)

	var e *Error
	require.True(t, errors.As(wrapped, &e))
	require.Equal(t, "openai", e.Provider)
}

func TestError_MessageIncludesContext(t *testing.T) {
	err := Parse("gemini", "no candidates in response", []byte(`{"weird":true}`), nil)
	msg := err.Error()
	require.Contains(t, msg, "ParseError")
	require.Contains(t, msg, "[gemini]")
	require.Contains(t, msg, `{"weird":true}`)

	cfg := Configuration("missing API key for anthropic", "set anthropic_api_key")
	require.Contains(t, cfg.Error(), "set anthropic_api_key")
}

func TestError_BodyTruncated(t *testing.T) {
	err := Status("openai", 500, []byte(strings.Repeat("x", 2000)))
	require.Equal(t, 500, err.Status)
	require.Less(t, len(err.Error()), 700)
	require.Len(t, err.Body, 2000)
}

func TestError_BodyTruncatedOnRuneBoundary(t *testing.T) {
	// Two-byte runes put byte maxBodyInError in the middle of a sequence
	// once a one-byte prefix shifts the alignment.
	body := "x" + strings.Repeat("é", 600)
	msg := Status("gemini", 502, []byte(body)).Error()
	require.True(t, utf8.ValidString(msg), "message must stay valid UTF-8")
	require.Contains(t, msg, "...)")
	require.NotContains(t, msg, string(utf8.RuneError))

	require.Equal(t, "x"+strings.Repeat("é", 255)+"...", truncateBody(body))
	require.Equal(t, "short", truncateBody("short"))
}

func TestError_WithProvider(t *testing.T) {
	base := Timeout("", "deadline", nil)
	tagged := base.WithProvider("ollama")
	require.Equal(t, "ollama", tagged.Provider)
	require.Empty(t, base.Provider)

	var nilErr *Error
	require.Nil(t, nilErr.WithProvider("x"))
}
