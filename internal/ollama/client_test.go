// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/llmbridge/internal/llmerr"
)

func TestCheckRunning(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Ollama is running"))
	}))
	defer server.Close()

	require.NoError(t, NewClient(server.URL+"/").CheckRunning(context.Background()))
}

func TestCheckRunning_NotReachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	err := NewClient(url).CheckRunning(context.Background())
	require.ErrorIs(t, err, llmerr.ErrNetwork)
	require.Contains(t, err.Error(), url)
}

func TestCheckRunning_ProbeTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	start := time.Now()
	err := NewClient(server.URL, WithProbeTimeout(50*time.Millisecond)).CheckRunning(context.Background())
	require.ErrorIs(t, err, llmerr.ErrTimeout)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestCheckRunning_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	err := NewClient(server.URL).CheckRunning(context.Background())
	require.ErrorIs(t, err, llmerr.ErrNetwork)
}

func TestListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path = %q, want /api/tags", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"models":[
			{"name":"llama3.2:latest","size":2019393189,"details":{"family":"llama","parameter_size":"3.2B"}},
			{"name":"mistral:7b","size":4113301824}
		]}`))
	}))
	defer server.Close()

	c := NewClient(server.URL)
	models, err := c.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	require.Equal(t, int64(2019393189), models[0].Size)

	names, err := c.ModelNames(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"llama3.2:latest", "mistral:7b"}, names)
}

func TestListModels_BadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>proxy error</html>`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL).ListModels(context.Background())
	require.ErrorIs(t, err, llmerr.ErrParse)

	var e *llmerr.Error
	require.ErrorAs(t, err, &e)
	require.Contains(t, e.Body, "proxy error")
}

func TestBaseModelName(t *testing.T) {
	tests := map[string]string{
		"llama3.2:latest": "llama3.2",
		"llama3.2":        "llama3.2",
		"qwen2.5:7b-q4":   "qwen2.5",
		":odd":            ":odd",
	}
	for in, want := range tests {
		require.Equal(t, want, BaseModelName(in), in)
	}
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("")
	require.Equal(t, DefaultBaseURL, c.BaseURL())
	require.Equal(t, DefaultProbeTimeout, c.probeTimeout)
}
