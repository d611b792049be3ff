// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/llmbridge/internal/config"
	"github.com/jeranaias/llmbridge/internal/history"
	"github.com/jeranaias/llmbridge/internal/llmerr"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newOllamaServer(t *testing.T, models ...string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Ollama is running"))
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		body := `{"models":[`
		for i, m := range models {
			if i > 0 {
				body += ","
			}
			body += `{"name":"` + m + `"}`
		}
		w.Write([]byte(body + `]}`))
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"model":"llama3.2","message":{"role":"assistant","content":"local hello"},"done":true}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func get(e *Engine, key string) string {
	v, _ := e.Store().Get(key)
	return v
}

// =============================================================================
// SET PROVIDER
// =============================================================================

func TestSetProvider_RequiresKey(t *testing.T) {
	svc := newFakeService(t)
	eng := newTestEngine(t, svc)
	before := eng.Store().Snapshot()

	err := eng.SetProvider(context.Background(), "anthropic")
	require.ErrorIs(t, err, llmerr.ErrConfiguration)
	require.Contains(t, err.Error(), "anthropic_api_key")
	require.Contains(t, err.Error(), "ANTHROPIC_API_KEY")
	require.Equal(t, before, eng.Store().Snapshot(), "failed switch changes nothing")

	err = eng.SetProvider(context.Background(), "watsonx")
	require.ErrorIs(t, err, llmerr.ErrConfiguration)
}

func TestSetProvider_DropsUnsupportedModel(t *testing.T) {
	svc := newFakeService(t)
	eng := newTestEngine(t, svc)
	require.NoError(t, eng.SetModel(context.Background(), "gpt-4o"))
	eng.Store().Set("anthropic_api_key", "ak-test")

	require.NoError(t, eng.SetProvider(context.Background(), "claude"))
	p, m := eng.Active()
	require.Equal(t, "anthropic", p)
	require.Equal(t, "claude-3-5-sonnet-20241022", m)
	_, hasModel := eng.Store().Get("model")
	require.False(t, hasModel)
}

func TestSetProvider_Local(t *testing.T) {
	svc := newFakeService(t)
	eng := newTestEngine(t, svc)

	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()
	eng.Store().Set("ollama_base_url", deadURL)

	err := eng.SetProvider(context.Background(), "local")
	require.ErrorIs(t, err, llmerr.ErrConfiguration)
	require.Contains(t, err.Error(), deadURL)
	require.Equal(t, "openai", get(eng, "provider"))

	ollama := newOllamaServer(t, "llama3.2:latest")
	eng.Store().Set("ollama_base_url", ollama.URL)
	require.NoError(t, eng.SetProvider(context.Background(), "ollama"))

	reply, err := eng.Chat(context.Background(), history.NewCaller("c"), "hi")
	require.NoError(t, err)
	require.Equal(t, "local hello", reply)
}

// =============================================================================
// SET API KEY / MODEL / KEY
// =============================================================================

func TestSetAPIKey(t *testing.T) {
	svc := newFakeService(t)
	eng := newTestEngine(t, svc)

	require.ErrorIs(t, eng.SetAPIKey("  "), llmerr.ErrConfiguration)
	require.NoError(t, eng.SetAPIKey("sk-new-key-abcdef"))
	require.Equal(t, "sk-new-key-abcdef", get(eng, "openai_api_key"))
	require.NotContains(t, eng.ConfigSummary(), "sk-new-key-abcdef")
}

func TestSetModel(t *testing.T) {
	svc := newFakeService(t)
	eng := newTestEngine(t, svc)

	err := eng.SetModel(context.Background(), "gpt-17")
	require.ErrorIs(t, err, llmerr.ErrConfiguration)
	_, m := eng.Active()
	require.Equal(t, "gpt-4o-mini", m, "failed set leaves the default")

	require.NoError(t, eng.SetModel(context.Background(), "gpt-4o"))
	_, m = eng.Active()
	require.Equal(t, "gpt-4o", m)

	eng.Store().Set("openai_model", "gpt-4")
	require.NoError(t, eng.SetModel(context.Background(), "o1-mini"))
	_, m = eng.Active()
	require.Equal(t, "o1-mini", m, "namespaced model follows set-model")
}

func TestSetModel_WithOverride(t *testing.T) {
	svc := newFakeService(t)
	eng := newTestEngine(t, svc)
	dir := t.TempDir()
	path := writeFile(t, dir, "models.yaml", "openai:\n  - my-finetune\n")

	require.ErrorIs(t, eng.SetModel(context.Background(), "my-finetune"), llmerr.ErrConfiguration)
	require.NoError(t, eng.LoadModelOverrides(path))
	require.NoError(t, eng.SetModel(context.Background(), "my-finetune"))
	require.ErrorIs(t, eng.SetModel(context.Background(), "gpt-4o"), llmerr.ErrConfiguration,
		"override replaces the bundled list")

	models, err := eng.Models(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"my-finetune"}, models)
}

func TestSet(t *testing.T) {
	svc := newFakeService(t)
	eng := newTestEngine(t, svc)

	require.NoError(t, eng.Set("Temperature", "0.2"))
	require.Equal(t, "0.2", get(eng, "temperature"))

	require.ErrorIs(t, eng.Set("temperature", "5"), llmerr.ErrConfiguration)
	require.Equal(t, "0.2", get(eng, "temperature"))

	require.ErrorIs(t, eng.Set("provider", "gemini"), llmerr.ErrConfiguration)
	require.ErrorIs(t, eng.Set("model", "gpt-4o"), llmerr.ErrConfiguration)
	require.ErrorIs(t, eng.Set("openai_timeout_seconds", "soon"), llmerr.ErrConfiguration)
}

// =============================================================================
// LOAD CONFIG
// =============================================================================

func TestLoadConfig_Precedence(t *testing.T) {
	svc := newFakeService(t)
	eng := newTestEngine(t, svc)
	dir := t.TempDir()
	path := writeFile(t, dir, "llmbridge.conf", "# test\n"+
		"provider=anthropic\n"+
		"api_key=ak-legacy-123456789\n"+
		"temperature=0.4\n"+
		"max_tokens=256\n")

	require.NoError(t, eng.Set("max_tokens", "99"))
	require.NoError(t, eng.LoadConfig(context.Background(), path))

	require.Equal(t, "anthropic", get(eng, "provider"))
	require.Equal(t, "ak-legacy-123456789", get(eng, "anthropic_api_key"), "legacy key goes to the file's provider")
	_, legacy := eng.Store().Get("api_key")
	require.False(t, legacy)
	require.Equal(t, "256", get(eng, "max_tokens"), "bulk load replaces earlier runtime sets")
	require.Equal(t, config.DefaultOllamaBaseURL, get(eng, "ollama_base_url"), "defaults fill the rest")
	require.Equal(t, path, eng.ConfigPath())

	require.NoError(t, eng.Set("temperature", "1.5"))
	require.Equal(t, "1.5", get(eng, "temperature"), "runtime set wins after a load")
	require.Equal(t, "256", get(eng, "max_tokens"))

	require.NoError(t, eng.LoadConfig(context.Background(), path))
	require.Equal(t, "0.4", get(eng, "temperature"), "next load wins again")
}

func TestLoadConfig_FailureKeepsState(t *testing.T) {
	svc := newFakeService(t)
	eng := newTestEngine(t, svc)
	dir := t.TempDir()
	before := eng.Store().Snapshot()

	noKey := writeFile(t, dir, "nokey.conf", "provider=gemini\n")
	err := eng.LoadConfig(context.Background(), noKey)
	require.ErrorIs(t, err, llmerr.ErrConfiguration)
	require.Contains(t, err.Error(), "gemini_api_key")

	unknown := writeFile(t, dir, "unknown.conf", "provider=skynet\n")
	require.ErrorIs(t, eng.LoadConfig(context.Background(), unknown), llmerr.ErrConfiguration)

	badModel := writeFile(t, dir, "model.conf", "provider=openai\nopenai_api_key=sk\nmodel=gpt-99\n")
	require.ErrorIs(t, eng.LoadConfig(context.Background(), badModel), llmerr.ErrConfiguration)

	malformed := writeFile(t, dir, "bad.conf", "provider openai\n")
	require.ErrorIs(t, eng.LoadConfig(context.Background(), malformed), llmerr.ErrConfiguration)

	require.ErrorIs(t, eng.LoadConfig(context.Background(), filepath.Join(dir, "missing.conf")), llmerr.ErrConfiguration)

	require.Equal(t, before, eng.Store().Snapshot())
}

func TestLoadConfig_KeepsCurrentProviderWhenFileNamesNone(t *testing.T) {
	svc := newFakeService(t)
	eng := newTestEngine(t, svc)
	path := writeFile(t, t.TempDir(), "k.conf", "api_key=sk-from-file\nbase_url="+svc.URL+"\n")

	require.NoError(t, eng.LoadConfig(context.Background(), path))
	require.Equal(t, "openai", get(eng, "provider"))
	require.Equal(t, "sk-from-file", get(eng, "openai_api_key"))

	_, err := eng.Chat(context.Background(), history.NewCaller("c"), "still works")
	require.NoError(t, err)
}

func TestLoadConfig_ProjectDir(t *testing.T) {
	svc := newFakeService(t)
	dir := t.TempDir()
	writeFile(t, dir, "llmbridge.conf", "provider=openai\nopenai_api_key=sk-project\n")
	writeFile(t, dir, "host.project", "")
	eng := newTestEngine(t, svc, WithProjectDir(filepath.Join(dir, "host.project")))

	require.NoError(t, eng.LoadConfig(context.Background(), "llmbridge.conf"))
	require.Equal(t, "sk-project", get(eng, "openai_api_key"))
}

func TestWatchConfig(t *testing.T) {
	svc := newFakeService(t)
	eng := newTestEngine(t, svc)
	dir := t.TempDir()
	path := writeFile(t, dir, "watched.conf", "provider=openai\nopenai_api_key=sk-1\ntemperature=0.1\n")
	require.NoError(t, eng.LoadConfig(context.Background(), path))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.WatchConfig(ctx, path) }()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "watched.conf", "provider=openai\nopenai_api_key=sk-1\ntemperature=0.9\n")

	require.Eventually(t, func() bool {
		return get(eng, "temperature") == "0.9"
	}, 5*time.Second, 20*time.Millisecond)

	// An invalid edit is rejected and the last good config stays.
	writeFile(t, dir, "watched.conf", "provider=gemini\n")
	time.Sleep(600 * time.Millisecond)
	require.Equal(t, "openai", get(eng, "provider"))

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("WatchConfig did not stop")
	}
}
