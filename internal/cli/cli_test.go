// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jeranaias/llmbridge/internal/config"
	"github.com/jeranaias/llmbridge/internal/engine"
	"github.com/jeranaias/llmbridge/internal/registry"
	"github.com/jeranaias/llmbridge/internal/storage"
)

func TestMain(m *testing.M) {
	ForceColorsEnabled(false)
	os.Exit(m.Run())
}

// =============================================================================
// HELPERS
// =============================================================================

// newEchoServer fakes a local Ollama server whose replies echo the last
// message.
func newEchoServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Ollama is running"))
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[{"name":"llama3.2:latest"},{"name":"qwen2.5:7b"}]}`))
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		last := req.Messages[len(req.Messages)-1].Content
		json.NewEncoder(w).Encode(map[string]any{
			"model":   "llama3.2",
			"message": map[string]string{"role": "assistant", "content": "echo: " + last},
			"done":    true,
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &calls
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		config.EnvProvider, config.EnvModel, config.EnvDebug, config.EnvOllamaHost,
		config.EnvOpenAIKey, config.EnvAnthropicKey, config.EnvGeminiKey,
	} {
		t.Setenv(k, "")
	}
}

func newTestSession(t *testing.T, transcripts *storage.TranscriptStore) (*Session, *bytes.Buffer) {
	t.Helper()
	clearEnv(t)
	server, _ := newEchoServer(t)

	store := config.NewStore()
	store.LoadFromMap(config.Overlay(config.Defaults(), map[string]string{
		"provider":        "local",
		"ollama_base_url": server.URL,
	}))
	opts := []engine.Option{engine.WithStore(store), engine.WithRegistry(registry.New())}
	if transcripts != nil {
		opts = append(opts, engine.WithTranscripts(transcripts))
	}

	var out bytes.Buffer
	return NewSession(engine.New(opts...), transcripts, &out), &out
}

func run(t *testing.T, s *Session, out *bytes.Buffer, line string) string {
	t.Helper()
	out.Reset()
	quit, err := s.Execute(context.Background(), line)
	if err != nil {
		t.Fatalf("Execute(%q) error = %v", line, err)
	}
	if quit {
		t.Fatalf("Execute(%q) quit unexpectedly", line)
	}
	return out.String()
}

func mustContain(t *testing.T, got string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(got, w) {
			t.Errorf("output does not contain %q:\n%s", w, got)
		}
	}
}

// =============================================================================
// ARG PARSER TESTS
// =============================================================================

func TestArgParser(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		validate func(*testing.T, *ArgParser)
	}{
		{
			name: "flag with value",
			args: []string{"search", "--limit", "5"},
			validate: func(t *testing.T, p *ArgParser) {
				if p.Positional(0) != "search" {
					t.Errorf("Positional(0) = %q, want search", p.Positional(0))
				}
				if p.FlagIntOrDefault("limit", 10) != 5 {
					t.Errorf("FlagIntOrDefault(limit) = %d, want 5", p.FlagIntOrDefault("limit", 10))
				}
			},
		},
		{
			name: "flag with equals",
			args: []string{"--transcripts=/tmp/t.db"},
			validate: func(t *testing.T, p *ArgParser) {
				if p.Flag("transcripts") != "/tmp/t.db" {
					t.Errorf("Flag(transcripts) = %q", p.Flag("transcripts"))
				}
			},
		},
		{
			name: "boolean flags",
			args: []string{"--all", "--watch=false"},
			validate: func(t *testing.T, p *ArgParser) {
				if !p.BoolFlag("all") {
					t.Error("BoolFlag(all) should be true")
				}
				if p.BoolFlag("watch") {
					t.Error("BoolFlag(watch) should be false")
				}
				if !p.HasFlag("--watch") {
					t.Error("HasFlag(watch) should be true")
				}
			},
		},
		{
			name: "positional words",
			args: []string{"what", "is", "go"},
			validate: func(t *testing.T, p *ArgParser) {
				if got := strings.Join(p.PositionalFrom(1), " "); got != "is go" {
					t.Errorf("PositionalFrom(1) = %q", got)
				}
				if p.PositionalCount() != 3 {
					t.Errorf("PositionalCount() = %d, want 3", p.PositionalCount())
				}
				if p.Positional(7) != "" {
					t.Error("out of range positional should be empty")
				}
			},
		},
		{
			name: "malformed int falls back",
			args: []string{"--limit", "lots"},
			validate: func(t *testing.T, p *ArgParser) {
				if p.FlagIntOrDefault("limit", 10) != 10 {
					t.Error("malformed int should use the default")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.validate(t, NewArgParser(tt.args))
		})
	}
}

func TestParseArgs(t *testing.T) {
	a, err := ParseArgs([]string{
		"--config", "llmbridge.conf", "--watch", "--project-dir", "/srv/app",
		"--provider", "anthropic", "--timeout", "2.5", "--debug", "--transcripts",
	}, "/home/u/.llmbridge/transcripts.db")
	if err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}
	if a.ConfigPath != "llmbridge.conf" || !a.Watch || a.ProjectDir != "/srv/app" || a.Provider != "anthropic" {
		t.Errorf("ParseArgs() = %+v", a)
	}
	if a.Timeout != 2500*time.Millisecond {
		t.Errorf("Timeout = %v, want 2.5s", a.Timeout)
	}
	if !a.Debug {
		t.Error("Debug should be set")
	}
	if a.Transcripts != "/home/u/.llmbridge/transcripts.db" {
		t.Errorf("Transcripts = %q, want the default path", a.Transcripts)
	}

	a, err = ParseArgs([]string{"--debug", "hello", "--transcripts=t.db", "there"}, "unused")
	if err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}
	if a.Transcripts != "t.db" || a.Prompt != "hello there" || !a.Debug {
		t.Errorf("ParseArgs() = %+v", a)
	}
	if a.Timeout != DefaultResolveTimeout {
		t.Errorf("Timeout = %v, want default", a.Timeout)
	}

	if _, err := ParseArgs([]string{"--watch"}, ""); err == nil {
		t.Error("--watch without --config should fail")
	}
	if _, err := ParseArgs([]string{"--timeout", "0"}, ""); err == nil {
		t.Error("--timeout 0 should fail")
	}
}

func TestParseSeconds(t *testing.T) {
	if d, err := ParseSeconds("0.25"); err != nil || d != 250*time.Millisecond {
		t.Errorf("ParseSeconds(0.25) = %v, %v", d, err)
	}
	for _, bad := range []string{"", "soon", "-1", "0"} {
		if _, err := ParseSeconds(bad); err == nil {
			t.Errorf("ParseSeconds(%q) should fail", bad)
		}
	}
}

// =============================================================================
// TEXT LAYOUT
// =============================================================================

func TestSuggestCommand(t *testing.T) {
	names := commandNames()
	tests := map[string]string{
		"/provdier": "/provider",
		"/hisotry":  "/history",
		"/stauts":   "/status",
		"/x":        "",
		"/provider": "",
		"/zzzzzzzz": "",
	}
	for in, want := range tests {
		if got := SuggestCommand(in, names); got != want {
			t.Errorf("SuggestCommand(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWrapText(t *testing.T) {
	got := WrapText("one two three four five", 14)
	for _, line := range strings.Split(got, "\n") {
		if len(line) > 12 {
			t.Errorf("line %q is wider than 12", line)
		}
	}
	if strings.Join(strings.Fields(got), " ") != "one two three four five" {
		t.Errorf("WrapText lost words: %q", got)
	}

	// Each of these runes takes two cells.
	wide := WrapText("日本語 日本語 日本語", 16)
	if n := strings.Count(wide, "\n"); n != 1 {
		t.Errorf("wide text should wrap once, got %d breaks: %q", n, wide)
	}

	if got := WrapText("a\nb", 40); got != "a\nb" {
		t.Errorf("existing newlines should be kept, got %q", got)
	}
}

func TestTruncateAndPad(t *testing.T) {
	if got := Truncate("hello\nworld again", 11); got != "hello wo..." {
		t.Errorf("Truncate() = %q", got)
	}
	if got := Truncate("short", 20); got != "short" {
		t.Errorf("Truncate() = %q", got)
	}
	if got := PadRight("日本", 6); got != "日本  " {
		t.Errorf("PadRight() = %q", got)
	}
}

func TestParseChoose(t *testing.T) {
	prompt, choices, err := parseChoose("Pick a color | red |  | green ")
	if err != nil {
		t.Fatalf("parseChoose() error = %v", err)
	}
	if prompt != "Pick a color" || len(choices) != 2 || choices[0] != "red" || choices[1] != "green" {
		t.Errorf("parseChoose() = %q, %q", prompt, choices)
	}
	if _, _, err := parseChoose("no choices"); err == nil {
		t.Error("prompt without choices should fail")
	}
	if _, _, err := parseChoose("empty | | "); err == nil {
		t.Error("only empty choices should fail")
	}
}

// =============================================================================
// SESSION
// =============================================================================

func TestSession_Chat(t *testing.T) {
	s, out := newTestSession(t, nil)

	mustContain(t, run(t, s, out, "hello"), "echo: hello")
	mustContain(t, run(t, s, out, "/history"), "user:", "hello", "assistant:", "echo: hello")

	run(t, s, out, "/clear")
	mustContain(t, run(t, s, out, "/history"), "No history for main")
}

func TestSession_CallersAreIsolated(t *testing.T) {
	s, out := newTestSession(t, nil)

	run(t, s, out, "from main")
	run(t, s, out, "/caller npc")
	if s.Caller().Label() != "npc" {
		t.Fatalf("caller = %q, want npc", s.Caller().Label())
	}
	mustContain(t, run(t, s, out, "/history"), "No history for npc")

	got := run(t, s, out, "/caller")
	mustContain(t, got, "main", "(2 messages)", "* npc")

	run(t, s, out, "/caller main")
	mustContain(t, run(t, s, out, "/history"), "from main")

	old := s.Caller()
	run(t, s, out, "/forget")
	if s.Caller() == old {
		t.Error("/forget should replace the caller")
	}
	mustContain(t, run(t, s, out, "/history"), "No history for main")
}

func TestSession_System(t *testing.T) {
	s, out := newTestSession(t, nil)

	run(t, s, out, "hi")
	run(t, s, out, "/system Be brief.")
	pairs := s.engine.History(s.Caller())
	if len(pairs) != 3 || pairs[0][0] != "system" || pairs[0][1] != "Be brief." {
		t.Errorf("history = %q", pairs)
	}
}

func TestSession_AsyncResolve(t *testing.T) {
	s, out := newTestSession(t, nil)

	mustContain(t, run(t, s, out, "/async first"), "#1 started")
	mustContain(t, run(t, s, out, "/async second"), "#2 started")
	mustContain(t, run(t, s, out, "/tasks"), "#1", "#2")

	// Replies land in the slots reserved when each round started.
	mustContain(t, run(t, s, out, "/resolve 2"), "#2 [main]", "echo: second")
	mustContain(t, run(t, s, out, "/resolve"), "#1 [main]", "echo: first")

	pairs := s.engine.History(s.Caller())
	want := []string{"first", "echo: first", "second", "echo: second"}
	if len(pairs) != len(want) {
		t.Fatalf("history = %q", pairs)
	}
	for i, w := range want {
		if pairs[i][1] != w {
			t.Errorf("history[%d] = %q, want %q", i, pairs[i][1], w)
		}
	}

	mustContain(t, run(t, s, out, "/tasks"), "No unresolved rounds")
	if _, err := s.Execute(context.Background(), "/resolve"); err == nil {
		t.Error("/resolve with nothing pending should fail")
	}
	run(t, s, out, "/async third")
	if _, err := s.Execute(context.Background(), "/resolve 1"); err == nil {
		t.Error("resolved rounds cannot be resolved again")
	}
	mustContain(t, run(t, s, out, "/resolve #3"), "echo: third")
}

func TestSession_ResolveAll(t *testing.T) {
	s, out := newTestSession(t, nil)

	run(t, s, out, "/async a")
	run(t, s, out, "/async b")
	mustContain(t, run(t, s, out, "/resolve all 5"), "echo: a", "echo: b")
	if s.pending.Len() != 0 {
		t.Errorf("pending = %d, want 0", s.pending.Len())
	}
}

func TestSession_Choose(t *testing.T) {
	s, out := newTestSession(t, nil)

	got := run(t, s, out, "/choose Pick a color | red | green")
	mustContain(t, got, "=> red")

	if _, err := s.Execute(context.Background(), "/choose Pick"); err == nil {
		t.Error("/choose without choices should fail")
	}
}

func TestSession_Configuration(t *testing.T) {
	s, out := newTestSession(t, nil)

	mustContain(t, run(t, s, out, "/active"), "Provider", "ollama", "Caller", "main")
	mustContain(t, run(t, s, out, "/models"), "llama3.2:latest", "qwen2.5:7b")

	run(t, s, out, "/model qwen2.5:7b")
	mustContain(t, run(t, s, out, "/model"), "qwen2.5:7b")
	if _, err := s.Execute(context.Background(), "/model gpt-4o"); err == nil {
		t.Error("unknown local model should be rejected")
	}

	if _, err := s.Execute(context.Background(), "/provider openai"); err == nil {
		t.Error("switching to openai without a key should fail")
	}
	mustContain(t, run(t, s, out, "/provider"), "ollama")

	mustContain(t, run(t, s, out, "/set temperature 0.3"), "Set temperature")
	if _, err := s.Execute(context.Background(), "/set temperature"); err == nil {
		t.Error("/set without a value should fail")
	}
	mustContain(t, run(t, s, out, "/config"), "temperature")
}

func TestSession_LoadAndKey(t *testing.T) {
	s, out := newTestSession(t, nil)
	dir := t.TempDir()

	models := filepath.Join(dir, "models.yaml")
	if err := os.WriteFile(models, []byte("openai:\n  - house-model\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	mustContain(t, run(t, s, out, "/models-file "+models), "Model overrides loaded")

	conf := filepath.Join(dir, "llmbridge.conf")
	content := "provider=openai\nopenai_api_key=sk-test-0123456789\nmodel=house-model\n"
	if err := os.WriteFile(conf, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	mustContain(t, run(t, s, out, "/load "+conf), "Loaded "+conf, "openai", "house-model")

	mustContain(t, run(t, s, out, "/key sk-other-0123456789"), "API key set", "sk-o...6789")
	mustContain(t, run(t, s, out, "/config"), "sk-o...6789")
	if strings.Contains(out.String(), "sk-other-0123456789") {
		t.Error("/config should mask the key")
	}
}

func TestSession_Discovery(t *testing.T) {
	s, out := newTestSession(t, nil)

	got := run(t, s, out, "/status")
	mustContain(t, got, "* [OK]", "ollama", "[FAIL]", "openai")

	mustContain(t, run(t, s, out, "/providers"), "ollama")
	mustContain(t, run(t, s, out, "/providers --all"), "openai", "anthropic", "gemini", "ollama")
	mustContain(t, run(t, s, out, "/help-provider openai"), "OPENAI_API_KEY")
	mustContain(t, run(t, s, out, "/help-provider"), "ollama serve")
	if _, err := s.Execute(context.Background(), "/help-provider nope"); err == nil {
		t.Error("unknown provider should fail")
	}
}

func TestSession_Commands(t *testing.T) {
	s, out := newTestSession(t, nil)

	mustContain(t, run(t, s, out, "/help"), "/provider", "/async", "/transcripts", "/quit")
	mustContain(t, run(t, s, out, "/help resolve"), "/resolve [n|all] [seconds]")

	_, err := s.Execute(context.Background(), "/provdier local")
	if err == nil || !strings.Contains(err.Error(), "did you mean /provider") {
		t.Errorf("typo error = %v", err)
	}

	for _, line := range []string{"/quit", "/q", "exit", "QUIT"} {
		quit, err := s.Execute(context.Background(), line)
		if err != nil || !quit {
			t.Errorf("Execute(%q) = %v, %v; want quit", line, quit, err)
		}
	}

	if quit, err := s.Execute(context.Background(), "   "); quit || err != nil {
		t.Error("blank input should be ignored")
	}
}

func TestSession_Transcripts(t *testing.T) {
	off, out := newTestSession(t, nil)
	if _, err := off.Execute(context.Background(), "/transcripts"); err == nil {
		t.Error("/transcripts without a store should fail")
	}
	_ = out

	ts, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { ts.Close() })

	s, out := newTestSession(t, ts)
	run(t, s, out, "first question")
	run(t, s, out, "/caller other")
	run(t, s, out, "second question")

	mustContain(t, run(t, s, out, "/transcripts count"), "2 rounds recorded")
	mustContain(t, run(t, s, out, "/transcripts"), "first question", "second question", "chat")
	got := run(t, s, out, "/transcripts mine")
	mustContain(t, got, "second question")
	if strings.Contains(got, "first question") {
		t.Error("/transcripts mine should only list the current caller")
	}
	got = run(t, s, out, "/transcripts search first")
	mustContain(t, got, "first question")
	if strings.Contains(got, "second") {
		t.Error("search should filter rounds")
	}
}

func TestSession_RunReadsUntilEOF(t *testing.T) {
	s, out := newTestSession(t, nil)

	in := strings.NewReader("hello\n/caller b\nworld\n")
	if err := s.Run(context.Background(), NewPlainReader(in, nil)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	mustContain(t, out.String(), "echo: hello", "echo: world", "Rounds")
}

func TestSession_RunReportsErrorsAndContinues(t *testing.T) {
	s, out := newTestSession(t, nil)

	in := strings.NewReader("/nope\nhello\n/quit\nnever sent\n")
	if err := s.Run(context.Background(), NewPlainReader(in, nil)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	mustContain(t, out.String(), "[Error] unknown command /nope", "echo: hello")
	if strings.Contains(out.String(), "never sent") {
		t.Error("input after /quit should not be read")
	}
}

// =============================================================================
// RUN
// =============================================================================

func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "llmbridge.conf")
	content := "provider=local\nollama_base_url=" + baseURL + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_OneShot(t *testing.T) {
	clearEnv(t)
	server, calls := newEchoServer(t)
	conf := writeConfig(t, server.URL)
	db := filepath.Join(t.TempDir(), "t.db")

	var out bytes.Buffer
	err := Run(context.Background(), []string{"--config", conf, "--transcripts=" + db, "what", "now"}, Streams{Out: &out})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	mustContain(t, out.String(), "echo: what now")
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}

	ts, err := storage.Open(db)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer ts.Close()
	if n, _ := ts.Count(context.Background()); n != 1 {
		t.Errorf("recorded rounds = %d, want 1", n)
	}
}

func TestRun_Interactive(t *testing.T) {
	clearEnv(t)
	server, _ := newEchoServer(t)
	conf := writeConfig(t, server.URL)

	var out bytes.Buffer
	in := strings.NewReader("/active\nhi\n/quit\n")
	if err := Run(context.Background(), []string{"--config", conf}, Streams{In: in, Out: &out}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	mustContain(t, out.String(), "llmbridge", "Provider", "ollama", "echo: hi")
}

func TestRun_FlagsAndErrors(t *testing.T) {
	clearEnv(t)

	var out bytes.Buffer
	if err := Run(context.Background(), []string{"--help"}, Streams{Out: &out}); err != nil {
		t.Fatalf("Run(--help) error = %v", err)
	}
	mustContain(t, out.String(), "Usage: llmbridge", "--transcripts")

	out.Reset()
	if err := Run(context.Background(), []string{"--version"}, Streams{Out: &out}); err != nil {
		t.Fatalf("Run(--version) error = %v", err)
	}
	mustContain(t, out.String(), "llmbridge "+Version)

	if err := Run(context.Background(), []string{"--config", filepath.Join(t.TempDir(), "missing.conf")}, Streams{Out: &out}); err == nil {
		t.Error("missing config file should fail")
	}
	if err := Run(context.Background(), []string{"--provider", "nope"}, Streams{Out: &out}); err == nil {
		t.Error("unknown provider should fail")
	}
}
