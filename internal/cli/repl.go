// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// repl.go - Interactive session over the engine primitives.
//
// Bare text is a blocking chat turn for the current caller. Slash commands
// map onto the engine primitives one to one; /help lists them.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/llmbridge/internal/engine"
	"github.com/jeranaias/llmbridge/internal/history"
	"github.com/jeranaias/llmbridge/internal/logging"
	"github.com/jeranaias/llmbridge/internal/storage"
	"github.com/jeranaias/llmbridge/internal/tasks"
)

// DefaultCaller is the label of the caller a session starts with.
const DefaultCaller = "main"

// =============================================================================
// SESSION
// =============================================================================

// asyncRound is an unresolved /async round.
type asyncRound struct {
	handle *engine.Handle
	caller *history.Caller
}

// Session is one interactive run of the REPL.
type Session struct {
	engine      *engine.Engine
	transcripts *storage.TranscriptStore
	out         io.Writer

	caller  *history.Caller
	callers map[string]*history.Caller
	pending *tasks.Tracker[asyncRound]

	// ResolveTimeout bounds /resolve when no timeout is given.
	ResolveTimeout time.Duration

	started time.Time
	rounds  int
}

// NewSession creates a session writing to out. transcripts may be nil.
func NewSession(e *engine.Engine, transcripts *storage.TranscriptStore, out io.Writer) *Session {
	s := &Session{
		engine:         e,
		transcripts:    transcripts,
		out:            out,
		callers:        make(map[string]*history.Caller),
		pending:        tasks.NewTracker[asyncRound](0),
		ResolveTimeout: DefaultResolveTimeout,
		started:        time.Now(),
	}
	s.caller = s.callerFor(DefaultCaller)
	return s
}

// Caller returns the current caller.
func (s *Session) Caller() *history.Caller {
	return s.caller
}

func (s *Session) callerFor(label string) *history.Caller {
	if c, ok := s.callers[label]; ok {
		return c
	}
	c := history.NewCaller(label)
	s.callers[label] = c
	return c
}

// =============================================================================
// LOOP
// =============================================================================

// Run reads lines from r until /quit, end of input or Ctrl+C at the prompt.
// Ctrl+C while a request is running cancels that request only.
func (s *Session) Run(ctx context.Context, r LineReader) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		input, err := r.ReadLine(Paint(PromptStyle, fmt.Sprintf("llmbridge[%s]> ", s.caller.Label())))
		if err != nil {
			s.println("")
			s.printSummary()
			if errors.Is(err, io.EOF) || errors.Is(err, ErrAborted) {
				return nil
			}
			return err
		}

		lineCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
		quit, err := s.Execute(lineCtx, input)
		stop()
		if err != nil {
			s.printError(err)
		}
		if quit {
			s.printSummary()
			return nil
		}
	}
}

// Execute runs one line of input. It reports whether the session should end.
func (s *Session) Execute(ctx context.Context, input string) (bool, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return false, nil
	}
	if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
		return true, nil
	}
	if !strings.HasPrefix(input, "/") {
		return false, s.chat(ctx, input)
	}

	name, rest, _ := strings.Cut(input, " ")
	cmd := lookupCommand(strings.ToLower(name))
	if cmd == nil {
		if hint := SuggestCommand(name, commandNames()); hint != "" {
			return false, fmt.Errorf("unknown command %s (did you mean %s?)", name, hint)
		}
		return false, fmt.Errorf("unknown command %s (type /help for commands)", name)
	}
	logging.L().Debug("repl command", zap.String("command", cmd.name))
	if cmd.quit {
		return true, nil
	}
	return false, cmd.run(ctx, s, strings.TrimSpace(rest))
}

// =============================================================================
// OUTPUT
// =============================================================================

func (s *Session) println(text string) {
	fmt.Fprintln(s.out, text)
}

func (s *Session) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

func (s *Session) printError(err error) {
	s.println(Paint(ErrorStyle, "[Error]") + " " + err.Error())
}

func (s *Session) printReply(reply string) {
	s.println(Paint(ReplyStyle, WrapText(reply, 0)))
}

func (s *Session) printField(label, value string) {
	s.println(RenderLabel(label) + Paint(ValueStyle, value))
}

// PrintWelcome prints the banner shown at the start of an interactive run.
func (s *Session) PrintWelcome() {
	p, m := s.engine.Active()
	s.println(Paint(TitleStyle, "llmbridge"))
	s.printField("Provider", p)
	s.printField("Model", m)
	if s.transcripts != nil {
		s.printField("Transcripts", s.transcripts.Path())
	}
	s.println(Paint(DimStyle, "Type a message and press Enter. Commands: /help, /quit"))
	s.println("")
}

func (s *Session) printSummary() {
	if s.rounds == 0 {
		return
	}
	s.println(RenderSeparator())
	s.printField("Rounds", fmt.Sprint(s.rounds))
	s.printField("Duration", time.Since(s.started).Round(time.Second).String())
	if n := s.pending.Len(); n > 0 {
		s.printField("Unresolved", fmt.Sprint(n))
	}
}
