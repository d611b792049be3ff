// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/llmbridge/internal/choice"
	"github.com/jeranaias/llmbridge/internal/history"
	"github.com/jeranaias/llmbridge/internal/llmerr"
	"github.com/jeranaias/llmbridge/internal/model"
	"github.com/jeranaias/llmbridge/internal/provider"
	"github.com/jeranaias/llmbridge/internal/storage"
	"github.com/jeranaias/llmbridge/internal/tasks"
)

// =============================================================================
// BLOCKING CHAT
// =============================================================================

// Chat sends text as c's next turn and returns the reply. The user message
// is appended before the request goes out; the reply is appended only on
// success. The provider's configured timeout bounds the call.
func (e *Engine) Chat(ctx context.Context, c *history.Caller, text string) (string, error) {
	return e.chat(ctx, c, text, storage.KindChat)
}

func (e *Engine) chat(ctx context.Context, c *history.Caller, text string, kind storage.Kind) (string, error) {
	if err := requireCaller(c); err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", llmerr.Configuration("message text must not be empty", "")
	}
	p, err := e.provider()
	if err != nil {
		return "", err
	}

	pending, msgs := e.history.Begin(c, model.NewUserMessage(text))
	start := time.Now()
	reply, err := p.Complete(ctx, msgs)
	e.record(ctx, c, kind, p, text, reply.Content, err, time.Since(start))
	if err != nil {
		pending.Abandon()
		return "", err
	}
	pending.Commit(reply)
	return reply.Content, nil
}

// =============================================================================
// ASYNC CHAT
// =============================================================================

// Handle is an in-flight ChatAsync round.
type Handle struct {
	e        *Engine
	task     *tasks.Task[model.ChatMessage]
	pending  *history.Pending
	caller   string
	label    string
	prompt   string
	p        provider.Provider
	started  time.Time
	mu       sync.Mutex
	resolved bool
}

// ChatAsync appends text to c's history and starts the request at once on
// its own goroutine. Collect the reply with Resolve.
func (e *Engine) ChatAsync(c *history.Caller, text string) (*Handle, error) {
	if err := requireCaller(c); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, llmerr.Configuration("message text must not be empty", "")
	}
	p, err := e.provider()
	if err != nil {
		return nil, err
	}

	pending, msgs := e.history.Begin(c, model.NewUserMessage(text))
	desc := fmt.Sprintf("chat %s via %s", c, p.Name())
	task := tasks.Start(context.Background(), desc, func(ctx context.Context) (model.ChatMessage, error) {
		return p.Complete(ctx, msgs)
	})

	e.log().Debug("async chat started", zap.String("task", task.ID()), zap.String("caller", c.ID()))
	return &Handle{
		e:       e,
		task:    task,
		pending: pending,
		caller:  c.ID(),
		label:   c.Label(),
		prompt:  text,
		p:       p,
		started: time.Now(),
	}, nil
}

// Resolve waits at most timeout for h. On success the reply is appended to
// the caller's history, in the position reserved when the round started,
// and returned. On failure or timeout the reply slot is dropped. A handle
// resolves once; later calls fail.
func (e *Engine) Resolve(h *Handle, timeout time.Duration) (string, error) {
	if h == nil {
		return "", llmerr.Configuration("handle must not be nil", "")
	}
	return h.Resolve(timeout)
}

// Resolve waits at most timeout for the reply. See Engine.Resolve.
func (h *Handle) Resolve(timeout time.Duration) (string, error) {
	// A rejected argument leaves the handle resolvable.
	if timeout <= 0 {
		return "", llmerr.Configurationf("resolve timeout must be positive, got %s", timeout)
	}

	h.mu.Lock()
	if h.resolved {
		h.mu.Unlock()
		return "", llmerr.Configurationf("handle %s was already resolved", h.ID())
	}
	h.resolved = true
	h.mu.Unlock()

	reply, err := h.task.Await(timeout)
	if err != nil {
		// Await's own argument check cannot fire here, so err came from
		// the request itself.
		err = withProvider(err, h.p.Name().String())
		h.pending.Abandon()
	} else {
		h.pending.Commit(reply)
	}
	h.e.recordRound(context.Background(), storage.Round{
		CallerID:    h.caller,
		CallerLabel: h.label,
		Kind:        storage.KindAsync,
		Provider:    h.p.Name().String(),
		Model:       provider.ActiveModel(h.p),
		Prompt:      h.prompt,
		Reply:       reply.Content,
		Error:       errorText(err),
		Duration:    time.Since(h.started),
	})
	if err != nil {
		return "", err
	}
	return reply.Content, nil
}

// ID returns the handle's task ID.
func (h *Handle) ID() string {
	return h.task.ID()
}

// Done is closed when the request has finished, successfully or not.
func (h *Handle) Done() <-chan struct{} {
	return h.task.Done()
}

// Status reports the underlying task status.
func (h *Handle) Status() tasks.Status {
	return h.task.Status()
}

// Summary returns a one-line description for listings.
func (h *Handle) Summary() string {
	return h.task.Summary()
}

// withProvider tags an llmerr.Error that carries no provider yet. Only pass
// errors produced by the provider request, never argument errors.
func withProvider(err error, name string) error {
	var le *llmerr.Error
	if errors.As(err, &le) && le.Provider == "" {
		return le.WithProvider(name)
	}
	return err
}

// =============================================================================
// CHOOSE
// =============================================================================

// Choose asks the model to pick one of choices and always returns one of
// them. The prompt is a normal turn in c's history. If the request fails or
// the reply matches nothing, a random choice is returned and the fallback
// is logged.
func (e *Engine) Choose(ctx context.Context, c *history.Caller, prompt string, choices []string) (string, error) {
	if len(choices) == 0 {
		return "", llmerr.Configuration("choose needs at least one choice", "")
	}
	if err := requireCaller(c); err != nil {
		return "", err
	}

	reply, err := e.chat(ctx, c, choice.BuildPrompt(prompt, choices), storage.KindChoose)
	if err != nil {
		pick, _ := e.resolver.Random(choices)
		e.log().Warn("choose fell back to random after chat error",
			zap.String("caller", c.ID()),
			zap.String("choice", pick),
			zap.Error(err),
		)
		return pick, nil
	}

	pick, method, _ := e.resolver.Resolve(reply, choices)
	if method == choice.MethodRandom {
		e.log().Warn("choose fell back to random, reply matched no choice",
			zap.String("caller", c.ID()),
			zap.String("reply", reply),
			zap.String("choice", pick),
		)
	} else {
		e.log().Debug("choice resolved", zap.String("method", method.String()), zap.String("choice", pick))
	}
	return pick, nil
}

// =============================================================================
// TRANSCRIPTS
// =============================================================================

func (e *Engine) record(ctx context.Context, c *history.Caller, kind storage.Kind, p provider.Provider, prompt, reply string, err error, d time.Duration) {
	e.recordRound(ctx, storage.Round{
		CallerID:    c.ID(),
		CallerLabel: c.Label(),
		Kind:        kind,
		Provider:    p.Name().String(),
		Model:       provider.ActiveModel(p),
		Prompt:      prompt,
		Reply:       reply,
		Error:       errorText(err),
		Duration:    d,
	})
}

// recordRound writes r when transcripts are enabled. Failures are logged,
// never returned.
func (e *Engine) recordRound(ctx context.Context, r storage.Round) {
	if e.transcripts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if _, err := e.transcripts.Record(ctx, r); err != nil {
		e.log().Warn("transcript write failed", zap.Error(err))
	}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
