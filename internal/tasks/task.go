// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/llmbridge/internal/llmerr"
)

// =============================================================================
// TASK STATUS
// =============================================================================

// Status represents the current state of a task.
type Status string

const (
	// StatusQueued indicates the task has been created but fn has not begun.
	StatusQueued Status = "Queued"

	// StatusRunning indicates fn is executing.
	StatusRunning Status = "Running"

	// StatusComplete indicates fn returned without error.
	StatusComplete Status = "Complete"

	// StatusFailed indicates fn returned an error.
	StatusFailed Status = "Failed"

	// StatusCanceled indicates the task was canceled or its Await expired.
	StatusCanceled Status = "Canceled"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed || s == StatusCanceled
}

// validTransition allows Queued -> Running -> Complete/Failed/Canceled, plus
// Queued -> Canceled.
func validTransition(from, to Status) bool {
	switch from {
	case StatusQueued:
		return to == StatusRunning || to == StatusCanceled
	case StatusRunning:
		return to == StatusComplete || to == StatusFailed || to == StatusCanceled
	default:
		return false
	}
}

// =============================================================================
// TASK STRUCTURE
// =============================================================================

// Task is a unit of work producing a T. All methods are safe for concurrent
// use.
type Task[T any] struct {
	id          string
	description string

	mu        sync.RWMutex
	status    Status
	startTime time.Time
	endTime   time.Time
	value     T
	err       error

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Start creates a task and begins running fn on its own goroutine
// immediately. fn receives a context that is canceled when the task is.
// A panic in fn fails the task instead of crashing the process.
func Start[T any](ctx context.Context, description string, fn func(ctx context.Context) (T, error)) *Task[T] {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task[T]{
		id:          uuid.NewString(),
		description: description,
		status:      StatusQueued,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	go func() {
		defer cancel()
		var (
			v   T
			err error
		)
		defer func() {
			if r := recover(); r != nil {
				var zero T
				v, err = zero, fmt.Errorf("task %q panicked: %v", description, r)
			}
			t.finish(v, err)
		}()

		if !t.transition(StatusRunning) {
			return
		}
		v, err = fn(ctx)
	}()
	return t
}

// =============================================================================
// STATE
// =============================================================================

// transition applies a validated status change and closes Done on terminal
// states. It reports whether the change was applied.
func (t *Task[T]) transition(to Status) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transitionLocked(to)
}

func (t *Task[T]) transitionLocked(to Status) bool {
	if !validTransition(t.status, to) {
		return false
	}
	t.status = to
	now := time.Now()
	if to == StatusRunning {
		t.startTime = now
	}
	if to.Terminal() {
		if t.startTime.IsZero() {
			t.startTime = now
		}
		t.endTime = now
		t.closeOnce.Do(func() { close(t.done) })
	}
	return true
}

// finish records fn's result unless the task was already canceled, in
// which case the result is discarded.
func (t *Task[T]) finish(v T, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return
	}
	if t.status == StatusQueued {
		t.transitionLocked(StatusRunning)
	}
	t.value, t.err = v, err
	if err != nil {
		t.transitionLocked(StatusFailed)
		return
	}
	t.transitionLocked(StatusComplete)
}

// Cancel stops the task. It returns false if the task had already finished.
func (t *Task[T]) Cancel() bool {
	return t.cancelWith(llmerr.Configurationf("task %s was canceled", t.shortID()))
}

func (t *Task[T]) cancelWith(err error) bool {
	t.mu.Lock()
	ok := t.transitionLocked(StatusCanceled)
	if ok {
		t.err = err
	}
	t.mu.Unlock()
	if ok {
		t.cancel()
	}
	return ok
}

// =============================================================================
// COLLECTING
// =============================================================================

// Await blocks until the task finishes or timeout passes. On expiry the
// task is canceled, its eventual result is discarded and a Timeout error is
// returned; later calls return the same error.
func (t *Task[T]) Await(timeout time.Duration) (T, error) {
	if timeout <= 0 {
		var zero T
		return zero, llmerr.Configurationf("await timeout must be positive, got %s", timeout)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-t.done:
	case <-timer.C:
		t.cancelWith(llmerr.Timeout("", fmt.Sprintf("%s: no result within %s", t.description, timeout), context.DeadlineExceeded))
	}
	return t.Result()
}

// Result returns the outcome so far without blocking. Before the task
// finishes it returns the zero value and a nil error.
func (t *Task[T]) Result() (T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.value, t.err
}

// Done is closed once the task reaches a terminal status.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// =============================================================================
// ACCESSORS
// =============================================================================

// ID returns the task's unique ID.
func (t *Task[T]) ID() string {
	return t.id
}

// Description returns the human-readable description.
func (t *Task[T]) Description() string {
	return t.description
}

// Status returns the current status.
func (t *Task[T]) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Duration returns how long the task has been running or took to finish.
func (t *Task[T]) Duration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.startTime.IsZero() {
		return 0
	}
	if t.endTime.IsZero() {
		return time.Since(t.startTime)
	}
	return t.endTime.Sub(t.startTime)
}

// Summary returns a one-line summary of the task.
func (t *Task[T]) Summary() string {
	summary := fmt.Sprintf("[%s] %s - %s", t.shortID(), t.description, t.Status())
	if d := t.Duration(); d > 0 {
		summary += fmt.Sprintf(" (%.1fs)", d.Seconds())
	}
	return summary
}

func (t *Task[T]) shortID() string {
	return t.id[:8]
}
