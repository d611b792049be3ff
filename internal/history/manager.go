// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"runtime"
	"slices"
	"sync"
	"weak"

	"github.com/google/uuid"

	"github.com/jeranaias/llmbridge/internal/model"
)

// =============================================================================
// CALLER
// =============================================================================

// Caller identifies one conversation. Compare callers by pointer; two
// callers with the same label are still distinct.
type Caller struct {
	id    string
	label string
}

// NewCaller creates a caller. The label is only used for display.
func NewCaller(label string) *Caller {
	return &Caller{id: uuid.NewString(), label: label}
}

// ID returns the caller's unique ID.
func (c *Caller) ID() string {
	return c.id
}

// Label returns the display label given at creation.
func (c *Caller) Label() string {
	return c.label
}

// String returns the label, or the ID when there is none.
func (c *Caller) String() string {
	if c.label != "" {
		return c.label
	}
	return c.id
}

// =============================================================================
// MANAGER
// =============================================================================

type slot struct {
	msg    model.ChatMessage
	filled bool
}

type entry struct {
	slots []*slot

	// epoch changes on Set and Clear, voiding any outstanding Pending.
	epoch uint64

	cleanup runtime.Cleanup
}

func (e *entry) messages() []model.ChatMessage {
	out := make([]model.ChatMessage, 0, len(e.slots))
	for _, s := range e.slots {
		if s.filled {
			out = append(out, s.msg)
		}
	}
	return out
}

// Manager maps callers to their histories. It is safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	entries map[weak.Pointer[Caller]]*entry
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{entries: make(map[weak.Pointer[Caller]]*entry)}
}

// entryLocked returns c's entry, creating it and registering the collection
// hook on first use. m.mu must be held.
func (m *Manager) entryLocked(c *Caller) *entry {
	key := weak.Make(c)
	if e, ok := m.entries[key]; ok {
		return e
	}
	e := &entry{}
	e.cleanup = runtime.AddCleanup(c, m.collected, key)
	m.entries[key] = e
	return e
}

// collected runs after a caller has been garbage collected.
func (m *Manager) collected(key weak.Pointer[Caller]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// Get returns a copy of c's history, creating an empty one on first use.
func (m *Manager) Get(c *Caller) []model.ChatMessage {
	if c == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entryLocked(c).messages()
}

// Set replaces c's history. Outstanding rounds for c are discarded.
func (m *Manager) Set(c *Caller, msgs []model.ChatMessage) {
	if c == nil {
		return
	}
	slots := make([]*slot, 0, len(msgs))
	for _, msg := range msgs {
		slots = append(slots, &slot{msg: msg, filled: true})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entryLocked(c)
	e.slots = slots
	e.epoch++
}

// Clear empties c's history. Outstanding rounds for c are discarded.
func (m *Manager) Clear(c *Caller) {
	if c == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entryLocked(c)
	e.slots = nil
	e.epoch++
}

// Forget drops c's history now instead of waiting for collection.
func (m *Manager) Forget(c *Caller) {
	if c == nil {
		return
	}
	key := weak.Make(c)
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		e.cleanup.Stop()
		delete(m.entries, key)
	}
}

// Reset drops every history.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, e := range m.entries {
		e.cleanup.Stop()
		delete(m.entries, key)
	}
}

// Len returns the number of callers with a history.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// =============================================================================
// ROUNDS
// =============================================================================

// Pending is the reserved assistant slot of one round.
type Pending struct {
	m     *Manager
	key   weak.Pointer[Caller]
	e     *entry
	s     *slot
	epoch uint64

	once sync.Once
}

// Begin appends user to c's history, reserves the reply slot right after it
// and returns the messages to send: every filled message up to and
// including user.
func (m *Manager) Begin(c *Caller, user model.ChatMessage) (*Pending, []model.ChatMessage) {
	if c == nil {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entryLocked(c)
	e.slots = append(e.slots, &slot{msg: user, filled: true})
	send := e.messages()

	s := &slot{}
	e.slots = append(e.slots, s)
	return &Pending{m: m, key: weak.Make(c), e: e, s: s, epoch: e.epoch}, send
}

// live reports whether p still belongs to its caller's current history.
// m.mu must be held.
func (p *Pending) live() bool {
	return p.m.entries[p.key] == p.e && p.e.epoch == p.epoch
}

// Commit fills the slot with reply. Only the first Commit or Abandon has
// any effect, and neither does anything after the history was replaced,
// cleared or forgotten.
func (p *Pending) Commit(reply model.ChatMessage) {
	if p == nil {
		return
	}
	p.once.Do(func() {
		p.m.mu.Lock()
		defer p.m.mu.Unlock()
		if p.live() {
			p.s.msg = reply
			p.s.filled = true
		}
	})
}

// Abandon drops the slot. The user message of the round stays.
func (p *Pending) Abandon() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		p.m.mu.Lock()
		defer p.m.mu.Unlock()
		if p.live() {
			p.e.slots = slices.DeleteFunc(p.e.slots, func(s *slot) bool { return s == p.s })
		}
	})
}
