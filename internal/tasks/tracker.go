// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// DefaultTrackerSize bounds a Tracker when no size is given.
const DefaultTrackerSize = 64

// =============================================================================
// TRACKER
// =============================================================================

// Tracker hands out small sequential numbers for outstanding items so an
// interactive user can refer to them. Numbers are never reused.
type Tracker[T any] struct {
	mu      sync.Mutex
	next    int
	items   map[int]T
	maxSize int
}

// NewTracker creates a tracker holding at most maxSize items
// (DefaultTrackerSize when maxSize <= 0).
func NewTracker[T any](maxSize int) *Tracker[T] {
	if maxSize <= 0 {
		maxSize = DefaultTrackerSize
	}
	return &Tracker[T]{next: 1, items: make(map[int]T), maxSize: maxSize}
}

// Add stores item and returns its number. It fails when the tracker is full.
func (q *Tracker[T]) Add(item T) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.maxSize {
		return 0, fmt.Errorf("too many outstanding items (max %d)", q.maxSize)
	}
	n := q.next
	q.next++
	q.items[n] = item
	return n, nil
}

// Get returns item n without removing it.
func (q *Tracker[T]) Get(n int) (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[n]
	return item, ok
}

// Take removes and returns item n.
func (q *Tracker[T]) Take(n int) (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[n]
	delete(q.items, n)
	return item, ok
}

// Numbers returns the outstanding numbers in ascending order.
func (q *Tracker[T]) Numbers() []int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Sorted(maps.Keys(q.items))
}

// Len returns the number of outstanding items.
func (q *Tracker[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
