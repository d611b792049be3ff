// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/llmbridge/internal/llmerr"
)

// =============================================================================
// STORE
// =============================================================================

// Store is a thread-safe string map. All mutation replaces or edits the map
// under one exclusive lock and bumps Generation.
type Store struct {
	mu         sync.RWMutex
	values     map[string]string
	generation uint64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{values: make(map[string]string)}
}

// NewDefaultStore creates a store seeded with Defaults().
func NewDefaultStore() *Store {
	return &Store{values: Defaults()}
}

// Set stores value under key.
func (s *Store) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[NormalizeKey(key)] = value
	s.generation++
}

// Get returns the value under key and whether it is present.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[NormalizeKey(key)]
	return v, ok
}

// GetOrElse returns the value under key, or def when absent or empty.
func (s *Store) GetOrElse(key, def string) string {
	if v, ok := s.Get(key); ok && v != "" {
		return v
	}
	return def
}

// Remove deletes key.
func (s *Store) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, NormalizeKey(key))
	s.generation++
}

// Clear drops every key.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]string)
	s.generation++
}

// LoadFromMap replaces the whole map with a copy of m.
func (s *Store) LoadFromMap(m map[string]string) {
	next := make(map[string]string, len(m))
	for k, v := range m {
		next[NormalizeKey(k)] = v
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = next
	s.generation++
}

// UpdateFromMap merges m into the current map.
func (s *Store) UpdateFromMap(m map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := maps.Clone(s.values)
	for k, v := range m {
		next[NormalizeKey(k)] = v
	}
	s.values = next
	s.generation++
}

// Snapshot returns a copy of the current map.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

// Clone returns an independent store with the same contents.
func (s *Store) Clone() *Store {
	return &Store{values: s.Snapshot()}
}

// Generation increases on every mutation. Callers cache derived state
// against it.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// ValidateRequired fails with a configuration error naming every key that is
// missing or empty.
func (s *Store) ValidateRequired(keys ...string) error {
	s.mu.RLock()
	var missing []string
	for _, k := range keys {
		if s.values[NormalizeKey(k)] == "" {
			missing = append(missing, NormalizeKey(k))
		}
	}
	s.mu.RUnlock()

	if len(missing) == 0 {
		return nil
	}
	return llmerr.Configuration(
		"missing required configuration: "+strings.Join(missing, ", "),
		"set the keys in your config file or at runtime",
	)
}

// =============================================================================
// TYPED ACCESSORS
// =============================================================================

// Int parses key as an integer. Absent or empty keys yield def.
func (s *Store) Int(key string, def int) (int, error) {
	v, ok := s.Get(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def, llmerr.Configurationf("%s: %q is not an integer", NormalizeKey(key), v)
	}
	return n, nil
}

// Float parses key as a float. Absent or empty keys yield def.
func (s *Store) Float(key string, def float64) (float64, error) {
	v, ok := s.Get(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def, llmerr.Configurationf("%s: %q is not a number", NormalizeKey(key), v)
	}
	return f, nil
}

// Bool parses key as a boolean. Absent or empty keys yield def.
func (s *Store) Bool(key string, def bool) (bool, error) {
	v, ok := s.Get(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return def, llmerr.Configurationf("%s: %q is not a boolean", NormalizeKey(key), v)
}

// Seconds parses key as a positive number of seconds. Absent or empty keys
// yield def.
func (s *Store) Seconds(key string, def time.Duration) (time.Duration, error) {
	v, ok := s.Get(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f <= 0 {
		return def, llmerr.Configurationf("%s: %q is not a positive number of seconds", NormalizeKey(key), v)
	}
	return time.Duration(f * float64(time.Second)), nil
}

// =============================================================================
// SUMMARY
// =============================================================================

// Summary renders every key sorted, one "key = value" per line, with
// credentials masked.
func (s *Store) Summary() string {
	snap := s.Snapshot()
	keys := slices.Sorted(maps.Keys(snap))

	var b strings.Builder
	for _, k := range keys {
		v := snap[k]
		if IsSecretKey(k) {
			v = Mask(v)
		}
		fmt.Fprintf(&b, "%s = %s\n", k, v)
	}
	return b.String()
}

// Mask hides all but the first and last four characters of a secret.
// Short values are hidden entirely.
func Mask(v string) string {
	if v == "" {
		return ""
	}
	r := []rune(v)
	if len(r) <= 12 {
		return "****"
	}
	return string(r[:4]) + "..." + string(r[len(r)-4:])
}
