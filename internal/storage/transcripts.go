// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrDatabase = errors.New("transcript database error")
	ErrClosed   = errors.New("transcript store is closed")
)

// =============================================================================
// ROUND
// =============================================================================

// Kind names the primitive that produced a round.
type Kind string

const (
	KindChat   Kind = "chat"
	KindAsync  Kind = "async"
	KindChoose Kind = "choose"
)

// Round is one prompt sent on behalf of a caller and its outcome. Exactly
// one of Reply and Error is normally set.
type Round struct {
	ID          int64
	CallerID    string
	CallerLabel string
	Kind        Kind
	Provider    string
	Model       string
	Prompt      string
	Reply       string
	Error       string
	Duration    time.Duration
	CreatedAt   time.Time
}

// Failed reports whether the round ended in an error.
func (r Round) Failed() bool {
	return r.Error != ""
}

// =============================================================================
// TRANSCRIPT STORE
// =============================================================================

// TranscriptStore records rounds in SQLite. It is safe for concurrent use.
type TranscriptStore struct {
	db   *sql.DB
	path string

	// MaxRounds bounds the table; older rounds are pruned on Record
	// (0 = unlimited).
	MaxRounds int
}

// DefaultMaxRounds is the retention applied by Open.
const DefaultMaxRounds = 10000

// DefaultPath returns ~/.llmbridge/transcripts.db, or a path in the working
// directory when the home directory is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".llmbridge", "transcripts.db")
	}
	return filepath.Join(home, ".llmbridge", "transcripts.db")
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory database.
func Open(path string) (*TranscriptStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %v", ErrDatabase, path, err)
	}

	// SQLite allows one writer; one connection also keeps :memory: databases
	// from splitting per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: failed to set pragma: %v", ErrDatabase, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to initialize schema: %v", ErrDatabase, err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to initialize metadata: %v", ErrDatabase, err)
	}

	return &TranscriptStore{db: db, path: path, MaxRounds: DefaultMaxRounds}, nil
}

// Path returns the database path given to Open.
func (s *TranscriptStore) Path() string {
	return s.path
}

// Close closes the database.
func (s *TranscriptStore) Close() error {
	return s.db.Close()
}

// SchemaVersion returns the version recorded in the database.
func (s *TranscriptStore) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, "SELECT CAST(value AS INTEGER) FROM metadata WHERE key = 'schema_version'").Scan(&v)
	if err != nil {
		return 0, s.wrap(err)
	}
	return v, nil
}

// =============================================================================
// WRITE OPERATIONS
// =============================================================================

// Record stores r and returns its ID. A zero CreatedAt is set to now.
func (s *TranscriptStore) Record(ctx context.Context, r Round) (int64, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if r.Kind == "" {
		r.Kind = KindChat
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO rounds (caller_id, caller_label, kind, provider, model, prompt, reply, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.CallerID, r.CallerLabel, string(r.Kind), r.Provider, r.Model,
		r.Prompt, r.Reply, r.Error, r.Duration.Milliseconds(), r.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return 0, s.wrap(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, s.wrap(err)
	}

	if s.MaxRounds > 0 {
		if _, err := s.Prune(ctx, s.MaxRounds); err != nil {
			return id, err
		}
	}
	return id, nil
}

// Prune keeps the newest keep rounds and deletes the rest, returning how
// many were deleted.
func (s *TranscriptStore) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM rounds WHERE id NOT IN (
			SELECT id FROM rounds ORDER BY id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, s.wrap(err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteCaller removes every round of one caller.
func (s *TranscriptStore) DeleteCaller(ctx context.Context, callerID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM rounds WHERE caller_id = ?", callerID)
	if err != nil {
		return 0, s.wrap(err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

const selectRounds = `
	SELECT id, caller_id, COALESCE(caller_label, ''), kind, provider, COALESCE(model, ''),
	       prompt, COALESCE(reply, ''), COALESCE(error, ''), duration_ms, created_at
	FROM rounds`

// Recent returns the newest rounds first.
func (s *TranscriptStore) Recent(ctx context.Context, limit int) ([]Round, error) {
	return s.query(ctx, selectRounds+" ORDER BY id DESC LIMIT ?", normalizeLimit(limit))
}

// ForCaller returns one caller's rounds, oldest first.
func (s *TranscriptStore) ForCaller(ctx context.Context, callerID string, limit int) ([]Round, error) {
	return s.query(ctx, selectRounds+" WHERE caller_id = ? ORDER BY id ASC LIMIT ?", callerID, normalizeLimit(limit))
}

// Search returns rounds whose prompt or reply contains text, newest first.
// Matching ignores ASCII case.
func (s *TranscriptStore) Search(ctx context.Context, text string, limit int) ([]Round, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	pattern := "%" + escapeLike(text) + "%"
	return s.query(ctx,
		selectRounds+` WHERE prompt LIKE ? ESCAPE '\' OR reply LIKE ? ESCAPE '\' ORDER BY id DESC LIMIT ?`,
		pattern, pattern, normalizeLimit(limit))
}

// Count returns the number of stored rounds.
func (s *TranscriptStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM rounds").Scan(&n); err != nil {
		return 0, s.wrap(err)
	}
	return n, nil
}

func (s *TranscriptStore) query(ctx context.Context, q string, args ...any) ([]Round, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, s.wrap(err)
	}
	defer rows.Close()

	var out []Round
	for rows.Next() {
		var (
			r          Round
			kind       string
			durationMs int64
			createdMs  int64
		)
		if err := rows.Scan(&r.ID, &r.CallerID, &r.CallerLabel, &kind, &r.Provider, &r.Model,
			&r.Prompt, &r.Reply, &r.Error, &durationMs, &createdMs); err != nil {
			return nil, s.wrap(err)
		}
		r.Kind = Kind(kind)
		r.Duration = time.Duration(durationMs) * time.Millisecond
		r.CreatedAt = time.UnixMilli(createdMs)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap(err)
	}
	return out, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *TranscriptStore) wrap(err error) error {
	if errors.Is(err, sql.ErrConnDone) || strings.Contains(err.Error(), "database is closed") {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return fmt.Errorf("%w: %v", ErrDatabase, err)
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 1000
	}
	return limit
}

// escapeLike escapes LIKE wildcards so text matches literally.
func escapeLike(text string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(text)
}
