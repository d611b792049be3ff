// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

// SchemaVersion tracks the database schema version for migrations.
const SchemaVersion = 1

// Schema creates the transcript tables.
const Schema = `
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS rounds (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    caller_id TEXT NOT NULL,
    caller_label TEXT,
    kind TEXT NOT NULL,          -- chat, async, choose
    provider TEXT NOT NULL,
    model TEXT,
    prompt TEXT NOT NULL,
    reply TEXT,
    error TEXT,
    duration_ms INTEGER NOT NULL,
    created_at INTEGER NOT NULL  -- Unix milliseconds
);

CREATE INDEX IF NOT EXISTS idx_rounds_caller ON rounds(caller_id);
CREATE INDEX IF NOT EXISTS idx_rounds_created ON rounds(created_at);
`

// InitMetadata seeds the metadata table.
const InitMetadata = `
INSERT OR IGNORE INTO metadata (key, value) VALUES ('schema_version', '1');
`
