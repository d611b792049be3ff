// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage keeps an optional transcript of completed chat rounds in
// a SQLite database.
//
// Transcripts are a debugging and audit aid for hosts. Caller histories
// stay in memory; nothing here is read back into a conversation.
//
// # Key Types
//
//   - TranscriptStore: SQLite-backed log of rounds
//   - Round: one prompt and its outcome
//
// # Usage
//
//	store, err := storage.Open(storage.DefaultPath())
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//	rounds, err := store.Recent(ctx, 20)
//
// # Storage Location
//
// The default database is ~/.llmbridge/transcripts.db. The pure Go
// modernc.org/sqlite driver is used, so no cgo toolchain is needed.
package storage
