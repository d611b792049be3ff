// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the llmbridge command line: a one-shot prompt mode
// and an interactive session that exposes every engine primitive as a slash
// command.
//
// # Key Types
//
//   - Args: parsed program flags
//   - Session: one interactive run, with its callers and unresolved rounds
//   - LineReader: line input; LineEditor on a terminal, PlainReader otherwise
//
// # Usage
//
//	err := cli.Run(ctx, os.Args[1:], cli.Streams{})
//
// # Commands
//
// Bare text is a blocking chat turn for the current caller. /async starts a
// round without waiting and prints its number; /resolve collects it.
// /caller switches between independent conversations. /status checks every
// provider concurrently. /transcripts browses the SQLite transcript store
// when the session was started with --transcripts.
package cli
