// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package choice turns a free-text model reply into one of a fixed set of
// options.
//
// BuildPrompt appends the numbered options to a question. Resolver.Resolve
// maps the reply back, trying in order:
//
//  1. substring match in either direction, ignoring case
//  2. the reply's digits read as a 1-based option number
//  3. a uniformly random option
//
// Resolve always returns one of the options it was given.
package choice
