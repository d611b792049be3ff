// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the provider-neutral chat data structures.
//
// Every provider translates these types to and from its own wire format, so
// callers of the engine never see a provider-specific shape.
//
// # Key Types
//
//   - Role: Message role enumeration (system, user, assistant)
//   - ChatMessage: Immutable role + content pair
//   - ChatRequest: Model, ordered messages and optional sampling limits
//   - ChatResponse: Parsed reply with one or more choices
//
// # Usage
//
// Build a request from a history and a new user turn:
//
//	msgs := append(history, model.NewUserMessage("Hello!"))
//	req := model.ChatRequest{ModelID: "gpt-4o-mini", Messages: msgs}
//	if err := req.Validate(); err != nil {
//	    return err
//	}
//
// Convert to and from the host's (role, content) pairs:
//
//	pairs := model.ToPairs(msgs)
//	msgs, err := model.FromPairs(pairs)
package model
