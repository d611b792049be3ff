// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the wire types and a small probe client for a
// local Ollama server.
//
// Chat requests themselves are dispatched by the provider package, which
// encodes ChatRequest and decodes ChatResponse. This package covers what
// only the local server has: a cheap reachability probe and the list of
// installed models.
//
// # Key Types
//
//   - Client: reachability probe and /api/tags listing
//   - ChatRequest, ChatResponse, Options: /api/chat wire format (stream=false)
//   - ModelInfo: one installed model
//
// # Usage
//
//	client := ollama.NewClient("http://127.0.0.1:11434")
//	if err := client.CheckRunning(ctx); err != nil {
//	    return err
//	}
//	names, err := client.ModelNames(ctx)
package ollama
