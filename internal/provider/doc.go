// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider implements the uniform chat contract over four model
// services: OpenAI, Anthropic, Gemini and a local Ollama server.
//
// Every provider embeds the same base, which owns the private config
// snapshot, request dispatch, config defaulting, rate limiting and error
// wrapping. A provider only supplies its wire format: where the URL and
// credential go, how messages are encoded, and how the reply is unwrapped.
// No per-call state lives on a provider, so one instance serves all callers
// concurrently.
//
// # Key Types
//
//   - Provider: the contract every service implements
//   - Name: closed set of provider names
//   - Factory: stateless constructor, by name or from a config.Store
//   - Local: the Ollama provider, with reachability probe and live model list
//
// # Usage
//
//	f := provider.Factory{Registry: registry.Global()}
//	p, err := f.CreateFromConfig(store)
//	if err != nil {
//	    return err
//	}
//	if err := provider.CheckReadiness(ctx, p); err != nil {
//	    return err
//	}
//	reply, err := p.Complete(ctx, []model.ChatMessage{model.NewUserMessage("hi")})
package provider
