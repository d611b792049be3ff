// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine is the runtime wrapper a host talks to.
//
// An Engine owns the configuration store, the active provider, every
// caller's history and the choice resolver. Hosts call its primitives from
// as many goroutines as they like:
//
//   - config: SetProvider, SetAPIKey, SetModel, Set, LoadConfig,
//     LoadModelOverrides, WatchConfig
//   - chat: Chat, ChatAsync with Resolve, Choose
//   - history: History, SetHistory, ClearHistory, Forget, Reset
//   - discovery: Providers, ProvidersAll, ProviderStatus, ProviderHelp,
//     Models, Active, ConfigSummary
//
// Config primitives validate before they change anything; a failed call
// leaves the engine as it was. The provider instance is built lazily from
// the store and rebuilt whenever the store changes. Requests already in
// flight keep the instance they started with.
//
// # Usage
//
//	eng := engine.New()
//	if err := eng.LoadConfig(ctx, "llmbridge.conf"); err != nil {
//	    return err
//	}
//	caller := history.NewCaller("agent")
//	reply, err := eng.Chat(ctx, caller, "hello")
//
//	h, err := eng.ChatAsync(caller, "and again")
//	// ...
//	reply, err = h.Resolve(30 * time.Second)
package engine
