// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides the runtime configuration store for llmbridge.
//
// Configuration is a flat string map. The active provider lives under
// "provider"; everything provider-specific is namespaced by provider name
// ("openai_api_key", "ollama_base_url") so several providers can be
// configured side by side.
//
// # Precedence
//
// Highest to lowest:
//   - a single key set at runtime (Store.Set)
//   - a bulk load from a key=value file (Store.LoadFromMap of Overlay(Defaults(), file))
//   - built-in defaults and environment overrides (Defaults)
//
// A bulk load rebuilds the whole map, so runtime sets made before it vanish.
//
// # Key Types
//
//   - Store: thread-safe key/value map with typed accessors and a masked Summary
//   - Watcher: fsnotify-based reload trigger for a config file
//
// # Usage
//
//	store := config.NewDefaultStore()
//	values, err := config.ParseFile(path)
//	store.LoadFromMap(config.Overlay(config.Defaults(), values))
package config
