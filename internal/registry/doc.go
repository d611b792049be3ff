// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package registry holds the per-provider model allow-list.
//
// The bundled list ships inside the binary (models.toml). A user override
// file (TOML, JSON or YAML) may replace the list of any provider it names;
// providers it does not name keep their bundled list. Default models are
// fixed per provider and do not follow overrides.
//
// # Key Types
//
//   - Registry: bundled list plus one override slot behind a single lock
//   - ProviderModels: one provider's list and whether it came from an override
//
// # Usage
//
//	reg := registry.New()
//	if err := reg.LoadOverride("models.yaml"); err != nil {
//	    return err
//	}
//	ok := reg.IsValidModel("ollama", "llama3.2")
package registry
