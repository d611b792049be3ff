// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/llmbridge/internal/config"
	"github.com/jeranaias/llmbridge/internal/llmerr"
	"github.com/jeranaias/llmbridge/internal/registry"
)

// ReadinessProbeTimeout bounds the local reachability check.
const ReadinessProbeTimeout = time.Second

// =============================================================================
// READINESS
// =============================================================================

// CheckReadiness reports whether p can be used right now: its config must
// validate (cloud providers need a credential) and a local server must
// answer a probe within about a second.
func CheckReadiness(ctx context.Context, p Provider) error {
	if err := p.ValidateConfig(); err != nil {
		return err
	}
	r, ok := p.(Reachable)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, ReadinessProbeTimeout)
	defer cancel()
	if r.CheckReachable(ctx) {
		return nil
	}

	return llmerr.Configuration(
		"local model server not reachable at "+BaseURL(p),
		"start it with `ollama serve` or set "+p.Name().Key(config.SuffixBaseURL),
	).WithProvider(p.Name().String())
}

// Status is one row of a provider status report.
type Status struct {
	Name   Name
	Ready  bool
	Reason string // empty when ready
	Model  string // configured or default model
}

// =============================================================================
// HELP
// =============================================================================

// Help returns remediation text for the named provider.
func Help(name string) (string, error) {
	n, err := ParseName(name)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", n)
	if n.IsLocal() {
		fmt.Fprintf(&b, "  Runs against a local Ollama server; no API key is needed.\n")
		fmt.Fprintf(&b, "  1. Install Ollama from https://ollama.com and run `ollama serve`.\n")
		fmt.Fprintf(&b, "  2. Pull a model, e.g. `ollama pull %s`.\n", registry.DefaultModel(string(n)))
		fmt.Fprintf(&b, "  3. If the server is not at %s, set %s (or export %s).\n",
			defaultBaseURLs[n], n.Key(config.SuffixBaseURL), config.EnvOllamaHost)
	} else {
		fmt.Fprintf(&b, "  Needs an API key.\n")
		fmt.Fprintf(&b, "  - Config file: %s=<key> (legacy api_key=<key> applies to the active provider)\n", n.Key(config.SuffixAPIKey))
		fmt.Fprintf(&b, "  - Environment: export %s=<key>\n", n.APIKeyEnv())
		fmt.Fprintf(&b, "  - Runtime: set-provider %s, then set-api-key <key>\n", n)
		fmt.Fprintf(&b, "  Endpoint: %s (override with %s)\n", defaultBaseURLs[n], n.Key(config.SuffixBaseURL))
	}
	fmt.Fprintf(&b, "  Default model: %s\n", registry.DefaultModel(string(n)))
	fmt.Fprintf(&b, "  Timeout: %s, or %s / %s in seconds\n",
		defaultTimeout(n), n.Key(config.SuffixTimeoutSeconds), config.KeyTimeoutSeconds)
	return b.String(), nil
}

func defaultTimeout(n Name) time.Duration {
	if n.IsLocal() {
		return DefaultLocalTimeout
	}
	return DefaultTimeout
}
