// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import "strings"

// Recognized keys. Provider-specific settings are built with ProviderKey.
const (
	KeyProvider       = "provider"
	KeyModel          = "model"
	KeyTemperature    = "temperature"
	KeyMaxTokens      = "max_tokens"
	KeyTimeoutSeconds = "timeout_seconds"
	KeyDebug          = "debug"
	KeyRateLimitRPM   = "rate_limit_rpm"

	// Legacy keys apply to whichever provider is active.
	KeyAPIKey  = "api_key"
	KeyBaseURL = "base_url"
)

// Suffixes for provider-namespaced keys.
const (
	SuffixAPIKey         = "api_key"
	SuffixBaseURL        = "base_url"
	SuffixTimeoutSeconds = "timeout_seconds"
	SuffixModel          = "model"
)

// ProviderKey returns the namespaced key for provider, e.g. "openai_api_key".
func ProviderKey(provider, suffix string) string {
	return provider + "_" + suffix
}

// NormalizeKey lower-cases and trims a key.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// IsSecretKey reports whether values under key must be masked when printed.
func IsSecretKey(key string) bool {
	k := NormalizeKey(key)
	return strings.Contains(k, "key") || strings.Contains(k, "secret")
}
