// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llmerr defines the error taxonomy shared by every layer of llmbridge.
//
// # Kinds
//
//   - Configuration: missing or invalid provider, credential, model or file
//   - Network: connection failure or non-success HTTP status
//   - Parse: unexpected response shape (the raw body is kept)
//   - Timeout: no answer within the allowed time
//
// Callers branch with errors.Is against the sentinels:
//
//	if errors.Is(err, llmerr.ErrTimeout) {
//	    // never heard back
//	}
package llmerr
