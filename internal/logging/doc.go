// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging holds the process-wide zap logger.
//
// The logger starts in production mode at warn level so a host application
// is not flooded; LLMBRIDGE_DEBUG=true (or SetDebug) switches to the
// development encoder at debug level.
//
// # Usage
//
//	logging.L().Info("provider switched", zap.String("provider", "openai"))
//	log := logging.With(zap.String("caller", id))
package logging
