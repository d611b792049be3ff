// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging holds the process-wide zap logger.
package logging

import (
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DebugEnv enables debug logging when set to a truthy value.
const DebugEnv = "LLMBRIDGE_DEBUG"

var logger atomic.Pointer[zap.Logger]

func init() {
	logger.Store(New(Truthy(os.Getenv(DebugEnv))))
}

// New builds a logger. Debug loggers use the development encoder; the
// others write JSON at warn level and above.
func New(debug bool) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if debug {
		l, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		l, err = cfg.Build()
	}
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// L returns the current logger.
func L() *zap.Logger {
	return logger.Load()
}

// With returns a child of the current logger carrying fields.
func With(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}

// SetDebug replaces the current logger with one built for the given mode.
func SetDebug(debug bool) {
	Set(New(debug))
}

// Set installs l as the process logger. A nil logger installs a no-op one.
func Set(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	old := logger.Swap(l)
	if old != nil && old != l {
		_ = old.Sync()
	}
}

// Truthy reports whether s spells an enabled flag (1, true, yes, on).
func Truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
