// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llmerr defines the error taxonomy shared by every layer of llmbridge.
package llmerr

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxBodyInError bounds how much of a raw response body is echoed in Error().
const maxBodyInError = 512

// =============================================================================
// ERROR KINDS
// =============================================================================

// Kind categorizes errors for handling.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindNetwork
	KindParse
	KindTimeout
)

// String returns the taxonomy name of the kind.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "ConfigurationError"
	case KindNetwork:
		return "NetworkError"
	case KindParse:
		return "ParseError"
	case KindTimeout:
		return "TimeoutError"
	default:
		return "Error"
	}
}

// Sentinel errors for errors.Is checks. They match any *Error of the same kind.
var (
	ErrConfiguration = &Error{Kind: KindConfiguration, Message: "configuration error"}
	ErrNetwork       = &Error{Kind: KindNetwork, Message: "network error"}
	ErrParse         = &Error{Kind: KindParse, Message: "parse error"}
	ErrTimeout       = &Error{Kind: KindTimeout, Message: "request timed out"}
)

// =============================================================================
// ERROR TYPE
// =============================================================================

// Error is the single error type surfaced by provider calls and engine primitives.
type Error struct {
	Kind     Kind
	Provider string // provider name, when one is involved
	Message  string
	Hint     string // remediation shown to the host user
	Status   int    // HTTP status for network errors, 0 otherwise
	Body     string // raw response body for parse and status errors
	Cause    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Provider != "" {
		b.WriteString(" [")
		b.WriteString(e.Provider)
		b.WriteString("]")
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	if e.Body != "" {
		b.WriteString(" (body: ")
		b.WriteString(truncateBody(e.Body))
		b.WriteString(")")
	}
	if e.Hint != "" {
		b.WriteString(" - ")
		b.WriteString(e.Hint)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports kind equality so the package sentinels match every error of their kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Kind != KindUnknown
}

// =============================================================================
// CONSTRUCTORS
// =============================================================================

// Configuration returns a configuration error with a remediation hint.
func Configuration(message, hint string) *Error {
	return &Error{Kind: KindConfiguration, Message: message, Hint: hint}
}

// Configurationf formats a configuration error without a hint.
func Configurationf(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// Network wraps a transport failure for the named provider.
func Network(provider, message string, cause error) *Error {
	return &Error{Kind: KindNetwork, Provider: provider, Message: message, Cause: cause}
}

// Status reports a non-success HTTP status with the body the server sent.
func Status(provider string, status int, body []byte) *Error {
	return &Error{
		Kind:     KindNetwork,
		Provider: provider,
		Message:  fmt.Sprintf("unexpected status %d", status),
		Status:   status,
		Body:     string(body),
	}
}

// Parse wraps a decoding failure and keeps the raw body for debugging.
func Parse(provider, message string, body []byte, cause error) *Error {
	return &Error{Kind: KindParse, Provider: provider, Message: message, Body: string(body), Cause: cause}
}

// Timeout reports that no answer arrived in time.
func Timeout(provider, message string, cause error) *Error {
	return &Error{Kind: KindTimeout, Provider: provider, Message: message, Cause: cause}
}

// WithProvider returns a copy of e tagged with provider. Nil stays nil.
func (e *Error) WithProvider(provider string) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Provider = provider
	return &cp
}

// truncateBody cuts body to at most maxBodyInError bytes without splitting a
// UTF-8 sequence.
func truncateBody(body string) string {
	if len(body) <= maxBodyInError {
		return body
	}
	n := maxBodyInError
	for n > 0 && !utf8.RuneStart(body[n]) {
		n--
	}
	return body[:n] + "..."
}
