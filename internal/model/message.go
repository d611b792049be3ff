// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the provider-neutral chat data structures.
package model

import (
	"fmt"
	"strings"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// ParseRole converts a host-supplied role name into a Role.
// Matching ignores case and surrounding whitespace.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q (expected system, user or assistant)", s)
	}
	return r, nil
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// ChatMessage is a single turn in a conversation.
// It is a value type; treat it as immutable once created.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewMessage creates a message with the given role.
func NewMessage(role Role, content string) ChatMessage {
	return ChatMessage{Role: role, Content: content}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) ChatMessage {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) ChatMessage {
	return NewMessage(RoleAssistant, content)
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) ChatMessage {
	return NewMessage(RoleSystem, content)
}

// =============================================================================
// HOST PAIRS
// =============================================================================

// ToPairs converts messages into the host's ordered (role, content) pairs.
func ToPairs(msgs []ChatMessage) [][]string {
	pairs := make([][]string, 0, len(msgs))
	for _, m := range msgs {
		pairs = append(pairs, []string{string(m.Role), m.Content})
	}
	return pairs
}

// FromPairs converts host (role, content) pairs into messages.
// Every pair must have exactly two elements and a known role; the first
// malformed pair aborts the conversion.
func FromPairs(pairs [][]string) ([]ChatMessage, error) {
	msgs := make([]ChatMessage, 0, len(pairs))
	for i, p := range pairs {
		if len(p) != 2 {
			return nil, fmt.Errorf("history entry %d: expected (role, content) pair, got %d elements", i, len(p))
		}
		role, err := ParseRole(p[0])
		if err != nil {
			return nil, fmt.Errorf("history entry %d: %w", i, err)
		}
		msgs = append(msgs, NewMessage(role, p[1]))
	}
	return msgs, nil
}

// CloneMessages returns a copy of msgs that shares no backing array.
func CloneMessages(msgs []ChatMessage) []ChatMessage {
	if msgs == nil {
		return []ChatMessage{}
	}
	out := make([]ChatMessage, len(msgs))
	copy(out, msgs)
	return out
}
