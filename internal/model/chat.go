// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the provider-neutral chat data structures.
package model

import (
	"errors"
	"fmt"
	"time"
)

// Temperature bounds accepted by every provider.
const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
)

// =============================================================================
// REQUEST
// =============================================================================

// ChatRequest is built fresh for every call from a caller's history plus the
// new user turn. Optional fields left nil fall back to provider defaults.
type ChatRequest struct {
	ModelID         string        `json:"model"`
	Messages        []ChatMessage `json:"messages"`
	MaxOutputTokens *int          `json:"max_output_tokens,omitempty"`
	Temperature     *float64      `json:"temperature,omitempty"`
}

// Validate checks the request before it is handed to a wire format.
func (r ChatRequest) Validate() error {
	if r.ModelID == "" {
		return errors.New("chat request has no model")
	}
	if len(r.Messages) == 0 {
		return errors.New("chat request has no messages")
	}
	for i, m := range r.Messages {
		if !m.Role.Valid() {
			return fmt.Errorf("message %d has unknown role %q", i, m.Role)
		}
	}
	if r.Temperature != nil && (*r.Temperature < MinTemperature || *r.Temperature > MaxTemperature) {
		return fmt.Errorf("temperature %.2f outside [%.0f, %.0f]", *r.Temperature, MinTemperature, MaxTemperature)
	}
	if r.MaxOutputTokens != nil && *r.MaxOutputTokens <= 0 {
		return fmt.Errorf("max output tokens must be positive, got %d", *r.MaxOutputTokens)
	}
	return nil
}

// =============================================================================
// RESPONSE
// =============================================================================

// Choice is one candidate reply. Only the first is consumed by the engine;
// the rest are kept for callers that want them.
type Choice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatResponse is the normalized result of a chat call.
type ChatResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ModelID   string    `json:"model"`
	Choices   []Choice  `json:"choices"`
}

// FirstMessage returns the message of the first choice, if any.
func (r *ChatResponse) FirstMessage() (ChatMessage, bool) {
	if r == nil || len(r.Choices) == 0 {
		return ChatMessage{}, false
	}
	return r.Choices[0].Message, true
}

// GetContent returns the content of the first choice, or empty string if none.
func (r *ChatResponse) GetContent() string {
	msg, _ := r.FirstMessage()
	return msg.Content
}

// FinishReason returns the finish reason of the first choice.
func (r *ChatResponse) FinishReason() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].FinishReason
}
