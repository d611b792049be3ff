// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/jeranaias/llmbridge/internal/model"
)

const (
	anthropicVersion = "2023-06-01"

	// DefaultAnthropicMaxTokens is sent when nothing is configured; the
	// Messages API rejects requests without max_tokens.
	DefaultAnthropicMaxTokens = 1024
)

// Anthropic talks to the Messages API. System messages are hoisted into the
// top-level system field and consecutive same-role turns are merged.
type Anthropic struct {
	*base
}

// NewAnthropic creates an Anthropic provider.
func NewAnthropic(opts ...Option) *Anthropic {
	return &Anthropic{base: newBase(NameAnthropic, anthropicWire{}, buildOptions(opts))}
}

// =============================================================================
// WIRE TYPES
// =============================================================================

type anthropicBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"` // "user" or "assistant"
	Content []anthropicBlock `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	ID         string           `json:"id"`
	Type       string           `json:"type"`
	Role       string           `json:"role"`
	Model      string           `json:"model"`
	Content    []anthropicBlock `json:"content"`
	StopReason string           `json:"stop_reason"`
}

// =============================================================================
// WIRE FORMAT
// =============================================================================

type anthropicWire struct{}

func (anthropicWire) buildURL(baseURL, _, _ string) (string, error) {
	return baseURL + "/v1/messages", nil
}

func (anthropicWire) buildHeaders(h http.Header, apiKey string) {
	h.Set("x-api-key", apiKey)
	h.Set("anthropic-version", anthropicVersion)
}

func (anthropicWire) buildWireRequest(req model.ChatRequest) (any, error) {
	system, turns := splitSystem(req.Messages)
	if len(turns) == 0 {
		return nil, errors.New("anthropic requires at least one user or assistant message")
	}

	msgs := make([]anthropicMessage, 0, len(turns))
	for _, m := range turns {
		msgs = append(msgs, anthropicMessage{
			Role:    string(m.Role),
			Content: []anthropicBlock{{Type: "text", Text: m.Content}},
		})
	}
	msgs = mergeTurns(msgs,
		func(m anthropicMessage) string { return m.Role },
		func(dst *anthropicMessage, src anthropicMessage) { dst.Content = append(dst.Content, src.Content...) },
	)

	maxTokens := DefaultAnthropicMaxTokens
	if req.MaxOutputTokens != nil {
		maxTokens = *req.MaxOutputTokens
	}
	return anthropicRequest{
		Model:       req.ModelID,
		MaxTokens:   maxTokens,
		System:      strings.Join(system, "\n\n"),
		Messages:    msgs,
		Temperature: req.Temperature,
	}, nil
}

func (anthropicWire) parseWireResponse(body []byte) (*model.ChatResponse, error) {
	var r anthropicResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, err
	}
	if r.Content == nil {
		return nil, errors.New("response has no content")
	}

	var text strings.Builder
	for _, b := range r.Content {
		if b.Type == "text" {
			text.WriteString(b.Text)
		}
	}
	return &model.ChatResponse{
		ID:      r.ID,
		ModelID: r.Model,
		Choices: []model.Choice{{
			Message:      model.NewMessage(wireRole(r.Role), text.String()),
			FinishReason: r.StopReason,
		}},
	}, nil
}
