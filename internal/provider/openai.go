// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jeranaias/llmbridge/internal/model"
)

// OpenAI talks to the Chat Completions API. The credential travels as a
// bearer token and messages go over as a flat array.
type OpenAI struct {
	*base
}

// NewOpenAI creates an OpenAI provider.
func NewOpenAI(opts ...Option) *OpenAI {
	return &OpenAI{base: newBase(NameOpenAI, openAIWire{}, buildOptions(opts))}
}

// =============================================================================
// WIRE TYPES
// =============================================================================

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int           `json:"index"`
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
}

// =============================================================================
// WIRE FORMAT
// =============================================================================

type openAIWire struct{}

func (openAIWire) buildURL(baseURL, _, _ string) (string, error) {
	return baseURL + "/chat/completions", nil
}

func (openAIWire) buildHeaders(h http.Header, apiKey string) {
	h.Set("Authorization", "Bearer "+apiKey)
}

func (openAIWire) buildWireRequest(req model.ChatRequest) (any, error) {
	msgs := make([]openAIMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openAIMessage{Role: string(m.Role), Content: m.Content})
	}
	return openAIRequest{
		Model:       req.ModelID,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxOutputTokens,
	}, nil
}

func (openAIWire) parseWireResponse(body []byte) (*model.ChatResponse, error) {
	var r openAIResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, err
	}
	out := &model.ChatResponse{ID: r.ID, ModelID: r.Model}
	if r.Created > 0 {
		out.CreatedAt = time.Unix(r.Created, 0).UTC()
	}
	for _, c := range r.Choices {
		out.Choices = append(out.Choices, model.Choice{
			Index:        c.Index,
			Message:      model.NewMessage(wireRole(c.Message.Role), c.Message.Content),
			FinishReason: c.FinishReason,
		})
	}
	return out, nil
}

// wireRole maps a role string from a response onto model roles. Anything
// unrecognized is treated as the assistant speaking.
func wireRole(s string) model.Role {
	r, err := model.ParseRole(s)
	if err != nil {
		return model.RoleAssistant
	}
	return r
}
