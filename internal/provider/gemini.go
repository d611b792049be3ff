// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/jeranaias/llmbridge/internal/model"
)

// Gemini talks to the generateContent endpoint. The credential is a query
// parameter, the assistant role is called "model", and system messages go
// into systemInstruction.
type Gemini struct {
	*base
}

// NewGemini creates a Gemini provider.
func NewGemini(opts ...Option) *Gemini {
	return &Gemini{base: newBase(NameGemini, geminiWire{}, buildOptions(opts))}
}

// =============================================================================
// WIRE TYPES
// =============================================================================

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      *geminiContent `json:"content"`
		FinishReason string         `json:"finishReason"`
		Index        int            `json:"index"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
	ModelVersion string `json:"modelVersion"`
	ResponseID   string `json:"responseId"`
}

// =============================================================================
// WIRE FORMAT
// =============================================================================

type geminiWire struct{}

func (geminiWire) buildURL(baseURL, modelID, apiKey string) (string, error) {
	modelID = strings.TrimPrefix(modelID, "models/")
	if modelID == "" {
		return "", errors.New("gemini requires a model name")
	}
	return fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		baseURL, url.PathEscape(modelID), url.QueryEscape(apiKey)), nil
}

func (geminiWire) buildHeaders(http.Header, string) {}

func (geminiWire) buildWireRequest(req model.ChatRequest) (any, error) {
	system, turns := splitSystem(req.Messages)
	if len(turns) == 0 {
		return nil, errors.New("gemini requires at least one user or assistant message")
	}

	contents := make([]geminiContent, 0, len(turns))
	for _, m := range turns {
		role := "user"
		if m.Role == model.RoleAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	contents = mergeTurns(contents,
		func(c geminiContent) string { return c.Role },
		func(dst *geminiContent, src geminiContent) { dst.Parts = append(dst.Parts, src.Parts...) },
	)

	out := geminiRequest{Contents: contents}
	if len(system) > 0 {
		out.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: strings.Join(system, "\n\n")}}}
	}
	if req.Temperature != nil || req.MaxOutputTokens != nil {
		out.GenerationConfig = &geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxOutputTokens,
		}
	}
	return out, nil
}

func (geminiWire) parseWireResponse(body []byte) (*model.ChatResponse, error) {
	var r geminiResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, err
	}
	if len(r.Candidates) == 0 {
		if r.PromptFeedback != nil && r.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("prompt blocked: %s", r.PromptFeedback.BlockReason)
		}
		return nil, errors.New("response has no candidates")
	}

	out := &model.ChatResponse{ID: r.ResponseID, ModelID: r.ModelVersion}
	for _, c := range r.Candidates {
		var text strings.Builder
		if c.Content != nil {
			for _, p := range c.Content.Parts {
				text.WriteString(p.Text)
			}
		}
		out.Choices = append(out.Choices, model.Choice{
			Index:        c.Index,
			Message:      model.NewAssistantMessage(text.String()),
			FinishReason: c.FinishReason,
		})
	}
	return out, nil
}
