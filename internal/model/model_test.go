// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// =============================================================================
// ROLE TESTS
// =============================================================================

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{in: "user", want: RoleUser},
		{in: " Assistant ", want: RoleAssistant},
		{in: "SYSTEM", want: RoleSystem},
		{in: "tool", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseRole(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

// =============================================================================
// PAIR CONVERSION TESTS
// =============================================================================

func TestFromPairs_Valid(t *testing.T) {
	msgs, err := FromPairs([][]string{
		{"system", "be brief"},
		{"user", "hi"},
		{"assistant", "hello"},
	})
	require.NoError(t, err)
	require.Equal(t, []ChatMessage{
		NewSystemMessage("be brief"),
		NewUserMessage("hi"),
		NewAssistantMessage("hello"),
	}, msgs)
	require.Equal(t, [][]string{{"system", "be brief"}, {"user", "hi"}, {"assistant", "hello"}}, ToPairs(msgs))
}

func TestFromPairs_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		pairs [][]string
	}{
		{name: "too short", pairs: [][]string{{"user"}}},
		{name: "too long", pairs: [][]string{{"user", "a", "b"}}},
		{name: "unknown role", pairs: [][]string{{"user", "ok"}, {"robot", "beep"}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msgs, err := FromPairs(tc.pairs)
			require.Error(t, err)
			require.Nil(t, msgs)
		})
	}
}

func TestCloneMessages_Independent(t *testing.T) {
	orig := []ChatMessage{NewUserMessage("a")}
	cp := CloneMessages(orig)
	cp[0] = NewUserMessage("b")
	require.Equal(t, "a", orig[0].Content)
	require.NotNil(t, CloneMessages(nil))
}

// =============================================================================
// REQUEST / RESPONSE TESTS
// =============================================================================

func TestChatRequest_Validate(t *testing.T) {
	hot := 2.5
	ok := 0.7
	zero := 0

	tests := []struct {
		name    string
		req     ChatRequest
		wantErr bool
	}{
		{name: "valid", req: ChatRequest{ModelID: "m", Messages: []ChatMessage{NewUserMessage("x")}, Temperature: &ok}},
		{name: "no model", req: ChatRequest{Messages: []ChatMessage{NewUserMessage("x")}}, wantErr: true},
		{name: "no messages", req: ChatRequest{ModelID: "m"}, wantErr: true},
		{name: "temperature too high", req: ChatRequest{ModelID: "m", Messages: []ChatMessage{NewUserMessage("x")}, Temperature: &hot}, wantErr: true},
		{name: "zero max tokens", req: ChatRequest{ModelID: "m", Messages: []ChatMessage{NewUserMessage("x")}, MaxOutputTokens: &zero}, wantErr: true},
		{name: "bad role", req: ChatRequest{ModelID: "m", Messages: []ChatMessage{{Role: "tool", Content: "x"}}}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestChatResponse_FirstMessage(t *testing.T) {
	var nilResp *ChatResponse
	_, ok := nilResp.FirstMessage()
	require.False(t, ok)

	resp := &ChatResponse{Choices: []Choice{
		{Index: 0, Message: NewAssistantMessage("first"), FinishReason: "stop"},
		{Index: 1, Message: NewAssistantMessage("second")},
	}}
	msg, ok := resp.FirstMessage()
	require.True(t, ok)
	require.Equal(t, "first", msg.Content)
	require.Equal(t, "first", resp.GetContent())
	require.Equal(t, "stop", resp.FinishReason())
}
