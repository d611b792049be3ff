// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Shared styling for the llmbridge REPL.
//
// Colors are disabled for non-TTY output, when NO_COLOR is set, and forced
// on by FORCE_COLOR.

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// TitleStyle is used for banners and section titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")) // Cyan

	// PromptStyle renders the input prompt.
	PromptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	// LabelStyle is used for field labels.
	LabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")). // Light gray
			Width(14)

	// ValueStyle is used for regular values.
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	// ReplyStyle renders assistant replies.
	ReplyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")). // Green
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")). // Red
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	// DimStyle is used for hints and secondary information.
	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))

	// CommandStyle highlights slash commands in help output.
	CommandStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82"))

	SeparatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// =============================================================================
// HELPERS
// =============================================================================

// Paint renders text with style when colors are enabled and returns it
// unchanged otherwise.
func Paint(style lipgloss.Style, text string) string {
	if !ColorsEnabled() {
		return text
	}
	return style.Render(text)
}

// RenderSeparator renders a horizontal rule adapted to the terminal width,
// capped at 80 columns.
func RenderSeparator() string {
	w := GetTerminalWidth() - 4
	if w > 80 {
		w = 80
	}
	return Paint(SeparatorStyle, strings.Repeat("-", w))
}

// RenderStatus renders a readiness marker.
func RenderStatus(ok bool) string {
	if ok {
		return Paint(SuccessStyle, "[OK]  ")
	}
	return Paint(ErrorStyle, "[FAIL]")
}

// RenderLabel renders a fixed-width field label.
func RenderLabel(label string) string {
	if !ColorsEnabled() {
		return PadRight(label, 14)
	}
	return LabelStyle.Render(label)
}
