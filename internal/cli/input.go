// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/jeranaias/llmbridge/internal/fsutil"
)

// ErrAborted is returned by a LineReader when the user presses Ctrl+C at
// the prompt.
var ErrAborted = errors.New("input aborted")

// LineReader reads one line of user input at a time. It returns io.EOF at
// the end of input.
type LineReader interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

// =============================================================================
// LINE EDITOR
// =============================================================================

// LineEditor provides line editing and persistent input history on a
// terminal.
type LineEditor struct {
	line        *liner.State
	historyFile string
}

// DefaultHistoryFile returns ~/.llmbridge/input_history.
func DefaultHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "llmbridge_input_history")
	}
	return filepath.Join(home, ".llmbridge", "input_history")
}

// NewLineEditor creates an editor and loads the history in historyFile.
// An empty historyFile disables persistence.
func NewLineEditor(historyFile string, completions []string) *LineEditor {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(s string) []string {
		if !strings.HasPrefix(s, "/") {
			return nil
		}
		var out []string
		for _, c := range completions {
			if strings.HasPrefix(c, s) {
				out = append(out, c)
			}
		}
		return out
	})

	e := &LineEditor{line: line, historyFile: historyFile}
	e.LoadHistory()
	return e
}

// LoadHistory loads input history from the history file, if any.
func (e *LineEditor) LoadHistory() {
	if e.historyFile == "" {
		return
	}
	if f, err := os.Open(e.historyFile); err == nil {
		_, _ = e.line.ReadHistory(f)
		f.Close()
	}
}

// ReadLine prompts for one line. Non-empty input is added to the history.
func (e *LineEditor) ReadLine(prompt string) (string, error) {
	input, err := e.line.Prompt(prompt)
	if err != nil {
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", ErrAborted
		}
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		e.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory replaces the history file, readable by the owner only.
func (e *LineEditor) SaveHistory() error {
	if e.historyFile == "" {
		return nil
	}
	var buf bytes.Buffer
	if _, err := e.line.WriteHistory(&buf); err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(e.historyFile, buf.Bytes(), 0o600, 0o700)
}

// Close saves the history and restores the terminal.
func (e *LineEditor) Close() error {
	saveErr := e.SaveHistory()
	if err := e.line.Close(); err != nil {
		return err
	}
	return saveErr
}

// =============================================================================
// PLAIN READER
// =============================================================================

// PlainReader reads lines from a non-terminal input such as a pipe. The
// prompt is written to out only when out is not nil.
type PlainReader struct {
	scanner *bufio.Scanner
	out     io.Writer
}

// NewPlainReader reads lines from r.
func NewPlainReader(r io.Reader, out io.Writer) *PlainReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &PlainReader{scanner: s, out: out}
}

// ReadLine returns the next line without its terminator.
func (p *PlainReader) ReadLine(prompt string) (string, error) {
	if p.out != nil {
		_, _ = io.WriteString(p.out, prompt)
	}
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return p.scanner.Text(), nil
}

// Close is a no-op.
func (p *PlainReader) Close() error {
	return nil
}
