// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// args.go - Argument parsing shared by the program flags and slash commands.

package cli

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// ARG PARSER
// =============================================================================

// ArgParser splits raw arguments into flags and positional arguments.
// It accepts --flag value, --flag=value, -f value and bare boolean flags.
type ArgParser struct {
	flags      map[string]string
	boolFlags  map[string]bool
	positional []string
	raw        []string
}

// NewArgParser parses raw. A flag followed by a non-flag argument takes it
// as its value unless it is named in boolNames; use --flag=value to be
// explicit.
//
//	p := NewArgParser([]string{"search", "timeout", "--limit", "5", "--json"})
//	p.Positional(0)    // "search"
//	p.Flag("limit")    // "5"
//	p.BoolFlag("json") // true
func NewArgParser(raw []string, boolNames ...string) *ArgParser {
	p := &ArgParser{
		flags:     make(map[string]string),
		boolFlags: make(map[string]bool),
		raw:       raw,
	}

	for i := 0; i < len(raw); i++ {
		arg := raw[i]
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			p.positional = append(p.positional, arg)
			continue
		}

		if name, value, ok := strings.Cut(arg, "="); ok {
			name = strings.TrimLeft(name, "-")
			if value == "true" || value == "false" {
				p.boolFlags[name] = value == "true"
			} else {
				p.flags[name] = value
			}
			continue
		}

		name := strings.TrimLeft(arg, "-")
		if i+1 < len(raw) && !strings.HasPrefix(raw[i+1], "-") && !slices.Contains(boolNames, name) {
			p.flags[name] = raw[i+1]
			i++
		} else {
			p.boolFlags[name] = true
		}
	}
	return p
}

// Flag returns the value of a string flag, or "" when absent.
func (p *ArgParser) Flag(name string) string {
	return p.flags[strings.TrimLeft(name, "-")]
}

// BoolFlag reports whether a boolean flag was given.
func (p *ArgParser) BoolFlag(name string) bool {
	return p.boolFlags[strings.TrimLeft(name, "-")]
}

// HasFlag reports whether the flag exists in either form.
func (p *ArgParser) HasFlag(name string) bool {
	name = strings.TrimLeft(name, "-")
	_, s := p.flags[name]
	_, b := p.boolFlags[name]
	return s || b
}

// FlagIntOrDefault returns the flag as an integer, or def when absent or
// malformed.
func (p *ArgParser) FlagIntOrDefault(name string, def int) int {
	v, err := strconv.Atoi(p.Flag(name))
	if err != nil {
		return def
	}
	return v
}

// Positional returns positional argument i, or "" when out of range.
func (p *ArgParser) Positional(i int) string {
	if i < 0 || i >= len(p.positional) {
		return ""
	}
	return p.positional[i]
}

// PositionalFrom returns the positional arguments from index i on.
func (p *ArgParser) PositionalFrom(i int) []string {
	if i < 0 || i >= len(p.positional) {
		return nil
	}
	return p.positional[i:]
}

// PositionalCount returns the number of positional arguments.
func (p *ArgParser) PositionalCount() int {
	return len(p.positional)
}

// =============================================================================
// PROGRAM ARGUMENTS
// =============================================================================

// Args holds the parsed command line of the llmbridge binary.
type Args struct {
	ConfigPath  string // --config: key=value file loaded at startup
	ProjectDir  string // --project-dir: base for relative config paths
	ModelsFile  string // --models-file: TOML or YAML model overrides
	Provider    string // --provider: provider selected at startup
	Watch       bool   // --watch: reload --config when it changes
	Transcripts string // --transcripts or --transcripts=path: record rounds to SQLite
	Debug       bool   // --debug
	Timeout     time.Duration
	Prompt      string // positional words: one-shot chat, then exit
	Help        bool
	Version     bool
}

// DefaultResolveTimeout bounds /resolve when no timeout is given.
const DefaultResolveTimeout = 60 * time.Second

// ParseArgs parses the program arguments (without the program name).
// transcriptsDefault is used when --transcripts is given without a path.
func ParseArgs(raw []string, transcriptsDefault string) (Args, error) {
	p := NewArgParser(raw, "watch", "debug", "help", "h", "version", "transcripts")
	a := Args{
		ConfigPath: p.Flag("config"),
		ProjectDir: p.Flag("project-dir"),
		ModelsFile: p.Flag("models-file"),
		Provider:   p.Flag("provider"),
		Watch:      p.BoolFlag("watch"),
		Debug:      p.BoolFlag("debug"),
		Help:       p.BoolFlag("help") || p.BoolFlag("h"),
		Version:    p.BoolFlag("version"),
		Timeout:    DefaultResolveTimeout,
		Prompt:     strings.Join(p.PositionalFrom(0), " "),
	}

	if p.HasFlag("transcripts") {
		a.Transcripts = p.Flag("transcripts")
		if a.Transcripts == "" {
			a.Transcripts = transcriptsDefault
		}
	}

	if v := p.Flag("timeout"); v != "" {
		d, err := ParseSeconds(v)
		if err != nil {
			return Args{}, fmt.Errorf("--timeout: %w", err)
		}
		a.Timeout = d
	}

	if a.Watch && a.ConfigPath == "" {
		return Args{}, fmt.Errorf("--watch needs --config")
	}
	return a, nil
}

// ParseSeconds parses a positive number of seconds, fractions allowed.
func ParseSeconds(s string) (time.Duration, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number of seconds %q", s)
	}
	if f <= 0 {
		return 0, fmt.Errorf("seconds must be positive, got %s", s)
	}
	return time.Duration(f * float64(time.Second)), nil
}

// Usage is printed by --help.
const Usage = `Usage: llmbridge [flags] [prompt...]

With a prompt, sends it once and prints the reply. Otherwise starts the
interactive session.

Flags:
  --config PATH         Load a key=value config file at startup
  --project-dir DIR     Resolve relative config paths against DIR
  --models-file PATH    Load TOML or YAML model overrides
  --provider NAME       Select a provider (openai, anthropic, gemini, local)
  --watch               Reload --config whenever it changes
  --transcripts[=PATH]  Record every round to a SQLite transcript store
  --timeout SECONDS     Default timeout for /resolve (default 60)
  --debug               Verbose logging
  --version             Print the version
  --help                Show this help
`
