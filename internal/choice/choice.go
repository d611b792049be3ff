// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package choice

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// ErrNoChoices is returned when there is nothing to choose from.
var ErrNoChoices = errors.New("choices must not be empty")

// Instruction closes every choice prompt.
const Instruction = "Answer with exactly one of the options above and nothing else."

// Method tells which rung of the ladder produced a result.
type Method int

const (
	MethodMatch Method = iota + 1
	MethodIndex
	MethodRandom
)

func (m Method) String() string {
	switch m {
	case MethodMatch:
		return "match"
	case MethodIndex:
		return "index"
	case MethodRandom:
		return "random"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// BuildPrompt renders prompt, a blank line, the numbered choices and the
// closing instruction.
func BuildPrompt(prompt string, choices []string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(prompt))
	b.WriteString("\n\n")
	for i, c := range choices {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c)
	}
	b.WriteString("\n")
	b.WriteString(Instruction)
	return b.String()
}

// =============================================================================
// RESOLVER
// =============================================================================

// Resolver maps replies onto choices. The zero value uses the global
// random source; it is safe for concurrent use.
type Resolver struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewResolver creates a resolver drawing its fallback from src. A nil src
// uses the global random source.
func NewResolver(src rand.Source) *Resolver {
	if src == nil {
		return &Resolver{}
	}
	return &Resolver{rng: rand.New(src)}
}

// Resolve returns the choice reply refers to and how it was found. It fails
// only when choices is empty.
func (r *Resolver) Resolve(reply string, choices []string) (string, Method, error) {
	if len(choices) == 0 {
		return "", 0, ErrNoChoices
	}
	if c, ok := matchSubstring(reply, choices); ok {
		return c, MethodMatch, nil
	}
	if c, ok := matchIndex(reply, choices); ok {
		return c, MethodIndex, nil
	}
	return choices[r.intN(len(choices))], MethodRandom, nil
}

// Random picks one of choices uniformly.
func (r *Resolver) Random(choices []string) (string, error) {
	if len(choices) == 0 {
		return "", ErrNoChoices
	}
	return choices[r.intN(len(choices))], nil
}

func (r *Resolver) intN(n int) int {
	if r == nil || r.rng == nil {
		return rand.IntN(n)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.IntN(n)
}

// =============================================================================
// LADDER
// =============================================================================

// fold normalizes s for caseless comparison.
func fold(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

// matchSubstring finds the first choice contained in the reply, or
// containing it. Empty strings on either side never match.
func matchSubstring(reply string, choices []string) (string, bool) {
	r := fold(reply)
	if r == "" {
		return "", false
	}
	for _, c := range choices {
		fc := fold(c)
		if fc == "" {
			continue
		}
		if strings.Contains(r, fc) || strings.Contains(fc, r) {
			return c, true
		}
	}
	return "", false
}

// matchIndex reads every ASCII digit in reply as one 1-based number.
func matchIndex(reply string, choices []string) (string, bool) {
	var digits strings.Builder
	for _, ch := range reply {
		if ch >= '0' && ch <= '9' {
			digits.WriteRune(ch)
		}
	}
	if digits.Len() == 0 {
		return "", false
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil || n < 1 || n > len(choices) {
		return "", false
	}
	return choices[n-1], true
}
