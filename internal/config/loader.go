// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/llmbridge/internal/llmerr"
)

// maxLineBytes bounds a single config line.
const maxLineBytes = 64 * 1024

// =============================================================================
// KEY=VALUE FILES
// =============================================================================

// ParseFile reads a key=value config file.
func ParseFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, llmerr.Configuration(
			fmt.Sprintf("cannot open config file %s: %v", path, err),
			"check the path and file permissions",
		)
	}
	defer f.Close()

	values, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return values, nil
}

// Parse reads UTF-8 key=value lines. Blank lines and lines starting with #
// are ignored. Keys are lower-cased; values are trimmed and never unquoted.
func Parse(r io.Reader) (map[string]string, error) {
	values := make(map[string]string)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLineBytes)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if lineNo == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, llmerr.Configurationf("line %d: expected key=value, got %q", lineNo, line)
		}
		key = NormalizeKey(key)
		if key == "" {
			return nil, llmerr.Configurationf("line %d: empty key", lineNo)
		}
		values[key] = strings.TrimSpace(value)
	}
	if err := sc.Err(); err != nil {
		return nil, llmerr.Configurationf("reading config: %v", err)
	}
	return values, nil
}

// RewriteLegacy moves the unnamespaced api_key and base_url onto the active
// provider's namespaced keys. An explicit namespaced key in values wins over
// the legacy one. With no active provider the map is returned unchanged.
func RewriteLegacy(values map[string]string, active string) map[string]string {
	if active == "" {
		return values
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	for legacy, suffix := range map[string]string{KeyAPIKey: SuffixAPIKey, KeyBaseURL: SuffixBaseURL} {
		v, ok := out[legacy]
		if !ok {
			continue
		}
		delete(out, legacy)
		ns := ProviderKey(active, suffix)
		if _, exists := values[ns]; !exists {
			out[ns] = v
		}
	}
	return out
}

// =============================================================================
// PATH RESOLUTION
// =============================================================================

// ResolvePath finds a config file. It tries the path as given, then the
// project directory joined with the path, then the project directory joined
// with the file name, then the working directory joined with the file name.
// projectDir may name the host's project file or its directory, or be empty.
func ResolvePath(path, projectDir string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", llmerr.Configuration("no config path given", "pass the path of a key=value file")
	}

	candidates := []string{path}
	base := filepath.Base(path)
	if projectDir != "" {
		if info, err := os.Stat(projectDir); err == nil && !info.IsDir() {
			projectDir = filepath.Dir(projectDir)
		}
		if !filepath.IsAbs(path) {
			candidates = append(candidates, filepath.Join(projectDir, path))
		}
		candidates = append(candidates, filepath.Join(projectDir, base))
	}
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, base))
	}

	seen := make(map[string]bool, len(candidates))
	tried := make([]string, 0, len(candidates))
	for _, c := range candidates {
		c = filepath.Clean(c)
		if seen[c] {
			continue
		}
		seen[c] = true
		tried = append(tried, c)
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", llmerr.Configuration(
		fmt.Sprintf("file %q not found (tried: %s)", path, strings.Join(tried, ", ")),
		"give an absolute path or place the file next to your project",
	)
}
