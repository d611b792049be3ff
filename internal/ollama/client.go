// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/llmbridge/internal/llmerr"
)

const (
	// ProviderName tags errors raised by this package.
	ProviderName = "ollama"

	// DefaultBaseURL uses an explicit IPv4 address to avoid IPv6 resolution
	// surprises with "localhost".
	DefaultBaseURL = "http://127.0.0.1:11434"

	// DefaultProbeTimeout bounds CheckRunning.
	DefaultProbeTimeout = time.Second

	// DefaultListTimeout bounds ListModels.
	DefaultListTimeout = 5 * time.Second

	// maxResponseSize bounds how much of a response body is read.
	maxResponseSize = 4 << 20
)

// =============================================================================
// CLIENT
// =============================================================================

// Client probes a local Ollama server. It is safe for concurrent use.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	probeTimeout time.Duration
	listTimeout  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithProbeTimeout sets the CheckRunning bound.
func WithProbeTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.probeTimeout = d
		}
	}
}

// WithListTimeout sets the ListModels bound.
func WithListTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.listTimeout = d
		}
	}
}

// NewClient creates a client for baseURL. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   http.DefaultClient,
		probeTimeout: DefaultProbeTimeout,
		listTimeout:  DefaultListTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the server URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// CheckRunning verifies that the server answers on its base URL within the
// probe timeout.
func (c *Client) CheckRunning(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return llmerr.Configuration(
			fmt.Sprintf("invalid Ollama URL %q: %v", c.baseURL, err),
			"set ollama_base_url to something like "+DefaultBaseURL,
		).WithProvider(ProviderName)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.transportError("server not reachable at "+c.baseURL, err)
	}
	drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return llmerr.Status(ProviderName, resp.StatusCode, nil)
	}
	return nil
}

// =============================================================================
// MODEL OPERATIONS
// =============================================================================

// ListModels retrieves every installed model from /api/tags.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.listTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, llmerr.Network(ProviderName, "failed to create request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError("failed to list models", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, c.transportError("failed to read model list", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, llmerr.Status(ProviderName, resp.StatusCode, body)
	}

	var result ListModelsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, llmerr.Parse(ProviderName, "failed to decode model list", body, err)
	}
	return result.Models, nil
}

// ModelNames returns the names of every installed model in server order.
func (c *Client) ModelNames(ctx context.Context) ([]string, error) {
	models, err := c.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(models))
	for _, m := range models {
		names = append(names, m.Name)
	}
	return names, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (c *Client) transportError(message string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return llmerr.Timeout(ProviderName, message, err)
	}
	return llmerr.Network(ProviderName, message, err)
}

// drainAndClose lets the transport reuse the connection.
func drainAndClose(r io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, maxResponseSize))
	r.Close()
}

// BaseModelName strips a ":tag" suffix, so "llama3.2:latest" becomes "llama3.2".
func BaseModelName(name string) string {
	if i := strings.LastIndexByte(name, ':'); i > 0 {
		return name[:i]
	}
	return name
}
