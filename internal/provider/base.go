// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeranaias/llmbridge/internal/config"
	"github.com/jeranaias/llmbridge/internal/llmerr"
	"github.com/jeranaias/llmbridge/internal/logging"
	"github.com/jeranaias/llmbridge/internal/model"
	"github.com/jeranaias/llmbridge/internal/registry"
)

const (
	// DefaultTimeout bounds a cloud request when nothing is configured.
	DefaultTimeout = 30 * time.Second

	// DefaultLocalTimeout is longer because local servers load models on
	// first use.
	DefaultLocalTimeout = 120 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	MaxResponseSize = 10 * 1024 * 1024

	userAgent = "llmbridge/0.1"
)

// sharedHTTPClient pools connections across every provider instance.
// Deadlines come from the request context, not the client.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
	},
}

var defaultBaseURLs = map[Name]string{
	NameOpenAI:    config.DefaultOpenAIBaseURL,
	NameAnthropic: config.DefaultAnthropicBaseURL,
	NameGemini:    config.DefaultGeminiBaseURL,
	NameOllama:    config.DefaultOllamaBaseURL,
}

// =============================================================================
// WIRE FORMAT
// =============================================================================

// wireFormat is everything that differs between providers. Implementations
// are stateless.
type wireFormat interface {
	buildURL(baseURL, modelID, apiKey string) (string, error)
	buildHeaders(h http.Header, apiKey string)
	buildWireRequest(req model.ChatRequest) (any, error)
	parseWireResponse(body []byte) (*model.ChatResponse, error)
}

// =============================================================================
// OPTIONS
// =============================================================================

type options struct {
	httpClient   *http.Client
	registry     *registry.Registry
	probeTimeout time.Duration
}

// Option configures a provider at construction.
type Option func(*options)

// WithHTTPClient sets the HTTP client. The default pools connections
// process-wide.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		if hc != nil {
			o.httpClient = hc
		}
	}
}

// WithRegistry sets the model registry consulted by SupportsModel.
func WithRegistry(r *registry.Registry) Option {
	return func(o *options) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithProbeTimeout bounds the local reachability probe.
func WithProbeTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.probeTimeout = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		httpClient:   sharedHTTPClient,
		probeTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = registry.Global()
	}
	return o
}

// =============================================================================
// BASE
// =============================================================================

// base implements Provider on top of a wireFormat.
type base struct {
	name     Name
	wire     wireFormat
	http     *http.Client
	registry *registry.Registry

	// cfg is this provider's private snapshot, separate from the global store.
	cfg *config.Store

	mu      sync.RWMutex
	limiter *rate.Limiter
}

func newBase(name Name, wire wireFormat, o options) *base {
	return &base{
		name:     name,
		wire:     wire,
		http:     o.httpClient,
		registry: o.registry,
		cfg:      config.NewStore(),
	}
}

// Name returns the provider name.
func (b *base) Name() Name {
	return b.name
}

// DefaultModel returns the hardcoded default model.
func (b *base) DefaultModel() string {
	return registry.DefaultModel(string(b.name))
}

// SupportsModel reports registry membership.
func (b *base) SupportsModel(m string) bool {
	return b.registry.IsValidModel(string(b.name), m)
}

// SetConfig stores one key in the private snapshot.
func (b *base) SetConfig(key, value string) {
	b.cfg.Set(key, value)
	if config.NormalizeKey(key) == config.KeyRateLimitRPM {
		b.rebuildLimiter()
	}
}

// GetConfig reads one key from the private snapshot.
func (b *base) GetConfig(key string) (string, bool) {
	return b.cfg.Get(key)
}

func (b *base) rebuildLimiter() {
	rpm, err := b.cfg.Int(config.KeyRateLimitRPM, 0)
	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil || rpm <= 0 {
		b.limiter = nil
		return
	}
	b.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
}

func (b *base) rateLimiter() *rate.Limiter {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.limiter
}

// setting prefers the namespaced key and falls back to the legacy one.
func (b *base) setting(suffix, legacy string) string {
	if v := b.cfg.GetOrElse(b.name.Key(suffix), ""); v != "" {
		return v
	}
	if legacy == "" {
		return ""
	}
	return b.cfg.GetOrElse(legacy, "")
}

func (b *base) apiKey() string {
	return b.setting(config.SuffixAPIKey, config.KeyAPIKey)
}

func (b *base) baseURL() string {
	u := b.setting(config.SuffixBaseURL, config.KeyBaseURL)
	if u == "" {
		u = defaultBaseURLs[b.name]
	}
	return strings.TrimRight(u, "/")
}

// BaseURL returns the endpoint root p sends requests to.
func BaseURL(p Provider) string {
	if b, ok := p.(interface{ baseURL() string }); ok {
		return b.baseURL()
	}
	if u, ok := p.GetConfig(p.Name().Key(config.SuffixBaseURL)); ok && u != "" {
		return strings.TrimRight(u, "/")
	}
	return defaultBaseURLs[p.Name()]
}

// ActiveModel returns the model p sends when a request names none: the
// configured model, or the provider default.
func ActiveModel(p Provider) string {
	if b, ok := p.(interface{ activeModel() string }); ok {
		return b.activeModel()
	}
	if m, ok := p.GetConfig(config.KeyModel); ok && m != "" {
		return m
	}
	return p.DefaultModel()
}

// activeModel returns the configured model or the provider default.
func (b *base) activeModel() string {
	if m := b.setting(config.SuffixModel, config.KeyModel); m != "" {
		return m
	}
	return b.DefaultModel()
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidateConfig checks the snapshot without touching the network.
func (b *base) ValidateConfig() error {
	if !b.name.IsLocal() && b.apiKey() == "" {
		return b.missingKeyError()
	}

	u, err := url.Parse(b.baseURL())
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return llmerr.Configuration(
			fmt.Sprintf("invalid base URL %q", b.baseURL()),
			"set "+b.name.Key(config.SuffixBaseURL)+" to an http(s) URL",
		).WithProvider(b.name.String())
	}

	if t, err := b.cfg.Float(config.KeyTemperature, model.MinTemperature); err != nil {
		return err
	} else if t < model.MinTemperature || t > model.MaxTemperature {
		return llmerr.Configurationf("temperature %.2f outside [0, 2]", t).WithProvider(b.name.String())
	}

	if n, err := b.cfg.Int(config.KeyMaxTokens, 1); err != nil {
		return err
	} else if n <= 0 {
		return llmerr.Configurationf("max_tokens must be positive, got %d", n).WithProvider(b.name.String())
	}

	for _, key := range []string{b.name.Key(config.SuffixTimeoutSeconds), config.KeyTimeoutSeconds} {
		if _, err := b.cfg.Seconds(key, 0); err != nil {
			return err
		}
	}
	if _, err := b.cfg.Int(config.KeyRateLimitRPM, 0); err != nil {
		return err
	}
	return nil
}

func (b *base) missingKeyError() error {
	hint := fmt.Sprintf("set %s in your config file or call set-api-key", b.name.Key(config.SuffixAPIKey))
	if env := b.name.APIKeyEnv(); env != "" {
		hint += ", or export " + env
	}
	return llmerr.Configuration("missing API key for "+b.name.String(), hint).WithProvider(b.name.String())
}

// Timeout returns p's request timeout: the namespaced timeout_seconds, then
// the global one, then the built-in default for the provider kind.
func Timeout(p Provider) time.Duration {
	keys := []string{p.Name().Key(config.SuffixTimeoutSeconds), config.KeyTimeoutSeconds}
	for _, k := range keys {
		v, ok := p.GetConfig(k)
		if !ok {
			continue
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f > 0 {
			return time.Duration(f * float64(time.Second))
		}
	}
	if p.Name().IsLocal() {
		return DefaultLocalTimeout
	}
	return DefaultTimeout
}

// =============================================================================
// DISPATCH
// =============================================================================

// Chat sends req through the wire format. The request carries its own
// payload; nothing about it is stored on the provider.
func (b *base) Chat(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error) {
	name := b.name.String()
	if err := req.Validate(); err != nil {
		return nil, llmerr.Configuration(err.Error(), "").WithProvider(name)
	}
	if err := b.ValidateConfig(); err != nil {
		return nil, err
	}

	timeout := Timeout(b)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if lim := b.rateLimiter(); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return nil, llmerr.Timeout(name, "rate limit wait exceeded the request deadline", err)
		}
	}

	apiKey := b.apiKey()
	endpoint, err := b.wire.buildURL(b.baseURL(), req.ModelID, apiKey)
	if err != nil {
		return nil, llmerr.Configuration(err.Error(), "check "+b.name.Key(config.SuffixBaseURL)).WithProvider(name)
	}
	payload, err := b.wire.buildWireRequest(req)
	if err != nil {
		return nil, llmerr.Configuration(err.Error(), "").WithProvider(name)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, llmerr.Configurationf("failed to marshal request: %v", err).WithProvider(name)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, llmerr.Network(name, "failed to create request", redactURLError(err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	b.wire.buildHeaders(httpReq.Header, apiKey)

	log := logging.With(
		zap.String("provider", name),
		zap.String("model", req.ModelID),
		zap.String("key", keyFingerprint(apiKey)),
	)
	start := time.Now()
	resp, err := b.http.Do(httpReq)
	if err != nil {
		log.Debug("chat transport error", zap.Duration("duration", time.Since(start)), zap.Error(redactURLError(err)))
		return nil, b.transportError(ctx, timeout, err)
	}
	defer resp.Body.Close()

	raw, err := readResponse(resp)
	if err != nil {
		return nil, b.transportError(ctx, timeout, err)
	}
	log.Debug("chat response",
		zap.Int("status", resp.StatusCode),
		zap.Int("messages", len(req.Messages)),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, b.statusError(resp.StatusCode, raw)
	}

	out, err := b.wire.parseWireResponse(raw)
	if err != nil {
		return nil, llmerr.Parse(name, "unexpected response shape", raw, err)
	}
	if out == nil || len(out.Choices) == 0 {
		return nil, llmerr.Parse(name, "response has no choices", raw, nil)
	}
	normalize(out, req)
	return out, nil
}

// Complete builds a request from the configured model, temperature and max
// tokens and returns the first reply.
func (b *base) Complete(ctx context.Context, msgs []model.ChatMessage) (model.ChatMessage, error) {
	req, err := b.buildRequest(msgs)
	if err != nil {
		return model.ChatMessage{}, err
	}
	resp, err := b.Chat(ctx, req)
	if err != nil {
		return model.ChatMessage{}, err
	}
	msg, _ := resp.FirstMessage()
	return msg, nil
}

func (b *base) buildRequest(msgs []model.ChatMessage) (model.ChatRequest, error) {
	req := model.ChatRequest{
		ModelID:  b.activeModel(),
		Messages: model.CloneMessages(msgs),
	}
	if v, ok := b.cfg.Get(config.KeyTemperature); ok && strings.TrimSpace(v) != "" {
		t, err := b.cfg.Float(config.KeyTemperature, 0)
		if err != nil {
			return req, err
		}
		req.Temperature = &t
	}
	if v, ok := b.cfg.Get(config.KeyMaxTokens); ok && strings.TrimSpace(v) != "" {
		n, err := b.cfg.Int(config.KeyMaxTokens, 0)
		if err != nil {
			return req, err
		}
		req.MaxOutputTokens = &n
	}
	return req, nil
}

// normalize fills identity fields the service left out and forces reply
// roles to assistant.
func normalize(resp *model.ChatResponse, req model.ChatRequest) {
	if resp.ID == "" {
		resp.ID = uuid.NewString()
	}
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = time.Now().UTC()
	}
	if resp.ModelID == "" {
		resp.ModelID = req.ModelID
	}
	for i := range resp.Choices {
		if resp.Choices[i].Message.Role != model.RoleAssistant {
			resp.Choices[i].Message = model.NewAssistantMessage(resp.Choices[i].Message.Content)
		}
	}
}

// =============================================================================
// ERRORS
// =============================================================================

func (b *base) transportError(ctx context.Context, timeout time.Duration, err error) error {
	err = redactURLError(err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return llmerr.Timeout(b.name.String(), fmt.Sprintf("no response within %s", timeout), err)
	}
	return llmerr.Network(b.name.String(), "request failed", err)
}

func (b *base) statusError(status int, body []byte) error {
	e := llmerr.Status(b.name.String(), status, body)
	if msg := apiErrorMessage(body); msg != "" {
		e.Message = fmt.Sprintf("HTTP %d: %s", status, msg)
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Hint = "check " + b.name.Key(config.SuffixAPIKey)
	case status == http.StatusNotFound:
		e.Hint = "check the model name and " + b.name.Key(config.SuffixBaseURL)
	case status == http.StatusTooManyRequests:
		e.Hint = "rate limited by the service; retry later or set " + config.KeyRateLimitRPM
	case status >= 500:
		e.Hint = "the service reported an internal error; retry later"
	}
	return e
}

// apiErrorMessage extracts the human message from the error bodies the four
// services send: {"error":{"message":...}}, {"error":"..."} and
// {"message":...}.
func apiErrorMessage(body []byte) string {
	var shape struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &shape); err != nil {
		return ""
	}
	if len(shape.Error) > 0 {
		var s string
		if json.Unmarshal(shape.Error, &s) == nil && s != "" {
			return s
		}
		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(shape.Error, &obj) == nil && obj.Message != "" {
			return obj.Message
		}
	}
	return shape.Message
}

// readResponse reads at most MaxResponseSize bytes.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// redactURLError strips credentials carried in query strings from
// transport errors, which echo the request URL.
func redactURLError(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	u, perr := url.Parse(ue.URL)
	if perr != nil {
		return err
	}
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return &url.Error{Op: ue.Op, URL: u.String(), Err: ue.Err}
}

// keyFingerprint identifies a credential in logs without exposing it.
func keyFingerprint(key string) string {
	if key == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:4])
}

// mergeTurns joins consecutive messages with the same wire role.
func mergeTurns[T any](turns []T, role func(T) string, merge func(dst *T, src T)) []T {
	out := make([]T, 0, len(turns))
	for _, t := range turns {
		if n := len(out); n > 0 && role(out[n-1]) == role(t) {
			merge(&out[n-1], t)
			continue
		}
		out = append(out, t)
	}
	return out
}

// splitSystem separates system messages from the conversation turns.
func splitSystem(msgs []model.ChatMessage) (system []string, turns []model.ChatMessage) {
	for _, m := range msgs {
		if m.Role == model.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	return system, turns
}
