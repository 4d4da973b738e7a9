// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Configuration constants for the completion endpoint.
const (
	// CompletionPath is appended to the configured base URL.
	CompletionPath = "/v1/chat/completions"

	// DefaultTimeout is the default timeout for one completion request.
	DefaultTimeout = 120 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024

	// DefaultUserAgent is sent with every request.
	DefaultUserAgent = "ai-helper-mcp/0.1.0"
)

// Client sends chat-completion requests to a single configured endpoint.
// A Client is safe for concurrent use and is never reconfigured after
// construction.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithRateLimit caps outbound requests per minute. Zero disables limiting.
func WithRateLimit(perMinute int) Option {
	return func(c *Client) {
		if perMinute <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
}

// WithLogger sets the logger used for request/response lines.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// NewClient creates a client for baseURL authenticated with apiKey.
//
// If either value is empty the client is still created, but Send fails with
// ErrNotConfigured without touching the network.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		userAgent:  DefaultUserAgent,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether both the base URL and the API key are set.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != "" && c.apiKey != ""
}

// BaseURL returns the configured base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// KeyFingerprint returns a short SHA-256 fingerprint of the API key.
// SECURITY: Never exposes key material.
func (c *Client) KeyFingerprint() string {
	if c.apiKey == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(c.apiKey))
	return hex.EncodeToString(h[:4])
}

// =============================================================================
// SEND
// =============================================================================

// Send performs one non-streaming completion request and returns the text of
// the first choice.
//
// Errors:
//   - ErrNotConfigured when the client has no URL or key
//   - *TransportError on network failure, cancellation or non-2xx status
//   - *MalformedResponseError on a 2xx body without string content
func (c *Client) Send(ctx context.Context, req ChatRequest) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	if req.Annotated(AnnotationWebSearch) {
		c.logger.Debug("web search requested; endpoint handling is provider specific", "model", req.Model)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", &TransportError{Message: err.Error(), Err: err}
		}
	}

	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+CompletionPath, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", &TransportError{Message: err.Error(), Err: err}
	}
	c.setHeaders(httpReq)

	// Don't log headers (auth) or body (user content).
	c.logger.Debug("API request", "method", httpReq.Method, "path", httpReq.URL.Path, "model", req.Model)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &TransportError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("API response", "status", resp.StatusCode, "duration", time.Since(start))

	body, err := readResponse(resp)
	if err != nil {
		return "", &TransportError{Status: resp.StatusCode, Message: err.Error(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fallback := fmt.Sprintf("request failed with status code %d", resp.StatusCode)
		return "", &TransportError{
			Status:  resp.StatusCode,
			Message: errorMessage(body, fallback),
		}
	}

	content, ok := extractContent(body)
	if !ok {
		return "", &MalformedResponseError{Status: resp.StatusCode, Body: string(body)}
	}
	return content, nil
}

// setHeaders sets auth and content headers.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
}

// readResponse reads the response body with a size limit.
//
// SECURITY: Response size limit prevents memory exhaustion.
func readResponse(resp *http.Response) ([]byte, error) {
	limitedReader := io.LimitReader(resp.Body, MaxResponseSize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}
