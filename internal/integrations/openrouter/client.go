package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"deep-research/internal/domain"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultTimeout = 10 * time.Minute
)

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openrouter: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client opens streaming chat completions against OpenRouter or any
// OpenAI-compatible endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	referer    string
	title      string
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAttribution sets the HTTP-Referer and X-Title headers OpenRouter uses
// to attribute traffic to an app.
func WithAttribution(referer, title string) Option {
	return func(c *Client) {
		c.referer = strings.TrimSpace(referer)
		c.title = strings.TrimSpace(title)
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

func chatURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions"
	}
	return base + "/api/v1/chat/completions"
}

// Stream posts req with streaming enabled and returns the open response as a
// line iterator. The caller must Close it. ctx governs the whole exchange, so
// cancelling it also aborts an in-progress body read.
func (c *Client) Stream(ctx context.Context, apiKey string, req domain.CompletionRequest) (*Stream, error) {
	if apiKey == "" {
		return nil, errors.New("openrouter: api key must not be empty")
	}
	if req.Model == "" {
		return nil, errors.New("openrouter: model must not be empty")
	}
	req.Stream = true

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("openrouter: marshal request: %w", err)
	}

	url := chatURL(c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openrouter: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	if c.referer != "" {
		httpReq.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		httpReq.Header.Set("X-Title", c.title)
	}

	res, err := c.resolvedHTTPClient().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openrouter: request failed: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		defer func() { _ = res.Body.Close() }()
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}
	return newStream(res), nil
}

// Open is Stream behind the provider-agnostic domain.LineStream.
func (c *Client) Open(ctx context.Context, apiKey string, req domain.CompletionRequest) (domain.LineStream, error) {
	s, err := c.Stream(ctx, apiKey, req)
	if err != nil {
		return nil, err
	}
	return s, nil
}
