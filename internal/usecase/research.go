package usecase

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"

	"deep-research/internal/domain"
)

// KeySource supplies the upstream API key. An empty key with a nil error means
// the key is not configured.
type KeySource interface {
	APIKey(ctx context.Context) (string, error)
}

// StaticKey is a key fixed at startup, typically from OPENROUTER_API_KEY.
type StaticKey string

func (k StaticKey) APIKey(context.Context) (string, error) {
	return string(k), nil
}

type Upstream interface {
	Open(ctx context.Context, apiKey string, req domain.CompletionRequest) (domain.LineStream, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type ResearchService struct {
	keys     KeySource
	upstream Upstream
	model    string
}

type ResearchInput struct {
	Query string
}

func NewResearchService(keys KeySource, upstream Upstream, model string) (*ResearchService, error) {
	if keys == nil {
		return nil, errors.New("usecase: key source must not be nil")
	}
	if upstream == nil {
		return nil, errors.New("usecase: upstream must not be nil")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, errors.New("usecase: model must not be empty")
	}
	return &ResearchService{keys: keys, upstream: upstream, model: model}, nil
}

// Prepare checks configuration and input and builds the upstream payload.
// The configuration check comes first, so a missing key is reported whatever
// the query looks like.
func (s *ResearchService) Prepare(ctx context.Context, in ResearchInput) (*Call, error) {
	apiKey, err := s.keys.APIKey(ctx)
	if err != nil {
		return nil, newError(ErrorInternal, "api_key_unavailable", err)
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, newError(ErrorConfiguration, "missing_api_key", nil)
	}
	if strings.TrimSpace(in.Query) == "" {
		return nil, newError(ErrorValidation, "empty_query", nil)
	}

	return &Call{
		upstream: s.upstream,
		apiKey:   apiKey,
		request: domain.CompletionRequest{
			Model:    s.model,
			Messages: []domain.ChatMessage{domain.UserMessage(in.Query)},
			Stream:   true,
		},
	}, nil
}

// Call is a validated research request that has not been sent yet.
type Call struct {
	upstream Upstream
	apiKey   string
	request  domain.CompletionRequest
}

// Request is the payload Open will send. It carries no credentials and is
// safe to log.
func (c *Call) Request() domain.CompletionRequest {
	return c.request
}

// Open sends the request and returns the upstream lines. Failures, including
// later read failures from the returned stream, are *Error with ErrorUpstream.
func (c *Call) Open(ctx context.Context) (domain.LineStream, error) {
	s, err := c.upstream.Open(ctx, c.apiKey, c.request)
	if err != nil {
		return nil, newError(ErrorUpstream, upstreamReason(err), err)
	}
	return &upstreamStream{LineStream: s}, nil
}

type upstreamStream struct {
	domain.LineStream
}

func (s *upstreamStream) Next() ([]byte, error) {
	line, err := s.LineStream.Next()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, newError(ErrorUpstream, "upstream_read", err)
	}
	return line, err
}

func upstreamReason(err error) string {
	var statusErr httpStatusCoder
	if errors.As(err, &statusErr) {
		return "upstream_status"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "upstream_timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "upstream_timeout"
	}
	return "upstream_unreachable"
}

// UpstreamStatus returns the HTTP status the upstream answered with, if err
// carries one.
func UpstreamStatus(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
