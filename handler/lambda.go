package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"deep-research/internal/domain"
	"deep-research/internal/relay"
)

// HandleFunctionURL serves the same routes as the HTTP server behind a Lambda
// function URL with response streaming. The research relay runs in its own
// goroutine and feeds the returned body through a pipe.
func (h *Handler) HandleFunctionURL(ctx context.Context, req events.LambdaFunctionURLRequest) (*events.LambdaFunctionURLStreamingResponse, error) {
	id := correlationID(headerValue(req.Headers, CorrelationHeader))
	method := strings.ToUpper(req.RequestContext.HTTP.Method)
	path := "/" + strings.Trim(req.RawPath, "/")

	var resp *events.LambdaFunctionURLStreamingResponse
	switch path {
	case "/deep_research":
		if method != http.MethodPost {
			resp = jsonResponse(http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
			break
		}
		// an undecodable body is treated like an empty one
		body, _ := requestBody(req)
		log := slog.Default().With("correlation_id", id, "method", method, "path", path, "transport", "lambda")
		resp = h.streamResearch(ctx, log, decodeQuery(bytes.NewReader(body)))
	case "/health":
		resp = jsonResponse(http.StatusOK, domain.NewHealth())
	case "/capabilities":
		resp = jsonResponse(http.StatusOK, domain.NewCapabilities())
	default:
		resp = jsonResponse(http.StatusNotFound, errorResponse{Error: "not found"})
	}

	if resp.Headers == nil {
		resp.Headers = map[string]string{}
	}
	resp.Headers[CorrelationHeader] = id
	return resp, nil
}

// streamResearch blocks until serveResearch has chosen a status, then hands
// back a response whose body keeps filling as the relay proceeds.
func (h *Handler) streamResearch(ctx context.Context, log *slog.Logger, query string) *events.LambdaFunctionURLStreamingResponse {
	pr, pw := io.Pipe()
	rsp := &pipeResponder{
		head: make(chan *events.LambdaFunctionURLStreamingResponse, 1),
		pr:   pr,
		pw:   pw,
	}

	// Unblocks a relay write the runtime will never read once ctx ends.
	stop := context.AfterFunc(ctx, func() {
		_ = pr.CloseWithError(ctx.Err())
	})

	go func() {
		defer stop()
		err := h.serveResearch(ctx, log, query, rsp)
		if err != nil {
			log.ErrorContext(ctx, "research relay failed", "err", err)
		}
		if !rsp.sent {
			rsp.send(jsonResponse(http.StatusInternalServerError, errorResponse{Error: msgInternal}))
		}
		_ = pw.CloseWithError(err)
	}()

	return <-rsp.head
}

// pipeResponder is used from a single goroutine.
type pipeResponder struct {
	head chan *events.LambdaFunctionURLStreamingResponse
	pr   *io.PipeReader
	pw   *io.PipeWriter
	sent bool
}

func (r *pipeResponder) send(resp *events.LambdaFunctionURLStreamingResponse) {
	r.sent = true
	r.head <- resp
}

func (r *pipeResponder) JSON(status int, v any) error {
	r.send(jsonResponse(status, v))
	return nil
}

func (r *pipeResponder) StartStream() (io.Writer, error) {
	r.send(&events.LambdaFunctionURLStreamingResponse{
		StatusCode: http.StatusOK,
		Headers:    relay.StreamHeaders(),
		Body:       r.pr,
	})
	return r.pw, nil
}

func jsonResponse(status int, v any) *events.LambdaFunctionURLStreamingResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"internal error"}`)
	}
	return &events.LambdaFunctionURLStreamingResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       bytes.NewReader(body),
	}
}

func requestBody(req events.LambdaFunctionURLRequest) ([]byte, error) {
	if req.IsBase64Encoded {
		return base64.StdEncoding.DecodeString(req.Body)
	}
	return []byte(req.Body), nil
}

// headerValue looks a header up case-insensitively; function URLs lowercase
// header names.
func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
