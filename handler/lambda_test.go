package handler

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"deep-research/internal/metrics"
)

func newLambdaHandler(t *testing.T, upstreamURL, apiKey string, opts ...Option) *Handler {
	t.Helper()
	h, err := NewHandler(newResearchService(t, upstreamURL, apiKey, 2*time.Second), opts...)
	require.NoError(t, err)
	return h
}

func functionURLRequest(method, path, body string) events.LambdaFunctionURLRequest {
	req := events.LambdaFunctionURLRequest{
		RawPath: path,
		Body:    body,
		Headers: map[string]string{"content-type": "application/json"},
	}
	req.RequestContext.HTTP.Method = method
	return req
}

func readAll(t *testing.T, resp *events.LambdaFunctionURLStreamingResponse) string {
	t.Helper()
	require.NotNil(t, resp.Body)
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(out)
}

func TestHandleFunctionURL_Health(t *testing.T) {
	h := newLambdaHandler(t, unusedUpstream(t).URL, "")

	resp, err := h.HandleFunctionURL(context.Background(), functionURLRequest(http.MethodGet, "/health", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Headers["Content-Type"])
	require.JSONEq(t, `{"status":"ok","version":"1.0.0","name":"deep-research"}`, readAll(t, resp))
}

func TestHandleFunctionURL_Capabilities(t *testing.T) {
	h := newLambdaHandler(t, unusedUpstream(t).URL, "")

	resp, err := h.HandleFunctionURL(context.Background(), functionURLRequest(http.MethodGet, "/capabilities/", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, readAll(t, resp), `"required":["query"]`)
}

func TestHandleFunctionURL_Routing(t *testing.T) {
	h := newLambdaHandler(t, unusedUpstream(t).URL, "sk-or-test")

	resp, err := h.HandleFunctionURL(context.Background(), functionURLRequest(http.MethodGet, "/deep_research", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = h.HandleFunctionURL(context.Background(), functionURLRequest(http.MethodGet, "/nope", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NotEmpty(t, resp.Headers[CorrelationHeader])
}

func TestHandleFunctionURL_MissingQuery(t *testing.T) {
	h := newLambdaHandler(t, unusedUpstream(t).URL, "sk-or-test")

	resp, err := h.HandleFunctionURL(context.Background(), functionURLRequest(http.MethodPost, "/deep_research", `{"query":""}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.JSONEq(t, `{"error":"Query not provided"}`, readAll(t, resp))
}

func TestHandleFunctionURL_MissingAPIKey(t *testing.T) {
	h := newLambdaHandler(t, unusedUpstream(t).URL, "")

	resp, err := h.HandleFunctionURL(context.Background(), functionURLRequest(http.MethodPost, "/deep_research", `{"query":"q"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.JSONEq(t, `{"error":"OPENROUTER_API_KEY not set"}`, readAll(t, resp))
}

func TestHandleFunctionURL_StreamsUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, ottawaChunk+"\n\n")
		w.(http.Flusher).Flush()
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer upstream.Close()

	h := newLambdaHandler(t, upstream.URL, "sk-or-test")
	req := functionURLRequest(http.MethodPost, "/deep_research", base64.StdEncoding.EncodeToString([]byte(`{"query":"What is the capital of Canada?"}`)))
	req.IsBase64Encoded = true
	req.Headers["x-correlation-id"] = "corr-lambda"

	resp, err := h.HandleFunctionURL(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Headers["Content-Type"])
	require.Equal(t, "corr-lambda", resp.Headers[CorrelationHeader])
	require.Equal(t, ottawaChunk+"\ndata: [DONE]\n", readAll(t, resp))
}

func TestHandleFunctionURL_UpstreamFailure(t *testing.T) {
	t.Run("streaming", func(t *testing.T) {
		h := newLambdaHandler(t, "http://127.0.0.1:1", "sk-or-test")

		resp, err := h.HandleFunctionURL(context.Background(), functionURLRequest(http.MethodPost, "/deep_research", `{"query":"q"}`))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		requireSingleErrorFrame(t, readAll(t, resp), "")
	})

	t.Run("deferred", func(t *testing.T) {
		h := newLambdaHandler(t, "http://127.0.0.1:1", "sk-or-test", WithDeferredHeaders(true))

		resp, err := h.HandleFunctionURL(context.Background(), functionURLRequest(http.MethodPost, "/deep_research", `{"query":"q"}`))
		require.NoError(t, err)
		require.Equal(t, http.StatusBadGateway, resp.StatusCode)
		require.Contains(t, readAll(t, resp), "request failed")
	})
}

func TestHandleFunctionURL_UnreadBodyReleasedOnCancel(t *testing.T) {
	served := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, ottawaChunk+"\n\n")
		w.(http.Flusher).Flush()
		close(served)
		<-r.Context().Done()
	}))
	defer upstream.Close()

	gone := metrics.RequestsTotal.WithLabelValues(metrics.OutcomeClientGone)
	before := testutil.ToFloat64(gone)

	ctx, cancel := context.WithCancel(context.Background())
	h := newLambdaHandler(t, upstream.URL, "sk-or-test")
	resp, err := h.HandleFunctionURL(ctx, functionURLRequest(http.MethodPost, "/deep_research", `{"query":"q"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The body is never read, so the relay ends up blocked writing the first
	// line. It must still finish once ctx ends.
	<-served
	time.Sleep(50 * time.Millisecond)
	cancel()
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(gone) == before+1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHeaderValue(t *testing.T) {
	headers := map[string]string{"x-correlation-id": "abc"}
	require.Equal(t, "abc", headerValue(headers, CorrelationHeader))
	require.Empty(t, headerValue(headers, "authorization"))
}
