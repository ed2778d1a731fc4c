package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"deep-research/internal/domain"
	"deep-research/internal/metrics"
	"deep-research/internal/relay"
	"deep-research/internal/usecase"
)

const (
	msgQueryNotProvided = "Query not provided"
	msgAPIKeyNotSet     = "OPENROUTER_API_KEY not set"
	msgAPIKeyUnresolved = "failed to resolve OPENROUTER_API_KEY"
	msgInternal         = "internal error"

	maxRequestBody = 1 << 20
)

type researchRequest struct {
	Query string `json:"query"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// responder starts a response on a concrete transport. Exactly one of JSON or
// StartStream is called per request.
type responder interface {
	JSON(status int, v any) error
	// StartStream commits a 200 with event-stream headers and returns the
	// body writer.
	StartStream() (io.Writer, error)
}

// decodeQuery reads the query from a JSON body. Anything undecodable counts
// as a missing query.
func decodeQuery(body io.Reader) string {
	var req researchRequest
	if err := json.NewDecoder(io.LimitReader(body, maxRequestBody)).Decode(&req); err != nil {
		return ""
	}
	return req.Query
}

func (h *Handler) serveResearch(ctx context.Context, log *slog.Logger, query string, rsp responder) error {
	log.InfoContext(ctx, "deep research request received")

	call, err := h.research.Prepare(ctx, usecase.ResearchInput{Query: query})
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			log.ErrorContext(ctx, "research request rejected", "status", status, "err", err)
		} else {
			log.WarnContext(ctx, "research request rejected", "status", status, "err", err)
		}
		metrics.RecordRequest(outcomeFor(err))
		return rsp.JSON(status, errorResponse{Error: publicMessage(err)})
	}

	log.InfoContext(ctx, "research query", "query", query)
	if payload, err := json.Marshal(call.Request()); err == nil {
		log.InfoContext(ctx, "sending upstream payload", "payload", string(payload))
	}

	var stream domain.LineStream
	if h.deferHeaders {
		stream, err = call.Open(ctx)
		if err != nil {
			h.upstreamFailed(ctx, log, err)
			return rsp.JSON(http.StatusBadGateway, errorResponse{Error: publicMessage(err)})
		}
	}

	w, err := rsp.StartStream()
	if err != nil {
		if stream != nil {
			_ = stream.Close()
		}
		return err
	}

	if stream == nil {
		stream, err = call.Open(ctx)
		if err != nil && ctx.Err() != nil {
			log.InfoContext(ctx, "client disconnected before upstream answered", "err", err)
			metrics.RecordRequest(metrics.OutcomeClientGone)
			return nil
		}
		if err != nil {
			// Headers are committed; the failure can only travel in-band.
			h.upstreamFailed(ctx, log, err)
			return ignoreDownstream(relay.WriteError(w, publicMessage(err)))
		}
	}
	defer func() { _ = stream.Close() }()
	log.InfoContext(ctx, "upstream stream opened", "upstream_status", stream.StatusCode())

	start := time.Now()
	lines, err := relay.Copy(ctx, w, stream)
	elapsed := time.Since(start)
	metrics.RecordStream(lines, elapsed.Seconds())

	switch {
	case err == nil:
		log.InfoContext(ctx, "upstream stream finished", "lines", lines, "duration_ms", elapsed.Milliseconds())
		metrics.RecordRequest(metrics.OutcomeRelayed)
	case ctx.Err() != nil || errors.Is(err, relay.ErrDownstream):
		log.InfoContext(ctx, "client disconnected during relay", "lines", lines, "err", err)
		metrics.RecordRequest(metrics.OutcomeClientGone)
	default:
		h.upstreamFailed(ctx, log, err)
		return ignoreDownstream(relay.WriteError(w, publicMessage(err)))
	}
	return nil
}

func (h *Handler) upstreamFailed(ctx context.Context, log *slog.Logger, err error) {
	kind := "upstream_error"
	var ue *usecase.Error
	if errors.As(err, &ue) {
		kind = ue.Reason
	}
	attrs := []any{"kind", kind, "err", err}
	if status, ok := usecase.UpstreamStatus(err); ok {
		attrs = append(attrs, "upstream_status", status)
	}
	log.ErrorContext(ctx, "upstream request failed", attrs...)
	metrics.RecordUpstreamError(kind)
	metrics.RecordRequest(metrics.OutcomeUpstreamError)
}

// ignoreDownstream drops write failures to a client that has already gone.
func ignoreDownstream(err error) error {
	if errors.Is(err, relay.ErrDownstream) {
		return nil
	}
	return err
}

func statusFor(err error) int {
	switch usecase.CodeOf(err) {
	case usecase.ErrorValidation:
		return http.StatusBadRequest
	case usecase.ErrorConfiguration:
		return http.StatusInternalServerError
	case usecase.ErrorUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func outcomeFor(err error) string {
	switch usecase.CodeOf(err) {
	case usecase.ErrorValidation:
		return metrics.OutcomeInvalid
	case usecase.ErrorConfiguration:
		return metrics.OutcomeMisconfigured
	case usecase.ErrorUpstream:
		return metrics.OutcomeUpstreamError
	default:
		return metrics.OutcomeInternalError
	}
}

// publicMessage is the text placed in the "error" field returned to clients.
func publicMessage(err error) string {
	var ue *usecase.Error
	if !errors.As(err, &ue) {
		return msgInternal
	}
	switch ue.Code {
	case usecase.ErrorValidation:
		return msgQueryNotProvided
	case usecase.ErrorConfiguration:
		return msgAPIKeyNotSet
	case usecase.ErrorUpstream:
		if ue.Err != nil {
			return ue.Err.Error()
		}
		return "upstream request failed"
	default:
		if ue.Reason == "api_key_unavailable" {
			return msgAPIKeyUnresolved
		}
		return msgInternal
	}
}
