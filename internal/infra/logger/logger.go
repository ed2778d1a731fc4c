package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "deep-research"

// New creates the process logger: JSON on stdout, tagged with trace ids, and
// additionally exported through the global OTel logger provider when
// enableOTel is set.
func New(enableOTel bool) *slog.Logger {
	return newLogger(os.Stdout, parseLevel(os.Getenv("LOG_LEVEL")), enableOTel)
}

func newLogger(w io.Writer, level slog.Level, enableOTel bool) *slog.Logger {
	var handler slog.Handler = NewTraceContextHandler(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	if enableOTel {
		handler = &MultiHandler{handlers: []slog.Handler{
			handler,
			otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(global.GetLoggerProvider())),
		}}
	}
	return slog.New(handler)
}

// TraceContextHandler adds trace_id and span_id from the record's context.
type TraceContextHandler struct {
	slog.Handler
}

func NewTraceContextHandler(h slog.Handler) *TraceContextHandler {
	return &TraceContextHandler{Handler: h}
}

func (h *TraceContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *TraceContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *TraceContextHandler) WithGroup(name string) slog.Handler {
	return &TraceContextHandler{Handler: h.Handler.WithGroup(name)}
}

// MultiHandler sends logs to multiple handlers
type MultiHandler struct {
	handlers []slog.Handler
}

func (h *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			_ = handler.Handle(ctx, r.Clone())
		}
	}
	return nil
}

func (h *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: next}
}

func (h *MultiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithGroup(name)
	}
	return &MultiHandler{handlers: next}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
