package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"deep-research/internal/domain"
	"deep-research/internal/relay"
	"deep-research/internal/usecase"
)

const CorrelationHeader = "X-Correlation-Id"

type Researcher interface {
	Prepare(ctx context.Context, in usecase.ResearchInput) (*usecase.Call, error)
}

type Handler struct {
	research     Researcher
	deferHeaders bool
}

type Option func(*Handler)

// WithDeferredHeaders makes the handler wait for the upstream response before
// committing the client status, so early upstream failures become a 502.
func WithDeferredHeaders(enabled bool) Option {
	return func(h *Handler) {
		h.deferHeaders = enabled
	}
}

func NewHandler(research Researcher, opts ...Option) (*Handler, error) {
	if research == nil {
		return nil, errors.New("handler: research service must not be nil")
	}
	h := &Handler{research: research}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Register mounts all routes on e.
func (h *Handler) Register(e *echo.Echo) {
	e.POST("/deep_research", h.DeepResearch)
	e.GET("/health", h.Health)
	e.GET("/capabilities", h.Capabilities)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// DeepResearch relays a research query upstream and streams the answer.
// (POST /deep_research)
func (h *Handler) DeepResearch(c echo.Context) error {
	id := correlationID(c.Request().Header.Get(CorrelationHeader))
	c.Response().Header().Set(CorrelationHeader, id)

	req := c.Request()
	log := slog.Default().With("correlation_id", id, "method", req.Method, "path", req.URL.Path)
	return h.serveResearch(req.Context(), log, decodeQuery(req.Body), echoResponder{c: c})
}

// (GET /health)
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, domain.NewHealth())
}

// (GET /capabilities)
func (h *Handler) Capabilities(c echo.Context) error {
	return c.JSON(http.StatusOK, domain.NewCapabilities())
}

type echoResponder struct {
	c echo.Context
}

func (r echoResponder) JSON(status int, v any) error {
	return r.c.JSON(status, v)
}

func (r echoResponder) StartStream() (io.Writer, error) {
	res := r.c.Response()
	for k, v := range relay.StreamHeaders() {
		res.Header().Set(k, v)
	}
	res.WriteHeader(http.StatusOK)
	res.Flush()
	return res, nil
}

func correlationID(provided string) string {
	if id := strings.TrimSpace(provided); id != "" {
		return id
	}
	return uuid.NewString()
}
