// Package relay forwards upstream lines to a client connection as they
// arrive and renders failures as server-sent-event error frames.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const ContentType = "text/event-stream"

// ErrDownstream marks a failed write to the client. Nothing more can be sent
// once it occurs.
var ErrDownstream = errors.New("relay: write to client failed")

// Source is pulled one line at a time until it returns io.EOF.
type Source interface {
	Next() ([]byte, error)
}

type flusher interface {
	Flush()
}

// StreamHeaders are set on the client response before the first line.
func StreamHeaders() map[string]string {
	return map[string]string{
		"Content-Type":      ContentType,
		"Cache-Control":     "no-cache",
		"Connection":        "keep-alive",
		"X-Accel-Buffering": "no",
	}
}

// Copy writes every line from src to dst, each followed by a newline, and
// flushes dst after each line when it supports flushing. It returns the number
// of lines written. A src error is returned as is; a dst error wraps
// ErrDownstream.
func Copy(ctx context.Context, dst io.Writer, src Source) (int, error) {
	f, _ := dst.(flusher)
	var buf []byte
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		line, err := src.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}

		buf = append(append(buf[:0], line...), '\n')
		if _, err := dst.Write(buf); err != nil {
			return n, fmt.Errorf("%w: %w", ErrDownstream, err)
		}
		if f != nil {
			f.Flush()
		}
		n++
	}
}

type errorPayload struct {
	Error string `json:"error"`
}

// ErrorFrame renders msg as `data: {"error":"..."}` followed by a blank line.
func ErrorFrame(msg string) []byte {
	payload, _ := json.Marshal(errorPayload{Error: msg})
	frame := make([]byte, 0, len(payload)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, payload...)
	return append(frame, "\n\n"...)
}

// WriteError sends a single error frame and flushes it.
func WriteError(dst io.Writer, msg string) error {
	if _, err := dst.Write(ErrorFrame(msg)); err != nil {
		return fmt.Errorf("%w: %w", ErrDownstream, err)
	}
	if f, ok := dst.(flusher); ok {
		f.Flush()
	}
	return nil
}
