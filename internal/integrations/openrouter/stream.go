package openrouter

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Stream iterates over the non-empty lines of a streaming response body.
// It is not safe for concurrent use.
type Stream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	status int
	err    error
}

func newStream(res *http.Response) *Stream {
	return &Stream{
		body:   res.Body,
		reader: bufio.NewReader(res.Body),
		status: res.StatusCode,
	}
}

// StatusCode is the upstream HTTP status.
func (s *Stream) StatusCode() int {
	return s.status
}

// Next blocks until the next non-empty line is available and returns it
// without its line terminator. It returns io.EOF once the body is exhausted.
func (s *Stream) Next() ([]byte, error) {
	for {
		if s.err != nil {
			return nil, s.err
		}
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.err = io.EOF
			} else {
				s.err = fmt.Errorf("openrouter: read stream: %w", err)
			}
		}
		line = bytes.TrimRight(line, "\r\n")
		if len(line) > 0 {
			return line, nil
		}
	}
}

func (s *Stream) Close() error {
	return s.body.Close()
}
