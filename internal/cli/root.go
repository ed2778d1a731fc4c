// Package cli implements the deep-research command-line client. It posts a
// query to a running proxy and prints the streamed answer as it arrives.
package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const (
	defaultURL = "http://localhost:5000"
	urlEnv     = "DEEP_RESEARCH_URL"
)

// ErrReported is returned when the failure has already been printed for the
// user.
var ErrReported = errors.New("cli: error already reported")

type options struct {
	url     string
	timeout time.Duration
	verbose bool
}

// NewRootCmd builds the deep-research command.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "deep-research [query...]",
		Short: "Ask the deep research proxy a question",
		Long: `deep-research sends a query to a deep research proxy and prints the
answer as it streams back.

Example usage:
  deep-research What is the capital of Canada?
  deep-research --url http://localhost:8081 "latest Go release notes"`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVar(&opts.url, "url", envOr(urlEnv, defaultURL), "proxy base URL (env "+urlEnv+")")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Minute, "overall request timeout")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")

	return cmd
}

// Execute runs the root command with the process arguments.
func Execute() error {
	return NewRootCmd().Execute()
}

func run(cmd *cobra.Command, opts *options, query string) error {
	stderr := cmd.ErrOrStderr()
	if strings.TrimSpace(query) == "" {
		fmt.Fprintln(stderr, "Please provide a query.")
		return ErrReported
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	client := &http.Client{Timeout: opts.timeout}

	if err := research(ctx, client, logger, opts.url, query, cmd.OutOrStdout()); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return ErrReported
	}
	return nil
}

func research(ctx context.Context, client *http.Client, logger *slog.Logger, baseURL, query string, out io.Writer) error {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return err
	}

	endpoint := strings.TrimRight(baseURL, "/") + "/deep_research"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	logger.Debug("posting query", "url", endpoint)
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	logger.Debug("response received", "status", resp.StatusCode, "content_type", resp.Header.Get("Content-Type"))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}
	return printStream(resp.Body, out)
}

type errorBody struct {
	Error string `json:"error"`
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err == nil && eb.Error != "" {
		return fmt.Errorf("%d %s", resp.StatusCode, eb.Error)
	}
	return fmt.Errorf("%d %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}

// chunk covers both streamed deltas and whole messages, plus error frames in
// either the proxy's flat shape or the provider's nested one.
type chunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error json.RawMessage `json:"error"`
}

func (c chunk) errorMessage() string {
	if len(c.Error) == 0 || string(c.Error) == "null" {
		return ""
	}
	var flat string
	if err := json.Unmarshal(c.Error, &flat); err == nil {
		return flat
	}
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(c.Error, &nested); err == nil && nested.Message != "" {
		return nested.Message
	}
	return string(c.Error)
}

// printStream writes answer text from an event stream to out until [DONE] or
// EOF. Comment lines and lines that are not JSON are skipped.
func printStream(r io.Reader, out io.Writer) error {
	reader := bufio.NewReader(r)
	wrote := false
	defer func() {
		if wrote {
			fmt.Fprintln(out)
		}
	}()

	for {
		line, err := reader.ReadString('\n')
		if payload, ok := strings.CutPrefix(strings.TrimSpace(line), "data:"); ok {
			payload = strings.TrimSpace(payload)
			if payload == "[DONE]" {
				return nil
			}
			var c chunk
			if jsonErr := json.Unmarshal([]byte(payload), &c); jsonErr == nil {
				if msg := c.errorMessage(); msg != "" {
					return errors.New(msg)
				}
				for _, choice := range c.Choices {
					text := choice.Delta.Content
					if text == "" {
						text = choice.Message.Content
					}
					if text != "" {
						fmt.Fprint(out, text)
						wrote = true
					}
				}
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read stream: %w", err)
		}
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
