package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func runCmd(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRoot_RequiresQuery(t *testing.T) {
	_, stderr, err := runCmd(t)
	require.ErrorIs(t, err, ErrReported)
	require.Equal(t, "Please provide a query.\n", stderr)
}

func TestRoot_StreamsAnswer(t *testing.T) {
	var (
		got       map[string]string
		gotPath   string
		decodeErr error
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		decodeErr = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, ": OPENROUTER PROCESSING\n")
		_, _ = io.WriteString(w, `data: {"choices":[{"delta":{"content":"Ott"}}]}`+"\n")
		_, _ = io.WriteString(w, `data: {"choices":[{"delta":{"content":"awa"}}]}`+"\n")
		_, _ = io.WriteString(w, "data: [DONE]\n")
		_, _ = io.WriteString(w, `data: {"choices":[{"delta":{"content":"ignored"}}]}`+"\n")
	}))
	defer srv.Close()

	stdout, stderr, err := runCmd(t, "--url", srv.URL, "What", "is", "the", "capital", "of", "Canada?")
	require.NoError(t, err)
	require.Empty(t, stderr)
	require.Equal(t, "Ottawa\n", stdout)
	require.NoError(t, decodeErr)
	require.Equal(t, "/deep_research", gotPath)
	require.Equal(t, "What is the capital of Canada?", got["query"])
}

func TestRoot_URLFromEnv(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `data: {"choices":[{"message":{"content":"whole answer"}}]}`+"\n")
	}))
	defer srv.Close()
	t.Setenv(urlEnv, srv.URL+"/")

	stdout, _, err := runCmd(t, "q")
	require.NoError(t, err)
	require.Equal(t, "whole answer\n", stdout)
}

func TestRoot_ErrorFrame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `data: {"choices":[{"delta":{"content":"part"}}]}`+"\n")
		_, _ = io.WriteString(w, `data: {"error":"openrouter: request failed"}`+"\n\n")
	}))
	defer srv.Close()

	stdout, stderr, err := runCmd(t, "--url", srv.URL, "q")
	require.ErrorIs(t, err, ErrReported)
	require.Equal(t, "part\n", stdout)
	require.Equal(t, "Error: openrouter: request failed\n", stderr)
}

func TestRoot_NestedProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `data: {"error":{"message":"model overloaded","code":503}}`+"\n")
	}))
	defer srv.Close()

	_, stderr, err := runCmd(t, "--url", srv.URL, "q")
	require.ErrorIs(t, err, ErrReported)
	require.Contains(t, stderr, "model overloaded")
}

func TestRoot_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"OPENROUTER_API_KEY not set"}`)
	}))
	defer srv.Close()

	stdout, stderr, err := runCmd(t, "--url", srv.URL, "q")
	require.ErrorIs(t, err, ErrReported)
	require.Empty(t, stdout)
	require.Equal(t, "Error: 500 OPENROUTER_API_KEY not set\n", stderr)
}

func TestRoot_Unreachable(t *testing.T) {
	_, stderr, err := runCmd(t, "--url", "http://127.0.0.1:1", "q")
	require.ErrorIs(t, err, ErrReported)
	require.True(t, strings.HasPrefix(stderr, "Error: request failed"), stderr)
}
