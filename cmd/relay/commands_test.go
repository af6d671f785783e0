package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

// useTestServer points the CLI's API client at ts for the test's duration.
func useTestServer(t *testing.T, ts *testServer) {
	t.Helper()
	orig := newAPIClient
	newAPIClient = func() (*apiClient, error) {
		return &apiClient{
			baseURL:    ts.server.URL,
			token:      "test-token",
			httpClient: ts.server.Client(),
		}, nil
	}
	t.Cleanup(func() { newAPIClient = orig })
}

func runCommand(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	return rootCmd.Execute()
}

func TestSessionsList(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/sessions": `{"sessions":[{"id":"work","turns":3}]}`,
	})
	useTestServer(t, ts)

	if err := runCommand(t, "sessions", "list"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Method != "GET" || r.Path != "/api/sessions" {
		t.Errorf("request = %s %s, want GET /api/sessions", r.Method, r.Path)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}
}

func TestSessionsShow(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/sessions/work": `{"id":"work","turns":[{"timestamp":"2026-01-01T00:00:00Z","prompt":"p","response":"r"}]}`,
	})
	useTestServer(t, ts)

	if err := runCommand(t, "sessions", "show", "work"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ts.requests) != 1 || ts.requests[0].Path != "/api/sessions/work" {
		t.Errorf("requests = %+v", ts.requests)
	}
}

func TestSessionsClear(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"DELETE /api/sessions/work": `{"status":"cleared","id":"work"}`,
	})
	useTestServer(t, ts)

	if err := runCommand(t, "sessions", "clear", "work"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := ts.requests[0]
	if r.Method != "DELETE" || r.Path != "/api/sessions/work" {
		t.Errorf("request = %s %s, want DELETE /api/sessions/work", r.Method, r.Path)
	}
}

func TestSessionsClearAll(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"DELETE /api/sessions": `{"status":"cleared"}`,
	})
	useTestServer(t, ts)

	if err := runCommand(t, "sessions", "clear", "--all"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := ts.requests[0]
	if r.Method != "DELETE" || r.Path != "/api/sessions" {
		t.Errorf("request = %s %s, want DELETE /api/sessions", r.Method, r.Path)
	}
}

func TestSessionsClear_NoArgs(t *testing.T) {
	useTestServer(t, newTestServer(t, nil))

	if err := runCommand(t, "sessions", "clear"); err == nil {
		t.Fatal("expected error without session id or --all")
	}
}

func TestRecall_EncodesQuery(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/recall": `{"mode":"vector","results":[]}`,
	})
	useTestServer(t, ts)

	if err := runCommand(t, "recall", "go", "routines?"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := ts.requests[0]
	if !strings.Contains(r.Path, "q=go+routines%3F") {
		t.Errorf("query not escaped: %s", r.Path)
	}
	if !strings.Contains(r.Path, "limit=5") {
		t.Errorf("default limit missing: %s", r.Path)
	}
}

func TestRecall_SessionModeWarns(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/recall": `{"mode":"session","results":[]}`,
	})
	useTestServer(t, ts)

	// Session mode is not an error, just a warning.
	if err := runCommand(t, "recall", "anything"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestChat_InvalidSessionID(t *testing.T) {
	err := runCommand(t, "chat", "hello", "--session", "../escape")
	if err == nil {
		t.Fatal("expected error for invalid session id")
	}
	if !strings.Contains(err.Error(), "invalid session id") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"error", "ERROR"},
		{"DEBUG", "DEBUG"},
		{"bogus", "INFO"},
		{"", "INFO"},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in).String(); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestPIDFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "relay.pid")

	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("readPIDFile: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}

	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Error("expected error after removal")
	}
}
