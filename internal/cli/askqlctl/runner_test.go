package askqlctl

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRunAskCommand(t *testing.T) {
	var gotMethod, gotPath, gotAuth, gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		gotPrompt = body["prompt"]
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"kind":"answer","table":[{"n":5}],"chart":[]}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{
		"-base-url", srv.URL,
		"-token", "tok-1",
		"ask", "How", "many", "customers?",
	}, Options{
		Stdout:  &stdout,
		Stderr:  &stderr,
		Timeout: 2 * time.Second,
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if gotMethod != http.MethodPost || gotPath != "/v1/query" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
	if gotAuth != "Bearer tok-1" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if gotPrompt != "How many customers?" {
		t.Fatalf("prompt = %q", gotPrompt)
	}
	if !strings.Contains(stdout.String(), `"kind": "answer"`) {
		t.Fatalf("stdout = %s", stdout.String())
	}
}

func TestRunHistoryCommandPassesLimitAndUser(t *testing.T) {
	var gotQuery, gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/history" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		gotUser = r.Header.Get("X-User-ID")
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	code := Run(context.Background(), []string{"-base-url", srv.URL, "-limit", "3", "-user-id", "7", "history"}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if gotQuery != "limit=3" || gotUser != "7" {
		t.Fatalf("query = %q user = %q", gotQuery, gotUser)
	}
}

func TestRunLoginCommand(t *testing.T) {
	var gotPath string
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"access_token":"abc","token_type":"bearer"}`))
	}))
	defer srv.Close()

	code := Run(context.Background(), []string{"-base-url", srv.URL, "login", "ada", "correct-horse"}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if gotPath != "/v1/auth/token" || body["username"] != "ada" || body["password"] != "correct-horse" {
		t.Fatalf("path = %s body = %v", gotPath, body)
	}
}

func TestRunResultCommandWritesFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/history/12/result.parquet" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte("PAR1"))
	}))
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "result.parquet")
	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "-out", out, "result", "12"}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	content, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(content) != "PAR1" {
		t.Fatalf("content = %q", content)
	}
}

func TestRunReturnsErrorOnHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error_code":"UNAUTHORIZED"}`))
	}))
	defer srv.Close()

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "schema"}, Options{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "http 401") {
		t.Fatalf("stderr = %s", stderr.String())
	}
}

func TestRunUsageErrors(t *testing.T) {
	cases := [][]string{
		{"unknown"},
		{},
		{"ask"},
		{"login", "ada"},
		{"result", "12"},
	}
	for _, args := range cases {
		var stderr bytes.Buffer
		code := Run(context.Background(), args, Options{Stderr: &stderr})
		if code != 2 {
			t.Fatalf("Run(%v) exit code = %d", args, code)
		}
		if stderr.Len() == 0 {
			t.Fatalf("Run(%v) expected usage output", args)
		}
	}
}
