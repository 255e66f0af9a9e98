package askqlctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	Token      string
	UserID     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type request struct {
	method string
	path   string
	body   any
	// output receives the raw response body instead of stdout when set.
	output string
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("askqlctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "askql API base URL")
	token := fs.String("token", defaults.Token, "bearer token from `askqlctl login`")
	userID := fs.String("user-id", defaults.UserID, "X-User-ID header (used when auth is disabled)")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 30*time.Second), "HTTP timeout (e.g. 30s)")
	limit := fs.Int("limit", 0, "history entries to list (1-10)")
	out := fs.String("out", "", "file to write a downloaded result to")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	rest := fs.Args()[1:]
	var req request
	switch command {
	case "health":
		req = request{method: http.MethodGet, path: "/v1/health"}
	case "ready":
		req = request{method: http.MethodGet, path: "/v1/ready"}
	case "schema":
		req = request{method: http.MethodGet, path: "/v1/schema"}
	case "history":
		path := "/v1/history"
		if *limit != 0 {
			path += "?" + url.Values{"limit": {strconv.Itoa(*limit)}}.Encode()
		}
		req = request{method: http.MethodGet, path: path}
	case "ask", "translate":
		question := strings.TrimSpace(strings.Join(rest, " "))
		if question == "" {
			_, _ = fmt.Fprintf(stderr, "%s requires a question\n", command)
			return 2
		}
		path := "/v1/query"
		if command == "translate" {
			path = "/v1/query/translate"
		}
		req = request{method: http.MethodPost, path: path, body: map[string]string{"prompt": question}}
	case "login", "register":
		if len(rest) != 2 {
			_, _ = fmt.Fprintf(stderr, "%s requires <username> <password>\n", command)
			return 2
		}
		path := "/v1/auth/token"
		if command == "register" {
			path = "/v1/auth/register"
		}
		req = request{method: http.MethodPost, path: path, body: map[string]string{"username": rest[0], "password": rest[1]}}
	case "result":
		if len(rest) != 1 || strings.TrimSpace(*out) == "" {
			_, _ = fmt.Fprintln(stderr, "result requires -out <file> and <history-id>")
			return 2
		}
		req = request{method: http.MethodGet, path: "/v1/history/" + url.PathEscape(rest[0]) + "/result.parquet", output: *out}
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + req.path
	code, responseBody, err := doRequest(ctx, client, req.method, endpoint, req.body, *token, *userID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if req.output != "" {
		if err := os.WriteFile(req.output, responseBody, 0o644); err != nil {
			_, _ = fmt.Fprintf(stderr, "write %s: %v\n", req.output, err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "wrote %d bytes to %s\n", len(responseBody), req.output)
		return 0
	}
	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func doRequest(ctx context.Context, client *http.Client, method, endpoint string, body any, token, userID string) (int, []byte, error) {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request body: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, payload)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}
	if strings.TrimSpace(userID) != "" {
		req.Header.Set("X-User-ID", strings.TrimSpace(userID))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: askqlctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                    GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                     GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  schema                    GET /v1/schema")
	_, _ = fmt.Fprintln(w, "  history                   GET /v1/history")
	_, _ = fmt.Fprintln(w, "  ask <question...>         POST /v1/query")
	_, _ = fmt.Fprintln(w, "  translate <question...>   POST /v1/query/translate")
	_, _ = fmt.Fprintln(w, "  register <user> <pass>    POST /v1/auth/register")
	_, _ = fmt.Fprintln(w, "  login <user> <pass>       POST /v1/auth/token")
	_, _ = fmt.Fprintln(w, "  result <id>               GET /v1/history/{id}/result.parquet (needs -out)")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
