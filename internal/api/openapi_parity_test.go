package api

import (
	"bufio"
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
)

// TestOpenAPIOperationsAreServed checks that every operation in
// api/openapi.yaml reaches a handler and that the document lists every route.
func TestOpenAPIOperationsAreServed(t *testing.T) {
	operations := readOpenAPIOperations(t)
	want := []string{
		"GET /",
		"GET /v1/health",
		"GET /v1/ready",
		"GET /v1/metrics",
		"POST /v1/auth/register",
		"POST /v1/auth/token",
		"POST /v1/query",
		"POST /v1/query/translate",
		"GET /v1/schema",
		"GET /v1/history",
		"GET /v1/history/{id}/result.parquet",
	}
	sort.Strings(want)
	if strings.Join(operations, "\n") != strings.Join(want, "\n") {
		t.Fatalf("openapi operations:\n%s\nwant:\n%s", strings.Join(operations, "\n"), strings.Join(want, "\n"))
	}

	h := NewHandler(loadConfig(t, nil), Dependencies{})
	for _, operation := range operations {
		method, path, _ := strings.Cut(operation, " ")
		path = strings.ReplaceAll(path, "{id}", "1")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(method, path, bytes.NewBufferString("{}")))

		muxMiss := rr.Code == http.StatusMethodNotAllowed ||
			(rr.Code == http.StatusNotFound && strings.HasPrefix(rr.Header().Get("Content-Type"), "text/plain"))
		if muxMiss {
			t.Fatalf("%s is documented but not routed (status %d)", operation, rr.Code)
		}
	}
}

func readOpenAPIOperations(t *testing.T) []string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	openAPIPath := filepath.Join(filepath.Dir(filename), "..", "..", "api", "openapi.yaml")
	content, err := os.ReadFile(openAPIPath)
	if err != nil {
		t.Fatalf("read openapi file error = %v", err)
	}

	var operations []string
	inPaths := false
	currentPath := ""
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "paths:":
			inPaths = true
		case !inPaths:
		case line != "" && !strings.HasPrefix(line, " "):
			inPaths = false
		case strings.HasPrefix(line, "  /") && strings.HasSuffix(line, ":"):
			currentPath = strings.TrimSuffix(strings.TrimSpace(line), ":")
		case currentPath != "" && (line == "    get:" || line == "    post:"):
			method := strings.ToUpper(strings.TrimSuffix(strings.TrimSpace(line), ":"))
			operations = append(operations, method+" "+currentPath)
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan openapi file error = %v", err)
	}
	sort.Strings(operations)
	return operations
}
