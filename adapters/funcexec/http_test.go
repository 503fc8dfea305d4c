package funcexec

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/jembatan/domain/entities"
)

func testRequest() entities.FunctionCallRequest {
	return entities.FunctionCallRequest{
		ID:            "call-1",
		Name:          "get_weather",
		ArgumentsJSON: `{"city": "Jakarta"}`,
	}
}

func TestExecute_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/function-call" {
			t.Errorf("expected /function-call path, got %s", r.URL.Path)
		}
		var req executeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("invalid request body: %v", err)
		}
		if req.Name != "get_weather" {
			t.Errorf("expected name get_weather, got %s", req.Name)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content": {"temp": 30}}`))
	}))
	defer server.Close()

	executor, err := NewHTTPExecutor(Config{BaseURL: server.URL}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp := executor.Execute(context.Background(), testRequest())
	if resp.Failed() {
		t.Fatalf("expected success, got error: %s", resp.ErrorMessage)
	}
	if resp.ID != "call-1" {
		t.Errorf("expected correlated id, got %s", resp.ID)
	}
	if !strings.Contains(resp.ContentJSON, "30") {
		t.Errorf("expected backend content, got %s", resp.ContentJSON)
	}
}

func TestExecute_UnwrappedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"temp": 30}`))
	}))
	defer server.Close()

	executor, _ := NewHTTPExecutor(Config{BaseURL: server.URL}, zap.NewNop())
	resp := executor.Execute(context.Background(), testRequest())
	if resp.Failed() {
		t.Fatalf("expected success, got error: %s", resp.ErrorMessage)
	}
	if resp.ContentJSON != `{"temp": 30}` {
		t.Errorf("expected raw body passthrough, got %s", resp.ContentJSON)
	}
}

func TestExecute_BackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	executor, _ := NewHTTPExecutor(Config{BaseURL: server.URL}, zap.NewNop())
	resp := executor.Execute(context.Background(), testRequest())
	if !resp.Failed() {
		t.Fatal("expected synthesized error response")
	}
	if !strings.Contains(resp.ErrorMessage, "500") {
		t.Errorf("expected status in error, got %s", resp.ErrorMessage)
	}
	if resp.ID != "call-1" {
		t.Errorf("expected correlated id on failure, got %s", resp.ID)
	}
}

func TestExecute_NetworkFailure(t *testing.T) {
	executor, _ := NewHTTPExecutor(Config{
		BaseURL: "http://127.0.0.1:1",
		Timeout: 500 * time.Millisecond,
	}, zap.NewNop())

	resp := executor.Execute(context.Background(), testRequest())
	if !resp.Failed() {
		t.Fatal("expected synthesized error for unreachable backend")
	}
}

func TestNewHTTPExecutor_RequiresBaseURL(t *testing.T) {
	if _, err := NewHTTPExecutor(Config{}, zap.NewNop()); err == nil {
		t.Error("expected error for missing base URL")
	}
}
