// Package funcexec executes server-side function calls against an external
// HTTP backend. Backend failures never fail the session: they are mapped to
// synthesized function-error responses and the conversation turn continues.
package funcexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/jembatan/domain/entities"
	"github.com/satriahrh/jembatan/domain/repositories"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodySize    = 1 * 1024 * 1024
)

// Config holds configuration for the HTTPExecutor.
type Config struct {
	// BaseURL is the function backend, e.g. "https://backend.internal".
	// The executor posts to {BaseURL}/function-call.
	BaseURL string
	// Timeout bounds one execution round trip. Zero means the default.
	Timeout time.Duration
}

// HTTPExecutor implements repositories.FunctionExecutor over HTTP.
type HTTPExecutor struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

var _ repositories.FunctionExecutor = (*HTTPExecutor)(nil)

type executeRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type executeResponse struct {
	Content json.RawMessage `json:"content"`
}

// NewHTTPExecutor creates an executor for the configured backend.
func NewHTTPExecutor(cfg Config, logger *zap.Logger) (*HTTPExecutor, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("function backend base URL is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &HTTPExecutor{
		endpoint: strings.TrimSuffix(cfg.BaseURL, "/") + "/function-call",
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}, nil
}

// Execute posts the call to the backend. A 2xx body becomes the content; any
// non-2xx status or transport failure becomes a synthesized error response.
func (e *HTTPExecutor) Execute(ctx context.Context, req entities.FunctionCallRequest) entities.FunctionCallResponse {
	args := json.RawMessage(req.ArgumentsJSON)
	if !json.Valid(args) {
		args, _ = json.Marshal(req.ArgumentsJSON)
	}
	body, err := json.Marshal(executeRequest{Name: req.Name, Arguments: args})
	if err != nil {
		return e.failure(req, fmt.Sprintf("failed to encode request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return e.failure(req, fmt.Sprintf("failed to create request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		e.logger.Error("Function backend request failed",
			zap.String("function", req.Name),
			zap.String("callID", req.ID),
			zap.Error(err))
		return e.failure(req, fmt.Sprintf("function backend unreachable: %v", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return e.failure(req, fmt.Sprintf("failed to read backend response: %v", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e.logger.Warn("Function backend returned error",
			zap.String("function", req.Name),
			zap.String("callID", req.ID),
			zap.Int("status", resp.StatusCode))
		return e.failure(req, fmt.Sprintf("function backend returned %d: %s", resp.StatusCode, truncate(respBody, 256)))
	}

	var parsed executeResponse
	if err := json.Unmarshal(respBody, &parsed); err == nil && len(parsed.Content) > 0 {
		return entities.FunctionCallResponse{
			ID:          req.ID,
			Name:        req.Name,
			ContentJSON: string(parsed.Content),
		}
	}

	// Backends that return the content directly rather than wrapped.
	return entities.FunctionCallResponse{
		ID:          req.ID,
		Name:        req.Name,
		ContentJSON: string(respBody),
	}
}

func (e *HTTPExecutor) failure(req entities.FunctionCallRequest, message string) entities.FunctionCallResponse {
	return entities.FunctionCallResponse{
		ID:           req.ID,
		Name:         req.Name,
		ErrorMessage: message,
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
