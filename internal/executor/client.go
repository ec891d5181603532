// Package executor is the HTTP client for the out-of-process browser
// automation service that performs the actual form interaction. This side
// only introspects forms and hands off submissions; the authoritative result
// arrives later on the callback endpoint.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gildigital/autoapply/internal/formfill"
)

// ErrUnavailable wraps transport-level failures so callers can distinguish
// "executor unreachable" from a rejected request.
var ErrUnavailable = errors.New("executor unavailable")

// Status values returned by the synchronous submit response. Success here
// means "accepted for processing", not "application submitted".
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// Client talks to the executor service.
type Client struct {
	baseURL      string
	sharedSecret string
	httpClient   *http.Client
}

func NewClient(baseURL, sharedSecret string) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		sharedSecret: sharedSecret,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
	}
}

type introspectRequest struct {
	URL string `json:"url"`
}

type introspectResponse struct {
	Fields []formfill.FormField `json:"fields"`
}

// Introspect asks the executor to load the apply URL and describe the
// application form it finds there.
func (c *Client) Introspect(ctx context.Context, applyURL string) (formfill.FormSchema, error) {
	var resp introspectResponse
	if err := c.post(ctx, "/introspect", introspectRequest{URL: applyURL}, &resp); err != nil {
		return formfill.FormSchema{}, fmt.Errorf("introspect %s: %w", applyURL, err)
	}
	return formfill.FormSchema{Fields: resp.Fields}, nil
}

// SubmitRequest carries the payload and the correlation ids the executor
// echoes back on its completion callback.
type SubmitRequest struct {
	ApplyURL string            `json:"url"`
	QueueID  string            `json:"queueId"`
	JobID    int64             `json:"jobId"`
	UserID   int64             `json:"userId"`
	Payload  *formfill.Payload `json:"payload"`
}

// SubmitResult is the synchronous acknowledgement. The terminal outcome for
// the queue entry arrives via the callback reconciler.
type SubmitResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Submit hands a prepared application to the executor. A nil error with
// StatusSuccess means the executor accepted the work.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	var resp SubmitResult
	if err := c.post(ctx, "/submit", req, &resp); err != nil {
		return SubmitResult{}, fmt.Errorf("submit queue entry %s: %w", req.QueueID, err)
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-worker-secret", c.sharedSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("executor returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
