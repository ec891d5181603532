package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gildigital/autoapply/internal/config"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
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
			Body:   body.String(),
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

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestEnqueueRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /enqueue": `{"accepted":[11,12],"remainingSlots":3}`,
	})

	client := ts.client()
	req := map[string]any{"userId": int64(1), "jobIds": []int64{11, 12, 13}}

	resp, err := client.post(ctx, "/enqueue", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Accepted       []int64 `json:"accepted"`
		RemainingSlots int     `json:"remainingSlots"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if len(result.Accepted) != 2 {
		t.Errorf("accepted = %v, want 2 entries", result.Accepted)
	}
	if result.RemainingSlots != 3 {
		t.Errorf("remainingSlots = %d, want 3", result.RemainingSlots)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}

	r := ts.requests[0]
	if r.Method != "POST" {
		t.Errorf("method = %q, want POST", r.Method)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["userId"] != float64(1) {
		t.Errorf("body.userId = %v, want 1", body["userId"])
	}
}

func TestEnqueueCommand_MissingUser(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"enqueue", "11"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing --user flag")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("error = %q, want it to mention 'required'", err.Error())
	}
}

func TestQueueStatus(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /queue/status": `{"counts":{"pending":2,"processing":1},"appliedToday":3,"dailyLimit":20,"remainingSlots":14,"plan":"pro"}`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/queue/status?userId=1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var report struct {
		Counts         map[string]int `json:"counts"`
		RemainingSlots int            `json:"remainingSlots"`
		Plan           string         `json:"plan"`
	}
	if err := decodeJSON(resp, &report); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if report.Plan != "pro" {
		t.Errorf("plan = %q, want pro", report.Plan)
	}
	if report.Counts["pending"] != 2 {
		t.Errorf("pending = %d, want 2", report.Counts["pending"])
	}
	if report.RemainingSlots != 14 {
		t.Errorf("remainingSlots = %d, want 14", report.RemainingSlots)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	if !strings.Contains(ts.requests[0].Path, "userId=1") {
		t.Errorf("path = %q, want userId query param", ts.requests[0].Path)
	}
}

func TestResubmitPreconditionError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(412)
		w.Write([]byte(`{"error":{"message":"only failed applications can be resubmitted","type":"precondition_failed"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "test",
		httpClient: ts.Client(),
	}

	resp, err := client.post(ctx, "/resubmit", map[string]any{"jobId": int64(7)})
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result map[string]string
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 412 response")
	}
	if !strings.Contains(err.Error(), "only failed applications") {
		t.Errorf("error = %q, want server message passed through", err.Error())
	}
}

func TestWorkerHealthDecode(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /worker/health": `{"running":true}`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/worker/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Running bool `json:"running"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !result.Running {
		t.Error("expected running = true")
	}
}

func TestServerStopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestAPIClientAuth(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client()
	client.token = "my-secret-token"

	resp, err := client.get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	if ts.requests[0].Auth != "Bearer my-secret-token" {
		t.Errorf("auth = %q, want 'Bearer my-secret-token'", ts.requests[0].Auth)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"auth_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "bad-token",
		httpClient: ts.Client(),
	}

	resp, err := client.get(ctx, "/profile?userId=1")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to contain '401'", err.Error())
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4000
	cfg.AI.PrimaryModel = "anthropic/claude-sonnet-4"

	keys := config.ShowAll(cfg)
	if len(keys) == 0 {
		t.Fatal("expected non-empty keys from ShowAll")
	}

	found := false
	for _, k := range keys {
		if k.Key == "server.port" && k.Value == "4000" {
			found = true
		}
		if k.Key == "ai.api_key" || k.Key == "executor.worker_secret" {
			t.Errorf("secret key %q must not appear in ShowAll output", k.Key)
		}
	}
	if !found {
		t.Error("expected to find server.port=4000 in ShowAll output")
	}
}

func TestPIDFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := pidFilePath(dir)

	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("readPIDFile: %v", err)
	}
	if pid <= 0 {
		t.Errorf("pid = %d, want the current process id", pid)
	}

	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Error("expected error reading removed PID file")
	}
}
