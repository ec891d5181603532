package executor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gildigital/autoapply/internal/formfill"
)

func TestIntrospectReturnsSchema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/introspect" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("x-worker-secret"); got != "hunter2" {
			t.Errorf("secret header = %q", got)
		}
		var req struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.URL != "https://jobs.example.com/apply/42" {
			t.Errorf("url = %q", req.URL)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"fields": []map[string]any{
				{"name": "email", "type": "text", "required": true},
				{"name": "resume", "type": "file", "required": true},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "hunter2")
	schema, err := c.Introspect(context.Background(), "https://jobs.example.com/apply/42")
	if err != nil {
		t.Fatalf("Introspect: %v", err)
	}
	if len(schema.Fields) != 2 {
		t.Fatalf("fields = %d, want 2", len(schema.Fields))
	}
	if schema.Fields[1].Type != formfill.FieldFile || !schema.Fields[1].Required {
		t.Errorf("file field = %+v", schema.Fields[1])
	}
}

func TestSubmitCarriesCorrelationIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.QueueID != "q-1" || req.JobID != 7 || req.UserID != 3 {
			t.Errorf("correlation ids = %+v", req)
		}
		if req.Payload == nil || req.Payload.Fields["email"] != "ada@example.com" {
			t.Errorf("payload = %+v", req.Payload)
		}
		json.NewEncoder(w).Encode(SubmitResult{Status: StatusSuccess})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "hunter2")
	res, err := c.Submit(context.Background(), SubmitRequest{
		ApplyURL: "https://jobs.example.com/apply/42",
		QueueID:  "q-1",
		JobID:    7,
		UserID:   3,
		Payload:  &formfill.Payload{Fields: map[string]string{"email": "ada@example.com"}},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Status != StatusSuccess {
		t.Errorf("status = %q", res.Status)
	}
}

func TestServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "hunter2")
	_, err := c.Submit(context.Background(), SubmitRequest{QueueID: "q-1"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestConnectionRefusedIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // immediately, so the address refuses connections

	c := NewClient(srv.URL, "hunter2")
	_, err := c.Introspect(context.Background(), "https://jobs.example.com/apply/42")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestClientErrorIsNotUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad url", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "hunter2")
	_, err := c.Introspect(context.Background(), "not-a-url")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrUnavailable) {
		t.Fatal("4xx must not read as unavailable")
	}
}
