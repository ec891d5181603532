package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gildigital/autoapply/internal/executor"
	"github.com/gildigital/autoapply/internal/formfill"
	"github.com/gildigital/autoapply/internal/profile"
	"github.com/gildigital/autoapply/internal/queue"
	"github.com/gildigital/autoapply/internal/storage"
)

type resolution struct {
	outcome string
	message string
}

type fakeQueue struct {
	mu       sync.Mutex
	pending  []storage.QueueEntry
	claimErr error
	claimed  []string
	resolved map[string]resolution
}

func newFakeQueue(entries ...storage.QueueEntry) *fakeQueue {
	return &fakeQueue{pending: entries, resolved: make(map[string]resolution)}
}

func (q *fakeQueue) NextBatch(ctx context.Context, limit int) ([]storage.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) > limit {
		return q.pending[:limit], nil
	}
	return q.pending, nil
}

func (q *fakeQueue) Claim(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.claimErr != nil {
		return q.claimErr
	}
	q.claimed = append(q.claimed, id)
	var rest []storage.QueueEntry
	for _, e := range q.pending {
		if e.ID != id {
			rest = append(rest, e)
		}
	}
	q.pending = rest
	return nil
}

func (q *fakeQueue) Resolve(ctx context.Context, id, outcome, message string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.resolved[id] = resolution{outcome: outcome, message: message}
	return nil
}

type fakeStore struct {
	mu        sync.Mutex
	app       storage.TrackedApplication
	resume    *storage.Resume
	payloads  []storage.ApplicationPayload
	statuses  map[int64]string
	logs      []storage.AutoApplyLogEntry
	reclaimed int
}

func newFakeStore(app storage.TrackedApplication) *fakeStore {
	return &fakeStore{app: app, statuses: make(map[int64]string)}
}

func (s *fakeStore) GetTrackedApplication(ctx context.Context, id int64) (storage.TrackedApplication, error) {
	return s.app, nil
}

func (s *fakeStore) SetApplicationStatus(ctx context.Context, id int64, appStatus string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = appStatus
	return nil
}

func (s *fakeStore) SavePayload(ctx context.Context, p storage.ApplicationPayload) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, p)
	return "payload-1", nil
}

func (s *fakeStore) AppendLog(ctx context.Context, l storage.AutoApplyLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, l)
	return nil
}

func (s *fakeStore) DefaultResume(ctx context.Context, userID int64) (storage.Resume, error) {
	if s.resume == nil {
		return storage.Resume{}, storage.ErrNotFound
	}
	return *s.resume, nil
}

func (s *fakeStore) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time, errMsg string) ([]storage.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reclaimed++
	return nil, nil
}

type fakeProfiles struct{}

func (fakeProfiles) GetProfile(ctx context.Context, userID int64) (profile.Profile, error) {
	return profile.Profile{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}, nil
}

func (fakeProfiles) Summary(ctx context.Context, userID int64) (string, error) {
	return "Ada Lovelace <ada@example.com>", nil
}

type fakeExecutor struct {
	mu            sync.Mutex
	schema        formfill.FormSchema
	introspectErr error
	submitRes     executor.SubmitResult
	submitErr     error
	submitted     []executor.SubmitRequest
}

func (e *fakeExecutor) Introspect(ctx context.Context, applyURL string) (formfill.FormSchema, error) {
	return e.schema, e.introspectErr
}

func (e *fakeExecutor) Submit(ctx context.Context, req executor.SubmitRequest) (executor.SubmitResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.submitted = append(e.submitted, req)
	return e.submitRes, e.submitErr
}

type fakeMapper struct {
	result formfill.Result
	inputs []formfill.Input
}

func (m *fakeMapper) Map(ctx context.Context, in formfill.Input) formfill.Result {
	m.inputs = append(m.inputs, in)
	return m.result
}

func testEntry() storage.QueueEntry {
	return storage.QueueEntry{ID: "q-1", UserID: 3, JobID: 7, Status: storage.QueuePending}
}

func testApp() storage.TrackedApplication {
	return storage.TrackedApplication{
		ID:       7,
		UserID:   3,
		Title:    "Backend Engineer",
		Company:  "Babbage Ltd",
		ApplyURL: "https://jobs.example.com/apply/7",
	}
}

func readyResult() formfill.Result {
	return formfill.Result{
		Outcome: formfill.OutcomeReady,
		Payload: &formfill.Payload{Fields: map[string]string{"email": "ada@example.com"}},
	}
}

func TestRunOnceDispatchesPayload(t *testing.T) {
	q := newFakeQueue(testEntry())
	store := newFakeStore(testApp())
	exec := &fakeExecutor{submitRes: executor.SubmitResult{Status: executor.StatusSuccess}}
	mapper := &fakeMapper{result: readyResult()}
	w := NewWorker(q, store, fakeProfiles{}, exec, mapper, Options{})

	n, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 1 {
		t.Fatalf("processed = %d, want 1", n)
	}
	if len(store.payloads) != 1 || store.payloads[0].QueueID != "q-1" {
		t.Errorf("payloads = %+v", store.payloads)
	}
	if len(exec.submitted) != 1 {
		t.Fatalf("submissions = %d, want 1", len(exec.submitted))
	}
	req := exec.submitted[0]
	if req.QueueID != "q-1" || req.JobID != 7 || req.UserID != 3 {
		t.Errorf("submit correlation = %+v", req)
	}
	// The callback, not the loop, resolves a dispatched entry.
	if _, ok := q.resolved["q-1"]; ok {
		t.Error("dispatched entry must stay processing until the callback")
	}
}

func TestRunOnceResolvesSkippedMapping(t *testing.T) {
	q := newFakeQueue(testEntry())
	store := newFakeStore(testApp())
	exec := &fakeExecutor{schema: formfill.FormSchema{Fields: []formfill.FormField{{Name: "resume", Type: formfill.FieldFile, Required: true}}}}
	mapper := &fakeMapper{result: formfill.Result{Outcome: formfill.OutcomeSkipped, Reason: "required field \"resume\" needs a resume and none is stored"}}
	w := NewWorker(q, store, fakeProfiles{}, exec, mapper, Options{})

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	res, ok := q.resolved["q-1"]
	if !ok || res.outcome != storage.QueueSkipped {
		t.Fatalf("resolution = %+v", res)
	}
	if store.statuses[7] != storage.AppStatusSkipped {
		t.Errorf("application status = %q, want skipped", store.statuses[7])
	}
	if len(store.logs) != 1 || store.logs[0].Status != storage.AppStatusSkipped {
		t.Errorf("logs = %+v", store.logs)
	}
	if len(exec.submitted) != 0 {
		t.Error("skipped entry must not be submitted")
	}
}

func TestRunOnceSkipsOnIntrospectFailure(t *testing.T) {
	q := newFakeQueue(testEntry())
	store := newFakeStore(testApp())
	exec := &fakeExecutor{introspectErr: executor.ErrUnavailable}
	mapper := &fakeMapper{result: readyResult()}
	w := NewWorker(q, store, fakeProfiles{}, exec, mapper, Options{})

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res := q.resolved["q-1"]; res.outcome != storage.QueueSkipped {
		t.Errorf("resolution = %+v, want skipped", res)
	}
	if len(mapper.inputs) != 0 {
		t.Error("mapper must not run without a schema")
	}
}

func TestRunOnceFailsWhenExecutorUnavailable(t *testing.T) {
	q := newFakeQueue(testEntry())
	store := newFakeStore(testApp())
	exec := &fakeExecutor{submitErr: executor.ErrUnavailable}
	mapper := &fakeMapper{result: readyResult()}
	w := NewWorker(q, store, fakeProfiles{}, exec, mapper, Options{})

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	res := q.resolved["q-1"]
	if res.outcome != storage.QueueFailed || res.message != "executor unavailable" {
		t.Errorf("resolution = %+v", res)
	}
	if store.statuses[7] != storage.AppStatusFailed {
		t.Errorf("application status = %q, want failed", store.statuses[7])
	}
}

func TestRunOnceSkipsEntriesClaimedElsewhere(t *testing.T) {
	q := newFakeQueue(testEntry())
	q.claimErr = queue.ErrAlreadyClaimed
	store := newFakeStore(testApp())
	exec := &fakeExecutor{}
	mapper := &fakeMapper{result: readyResult()}
	w := NewWorker(q, store, fakeProfiles{}, exec, mapper, Options{})

	n, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 0 {
		t.Errorf("processed = %d, want 0", n)
	}
	if len(exec.submitted) != 0 {
		t.Error("entry claimed elsewhere must not be dispatched")
	}
}

func TestRunOnceAttachesResume(t *testing.T) {
	q := newFakeQueue(testEntry())
	store := newFakeStore(testApp())
	store.resume = &storage.Resume{
		Filename:    "ada.pdf",
		ContentType: "application/pdf",
		Content:     []byte("%PDF"),
		Text:        "analytical engines",
	}
	exec := &fakeExecutor{submitRes: executor.SubmitResult{Status: executor.StatusSuccess}}
	mapper := &fakeMapper{result: readyResult()}
	w := NewWorker(q, store, fakeProfiles{}, exec, mapper, Options{})

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(mapper.inputs) != 1 {
		t.Fatalf("mapper calls = %d, want 1", len(mapper.inputs))
	}
	in := mapper.inputs[0]
	if in.Resume == nil || in.Resume.Filename != "ada.pdf" {
		t.Errorf("mapper input resume = %+v", in.Resume)
	}
	if in.ResumeText != "analytical engines" {
		t.Errorf("resume text = %q", in.ResumeText)
	}
	if in.PostingTitle != "Backend Engineer" {
		t.Errorf("posting title = %q", in.PostingTitle)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	q := newFakeQueue()
	store := newFakeStore(testApp())
	w := NewWorker(q, store, fakeProfiles{}, &fakeExecutor{}, &fakeMapper{}, Options{PollInterval: time.Millisecond})

	ctx := context.Background()
	w.Start(ctx)
	w.Start(ctx) // no-op
	if !w.Running() {
		t.Fatal("worker should be running after Start")
	}

	w.Stop()
	w.Stop() // no-op
	if w.Running() {
		t.Fatal("worker should be stopped after Stop")
	}

	if !w.EnsureRunning(ctx) {
		t.Fatal("EnsureRunning should restart a dead loop")
	}
	if w.EnsureRunning(ctx) {
		t.Fatal("EnsureRunning on a live loop should be a no-op")
	}
	w.Stop()

	store.mu.Lock()
	reclaimed := store.reclaimed
	store.mu.Unlock()
	if reclaimed == 0 {
		t.Error("running loop should sweep for stale entries")
	}
}
