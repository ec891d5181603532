// Package dispatch runs the single polling loop that claims pending queue
// entries, builds submission payloads, and hands them to the executor. The
// loop never awaits submission results; the callback reconciler owns the
// terminal state.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gildigital/autoapply/internal/executor"
	"github.com/gildigital/autoapply/internal/formfill"
	"github.com/gildigital/autoapply/internal/match"
	"github.com/gildigital/autoapply/internal/profile"
	"github.com/gildigital/autoapply/internal/queue"
	"github.com/gildigital/autoapply/internal/storage"
)

// Queue is the claim/resolve surface of the queue manager.
type Queue interface {
	NextBatch(ctx context.Context, limit int) ([]storage.QueueEntry, error)
	Claim(ctx context.Context, id string) error
	Resolve(ctx context.Context, id, outcome, message string) error
}

// Store is the slice of the storage layer the worker reads and writes.
type Store interface {
	GetTrackedApplication(ctx context.Context, id int64) (storage.TrackedApplication, error)
	SetApplicationStatus(ctx context.Context, id int64, appStatus string) error
	SavePayload(ctx context.Context, p storage.ApplicationPayload) (string, error)
	AppendLog(ctx context.Context, l storage.AutoApplyLogEntry) error
	DefaultResume(ctx context.Context, userID int64) (storage.Resume, error)
	ReclaimStaleProcessing(ctx context.Context, cutoff time.Time, errMsg string) ([]storage.QueueEntry, error)
}

// Profiles supplies the applicant data field assignment draws on.
type Profiles interface {
	GetProfile(ctx context.Context, userID int64) (profile.Profile, error)
	Summary(ctx context.Context, userID int64) (string, error)
}

// Executor is the browser automation client.
type Executor interface {
	Introspect(ctx context.Context, applyURL string) (formfill.FormSchema, error)
	Submit(ctx context.Context, req executor.SubmitRequest) (executor.SubmitResult, error)
}

// Mapper builds payloads from introspected schemas.
type Mapper interface {
	Map(ctx context.Context, in formfill.Input) formfill.Result
}

const staleReclaimMessage = "processing timeout"

// Worker is the dispatch loop. Exactly one loop should run per process;
// Start and Stop are idempotent and EnsureRunning restarts a dead loop.
type Worker struct {
	queue    Queue
	store    Store
	profiles Profiles
	exec     Executor
	mapper   Mapper

	poll       time.Duration
	batchSize  int
	staleAfter time.Duration
	logger     *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// Options tune the loop. Zero values fall back to defaults.
type Options struct {
	PollInterval time.Duration // default 5s
	BatchSize    int           // default 5
	StaleAfter   time.Duration // default 15m
	Logger       *slog.Logger
}

func NewWorker(q Queue, store Store, profiles Profiles, exec Executor, mapper Mapper, opts Options) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 15 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Worker{
		queue:      q,
		store:      store,
		profiles:   profiles,
		exec:       exec,
		mapper:     mapper,
		poll:       opts.PollInterval,
		batchSize:  opts.BatchSize,
		staleAfter: opts.StaleAfter,
		logger:     opts.Logger,
	}
}

// Start launches the loop in its own goroutine. A second Start while the
// loop is alive is a no-op.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true

	go func() {
		defer func() {
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			close(w.done)
		}()
		w.Run(loopCtx)
	}()
	w.logger.Info("dispatch loop started", "poll", w.poll, "batch_size", w.batchSize)
}

// Stop cancels the loop and waits for the current iteration to finish.
// Stopping a stopped worker is a no-op. In-flight executor work is not
// cancelled; its callback still lands.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done
	w.logger.Info("dispatch loop stopped")
}

// Running reports whether the loop goroutine is alive.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// EnsureRunning restarts the loop if it died. Returns true when a restart
// happened.
func (w *Worker) EnsureRunning(ctx context.Context) bool {
	if w.Running() {
		return false
	}
	w.logger.Warn("dispatch loop was not running, restarting")
	w.Start(ctx)
	return true
}

// Run polls until ctx is cancelled. Exposed for callers that manage the
// goroutine themselves.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if reclaimed, err := w.store.ReclaimStaleProcessing(ctx, time.Now().Add(-w.staleAfter), staleReclaimMessage); err != nil {
			w.logger.Error("stale entry reclaim failed", "error", err)
		} else if len(reclaimed) > 0 {
			w.logger.Warn("reclaimed stale processing entries", "count", len(reclaimed))
			for _, e := range reclaimed {
				jobID := e.JobID
				if err := w.store.AppendLog(ctx, storage.AutoApplyLogEntry{
					UserID:  e.UserID,
					JobID:   &jobID,
					Status:  storage.AppStatusFailed,
					Message: staleReclaimMessage,
				}); err != nil {
					w.logger.Error("appending audit log failed", "job_id", e.JobID, "error", err)
				}
			}
		}

		processed, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("dispatch iteration failed", "error", err)
		}
		if processed > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and dispatches one batch of pending entries. Returns the
// number of entries it claimed.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	batch, err := w.queue.NextBatch(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetching pending batch: %w", err)
	}

	processed := 0
	for _, entry := range batch {
		if ctx.Err() != nil {
			return processed, nil
		}
		if err := w.queue.Claim(ctx, entry.ID); err != nil {
			if errors.Is(err, queue.ErrAlreadyClaimed) {
				continue
			}
			return processed, fmt.Errorf("claiming entry %s: %w", entry.ID, err)
		}
		processed++

		if err := w.dispatch(ctx, entry); err != nil {
			w.logger.Warn("dispatch failed", "queue_id", entry.ID, "job_id", entry.JobID, "error", err)
			w.fail(ctx, entry, err.Error())
		}
	}
	return processed, nil
}

// dispatch runs the full attempt for one claimed entry: introspect the form,
// build the payload, persist it, and hand it to the executor.
func (w *Worker) dispatch(ctx context.Context, entry storage.QueueEntry) error {
	app, err := w.store.GetTrackedApplication(ctx, entry.JobID)
	if err != nil {
		return fmt.Errorf("loading application %d: %w", entry.JobID, err)
	}

	schema, err := w.exec.Introspect(ctx, app.ApplyURL)
	if err != nil {
		// A form we cannot read is a form we cannot fill.
		w.skip(ctx, entry, fmt.Sprintf("form introspection failed: %v", err))
		return nil
	}

	in, err := w.buildInput(ctx, app, schema)
	if err != nil {
		return err
	}

	result := w.mapper.Map(ctx, in)
	if result.Outcome == formfill.OutcomeSkipped {
		w.skip(ctx, entry, result.Reason)
		return nil
	}

	fieldsJSON, resumeMeta, err := result.Payload.Marshal()
	if err != nil {
		return fmt.Errorf("serializing payload: %w", err)
	}
	if _, err := w.store.SavePayload(ctx, storage.ApplicationPayload{
		QueueID:    entry.ID,
		FieldsJSON: fieldsJSON,
		ResumeMeta: resumeMeta,
	}); err != nil {
		return fmt.Errorf("persisting payload: %w", err)
	}

	res, err := w.exec.Submit(ctx, executor.SubmitRequest{
		ApplyURL: app.ApplyURL,
		QueueID:  entry.ID,
		JobID:    entry.JobID,
		UserID:   entry.UserID,
		Payload:  result.Payload,
	})
	if err != nil {
		if errors.Is(err, executor.ErrUnavailable) {
			w.fail(ctx, entry, "executor unavailable")
			return nil
		}
		return fmt.Errorf("submitting: %w", err)
	}
	if res.Status == executor.StatusError {
		w.fail(ctx, entry, res.Message)
		return nil
	}

	// The entry stays processing; the executor callback resolves it.
	w.logger.Info("submission dispatched", "queue_id", entry.ID, "job_id", entry.JobID)
	return nil
}

func (w *Worker) buildInput(ctx context.Context, app storage.TrackedApplication, schema formfill.FormSchema) (formfill.Input, error) {
	prof, err := w.profiles.GetProfile(ctx, app.UserID)
	if err != nil {
		return formfill.Input{}, fmt.Errorf("loading profile for user %d: %w", app.UserID, err)
	}
	summary, err := w.profiles.Summary(ctx, app.UserID)
	if err != nil {
		return formfill.Input{}, fmt.Errorf("summarizing profile: %w", err)
	}

	in := formfill.Input{
		Schema:         schema,
		Profile:        prof,
		ProfileSummary: summary,
		PostingTitle:   app.Title,
		PostingCompany: app.Company,
		PostingText:    app.Title + "\n" + app.Company + "\n" + match.StripHTML(app.Description),
	}

	resume, err := w.store.DefaultResume(ctx, app.UserID)
	switch {
	case err == nil:
		in.Resume = &formfill.ResumeFile{
			Filename:    resume.Filename,
			ContentType: resume.ContentType,
			Content:     resume.Content,
		}
		in.ResumeText = resume.Text
	case errors.Is(err, storage.ErrNotFound):
		// No resume stored; feasibility decides whether that matters.
	default:
		return formfill.Input{}, fmt.Errorf("loading resume: %w", err)
	}
	return in, nil
}

// skip resolves an entry as skipped and records why.
func (w *Worker) skip(ctx context.Context, entry storage.QueueEntry, reason string) {
	w.logger.Info("submission skipped", "queue_id", entry.ID, "job_id", entry.JobID, "reason", reason)
	w.settle(ctx, entry, storage.QueueSkipped, storage.AppStatusSkipped, reason)
}

// fail resolves an entry as failed and records why.
func (w *Worker) fail(ctx context.Context, entry storage.QueueEntry, reason string) {
	w.settle(ctx, entry, storage.QueueFailed, storage.AppStatusFailed, reason)
}

func (w *Worker) settle(ctx context.Context, entry storage.QueueEntry, outcome, appStatus, message string) {
	if err := w.queue.Resolve(ctx, entry.ID, outcome, message); err != nil {
		w.logger.Error("resolving entry failed", "queue_id", entry.ID, "error", err)
		return
	}
	if err := w.store.SetApplicationStatus(ctx, entry.JobID, appStatus); err != nil {
		w.logger.Error("updating application status failed", "job_id", entry.JobID, "error", err)
	}
	jobID := entry.JobID
	if err := w.store.AppendLog(ctx, storage.AutoApplyLogEntry{
		UserID:  entry.UserID,
		JobID:   &jobID,
		Status:  appStatus,
		Message: message,
	}); err != nil {
		w.logger.Error("appending audit log failed", "job_id", entry.JobID, "error", err)
	}
}
