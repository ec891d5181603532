// Package reconcile applies asynchronous completion callbacks from the
// executor to queue and tracker state. The executor delivers at least once,
// so every path here must be safe to replay.
package reconcile

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gildigital/autoapply/internal/storage"
)

var (
	// ErrUnauthorized is returned when the shared secret does not match.
	// The queue entry is left untouched.
	ErrUnauthorized = errors.New("invalid worker secret")
	// ErrBadRequest is returned when a correlation id is missing.
	ErrBadRequest = errors.New("missing correlation id")
)

// Callback is one completion notification from the executor.
type Callback struct {
	QueueID     string `json:"queueId"`
	JobID       int64  `json:"jobId"`
	UserID      int64  `json:"userId"`
	FinalStatus string `json:"finalStatus"`
	Message     string `json:"message"`
	Secret      string `json:"secret,omitempty"`
}

// Store is the slice of the storage layer the reconciler writes through.
type Store interface {
	GetQueueEntry(ctx context.Context, id string) (storage.QueueEntry, error)
	ResolveQueueEntry(ctx context.Context, id, status, errMsg string) error
	MarkApplied(ctx context.Context, id int64, at time.Time) error
	SetApplicationStatus(ctx context.Context, id int64, appStatus string) error
	AppendLog(ctx context.Context, l storage.AutoApplyLogEntry) error
}

type Reconciler struct {
	store  Store
	secret string
	logger *slog.Logger
}

func NewReconciler(store Store, sharedSecret string, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, secret: sharedSecret, logger: logger}
}

// Apply authenticates and applies one callback. Redelivery of a callback for
// an already-resolved entry is a no-op success. finalStatus maps
// completed→applied, skipped→skipped, anything else→failed.
func (r *Reconciler) Apply(ctx context.Context, cb Callback) error {
	if subtle.ConstantTimeCompare([]byte(cb.Secret), []byte(r.secret)) != 1 {
		return ErrUnauthorized
	}
	if cb.QueueID == "" || cb.JobID == 0 || cb.UserID == 0 {
		return ErrBadRequest
	}

	entry, err := r.store.GetQueueEntry(ctx, cb.QueueID)
	if err != nil {
		return fmt.Errorf("loading queue entry %s: %w", cb.QueueID, err)
	}
	if isTerminal(entry.Status) {
		r.logger.Debug("callback for resolved entry ignored",
			"queue_id", cb.QueueID, "status", entry.Status)
		return nil
	}

	outcome, appStatus := mapFinalStatus(cb.FinalStatus)
	if err := r.store.ResolveQueueEntry(ctx, cb.QueueID, outcome, cb.Message); err != nil {
		return fmt.Errorf("resolving queue entry %s: %w", cb.QueueID, err)
	}

	if outcome == storage.QueueCompleted {
		if err := r.store.MarkApplied(ctx, cb.JobID, time.Now().UTC()); err != nil {
			return fmt.Errorf("marking application %d applied: %w", cb.JobID, err)
		}
	} else {
		if err := r.store.SetApplicationStatus(ctx, cb.JobID, appStatus); err != nil {
			return fmt.Errorf("updating application %d status: %w", cb.JobID, err)
		}
	}

	jobID := cb.JobID
	if err := r.store.AppendLog(ctx, storage.AutoApplyLogEntry{
		UserID:  cb.UserID,
		JobID:   &jobID,
		Status:  appStatus,
		Message: cb.Message,
	}); err != nil {
		return fmt.Errorf("appending audit log: %w", err)
	}

	r.logger.Info("callback applied",
		"queue_id", cb.QueueID, "job_id", cb.JobID, "outcome", outcome)
	return nil
}

func isTerminal(status string) bool {
	switch status {
	case storage.QueueCompleted, storage.QueueFailed, storage.QueueSkipped:
		return true
	}
	return false
}

// mapFinalStatus translates the executor's status vocabulary into a queue
// outcome and an application pipeline status.
func mapFinalStatus(final string) (outcome, appStatus string) {
	switch final {
	case "completed":
		return storage.QueueCompleted, storage.AppStatusApplied
	case "skipped":
		return storage.QueueSkipped, storage.AppStatusSkipped
	default: // failed, error, anything unrecognized
		return storage.QueueFailed, storage.AppStatusFailed
	}
}
