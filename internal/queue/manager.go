// Package queue enforces per-user daily quota and drives queue entry state
// transitions. All mutations go through the store's single-row guarded
// updates, so the manager itself holds no locks.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gildigital/autoapply/internal/storage"
)

var (
	// ErrQuotaExceeded is returned when the user has no submission slots
	// left today before any of the requested ids could be admitted.
	ErrQuotaExceeded = errors.New("daily application quota exceeded")
	// ErrAlreadyClaimed is returned when claiming an entry that is not
	// pending.
	ErrAlreadyClaimed = errors.New("queue entry already claimed")
	// ErrAlreadyQueued is returned when resubmitting a job that still has
	// an active queue entry.
	ErrAlreadyQueued = errors.New("job already queued")
	// ErrNotResubmittable guards the resubmission precondition.
	ErrNotResubmittable = errors.New("only failed applications can be resubmitted")
)

// Terminal outcomes accepted by Resolve.
const (
	OutcomeCompleted = storage.QueueCompleted
	OutcomeFailed    = storage.QueueFailed
	OutcomeSkipped   = storage.QueueSkipped
)

// Store is the slice of the storage layer the manager needs.
type Store interface {
	EnqueueEntries(ctx context.Context, userID int64, jobIDs []int64, priority, dailyLimit int) ([]int64, int, error)
	PendingBatch(ctx context.Context, limit int) ([]storage.QueueEntry, error)
	ClaimQueueEntry(ctx context.Context, id string) error
	ResolveQueueEntry(ctx context.Context, id, status, errMsg string) error
	GetQueueEntry(ctx context.Context, id string) (storage.QueueEntry, error)
	DeleteQueueEntry(ctx context.Context, id string) error
	QueueCounts(ctx context.Context, userID int64) (map[string]int, error)
	CountAppliedToday(ctx context.Context, userID int64, now time.Time) (int, error)
	GetTrackedApplication(ctx context.Context, id int64) (storage.TrackedApplication, error)
	SetApplicationStatus(ctx context.Context, id int64, appStatus string) error
	GetPlan(ctx context.Context, id string) (storage.SubscriptionPlan, error)
}

// PlanResolver maps a user to their subscription plan id. *profile.Manager
// satisfies it.
type PlanResolver interface {
	PlanID(ctx context.Context, userID int64) string
}

type Manager struct {
	store Store
	plans PlanResolver
}

func NewManager(store Store, plans PlanResolver) *Manager {
	return &Manager{store: store, plans: plans}
}

// EnqueueResult reports which ids were admitted and how many slots the user
// has left today after admission.
type EnqueueResult struct {
	Accepted       []int64 `json:"accepted"`
	RemainingSlots int     `json:"remainingSlots"`
}

// Enqueue admits the longest prefix of jobIDs that fits the user's remaining
// daily quota, in input order. Returns ErrQuotaExceeded when no slot was
// available before any id could be admitted.
func (m *Manager) Enqueue(ctx context.Context, userID int64, jobIDs []int64) (EnqueueResult, error) {
	plan, err := m.planFor(ctx, userID)
	if err != nil {
		return EnqueueResult{}, err
	}

	accepted, remaining, err := m.store.EnqueueEntries(ctx, userID, jobIDs, planPriority(plan), plan.DailyLimit)
	if err != nil {
		return EnqueueResult{}, fmt.Errorf("enqueue for user %d: %w", userID, err)
	}
	if len(accepted) == 0 && remaining == 0 && len(jobIDs) > 0 {
		return EnqueueResult{RemainingSlots: 0}, ErrQuotaExceeded
	}
	return EnqueueResult{Accepted: accepted, RemainingSlots: remaining}, nil
}

// NextBatch returns up to limit pending entries, priority tiers first, FIFO
// within a tier.
func (m *Manager) NextBatch(ctx context.Context, limit int) ([]storage.QueueEntry, error) {
	return m.store.PendingBatch(ctx, limit)
}

// Claim transitions an entry pending→processing exactly once.
func (m *Manager) Claim(ctx context.Context, id string) error {
	err := m.store.ClaimQueueEntry(ctx, id)
	if errors.Is(err, storage.ErrConflict) {
		return fmt.Errorf("%w: %s", ErrAlreadyClaimed, id)
	}
	return err
}

// Resolve moves a processing entry to a terminal outcome. Re-resolving a
// terminal entry is a no-op success.
func (m *Manager) Resolve(ctx context.Context, id, outcome, message string) error {
	switch outcome {
	case OutcomeCompleted, OutcomeFailed, OutcomeSkipped:
	default:
		return fmt.Errorf("invalid resolution outcome %q", outcome)
	}
	return m.store.ResolveQueueEntry(ctx, id, outcome, message)
}

// Resubmit re-enters a previously failed application into the queue. The
// stored match score is reused; form feasibility and field assignment are
// redone on the next dispatch since the form may have changed.
func (m *Manager) Resubmit(ctx context.Context, jobID int64) error {
	app, err := m.store.GetTrackedApplication(ctx, jobID)
	if err != nil {
		return fmt.Errorf("loading application %d: %w", jobID, err)
	}
	if app.ApplicationStatus != storage.AppStatusFailed {
		return fmt.Errorf("%w (application %d is %s)", ErrNotResubmittable, jobID, app.ApplicationStatus)
	}

	plan, err := m.planFor(ctx, app.UserID)
	if err != nil {
		return err
	}
	accepted, remaining, err := m.store.EnqueueEntries(ctx, app.UserID, []int64{jobID}, planPriority(plan), plan.DailyLimit)
	if err != nil {
		return fmt.Errorf("resubmit job %d: %w", jobID, err)
	}
	if len(accepted) == 0 {
		if remaining == 0 {
			return ErrQuotaExceeded
		}
		return fmt.Errorf("%w: job %d", ErrAlreadyQueued, jobID)
	}

	if err := m.store.SetApplicationStatus(ctx, jobID, storage.AppStatusPending); err != nil {
		return fmt.Errorf("resetting application %d status: %w", jobID, err)
	}
	return nil
}

// Dequeue removes an entry and its payload.
func (m *Manager) Dequeue(ctx context.Context, id string) error {
	return m.store.DeleteQueueEntry(ctx, id)
}

// Get fetches one entry.
func (m *Manager) Get(ctx context.Context, id string) (storage.QueueEntry, error) {
	return m.store.GetQueueEntry(ctx, id)
}

// StatusReport is the per-user queue snapshot served by the status endpoint.
type StatusReport struct {
	Counts         map[string]int `json:"counts"`
	AppliedToday   int            `json:"appliedToday"`
	DailyLimit     int            `json:"dailyLimit"`
	RemainingSlots int            `json:"remainingSlots"`
	Plan           string         `json:"plan"`
}

// Status computes the user's queue counts and remaining quota for today.
func (m *Manager) Status(ctx context.Context, userID int64) (StatusReport, error) {
	plan, err := m.planFor(ctx, userID)
	if err != nil {
		return StatusReport{}, err
	}
	counts, err := m.store.QueueCounts(ctx, userID)
	if err != nil {
		return StatusReport{}, fmt.Errorf("counting queue entries: %w", err)
	}
	applied, err := m.store.CountAppliedToday(ctx, userID, time.Now().UTC())
	if err != nil {
		return StatusReport{}, fmt.Errorf("counting applications today: %w", err)
	}

	remaining := plan.DailyLimit - applied - counts[storage.QueuePending] - counts[storage.QueueProcessing]
	if remaining < 0 {
		remaining = 0
	}
	return StatusReport{
		Counts:         counts,
		AppliedToday:   applied,
		DailyLimit:     plan.DailyLimit,
		RemainingSlots: remaining,
		Plan:           plan.ID,
	}, nil
}

// planFor resolves the user's plan, falling back to the free tier when the
// profile names a plan that does not exist.
func (m *Manager) planFor(ctx context.Context, userID int64) (storage.SubscriptionPlan, error) {
	id := m.plans.PlanID(ctx, userID)
	plan, err := m.store.GetPlan(ctx, id)
	if errors.Is(err, storage.ErrNotFound) && id != "free" {
		plan, err = m.store.GetPlan(ctx, "free")
	}
	if err != nil {
		return storage.SubscriptionPlan{}, fmt.Errorf("loading plan %q: %w", id, err)
	}
	return plan, nil
}

func planPriority(p storage.SubscriptionPlan) int {
	if p.Priority {
		return 1
	}
	return 0
}
