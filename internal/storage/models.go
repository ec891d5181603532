package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert violates a uniqueness constraint,
// e.g. tracking the same external posting twice for one user.
var ErrDuplicate = errors.New("duplicate record")

// Lifecycle status of a tracked application.
const (
	StatusSaved     = "saved"
	StatusApplied   = "applied"
	StatusInterview = "interview"
	StatusOffer     = "offer"
	StatusRejected  = "rejected"
)

// Auto-apply pipeline status of a tracked application.
const (
	AppStatusPending = "pending"
	AppStatusApplied = "applied"
	AppStatusSkipped = "skipped"
	AppStatusFailed  = "failed"
)

// Queue entry states. An entry always terminates in completed, failed or
// skipped; standby entries are parked and never claimed.
const (
	QueuePending    = "pending"
	QueueProcessing = "processing"
	QueueCompleted  = "completed"
	QueueFailed     = "failed"
	QueueSkipped    = "skipped"
	QueueStandby    = "standby"
)

// TrackedApplication is a job posting under management for a user.
type TrackedApplication struct {
	ID                int64
	UserID            int64
	Title             string
	Company           string
	ExternalID        string // posting id at the source, dedup key per user
	ApplyURL          string
	Description       string
	Status            string // lifecycle: saved/applied/interview/offer/rejected
	ApplicationStatus string // pipeline: pending/applied/skipped/failed
	MatchScore        *int   // 0..100, nil until scored
	MatchReasons      string // JSON array stored as text
	Source            string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	AppliedAt         *time.Time
	SubmittedAt       *time.Time
}

// QueueEntry is one durable request to submit an application.
type QueueEntry struct {
	ID          string
	UserID      int64
	JobID       int64 // tracked application id
	Priority    int
	Status      string
	Attempts    int
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProcessedAt *time.Time
}

// ApplicationPayload is the materialized field→value assignment for one
// queue entry, persisted so retries and audits do not recompute it.
type ApplicationPayload struct {
	ID         string
	QueueID    string
	FieldsJSON string // field name → value map, JSON object
	ResumeMeta string // JSON: filename and content type, empty when no file attached
	CreatedAt  time.Time
}

// AutoApplyLogEntry is an append-only audit record.
type AutoApplyLogEntry struct {
	ID        string
	UserID    int64
	JobID     *int64
	Status    string
	Message   string
	CreatedAt time.Time
}

// SubscriptionPlan is read-only billing reference data.
type SubscriptionPlan struct {
	ID             string
	DailyLimit     int
	Priority       bool
	ResumesAllowed int
	AITier         string
}

// Resume is an uploaded resume with extracted text.
type Resume struct {
	ID          string
	UserID      int64
	Filename    string
	ContentType string
	Content     []byte // raw file bytes
	Text        string // extracted text used for scoring and generation
	IsDefault   bool
	CreatedAt   time.Time
}
