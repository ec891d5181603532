// Package api exposes the HTTP surface of the auto-apply service: the
// executor callback endpoint, job tracking and enqueueing, queue status,
// resubmission, resume and profile management, and worker control.
package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gildigital/autoapply/internal/match"
	"github.com/gildigital/autoapply/internal/profile"
	"github.com/gildigital/autoapply/internal/queue"
	"github.com/gildigital/autoapply/internal/reconcile"
	"github.com/gildigital/autoapply/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB
const maxResumeBodySize = 10 << 20 // 10MB, base64-encoded PDFs are bulky

// WorkerController is the dispatch loop's admin surface. The server wires it
// to the loop with its own lifetime context, so starting the loop from a
// request never ties it to that request.
type WorkerController interface {
	Start()
	Stop()
	Running() bool
	EnsureRunning() bool
}

type AppDeps struct {
	Store      *storage.Store
	Profiles   *profile.Manager
	Queue      *queue.Manager
	Gate       *match.Gate
	Reconciler *reconcile.Reconciler
	Worker     WorkerController
	Token      string
	// MatchThreshold is the enqueue eligibility default when the profile
	// carries no override.
	MatchThreshold int
}

func NewHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	// The executor authenticates with the shared secret, not the bearer
	// token.
	r.Post("/worker/update-job-status", handleWorkerCallback(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/jobs", handleTrackJobs(deps))
		r.Get("/jobs", handleListJobs(deps))
		r.Post("/enqueue", handleEnqueue(deps))
		r.Get("/queue/status", handleQueueStatus(deps))
		r.Delete("/queue/{id}", handleDequeue(deps))
		r.Post("/resubmit", handleResubmit(deps))
		r.Get("/logs", handleListLogs(deps))
		r.Post("/resumes", handleUploadResume(deps))
		r.Get("/resumes", handleListResumes(deps))
		r.Get("/profile", handleGetProfile(deps))
		r.Patch("/profile", handlePatchProfile(deps))

		r.Post("/worker/start", handleWorkerStart(deps))
		r.Post("/worker/stop", handleWorkerStop(deps))
		r.Get("/worker/health", handleWorkerHealth(deps))
		r.Post("/worker/ensure-running", handleWorkerEnsure(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func handleWorkerCallback(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var cb reconcile.Callback
		if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if header := r.Header.Get("x-worker-secret"); header != "" {
			cb.Secret = header
		}

		err := deps.Reconciler.Apply(r.Context(), cb)
		switch {
		case errors.Is(err, reconcile.ErrUnauthorized):
			httpError(w, http.StatusUnauthorized, "authentication_error", "invalid worker secret")
		case errors.Is(err, reconcile.ErrBadRequest):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "queueId, jobId and userId are required")
		case errors.Is(err, storage.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "queue entry not found")
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "applying callback: %v", err)
		default:
			writeJSON(w, map[string]string{"status": "acknowledged"})
		}
	}
}

// TrackJobRequest adds postings under management, scores each against the
// user's resume, and optionally enqueues the eligible ones.
type TrackJobRequest struct {
	UserID    int64  `json:"userId"`
	SessionID string `json:"sessionId"`
	AutoQueue bool   `json:"autoQueue"`
	Jobs      []struct {
		Title       string `json:"title"`
		Company     string `json:"company"`
		ApplyURL    string `json:"applyUrl"`
		Description string `json:"description"`
		ExternalID  string `json:"externalId"`
		Source      string `json:"source"`
	} `json:"jobs"`
}

type trackedJobResult struct {
	ID       int64    `json:"id,omitempty"`
	Title    string   `json:"title"`
	Score    int      `json:"score"`
	Reasons  []string `json:"reasons"`
	Eligible bool     `json:"eligible"`
	Error    string   `json:"error,omitempty"`
}

func handleTrackJobs(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req TrackJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.UserID == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "userId is required")
			return
		}
		if len(req.Jobs) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "jobs is required and must not be empty")
			return
		}

		threshold := deps.Profiles.MatchThreshold(r.Context(), req.UserID, deps.MatchThreshold)

		results := make([]trackedJobResult, 0, len(req.Jobs))
		var eligible []int64
		for _, j := range req.Jobs {
			res := trackedJobResult{Title: j.Title}

			id, err := deps.Store.SaveTrackedApplication(r.Context(), storage.TrackedApplication{
				UserID:      req.UserID,
				Title:       j.Title,
				Company:     j.Company,
				ApplyURL:    j.ApplyURL,
				Description: j.Description,
				ExternalID:  j.ExternalID,
				Source:      j.Source,
			})
			if errors.Is(err, storage.ErrDuplicate) {
				res.Error = "already tracked"
				results = append(results, res)
				continue
			}
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "saving job: %v", err)
				return
			}
			res.ID = id

			score, err := deps.Gate.Score(r.Context(), req.SessionID, req.UserID, match.Posting{
				ID:          id,
				Title:       j.Title,
				Company:     j.Company,
				Description: j.Description,
			})
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "scoring job: %v", err)
				return
			}
			reasonsJSON, _ := json.Marshal(score.Reasons)
			if err := deps.Store.UpdateMatchScore(r.Context(), id, score.Score, string(reasonsJSON)); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "storing match score: %v", err)
				return
			}

			res.Score = score.Score
			res.Reasons = score.Reasons
			res.Eligible = score.Score >= threshold
			if res.Eligible {
				eligible = append(eligible, id)
			}
			results = append(results, res)
		}

		response := map[string]any{"jobs": results, "threshold": threshold}
		if req.AutoQueue && len(eligible) > 0 {
			enq, err := deps.Queue.Enqueue(r.Context(), req.UserID, eligible)
			switch {
			case errors.Is(err, queue.ErrQuotaExceeded):
				response["queued"] = []int64{}
				response["remainingSlots"] = 0
				response["quotaExceeded"] = true
			case err != nil:
				httpError(w, http.StatusInternalServerError, "api_error", "enqueueing eligible jobs: %v", err)
				return
			default:
				if enq.Accepted == nil {
					enq.Accepted = []int64{}
				}
				response["queued"] = enq.Accepted
				response["remainingSlots"] = enq.RemainingSlots
				response["quotaExceeded"] = enq.RemainingSlots == 0 && len(enq.Accepted) < len(eligible)
			}
		}
		writeJSON(w, response)
	}
}

func handleListJobs(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUserID(w, r)
		if !ok {
			return
		}
		limit := parseIntParam(r, "limit", 50, 500)

		jobs, err := deps.Store.ListTrackedApplications(r.Context(), userID, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing jobs: %v", err)
			return
		}
		if jobs == nil {
			jobs = []storage.TrackedApplication{}
		}
		writeJSON(w, jobs)
	}
}

type EnqueueRequest struct {
	UserID int64   `json:"userId"`
	JobIDs []int64 `json:"jobIds"`
}

func handleEnqueue(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req EnqueueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.UserID == 0 || len(req.JobIDs) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "userId and jobIds are required")
			return
		}

		res, err := deps.Queue.Enqueue(r.Context(), req.UserID, req.JobIDs)
		if errors.Is(err, queue.ErrQuotaExceeded) {
			httpError(w, http.StatusTooManyRequests, "quota_exceeded", "daily application quota exceeded")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "enqueueing: %v", err)
			return
		}
		if res.Accepted == nil {
			res.Accepted = []int64{}
		}
		writeJSON(w, res)
	}
}

func handleQueueStatus(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUserID(w, r)
		if !ok {
			return
		}
		report, err := deps.Queue.Status(r.Context(), userID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "computing queue status: %v", err)
			return
		}
		writeJSON(w, report)
	}
}

func handleDequeue(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := deps.Queue.Dequeue(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "queue entry not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "dequeueing: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

type ResubmitRequest struct {
	JobID int64 `json:"jobId"`
}

func handleResubmit(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ResubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.JobID == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "jobId is required")
			return
		}

		err := deps.Queue.Resubmit(r.Context(), req.JobID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "application not found")
		case errors.Is(err, queue.ErrNotResubmittable):
			httpError(w, http.StatusPreconditionFailed, "precondition_failed", "only failed applications can be resubmitted")
		case errors.Is(err, queue.ErrAlreadyQueued):
			httpError(w, http.StatusConflict, "conflict", "application already queued")
		case errors.Is(err, queue.ErrQuotaExceeded):
			httpError(w, http.StatusTooManyRequests, "quota_exceeded", "daily application quota exceeded")
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "resubmitting: %v", err)
		default:
			writeJSON(w, map[string]string{"status": "queued"})
		}
	}
}

func handleListLogs(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUserID(w, r)
		if !ok {
			return
		}
		limit := parseIntParam(r, "limit", 50, 500)

		logs, err := deps.Store.ListLogs(r.Context(), userID, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing logs: %v", err)
			return
		}
		if logs == nil {
			logs = []storage.AutoApplyLogEntry{}
		}
		writeJSON(w, logs)
	}
}

type UploadResumeRequest struct {
	UserID      int64  `json:"userId"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Content     string `json:"content"` // base64
	Default     bool   `json:"default"`
}

func handleUploadResume(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxResumeBodySize)
		defer r.Body.Close()

		var req UploadResumeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.UserID == 0 || req.Filename == "" || req.Content == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "userId, filename and content are required")
			return
		}

		raw, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 content")
			return
		}
		text, err := profile.ExtractResumeText(raw, req.ContentType)
		if err != nil {
			httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "extracting resume text: %v", err)
			return
		}

		resume := storage.Resume{
			ID:          uuid.New().String(),
			UserID:      req.UserID,
			Filename:    req.Filename,
			ContentType: req.ContentType,
			Content:     raw,
			Text:        text,
			IsDefault:   req.Default,
		}
		if err := deps.Store.SaveResume(r.Context(), resume); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving resume: %v", err)
			return
		}
		writeJSON(w, map[string]any{"id": resume.ID, "textLength": len(text)})
	}
}

type resumeSummary struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	IsDefault   bool   `json:"isDefault"`
	CreatedAt   string `json:"createdAt"`
}

func handleListResumes(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUserID(w, r)
		if !ok {
			return
		}
		resumes, err := deps.Store.ListResumes(r.Context(), userID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing resumes: %v", err)
			return
		}
		// Raw bytes and extracted text stay out of the listing.
		out := make([]resumeSummary, 0, len(resumes))
		for _, res := range resumes {
			out = append(out, resumeSummary{
				ID:          res.ID,
				Filename:    res.Filename,
				ContentType: res.ContentType,
				IsDefault:   res.IsDefault,
				CreatedAt:   res.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			})
		}
		writeJSON(w, out)
	}
}

func handleGetProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUserID(w, r)
		if !ok {
			return
		}
		keys, err := deps.Store.GetAllProfileKeys(r.Context(), userID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading profile: %v", err)
			return
		}
		writeJSON(w, keys)
	}
}

func handlePatchProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUserID(w, r)
		if !ok {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var fields map[string]string
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		for key, value := range fields {
			if err := deps.Profiles.SetField(r.Context(), userID, key, value); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "setting field %q: %v", key, err)
				return
			}
		}
		writeJSON(w, map[string]string{"status": "updated"})
	}
}

func handleWorkerStart(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Worker.Start()
		writeJSON(w, map[string]any{"running": true})
	}
}

func handleWorkerStop(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Worker.Stop()
		writeJSON(w, map[string]any{"running": false})
	}
}

func handleWorkerHealth(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"running": deps.Worker.Running()})
	}
}

func handleWorkerEnsure(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		restarted := deps.Worker.EnsureRunning()
		writeJSON(w, map[string]any{"running": true, "restarted": restarted})
	}
}

func requireUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	s := r.URL.Query().Get("userId")
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "userId query parameter is required")
		return 0, false
	}
	return id, true
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
