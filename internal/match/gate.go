package match

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/gildigital/autoapply/internal/ai"
	"github.com/gildigital/autoapply/internal/storage"
)

// Posting is the job posting text handed to the gate.
type Posting struct {
	ID          int64
	Title       string
	Company     string
	Description string
}

// Result is a 0-100 match score with short textual reasons.
type Result struct {
	Score   int      `json:"score"`
	Reasons []string `json:"reasons"`
}

// Scorer is the AI operation the gate delegates to (implemented by ai.Chain).
type Scorer interface {
	MatchScore(ctx context.Context, resumeText, postingText string) (ai.MatchResult, error)
}

// Store provides resume lookup and the session-scoped result cache.
type Store interface {
	DefaultResume(ctx context.Context, userID int64) (storage.Resume, error)
	GetCachedMatch(ctx context.Context, sessionID string, userID, jobID int64) (int, string, error)
	PutCachedMatch(ctx context.Context, sessionID string, userID, jobID int64, score int, reasonsJSON string) error
}

// Gate scores a posting against a user's resume and decides whether the
// posting may enter the auto-apply queue.
type Gate struct {
	store  Store
	scorer Scorer
	logger *slog.Logger
}

// NewGate creates a Gate.
func NewGate(store Store, scorer Scorer) *Gate {
	return &Gate{store: store, scorer: scorer, logger: slog.Default()}
}

// Score computes (or recalls) the match score for one (user, posting) pair.
// A missing resume is a valid terminal outcome: score 0, no error. A failing
// AI provider degrades to the keyword heuristic, never to an error.
func (g *Gate) Score(ctx context.Context, sessionID string, userID int64, posting Posting) (Result, error) {
	if sessionID != "" {
		if score, reasonsJSON, err := g.store.GetCachedMatch(ctx, sessionID, userID, posting.ID); err == nil {
			var reasons []string
			if err := json.Unmarshal([]byte(reasonsJSON), &reasons); err != nil {
				reasons = nil
			}
			return Result{Score: score, Reasons: reasons}, nil
		}
	}

	resume, err := g.store.DefaultResume(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && resume.Text == "") {
		return Result{Score: 0, Reasons: []string{"no resume on file"}}, nil
	}
	if err != nil {
		return Result{}, err
	}

	postingText := posting.Title + "\n" + posting.Company + "\n" + StripHTML(posting.Description)

	var result Result
	aiResult, err := g.scorer.MatchScore(ctx, resume.Text, postingText)
	if err != nil {
		g.logger.Warn("AI match scoring unavailable, using keyword heuristic",
			"user_id", userID, "job_id", posting.ID, "error", err)
		result = keywordScore(resume.Text, postingText)
	} else {
		result = Result{Score: aiResult.Score, Reasons: aiResult.Reasons}
	}

	if sessionID != "" {
		reasonsJSON, _ := json.Marshal(result.Reasons)
		if err := g.store.PutCachedMatch(ctx, sessionID, userID, posting.ID, result.Score, string(reasonsJSON)); err != nil {
			g.logger.Warn("caching match result failed", "error", err)
		}
	}
	return result, nil
}
