package match

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/gildigital/autoapply/internal/ai"
	"github.com/gildigital/autoapply/internal/storage"
)

type fakeMatchStore struct {
	resumes map[int64]storage.Resume
	cache   map[string][2]string // key → {score, reasons}; score kept as int below
	scores  map[string]int
}

func newFakeMatchStore() *fakeMatchStore {
	return &fakeMatchStore{
		resumes: make(map[int64]storage.Resume),
		cache:   make(map[string][2]string),
		scores:  make(map[string]int),
	}
}

func cacheKey(sessionID string, userID, jobID int64) string {
	return fmt.Sprintf("%s|%d|%d", sessionID, userID, jobID)
}

func (f *fakeMatchStore) DefaultResume(_ context.Context, userID int64) (storage.Resume, error) {
	r, ok := f.resumes[userID]
	if !ok {
		return storage.Resume{}, storage.ErrNotFound
	}
	return r, nil
}

func (f *fakeMatchStore) GetCachedMatch(_ context.Context, sessionID string, userID, jobID int64) (int, string, error) {
	k := cacheKey(sessionID, userID, jobID)
	if v, ok := f.cache[k]; ok {
		return f.scores[k], v[1], nil
	}
	return 0, "", storage.ErrNotFound
}

func (f *fakeMatchStore) PutCachedMatch(_ context.Context, sessionID string, userID, jobID int64, score int, reasonsJSON string) error {
	k := cacheKey(sessionID, userID, jobID)
	f.cache[k] = [2]string{"", reasonsJSON}
	f.scores[k] = score
	return nil
}

type fakeScorer struct {
	result ai.MatchResult
	err    error
	calls  int
}

func (f *fakeScorer) MatchScore(_ context.Context, resumeText, postingText string) (ai.MatchResult, error) {
	f.calls++
	return f.result, f.err
}

func TestScoreNoResume(t *testing.T) {
	gate := NewGate(newFakeMatchStore(), &fakeScorer{})

	got, err := gate.Score(context.Background(), "sess", 3, Posting{ID: 7, Title: "Engineer"})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got.Score != 0 {
		t.Errorf("score = %d, want 0 without resume", got.Score)
	}
	found := false
	for _, r := range got.Reasons {
		if strings.Contains(r, "no resume") {
			found = true
		}
	}
	if !found {
		t.Errorf("reasons should mention missing resume: %v", got.Reasons)
	}
}

func TestScoreUsesAI(t *testing.T) {
	store := newFakeMatchStore()
	store.resumes[3] = storage.Resume{Text: "Go developer with Kubernetes experience"}
	scorer := &fakeScorer{result: ai.MatchResult{Score: 91, Reasons: []string{"strong Go match"}}}
	gate := NewGate(store, scorer)

	got, err := gate.Score(context.Background(), "sess", 3, Posting{ID: 7, Title: "Go Engineer"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Score != 91 {
		t.Errorf("score = %d, want 91", got.Score)
	}
}

func TestScoreFallsBackToKeywords(t *testing.T) {
	store := newFakeMatchStore()
	store.resumes[3] = storage.Resume{Text: "Senior Go engineer, Docker, Kubernetes, Postgres"}
	scorer := &fakeScorer{err: errors.New("provider down")}
	gate := NewGate(store, scorer)

	got, err := gate.Score(context.Background(), "", 3, Posting{
		ID:          7,
		Title:       "Backend Engineer",
		Description: "We use Go, Kubernetes and Postgres. Experience with Kafka a plus.",
	})
	if err != nil {
		t.Fatalf("fallback must not surface provider errors: %v", err)
	}
	if got.Score < 30 || got.Score > 85 {
		t.Errorf("fallback score %d outside [30,85]", got.Score)
	}
	if !strings.Contains(strings.Join(got.Reasons, " "), "AI scoring unavailable") {
		t.Errorf("fallback reasons should flag the heuristic: %v", got.Reasons)
	}
}

func TestScoreCachedPerSession(t *testing.T) {
	store := newFakeMatchStore()
	store.resumes[3] = storage.Resume{Text: "resume"}
	scorer := &fakeScorer{result: ai.MatchResult{Score: 75}}
	gate := NewGate(store, scorer)

	ctx := context.Background()
	if _, err := gate.Score(ctx, "sess", 3, Posting{ID: 7}); err != nil {
		t.Fatal(err)
	}
	if _, err := gate.Score(ctx, "sess", 3, Posting{ID: 7}); err != nil {
		t.Fatal(err)
	}
	if scorer.calls != 1 {
		t.Errorf("identical pair should be scored once per session, got %d calls", scorer.calls)
	}

	// A different session re-scores.
	if _, err := gate.Score(ctx, "sess2", 3, Posting{ID: 7}); err != nil {
		t.Fatal(err)
	}
	if scorer.calls != 2 {
		t.Errorf("new session should re-score, got %d calls", scorer.calls)
	}
}

func TestKeywordScoreBounds(t *testing.T) {
	tests := []struct {
		name    string
		resume  string
		posting string
		want    int
	}{
		{"full overlap", "go docker kubernetes", "go docker kubernetes", 85},
		{"no overlap", "ruby rails", "go kubernetes", 30},
		{"no technical terms", "manager", "director", 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := keywordScore(tt.resume, tt.posting)
			if got.Score != tt.want {
				t.Errorf("keywordScore = %d, want %d", got.Score, tt.want)
			}
		})
	}
}

func TestContainsTermWordBoundary(t *testing.T) {
	if containsTerm("google cloud experience", "go") {
		t.Error(`"go" must not match inside "google"`)
	}
	if !containsTerm("we write go services", "go") {
		t.Error(`"go" should match as a standalone word`)
	}
	if !containsTerm("experience with c++ templates", "c++") {
		t.Error(`punctuated terms should substring-match`)
	}
}

func TestStripHTML(t *testing.T) {
	in := `<div><h1>Go Engineer</h1><script>tracking()</script><p>Build  services</p></div>`
	got := StripHTML(in)
	if got != "Go Engineer Build services" {
		t.Errorf("StripHTML = %q", got)
	}
	if StripHTML("plain text") != "plain text" {
		t.Error("plain text should pass through")
	}
}
