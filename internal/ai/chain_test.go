package ai

import (
	"context"
	"errors"
	"testing"
)

// fakeProvider scripts one response per operation.
type fakeProvider struct {
	match    MatchResult
	matchErr error

	answer    string
	answerErr error

	option    int
	optionErr error

	calls int
}

func (f *fakeProvider) MatchScore(ctx context.Context, resumeText, postingText string) (MatchResult, error) {
	f.calls++
	return f.match, f.matchErr
}

func (f *fakeProvider) GenerateAnswer(ctx context.Context, question, resumeText, profileSummary, postingText string) (string, error) {
	f.calls++
	return f.answer, f.answerErr
}

func (f *fakeProvider) SelectOption(ctx context.Context, question string, options []string, resumeText, profileSummary, postingText string) (int, error) {
	f.calls++
	return f.option, f.optionErr
}

func TestChainStopsAtFirstSuccess(t *testing.T) {
	primary := &fakeProvider{match: MatchResult{Score: 90, Reasons: []string{"strong overlap"}}}
	secondary := &fakeProvider{match: MatchResult{Score: 10}}
	chain := NewChain(primary, secondary)

	got, err := chain.MatchScore(context.Background(), "resume", "posting")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Score != 90 {
		t.Errorf("expected primary result, got score %d", got.Score)
	}
	if secondary.calls != 0 {
		t.Errorf("secondary should not be called, got %d calls", secondary.calls)
	}
}

func TestChainFallsThroughOnRetryable(t *testing.T) {
	primary := &fakeProvider{matchErr: retryable(errors.New("rate limited"))}
	secondary := &fakeProvider{match: MatchResult{Score: 55}}
	chain := NewChain(primary, secondary)

	got, err := chain.MatchScore(context.Background(), "resume", "posting")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Score != 55 {
		t.Errorf("expected secondary result, got score %d", got.Score)
	}
}

func TestChainStopsOnFatal(t *testing.T) {
	primary := &fakeProvider{answerErr: fatal(errors.New("invalid api key"))}
	secondary := &fakeProvider{answer: "should not be reached"}
	chain := NewChain(primary, secondary)

	_, err := chain.GenerateAnswer(context.Background(), "q", "", "", "")
	if err == nil {
		t.Fatal("expected fatal error to propagate")
	}
	if secondary.calls != 0 {
		t.Errorf("secondary must not run after a fatal error, got %d calls", secondary.calls)
	}
}

func TestChainExhausted(t *testing.T) {
	primary := &fakeProvider{optionErr: retryable(errors.New("timeout"))}
	secondary := &fakeProvider{optionErr: retryable(errors.New("timeout"))}
	chain := NewChain(primary, secondary)

	_, err := chain.SelectOption(context.Background(), "q", []string{"a", "b"}, "", "", "")
	if !errors.Is(err, ErrChainExhausted) {
		t.Fatalf("expected ErrChainExhausted, got %v", err)
	}
}
