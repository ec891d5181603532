package ai

import (
	"context"
	"errors"
	"log/slog"
)

// Chain is a chain-of-responsibility over Provider stages: each operation is
// tried stage by stage, stopping at the first success. A stage's retryable
// error moves the call to the next stage; a fatal error stops the chain.
type Chain struct {
	stages []Provider
	logger *slog.Logger
}

// NewChain composes providers in priority order (primary first).
func NewChain(stages ...Provider) *Chain {
	return &Chain{stages: stages, logger: slog.Default()}
}

// ErrChainExhausted is returned when every stage failed retryably.
var ErrChainExhausted = errors.New("all provider stages failed")

func (c *Chain) MatchScore(ctx context.Context, resumeText, postingText string) (MatchResult, error) {
	var lastErr error
	for i, stage := range c.stages {
		result, err := stage.MatchScore(ctx, resumeText, postingText)
		if err == nil {
			return result, nil
		}
		if !IsRetryable(err) {
			return MatchResult{}, err
		}
		c.logger.Warn("match score stage failed", "stage", i, "error", err)
		lastErr = err
	}
	return MatchResult{}, errors.Join(ErrChainExhausted, lastErr)
}

func (c *Chain) GenerateAnswer(ctx context.Context, question, resumeText, profileSummary, postingText string) (string, error) {
	var lastErr error
	for i, stage := range c.stages {
		answer, err := stage.GenerateAnswer(ctx, question, resumeText, profileSummary, postingText)
		if err == nil {
			return answer, nil
		}
		if !IsRetryable(err) {
			return "", err
		}
		c.logger.Warn("answer stage failed", "stage", i, "error", err)
		lastErr = err
	}
	return "", errors.Join(ErrChainExhausted, lastErr)
}

func (c *Chain) SelectOption(ctx context.Context, question string, options []string, resumeText, profileSummary, postingText string) (int, error) {
	var lastErr error
	for i, stage := range c.stages {
		idx, err := stage.SelectOption(ctx, question, options, resumeText, profileSummary, postingText)
		if err == nil {
			return idx, nil
		}
		if !IsRetryable(err) {
			return 0, err
		}
		c.logger.Warn("option stage failed", "stage", i, "error", err)
		lastErr = err
	}
	return 0, errors.Join(ErrChainExhausted, lastErr)
}
