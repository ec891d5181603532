package ai

import (
	"errors"
	"fmt"
)

// MatchResult is the outcome of scoring a resume against a posting.
type MatchResult struct {
	Score   int      `json:"score"`
	Reasons []string `json:"reasons"`
}

// ProviderError wraps a provider failure with a retryability classification.
// Retryable errors (rate limits, timeouts, 5xx) let a fallback chain move on
// to the next stage; fatal errors stop the chain.
type ProviderError struct {
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	if e.Retryable {
		return fmt.Sprintf("provider error (retryable): %v", e.Err)
	}
	return fmt.Sprintf("provider error: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsRetryable reports whether err allows falling through to the next
// provider stage.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	// Unclassified errors (network failures, decode errors) are treated as
	// retryable so an intermittent provider never takes the pipeline down.
	return true
}

func retryable(err error) error { return &ProviderError{Retryable: true, Err: err} }
func fatal(err error) error     { return &ProviderError{Retryable: false, Err: err} }

// chat wire types (OpenAI-compatible)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}
