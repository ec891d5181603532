package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Provider exposes the three AI operations the pipeline consumes. Every
// implementation is assumed to fail intermittently; callers keep their own
// deterministic fallbacks.
type Provider interface {
	MatchScore(ctx context.Context, resumeText, postingText string) (MatchResult, error)
	GenerateAnswer(ctx context.Context, question, resumeText, profileSummary, postingText string) (string, error)
	SelectOption(ctx context.Context, question string, options []string, resumeText, profileSummary, postingText string) (int, error)
}

// Completer abstracts the chat client for ModelProvider (implemented by *Client).
type Completer interface {
	Complete(ctx context.Context, model, system, user string) (string, error)
}

// ModelProvider implements Provider on top of a single chat model.
type ModelProvider struct {
	client Completer
	model  string
}

// NewModelProvider binds a chat client to one model id.
func NewModelProvider(client Completer, model string) *ModelProvider {
	return &ModelProvider{client: client, model: model}
}

func (p *ModelProvider) MatchScore(ctx context.Context, resumeText, postingText string) (MatchResult, error) {
	raw, err := p.client.Complete(ctx, p.model, matchSystemPrompt, matchUserPrompt(resumeText, postingText))
	if err != nil {
		return MatchResult{}, fmt.Errorf("match score with %s: %w", p.model, err)
	}

	var result MatchResult
	if err := json.Unmarshal([]byte(extractJSON(raw)), &result); err != nil {
		return MatchResult{}, retryable(fmt.Errorf("parsing match response: %w", err))
	}
	if result.Score < 0 {
		result.Score = 0
	}
	if result.Score > 100 {
		result.Score = 100
	}
	if len(result.Reasons) > 5 {
		result.Reasons = result.Reasons[:5]
	}
	return result, nil
}

func (p *ModelProvider) GenerateAnswer(ctx context.Context, question, resumeText, profileSummary, postingText string) (string, error) {
	raw, err := p.client.Complete(ctx, p.model, answerSystemPrompt, answerUserPrompt(question, resumeText, profileSummary, postingText))
	if err != nil {
		return "", fmt.Errorf("generate answer with %s: %w", p.model, err)
	}
	answer := strings.TrimSpace(raw)
	if answer == "" {
		return "", retryable(fmt.Errorf("empty answer from model"))
	}
	return answer, nil
}

func (p *ModelProvider) SelectOption(ctx context.Context, question string, options []string, resumeText, profileSummary, postingText string) (int, error) {
	if len(options) == 0 {
		return 0, fatal(fmt.Errorf("no options to select from"))
	}

	raw, err := p.client.Complete(ctx, p.model, selectSystemPrompt, selectUserPrompt(question, options, resumeText, profileSummary, postingText))
	if err != nil {
		return 0, fmt.Errorf("select option with %s: %w", p.model, err)
	}

	var parsed struct {
		Option int `json:"option"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
		return 0, retryable(fmt.Errorf("parsing option response: %w", err))
	}
	if parsed.Option < 0 || parsed.Option >= len(options) {
		return 0, retryable(fmt.Errorf("option index %d out of range [0,%d)", parsed.Option, len(options)))
	}
	return parsed.Option, nil
}

// extractJSON pulls the first JSON object out of a model response that may
// be wrapped in markdown fences or prose.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}
