package ai

import (
	"fmt"
	"strings"
)

// Prompt budgets keep requests within model context limits. Resume and
// posting text dominate, so they are truncated first.
const (
	maxResumeChars  = 8000
	maxPostingChars = 8000
)

const matchSystemPrompt = `You score how well a candidate's resume matches a job posting.
Respond with JSON only, no markdown fences:
{"score": <integer 0-100>, "reasons": [<up to 5 short strings>]}`

func matchUserPrompt(resumeText, postingText string) string {
	var sb strings.Builder
	sb.WriteString("[Resume]\n")
	sb.WriteString(truncate(resumeText, maxResumeChars))
	sb.WriteString("\n\n[Job Posting]\n")
	sb.WriteString(truncate(postingText, maxPostingChars))
	return sb.String()
}

const answerSystemPrompt = `You answer job application form questions on behalf of a candidate.
Write in first person, 2-5 sentences, specific to the candidate's background.
Never invent employers, dates or credentials. Respond with the answer text only.`

func answerUserPrompt(question, resumeText, profileSummary, postingText string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[Question]\n%s\n", question)
	if profileSummary != "" {
		fmt.Fprintf(&sb, "\n[Candidate Profile]\n%s\n", profileSummary)
	}
	if resumeText != "" {
		fmt.Fprintf(&sb, "\n[Resume]\n%s\n", truncate(resumeText, maxResumeChars))
	}
	if postingText != "" {
		fmt.Fprintf(&sb, "\n[Job Posting]\n%s\n", truncate(postingText, maxPostingChars))
	}
	return sb.String()
}

const selectSystemPrompt = `You pick the best answer option for a job application form question on behalf of a candidate.
Respond with JSON only, no markdown fences: {"option": <zero-based index>}`

func selectUserPrompt(question string, options []string, resumeText, profileSummary, postingText string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[Question]\n%s\n\n[Options]\n", question)
	for i, opt := range options {
		fmt.Fprintf(&sb, "%d. %s\n", i, opt)
	}
	if profileSummary != "" {
		fmt.Fprintf(&sb, "\n[Candidate Profile]\n%s\n", profileSummary)
	}
	if resumeText != "" {
		fmt.Fprintf(&sb, "\n[Resume]\n%s\n", truncate(resumeText, maxResumeChars))
	}
	if postingText != "" {
		fmt.Fprintf(&sb, "\n[Job Posting]\n%s\n", truncate(postingText, maxPostingChars))
	}
	return sb.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
