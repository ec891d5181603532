package formfill

import (
	"fmt"
	"strings"
)

// Canned answers used when generation fails or is unavailable, keyed by
// question topic. Deliberately generic: they must read sensibly on any form.
var cannedAnswers = []struct {
	topic    string
	patterns []string
	answer   string
}{
	{
		topic:    "compensation",
		patterns: []string{"salary", "compensation", "pay expectation", "rate"},
		answer:   "My compensation expectations are flexible and I am happy to discuss a range that reflects the scope of the role and market standards.",
	},
	{
		topic:    "availability",
		patterns: []string{"availability", "start date", "notice period", "when can you start"},
		answer:   "I can be available to start within two to four weeks of an offer, and I am flexible on the exact date.",
	},
	{
		topic:    "relocation",
		patterns: []string{"relocat", "willing to move"},
		answer:   "I am open to relocation for the right opportunity and can discuss timing and logistics as needed.",
	},
	{
		topic:    "remote work",
		patterns: []string{"remote", "work from home", "hybrid"},
		answer:   "I have experience working effectively in remote and hybrid settings, with strong written communication and self-directed work habits.",
	},
	{
		topic:    "experience",
		patterns: []string{"experience", "background", "tell us about your work"},
		answer:   "My background closely matches the responsibilities described in this role, and my resume details the relevant projects and results I have delivered.",
	},
	{
		topic:    "strengths",
		patterns: []string{"strength", "what makes you", "why should we hire"},
		answer:   "I combine solid technical fundamentals with a pragmatic, delivery-focused approach and a track record of learning new domains quickly.",
	},
	{
		topic:    "education",
		patterns: []string{"education", "degree", "university", "school"},
		answer:   "My educational background is listed on my resume, along with the continued professional learning I pursue in my field.",
	},
	{
		topic:    "languages",
		patterns: []string{"language", "english proficiency", "fluent"},
		answer:   "I am fully proficient in English in professional settings, both written and spoken.",
	},
	{
		topic:    "teamwork",
		patterns: []string{"team", "collaborat", "conflict"},
		answer:   "I work well in cross-functional teams, communicate openly about trade-offs, and prioritize shared outcomes over individual preferences.",
	},
	{
		topic:    "motivation",
		patterns: []string{"why", "motivat", "interested in"},
		answer:   "This role aligns well with my skills and the direction I want to grow in, and the company's work is the kind I want to contribute to.",
	},
}

// cannedAnswer returns the template answer whose topic patterns match the
// question, or a generic closing statement when nothing matches.
func cannedAnswer(question string) string {
	q := strings.ToLower(question)
	for _, c := range cannedAnswers {
		for _, p := range c.patterns {
			if strings.Contains(q, p) {
				return c.answer
			}
		}
	}
	return "I believe my background is a strong fit for this position; my resume covers the relevant details, and I would be glad to elaborate in an interview."
}

// fallbackCoverLetter renders the deterministic cover letter used when
// generation fails.
func fallbackCoverLetter(fullName, title, company string) string {
	if title == "" {
		title = "this position"
	} else {
		title = "the " + title + " position"
	}
	var at string
	if company != "" {
		at = " at " + company
	}
	letter := fmt.Sprintf(`Dear Hiring Team,

I am writing to express my interest in %s%s. My experience aligns closely with the requirements outlined in the posting, and I am confident I can contribute from day one.

My resume details the projects and results most relevant to this role. I would welcome the opportunity to discuss how my background fits your team's needs.

Thank you for your consideration.`, title, at)
	if fullName != "" {
		letter += "\n\nSincerely,\n" + fullName
	}
	return letter
}
