package match

import (
	"fmt"
	"sort"
	"strings"
)

// Fallback score bounds. The cap keeps heuristic scores distinguishable in
// aggregate from AI-verified scores and never signals false confidence.
const (
	fallbackFloor = 30
	fallbackCeil  = 85
)

// vocabulary is the fixed technical-term list the keyword heuristic matches
// against. Terms are lowercase; multi-word terms are matched as substrings.
var vocabulary = []string{
	"angular", "ansible", "aws", "azure", "c#", "c++", "ci/cd", "css",
	"django", "docker", "elasticsearch", "gcp", "git", "go", "golang",
	"graphql", "grpc", "html", "java", "javascript", "jenkins", "kafka",
	"kotlin", "kubernetes", "linux", "machine learning", "microservices",
	"mongodb", "mysql", "node", "node.js", "php", "postgres", "postgresql",
	"python", "rabbitmq", "react", "redis", "rest", "ruby", "rust", "scala",
	"spark", "spring", "sql", "swift", "terraform", "typescript", "vue",
}

// keywordScore is the deterministic fallback: it counts vocabulary terms
// present in both texts and maps the overlap into [fallbackFloor, fallbackCeil].
func keywordScore(resumeText, postingText string) Result {
	resume := strings.ToLower(resumeText)
	posting := strings.ToLower(postingText)

	var postingTerms, common []string
	for _, term := range vocabulary {
		if !containsTerm(posting, term) {
			continue
		}
		postingTerms = append(postingTerms, term)
		if containsTerm(resume, term) {
			common = append(common, term)
		}
	}

	score := fallbackFloor
	if len(postingTerms) > 0 {
		score = fallbackFloor + (fallbackCeil-fallbackFloor)*len(common)/len(postingTerms)
	}
	if score > fallbackCeil {
		score = fallbackCeil
	}

	reasons := []string{"heuristic keyword match (AI scoring unavailable)"}
	if len(common) > 0 {
		sort.Strings(common)
		if len(common) > 4 {
			common = common[:4]
		}
		reasons = append(reasons, fmt.Sprintf("shared skills: %s", strings.Join(common, ", ")))
	} else {
		reasons = append(reasons, "no shared technical keywords found")
	}
	return Result{Score: score, Reasons: reasons}
}

// containsTerm matches a vocabulary term at word boundaries so "go" does not
// match "google". Terms with punctuation fall back to substring matching.
func containsTerm(text, term string) bool {
	if strings.ContainsAny(term, ".#+/ ") {
		return strings.Contains(text, term)
	}
	idx := 0
	for {
		i := strings.Index(text[idx:], term)
		if i == -1 {
			return false
		}
		start := idx + i
		end := start + len(term)
		beforeOK := start == 0 || !isWordChar(text[start-1])
		afterOK := end == len(text) || !isWordChar(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}
