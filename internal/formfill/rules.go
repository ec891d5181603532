package formfill

import (
	"strings"

	"github.com/gildigital/autoapply/internal/profile"
)

// profileRule maps a field-name pattern to a profile value. Rules are
// evaluated in order and the first match wins, so more specific patterns
// (first/last name) come before catch-alls (full name).
type profileRule struct {
	name     string
	patterns []string
	exact    []string // normalized keys matched exactly, for ambiguous short names
	value    func(p profile.Profile) string
}

var profileRules = []profileRule{
	{
		name:     "first name",
		patterns: []string{"firstname", "givenname", "fname", "forename"},
		value:    func(p profile.Profile) string { return p.FirstName },
	},
	{
		name:     "last name",
		patterns: []string{"lastname", "familyname", "surname", "lname"},
		value:    func(p profile.Profile) string { return p.LastName },
	},
	{
		name:     "full name",
		patterns: []string{"fullname", "yourname", "legalname", "candidatename", "applicantname"},
		exact:    []string{"name"},
		value:    func(p profile.Profile) string { return p.FullName() },
	},
	{
		name:     "email",
		patterns: []string{"email", "emailaddress"},
		value:    func(p profile.Profile) string { return p.Email },
	},
	{
		name:     "phone",
		patterns: []string{"phone", "mobile", "telephone", "cellnumber"},
		value:    func(p profile.Profile) string { return p.Phone },
	},
	{
		name:     "linkedin",
		patterns: []string{"linkedin"},
		value:    func(p profile.Profile) string { return p.LinkedIn },
	},
	{
		name:     "github",
		patterns: []string{"github", "gitrepo", "sourcecode"},
		value:    func(p profile.Profile) string { return p.GitHub },
	},
	{
		name:     "website",
		patterns: []string{"website", "portfolio", "personalsite", "homepage"},
		value:    func(p profile.Profile) string { return p.Website },
	},
	{
		name:     "street address",
		patterns: []string{"streetaddress", "addressline", "address1"},
		exact:    []string{"address"},
		value:    func(p profile.Profile) string { return p.Street },
	},
	{
		name:     "city",
		patterns: []string{"city", "town", "locality"},
		value:    func(p profile.Profile) string { return p.City },
	},
	{
		name:     "state",
		patterns: []string{"state", "province", "region"},
		value:    func(p profile.Profile) string { return p.State },
	},
	{
		name:     "postal code",
		patterns: []string{"postalcode", "zipcode", "postcode", "zip"},
		value:    func(p profile.Profile) string { return p.PostalCode },
	},
	{
		name:     "country",
		patterns: []string{"country", "nationality"},
		value:    func(p profile.Profile) string { return p.Country },
	},
}

// lookupProfileValue applies the ordered rule list and returns the first
// non-empty profile value for the field. ok is false when no rule matches or
// the matched value is empty in the profile.
func lookupProfileValue(f FormField, p profile.Profile) (string, bool) {
	for _, rule := range profileRules {
		if !matchRule(f, rule) {
			continue
		}
		if v := rule.value(p); v != "" {
			return v, true
		}
		return "", false
	}
	return "", false
}

// isContactField reports whether a field maps to an identity value the
// feasibility check must be able to supply (name or email).
func isContactField(f FormField) bool {
	return f.matchesAny("firstname", "givenname", "lastname", "familyname", "surname",
		"fullname", "yourname", "applicantname", "email") || f.key() == "name"
}

func matchRule(f FormField, rule profileRule) bool {
	key := f.key()
	for _, e := range rule.exact {
		if key == e {
			return true
		}
	}
	for _, pat := range rule.patterns {
		if strings.Contains(key, pat) {
			return true
		}
	}
	return false
}

// Resume-style file fields accept the stored resume document.
func isResumeField(f FormField) bool {
	return f.matchesAny("resume", "curriculumvitae", "cv")
}

// Cover-letter and motivation prose fields.
func isCoverLetterField(f FormField) bool {
	return f.matchesAny("coverletter", "motivationletter", "letterofmotivation", "motivation", "whyareyouinterested", "whythiscompany", "whyus")
}

// Work-authorization and sponsorship questions get the most permissive
// answer: authorized to work, no sponsorship needed.
func isAuthorizationField(f FormField) bool {
	return f.matchesAny("workauthorization", "authorizedtowork", "legallyauthorized",
		"righttowork", "workpermit", "sponsorship", "visa", "needsponsorship")
}

// isYesNo reports whether the option list is a plain yes/no pair.
func isYesNo(options []string) bool {
	if len(options) != 2 {
		return false
	}
	a := strings.ToLower(strings.TrimSpace(options[0]))
	b := strings.ToLower(strings.TrimSpace(options[1]))
	return (a == "yes" && b == "no") || (a == "no" && b == "yes")
}

// findOption returns the index of the first option whose lowercase form
// contains any of the given substrings.
func findOption(options []string, subs ...string) (int, bool) {
	for i, opt := range options {
		lower := strings.ToLower(opt)
		for _, s := range subs {
			if strings.Contains(lower, s) {
				return i, true
			}
		}
	}
	return 0, false
}

// pickAuthorizationOption chooses the most permissive option for a
// work-authorization or sponsorship question.
func pickAuthorizationOption(f FormField) (int, bool) {
	sponsorship := f.matchesAny("sponsorship", "needsponsorship", "requiresponsorship", "visa")
	if sponsorship {
		// "Do you require sponsorship?" → no.
		if i, ok := findOption(f.Options, "no sponsorship", "not require", "do not"); ok {
			return i, true
		}
		if i, ok := findOption(f.Options, "no"); ok {
			return i, true
		}
		return 0, false
	}
	// "Are you authorized to work ...?" → the authorized/affirmative option.
	if i, ok := findOption(f.Options, "authorized", "citizen", "permanent resident"); ok {
		return i, true
	}
	if i, ok := findOption(f.Options, "yes"); ok {
		return i, true
	}
	return 0, false
}
