package profile

// Profile is the structured applicant identity used to fill application
// forms: contact details, address and public links.
type Profile struct {
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	Street     string
	City       string
	State      string
	PostalCode string
	Country    string
	LinkedIn   string
	GitHub     string
	Website    string

	// Plan is the user's subscription plan id (billing reference data).
	Plan string
	// MatchThreshold overrides the service default when > 0.
	MatchThreshold int
}

// FullName joins first and last name, tolerating either being empty.
func (p Profile) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	default:
		return p.FirstName + " " + p.LastName
	}
}
