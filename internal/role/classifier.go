package role

import "strings"

// Classifier derives a role for an identifier when the caller did not ask for
// one explicitly. It takes untrusted input; a real directory lookup can
// replace the heuristic without touching call sites.
type Classifier interface {
	Classify(identifier string) Role
}

type ClassifierFunc func(identifier string) Role

func (f ClassifierFunc) Classify(identifier string) Role {
	return f(identifier)
}

// SubstringClassifier infers a role from well-known substrings of an email
// address or user name.
type SubstringClassifier struct{}

func (SubstringClassifier) Classify(identifier string) Role {
	value := strings.ToLower(identifier)
	switch {
	case strings.Contains(value, "admin"):
		return Admin
	case strings.Contains(value, "analyst"),
		strings.Contains(value, "staff"),
		strings.Contains(value, "research"):
		return Researcher
	default:
		return User
	}
}
