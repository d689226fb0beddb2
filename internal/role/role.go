// Package role holds the canonical dashboard roles and the alias table used to
// normalize role names coming from forms, stored records and identity
// providers.
package role

import "strings"

type Role string

const (
	User       Role = "user"
	Researcher Role = "researcher"
	Admin      Role = "admin"
)

// Canonical lists every value a session may carry.
var Canonical = []Role{User, Researcher, Admin}

var aliases = map[string]Role{
	"student": User,
	"analyst": Researcher,
	"staff":   Researcher,
}

// Normalize maps a raw role name to a canonical role. Aliases are resolved
// through the alias table; empty and unknown values fall back to User so an
// undefined role never reaches a session.
func Normalize(raw string) Role {
	r, _ := Parse(raw)
	return r
}

// Parse is Normalize that also reports whether raw was a canonical role or a
// known alias.
func Parse(raw string) (Role, bool) {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch Role(value) {
	case User, Researcher, Admin:
		return Role(value), true
	}
	if r, ok := aliases[value]; ok {
		return r, true
	}
	return User, false
}

func IsAlias(raw string) bool {
	_, ok := aliases[strings.ToLower(strings.TrimSpace(raw))]
	return ok
}

func (r Role) Valid() bool {
	switch r {
	case User, Researcher, Admin:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// Contains reports whether r is a member of allowed. Both sides are
// normalized, so an allow-list written with legacy names still matches.
func Contains(allowed []Role, r Role) bool {
	want := Normalize(string(r))
	for _, item := range allowed {
		if Normalize(string(item)) == want {
			return true
		}
	}
	return false
}
