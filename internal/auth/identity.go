package auth

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const (
	googleUserID    = "g-1"
	googleUserEmail = "demo.googleuser@example.com"
	googleUserName  = "Google User"
	googleToken     = "mock-google-token"
)

// userIDFor gives the same identifier the same id across logins.
func userIDFor(email string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+strings.ToLower(email))).String()
}

// newPlaceholderToken returns an opaque value with no cryptographic meaning.
func newPlaceholderToken() string {
	return "mock-" + uuid.NewString()
}

// displayNameFrom turns the local part of an email into a readable name:
// every non-letter becomes a space.
func displayNameFrom(identifier string) string {
	local, _, _ := strings.Cut(identifier, "@")
	name := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) && r < unicode.MaxASCII {
			return r
		}
		return ' '
	}, local)
	return strings.Join(strings.Fields(name), " ")
}
