// Package email derives display names from email addresses for roster
// entries submitted without one.
package email

import (
	"strings"
	"unicode"
)

// DeriveNameFromEmail splits the local part of an address on common
// separators and title-cases the first and last pieces. Addresses that
// yield nothing fall back to "User".
func DeriveNameFromEmail(address string) (first, last string) {
	local := address
	if at := strings.IndexByte(address, '@'); at > 0 {
		local = address[:at]
	}

	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	if len(parts) == 0 {
		return "User", "User"
	}

	first = capitalize(parts[0])
	last = "User"
	if len(parts) > 1 {
		last = capitalize(parts[len(parts)-1])
	}
	return first, last
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
