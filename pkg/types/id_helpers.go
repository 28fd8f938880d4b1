package types

import (
	"errors"
	"strings"
)

// ErrInvalidExternalID rejects identifiers that are not opaque lowercase hex.
var ErrInvalidExternalID = errors.New("invalid external id")

// ValidateExternalID enforces the form client identifiers arrive in: 1 to 64
// lowercase hex characters. Marketplace item IDs are decimal strings and pass
// as a subset.
func ValidateExternalID(s string) error {
	if len(s) == 0 || len(s) > 64 {
		return ErrInvalidExternalID
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return ErrInvalidExternalID
		}
	}
	return nil
}

// ParseLocale parses "xx" or "xx-yy" into a lowercased Locale. Codes longer
// than two characters are rejected; the caller decides whether that is worth
// a warning or an error.
func ParseLocale(s string) (Locale, error) {
	lang, country, _ := strings.Cut(s, "-")
	if lang == "" || len(lang) > 2 || len(country) > 2 {
		return Locale{}, errors.New("locale code not in XX-XX or XX form: " + s)
	}
	return Locale{Language: strings.ToLower(lang), Country: strings.ToLower(country)}, nil
}
