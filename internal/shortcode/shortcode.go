package shortcode

import (
	"errors"
	"fmt"
	"regexp"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Length bounds for a short code, inclusive.
const (
	MinLength = 3
	MaxLength = 25
)

var (
	// ErrEmpty is returned by Normalize for an empty candidate.
	ErrEmpty = errors.New("short code cannot be empty")

	// ErrLength is returned by Normalize when the candidate is too short or too long.
	ErrLength = fmt.Errorf("short code must be between %d and %d characters long", MinLength, MaxLength)

	// ErrCharset is returned by Normalize when the candidate has non-alphanumeric characters.
	ErrCharset = errors.New("short code must contain only letters and numbers")
)

var (
	shortCodePattern = regexp.MustCompile(`^[A-Za-z0-9]{3,25}$`)
	alphanumeric     = regexp.MustCompile(`^[A-Za-z0-9]+$`)
	offerCodeStrip   = regexp.MustCompile(`[^A-Za-z0-9_-]`)

	upper = cases.Upper(language.Und)
)

// IsShortCode reports whether value is already a short code and can be stored
// without a shortening round-trip.
func IsShortCode(value string) bool {
	return shortCodePattern.MatchString(value)
}

// Normalize upper-cases a candidate and checks it has short-code shape.
// The returned error wraps ErrEmpty, ErrLength or ErrCharset.
func Normalize(candidate string) (string, error) {
	if candidate == "" {
		return "", ErrEmpty
	}

	code := upper.String(candidate)
	if n := len(code); n < MinLength || n > MaxLength {
		return "", fmt.Errorf("%q: %w", candidate, ErrLength)
	}
	if !alphanumeric.MatchString(code) {
		return "", fmt.Errorf("%q: %w", candidate, ErrCharset)
	}
	return code, nil
}

// SanitizeOfferCode keeps letters, digits, underscores and dashes.
func SanitizeOfferCode(raw string) string {
	return offerCodeStrip.ReplaceAllString(raw, "")
}
