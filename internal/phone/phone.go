// Package phone normalizes and validates caller phone numbers used as the
// user store key.
package phone

import (
	"regexp"
	"strings"
)

var e164Pattern = regexp.MustCompile(`^\+?[1-9]\d{9,14}$`)

// Normalize reduces raw input to its canonical form: digits only, with a
// leading plus preserved when present. Unrecoverable input normalizes to "".
func Normalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	hasPlusPrefix := strings.HasPrefix(trimmed, "+")

	var digits strings.Builder
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return ""
	}
	if hasPlusPrefix {
		return "+" + digits.String()
	}
	return digits.String()
}

// IsFormatValid reports whether a normalized number matches the E.164-like
// pattern: optional plus, then 10-15 digits with no leading zero.
func IsFormatValid(normalized string) bool {
	if normalized == "" {
		return false
	}
	candidate := normalized
	if !strings.HasPrefix(candidate, "+") {
		candidate = "+" + candidate
	}
	return e164Pattern.MatchString(candidate)
}
