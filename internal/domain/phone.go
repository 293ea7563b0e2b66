package domain

import (
	"fmt"
	"strings"
)

// defaultCountryCode is inserted when a local number is supplied without one.
const defaultCountryCode = "998"

// minPhoneDigits is the minimum digit count after country-code insertion.
const minPhoneDigits = 12

// CanonicalPhone normalizes a phone number to the single stored form
// "+<digits>". Whitespace and hyphens are dropped; numbers without a leading
// "+" get the default country code inserted ("901234567" -> "+998901234567",
// "998901234567" -> "+998901234567").
func CanonicalPhone(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "-", "")
	if s == "" {
		return "", fmt.Errorf("empty phone number")
	}

	if !strings.HasPrefix(s, "+") {
		if strings.HasPrefix(s, defaultCountryCode) {
			s = "+" + s
		} else {
			s = "+" + defaultCountryCode + strings.TrimLeft(s, "0")
		}
	}

	digits := s[1:]
	if len(digits) < minPhoneDigits {
		return "", fmt.Errorf("phone number too short, want at least %d digits", minPhoneDigits)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("phone number contains non-digit characters")
		}
	}
	return s, nil
}

// SamePhone compares a stored canonical phone against user-supplied text,
// tolerating formatting differences. A malformed candidate never matches.
func SamePhone(stored, candidate string) bool {
	c, err := CanonicalPhone(candidate)
	if err != nil {
		return false
	}
	s, err := CanonicalPhone(stored)
	if err != nil {
		return false
	}
	return s == c
}
