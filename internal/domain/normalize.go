package domain

import "strings"

// NormalizeHumanName trims leading/trailing whitespace and collapses internal whitespace runs.
// Applied to names and affiliations before validation and storage.
func NormalizeHumanName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
