package domain

import (
	"fmt"
	"strings"
)

// MemberID is the public library identifier handed to patrons, e.g. "ID0001".
// It is assigned once at registration and never changes.
type MemberID string

// ExternalAccountID is an address on the messaging platform (a chat
// identifier). Its value space is controlled by the platform; we treat it as
// an opaque 64-bit id.
type ExternalAccountID int64

const (
	memberIDPrefix = "ID"
	memberIDDigits = 4
)

// FormatMemberID renders a sequence number as a public member id.
func FormatMemberID(seq int) MemberID {
	return MemberID(fmt.Sprintf("%s%0*d", memberIDPrefix, memberIDDigits, seq))
}

// ParseMemberID validates user-supplied member id text and returns the
// canonical form. Accepts surrounding whitespace and lowercase prefixes.
func ParseMemberID(raw string) (MemberID, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if !strings.HasPrefix(s, memberIDPrefix) || len(s) != len(memberIDPrefix)+memberIDDigits {
		return "", fmt.Errorf("member id must look like %s0001", memberIDPrefix)
	}
	for _, r := range s[len(memberIDPrefix):] {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("member id must look like %s0001", memberIDPrefix)
		}
	}
	return MemberID(s), nil
}
