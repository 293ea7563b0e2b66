package domain

import "time"

// Admin is a privilege grant layered on a member's messaging account. Every
// admin must have a linked account; the bot addresses them directly.
type Admin struct {
	ID              int64
	ExternalAccount ExternalAccountID
	MemberID        MemberID
	DisplayName     string

	// IsSuper marks the single bootstrap administrator. At most one active
	// admin may carry it; it can never be revoked.
	IsSuper bool

	// AddedBy is the granting admin's account. Nil for the bootstrap
	// super-admin, which nobody grants.
	AddedBy *ExternalAccountID

	IsActive bool
	AddedAt  time.Time
}
