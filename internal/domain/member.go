package domain

import "time"

// Member is the domain representation of a library patron. The identity is
// the MemberID; a messaging account may or may not be attached.
type Member struct {
	ID              MemberID
	ExternalAccount *ExternalAccountID

	GivenName   string
	FamilyName  string
	Phone       string
	BirthYear   int
	Affiliation string

	Plan       Plan
	PlanExpiry *time.Time

	IsActive bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsLinked reports whether a messaging account is attached.
func (m Member) IsLinked() bool { return m.ExternalAccount != nil }

// FullName is the display form "Given Family".
func (m Member) FullName() string { return m.GivenName + " " + m.FamilyName }

// Age derives the member's age from the birth year.
func (m Member) Age(now time.Time) int { return now.Year() - m.BirthYear }

// IsExpired reports whether a paid plan has run out. Free plans never expire.
func (m Member) IsExpired(now time.Time) bool {
	if m.Plan == PlanFree || m.PlanExpiry == nil {
		return false
	}
	return m.PlanExpiry.Before(now)
}

// ExpiresWithin reports whether a paid plan is still valid but ends within
// the given number of days.
func (m Member) ExpiresWithin(now time.Time, days int) bool {
	if m.Plan == PlanFree || m.PlanExpiry == nil {
		return false
	}
	limit := now.AddDate(0, 0, days)
	return m.PlanExpiry.After(now) && !m.PlanExpiry.After(limit)
}

// DaysLeft is the number of whole days until the plan expires, never
// negative. Zero for Free plans.
func (m Member) DaysLeft(now time.Time) int {
	if m.Plan == PlanFree || m.PlanExpiry == nil {
		return 0
	}
	d := int(m.PlanExpiry.Sub(now).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
