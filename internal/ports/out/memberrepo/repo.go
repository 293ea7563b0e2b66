package memberrepo

import (
	"context"
	"time"

	"github.com/ijara-kitoblar/library-bot/internal/domain"
)

// Stats is the aggregate read model backing the statistics screen.
type Stats struct {
	Total   int
	Free    int
	Money   int
	Premium int
	Linked  int

	// AverageAge is rounded to one decimal place; zero when the store is
	// empty.
	AverageAge float64
}

// Repository provides access to persisted members. It is the only component
// that touches member storage; all uniqueness invariants (member id, phone,
// external account) are enforced here so a race becomes a reported conflict
// rather than silent corruption.
//
// Result ordering expectations:
// - List/Search return newest registrations first to keep behavior deterministic.
type Repository interface {
	// Create persists a new member and assigns its MemberID. The incoming
	// record must have an empty ID; sequence derivation and the insert are a
	// single atomic unit, so concurrent registrations can never share an id.
	Create(ctx context.Context, m domain.Member) (domain.Member, error)

	// Update rewrites a member row. The external account binding is not
	// touched here; use Link.
	Update(ctx context.Context, m domain.Member) error

	// Link attaches an external account to a member, atomically verifying
	// that the member is still unlinked and the account is still unclaimed.
	Link(ctx context.Context, id domain.MemberID, account domain.ExternalAccountID, now time.Time) (domain.Member, error)

	GetByID(ctx context.Context, id domain.MemberID) (domain.Member, error)
	GetByExternalAccount(ctx context.Context, account domain.ExternalAccountID) (domain.Member, error)
	GetByPhone(ctx context.Context, phone string) (domain.Member, error)

	List(ctx context.Context, includeInactive bool) ([]domain.Member, error)

	// Search matches the query as a case-insensitive substring over member
	// id, given name, family name and phone, active members only.
	Search(ctx context.Context, query string, limit int) ([]domain.Member, error)

	// ExpiringBetween selects active paid members whose expiry falls in
	// (from, to].
	ExpiringBetween(ctx context.Context, from, to time.Time) ([]domain.Member, error)

	// ExpiredBefore selects active paid members whose expiry passed before t.
	ExpiredBefore(ctx context.Context, t time.Time) ([]domain.Member, error)

	Statistics(ctx context.Context, now time.Time) (Stats, error)
}
