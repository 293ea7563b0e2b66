package adminrepo

import (
	"context"

	"github.com/ijara-kitoblar/library-bot/internal/domain"
)

// Count is the admin roster breakdown for the statistics screen.
type Count struct {
	Total   int
	Super   int
	Regular int
}

// Repository provides access to persisted admin grants. The single-active-
// super-admin invariant is enforced here.
//
// Lookup methods consider active admins only: a deactivated grant is
// indistinguishable from no grant.
type Repository interface {
	// Create persists a new grant and assigns its internal id. Fails with
	// ErrSuperExists when m.IsSuper and an active super-admin is already
	// present, and with ErrAccountTaken when the external account already
	// carries an active grant.
	Create(ctx context.Context, a domain.Admin) (domain.Admin, error)

	// Update rewrites a grant (used for deactivation).
	Update(ctx context.Context, a domain.Admin) error

	GetByExternalAccount(ctx context.Context, account domain.ExternalAccountID) (domain.Admin, error)
	GetByMemberID(ctx context.Context, id domain.MemberID) (domain.Admin, error)
	GetSuper(ctx context.Context) (domain.Admin, error)

	// List returns active admins, super-admin first, then by AddedAt
	// ascending.
	List(ctx context.Context) ([]domain.Admin, error)

	Count(ctx context.Context) (Count, error)
}
