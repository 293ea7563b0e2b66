package adminrepo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/ijara-kitoblar/library-bot/internal/adapters/postgres"
	"github.com/ijara-kitoblar/library-bot/internal/domain"
	"github.com/ijara-kitoblar/library-bot/internal/ports/out/adminrepo"
)

const adminColumns = `
	id, external_account, member_id, display_name, is_super, added_by,
	is_active, added_at`

// Repo is a Postgres implementation of adminrepo.Repository. The
// single-active-super invariant lives in a partial unique index, so even
// racing bootstraps collapse to one super-admin.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) Create(ctx context.Context, a domain.Admin) (domain.Admin, error) {
	if r.pool == nil {
		return domain.Admin{}, errors.New("nil postgres pool")
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO admins (
			external_account, member_id, display_name, is_super, added_by,
			is_active, added_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`,
		int64(a.ExternalAccount),
		string(a.MemberID),
		a.DisplayName,
		a.IsSuper,
		addedByValue(a.AddedBy),
		a.IsActive,
		a.AddedAt.UTC(),
	).Scan(&a.ID)
	if err != nil {
		if pe, ok := postgres.AsPgError(err); ok && pe.Code == postgres.UniqueViolationCode {
			switch pe.ConstraintName {
			case "admins_single_super":
				return domain.Admin{}, adminrepo.ErrSuperExists
			case "admins_account_active_unique":
				return domain.Admin{}, adminrepo.ErrAccountTaken
			}
		}
		return domain.Admin{}, err
	}
	return a, nil
}

func (r *Repo) Update(ctx context.Context, a domain.Admin) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE admins SET display_name = $2, is_active = $3 WHERE id = $1
	`, a.ID, a.DisplayName, a.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return adminrepo.ErrNotFound
	}
	return nil
}

func (r *Repo) GetByExternalAccount(ctx context.Context, account domain.ExternalAccountID) (domain.Admin, error) {
	return r.getOne(ctx,
		`SELECT `+adminColumns+` FROM admins WHERE external_account = $1 AND is_active`,
		int64(account))
}

func (r *Repo) GetByMemberID(ctx context.Context, id domain.MemberID) (domain.Admin, error) {
	return r.getOne(ctx,
		`SELECT `+adminColumns+` FROM admins WHERE member_id = $1 AND is_active`,
		string(id))
}

func (r *Repo) GetSuper(ctx context.Context) (domain.Admin, error) {
	return r.getOne(ctx,
		`SELECT `+adminColumns+` FROM admins WHERE is_super AND is_active`)
}

func (r *Repo) List(ctx context.Context) ([]domain.Admin, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+adminColumns+` FROM admins
		WHERE is_active
		ORDER BY is_super DESC, added_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Admin, 0)
	for rows.Next() {
		a, err := scanAdmin(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repo) Count(ctx context.Context) (adminrepo.Count, error) {
	if r.pool == nil {
		return adminrepo.Count{}, errors.New("nil postgres pool")
	}
	var c adminrepo.Count
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE is_super)
		FROM admins WHERE is_active
	`).Scan(&c.Total, &c.Super)
	if err != nil {
		return adminrepo.Count{}, err
	}
	c.Regular = c.Total - c.Super
	return c, nil
}

func (r *Repo) getOne(ctx context.Context, query string, args ...any) (domain.Admin, error) {
	if r.pool == nil {
		return domain.Admin{}, errors.New("nil postgres pool")
	}
	a, err := scanAdmin(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Admin{}, adminrepo.ErrNotFound
		}
		return domain.Admin{}, err
	}
	return a, nil
}

func scanAdmin(row pgx.Row) (domain.Admin, error) {
	var (
		a        domain.Admin
		account  int64
		memberID string
		addedBy  *int64
		addedAt  time.Time
	)
	err := row.Scan(
		&a.ID, &account, &memberID, &a.DisplayName, &a.IsSuper, &addedBy,
		&a.IsActive, &addedAt,
	)
	if err != nil {
		return domain.Admin{}, err
	}
	a.ExternalAccount = domain.ExternalAccountID(account)
	a.MemberID = domain.MemberID(memberID)
	a.AddedAt = addedAt
	if addedBy != nil {
		b := domain.ExternalAccountID(*addedBy)
		a.AddedBy = &b
	}
	return a, nil
}

func addedByValue(p *domain.ExternalAccountID) *int64 {
	if p == nil {
		return nil
	}
	v := int64(*p)
	return &v
}
