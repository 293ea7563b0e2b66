package memberrepo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	postgres "github.com/ijara-kitoblar/library-bot/internal/adapters/postgres"
	"github.com/ijara-kitoblar/library-bot/internal/domain"
	"github.com/ijara-kitoblar/library-bot/internal/ports/out/memberrepo"
)

// createRetries bounds retries of the sequence-assignment transaction when a
// concurrent insert wins the same sequence number.
const createRetries = 3

const memberColumns = `
	id, seq, external_account, given_name, family_name, phone,
	birth_year, affiliation, plan, plan_expiry, is_active,
	created_at, updated_at`

// Repo is a Postgres implementation of memberrepo.Repository.
type Repo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool, tracer: otel.Tracer("library-bot/postgres/memberrepo")}
}

func (r *Repo) Create(ctx context.Context, m domain.Member) (domain.Member, error) {
	ctx, span := r.tracer.Start(ctx, "memberrepo.create")
	defer span.End()

	if r.pool == nil {
		return domain.Member{}, errors.New("nil postgres pool")
	}
	if m.ID != "" {
		return domain.Member{}, fmt.Errorf("member id is repository-assigned, got %q", m.ID)
	}

	var lastErr error
	for attempt := 0; attempt < createRetries; attempt++ {
		created, err := r.tryCreate(ctx, m)
		if err == nil {
			span.SetAttributes(attribute.String("member.id", string(created.ID)))
			return created, nil
		}
		if errors.Is(err, errSeqTaken) {
			// Another registration claimed the same sequence number between
			// our MAX(seq) read and the insert.
			lastErr = err
			continue
		}
		return domain.Member{}, err
	}
	return domain.Member{}, fmt.Errorf("assign member id after %d attempts: %w", createRetries, lastErr)
}

var errSeqTaken = errors.New("sequence number taken")

func (r *Repo) tryCreate(ctx context.Context, m domain.Member) (domain.Member, error) {
	var created domain.Member
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var seq int
		if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM members`).Scan(&seq); err != nil {
			return err
		}
		m.ID = domain.FormatMemberID(seq)

		_, err := tx.Exec(ctx, `
			INSERT INTO members (
				id, seq, external_account, given_name, family_name, phone,
				birth_year, affiliation, plan, plan_expiry, is_active,
				created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`,
			string(m.ID),
			seq,
			accountValue(m.ExternalAccount),
			m.GivenName,
			m.FamilyName,
			m.Phone,
			m.BirthYear,
			m.Affiliation,
			string(m.Plan),
			expiryValue(m.PlanExpiry),
			m.IsActive,
			m.CreatedAt.UTC(),
			m.UpdatedAt.UTC(),
		)
		if err != nil {
			if pe, ok := postgres.AsPgError(err); ok && pe.Code == postgres.UniqueViolationCode {
				switch pe.ConstraintName {
				case "members_pkey", "members_seq_unique":
					return errSeqTaken
				case "members_phone_unique":
					return memberrepo.ErrPhoneTaken
				case "members_external_account_unique":
					return memberrepo.ErrAccountTaken
				}
			}
			return err
		}
		created = m
		return nil
	})
	if err != nil {
		return domain.Member{}, err
	}
	return created, nil
}

func (r *Repo) Update(ctx context.Context, m domain.Member) error {
	ctx, span := r.tracer.Start(ctx, "memberrepo.update",
		trace.WithAttributes(attribute.String("member.id", string(m.ID))))
	defer span.End()

	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	// The account binding is deliberately absent: it only changes via Link.
	tag, err := r.pool.Exec(ctx, `
		UPDATE members SET
			given_name = $2,
			family_name = $3,
			phone = $4,
			birth_year = $5,
			affiliation = $6,
			plan = $7,
			plan_expiry = $8,
			is_active = $9,
			updated_at = $10
		WHERE id = $1
	`,
		string(m.ID),
		m.GivenName,
		m.FamilyName,
		m.Phone,
		m.BirthYear,
		m.Affiliation,
		string(m.Plan),
		expiryValue(m.PlanExpiry),
		m.IsActive,
		m.UpdatedAt.UTC(),
	)
	if err != nil {
		if pe, ok := postgres.AsPgError(err); ok &&
			pe.Code == postgres.UniqueViolationCode && pe.ConstraintName == "members_phone_unique" {
			return memberrepo.ErrPhoneTaken
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return memberrepo.ErrNotFound
	}
	return nil
}

func (r *Repo) Link(ctx context.Context, id domain.MemberID, account domain.ExternalAccountID, now time.Time) (domain.Member, error) {
	ctx, span := r.tracer.Start(ctx, "memberrepo.link",
		trace.WithAttributes(attribute.String("member.id", string(id))))
	defer span.End()

	if r.pool == nil {
		return domain.Member{}, errors.New("nil postgres pool")
	}

	var linked domain.Member
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE members
			SET external_account = $2, updated_at = $3
			WHERE id = $1 AND external_account IS NULL
		`, string(id), int64(account), now.UTC())
		if err != nil {
			if pe, ok := postgres.AsPgError(err); ok &&
				pe.Code == postgres.UniqueViolationCode && pe.ConstraintName == "members_external_account_unique" {
				return memberrepo.ErrAccountTaken
			}
			return err
		}
		if tag.RowsAffected() == 0 {
			// Distinguish a missing member from one already claimed.
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM members WHERE id = $1)`, string(id)).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return memberrepo.ErrNotFound
			}
			return memberrepo.ErrAlreadyLinked
		}

		row := tx.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1`, string(id))
		linked, err = scanMember(row)
		return err
	})
	if err != nil {
		return domain.Member{}, err
	}
	return linked, nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.MemberID) (domain.Member, error) {
	return r.getOne(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1`, string(id))
}

func (r *Repo) GetByExternalAccount(ctx context.Context, account domain.ExternalAccountID) (domain.Member, error) {
	return r.getOne(ctx, `SELECT `+memberColumns+` FROM members WHERE external_account = $1`, int64(account))
}

func (r *Repo) GetByPhone(ctx context.Context, phone string) (domain.Member, error) {
	return r.getOne(ctx, `SELECT `+memberColumns+` FROM members WHERE phone = $1`, phone)
}

func (r *Repo) List(ctx context.Context, includeInactive bool) ([]domain.Member, error) {
	q := `SELECT ` + memberColumns + ` FROM members`
	if !includeInactive {
		q += ` WHERE is_active`
	}
	q += ` ORDER BY seq DESC`
	return r.getMany(ctx, q)
}

func (r *Repo) Search(ctx context.Context, query string, limit int) ([]domain.Member, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return []domain.Member{}, nil
	}
	pattern := "%" + escapeLike(q) + "%"
	return r.getMany(ctx, `
		SELECT `+memberColumns+` FROM members
		WHERE is_active AND (
			id ILIKE $1 OR given_name ILIKE $1 OR family_name ILIKE $1 OR phone LIKE $1
		)
		ORDER BY seq DESC
		LIMIT $2
	`, pattern, limit)
}

func (r *Repo) ExpiringBetween(ctx context.Context, from, to time.Time) ([]domain.Member, error) {
	return r.getMany(ctx, `
		SELECT `+memberColumns+` FROM members
		WHERE is_active AND plan <> 'Free' AND plan_expiry IS NOT NULL
			AND plan_expiry > $1 AND plan_expiry <= $2
		ORDER BY id
	`, from.UTC(), to.UTC())
}

func (r *Repo) ExpiredBefore(ctx context.Context, t time.Time) ([]domain.Member, error) {
	return r.getMany(ctx, `
		SELECT `+memberColumns+` FROM members
		WHERE is_active AND plan <> 'Free' AND plan_expiry IS NOT NULL
			AND plan_expiry < $1
		ORDER BY id
	`, t.UTC())
}

func (r *Repo) Statistics(ctx context.Context, now time.Time) (memberrepo.Stats, error) {
	ctx, span := r.tracer.Start(ctx, "memberrepo.statistics")
	defer span.End()

	if r.pool == nil {
		return memberrepo.Stats{}, errors.New("nil postgres pool")
	}

	var s memberrepo.Stats
	var avgBirth *float64
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE plan = 'Free'),
			COUNT(*) FILTER (WHERE plan = 'Money'),
			COUNT(*) FILTER (WHERE plan = 'Premium'),
			COUNT(*) FILTER (WHERE external_account IS NOT NULL),
			AVG(birth_year)
		FROM members
		WHERE is_active
	`).Scan(&s.Total, &s.Free, &s.Money, &s.Premium, &s.Linked, &avgBirth)
	if err != nil {
		return memberrepo.Stats{}, err
	}
	if s.Total > 0 && avgBirth != nil {
		age := float64(now.Year()) - *avgBirth
		s.AverageAge = float64(int(age*10+0.5)) / 10
	}
	return s, nil
}

func (r *Repo) getOne(ctx context.Context, query string, arg any) (domain.Member, error) {
	if r.pool == nil {
		return domain.Member{}, errors.New("nil postgres pool")
	}
	m, err := scanMember(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Member{}, memberrepo.ErrNotFound
		}
		return domain.Member{}, err
	}
	return m, nil
}

func (r *Repo) getMany(ctx context.Context, query string, args ...any) ([]domain.Member, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Member, 0)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMember(row pgx.Row) (domain.Member, error) {
	var (
		m       domain.Member
		id      string
		seq     int
		account *int64
		plan    string
		expiry  *time.Time
	)
	err := row.Scan(
		&id, &seq, &account,
		&m.GivenName, &m.FamilyName, &m.Phone,
		&m.BirthYear, &m.Affiliation,
		&plan, &expiry, &m.IsActive,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Member{}, err
	}
	m.ID = domain.MemberID(id)
	m.Plan = domain.Plan(plan)
	m.PlanExpiry = expiry
	if account != nil {
		a := domain.ExternalAccountID(*account)
		m.ExternalAccount = &a
	}
	return m, nil
}

func accountValue(p *domain.ExternalAccountID) *int64 {
	if p == nil {
		return nil
	}
	v := int64(*p)
	return &v
}

func expiryValue(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	t := p.UTC()
	return &t
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
