package notifrepo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ijara-kitoblar/library-bot/internal/domain"
)

// Repo is a Postgres implementation of notifrepo.Repository.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) Append(ctx context.Context, rec domain.NotificationRecord) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	var account *int64
	if rec.ExternalAccount != nil {
		v := int64(*rec.ExternalAccount)
		account = &v
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (id, member_id, external_account, kind, body, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		rec.ID,
		string(rec.MemberID),
		account,
		string(rec.Kind),
		rec.Body,
		rec.SentAt.UTC(),
	)
	return err
}

func (r *Repo) ListByMember(ctx context.Context, id domain.MemberID, limit int) ([]domain.NotificationRecord, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, member_id, external_account, kind, body, sent_at
		FROM notifications
		WHERE member_id = $1
		ORDER BY sent_at DESC, id DESC
		LIMIT $2
	`, string(id), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.NotificationRecord, 0)
	for rows.Next() {
		var (
			rec      domain.NotificationRecord
			memberID string
			account  *int64
			kind     string
			sentAt   time.Time
		)
		if err := rows.Scan(&rec.ID, &memberID, &account, &kind, &rec.Body, &sentAt); err != nil {
			return nil, err
		}
		rec.MemberID = domain.MemberID(memberID)
		rec.Kind = domain.NotificationKind(kind)
		rec.SentAt = sentAt
		if account != nil {
			a := domain.ExternalAccountID(*account)
			rec.ExternalAccount = &a
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
