package notifrepo

import (
	"context"
	"sync"

	"github.com/ijara-kitoblar/library-bot/internal/domain"
)

// Repo is an in-memory implementation of notifrepo.Repository.
// It is safe for concurrent use.
type Repo struct {
	mu   sync.Mutex
	recs []domain.NotificationRecord
}

func NewRepo() *Repo { return &Repo{} }

func (r *Repo) Append(ctx context.Context, rec domain.NotificationRecord) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, cloneRecord(rec))
	return nil
}

func (r *Repo) ListByMember(ctx context.Context, id domain.MemberID, limit int) ([]domain.NotificationRecord, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.NotificationRecord, 0)
	for i := len(r.recs) - 1; i >= 0; i-- {
		if r.recs[i].MemberID != id {
			continue
		}
		out = append(out, cloneRecord(r.recs[i]))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func cloneRecord(rec domain.NotificationRecord) domain.NotificationRecord {
	out := rec
	if rec.ExternalAccount != nil {
		v := *rec.ExternalAccount
		out.ExternalAccount = &v
	}
	return out
}
