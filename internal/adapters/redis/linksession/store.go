// Package linksession is a Redis-backed session store. Redis TTLs do the
// expiry, so a crashed bot instance leaves no stale protocol state behind.
package linksession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ijara-kitoblar/library-bot/internal/domain"
	"github.com/ijara-kitoblar/library-bot/internal/ports/out/linksession"
)

type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

type sessionDoc struct {
	Actor         int64     `json:"actor"`
	State         string    `json:"state"`
	MemberID      string    `json:"memberId,omitempty"`
	PhoneAttempts int       `json:"phoneAttempts"`
	StartedAt     time.Time `json:"startedAt"`
	LastActive    time.Time `json:"lastActive"`
}

func key(actor domain.ExternalAccountID) string {
	return fmt.Sprintf("link:%d", actor)
}

func (s *Store) Put(ctx context.Context, sess linksession.Session, ttl time.Duration) error {
	doc := sessionDoc{
		Actor:         int64(sess.Actor),
		State:         string(sess.State),
		MemberID:      string(sess.MemberID),
		PhoneAttempts: sess.PhoneAttempts,
		StartedAt:     sess.StartedAt,
		LastActive:    sess.LastActive,
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return s.rdb.Set(ctx, key(sess.Actor), raw, ttl).Err()
}

func (s *Store) Get(ctx context.Context, actor domain.ExternalAccountID) (linksession.Session, error) {
	raw, err := s.rdb.Get(ctx, key(actor)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return linksession.Session{}, linksession.ErrNotFound
		}
		return linksession.Session{}, err
	}
	var doc sessionDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return linksession.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return linksession.Session{
		Actor:         domain.ExternalAccountID(doc.Actor),
		State:         linksession.State(doc.State),
		MemberID:      domain.MemberID(doc.MemberID),
		PhoneAttempts: doc.PhoneAttempts,
		StartedAt:     doc.StartedAt,
		LastActive:    doc.LastActive,
	}, nil
}

func (s *Store) Delete(ctx context.Context, actor domain.ExternalAccountID) error {
	return s.rdb.Del(ctx, key(actor)).Err()
}
