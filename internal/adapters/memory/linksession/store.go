package linksession

import (
	"context"
	"sync"
	"time"

	"github.com/ijara-kitoblar/library-bot/internal/domain"
	clockport "github.com/ijara-kitoblar/library-bot/internal/ports/out/clock"
	"github.com/ijara-kitoblar/library-bot/internal/ports/out/linksession"
)

// Store is an in-memory implementation of linksession.Store. Expired
// sessions are dropped lazily on read; the clock is injected so expiry is
// deterministic in tests.
type Store struct {
	mu  sync.Mutex
	clk clockport.Clock

	sessions  map[domain.ExternalAccountID]linksession.Session
	deadlines map[domain.ExternalAccountID]time.Time
}

func NewStore(clk clockport.Clock) *Store {
	return &Store{
		clk:       clk,
		sessions:  make(map[domain.ExternalAccountID]linksession.Session),
		deadlines: make(map[domain.ExternalAccountID]time.Time),
	}
}

func (s *Store) Put(ctx context.Context, sess linksession.Session, ttl time.Duration) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Actor] = sess
	s.deadlines[sess.Actor] = s.clk.Now().Add(ttl)
	return nil
}

func (s *Store) Get(ctx context.Context, actor domain.ExternalAccountID) (linksession.Session, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[actor]
	if !ok {
		return linksession.Session{}, linksession.ErrNotFound
	}
	if s.clk.Now().After(s.deadlines[actor]) {
		delete(s.sessions, actor)
		delete(s.deadlines, actor)
		return linksession.Session{}, linksession.ErrNotFound
	}
	return sess, nil
}

func (s *Store) Delete(ctx context.Context, actor domain.ExternalAccountID) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, actor)
	delete(s.deadlines, actor)
	return nil
}
