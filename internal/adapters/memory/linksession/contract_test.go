package linksession

import (
	"context"
	"testing"
	"time"

	"github.com/ijara-kitoblar/library-bot/internal/adapters/contracttest"
	memclock "github.com/ijara-kitoblar/library-bot/internal/adapters/memory/clock"
	linksessionport "github.com/ijara-kitoblar/library-bot/internal/ports/out/linksession"
)

func TestContract_MemorySessionStore(t *testing.T) {
	contracttest.RunSessionStore(t, func(t *testing.T) (linksessionport.Store, contracttest.CleanupFunc) {
		t.Helper()
		return NewStore(memclock.NewManualClock(time.Unix(1_700_000_000, 0).UTC())), nil
	})
}

func TestMemorySessionStore_Expiry(t *testing.T) {
	t.Parallel()

	clk := memclock.NewManualClock(time.Unix(1_700_000_000, 0).UTC())
	store := NewStore(clk)

	sess := linksessionport.Session{
		Actor:      7,
		State:      linksessionport.StateAwaitingMemberID,
		StartedAt:  clk.Now(),
		LastActive: clk.Now(),
	}
	if err := store.Put(context.Background(), sess, 15*time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}

	clk.Advance(14 * time.Minute)
	if _, err := store.Get(context.Background(), 7); err != nil {
		t.Fatalf("expected live session, got %v", err)
	}

	clk.Advance(2 * time.Minute)
	if _, err := store.Get(context.Background(), 7); err != linksessionport.ErrNotFound {
		t.Fatalf("expected ErrNotFound after ttl, got %v", err)
	}
}
