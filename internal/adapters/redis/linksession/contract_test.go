package linksession

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ijara-kitoblar/library-bot/internal/adapters/contracttest"
	linksessionport "github.com/ijara-kitoblar/library-bot/internal/ports/out/linksession"
)

func TestContract_RedisSessionStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set; skipping redis tests")
	}

	contracttest.RunSessionStore(t, func(t *testing.T) (linksessionport.Store, contracttest.CleanupFunc) {
		t.Helper()
		rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 9})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.FlushDB(ctx).Err(); err != nil {
			t.Fatalf("flush test db: %v", err)
		}
		return NewStore(rdb), func() { _ = rdb.Close() }
	})
}
