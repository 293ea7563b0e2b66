package notifrepo

import (
	"testing"

	"github.com/ijara-kitoblar/library-bot/internal/adapters/contracttest"
	pgmemberrepo "github.com/ijara-kitoblar/library-bot/internal/adapters/postgres/memberrepo"
	"github.com/ijara-kitoblar/library-bot/internal/adapters/postgres/testutil"
	memberrepoport "github.com/ijara-kitoblar/library-bot/internal/ports/out/memberrepo"
	notifrepoport "github.com/ijara-kitoblar/library-bot/internal/ports/out/notifrepo"
)

func TestContract_PostgresNotifRepo(t *testing.T) {
	contracttest.RunNotifRepo(t, func(t *testing.T) (notifrepoport.Repository, memberrepoport.Repository, contracttest.CleanupFunc) {
		t.Helper()
		pool := testutil.OpenMigratedPool(t)
		return NewRepo(pool), pgmemberrepo.NewRepo(pool), nil
	})
}
