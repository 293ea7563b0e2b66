package adminrepo

import (
	"testing"

	"github.com/ijara-kitoblar/library-bot/internal/adapters/contracttest"
	pgmemberrepo "github.com/ijara-kitoblar/library-bot/internal/adapters/postgres/memberrepo"
	"github.com/ijara-kitoblar/library-bot/internal/adapters/postgres/testutil"
	adminrepoport "github.com/ijara-kitoblar/library-bot/internal/ports/out/adminrepo"
	memberrepoport "github.com/ijara-kitoblar/library-bot/internal/ports/out/memberrepo"
)

func TestContract_PostgresAdminRepo(t *testing.T) {
	contracttest.RunAdminRepo(t, func(t *testing.T) (adminrepoport.Repository, memberrepoport.Repository, contracttest.CleanupFunc) {
		t.Helper()
		pool := testutil.OpenMigratedPool(t)
		return NewRepo(pool), pgmemberrepo.NewRepo(pool), nil
	})
}
