package notifrepo

import (
	"testing"

	"github.com/ijara-kitoblar/library-bot/internal/adapters/contracttest"
	memmemberrepo "github.com/ijara-kitoblar/library-bot/internal/adapters/memory/memberrepo"
	memberrepoport "github.com/ijara-kitoblar/library-bot/internal/ports/out/memberrepo"
	notifrepoport "github.com/ijara-kitoblar/library-bot/internal/ports/out/notifrepo"
)

func TestContract_MemoryNotifRepo(t *testing.T) {
	contracttest.RunNotifRepo(t, func(t *testing.T) (notifrepoport.Repository, memberrepoport.Repository, contracttest.CleanupFunc) {
		t.Helper()
		return NewRepo(), memmemberrepo.NewRepo(), nil
	})
}
