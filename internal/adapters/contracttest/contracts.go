// Package contracttest holds behavioral suites every repository
// implementation must pass, so the memory and postgres adapters cannot
// drift apart.
package contracttest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ijara-kitoblar/library-bot/internal/domain"
	adminrepoport "github.com/ijara-kitoblar/library-bot/internal/ports/out/adminrepo"
	linksessionport "github.com/ijara-kitoblar/library-bot/internal/ports/out/linksession"
	memberrepoport "github.com/ijara-kitoblar/library-bot/internal/ports/out/memberrepo"
	notifrepoport "github.com/ijara-kitoblar/library-bot/internal/ports/out/notifrepo"
)

type CleanupFunc = func()

type MemberRepoFactory func(t *testing.T) (memberrepoport.Repository, CleanupFunc)
type AdminRepoFactory func(t *testing.T) (adminrepoport.Repository, memberrepoport.Repository, CleanupFunc)
type NotifRepoFactory func(t *testing.T) (notifrepoport.Repository, memberrepoport.Repository, CleanupFunc)
type SessionStoreFactory func(t *testing.T) (linksessionport.Store, CleanupFunc)

func newMember(given, family, phone string, now time.Time) domain.Member {
	return domain.Member{
		GivenName:   given,
		FamilyName:  family,
		Phone:       phone,
		BirthYear:   1990,
		Affiliation: "Test University",
		Plan:        domain.PlanFree,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func RunMemberRepo(t *testing.T, newRepo MemberRepoFactory) {
	t.Helper()
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()

	t.Run("create assigns sequential ids", func(t *testing.T) {
		repo, cleanup := newRepo(t)
		if cleanup != nil {
			t.Cleanup(cleanup)
		}

		a, err := repo.Create(ctx, newMember("Alice", "Adams", "+998901110001", now))
		if err != nil {
			t.Fatalf("Create a: %v", err)
		}
		b, err := repo.Create(ctx, newMember("Bob", "Brown", "+998901110002", now))
		if err != nil {
			t.Fatalf("Create b: %v", err)
		}
		if a.ID != "ID0001" || b.ID != "ID0002" {
			t.Fatalf("expected ID0001/ID0002, got %s/%s", a.ID, b.ID)
		}
	})

	t.Run("create rejects preassigned id", func(t *testing.T) {
		repo, cleanup := newRepo(t)
		if cleanup != nil {
			t.Cleanup(cleanup)
		}
		m := newMember("Carol", "Clark", "+998901110003", now)
		m.ID = "ID0099"
		if _, err := repo.Create(ctx, m); err == nil {
			t.Fatalf("expected error for preassigned id")
		}
	})

	t.Run("phone uniqueness", func(t *testing.T) {
		repo, cleanup := newRepo(t)
		if cleanup != nil {
			t.Cleanup(cleanup)
		}
		if _, err := repo.Create(ctx, newMember("Alice", "Adams", "+998901110001", now)); err != nil {
			t.Fatalf("Create: %v", err)
		}
		_, err := repo.Create(ctx, newMember("Imposter", "Adams", "+998901110001", now))
		if !errors.Is(err, memberrepoport.ErrPhoneTaken) {
			t.Fatalf("expected ErrPhoneTaken, got %v", err)
		}
	})

	t.Run("link lifecycle", func(t *testing.T) {
		repo, cleanup := newRepo(t)
		if cleanup != nil {
			t.Cleanup(cleanup)
		}
		a, err := repo.Create(ctx, newMember("Alice", "Adams", "+998901110001", now))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		b, err := repo.Create(ctx, newMember("Bob", "Brown", "+998901110002", now))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}

		account := domain.ExternalAccountID(555)
		linked, err := repo.Link(ctx, a.ID, account, now.Add(time.Hour))
		if err != nil {
			t.Fatalf("Link: %v", err)
		}
		if linked.ExternalAccount == nil || *linked.ExternalAccount != account {
			t.Fatalf("expected linked account %d, got %+v", account, linked.ExternalAccount)
		}
		if !linked.UpdatedAt.Equal(now.Add(time.Hour)) {
			t.Fatalf("expected UpdatedAt stamped, got %v", linked.UpdatedAt)
		}

		if _, err := repo.GetByExternalAccount(ctx, account); err != nil {
			t.Fatalf("GetByExternalAccount: %v", err)
		}

		// Relinking the same member fails.
		if _, err := repo.Link(ctx, a.ID, 777, now); !errors.Is(err, memberrepoport.ErrAlreadyLinked) {
			t.Fatalf("expected ErrAlreadyLinked, got %v", err)
		}
		// Claiming the account for another member fails.
		if _, err := repo.Link(ctx, b.ID, account, now); !errors.Is(err, memberrepoport.ErrAccountTaken) {
			t.Fatalf("expected ErrAccountTaken, got %v", err)
		}
		// Unknown member.
		if _, err := repo.Link(ctx, "ID9999", 888, now); !errors.Is(err, memberrepoport.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("update keeps account binding", func(t *testing.T) {
		repo, cleanup := newRepo(t)
		if cleanup != nil {
			t.Cleanup(cleanup)
		}
		a, err := repo.Create(ctx, newMember("Alice", "Adams", "+998901110001", now))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if _, err := repo.Link(ctx, a.ID, 555, now); err != nil {
			t.Fatalf("Link: %v", err)
		}

		got, err := repo.GetByID(ctx, a.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		got.GivenName = "Alicia"
		got.ExternalAccount = nil
		if err := repo.Update(ctx, got); err != nil {
			t.Fatalf("Update: %v", err)
		}

		after, err := repo.GetByID(ctx, a.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if after.GivenName != "Alicia" {
			t.Fatalf("expected updated name, got %q", after.GivenName)
		}
		if after.ExternalAccount == nil || *after.ExternalAccount != 555 {
			t.Fatalf("account binding must survive Update, got %+v", after.ExternalAccount)
		}
	})

	t.Run("search and list", func(t *testing.T) {
		repo, cleanup := newRepo(t)
		if cleanup != nil {
			t.Cleanup(cleanup)
		}
		if _, err := repo.Create(ctx, newMember("Alice", "Adams", "+998901110001", now)); err != nil {
			t.Fatalf("Create: %v", err)
		}
		b, err := repo.Create(ctx, newMember("Bob", "Brown", "+998901110002", now))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}

		ms, err := repo.Search(ctx, "ali", 10)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(ms) != 1 || ms[0].GivenName != "Alice" {
			t.Fatalf("expected Alice, got %+v", ms)
		}

		// Deactivated members disappear from search and plain listing.
		b.IsActive = false
		if err := repo.Update(ctx, b); err != nil {
			t.Fatalf("Update: %v", err)
		}
		ms, err = repo.List(ctx, false)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(ms) != 1 {
			t.Fatalf("expected 1 active member, got %d", len(ms))
		}
		ms, err = repo.List(ctx, true)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(ms) != 2 {
			t.Fatalf("expected 2 members, got %d", len(ms))
		}
		// Newest first.
		if ms[0].ID != "ID0002" {
			t.Fatalf("expected newest first, got %s", ms[0].ID)
		}
	})

	t.Run("expiry windows", func(t *testing.T) {
		repo, cleanup := newRepo(t)
		if cleanup != nil {
			t.Cleanup(cleanup)
		}
		soonExpiry := now.AddDate(0, 0, 2)
		pastExpiry := now.AddDate(0, 0, -1)

		soon, err := repo.Create(ctx, newMember("Soon", "Ending", "+998901110001", now))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		soon.Plan = domain.PlanMoney
		soon.PlanExpiry = &soonExpiry
		if err := repo.Update(ctx, soon); err != nil {
			t.Fatalf("Update: %v", err)
		}

		past, err := repo.Create(ctx, newMember("Al", "Ready", "+998901110002", now))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		past.Plan = domain.PlanPremium
		past.PlanExpiry = &pastExpiry
		if err := repo.Update(ctx, past); err != nil {
			t.Fatalf("Update: %v", err)
		}

		if _, err := repo.Create(ctx, newMember("Free", "Forever", "+998901110003", now)); err != nil {
			t.Fatalf("Create: %v", err)
		}

		expiring, err := repo.ExpiringBetween(ctx, now, now.AddDate(0, 0, 3))
		if err != nil {
			t.Fatalf("ExpiringBetween: %v", err)
		}
		if len(expiring) != 1 || expiring[0].ID != soon.ID {
			t.Fatalf("expected only %s expiring, got %+v", soon.ID, expiring)
		}

		expired, err := repo.ExpiredBefore(ctx, now)
		if err != nil {
			t.Fatalf("ExpiredBefore: %v", err)
		}
		if len(expired) != 1 || expired[0].ID != past.ID {
			t.Fatalf("expected only %s expired, got %+v", past.ID, expired)
		}
	})

	t.Run("statistics", func(t *testing.T) {
		repo, cleanup := newRepo(t)
		if cleanup != nil {
			t.Cleanup(cleanup)
		}
		phones := []string{"+998901110001", "+998901110002", "+998901110003"}
		for i, phone := range phones {
			m := newMember("Member", "Num"+string(rune('A'+i)), phone, now)
			m.BirthYear = 1990 + i
			created, err := repo.Create(ctx, m)
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if i == 0 {
				upd, err := repo.GetByID(ctx, created.ID)
				if err != nil {
					t.Fatalf("GetByID: %v", err)
				}
				expiry := now.AddDate(0, 0, 30)
				upd.Plan = domain.PlanMoney
				upd.PlanExpiry = &expiry
				if err := repo.Update(ctx, upd); err != nil {
					t.Fatalf("Update: %v", err)
				}
			}
			if i == 1 {
				if _, err := repo.Link(ctx, created.ID, domain.ExternalAccountID(100+int64(i)), now); err != nil {
					t.Fatalf("Link: %v", err)
				}
			}
		}

		st, err := repo.Statistics(ctx, now)
		if err != nil {
			t.Fatalf("Statistics: %v", err)
		}
		if st.Total != 3 || st.Free != 2 || st.Money != 1 || st.Premium != 0 || st.Linked != 1 {
			t.Fatalf("unexpected stats: %+v", st)
		}
		// Birth years 1990..1992 around now (2023): average age 32.
		if st.AverageAge != 32.0 {
			t.Fatalf("expected average age 32.0, got %v", st.AverageAge)
		}
	})
}

func RunAdminRepo(t *testing.T, newRepo AdminRepoFactory) {
	t.Helper()
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()

	seedMember := func(t *testing.T, members memberrepoport.Repository, phone string, account domain.ExternalAccountID) domain.Member {
		t.Helper()
		m, err := members.Create(ctx, newMember("Admin", "Candidate", phone, now))
		if err != nil {
			t.Fatalf("seed member: %v", err)
		}
		linked, err := members.Link(ctx, m.ID, account, now)
		if err != nil {
			t.Fatalf("seed link: %v", err)
		}
		return linked
	}

	t.Run("single super admin", func(t *testing.T) {
		repo, members, cleanup := newRepo(t)
		if cleanup != nil {
			t.Cleanup(cleanup)
		}
		m1 := seedMember(t, members, "+998901110001", 100)
		m2 := seedMember(t, members, "+998901110002", 200)

		super, err := repo.Create(ctx, domain.Admin{
			ExternalAccount: 100, MemberID: m1.ID, DisplayName: "First",
			IsSuper: true, IsActive: true, AddedAt: now,
		})
		if err != nil {
			t.Fatalf("Create super: %v", err)
		}
		if super.ID == 0 {
			t.Fatalf("expected assigned id")
		}

		_, err = repo.Create(ctx, domain.Admin{
			ExternalAccount: 200, MemberID: m2.ID, DisplayName: "Second",
			IsSuper: true, IsActive: true, AddedAt: now,
		})
		if !errors.Is(err, adminrepoport.ErrSuperExists) {
			t.Fatalf("expected ErrSuperExists, got %v", err)
		}

		got, err := repo.GetSuper(ctx)
		if err != nil {
			t.Fatalf("GetSuper: %v", err)
		}
		if got.MemberID != m1.ID {
			t.Fatalf("expected super %s, got %s", m1.ID, got.MemberID)
		}
	})

	t.Run("account uniqueness and deactivation", func(t *testing.T) {
		repo, members, cleanup := newRepo(t)
		if cleanup != nil {
			t.Cleanup(cleanup)
		}
		m1 := seedMember(t, members, "+998901110001", 100)

		a, err := repo.Create(ctx, domain.Admin{
			ExternalAccount: 100, MemberID: m1.ID, DisplayName: "Admin A",
			IsActive: true, AddedAt: now,
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		_, err = repo.Create(ctx, domain.Admin{
			ExternalAccount: 100, MemberID: m1.ID, DisplayName: "Dup",
			IsActive: true, AddedAt: now,
		})
		if !errors.Is(err, adminrepoport.ErrAccountTaken) {
			t.Fatalf("expected ErrAccountTaken, got %v", err)
		}

		a.IsActive = false
		if err := repo.Update(ctx, a); err != nil {
			t.Fatalf("Update: %v", err)
		}
		if _, err := repo.GetByExternalAccount(ctx, 100); !errors.Is(err, adminrepoport.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after deactivation, got %v", err)
		}
		// A revoked account can be granted again.
		if _, err := repo.Create(ctx, domain.Admin{
			ExternalAccount: 100, MemberID: m1.ID, DisplayName: "Again",
			IsActive: true, AddedAt: now.Add(time.Hour),
		}); err != nil {
			t.Fatalf("re-grant after revoke: %v", err)
		}
	})

	t.Run("list order and count", func(t *testing.T) {
		repo, members, cleanup := newRepo(t)
		if cleanup != nil {
			t.Cleanup(cleanup)
		}
		m1 := seedMember(t, members, "+998901110001", 100)
		m2 := seedMember(t, members, "+998901110002", 200)
		m3 := seedMember(t, members, "+998901110003", 300)

		if _, err := repo.Create(ctx, domain.Admin{
			ExternalAccount: 200, MemberID: m2.ID, DisplayName: "Regular Early",
			IsActive: true, AddedAt: now,
		}); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if _, err := repo.Create(ctx, domain.Admin{
			ExternalAccount: 100, MemberID: m1.ID, DisplayName: "Boss",
			IsSuper: true, IsActive: true, AddedAt: now.Add(time.Hour),
		}); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if _, err := repo.Create(ctx, domain.Admin{
			ExternalAccount: 300, MemberID: m3.ID, DisplayName: "Regular Late",
			IsActive: true, AddedAt: now.Add(2 * time.Hour),
		}); err != nil {
			t.Fatalf("Create: %v", err)
		}

		as, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(as) != 3 || !as[0].IsSuper || as[1].DisplayName != "Regular Early" {
			t.Fatalf("unexpected order: %+v", as)
		}

		c, err := repo.Count(ctx)
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		if c.Total != 3 || c.Super != 1 || c.Regular != 2 {
			t.Fatalf("unexpected count: %+v", c)
		}
	})
}

func RunNotifRepo(t *testing.T, newRepo NotifRepoFactory) {
	t.Helper()
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()

	repo, members, cleanup := newRepo(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}
	m, err := members.Create(ctx, newMember("Alice", "Adams", "+998901110001", now))
	if err != nil {
		t.Fatalf("seed member: %v", err)
	}

	for i := 0; i < 3; i++ {
		rec := domain.NotificationRecord{
			ID:       uuid.NewString(),
			MemberID: m.ID,
			Kind:     domain.NotificationWarning,
			Body:     "warning " + string(rune('a'+i)),
			SentAt:   now.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Append(ctx, rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	recs, err := repo.ListByMember(ctx, m.ID, 2)
	if err != nil {
		t.Fatalf("ListByMember: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Body != "warning c" || recs[1].Body != "warning b" {
		t.Fatalf("expected newest first, got %+v", recs)
	}

	recs, err = repo.ListByMember(ctx, "ID9999", 10)
	if err != nil {
		t.Fatalf("ListByMember empty: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("expected no records, got %d", len(recs))
	}
}

func RunSessionStore(t *testing.T, newStore SessionStoreFactory) {
	t.Helper()
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()

	store, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	actor := domain.ExternalAccountID(42)
	sess := linksessionport.Session{
		Actor:      actor,
		State:      linksessionport.StateAwaitingMemberID,
		StartedAt:  now,
		LastActive: now,
	}
	if err := store.Put(ctx, sess, time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(ctx, actor)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != linksessionport.StateAwaitingMemberID || got.Actor != actor {
		t.Fatalf("unexpected session: %+v", got)
	}

	// Overwrite advances the protocol.
	sess.State = linksessionport.StateAwaitingPhone
	sess.MemberID = "ID0001"
	sess.PhoneAttempts = 1
	if err := store.Put(ctx, sess, time.Minute); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, err = store.Get(ctx, actor)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != linksessionport.StateAwaitingPhone || got.MemberID != "ID0001" || got.PhoneAttempts != 1 {
		t.Fatalf("unexpected session after overwrite: %+v", got)
	}

	if err := store.Delete(ctx, actor); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, actor); !errors.Is(err, linksessionport.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	// Unknown actor.
	if _, err := store.Get(ctx, 999); !errors.Is(err, linksessionport.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
