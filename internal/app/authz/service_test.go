package authz

import (
	"context"
	"testing"
	"time"

	"github.com/ijara-kitoblar/library-bot/internal/adapters/memory/adminrepo"
	"github.com/ijara-kitoblar/library-bot/internal/adapters/memory/clock"
	memmemberrepo "github.com/ijara-kitoblar/library-bot/internal/adapters/memory/memberrepo"
	memmessenger "github.com/ijara-kitoblar/library-bot/internal/adapters/memory/messenger"
	"github.com/ijara-kitoblar/library-bot/internal/app/apperr"
	"github.com/ijara-kitoblar/library-bot/internal/domain"
	memberrepoport "github.com/ijara-kitoblar/library-bot/internal/ports/out/memberrepo"
)

var testStart = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

const superAccount = domain.ExternalAccountID(1000)

func bootstrapInput() BootstrapInput {
	return BootstrapInput{
		Account:     superAccount,
		Phone:       "+998900000001",
		GivenName:   "Super",
		FamilyName:  "Admin",
		BirthYear:   1980,
		Affiliation: "Library staff",
	}
}

type fixture struct {
	svc     *Service
	members memberrepoport.Repository
	chat    *memmessenger.Messenger
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	members := memmemberrepo.NewRepo()
	chat := memmessenger.NewMessenger()
	svc := NewService(adminrepo.NewRepo(), members, chat, clock.NewManualClock(testStart))
	return fixture{svc: svc, members: members, chat: chat}
}

func (f fixture) seedLinked(t *testing.T, phone string, account domain.ExternalAccountID) domain.Member {
	t.Helper()
	ctx := context.Background()
	m, err := f.members.Create(ctx, domain.Member{
		GivenName:   "Aziz",
		FamilyName:  "Karimov",
		Phone:       phone,
		BirthYear:   1995,
		Affiliation: "Tashkent State University",
		Plan:        domain.PlanFree,
		IsActive:    true,
		CreatedAt:   testStart,
		UpdatedAt:   testStart,
	})
	if err != nil {
		t.Fatalf("seed member: %v", err)
	}
	linked, err := f.members.Link(ctx, m.ID, account, testStart)
	if err != nil {
		t.Fatalf("seed link: %v", err)
	}
	return linked
}

func TestBootstrap(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("creates member and super admin", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		a, err := f.svc.Bootstrap(ctx, bootstrapInput())
		if err != nil {
			t.Fatalf("Bootstrap: %v", err)
		}
		if !a.IsSuper || a.AddedBy != nil {
			t.Fatalf("unexpected grant: %+v", a)
		}

		// The super-admin is a regular member of the registry.
		m, err := f.members.GetByExternalAccount(ctx, superAccount)
		if err != nil {
			t.Fatalf("member lookup: %v", err)
		}
		if m.ID != a.MemberID {
			t.Fatalf("grant points at %s, member is %s", a.MemberID, m.ID)
		}

		ok, err := f.svc.IsSuperAdmin(ctx, superAccount)
		if err != nil || !ok {
			t.Fatalf("IsSuperAdmin = %v, %v", ok, err)
		}
	})

	t.Run("resolves the platform display name", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.chat.SetDisplayName(superAccount, "Dilnoza (library)")

		a, err := f.svc.Bootstrap(ctx, bootstrapInput())
		if err != nil {
			t.Fatalf("Bootstrap: %v", err)
		}
		if a.DisplayName != "Dilnoza (library)" {
			t.Fatalf("DisplayName = %q", a.DisplayName)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		first, err := f.svc.Bootstrap(ctx, bootstrapInput())
		if err != nil {
			t.Fatalf("Bootstrap: %v", err)
		}
		second, err := f.svc.Bootstrap(ctx, bootstrapInput())
		if err != nil {
			t.Fatalf("second Bootstrap: %v", err)
		}
		if first.ID != second.ID {
			t.Fatalf("expected the same grant, got %d and %d", first.ID, second.ID)
		}
	})

	t.Run("links an existing unlinked member by phone", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		existing, err := f.members.Create(ctx, domain.Member{
			GivenName:   "Super",
			FamilyName:  "Admin",
			Phone:       "+998900000001",
			BirthYear:   1980,
			Affiliation: "Library staff",
			Plan:        domain.PlanFree,
			IsActive:    true,
			CreatedAt:   testStart,
			UpdatedAt:   testStart,
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}

		a, err := f.svc.Bootstrap(ctx, bootstrapInput())
		if err != nil {
			t.Fatalf("Bootstrap: %v", err)
		}
		if a.MemberID != existing.ID {
			t.Fatalf("expected grant for %s, got %s", existing.ID, a.MemberID)
		}
	})
}

func TestPromoteDemote(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("super admin promotes a linked member", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		if _, err := f.svc.Bootstrap(ctx, bootstrapInput()); err != nil {
			t.Fatalf("Bootstrap: %v", err)
		}
		m := f.seedLinked(t, "+998901234567", 42)

		a, err := f.svc.Promote(ctx, superAccount, string(m.ID))
		if err != nil {
			t.Fatalf("Promote: %v", err)
		}
		if a.IsSuper {
			t.Fatal("promoted admins are regular")
		}
		if a.AddedBy == nil || *a.AddedBy != superAccount {
			t.Fatalf("AddedBy = %+v", a.AddedBy)
		}

		ok, err := f.svc.IsAdmin(ctx, 42)
		if err != nil || !ok {
			t.Fatalf("IsAdmin = %v, %v", ok, err)
		}
	})

	t.Run("regular admins cannot promote", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		if _, err := f.svc.Bootstrap(ctx, bootstrapInput()); err != nil {
			t.Fatalf("Bootstrap: %v", err)
		}
		admin := f.seedLinked(t, "+998901234567", 42)
		if _, err := f.svc.Promote(ctx, superAccount, string(admin.ID)); err != nil {
			t.Fatalf("Promote: %v", err)
		}
		target := f.seedLinked(t, "+998901234568", 43)

		_, err := f.svc.Promote(ctx, 42, string(target.ID))
		if apperr.CodeOf(err) != "NOT_SUPER_ADMIN" || !apperr.IsKind(err, apperr.KindForbidden) {
			t.Fatalf("expected NOT_SUPER_ADMIN forbidden, got %v", err)
		}
	})

	t.Run("unlinked member cannot be promoted", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		if _, err := f.svc.Bootstrap(ctx, bootstrapInput()); err != nil {
			t.Fatalf("Bootstrap: %v", err)
		}
		m, err := f.members.Create(ctx, domain.Member{
			GivenName: "No", FamilyName: "Chat", Phone: "+998901234567",
			BirthYear: 1990, Affiliation: "Somewhere", Plan: domain.PlanFree,
			IsActive: true, CreatedAt: testStart, UpdatedAt: testStart,
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}

		_, err = f.svc.Promote(ctx, superAccount, string(m.ID))
		if apperr.CodeOf(err) != "MEMBER_NOT_LINKED" {
			t.Fatalf("expected MEMBER_NOT_LINKED, got %v", err)
		}
	})

	t.Run("double promotion conflicts", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		if _, err := f.svc.Bootstrap(ctx, bootstrapInput()); err != nil {
			t.Fatalf("Bootstrap: %v", err)
		}
		m := f.seedLinked(t, "+998901234567", 42)
		if _, err := f.svc.Promote(ctx, superAccount, string(m.ID)); err != nil {
			t.Fatalf("Promote: %v", err)
		}
		_, err := f.svc.Promote(ctx, superAccount, string(m.ID))
		if apperr.CodeOf(err) != "ALREADY_ADMIN" {
			t.Fatalf("expected ALREADY_ADMIN, got %v", err)
		}
	})

	t.Run("demote revokes the grant", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		if _, err := f.svc.Bootstrap(ctx, bootstrapInput()); err != nil {
			t.Fatalf("Bootstrap: %v", err)
		}
		m := f.seedLinked(t, "+998901234567", 42)
		if _, err := f.svc.Promote(ctx, superAccount, string(m.ID)); err != nil {
			t.Fatalf("Promote: %v", err)
		}

		if err := f.svc.Demote(ctx, superAccount, string(m.ID)); err != nil {
			t.Fatalf("Demote: %v", err)
		}
		ok, err := f.svc.IsAdmin(ctx, 42)
		if err != nil || ok {
			t.Fatalf("IsAdmin after demote = %v, %v", ok, err)
		}

		// Demoting again: no grant left.
		err = f.svc.Demote(ctx, superAccount, string(m.ID))
		if apperr.CodeOf(err) != "ADMIN_NOT_FOUND" {
			t.Fatalf("expected ADMIN_NOT_FOUND, got %v", err)
		}
	})

	t.Run("super admin cannot be demoted", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		super, err := f.svc.Bootstrap(ctx, bootstrapInput())
		if err != nil {
			t.Fatalf("Bootstrap: %v", err)
		}

		err = f.svc.Demote(ctx, superAccount, string(super.MemberID))
		if apperr.CodeOf(err) != "CANNOT_REMOVE_SUPER_ADMIN" {
			t.Fatalf("expected CANNOT_REMOVE_SUPER_ADMIN, got %v", err)
		}
	})
}

func TestListAndCount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.svc.Bootstrap(ctx, bootstrapInput()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	m := f.seedLinked(t, "+998901234567", 42)
	if _, err := f.svc.Promote(ctx, superAccount, string(m.ID)); err != nil {
		t.Fatalf("Promote: %v", err)
	}

	as, err := f.svc.ListAdmins(ctx)
	if err != nil {
		t.Fatalf("ListAdmins: %v", err)
	}
	if len(as) != 2 || !as[0].IsSuper {
		t.Fatalf("unexpected roster: %+v", as)
	}

	c, err := f.svc.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if c.Total != 2 || c.Super != 1 || c.Regular != 1 {
		t.Fatalf("unexpected count: %+v", c)
	}
}
