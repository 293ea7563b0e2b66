package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/ijara-kitoblar/library-bot/internal/adapters/memory/clock"
	memmemberrepo "github.com/ijara-kitoblar/library-bot/internal/adapters/memory/memberrepo"
	"github.com/ijara-kitoblar/library-bot/internal/app/apperr"
	"github.com/ijara-kitoblar/library-bot/internal/domain"
	memberrepoport "github.com/ijara-kitoblar/library-bot/internal/ports/out/memberrepo"
)

var testStart = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *Service
	members memberrepoport.Repository
	clk     *clock.ManualClock
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	clk := clock.NewManualClock(testStart)
	members := memmemberrepo.NewRepo()
	return fixture{
		svc:     NewService(members, DefaultCatalog(), clk),
		members: members,
		clk:     clk,
	}
}

func (f fixture) seedMember(t *testing.T, phone string) domain.Member {
	t.Helper()
	m, err := f.members.Create(context.Background(), domain.Member{
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
	return m
}

func TestSetPlan(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("paid plan gets catalog duration", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		m := f.seedMember(t, "+998901234567")

		got, err := f.svc.SetPlan(ctx, string(m.ID), "Money", 0)
		if err != nil {
			t.Fatalf("SetPlan: %v", err)
		}
		if got.Plan != domain.PlanMoney {
			t.Fatalf("plan = %s", got.Plan)
		}
		want := testStart.AddDate(0, 0, 30)
		if got.PlanExpiry == nil || !got.PlanExpiry.Equal(want) {
			t.Fatalf("expiry = %v, want %v", got.PlanExpiry, want)
		}
	})

	t.Run("explicit duration wins", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		m := f.seedMember(t, "+998901234567")

		got, err := f.svc.SetPlan(ctx, string(m.ID), "Premium", 7)
		if err != nil {
			t.Fatalf("SetPlan: %v", err)
		}
		want := testStart.AddDate(0, 0, 7)
		if got.PlanExpiry == nil || !got.PlanExpiry.Equal(want) {
			t.Fatalf("expiry = %v, want %v", got.PlanExpiry, want)
		}
	})

	t.Run("free clears the expiry", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		m := f.seedMember(t, "+998901234567")
		if _, err := f.svc.SetPlan(ctx, string(m.ID), "Money", 0); err != nil {
			t.Fatalf("SetPlan: %v", err)
		}

		got, err := f.svc.SetPlan(ctx, string(m.ID), "Free", 0)
		if err != nil {
			t.Fatalf("SetPlan free: %v", err)
		}
		if got.Plan != domain.PlanFree || got.PlanExpiry != nil {
			t.Fatalf("free must carry no expiry: %+v", got)
		}
	})

	t.Run("rejects unknown plan and member", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		m := f.seedMember(t, "+998901234567")

		if _, err := f.svc.SetPlan(ctx, string(m.ID), "Gold", 0); apperr.CodeOf(err) != "INVALID_PLAN" {
			t.Fatalf("expected INVALID_PLAN, got %v", err)
		}
		if _, err := f.svc.SetPlan(ctx, "ID0042", "Money", 0); apperr.CodeOf(err) != "MEMBER_NOT_FOUND" {
			t.Fatalf("expected MEMBER_NOT_FOUND, got %v", err)
		}
	})
}

func TestCurrentStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	m := f.seedMember(t, "+998901234567")

	st, err := f.svc.CurrentStatus(ctx, string(m.ID))
	if err != nil {
		t.Fatalf("CurrentStatus: %v", err)
	}
	if st.Plan != domain.PlanFree || st.Expiry != nil || st.DaysLeft != 0 || st.Expired {
		t.Fatalf("unexpected status: %+v", st)
	}

	if _, err := f.svc.SetPlan(ctx, string(m.ID), "Money", 30); err != nil {
		t.Fatalf("SetPlan: %v", err)
	}
	f.clk.Advance(25 * 24 * time.Hour)
	st, err = f.svc.CurrentStatus(ctx, string(m.ID))
	if err != nil {
		t.Fatalf("CurrentStatus: %v", err)
	}
	if st.DaysLeft != 5 || st.Expired {
		t.Fatalf("unexpected status: %+v", st)
	}

	f.clk.Advance(6 * 24 * time.Hour)
	st, err = f.svc.CurrentStatus(ctx, string(m.ID))
	if err != nil {
		t.Fatalf("CurrentStatus: %v", err)
	}
	if !st.Expired || st.DaysLeft != 0 {
		t.Fatalf("unexpected status after lapse: %+v", st)
	}
}

func TestChoosePlan(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("free applies immediately", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		m := f.seedMember(t, "+998901234567")
		if _, err := f.svc.SetPlan(ctx, string(m.ID), "Money", 0); err != nil {
			t.Fatalf("SetPlan: %v", err)
		}

		res, err := f.svc.ChoosePlan(ctx, string(m.ID), "Free")
		if err != nil {
			t.Fatalf("ChoosePlan: %v", err)
		}
		if !res.Applied || res.Member.Plan != domain.PlanFree {
			t.Fatalf("free choice must apply: %+v", res)
		}
	})

	t.Run("paid choice only returns the offer", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		m := f.seedMember(t, "+998901234567")

		res, err := f.svc.ChoosePlan(ctx, string(m.ID), "Premium")
		if err != nil {
			t.Fatalf("ChoosePlan: %v", err)
		}
		if res.Applied {
			t.Fatal("paid choice must not apply without approval")
		}
		if res.Offer == nil || res.Offer.PriceUZS != 100000 || res.Offer.DurationDays != 30 {
			t.Fatalf("unexpected offer: %+v", res.Offer)
		}

		// The member record is untouched until an admin approves.
		got, err := f.members.GetByID(ctx, m.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.Plan != domain.PlanFree || got.PlanExpiry != nil {
			t.Fatalf("member must stay on Free: %+v", got)
		}
	})
}

func TestExpiryQueries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	soon := f.seedMember(t, "+998901110001")
	if _, err := f.svc.SetPlan(ctx, string(soon.ID), "Money", 2); err != nil {
		t.Fatalf("SetPlan: %v", err)
	}
	later := f.seedMember(t, "+998901110002")
	if _, err := f.svc.SetPlan(ctx, string(later.ID), "Money", 20); err != nil {
		t.Fatalf("SetPlan: %v", err)
	}
	f.seedMember(t, "+998901110003")

	expiring, err := f.svc.ExpiringSoon(ctx, 3)
	if err != nil {
		t.Fatalf("ExpiringSoon: %v", err)
	}
	if len(expiring) != 1 || expiring[0].ID != soon.ID {
		t.Fatalf("expected only %s, got %+v", soon.ID, expiring)
	}

	expired, err := f.svc.ExpiredNow(ctx)
	if err != nil {
		t.Fatalf("ExpiredNow: %v", err)
	}
	if len(expired) != 0 {
		t.Fatalf("nothing should be expired yet: %+v", expired)
	}

	f.clk.Advance(3*24*time.Hour + time.Minute)
	expired, err = f.svc.ExpiredNow(ctx)
	if err != nil {
		t.Fatalf("ExpiredNow: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != soon.ID {
		t.Fatalf("expected only %s expired, got %+v", soon.ID, expired)
	}
}

func TestOffers(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	offers := f.svc.Offers()
	if len(offers) != 2 {
		t.Fatalf("expected 2 offers, got %d", len(offers))
	}
	if offers[0].Plan != domain.PlanMoney || offers[1].Plan != domain.PlanPremium {
		t.Fatalf("unexpected order: %+v", offers)
	}
	if offers[0].PriceUZS != 50000 || offers[1].PriceUZS != 100000 {
		t.Fatalf("unexpected prices: %+v", offers)
	}
}
