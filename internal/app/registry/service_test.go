package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/ijara-kitoblar/library-bot/internal/adapters/memory/clock"
	memmemberrepo "github.com/ijara-kitoblar/library-bot/internal/adapters/memory/memberrepo"
	"github.com/ijara-kitoblar/library-bot/internal/app/apperr"
	"github.com/ijara-kitoblar/library-bot/internal/domain"
)

var testStart = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestService() (*Service, *clock.ManualClock) {
	clk := clock.NewManualClock(testStart)
	return NewService(memmemberrepo.NewRepo(), clk), clk
}

func validInput(phone string) RegisterInput {
	return RegisterInput{
		GivenName:   "Aziz",
		FamilyName:  "Karimov",
		Phone:       phone,
		BirthYear:   1995,
		Affiliation: "Tashkent State University",
	}
}

func TestRegister(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("assigns sequential ids and free plan", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService()

		first, err := svc.Register(ctx, validInput("+998901234567"))
		if err != nil {
			t.Fatalf("Register: %v", err)
		}
		second, err := svc.Register(ctx, validInput("+998901234568"))
		if err != nil {
			t.Fatalf("Register: %v", err)
		}
		if first.ID != "ID0001" || second.ID != "ID0002" {
			t.Fatalf("expected ID0001/ID0002, got %s/%s", first.ID, second.ID)
		}
		if first.Plan != domain.PlanFree || first.PlanExpiry != nil {
			t.Fatalf("new members start on Free without expiry, got %s %v", first.Plan, first.PlanExpiry)
		}
		if !first.IsActive {
			t.Fatal("new members start active")
		}
	})

	t.Run("canonicalizes phone and names", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService()

		in := validInput("90 123-45-67")
		in.GivenName = "  Aziz   "
		in.Affiliation = "  Tashkent   State  "
		m, err := svc.Register(ctx, in)
		if err != nil {
			t.Fatalf("Register: %v", err)
		}
		if m.Phone != "+998901234567" {
			t.Fatalf("phone = %q, want canonical form", m.Phone)
		}
		if m.GivenName != "Aziz" || m.Affiliation != "Tashkent State" {
			t.Fatalf("names not normalized: %q %q", m.GivenName, m.Affiliation)
		}
	})

	t.Run("validation failures", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService()

		cases := []struct {
			name   string
			mutate func(*RegisterInput)
			code   string
		}{
			{"short given name", func(in *RegisterInput) { in.GivenName = "A" }, "INVALID_NAME"},
			{"short family name", func(in *RegisterInput) { in.FamilyName = " B " }, "INVALID_NAME"},
			{"bad phone", func(in *RegisterInput) { in.Phone = "12ab" }, "INVALID_PHONE"},
			{"birth year too old", func(in *RegisterInput) { in.BirthYear = 1939 }, "INVALID_BIRTH_YEAR"},
			{"birth year too young", func(in *RegisterInput) { in.BirthYear = testStart.Year() - 4 }, "INVALID_BIRTH_YEAR"},
			{"short affiliation", func(in *RegisterInput) { in.Affiliation = "X" }, "INVALID_AFFILIATION"},
		}
		for _, tc := range cases {
			in := validInput("+998901234567")
			tc.mutate(&in)
			_, err := svc.Register(ctx, in)
			if apperr.CodeOf(err) != tc.code {
				t.Errorf("%s: expected %s, got %v", tc.name, tc.code, err)
			}
			if !apperr.IsKind(err, apperr.KindValidation) {
				t.Errorf("%s: expected validation kind, got %v", tc.name, err)
			}
		}
	})

	t.Run("boundary birth years accepted", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService()

		oldest := validInput("+998901110001")
		oldest.BirthYear = 1940
		if _, err := svc.Register(ctx, oldest); err != nil {
			t.Fatalf("1940 must be accepted: %v", err)
		}
		youngest := validInput("+998901110002")
		youngest.BirthYear = testStart.Year() - 5
		if _, err := svc.Register(ctx, youngest); err != nil {
			t.Fatalf("year-5 must be accepted: %v", err)
		}
	})

	t.Run("duplicate phone", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService()

		if _, err := svc.Register(ctx, validInput("+998901234567")); err != nil {
			t.Fatalf("Register: %v", err)
		}
		// Same number, different formatting.
		_, err := svc.Register(ctx, validInput("90 123 45 67"))
		if apperr.CodeOf(err) != "DUPLICATE_PHONE" || !apperr.IsKind(err, apperr.KindConflict) {
			t.Fatalf("expected DUPLICATE_PHONE conflict, got %v", err)
		}
	})

	t.Run("duplicate external account", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService()

		acct := domain.ExternalAccountID(42)
		in := validInput("+998901234567")
		in.ExternalAccount = &acct
		if _, err := svc.Register(ctx, in); err != nil {
			t.Fatalf("Register: %v", err)
		}
		in2 := validInput("+998901234568")
		in2.ExternalAccount = &acct
		_, err := svc.Register(ctx, in2)
		if apperr.CodeOf(err) != "DUPLICATE_EXTERNAL_ACCOUNT" {
			t.Fatalf("expected DUPLICATE_EXTERNAL_ACCOUNT, got %v", err)
		}
	})
}

func TestRegister_ConcurrentIDsDistinct(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService()

	const n = 20
	ids := make(chan domain.MemberID, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := svc.Register(ctx, validInput(fmt.Sprintf("+9989011100%02d", i)))
			if err != nil {
				t.Errorf("Register %d: %v", i, err)
				return
			}
			ids <- m.ID
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[domain.MemberID]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate member id %s", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d distinct ids, got %d", n, len(seen))
	}
}

func TestLookups(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService()

	m, err := svc.Register(ctx, validInput("+998901234567"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if got, err := svc.LookupByMemberID(ctx, "  id0001 "); err != nil || got.ID != m.ID {
		t.Fatalf("LookupByMemberID: %v %v", got.ID, err)
	}
	if _, err := svc.LookupByMemberID(ctx, "bogus"); apperr.CodeOf(err) != "INVALID_MEMBER_ID" {
		t.Fatalf("expected INVALID_MEMBER_ID, got %v", err)
	}
	if _, err := svc.LookupByMemberID(ctx, "ID0042"); apperr.CodeOf(err) != "MEMBER_NOT_FOUND" {
		t.Fatalf("expected MEMBER_NOT_FOUND, got %v", err)
	}
	if got, err := svc.LookupByPhone(ctx, "90 123 45 67"); err != nil || got.ID != m.ID {
		t.Fatalf("LookupByPhone: %v %v", got.ID, err)
	}
	if _, err := svc.LookupByExternalAccount(ctx, 42); apperr.CodeOf(err) != "MEMBER_NOT_FOUND" {
		t.Fatalf("expected MEMBER_NOT_FOUND, got %v", err)
	}
}

func TestActivateDeactivate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, clk := newTestService()

	m, err := svc.Register(ctx, validInput("+998901234567"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	clk.Advance(time.Hour)
	got, err := svc.Deactivate(ctx, string(m.ID))
	if err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if got.IsActive {
		t.Fatal("expected inactive")
	}
	if !got.UpdatedAt.Equal(testStart.Add(time.Hour)) {
		t.Fatalf("UpdatedAt = %v", got.UpdatedAt)
	}

	// The identity survives: deactivated members stay resolvable.
	if _, err := svc.LookupByMemberID(ctx, string(m.ID)); err != nil {
		t.Fatalf("deactivated member must stay resolvable: %v", err)
	}

	got, err = svc.Activate(ctx, string(m.ID))
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if !got.IsActive {
		t.Fatal("expected active again")
	}
}

func TestUpdateProfile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("partial patch", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService()
		m, err := svc.Register(ctx, validInput("+998901234567"))
		if err != nil {
			t.Fatalf("Register: %v", err)
		}

		got, err := svc.UpdateProfile(ctx, string(m.ID), ProfilePatch{
			GivenName: Some("Bobur"),
			Phone:     Some("90 999 88 77"),
		})
		if err != nil {
			t.Fatalf("UpdateProfile: %v", err)
		}
		if got.GivenName != "Bobur" || got.Phone != "+998909998877" {
			t.Fatalf("unexpected result: %+v", got)
		}
		// Untouched fields survive.
		if got.FamilyName != "Karimov" || got.BirthYear != 1995 {
			t.Fatalf("unspecified fields must not change: %+v", got)
		}
	})

	t.Run("null is rejected", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService()
		m, err := svc.Register(ctx, validInput("+998901234567"))
		if err != nil {
			t.Fatalf("Register: %v", err)
		}
		_, err = svc.UpdateProfile(ctx, string(m.ID), ProfilePatch{Phone: Null[string]()})
		if !apperr.IsKind(err, apperr.KindValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("phone conflict", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService()
		if _, err := svc.Register(ctx, validInput("+998901234567")); err != nil {
			t.Fatalf("Register: %v", err)
		}
		b, err := svc.Register(ctx, validInput("+998901234568"))
		if err != nil {
			t.Fatalf("Register: %v", err)
		}
		_, err = svc.UpdateProfile(ctx, string(b.ID), ProfilePatch{Phone: Some("+998901234567")})
		if apperr.CodeOf(err) != "DUPLICATE_PHONE" {
			t.Fatalf("expected DUPLICATE_PHONE, got %v", err)
		}
	})

	t.Run("re-validates like registration", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService()
		m, err := svc.Register(ctx, validInput("+998901234567"))
		if err != nil {
			t.Fatalf("Register: %v", err)
		}
		_, err = svc.UpdateProfile(ctx, string(m.ID), ProfilePatch{BirthYear: Some(1930)})
		if apperr.CodeOf(err) != "INVALID_BIRTH_YEAR" {
			t.Fatalf("expected INVALID_BIRTH_YEAR, got %v", err)
		}
	})
}

func TestSearchAndStatistics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService()

	// 3 Free, 2 Money, 1 Premium.
	plans := []domain.Plan{
		domain.PlanFree, domain.PlanFree, domain.PlanFree,
		domain.PlanMoney, domain.PlanMoney, domain.PlanPremium,
	}
	repo := memmemberrepo.NewRepo()
	svc = NewService(repo, clock.NewManualClock(testStart))
	for i, plan := range plans {
		in := validInput(fmt.Sprintf("+99890111000%d", i))
		in.GivenName = fmt.Sprintf("Member%d", i)
		in.BirthYear = 1990
		m, err := svc.Register(ctx, in)
		if err != nil {
			t.Fatalf("Register: %v", err)
		}
		if plan != domain.PlanFree {
			got, err := repo.GetByID(ctx, m.ID)
			if err != nil {
				t.Fatalf("GetByID: %v", err)
			}
			expiry := testStart.AddDate(0, 0, 30)
			got.Plan = plan
			got.PlanExpiry = &expiry
			if err := repo.Update(ctx, got); err != nil {
				t.Fatalf("Update: %v", err)
			}
		}
	}

	st, err := svc.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if st.Total != 6 || st.Free != 3 || st.Money != 2 || st.Premium != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if st.AverageAge != 35.0 {
		t.Fatalf("average age = %v, want 35.0", st.AverageAge)
	}

	ms, err := svc.Search(ctx, "member3")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(ms) != 1 || ms[0].GivenName != "Member3" {
		t.Fatalf("unexpected search result: %+v", ms)
	}
}

func TestRegister_PropertyAllValidInputsGetDistinctIDs(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		svc, _ := newTestService()

		n := rapid.IntRange(1, 15).Draw(t, "n")
		seen := make(map[domain.MemberID]bool, n)
		for i := 0; i < n; i++ {
			in := validInput(fmt.Sprintf("+998911%06d", i))
			in.BirthYear = rapid.IntRange(1940, testStart.Year()-5).Draw(t, "birthYear")
			m, err := svc.Register(ctx, in)
			if err != nil {
				t.Fatalf("Register: %v", err)
			}
			if seen[m.ID] {
				t.Fatalf("duplicate id %s", m.ID)
			}
			seen[m.ID] = true
			if want := domain.FormatMemberID(i + 1); m.ID != want {
				t.Fatalf("id = %s, want %s", m.ID, want)
			}
		}
	})
}

func TestLookupErrorsAreTyped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService()

	_, err := svc.LookupByMemberID(ctx, "ID0001")
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		t.Fatalf("expected *apperr.Error, got %T", err)
	}
	if ae.Kind != apperr.KindNotFound {
		t.Fatalf("expected not-found kind, got %v", ae.Kind)
	}
}
