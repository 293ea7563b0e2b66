// Package subscription manages member plans and their expiry. Plan changes
// are privilege-agnostic here; front ends decide who may call what.
package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/ijara-kitoblar/library-bot/internal/app/apperr"
	"github.com/ijara-kitoblar/library-bot/internal/domain"
	clockport "github.com/ijara-kitoblar/library-bot/internal/ports/out/clock"
	"github.com/ijara-kitoblar/library-bot/internal/ports/out/memberrepo"
)

// Offer describes one purchasable plan.
type Offer struct {
	Plan         domain.Plan
	PriceUZS     int
	DurationDays int
	Features     []string
}

// Catalog maps paid plans to their offers. The free plan has no offer: it is
// the default, not a product.
type Catalog map[domain.Plan]Offer

// DefaultCatalog mirrors the published price list.
func DefaultCatalog() Catalog {
	return Catalog{
		domain.PlanMoney: {
			Plan:         domain.PlanMoney,
			PriceUZS:     50000,
			DurationDays: 30,
			Features:     []string{"borrow up to 5 books", "reservation priority"},
		},
		domain.PlanPremium: {
			Plan:         domain.PlanPremium,
			PriceUZS:     100000,
			DurationDays: 30,
			Features:     []string{"borrow up to 10 books", "reservation priority", "reading room access"},
		},
	}
}

type Service struct {
	members memberrepo.Repository
	catalog Catalog
	clk     clockport.Clock
}

func NewService(members memberrepo.Repository, catalog Catalog, clk clockport.Clock) *Service {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Service{members: members, catalog: catalog, clk: clk}
}

// Offers returns the purchasable plans in catalog price order.
func (s *Service) Offers() []Offer {
	out := make([]Offer, 0, len(s.catalog))
	for _, p := range domain.Plans() {
		if offer, ok := s.catalog[p]; ok {
			out = append(out, offer)
		}
	}
	return out
}

// SetPlan moves the member to the given plan. Free clears the expiry; a paid
// plan expires durationDays from now, falling back to the catalog duration
// when durationDays is zero.
func (s *Service) SetPlan(ctx context.Context, rawMemberID string, rawPlan string, durationDays int) (domain.Member, error) {
	plan, err := domain.ParsePlan(rawPlan)
	if err != nil {
		return domain.Member{}, apperr.Validation("INVALID_PLAN", err.Error(),
			map[string]any{"valid": domain.Plans()})
	}
	m, err := s.member(ctx, rawMemberID)
	if err != nil {
		return domain.Member{}, err
	}

	now := s.clk.Now()
	m.Plan = plan
	if plan.Paid() {
		days := durationDays
		if days <= 0 {
			days = s.catalog[plan].DurationDays
		}
		expiry := now.AddDate(0, 0, days)
		m.PlanExpiry = &expiry
	} else {
		m.PlanExpiry = nil
	}
	m.UpdatedAt = now

	if err := s.members.Update(ctx, m); err != nil {
		return domain.Member{}, apperr.Storage("update member", err)
	}
	return m, nil
}

// Status is the member-facing view of a subscription.
type Status struct {
	Plan     domain.Plan
	Expiry   *time.Time
	DaysLeft int
	Expired  bool
}

// CurrentStatus reports the member's plan, expiry and remaining days.
func (s *Service) CurrentStatus(ctx context.Context, rawMemberID string) (Status, error) {
	m, err := s.member(ctx, rawMemberID)
	if err != nil {
		return Status{}, err
	}
	now := s.clk.Now()
	return Status{
		Plan:     m.Plan,
		Expiry:   m.PlanExpiry,
		DaysLeft: m.DaysLeft(now),
		Expired:  m.IsExpired(now),
	}, nil
}

// ChooseResult is the outcome of a member-initiated plan choice.
type ChooseResult struct {
	Member domain.Member

	// Applied is true when the plan took effect immediately. A paid choice
	// is never applied here: it waits for an admin approval after payment.
	Applied bool
	Offer   *Offer
}

// ChoosePlan handles a member picking a plan themselves. Free downgrades
// apply immediately; a paid choice only returns the offer so the front end
// can show payment instructions, leaving the member's record untouched until
// an admin approves the payment.
func (s *Service) ChoosePlan(ctx context.Context, rawMemberID string, rawPlan string) (ChooseResult, error) {
	plan, err := domain.ParsePlan(rawPlan)
	if err != nil {
		return ChooseResult{}, apperr.Validation("INVALID_PLAN", err.Error(),
			map[string]any{"valid": domain.Plans()})
	}
	if !plan.Paid() {
		m, err := s.SetPlan(ctx, rawMemberID, string(plan), 0)
		if err != nil {
			return ChooseResult{}, err
		}
		return ChooseResult{Member: m, Applied: true}, nil
	}

	m, err := s.member(ctx, rawMemberID)
	if err != nil {
		return ChooseResult{}, err
	}
	offer := s.catalog[plan]
	return ChooseResult{Member: m, Applied: false, Offer: &offer}, nil
}

// ExpiringSoon returns active paid members whose plan expires within the
// next `days` days but has not expired yet.
func (s *Service) ExpiringSoon(ctx context.Context, days int) ([]domain.Member, error) {
	now := s.clk.Now()
	ms, err := s.members.ExpiringBetween(ctx, now, now.AddDate(0, 0, days))
	if err != nil {
		return nil, apperr.Storage("expiring members", err)
	}
	return ms, nil
}

// ExpiredNow returns active paid members whose expiry has already passed.
func (s *Service) ExpiredNow(ctx context.Context) ([]domain.Member, error) {
	ms, err := s.members.ExpiredBefore(ctx, s.clk.Now())
	if err != nil {
		return nil, apperr.Storage("expired members", err)
	}
	return ms, nil
}

func (s *Service) member(ctx context.Context, raw string) (domain.Member, error) {
	id, err := domain.ParseMemberID(raw)
	if err != nil {
		return domain.Member{}, apperr.Validation("INVALID_MEMBER_ID", err.Error(), nil)
	}
	m, err := s.members.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, memberrepo.ErrNotFound) {
			return domain.Member{}, apperr.NotFound("MEMBER_NOT_FOUND", "no member with id "+string(id))
		}
		return domain.Member{}, apperr.Storage("get member", err)
	}
	return m, nil
}
