package registry

import (
	"context"
	"errors"

	"github.com/ijara-kitoblar/library-bot/internal/app/apperr"
	"github.com/ijara-kitoblar/library-bot/internal/domain"
	clockport "github.com/ijara-kitoblar/library-bot/internal/ports/out/clock"
	"github.com/ijara-kitoblar/library-bot/internal/ports/out/memberrepo"
)

const (
	minNameLen        = 2
	minAffiliationLen = 2
	minBirthYear      = 1940
	// birthYearHeadroom keeps the youngest accepted patron at five years old.
	birthYearHeadroom = 5
)

// Service is the identity registry: it issues member identities and owns all
// member lookups.
type Service struct {
	members memberrepo.Repository
	clk     clockport.Clock

	// SearchLimit bounds search result size.
	SearchLimit int
}

func NewService(members memberrepo.Repository, clk clockport.Clock) *Service {
	return &Service{members: members, clk: clk, SearchLimit: 50}
}

// Register validates and persists a new member on the Free plan. The public
// member id is assigned by the repository so the sequence derivation and the
// insert are one atomic unit.
func (s *Service) Register(ctx context.Context, in RegisterInput) (domain.Member, error) {
	now := s.clk.Now()

	given := domain.NormalizeHumanName(in.GivenName)
	if len([]rune(given)) < minNameLen {
		return domain.Member{}, apperr.Validation("INVALID_NAME", "given name too short",
			map[string]any{"givenName": "must be at least 2 characters"})
	}
	family := domain.NormalizeHumanName(in.FamilyName)
	if len([]rune(family)) < minNameLen {
		return domain.Member{}, apperr.Validation("INVALID_NAME", "family name too short",
			map[string]any{"familyName": "must be at least 2 characters"})
	}
	phone, err := domain.CanonicalPhone(in.Phone)
	if err != nil {
		return domain.Member{}, apperr.Validation("INVALID_PHONE", "invalid phone number",
			map[string]any{"phone": err.Error()})
	}
	maxYear := now.Year() - birthYearHeadroom
	if in.BirthYear < minBirthYear || in.BirthYear > maxYear {
		return domain.Member{}, apperr.Validation("INVALID_BIRTH_YEAR", "birth year out of range",
			map[string]any{"birthYear": map[string]int{"min": minBirthYear, "max": maxYear}})
	}
	affiliation := domain.NormalizeHumanName(in.Affiliation)
	if len([]rune(affiliation)) < minAffiliationLen {
		return domain.Member{}, apperr.Validation("INVALID_AFFILIATION", "affiliation too short",
			map[string]any{"affiliation": "must be at least 2 characters"})
	}

	m := domain.Member{
		ExternalAccount: in.ExternalAccount,
		GivenName:       given,
		FamilyName:      family,
		Phone:           phone,
		BirthYear:       in.BirthYear,
		Affiliation:     affiliation,
		Plan:            domain.PlanFree,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	created, err := s.members.Create(ctx, m)
	if err != nil {
		switch {
		case errors.Is(err, memberrepo.ErrPhoneTaken):
			return domain.Member{}, apperr.Conflict("DUPLICATE_PHONE",
				"this phone number is already registered", map[string]any{"phone": phone})
		case errors.Is(err, memberrepo.ErrAccountTaken):
			return domain.Member{}, apperr.Conflict("DUPLICATE_EXTERNAL_ACCOUNT",
				"this messaging account is already registered", nil)
		default:
			return domain.Member{}, apperr.Storage("create member", err)
		}
	}
	return created, nil
}

func (s *Service) LookupByMemberID(ctx context.Context, raw string) (domain.Member, error) {
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

func (s *Service) LookupByExternalAccount(ctx context.Context, account domain.ExternalAccountID) (domain.Member, error) {
	m, err := s.members.GetByExternalAccount(ctx, account)
	if err != nil {
		if errors.Is(err, memberrepo.ErrNotFound) {
			return domain.Member{}, apperr.NotFound("MEMBER_NOT_FOUND", "no member for this account")
		}
		return domain.Member{}, apperr.Storage("get member", err)
	}
	return m, nil
}

func (s *Service) LookupByPhone(ctx context.Context, rawPhone string) (domain.Member, error) {
	phone, err := domain.CanonicalPhone(rawPhone)
	if err != nil {
		return domain.Member{}, apperr.Validation("INVALID_PHONE", "invalid phone number",
			map[string]any{"phone": err.Error()})
	}
	m, err := s.members.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, memberrepo.ErrNotFound) {
			return domain.Member{}, apperr.NotFound("MEMBER_NOT_FOUND", "no member with this phone")
		}
		return domain.Member{}, apperr.Storage("get member", err)
	}
	return m, nil
}

// Search matches the query as a substring over id, names and phone.
func (s *Service) Search(ctx context.Context, query string) ([]domain.Member, error) {
	ms, err := s.members.Search(ctx, query, s.SearchLimit)
	if err != nil {
		return nil, apperr.Storage("search members", err)
	}
	return ms, nil
}

func (s *Service) List(ctx context.Context, includeInactive bool) ([]domain.Member, error) {
	ms, err := s.members.List(ctx, includeInactive)
	if err != nil {
		return nil, apperr.Storage("list members", err)
	}
	return ms, nil
}

// Deactivate soft-deletes a member. Members are never hard-deleted.
func (s *Service) Deactivate(ctx context.Context, raw string) (domain.Member, error) {
	return s.setActive(ctx, raw, false)
}

// Activate reverses a soft delete.
func (s *Service) Activate(ctx context.Context, raw string) (domain.Member, error) {
	return s.setActive(ctx, raw, true)
}

func (s *Service) setActive(ctx context.Context, raw string, active bool) (domain.Member, error) {
	m, err := s.LookupByMemberID(ctx, raw)
	if err != nil {
		return domain.Member{}, err
	}
	if m.IsActive == active {
		return m, nil
	}
	m.IsActive = active
	m.UpdatedAt = s.clk.Now()
	if err := s.members.Update(ctx, m); err != nil {
		return domain.Member{}, apperr.Storage("update member", err)
	}
	return m, nil
}

// UpdateProfile applies an admin correction to member data. Fields are
// re-validated the same way registration validates them.
func (s *Service) UpdateProfile(ctx context.Context, raw string, patch ProfilePatch) (domain.Member, error) {
	m, err := s.LookupByMemberID(ctx, raw)
	if err != nil {
		return domain.Member{}, err
	}
	now := s.clk.Now()

	if patch.GivenName.IsSpecified() {
		given := domain.NormalizeHumanName(patch.GivenName.Value())
		if patch.GivenName.IsNull() || len([]rune(given)) < minNameLen {
			return domain.Member{}, apperr.Validation("INVALID_NAME", "given name too short",
				map[string]any{"givenName": "must be at least 2 characters"})
		}
		m.GivenName = given
	}
	if patch.FamilyName.IsSpecified() {
		family := domain.NormalizeHumanName(patch.FamilyName.Value())
		if patch.FamilyName.IsNull() || len([]rune(family)) < minNameLen {
			return domain.Member{}, apperr.Validation("INVALID_NAME", "family name too short",
				map[string]any{"familyName": "must be at least 2 characters"})
		}
		m.FamilyName = family
	}
	if patch.Phone.IsSpecified() {
		if patch.Phone.IsNull() {
			return domain.Member{}, apperr.Validation("INVALID_PHONE", "phone cannot be null", nil)
		}
		phone, err := domain.CanonicalPhone(patch.Phone.Value())
		if err != nil {
			return domain.Member{}, apperr.Validation("INVALID_PHONE", "invalid phone number",
				map[string]any{"phone": err.Error()})
		}
		m.Phone = phone
	}
	if patch.BirthYear.IsSpecified() {
		maxYear := now.Year() - birthYearHeadroom
		y := patch.BirthYear.Value()
		if patch.BirthYear.IsNull() || y < minBirthYear || y > maxYear {
			return domain.Member{}, apperr.Validation("INVALID_BIRTH_YEAR", "birth year out of range",
				map[string]any{"birthYear": map[string]int{"min": minBirthYear, "max": maxYear}})
		}
		m.BirthYear = y
	}
	if patch.Affiliation.IsSpecified() {
		affiliation := domain.NormalizeHumanName(patch.Affiliation.Value())
		if patch.Affiliation.IsNull() || len([]rune(affiliation)) < minAffiliationLen {
			return domain.Member{}, apperr.Validation("INVALID_AFFILIATION", "affiliation too short",
				map[string]any{"affiliation": "must be at least 2 characters"})
		}
		m.Affiliation = affiliation
	}

	m.UpdatedAt = now
	if err := s.members.Update(ctx, m); err != nil {
		if errors.Is(err, memberrepo.ErrPhoneTaken) {
			return domain.Member{}, apperr.Conflict("DUPLICATE_PHONE",
				"this phone number is already registered", map[string]any{"phone": m.Phone})
		}
		return domain.Member{}, apperr.Storage("update member", err)
	}
	return m, nil
}

// Statistics is the aggregate read-only view for the admin panel and the
// dashboard; it carries no invariant-bearing logic.
func (s *Service) Statistics(ctx context.Context) (memberrepo.Stats, error) {
	st, err := s.members.Statistics(ctx, s.clk.Now())
	if err != nil {
		return memberrepo.Stats{}, apperr.Storage("member statistics", err)
	}
	return st, nil
}
