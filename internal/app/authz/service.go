// Package authz owns the two-tier admin hierarchy: one bootstrap super-admin
// plus regular admins granted and revoked by the super-admin. Privileges
// attach to messaging accounts, so every admin must be a linked member.
package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/ijara-kitoblar/library-bot/internal/app/apperr"
	"github.com/ijara-kitoblar/library-bot/internal/domain"
	"github.com/ijara-kitoblar/library-bot/internal/ports/out/adminrepo"
	clockport "github.com/ijara-kitoblar/library-bot/internal/ports/out/clock"
	"github.com/ijara-kitoblar/library-bot/internal/ports/out/memberrepo"
	"github.com/ijara-kitoblar/library-bot/internal/ports/out/messenger"
)

type Service struct {
	admins  adminrepo.Repository
	members memberrepo.Repository
	chat    messenger.Messenger
	clk     clockport.Clock
}

func NewService(admins adminrepo.Repository, members memberrepo.Repository, chat messenger.Messenger, clk clockport.Clock) *Service {
	return &Service{admins: admins, members: members, chat: chat, clk: clk}
}

// BootstrapInput seeds the super-admin from deployment configuration.
type BootstrapInput struct {
	Account     domain.ExternalAccountID
	Phone       string
	GivenName   string
	FamilyName  string
	BirthYear   int
	Affiliation string
}

// Bootstrap ensures the configured super-admin exists. It is idempotent and
// safe to run on every startup: an existing active super-admin short-circuits
// it. When the configured phone matches no member, a member record is created
// and linked so the super-admin is a regular citizen of the registry.
func (s *Service) Bootstrap(ctx context.Context, in BootstrapInput) (domain.Admin, error) {
	if existing, err := s.admins.GetSuper(ctx); err == nil {
		return existing, nil
	} else if !errors.Is(err, adminrepo.ErrNotFound) {
		return domain.Admin{}, apperr.Storage("get super admin", err)
	}

	m, err := s.bootstrapMember(ctx, in)
	if err != nil {
		return domain.Admin{}, err
	}

	// The platform display name is more recognizable in the admin roster
	// than the registry name; fall back to the latter when the transport
	// cannot resolve one.
	name := m.FullName()
	if resolved, rerr := s.chat.DisplayName(ctx, in.Account); rerr == nil && resolved != "" {
		name = resolved
	}

	a := domain.Admin{
		ExternalAccount: in.Account,
		MemberID:        m.ID,
		DisplayName:     name,
		IsSuper:         true,
		AddedBy:         nil,
		IsActive:        true,
		AddedAt:         s.clk.Now(),
	}
	created, err := s.admins.Create(ctx, a)
	if err != nil {
		if errors.Is(err, adminrepo.ErrSuperExists) {
			// Lost a startup race with another instance; the winner's grant
			// is as good as ours.
			if existing, gerr := s.admins.GetSuper(ctx); gerr == nil {
				return existing, nil
			}
		}
		return domain.Admin{}, apperr.Storage("create super admin", err)
	}
	return created, nil
}

func (s *Service) bootstrapMember(ctx context.Context, in BootstrapInput) (domain.Member, error) {
	if m, err := s.members.GetByExternalAccount(ctx, in.Account); err == nil {
		return m, nil
	} else if !errors.Is(err, memberrepo.ErrNotFound) {
		return domain.Member{}, apperr.Storage("get member", err)
	}

	phone, err := domain.CanonicalPhone(in.Phone)
	if err != nil {
		return domain.Member{}, apperr.Validation("INVALID_PHONE",
			fmt.Sprintf("super-admin phone: %v", err), nil)
	}
	now := s.clk.Now()

	if m, err := s.members.GetByPhone(ctx, phone); err == nil {
		if m.IsLinked() {
			return domain.Member{}, apperr.Conflict("EXTERNAL_ACCOUNT_TAKEN",
				"super-admin phone belongs to a member linked elsewhere", nil)
		}
		linked, lerr := s.members.Link(ctx, m.ID, in.Account, now)
		if lerr != nil {
			return domain.Member{}, apperr.Storage("link super admin", lerr)
		}
		return linked, nil
	} else if !errors.Is(err, memberrepo.ErrNotFound) {
		return domain.Member{}, apperr.Storage("get member", err)
	}

	account := in.Account
	created, err := s.members.Create(ctx, domain.Member{
		ExternalAccount: &account,
		GivenName:       in.GivenName,
		FamilyName:      in.FamilyName,
		Phone:           phone,
		BirthYear:       in.BirthYear,
		Affiliation:     in.Affiliation,
		Plan:            domain.PlanFree,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return domain.Member{}, apperr.Storage("create super admin member", err)
	}
	return created, nil
}

// IsAdmin reports whether the account carries an active grant.
func (s *Service) IsAdmin(ctx context.Context, account domain.ExternalAccountID) (bool, error) {
	_, err := s.admins.GetByExternalAccount(ctx, account)
	if err != nil {
		if errors.Is(err, adminrepo.ErrNotFound) {
			return false, nil
		}
		return false, apperr.Storage("get admin", err)
	}
	return true, nil
}

// IsSuperAdmin reports whether the account is the active super-admin.
func (s *Service) IsSuperAdmin(ctx context.Context, account domain.ExternalAccountID) (bool, error) {
	a, err := s.admins.GetByExternalAccount(ctx, account)
	if err != nil {
		if errors.Is(err, adminrepo.ErrNotFound) {
			return false, nil
		}
		return false, apperr.Storage("get admin", err)
	}
	return a.IsSuper, nil
}

// Promote grants admin rights to the member with the given id. Only the
// super-admin may promote; the target must be a linked member without an
// existing grant.
func (s *Service) Promote(ctx context.Context, actor domain.ExternalAccountID, rawMemberID string) (domain.Admin, error) {
	if err := s.requireSuper(ctx, actor); err != nil {
		return domain.Admin{}, err
	}

	id, err := domain.ParseMemberID(rawMemberID)
	if err != nil {
		return domain.Admin{}, apperr.Validation("INVALID_MEMBER_ID", err.Error(), nil)
	}
	m, err := s.members.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, memberrepo.ErrNotFound) {
			return domain.Admin{}, apperr.NotFound("MEMBER_NOT_FOUND", "no member with id "+string(id))
		}
		return domain.Admin{}, apperr.Storage("get member", err)
	}
	if !m.IsLinked() {
		return domain.Admin{}, apperr.Conflict("MEMBER_NOT_LINKED",
			"member has no linked account; the bot cannot reach them", nil)
	}
	if _, err := s.admins.GetByMemberID(ctx, id); err == nil {
		return domain.Admin{}, apperr.Conflict("ALREADY_ADMIN", "member is already an admin", nil)
	} else if !errors.Is(err, adminrepo.ErrNotFound) {
		return domain.Admin{}, apperr.Storage("get admin", err)
	}

	a := domain.Admin{
		ExternalAccount: *m.ExternalAccount,
		MemberID:        m.ID,
		DisplayName:     m.FullName(),
		IsSuper:         false,
		AddedBy:         &actor,
		IsActive:        true,
		AddedAt:         s.clk.Now(),
	}
	created, err := s.admins.Create(ctx, a)
	if err != nil {
		if errors.Is(err, adminrepo.ErrAccountTaken) {
			return domain.Admin{}, apperr.Conflict("ALREADY_ADMIN", "member is already an admin", nil)
		}
		return domain.Admin{}, apperr.Storage("create admin", err)
	}
	return created, nil
}

// Demote revokes a regular admin's grant. The super-admin cannot be demoted,
// by anyone, ever.
func (s *Service) Demote(ctx context.Context, actor domain.ExternalAccountID, rawMemberID string) error {
	if err := s.requireSuper(ctx, actor); err != nil {
		return err
	}

	id, err := domain.ParseMemberID(rawMemberID)
	if err != nil {
		return apperr.Validation("INVALID_MEMBER_ID", err.Error(), nil)
	}
	a, err := s.admins.GetByMemberID(ctx, id)
	if err != nil {
		if errors.Is(err, adminrepo.ErrNotFound) {
			return apperr.NotFound("ADMIN_NOT_FOUND", "member is not an admin")
		}
		return apperr.Storage("get admin", err)
	}
	if a.IsSuper {
		return apperr.Forbidden("CANNOT_REMOVE_SUPER_ADMIN", "the super-admin cannot be removed")
	}

	a.IsActive = false
	if err := s.admins.Update(ctx, a); err != nil {
		return apperr.Storage("update admin", err)
	}
	return nil
}

// ListAdmins returns the active roster, super-admin first.
func (s *Service) ListAdmins(ctx context.Context) ([]domain.Admin, error) {
	as, err := s.admins.List(ctx)
	if err != nil {
		return nil, apperr.Storage("list admins", err)
	}
	return as, nil
}

func (s *Service) Count(ctx context.Context) (adminrepo.Count, error) {
	c, err := s.admins.Count(ctx)
	if err != nil {
		return adminrepo.Count{}, apperr.Storage("count admins", err)
	}
	return c, nil
}

func (s *Service) requireSuper(ctx context.Context, actor domain.ExternalAccountID) error {
	super, err := s.IsSuperAdmin(ctx, actor)
	if err != nil {
		return err
	}
	if !super {
		return apperr.Forbidden("NOT_SUPER_ADMIN", "only the super-admin may manage admins")
	}
	return nil
}
