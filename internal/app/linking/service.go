// Package linking implements the verification protocol that attaches a
// messaging account to an existing member identity. The protocol is an
// explicit state machine persisted per requesting actor:
//
//	AwaitingMemberID -> AwaitingPhoneConfirmation -> linked (terminal)
//
// with cancel available from any non-terminal state. Sessions expire after a
// bounded inactivity window so abandoned state cannot leak.
package linking

import (
	"context"
	"errors"
	"time"

	"github.com/ijara-kitoblar/library-bot/internal/app/apperr"
	"github.com/ijara-kitoblar/library-bot/internal/domain"
	clockport "github.com/ijara-kitoblar/library-bot/internal/ports/out/clock"
	"github.com/ijara-kitoblar/library-bot/internal/ports/out/linksession"
	"github.com/ijara-kitoblar/library-bot/internal/ports/out/memberrepo"
)

const (
	// maxPhoneAttempts bounds phone confirmation retries; the final mismatch
	// cancels the session.
	maxPhoneAttempts = 3

	// sessionTTL is the inactivity window after which an in-progress session
	// is discarded.
	sessionTTL = 15 * time.Minute
)

type Service struct {
	members  memberrepo.Repository
	sessions linksession.Store
	clk      clockport.Clock
}

func NewService(members memberrepo.Repository, sessions linksession.Store, clk clockport.Clock) *Service {
	return &Service{members: members, sessions: sessions, clk: clk}
}

// Begin opens a linking session for the actor. Fails when the actor's
// account is already bound to a member.
func (s *Service) Begin(ctx context.Context, actor domain.ExternalAccountID) (linksession.Session, error) {
	if _, err := s.members.GetByExternalAccount(ctx, actor); err == nil {
		return linksession.Session{}, apperr.Conflict("ALREADY_LINKED",
			"this account is already linked to a member", nil)
	} else if !errors.Is(err, memberrepo.ErrNotFound) {
		return linksession.Session{}, apperr.Storage("get member", err)
	}

	now := s.clk.Now()
	sess := linksession.Session{
		Actor:      actor,
		State:      linksession.StateAwaitingMemberID,
		StartedAt:  now,
		LastActive: now,
	}
	if err := s.sessions.Put(ctx, sess, sessionTTL); err != nil {
		return linksession.Session{}, apperr.Storage("store session", err)
	}
	return sess, nil
}

// SubmitMemberID consumes the candidate member id. A malformed id keeps the
// session open for another try; an unknown or already-linked member
// terminates it, mirroring the decisive rejection a desk clerk would give.
func (s *Service) SubmitMemberID(ctx context.Context, actor domain.ExternalAccountID, raw string) (linksession.Session, error) {
	sess, err := s.session(ctx, actor, linksession.StateAwaitingMemberID)
	if err != nil {
		return linksession.Session{}, err
	}

	id, err := domain.ParseMemberID(raw)
	if err != nil {
		return sess, apperr.Validation("INVALID_MEMBER_ID", err.Error(), nil)
	}
	m, err := s.members.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, memberrepo.ErrNotFound) {
			_ = s.sessions.Delete(ctx, actor)
			return linksession.Session{}, apperr.NotFound("MEMBER_NOT_FOUND", "no member with id "+string(id))
		}
		return linksession.Session{}, apperr.Storage("get member", err)
	}
	if m.IsLinked() {
		// Rejected, not overwritten: rebinding a claimed identity is how
		// accounts get hijacked.
		_ = s.sessions.Delete(ctx, actor)
		return linksession.Session{}, apperr.Conflict("ALREADY_LINKED",
			"this member id is already linked to another account", nil)
	}

	sess.State = linksession.StateAwaitingPhone
	sess.MemberID = id
	sess.LastActive = s.clk.Now()
	if err := s.sessions.Put(ctx, sess, sessionTTL); err != nil {
		return linksession.Session{}, apperr.Storage("store session", err)
	}
	return sess, nil
}

// ConfirmPhone compares the supplied phone against the member's stored
// number and, on a match, atomically claims the account binding.
func (s *Service) ConfirmPhone(ctx context.Context, actor domain.ExternalAccountID, rawPhone string) (domain.Member, error) {
	sess, err := s.session(ctx, actor, linksession.StateAwaitingPhone)
	if err != nil {
		return domain.Member{}, err
	}

	m, err := s.members.GetByID(ctx, sess.MemberID)
	if err != nil {
		_ = s.sessions.Delete(ctx, actor)
		if errors.Is(err, memberrepo.ErrNotFound) {
			return domain.Member{}, apperr.NotFound("MEMBER_NOT_FOUND", "member disappeared during linking")
		}
		return domain.Member{}, apperr.Storage("get member", err)
	}

	if !domain.SamePhone(m.Phone, rawPhone) {
		sess.PhoneAttempts++
		if sess.PhoneAttempts >= maxPhoneAttempts {
			_ = s.sessions.Delete(ctx, actor)
			return domain.Member{}, apperr.Forbidden("PHONE_MISMATCH",
				"phone did not match; linking cancelled")
		}
		sess.LastActive = s.clk.Now()
		if err := s.sessions.Put(ctx, sess, sessionTTL); err != nil {
			return domain.Member{}, apperr.Storage("store session", err)
		}
		return domain.Member{}, apperr.Validation("PHONE_MISMATCH", "phone does not match our records",
			map[string]any{"attemptsLeft": maxPhoneAttempts - sess.PhoneAttempts})
	}

	linked, err := s.members.Link(ctx, sess.MemberID, actor, s.clk.Now())
	_ = s.sessions.Delete(ctx, actor)
	if err != nil {
		switch {
		case errors.Is(err, memberrepo.ErrAccountTaken):
			return domain.Member{}, apperr.Conflict("EXTERNAL_ACCOUNT_TAKEN",
				"this account was claimed by another member in the meantime", nil)
		case errors.Is(err, memberrepo.ErrAlreadyLinked):
			return domain.Member{}, apperr.Conflict("ALREADY_LINKED",
				"this member id is already linked to another account", nil)
		case errors.Is(err, memberrepo.ErrNotFound):
			return domain.Member{}, apperr.NotFound("MEMBER_NOT_FOUND", "member disappeared during linking")
		default:
			return domain.Member{}, apperr.Storage("link member", err)
		}
	}
	return linked, nil
}

// Cancel discards any in-progress session for the actor.
func (s *Service) Cancel(ctx context.Context, actor domain.ExternalAccountID) error {
	if _, err := s.sessions.Get(ctx, actor); err != nil {
		if errors.Is(err, linksession.ErrNotFound) {
			return apperr.NotFound("NO_ACTIVE_SESSION", "nothing to cancel")
		}
		return apperr.Storage("get session", err)
	}
	if err := s.sessions.Delete(ctx, actor); err != nil {
		return apperr.Storage("delete session", err)
	}
	return nil
}

// Peek returns the actor's live session, if any, so a front end can render
// the current step.
func (s *Service) Peek(ctx context.Context, actor domain.ExternalAccountID) (linksession.Session, bool, error) {
	sess, err := s.sessions.Get(ctx, actor)
	if err != nil {
		if errors.Is(err, linksession.ErrNotFound) {
			return linksession.Session{}, false, nil
		}
		return linksession.Session{}, false, apperr.Storage("get session", err)
	}
	return sess, true, nil
}

func (s *Service) session(ctx context.Context, actor domain.ExternalAccountID, want linksession.State) (linksession.Session, error) {
	sess, err := s.sessions.Get(ctx, actor)
	if err != nil {
		if errors.Is(err, linksession.ErrNotFound) {
			return linksession.Session{}, apperr.NotFound("NO_ACTIVE_SESSION", "no linking session in progress")
		}
		return linksession.Session{}, apperr.Storage("get session", err)
	}
	if sess.State != want {
		return linksession.Session{}, apperr.Conflict("WRONG_STEP",
			"linking session is at a different step", map[string]any{"state": string(sess.State)})
	}
	return sess, nil
}
