// Package notify is the outbound message dispatcher. It rate-limits sends,
// keeps an audit trail of what went out, and treats delivery failure as a
// reportable outcome rather than an error: an unreachable member must never
// abort a scan over many members.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ijara-kitoblar/library-bot/internal/app/apperr"
	"github.com/ijara-kitoblar/library-bot/internal/domain"
	"github.com/ijara-kitoblar/library-bot/internal/ports/out/adminrepo"
	clockport "github.com/ijara-kitoblar/library-bot/internal/ports/out/clock"
	"github.com/ijara-kitoblar/library-bot/internal/ports/out/messenger"
	"github.com/ijara-kitoblar/library-bot/internal/ports/out/notifrepo"
)

// sendPause is the minimum spacing between outbound messages, keeping the
// dispatcher under messaging-platform flood limits.
const sendPause = 500 * time.Millisecond

type Service struct {
	out     messenger.Messenger
	history notifrepo.Repository
	admins  adminrepo.Repository
	clk     clockport.Clock
	log     *slog.Logger
	limiter *rate.Limiter
}

func NewService(out messenger.Messenger, history notifrepo.Repository, admins adminrepo.Repository, clk clockport.Clock, log *slog.Logger) *Service {
	return &Service{
		out:     out,
		history: history,
		admins:  admins,
		clk:     clk,
		log:     log,
		limiter: rate.NewLimiter(rate.Every(sendPause), 1),
	}
}

// Notify delivers one lifecycle message to a member. Returns (false, nil)
// when the member has no linked account or delivery fails; both are normal
// outcomes, logged but never errors. Only a delivered message is recorded in
// the audit trail.
func (s *Service) Notify(ctx context.Context, m domain.Member, kind domain.NotificationKind, body string) (bool, error) {
	if !m.IsLinked() {
		s.log.Debug("notification skipped, member unlinked",
			"member", string(m.ID), "kind", string(kind))
		return false, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return false, apperr.Transport("rate limiter wait", err)
	}

	if err := s.out.Send(ctx, *m.ExternalAccount, body); err != nil {
		s.log.Warn("notification delivery failed",
			"member", string(m.ID), "kind", string(kind), "err", err)
		return false, nil
	}

	rec := domain.NotificationRecord{
		ID:              uuid.NewString(),
		MemberID:        m.ID,
		ExternalAccount: m.ExternalAccount,
		Kind:            kind,
		Body:            body,
		SentAt:          s.clk.Now(),
	}
	if err := s.history.Append(ctx, rec); err != nil {
		// The message is already out; losing the audit row is a logging
		// matter, not a delivery failure.
		s.log.Error("notification audit append failed",
			"member", string(m.ID), "kind", string(kind), "err", err)
	}
	return true, nil
}

// BroadcastToAdmins sends the body to every active admin. Failures are
// isolated per recipient; the count of successful sends is returned.
func (s *Service) BroadcastToAdmins(ctx context.Context, body string) (int, error) {
	admins, err := s.admins.List(ctx)
	if err != nil {
		return 0, apperr.Storage("list admins", err)
	}
	sent := 0
	for _, a := range admins {
		if err := s.limiter.Wait(ctx); err != nil {
			return sent, apperr.Transport("rate limiter wait", err)
		}
		if err := s.out.Send(ctx, a.ExternalAccount, body); err != nil {
			s.log.Warn("admin broadcast delivery failed",
				"admin", a.DisplayName, "err", err)
			continue
		}
		sent++
	}
	return sent, nil
}

// History returns the most recent notifications recorded for a member.
func (s *Service) History(ctx context.Context, rawMemberID string, limit int) ([]domain.NotificationRecord, error) {
	id, err := domain.ParseMemberID(rawMemberID)
	if err != nil {
		return nil, apperr.Validation("INVALID_MEMBER_ID", err.Error(), nil)
	}
	recs, err := s.history.ListByMember(ctx, id, limit)
	if err != nil {
		return nil, apperr.Storage("notification history", err)
	}
	return recs, nil
}
