// Package monitor runs the periodic subscription lifecycle scans: a warning
// pass ahead of expiry and a sweep that downgrades lapsed plans to Free.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ijara-kitoblar/library-bot/internal/app/notify"
	"github.com/ijara-kitoblar/library-bot/internal/app/subscription"
	"github.com/ijara-kitoblar/library-bot/internal/domain"
	clockport "github.com/ijara-kitoblar/library-bot/internal/ports/out/clock"
)

const (
	// DefaultWarningDays is how far ahead of expiry the warning goes out.
	DefaultWarningDays = 3

	DefaultWarningInterval = 24 * time.Hour
	DefaultSweepInterval   = 6 * time.Hour
)

// Report summarizes one scan pass.
type Report struct {
	Scanned  int
	Notified int

	// Skipped counts members the scan could not reach: unlinked accounts and
	// failed deliveries.
	Skipped int

	// Downgraded counts members moved to Free; zero for warning scans, which
	// never mutate.
	Downgraded int

	// Failed counts members whose downgrade errored; the sweep skips past
	// them and retries on the next tick.
	Failed int
}

type Service struct {
	subs   *subscription.Service
	notify *notify.Service
	clk    clockport.Clock
	log    *slog.Logger

	WarningDays     int
	WarningInterval time.Duration
	SweepInterval   time.Duration
}

func NewService(subs *subscription.Service, notifier *notify.Service, clk clockport.Clock, log *slog.Logger) *Service {
	return &Service{
		subs:            subs,
		notify:          notifier,
		clk:             clk,
		log:             log,
		WarningDays:     DefaultWarningDays,
		WarningInterval: DefaultWarningInterval,
		SweepInterval:   DefaultSweepInterval,
	}
}

// RunWarningScan notifies members whose paid plan ends within WarningDays.
// It mutates nothing: a warned member keeps their plan until it actually
// lapses.
func (s *Service) RunWarningScan(ctx context.Context) (Report, error) {
	ms, err := s.subs.ExpiringSoon(ctx, s.WarningDays)
	if err != nil {
		return Report{}, err
	}

	rep := Report{Scanned: len(ms)}
	now := s.clk.Now()
	for _, m := range ms {
		days := m.DaysLeft(now)
		body := fmt.Sprintf(
			"Your %s subscription expires in %d day(s). Renew to keep your privileges.",
			m.Plan, days)
		sent, err := s.notify.Notify(ctx, m, domain.NotificationWarning, body)
		if err != nil {
			return rep, err
		}
		if sent {
			rep.Notified++
		} else {
			rep.Skipped++
		}
	}
	s.log.Info("warning scan done",
		"scanned", rep.Scanned, "notified", rep.Notified, "skipped", rep.Skipped)
	return rep, nil
}

// RunExpirySweep downgrades every lapsed paid member to Free and tells them,
// when reachable. A failed notification never blocks the downgrade, and one
// member's failure never blocks the rest of the sweep.
func (s *Service) RunExpirySweep(ctx context.Context) (Report, error) {
	ms, err := s.subs.ExpiredNow(ctx)
	if err != nil {
		return Report{}, err
	}

	rep := Report{Scanned: len(ms)}
	for _, m := range ms {
		downgraded, err := s.subs.SetPlan(ctx, string(m.ID), "Free", 0)
		if err != nil {
			s.log.Error("expiry downgrade failed", "member", string(m.ID), "err", err)
			rep.Failed++
			continue
		}
		rep.Downgraded++

		body := fmt.Sprintf(
			"Your %s subscription has expired. You are back on the Free plan.", m.Plan)
		sent, err := s.notify.Notify(ctx, downgraded, domain.NotificationExpired, body)
		if err != nil {
			return rep, err
		}
		if sent {
			rep.Notified++
		} else {
			rep.Skipped++
		}
	}
	s.log.Info("expiry sweep done",
		"scanned", rep.Scanned, "downgraded", rep.Downgraded,
		"notified", rep.Notified, "skipped", rep.Skipped, "failed", rep.Failed)
	return rep, nil
}

// Run drives both scans on their intervals until ctx is cancelled. Scan
// errors are logged, not fatal: a broken store on one tick should not kill
// the monitor for good.
func (s *Service) Run(ctx context.Context) {
	warn := time.NewTicker(s.WarningInterval)
	defer warn.Stop()
	sweep := time.NewTicker(s.SweepInterval)
	defer sweep.Stop()

	s.log.Info("expiry monitor started",
		"warningEvery", s.WarningInterval.String(), "sweepEvery", s.SweepInterval.String())

	for {
		select {
		case <-ctx.Done():
			s.log.Info("expiry monitor stopped")
			return
		case <-warn.C:
			if _, err := s.RunWarningScan(ctx); err != nil {
				s.log.Error("warning scan failed", "err", err)
			}
		case <-sweep.C:
			if _, err := s.RunExpirySweep(ctx); err != nil {
				s.log.Error("expiry sweep failed", "err", err)
			}
		}
	}
}
