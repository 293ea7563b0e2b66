package notifrepo

import (
	"context"

	"github.com/ijara-kitoblar/library-bot/internal/domain"
)

// Repository is the audit trail of delivered notifications. Append-only;
// losing a record is logged but never fails the delivery that produced it.
type Repository interface {
	Append(ctx context.Context, rec domain.NotificationRecord) error

	// ListByMember returns records newest first.
	ListByMember(ctx context.Context, id domain.MemberID, limit int) ([]domain.NotificationRecord, error)
}
