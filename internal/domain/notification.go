package domain

import "time"

// NotificationKind classifies lifecycle messages sent to members.
type NotificationKind string

const (
	// NotificationWarning precedes an upcoming plan expiry.
	NotificationWarning NotificationKind = "warning"
	// NotificationExpired follows an automatic downgrade to Free.
	NotificationExpired NotificationKind = "expired"
	// NotificationApproved follows an admin-approved plan change.
	NotificationApproved NotificationKind = "approved"
)

// NotificationRecord is the audit row kept for every delivered message.
type NotificationRecord struct {
	ID              string
	MemberID        MemberID
	ExternalAccount *ExternalAccountID
	Kind            NotificationKind
	Body            string
	SentAt          time.Time
}
