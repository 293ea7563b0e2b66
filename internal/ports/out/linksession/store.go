package linksession

import (
	"context"
	"errors"
	"time"

	"github.com/ijara-kitoblar/library-bot/internal/domain"
)

// State is the tagged protocol state of one linking session.
type State string

const (
	// StateAwaitingMemberID: the actor started /link and owes us a member id.
	StateAwaitingMemberID State = "awaiting_member_id"
	// StateAwaitingPhone: the member id checked out; the actor owes us the
	// phone number on file.
	StateAwaitingPhone State = "awaiting_phone_confirmation"
)

// Session is the persisted in-progress linking state, keyed per requesting
// actor so concurrent callers can never see each other's protocol state.
// Terminal outcomes (Linked, Cancelled, Rejected) are not stored: reaching
// one deletes the session.
type Session struct {
	Actor domain.ExternalAccountID
	State State

	// MemberID is set once the id step succeeded.
	MemberID domain.MemberID

	// PhoneAttempts counts failed phone confirmations.
	PhoneAttempts int

	StartedAt  time.Time
	LastActive time.Time
}

// ErrNotFound indicates the actor has no live session; expired sessions are
// reported the same way.
var ErrNotFound = errors.New("no linking session")

// Store keeps at most one live session per actor. Implementations must drop
// sessions that outlive ttl so abandoned state cannot leak.
type Store interface {
	Put(ctx context.Context, s Session, ttl time.Duration) error
	Get(ctx context.Context, actor domain.ExternalAccountID) (Session, error)
	Delete(ctx context.Context, actor domain.ExternalAccountID) error
}
