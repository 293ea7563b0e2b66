package messenger

import (
	"context"

	"github.com/ijara-kitoblar/library-bot/internal/domain"
)

// Messenger is the outbound messaging capability: deliver text to an
// external account. Delivery is best-effort with enumerable failure; callers
// must treat errors as recoverable and never roll back the mutation that
// triggered the message.
type Messenger interface {
	Send(ctx context.Context, to domain.ExternalAccountID, text string) error

	// DisplayName resolves the platform display name of an account. Used
	// only at super-admin bootstrap.
	DisplayName(ctx context.Context, account domain.ExternalAccountID) (string, error)
}
