package messenger

import (
	"context"
	"fmt"
	"sync"

	"github.com/ijara-kitoblar/library-bot/internal/domain"
)

// Sent is one recorded outbound message.
type Sent struct {
	To   domain.ExternalAccountID
	Text string
}

// Messenger is a recording fake for tests. Individual recipients can be made
// to fail to exercise per-recipient failure isolation.
type Messenger struct {
	mu sync.Mutex

	sent    []Sent
	failing map[domain.ExternalAccountID]bool
	names   map[domain.ExternalAccountID]string
}

func NewMessenger() *Messenger {
	return &Messenger{
		failing: make(map[domain.ExternalAccountID]bool),
		names:   make(map[domain.ExternalAccountID]string),
	}
}

func (m *Messenger) Send(ctx context.Context, to domain.ExternalAccountID, text string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing[to] {
		return fmt.Errorf("delivery to %d refused", to)
	}
	m.sent = append(m.sent, Sent{To: to, Text: text})
	return nil
}

func (m *Messenger) DisplayName(ctx context.Context, account domain.ExternalAccountID) (string, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if name, ok := m.names[account]; ok {
		return name, nil
	}
	return fmt.Sprintf("account %d", account), nil
}

// FailFor makes every send to the account return an error.
func (m *Messenger) FailFor(account domain.ExternalAccountID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing[account] = true
}

// SetDisplayName fixes the resolved name for an account.
func (m *Messenger) SetDisplayName(account domain.ExternalAccountID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names[account] = name
}

// SentTo returns messages recorded for the account, in send order.
func (m *Messenger) SentTo(account domain.ExternalAccountID) []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sent, 0)
	for _, s := range m.sent {
		if s.To == account {
			out = append(out, s)
		}
	}
	return out
}

// All returns every recorded message in send order.
func (m *Messenger) All() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sent, len(m.sent))
	copy(out, m.sent)
	return out
}
