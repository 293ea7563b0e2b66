package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ijara-kitoblar/library-bot/internal/domain"
)

// Messenger sends through the Telegram Bot API. It implements the outbound
// messenger port.
type Messenger struct {
	api *tgbotapi.BotAPI
}

func NewMessenger(api *tgbotapi.BotAPI) *Messenger {
	return &Messenger{api: api}
}

func (m *Messenger) Send(ctx context.Context, to domain.ExternalAccountID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(int64(to), text)
	if _, err := m.api.Send(msg); err != nil {
		return fmt.Errorf("telegram send to %d: %w", to, err)
	}
	return nil
}

func (m *Messenger) DisplayName(ctx context.Context, account domain.ExternalAccountID) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	chat, err := m.api.GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: int64(account)},
	})
	if err != nil {
		return "", fmt.Errorf("telegram get chat %d: %w", account, err)
	}
	name := strings.TrimSpace(chat.FirstName + " " + chat.LastName)
	if name == "" && chat.UserName != "" {
		name = "@" + chat.UserName
	}
	if name == "" {
		name = fmt.Sprintf("account %d", account)
	}
	return name, nil
}
