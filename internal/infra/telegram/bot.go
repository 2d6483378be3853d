package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Bot pushes review notifications to the operator chat. It never listens
// for updates, the API surface here is send-only.
type Bot struct {
	api *tgbotapi.BotAPI
}

func NewBot(token string) (*Bot, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}

	api, err := tgbotapi.NewBotAPI(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("create telegram bot api: %w", err)
	}

	return &Bot{api: api}, nil
}

func (b *Bot) SendText(chatID int64, text string) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	if chatID == 0 || strings.TrimSpace(text) == "" {
		return fmt.Errorf("invalid telegram message payload")
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}

	return nil
}
