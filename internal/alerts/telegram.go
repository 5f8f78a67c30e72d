package alerts

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// TelegramAlerter delivers alerts to one or more Telegram chats
type TelegramAlerter struct {
	api     *tgbotapi.BotAPI
	chatIDs []int64
	log     zerolog.Logger
}

// NewTelegramAlerter creates a Telegram alert channel
func NewTelegramAlerter(botToken string, chatIDs []int64, log zerolog.Logger) (*TelegramAlerter, error) {
	if botToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("create bot API: %w", err)
	}

	l := log.With().Str("component", "telegram").Logger()
	l.Info().
		Str("bot_username", api.Self.UserName).
		Int("chat_count", len(chatIDs)).
		Msg("Telegram alerter initialized")

	return &TelegramAlerter{api: api, chatIDs: chatIDs, log: l}, nil
}

// Send delivers the alert to every configured chat
func (t *TelegramAlerter) Send(ctx context.Context, alert Alert) error {
	if len(t.chatIDs) == 0 {
		t.log.Warn().Msg("No Telegram chat IDs configured, skipping alert")
		return nil
	}

	text := formatAlert(alert)

	var lastErr error
	sent := 0
	for _, chatID := range t.chatIDs {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = "Markdown"

		if _, err := t.api.Send(msg); err != nil {
			t.log.Error().Err(err).Int64("chat_id", chatID).Msg("Telegram send failed")
			lastErr = err
			continue
		}
		sent++
	}

	if sent == 0 && lastErr != nil {
		return fmt.Errorf("alert reached no chat: %w", lastErr)
	}
	return nil
}

func formatAlert(alert Alert) string {
	var emoji string
	switch alert.Severity {
	case SeverityCritical:
		emoji = "🚨"
	case SeverityWarning:
		emoji = "⚠️"
	default:
		emoji = "ℹ️"
	}

	text := fmt.Sprintf("%s *%s*\n\n%s", emoji, alert.Title, alert.Message)
	for k, v := range alert.Fields {
		text += fmt.Sprintf("\n• %s: `%s`", k, v)
	}
	text += fmt.Sprintf("\n\n_%s_", alert.Timestamp.Format("2006-01-02 15:04:05"))
	return text
}
