package notify

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"ai-analysis-ops/internal/config"
	"ai-analysis-ops/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.NotificationSink = (*TelegramNotifier)(nil)

// TelegramNotifier delivers admin alerts to a Telegram chat.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    *zerolog.Logger
}

func NewTelegramNotifier(cfg *config.TelegramConfig, logger *zerolog.Logger) (*TelegramNotifier, error) {
	if cfg == nil || cfg.Token == "" {
		return nil, errors.New("telegram token is required")
	}
	if cfg.AdminChatID == 0 {
		return nil, errors.New("telegram admin chat id is required")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}
	l := logger.With().Str("component", "TelegramNotifier").Logger()
	return &TelegramNotifier{bot: bot, chatID: cfg.AdminChatID, log: &l}, nil
}

func (t *TelegramNotifier) Notify(ctx context.Context, title, content string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	msg := tgbotapi.NewMessage(t.chatID, title+"\n\n"+content)
	if _, err := t.bot.Send(msg); err != nil {
		t.log.Warn().Err(err).Msg("telegram send failed")
		return false, err
	}
	return true, nil
}
