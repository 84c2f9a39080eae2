// Package notify tells operators about ledger events.
package notify

import (
	"context"
	"fmt"

	"github.com/bonosa/MarsLife/internal/config"
	"github.com/bonosa/MarsLife/internal/i18n"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type Notifier interface {
	PaymentApplied(ctx context.Context, userID, packageID string, credits, balance int64)
}

// Nop drops every notification.
type Nop struct{}

func (Nop) PaymentApplied(context.Context, string, string, int64, int64) {}

// Telegram posts to every configured chat. Send errors are logged only.
type Telegram struct {
	bot     *tgbotapi.BotAPI
	chatIDs []int64
	i18n    *i18n.Manager
	lang    string
	logger  *zap.Logger
}

// New returns a Telegram notifier, or Nop when no bot token is set.
func New(cfg config.TelegramConfig, i18nManager *i18n.Manager, lang string, logger *zap.Logger) (Notifier, error) {
	if cfg.BotToken == "" {
		return Nop{}, nil
	}
	return NewTelegram(cfg, i18nManager, lang, logger)
}

func NewTelegram(cfg config.TelegramConfig, i18nManager *i18n.Manager, lang string, logger *zap.Logger) (*Telegram, error) {
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(cfg.BotToken, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	logger = logger.Named("notify")
	logger.Info("Telegram notifier ready", zap.String("bot", bot.Self.UserName), zap.Int("chats", len(cfg.ChatIDs)))
	return &Telegram{
		bot:     bot,
		chatIDs: cfg.ChatIDs,
		i18n:    i18nManager,
		lang:    lang,
		logger:  logger,
	}, nil
}

func (t *Telegram) PaymentApplied(ctx context.Context, userID, packageID string, credits, balance int64) {
	text := t.i18n.T(t.lang, "notify_payment_applied",
		"UserID", userID,
		"PackageID", packageID,
		"Credits", credits,
		"Balance", balance,
	)
	for _, chatID := range t.chatIDs {
		if ctx.Err() != nil {
			return
		}
		if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
			t.logger.Error("Failed to send payment notification", zap.Int64("chat_id", chatID), zap.Error(err))
		}
	}
}
