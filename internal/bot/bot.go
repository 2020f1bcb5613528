// Package bot mirrors alerts and cycle summaries to Telegram chats.
package bot

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"wecounts/internal/model"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot posts notifications to a fixed set of chats. It never reads updates.
type Bot struct {
	api     telegramAPI
	chatIDs []int64
	log     *slog.Logger
}

// New creates a Bot with the given Telegram token and destination chats.
func New(token string, chatIDs []int64, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	log.Info("telegram mirror enabled", "bot", api.Self.UserName, "chats", len(chatIDs))

	return &Bot{api: api, chatIDs: chatIDs, log: log}, nil
}

// NotifyAlert posts a keyword alert to every chat.
func (b *Bot) NotifyAlert(ctx context.Context, feed string, article *model.Article, keywords []string) {
	b.broadcast(ctx, FormatAlert(feed, article, keywords))
}

// NotifyCycle posts a cycle summary when the cycle matched something or
// hit feed errors.
func (b *Bot) NotifyCycle(ctx context.Context, stats model.CycleStats) {
	if stats.Matched == 0 && stats.FeedErrors == 0 {
		return
	}
	b.broadcast(ctx, FormatCycleSummary(stats))
}

func (b *Bot) broadcast(ctx context.Context, text string) {
	for _, id := range b.chatIDs {
		if ctx.Err() != nil {
			return
		}
		b.SendMessage(id, text)
	}
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}
