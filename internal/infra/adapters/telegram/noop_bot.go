package telegram

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"sms-hunter/internal/domain/ports/adapter"
	"sms-hunter/internal/infra/logging"
)

var _ adapter.TelegramBotAdapter = (*NoopBotAdapter)(nil)

// NoopBotAdapter logs outgoing messages instead of sending them. Used by the
// "noop" bot mode for dry runs against the upstream API.
type NoopBotAdapter struct {
	log *zerolog.Logger
}

func NewNoopBotAdapter(logger *zerolog.Logger) *NoopBotAdapter {
	return &NoopBotAdapter{log: logging.Component(logger, "NoopBot")}
}

func (b *NoopBotAdapter) SendMessage(ctx context.Context, chatID int64, text string) error {
	return b.SendButtons(ctx, chatID, text, nil)
}

func (b *NoopBotAdapter) SendButtons(ctx context.Context, chatID int64, text string, rows [][]adapter.InlineButton) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ev := b.log.Info().Int64("chat_id", chatID).Str("text", text)
	if len(rows) > 0 {
		var data []string
		for _, row := range rows {
			for _, btn := range row {
				data = append(data, btn.Data)
			}
		}
		ev = ev.Strs("buttons", data)
	}
	ev.Msg("message not sent (noop bot)")
	return nil
}

// HandleUpdate drops the update; there is no bot to answer with.
func (b *NoopBotAdapter) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	b.log.Debug().Int("update_id", update.UpdateID).Msg("update dropped (noop bot)")
}

func (b *NoopBotAdapter) SetWebhook(ctx context.Context, url string) error {
	return errors.New("noop bot cannot register a webhook")
}
