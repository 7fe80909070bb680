package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"sms-hunter/internal/application"
	"sms-hunter/internal/config"
	"sms-hunter/internal/domain/ports/adapter"
	"sms-hunter/internal/infra/logging"
	"sms-hunter/internal/infra/metrics"
	"sms-hunter/internal/usecase"
)

var _ adapter.TelegramBotAdapter = (*RealTelegramBotAdapter)(nil)

// botAPI is the subset of *tgbotapi.BotAPI the adapter calls.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// RealTelegramBotAdapter sends through the Bot API and routes inbound updates
// to the BotFacade.
type RealTelegramBotAdapter struct {
	bot    botAPI
	cfg    *config.BotConfig
	facade *application.BotFacade
	tr     usecase.Translator
	log    *zerolog.Logger

	updateWorkers int

	mu            sync.Mutex
	cancelPolling context.CancelFunc
}

func NewRealTelegramBotAdapter(cfg *config.BotConfig, tr usecase.Translator, logger *zerolog.Logger) (*RealTelegramBotAdapter, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	return newAdapter(bot, cfg, tr, logger), nil
}

func newAdapter(bot botAPI, cfg *config.BotConfig, tr usecase.Translator, logger *zerolog.Logger) *RealTelegramBotAdapter {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	return &RealTelegramBotAdapter{
		bot:           bot,
		cfg:           cfg,
		tr:            tr,
		log:           logging.Component(logger, "TelegramBot"),
		updateWorkers: workers,
	}
}

// SetFacade wires the handlers. The hunter needs the adapter before the
// facade exists, so this happens after construction.
func (r *RealTelegramBotAdapter) SetFacade(f *application.BotFacade) {
	r.facade = f
}

// ---- outbound ----

func (r *RealTelegramBotAdapter) SendMessage(ctx context.Context, chatID int64, text string) error {
	return r.SendButtons(ctx, chatID, text, nil)
}

// SendButtons sends an HTML message with an optional inline keyboard.
func (r *RealTelegramBotAdapter) SendButtons(ctx context.Context, chatID int64, text string, rows [][]adapter.InlineButton) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if kb, ok := keyboard(rows); ok {
		msg.ReplyMarkup = kb
	}
	if _, err := r.bot.Send(msg); err != nil {
		metrics.IncTelegramSendFailure()
		return err
	}
	return nil
}

// editMessage replaces the text (and keyboard) of the message a button sits on.
func (r *RealTelegramBotAdapter) editMessage(chatID int64, messageID int, text string, rows [][]adapter.InlineButton) error {
	var edit tgbotapi.EditMessageTextConfig
	if kb, ok := keyboard(rows); ok {
		edit = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, kb)
	} else {
		edit = tgbotapi.NewEditMessageText(chatID, messageID, text)
	}
	edit.ParseMode = tgbotapi.ModeHTML
	edit.DisableWebPagePreview = true
	if _, err := r.bot.Send(edit); err != nil {
		metrics.IncTelegramSendFailure()
		return err
	}
	return nil
}

// keyboard converts port buttons. A button without URL or Data uses its label as data.
func keyboard(rows [][]adapter.InlineButton) (tgbotapi.InlineKeyboardMarkup, bool) {
	kbRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		out := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			label := strings.TrimSpace(btn.Text)
			if label == "" {
				label = "•"
			}
			switch {
			case btn.URL != "":
				out = append(out, tgbotapi.NewInlineKeyboardButtonURL(label, btn.URL))
			case btn.Data != "":
				out = append(out, tgbotapi.NewInlineKeyboardButtonData(label, btn.Data))
			default:
				out = append(out, tgbotapi.NewInlineKeyboardButtonData(label, label))
			}
		}
		kbRows = append(kbRows, out)
	}
	if len(kbRows) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(kbRows...), true
}

// ---- inbound ----

// HandleUpdate routes one update. It never panics; handler errors are logged.
func (r *RealTelegramBotAdapter) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	ctx = logging.WithTraceID(ctx, ulid.Make().String())
	if from := update.SentFrom(); from != nil {
		ctx = logging.WithTgID(ctx, from.ID)
	}
	log := logging.With(ctx, r.log)

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("update handler panicked")
		}
	}()

	if r.facade == nil {
		log.Error().Msg("update received before facade was wired")
		return
	}

	var err error
	switch {
	case update.CallbackQuery != nil:
		metrics.IncTelegramUpdate("callback")
		err = r.handleQuery(ctx, update.CallbackQuery)
	case update.Message != nil:
		if update.Message.IsCommand() {
			metrics.IncTelegramUpdate("command")
		} else {
			metrics.IncTelegramUpdate("message")
		}
		err = r.handleMessage(ctx, update.Message)
	default:
		metrics.IncTelegramUpdate("other")
	}
	if err != nil {
		log.Error().Err(err).Msg("update handling failed")
	}
}

func (r *RealTelegramBotAdapter) handleMessage(ctx context.Context, message *tgbotapi.Message) error {
	if message.From == nil || !r.facade.IsAdmin(message.From.ID) {
		return nil
	}
	if message.IsCommand() {
		if fn, ok := r.commandRoutes()[message.Command()]; ok {
			return fn(ctx, message)
		}
		return nil
	}
	if strings.TrimSpace(message.Text) == "" {
		return nil
	}
	return r.handleTextInput(ctx, message)
}

// ---- polling & webhook ----

// StartPolling fans updates out to a fixed set of workers until ctx ends.
func (r *RealTelegramBotAdapter) StartPolling(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := r.bot.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancelPolling = cancel
	r.mu.Unlock()
	defer cancel()

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)
	for i := 0; i < r.updateWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for up := range updateChan {
				r.HandleUpdate(ctx, up)
			}
		}()
	}

	r.log.Info().Int("workers", r.updateWorkers).Msg("long polling started")
	for {
		select {
		case <-ctx.Done():
			r.bot.StopReceivingUpdates()
			close(updateChan)
			wg.Wait()
			return ctx.Err()
		case up, ok := <-updates:
			if !ok {
				close(updateChan)
				wg.Wait()
				return nil
			}
			updateChan <- up
		}
	}
}

func (r *RealTelegramBotAdapter) StopPolling() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelPolling != nil {
		r.cancelPolling()
	}
}

// SetWebhook registers url with Telegram.
func (r *RealTelegramBotAdapter) SetWebhook(ctx context.Context, url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("webhook url: %w", err)
	}
	resp, err := r.bot.Request(wh)
	if err != nil {
		return err
	}
	if !resp.Ok {
		return fmt.Errorf("setWebhook refused: %s", resp.Description)
	}
	r.log.Info().Msg("webhook registered")
	return nil
}

// DeleteWebhook is needed before long polling on a bot that had a webhook.
func (r *RealTelegramBotAdapter) DeleteWebhook(ctx context.Context) error {
	_, err := r.bot.Request(tgbotapi.DeleteWebhookConfig{})
	return err
}
