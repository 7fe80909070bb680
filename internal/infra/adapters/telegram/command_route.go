package telegram

import (
	"context"
	"errors"
	"html"

	"sms-hunter/internal/domain"
	"sms-hunter/internal/domain/model"
	"sms-hunter/internal/domain/ports/adapter"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type commandHandler func(ctx context.Context, message *tgbotapi.Message) error

// commandRoutes are reachable by the admin only; handleMessage gates them.
func (r *RealTelegramBotAdapter) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"start": r.handleStartCommand,
		"work":  r.handleWorkCommand,
		"stop":  r.handleStopCommand,
	}
}

func (r *RealTelegramBotAdapter) mainMenu() [][]adapter.InlineButton {
	return [][]adapter.InlineButton{
		{{Text: r.tr.T("btn_add"), Data: cbAdd}, {Text: r.tr.T("btn_del"), Data: cbDel}},
		{{Text: r.tr.T("btn_up"), Data: cbUp}, {Text: r.tr.T("btn_rem"), Data: cbRem}},
		{{Text: r.tr.T("btn_all"), Data: cbAll}},
	}
}

func (r *RealTelegramBotAdapter) backMenu() [][]adapter.InlineButton {
	return [][]adapter.InlineButton{{{Text: r.tr.T("btn_back"), Data: cbBack}}}
}

func (r *RealTelegramBotAdapter) handleStartCommand(ctx context.Context, message *tgbotapi.Message) error {
	if err := r.facade.Admin.Begin(ctx); err != nil {
		return err
	}
	return r.SendButtons(ctx, message.Chat.ID, r.tr.T("menu_text"), r.mainMenu())
}

func (r *RealTelegramBotAdapter) handleWorkCommand(ctx context.Context, message *tgbotapi.Message) error {
	launched, err := r.facade.Admin.StartHunting(ctx)
	var key string
	switch {
	case errors.Is(err, domain.ErrMissingAPIKey):
		key = "hunt_no_key"
	case errors.Is(err, domain.ErrNoCountries):
		key = "hunt_no_countries"
	case err != nil:
		key = "error_generic"
	case launched:
		key = "hunt_started"
	default:
		key = "hunt_already"
	}
	return r.SendMessage(ctx, message.Chat.ID, r.tr.T(key))
}

func (r *RealTelegramBotAdapter) handleStopCommand(ctx context.Context, message *tgbotapi.Message) error {
	requested, err := r.facade.Admin.StopHunting(ctx)
	key := "hunt_stop_requested"
	switch {
	case err != nil:
		key = "error_generic"
	case !requested:
		key = "hunt_not_running"
	}
	return r.SendMessage(ctx, message.Chat.ID, r.tr.T(key))
}

// handleTextInput answers a free-text message that completes a prompt, then
// shows the menu again. Text with no pending prompt is ignored.
func (r *RealTelegramBotAdapter) handleTextInput(ctx context.Context, message *tgbotapi.Message) error {
	chatID := message.Chat.ID
	out, err := r.facade.Admin.HandleText(ctx, message.Text)

	var reply string
	switch {
	case errors.Is(err, domain.ErrNoPendingInput):
		return nil
	case errors.Is(err, domain.ErrCountryNotFound):
		reply = r.tr.T("country_not_found", html.EscapeString(message.Text))
	case errors.Is(err, domain.ErrEmptyInput):
		reply = r.tr.T("empty_input")
	case err != nil:
		reply = r.tr.T("error_generic")
	default:
		switch out.Cursor {
		case model.CursorAwaitingCountry:
			reply = r.tr.T("country_added", html.EscapeString(out.CountryID), out.Code)
		case model.CursorAwaitingDeleteCode:
			reply = r.tr.T("country_deleted")
		case model.CursorAwaitingAPIKey:
			reply = r.tr.T("key_saved")
		}
	}

	if err := r.SendMessage(ctx, chatID, reply); err != nil {
		return err
	}
	return r.SendButtons(ctx, chatID, r.tr.T("back_to_menu"), r.mainMenu())
}
