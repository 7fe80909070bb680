package telegram

import (
	"context"
	"errors"
	"html"
	"strings"
	"unicode/utf8"

	"sms-hunter/internal/domain"
	"sms-hunter/internal/domain/model"
	"sms-hunter/internal/domain/ports/adapter"
	"sms-hunter/internal/infra/logging"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Callback data of the admin menu.
const (
	cbAdd  = "add"
	cbDel  = "del"
	cbUp   = "up"
	cbRem  = "rem"
	cbAll  = "all"
	cbBack = "back"
)

// Telegram rejects callback answers longer than this.
const maxAlertLen = 200

// callbackReply is the single answer sent for a callback query. A non-empty
// Alert is shown as a popup.
type callbackReply struct {
	Alert string
}

type cbHandler func(ctx context.Context, q *tgbotapi.CallbackQuery) (callbackReply, error)

type prefixCB struct {
	Prefix string
	Fn     cbHandler
}

// cbRoutes are the admin menu buttons.
func (r *RealTelegramBotAdapter) cbRoutes() map[string]cbHandler {
	return map[string]cbHandler{
		cbAdd:  r.promptCBRoute(model.CursorAwaitingCountry, "prompt_add"),
		cbDel:  r.promptCBRoute(model.CursorAwaitingDeleteCode, "prompt_del"),
		cbUp:   r.promptCBRoute(model.CursorAwaitingAPIKey, "prompt_up"),
		cbRem:  r.removeKeyCBRoute,
		cbAll:  r.listCountriesCBRoute,
		cbBack: r.backCBRoute,
	}
}

// cbPrefixRoutes serve the buttons on reserved-number notices; anyone who can
// see the notice may press them.
func (r *RealTelegramBotAdapter) cbPrefixRoutes() []prefixCB {
	return []prefixCB{
		{Prefix: model.CodeRequestPrefix, Fn: r.codePrefixCBRoute},
		{Prefix: model.CancelRequestPrefix, Fn: r.banPrefixCBRoute},
	}
}

// handleQuery dispatches a callback and answers it exactly once.
func (r *RealTelegramBotAdapter) handleQuery(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if q == nil || q.From == nil {
		return errors.New("invalid callback query")
	}

	var reply callbackReply
	var err error
	defer func() { r.answer(ctx, q.ID, reply.Alert) }()

	data := strings.TrimSpace(q.Data)
	if fn, ok := r.cbRoutes()[data]; ok {
		if !r.facade.IsAdmin(q.From.ID) {
			return nil
		}
		reply, err = fn(ctx, q)
		return err
	}
	for _, pr := range r.cbPrefixRoutes() {
		if strings.HasPrefix(data, pr.Prefix) {
			reply, err = pr.Fn(ctx, q)
			return err
		}
	}
	logging.With(ctx, r.log).Debug().Str("data", data).Msg("unknown callback data")
	return nil
}

func (r *RealTelegramBotAdapter) answer(ctx context.Context, queryID, alert string) {
	var cb tgbotapi.CallbackConfig
	if alert != "" {
		cb = tgbotapi.NewCallbackWithAlert(queryID, truncate(alert, maxAlertLen))
	} else {
		cb = tgbotapi.NewCallback(queryID, "")
	}
	if _, err := r.bot.Request(cb); err != nil {
		logging.With(ctx, r.log).Warn().Err(err).Msg("answer callback failed")
	}
}

// respond edits the message the button sits on, or sends a new message when
// the query carries none.
func (r *RealTelegramBotAdapter) respond(ctx context.Context, q *tgbotapi.CallbackQuery, text string, rows [][]adapter.InlineButton) error {
	if q.Message != nil && q.Message.Chat != nil {
		return r.editMessage(q.Message.Chat.ID, q.Message.MessageID, text, rows)
	}
	return r.SendButtons(ctx, q.From.ID, text, rows)
}

func (r *RealTelegramBotAdapter) promptCBRoute(cursor model.AdminCursor, textKey string) cbHandler {
	return func(ctx context.Context, q *tgbotapi.CallbackQuery) (callbackReply, error) {
		err := r.facade.Admin.Prompt(ctx, cursor)
		if errors.Is(err, domain.ErrKeyAlreadySet) {
			return callbackReply{Alert: r.tr.T("key_exists")}, nil
		}
		if err != nil {
			return callbackReply{}, err
		}
		return callbackReply{}, r.respond(ctx, q, r.tr.T(textKey), r.backMenu())
	}
}

func (r *RealTelegramBotAdapter) removeKeyCBRoute(ctx context.Context, q *tgbotapi.CallbackQuery) (callbackReply, error) {
	if err := r.facade.Admin.DeleteKey(ctx); err != nil {
		return callbackReply{}, err
	}
	return callbackReply{}, r.respond(ctx, q, r.tr.T("key_removed"), r.backMenu())
}

func (r *RealTelegramBotAdapter) listCountriesCBRoute(ctx context.Context, q *tgbotapi.CallbackQuery) (callbackReply, error) {
	countries, err := r.facade.Admin.ListCountries(ctx)
	if err != nil {
		return callbackReply{}, err
	}
	if countries.Len() == 0 {
		return callbackReply{Alert: r.tr.T("countries_empty")}, nil
	}
	var b strings.Builder
	b.WriteString(r.tr.T("countries_header"))
	for _, c := range countries {
		b.WriteString(r.tr.T("countries_item", c.CountryID, c.Code))
	}
	return callbackReply{Alert: b.String()}, nil
}

func (r *RealTelegramBotAdapter) backCBRoute(ctx context.Context, q *tgbotapi.CallbackQuery) (callbackReply, error) {
	if err := r.facade.Admin.Back(ctx); err != nil {
		return callbackReply{}, err
	}
	return callbackReply{}, r.respond(ctx, q, r.tr.T("menu_back_text"), r.mainMenu())
}

// codePrefixCBRoute polls for the SMS code. While it has not arrived the
// notice keeps its buttons so the press can be repeated.
func (r *RealTelegramBotAdapter) codePrefixCBRoute(ctx context.Context, q *tgbotapi.CallbackQuery) (callbackReply, error) {
	req, err := model.ParseCodeRequest(q.Data)
	if err != nil {
		return callbackReply{}, err
	}
	number := html.EscapeString(req.Number)

	res, err := r.facade.Numbers.RequestCode(ctx, req.OperationID)
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return callbackReply{Alert: r.tr.T("code_rate_limited")}, nil
	case errors.Is(err, domain.ErrMissingAPIKey):
		return callbackReply{Alert: r.tr.T("missing_key")}, nil
	case err != nil:
		logging.With(ctx, r.log).Warn().Err(err).Str("operation_id", req.OperationID).Msg("code poll failed")
	case res.Arrived:
		text := r.tr.T("code_arrived", number, html.EscapeString(res.Code))
		return callbackReply{}, r.respond(ctx, q, text, nil)
	}

	cancel := model.CancelRequest{OperationID: req.OperationID}
	rows := [][]adapter.InlineButton{{
		{Text: r.tr.T("btn_get_code"), Data: req.Data()},
		{Text: r.tr.T("btn_ban"), Data: cancel.Data()},
	}}
	return callbackReply{}, r.respond(ctx, q, r.tr.T("code_not_yet", number), rows)
}

func (r *RealTelegramBotAdapter) banPrefixCBRoute(ctx context.Context, q *tgbotapi.CallbackQuery) (callbackReply, error) {
	req, err := model.ParseCancelRequest(q.Data)
	if err != nil {
		return callbackReply{}, err
	}
	err = r.facade.Numbers.CancelNumber(ctx, req.OperationID)
	if err == nil {
		return callbackReply{}, r.respond(ctx, q, r.tr.T("ban_ok"), nil)
	}

	reason := "error"
	switch {
	case errors.Is(err, domain.ErrMissingAPIKey):
		reason = r.tr.T("missing_key")
	case domain.IsTransport(err):
		reason = "transport"
	default:
		if tok, ok := domain.IsUpstreamRejected(err); ok {
			reason = tok
		}
	}
	return callbackReply{}, r.respond(ctx, q, r.tr.T("ban_failed", html.EscapeString(reason)), nil)
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}
