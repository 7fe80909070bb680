package usecase

import (
	"fmt"
	"html"

	"sms-hunter/internal/domain/model"
	"sms-hunter/internal/domain/ports/adapter"
)

// Translator renders localized strings; unknown keys come back unchanged.
type Translator interface {
	T(key string, args ...interface{}) string
}

// NoticeFormatter renders the chat message announcing a reserved number.
type NoticeFormatter func(res *model.Reservation) (string, [][]adapter.InlineButton)

// NewReservationNotice builds the notice with the two action buttons. Text is HTML.
func NewReservationNotice(tr Translator) NoticeFormatter {
	return func(res *model.Reservation) (string, [][]adapter.InlineButton) {
		num := html.EscapeString(res.Number)
		op := html.EscapeString(res.OperationID)
		text := tr.T("notice_number", num, op, WhatsAppLink(res.Number))

		code, cancel := model.ForReservation(res)
		rows := [][]adapter.InlineButton{{
			{Text: tr.T("btn_get_code"), Data: code.Data()},
			{Text: tr.T("btn_ban"), Data: cancel.Data()},
		}}
		return text, rows
	}
}

// WhatsAppLink is the wa.me chat link for a number in international form.
func WhatsAppLink(number string) string {
	return fmt.Sprintf("https://wa.me/+%s", number)
}

// plainTranslator is used when no translator is wired.
type plainTranslator struct{}

var plainTexts = map[string]string{
	"notice_number": "📱 Number: <code>%s</code>\n🆔 Operation: <code>%s</code>\n🔗 %s",
	"btn_get_code":  "Get code",
	"btn_ban":       "Ban number",
}

func (plainTranslator) T(key string, args ...interface{}) string {
	format, ok := plainTexts[key]
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}
