package application

import (
	"context"

	"sms-hunter/internal/usecase"
)

// BotFacade is the application context handed to every transport (Telegram
// handlers, the webhook server and the admin web API).
type BotFacade struct {
	Admin   usecase.AdminUseCase
	Numbers usecase.NumberUseCase
	Hunter  HunterIface

	AdminID      int64
	NotifyChatID int64
}

func NewBotFacade(admin usecase.AdminUseCase, numbers usecase.NumberUseCase, hunter HunterIface, adminID, notifyChatID int64) *BotFacade {
	return &BotFacade{
		Admin:        admin,
		Numbers:      numbers,
		Hunter:       hunter,
		AdminID:      adminID,
		NotifyChatID: notifyChatID,
	}
}

// IsAdmin is the single privileged-user gate.
func (b *BotFacade) IsAdmin(tgID int64) bool {
	return b.AdminID != 0 && tgID == b.AdminID
}

// CountryView is one configured country.
type CountryView struct {
	Code      string `json:"code"`
	CountryID string `json:"country_id"`
}

// StatusView is the status document as shown outside the bot; the key is redacted.
type StatusView struct {
	Status    string        `json:"status"`
	Running   bool          `json:"running"`
	HasKey    bool          `json:"has_key"`
	KeyHint   string        `json:"key_hint,omitempty"`
	Countries []CountryView `json:"countries"`
	Admin     string        `json:"admin"`
}

func (b *BotFacade) Status(ctx context.Context) StatusView {
	doc := b.Admin.Snapshot(ctx)
	v := StatusView{
		Status:    doc.Status.String(),
		HasKey:    doc.HasKey(),
		KeyHint:   KeyHint(doc.Key),
		Countries: make([]CountryView, 0, doc.Countries.Len()),
		Admin:     doc.Admin.String(),
	}
	if b.Hunter != nil {
		v.Running = b.Hunter.Running()
	}
	for _, c := range doc.Countries {
		v.Countries = append(v.Countries, CountryView{Code: c.Code, CountryID: c.CountryID})
	}
	return v
}

// KeyHint keeps the last four characters of a key.
func KeyHint(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
