package usecase

import (
	"context"
	"strings"

	"sms-hunter/internal/domain"
	"sms-hunter/internal/domain/model"
	"sms-hunter/internal/infra/logging"
	"sms-hunter/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ AdminUseCase = (*adminUC)(nil)

// TextOutcome tells the transport what a free-text input did.
type TextOutcome struct {
	Cursor    model.AdminCursor // cursor that was consumed
	Code      string            // generated code for an added country
	CountryID string
}

// AdminUseCase covers everything the privileged user can do from the chat menu.
type AdminUseCase interface {
	Begin(ctx context.Context) error
	StartHunting(ctx context.Context) (launched bool, err error)
	StopHunting(ctx context.Context) (requested bool, err error)
	Prompt(ctx context.Context, cursor model.AdminCursor) error
	DeleteKey(ctx context.Context) error
	ListCountries(ctx context.Context) (model.Countries, error)
	Back(ctx context.Context) error
	Snapshot(ctx context.Context) *model.StatusDocument
	HandleText(ctx context.Context, text string) (TextOutcome, error)
}

type adminUC struct {
	store  *StatusStore
	hunter *Hunter
	log    *zerolog.Logger
}

func NewAdminUseCase(store *StatusStore, hunter *Hunter, logger *zerolog.Logger) *adminUC {
	return &adminUC{
		store:  store,
		hunter: hunter,
		log:    logging.Component(logger, "AdminUC"),
	}
}

// Begin resets any half-finished prompt so the menu starts clean.
func (a *adminUC) Begin(ctx context.Context) error {
	defer logging.TraceDuration(a.log, "AdminUC.Begin")()
	_, err := a.store.Update(ctx, func(doc *model.StatusDocument) error {
		if doc.Admin == model.CursorIdle {
			return errNoChange
		}
		doc.Admin = model.CursorIdle
		return nil
	})
	return err
}

// StartHunting marks the document as working and launches the loop when none
// is alive. The loop may still exit straight away when the key or countries
// are missing, so those are refused here first.
func (a *adminUC) StartHunting(ctx context.Context) (bool, error) {
	defer logging.TraceDuration(a.log, "AdminUC.StartHunting")()

	_, err := a.store.Update(ctx, func(doc *model.StatusDocument) error {
		if !doc.HasKey() {
			return domain.ErrMissingAPIKey
		}
		if doc.Countries.Len() == 0 {
			return domain.ErrNoCountries
		}
		if doc.Status.IsWork() {
			return errNoChange
		}
		doc.Status = model.StatusWork
		return nil
	})
	if err != nil {
		metrics.IncAdminAction("start", "refused")
		return false, err
	}
	launched := a.hunter.Start()
	metrics.IncAdminAction("start", "ok")
	a.log.Info().Bool("launched", launched).Msg("hunting started")
	return launched, nil
}

// StopHunting is idempotent; requested is false when nothing was working.
func (a *adminUC) StopHunting(ctx context.Context) (bool, error) {
	defer logging.TraceDuration(a.log, "AdminUC.StopHunting")()
	requested := a.hunter.RequestStop(ctx)
	metrics.IncAdminAction("stop", "ok")
	return requested, nil
}

// Prompt arms the cursor for the next free-text message.
func (a *adminUC) Prompt(ctx context.Context, cursor model.AdminCursor) error {
	if cursor == model.CursorIdle {
		return domain.ErrInvalidArgument
	}
	_, err := a.store.Update(ctx, func(doc *model.StatusDocument) error {
		if cursor == model.CursorAwaitingAPIKey && doc.HasKey() {
			return domain.ErrKeyAlreadySet
		}
		doc.Admin = cursor
		return nil
	})
	return err
}

func (a *adminUC) DeleteKey(ctx context.Context) error {
	defer logging.TraceDuration(a.log, "AdminUC.DeleteKey")()
	_, err := a.store.Update(ctx, func(doc *model.StatusDocument) error {
		doc.Key = ""
		return nil
	})
	if err == nil {
		metrics.IncAdminAction("delete_key", "ok")
		a.log.Info().Msg("api key deleted")
	}
	return err
}

func (a *adminUC) ListCountries(ctx context.Context) (model.Countries, error) {
	return a.store.Load(ctx).Countries, nil
}

// Back drops the pending prompt and returns to the menu.
func (a *adminUC) Back(ctx context.Context) error {
	return a.Begin(ctx)
}

func (a *adminUC) Snapshot(ctx context.Context) *model.StatusDocument {
	return a.store.Load(ctx)
}

// HandleText consumes one free-text message according to the cursor. The
// cursor is back to idle afterwards whatever the outcome.
func (a *adminUC) HandleText(ctx context.Context, text string) (TextOutcome, error) {
	defer logging.TraceDuration(a.log, "AdminUC.HandleText")()

	text = strings.TrimSpace(text)
	var out TextOutcome
	var opErr error

	_, err := a.store.Update(ctx, func(doc *model.StatusDocument) error {
		out.Cursor = doc.Admin
		switch doc.Admin {
		case model.CursorIdle:
			return domain.ErrNoPendingInput
		case model.CursorAwaitingCountry:
			if text == "" {
				opErr = domain.ErrEmptyInput
				break
			}
			out.Code = NewCountryCode(doc.Countries)
			out.CountryID = text
			doc.Countries.Add(out.Code, text)
		case model.CursorAwaitingDeleteCode:
			if id, ok := doc.Countries.Get(text); ok {
				out.Code, out.CountryID = text, id
				doc.Countries.Delete(text)
			} else {
				opErr = domain.ErrCountryNotFound
			}
		case model.CursorAwaitingAPIKey:
			if text == "" {
				opErr = domain.ErrEmptyInput
				break
			}
			doc.Key = text
		}
		doc.Admin = model.CursorIdle
		return nil
	})
	if err != nil {
		return out, err
	}

	action := out.Cursor.String()
	if opErr != nil {
		metrics.IncAdminAction(action, "failed")
		a.log.Warn().Err(opErr).Str("cursor", action).Msg("admin input rejected")
		return out, opErr
	}
	metrics.IncAdminAction(action, "ok")
	a.log.Info().Str("cursor", action).Str("code", out.Code).Msg("admin input applied")
	return out, nil
}

// NewCountryCode returns an 8-char code not yet used in cs.
func NewCountryCode(cs model.Countries) string {
	for {
		code := uuid.NewString()[:8]
		if !cs.Has(code) {
			return code
		}
	}
}
