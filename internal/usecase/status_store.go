package usecase

import (
	"context"
	"errors"

	"sms-hunter/internal/domain/model"
	"sms-hunter/internal/domain/ports/repository"
	"sms-hunter/internal/infra/logging"
	"sms-hunter/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// errNoChange aborts an Update without saving and without reporting an error.
var errNoChange = errors.New("no change")

// StatusStore is the best-effort access policy over a StatusRepository:
// loads never fail and failed saves are logged, counted and swallowed.
// There is no locking; concurrent Update calls may drop each other's writes.
type StatusStore struct {
	repo repository.StatusRepository
	log  *zerolog.Logger
}

func NewStatusStore(repo repository.StatusRepository, logger *zerolog.Logger) *StatusStore {
	return &StatusStore{repo: repo, log: logging.Component(logger, "StatusStore")}
}

// Load returns the current document, or an empty one if it cannot be read.
func (s *StatusStore) Load(ctx context.Context) *model.StatusDocument {
	doc, err := s.repo.Load(ctx)
	if err != nil {
		metrics.IncStatusStoreFailure("load")
		s.log.Error().Err(err).Msg("status load failed; using empty document")
		return model.NewStatusDocument()
	}
	if doc == nil {
		return model.NewStatusDocument()
	}
	return doc
}

// Save writes the whole document and reports whether it was persisted.
func (s *StatusStore) Save(ctx context.Context, doc *model.StatusDocument) bool {
	if err := s.repo.Save(ctx, doc); err != nil {
		metrics.IncStatusStoreFailure("save")
		s.log.Error().Err(err).
			Str("status", doc.Status.String()).
			Str("admin", doc.Admin.String()).
			Msg("status save failed; change not persisted")
		return false
	}
	return true
}

// Update loads, applies fn and saves. An error from fn skips the save and is
// returned, except errNoChange which skips the save silently.
func (s *StatusStore) Update(ctx context.Context, fn func(doc *model.StatusDocument) error) (*model.StatusDocument, error) {
	doc := s.Load(ctx)
	if err := fn(doc); err != nil {
		if errors.Is(err, errNoChange) {
			return doc, nil
		}
		return doc, err
	}
	s.Save(ctx, doc)
	return doc, nil
}
