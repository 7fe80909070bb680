package repository

import (
	"context"

	"sms-hunter/internal/domain/model"
)

// StatusRepository persists the single shared status document.
//
// Load returns an empty document and a nil error when nothing was stored yet.
// A stored document that cannot be decoded yields domain.ErrCorruptStatus.
type StatusRepository interface {
	Load(ctx context.Context) (*model.StatusDocument, error)
	Save(ctx context.Context, doc *model.StatusDocument) error
}
