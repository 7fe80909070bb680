package adapter

import (
	"context"

	"sms-hunter/internal/domain/model"
)

// NumberProvider is the SMS number rental service.
//
// Errors are *domain.UpstreamRejectedError, *domain.TransportError or
// *domain.ParseError. Implementations never retry.
type NumberProvider interface {
	ReserveNumber(ctx context.Context, countryID, service string) (*model.Reservation, error)
	PollCode(ctx context.Context, operationID string) (string, error)
	CancelOperation(ctx context.Context, operationID string) error
}

// NumberProviderFactory binds a provider to the API key currently stored in
// the status document.
type NumberProviderFactory func(apiKey string) NumberProvider
