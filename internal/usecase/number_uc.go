package usecase

import (
	"context"
	"time"

	"sms-hunter/internal/domain"
	"sms-hunter/internal/domain/ports/adapter"
	"sms-hunter/internal/infra/logging"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ NumberUseCase = (*numberUC)(nil)

// CodeNotYet is the code the provider reports before an SMS arrives.
const CodeNotYet = "0"

// CodeResult is the answer to a "get code" button press. When Arrived is
// false, Reason carries the upstream token or "parse" if there is one.
type CodeResult struct {
	Code    string
	Arrived bool
	Reason  string
}

// NumberUseCase serves the buttons attached to a reserved-number notice.
type NumberUseCase interface {
	RequestCode(ctx context.Context, operationID string) (CodeResult, error)
	CancelNumber(ctx context.Context, operationID string) error
}

// PollLimit caps "get code" presses per operation.
type PollLimit struct {
	Limit  int
	Window time.Duration
}

type numberUC struct {
	store    *StatusStore
	provider adapter.NumberProviderFactory
	limiter  adapter.Limiter
	limit    PollLimit
	log      *zerolog.Logger
}

// NewNumberUseCase builds the use case; limiter may be nil.
func NewNumberUseCase(store *StatusStore, provider adapter.NumberProviderFactory, limiter adapter.Limiter, limit PollLimit, logger *zerolog.Logger) *numberUC {
	return &numberUC{
		store:    store,
		provider: provider,
		limiter:  limiter,
		limit:    limit,
		log:      logging.Component(logger, "NumberUC"),
	}
}

func (n *numberUC) RequestCode(ctx context.Context, operationID string) (CodeResult, error) {
	defer logging.TraceDuration(n.log, "NumberUC.RequestCode")()

	if operationID == "" {
		return CodeResult{}, domain.ErrInvalidArgument
	}
	if err := n.allow(ctx, operationID); err != nil {
		return CodeResult{}, err
	}
	p, err := n.bind(ctx)
	if err != nil {
		return CodeResult{}, err
	}

	code, err := p.PollCode(ctx, operationID)
	if err != nil {
		if tok, ok := domain.IsUpstreamRejected(err); ok {
			return CodeResult{Reason: tok}, nil
		}
		if domain.IsParse(err) {
			n.log.Warn().Err(err).Str("operation_id", operationID).Msg("unexpected poll response")
			return CodeResult{Reason: "parse"}, nil
		}
		return CodeResult{}, err
	}
	if code == "" || code == CodeNotYet {
		return CodeResult{}, nil
	}
	n.log.Info().Str("operation_id", operationID).Msg("code arrived")
	return CodeResult{Code: code, Arrived: true}, nil
}

func (n *numberUC) CancelNumber(ctx context.Context, operationID string) error {
	defer logging.TraceDuration(n.log, "NumberUC.CancelNumber")()

	if operationID == "" {
		return domain.ErrInvalidArgument
	}
	p, err := n.bind(ctx)
	if err != nil {
		return err
	}
	if err := p.CancelOperation(ctx, operationID); err != nil {
		n.log.Warn().Err(err).Str("operation_id", operationID).Msg("cancel failed")
		return err
	}
	n.log.Info().Str("operation_id", operationID).Msg("number cancelled")
	return nil
}

func (n *numberUC) bind(ctx context.Context) (adapter.NumberProvider, error) {
	doc := n.store.Load(ctx)
	if !doc.HasKey() {
		return nil, domain.ErrMissingAPIKey
	}
	return n.provider(doc.Key), nil
}

// allow fails open when the limiter itself errors.
func (n *numberUC) allow(ctx context.Context, operationID string) error {
	if n.limiter == nil || n.limit.Limit <= 0 {
		return nil
	}
	ok, err := n.limiter.Allow(ctx, "rate_limit:code:"+operationID, n.limit.Limit, n.limit.Window)
	if err != nil {
		n.log.Warn().Err(err).Msg("rate limiter unavailable")
		return nil
	}
	if !ok {
		return domain.ErrRateLimited
	}
	return nil
}
