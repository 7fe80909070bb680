package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sms-hunter/internal/domain"
	"sms-hunter/internal/domain/model"
	"sms-hunter/internal/domain/ports/adapter"
	"sms-hunter/internal/infra/logging"
	"sms-hunter/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// HunterConfig holds the loop timings and where notices go.
type HunterConfig struct {
	Service        string
	NotifyChatID   int64
	PassDelay      time.Duration
	FailureBackoff time.Duration
	ErrorCooldown  time.Duration
	SendDelay      time.Duration
	LockKey        string
	LockTTL        time.Duration
}

// Hunter is the background purchase loop. At most one loop goroutine runs per
// Hunter; the status document decides whether it keeps going.
//
//	Idle --Start--> Running --RequestStop--> Stopping --next reload--> Idle
type Hunter struct {
	cfg      HunterConfig
	store    *StatusStore
	provider adapter.NumberProviderFactory
	bot      adapter.TelegramBotAdapter
	notice   NoticeFormatter
	locker   adapter.Locker
	log      *zerolog.Logger

	parent context.Context

	mu      sync.Mutex
	running bool
	restart bool
	done    chan struct{}
	wake    chan struct{}
}

type HunterOption func(*Hunter)

// WithLocker makes the loop hold a lease so only one process hunts at a time.
func WithLocker(l adapter.Locker) HunterOption {
	return func(h *Hunter) { h.locker = l }
}

func WithNotice(f NoticeFormatter) HunterOption {
	return func(h *Hunter) {
		if f != nil {
			h.notice = f
		}
	}
}

// NewHunter binds the loop to parent; cancelling parent ends any running loop.
func NewHunter(
	parent context.Context,
	cfg HunterConfig,
	store *StatusStore,
	provider adapter.NumberProviderFactory,
	bot adapter.TelegramBotAdapter,
	logger *zerolog.Logger,
	opts ...HunterOption,
) *Hunter {
	if cfg.Service == "" {
		cfg.Service = "wa"
	}
	if cfg.LockKey == "" {
		cfg.LockKey = "sms_hunter:lease"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	h := &Hunter{
		cfg:      cfg,
		store:    store,
		provider: provider,
		bot:      bot,
		notice:   NewReservationNotice(plainTranslator{}),
		log:      logging.Component(logger, "Hunter"),
		parent:   parent,
		done:     closedChan(),
		wake:     make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Start launches the loop unless one is alive. It returns false when a loop
// is already running; that loop is then asked to re-check the document once
// more before exiting, so a start racing with its shutdown is not lost.
func (h *Hunter) Start() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		h.restart = true
		return false
	}
	if h.parent.Err() != nil {
		return false
	}
	h.running = true
	h.restart = false
	h.done = make(chan struct{})
	select {
	case <-h.wake:
	default:
	}
	metrics.SetHunterRunning(true)
	go h.run(h.done)
	return true
}

// RequestStop marks a working document as stopping and wakes the loop so it
// notices promptly. When no loop runs in this process the status goes
// straight to idle. It reports whether anything changed; calling it while
// idle leaves the document untouched.
func (h *Hunter) RequestStop(ctx context.Context) bool {
	requested := false
	running := h.Running()
	_, _ = h.store.Update(ctx, func(doc *model.StatusDocument) error {
		if !doc.Status.IsWork() {
			return errNoChange
		}
		if running {
			doc.Status = model.StatusStopping
		} else {
			doc.Status = model.StatusIdle
		}
		requested = true
		return nil
	})
	if requested {
		h.log.Info().Msg("stop requested")
		select {
		case h.wake <- struct{}{}:
		default:
		}
	}
	return requested
}

// Resume is called at boot: it restarts a loop the document says should be
// working and clears a "stopping" left behind by a previous process.
func (h *Hunter) Resume(ctx context.Context) bool {
	doc := h.store.Load(ctx)
	switch {
	case doc.Status.IsWork():
		h.log.Info().Msg("resuming purchase loop")
		return h.Start()
	case doc.Status.IsStopping() && !h.Running():
		_, _ = h.store.Update(ctx, func(doc *model.StatusDocument) error {
			if !doc.Status.IsStopping() {
				return errNoChange
			}
			doc.Status = model.StatusIdle
			return nil
		})
	}
	return false
}

func (h *Hunter) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// Wait blocks until the current loop, if any, has exited.
func (h *Hunter) Wait() {
	h.mu.Lock()
	done := h.done
	h.mu.Unlock()
	<-done
}

func (h *Hunter) run(done chan struct{}) {
	defer close(done)
	for {
		h.loop()

		h.mu.Lock()
		if h.restart && h.parent.Err() == nil {
			h.restart = false
			h.mu.Unlock()
			continue
		}
		h.running = false
		metrics.SetHunterRunning(false)
		h.mu.Unlock()
		return
	}
}

func (h *Hunter) loop() {
	ctx, cancel := context.WithCancel(h.parent)
	defer cancel()

	if err := h.precondition(h.store.Load(ctx)); err != nil {
		h.log.Warn().Err(err).Msg("purchase loop not started")
		h.settleIdle(ctx)
		return
	}

	release, err := h.acquireLease(ctx, cancel)
	if err != nil {
		h.log.Warn().Err(err).Msg("purchase loop not started")
		return
	}
	defer release()

	h.log.Info().Msg("purchase loop started")
	defer h.log.Info().Msg("purchase loop exited")

	for {
		doc := h.store.Load(ctx)
		if ctx.Err() != nil {
			return
		}
		if !doc.Status.IsWork() {
			if doc.Status.IsStopping() {
				doc.Status = model.StatusIdle
				h.store.Save(ctx, doc)
			}
			return
		}
		if err := h.precondition(doc); err != nil {
			h.log.Warn().Err(err).Msg("purchase loop stopping")
			h.settleIdle(ctx)
			return
		}

		aborted, err := h.pass(ctx, doc)
		switch {
		case err != nil:
			metrics.IncHunterPassError()
			h.log.Error().Err(err).Msg("pass failed")
			if !h.sleep(ctx, h.cfg.ErrorCooldown) {
				return
			}
			continue
		case aborted:
			// status changed mid-pass; reload right away
			continue
		}
		metrics.IncHunterPass()
		if !h.sleep(ctx, h.cfg.PassDelay) {
			return
		}
	}
}

// settleIdle moves a "work" or "stopping" status left by an exiting loop back
// to idle so the document never claims a loop that is gone.
func (h *Hunter) settleIdle(ctx context.Context) {
	_, _ = h.store.Update(ctx, func(doc *model.StatusDocument) error {
		if doc.Status == model.StatusIdle {
			return errNoChange
		}
		doc.Status = model.StatusIdle
		return nil
	})
}

func (h *Hunter) precondition(doc *model.StatusDocument) error {
	if !doc.HasKey() {
		return domain.ErrMissingAPIKey
	}
	if doc.Countries.Len() == 0 {
		return domain.ErrNoCountries
	}
	return nil
}

// pass walks the countries once. aborted is true when the live status stopped
// being "work" part way through. Panics are turned into errors.
func (h *Hunter) pass(ctx context.Context, doc *model.StatusDocument) (aborted bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in pass: %v", r)
		}
	}()

	provider := h.provider(doc.Key)
	for _, c := range doc.Countries {
		if ctx.Err() != nil {
			return true, nil
		}
		if live := h.store.Load(ctx); !live.Status.IsWork() {
			return true, nil
		}

		res, err := provider.ReserveNumber(ctx, c.CountryID, h.cfg.Service)
		if err == nil && !res.Complete() {
			err = &domain.ParseError{Op: "getNumber", Body: fmt.Sprintf("%+v", res)}
		}
		if err != nil {
			metrics.IncReserveFailure(failureReason(err))
			h.log.Warn().Err(err).Str("code", c.Code).Str("country", c.CountryID).Msg("reserve failed")
			if !h.sleep(ctx, h.cfg.FailureBackoff) {
				return true, nil
			}
			continue
		}

		metrics.IncNumberReserved(c.CountryID)
		h.log.Info().
			Str("country", c.CountryID).
			Str("operation_id", res.OperationID).
			Msg("number reserved")

		text, rows := h.notice(res)
		if err := h.bot.SendButtons(ctx, h.cfg.NotifyChatID, text, rows); err != nil {
			h.log.Error().Err(err).Str("operation_id", res.OperationID).Msg("notify failed")
		}
		if !h.sleep(ctx, h.cfg.SendDelay) {
			return true, nil
		}
	}
	return false, nil
}

// sleep waits d, returning early on a stop request. It returns false once ctx is done.
func (h *Hunter) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-h.wake:
		return true
	case <-t.C:
		return true
	}
}

// acquireLease takes the cross-process lease and keeps it fresh until release.
// Losing the lease cancels the loop.
func (h *Hunter) acquireLease(ctx context.Context, cancelLoop context.CancelFunc) (func(), error) {
	if h.locker == nil {
		return func() {}, nil
	}
	token, err := h.locker.TryLock(ctx, h.cfg.LockKey, h.cfg.LockTTL)
	if err != nil {
		return nil, err
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(h.cfg.LockTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := h.locker.Refresh(ctx, h.cfg.LockKey, token, h.cfg.LockTTL)
				if errors.Is(err, domain.ErrLockHeld) {
					h.log.Error().Msg("hunter lease lost")
					cancelLoop()
					return
				}
				if err != nil {
					h.log.Warn().Err(err).Msg("lease refresh failed")
				}
			}
		}
	}()

	return func() {
		close(stop)
		wg.Wait()
		uctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.locker.Unlock(uctx, h.cfg.LockKey, token); err != nil {
			h.log.Warn().Err(err).Msg("lease unlock failed")
		}
	}, nil
}

func failureReason(err error) string {
	if tok, ok := domain.IsUpstreamRejected(err); ok {
		return tok
	}
	switch {
	case domain.IsTransport(err):
		return "transport"
	case domain.IsParse(err):
		return "parse"
	}
	return "other"
}

func closedChan() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}
