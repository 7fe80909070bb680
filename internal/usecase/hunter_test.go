//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"sms-hunter/internal/domain"
	"sms-hunter/internal/domain/model"
	"sms-hunter/internal/domain/ports/adapter"
	"sms-hunter/internal/usecase"
)

const notifyChat = int64(-100123)

func fastHunterConfig() usecase.HunterConfig {
	return usecase.HunterConfig{
		Service:        "wa",
		NotifyChatID:   notifyChat,
		PassDelay:      5 * time.Millisecond,
		FailureBackoff: time.Millisecond,
		ErrorCooldown:  5 * time.Millisecond,
		SendDelay:      time.Millisecond,
		LockTTL:        30 * time.Millisecond,
	}
}

type hunterFixture struct {
	repo     *MockStatusRepo
	store    *usecase.StatusStore
	provider *MockNumberProvider
	bot      *MockTelegramBot
	hunter   *usecase.Hunter
	cancel   context.CancelFunc
}

func newHunterFixture(t *testing.T, doc *model.StatusDocument, opts ...usecase.HunterOption) *hunterFixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	f := &hunterFixture{
		repo:     NewMockStatusRepo(doc),
		provider: &MockNumberProvider{},
		bot:      &MockTelegramBot{},
		cancel:   cancel,
	}
	f.store = usecase.NewStatusStore(f.repo, newTestLogger())
	f.hunter = usecase.NewHunter(ctx, fastHunterConfig(), f.store, f.provider.Factory(), f.bot, newTestLogger(), opts...)
	t.Cleanup(func() {
		cancel()
		waitExit(t, f.hunter)
	})
	return f
}

func waitExit(t *testing.T, h *usecase.Hunter) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		h.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("hunter loop did not exit")
	}
}

func TestHunter_EndToEnd_StartNotifyStop(t *testing.T) {
	doc := seededDoc(model.StatusWork, "KEY", model.Country{Code: "ab12cd34", CountryID: "US"})
	f := newHunterFixture(t, doc)

	var ops int64
	f.provider.ReserveNumberFunc = func(ctx context.Context, countryID, service string) (*model.Reservation, error) {
		if service != "wa" {
			t.Errorf("expected service wa, got %q", service)
		}
		n := atomic.AddInt64(&ops, 1)
		if n > 1 {
			return nil, &domain.UpstreamRejectedError{Token: "NO_NUMBERS"}
		}
		return &model.Reservation{OperationID: "12345", Number: "19995550000"}, nil
	}

	if !f.hunter.Start() {
		t.Fatal("expected Start to launch the loop")
	}
	waitFor(t, "a notification", func() bool { return len(f.bot.Messages()) == 1 })

	msg := f.bot.Messages()[0]
	if msg.ChatID != notifyChat {
		t.Errorf("expected notify chat %d, got %d", notifyChat, msg.ChatID)
	}
	for _, want := range []string{"19995550000", "12345", "https://wa.me/+19995550000"} {
		if !strings.Contains(msg.Text, want) {
			t.Errorf("notice %q missing %q", msg.Text, want)
		}
	}
	if len(msg.Rows) != 1 || len(msg.Rows[0]) != 2 {
		t.Fatalf("expected one row of two buttons, got %+v", msg.Rows)
	}
	if got := msg.Rows[0][0].Data; got != "getCode#12345#19995550000" {
		t.Errorf("unexpected code button data %q", got)
	}
	if got := msg.Rows[0][1].Data; got != "ban#12345" {
		t.Errorf("unexpected ban button data %q", got)
	}

	if !f.hunter.RequestStop(context.Background()) {
		t.Fatal("expected stop to be requested")
	}
	waitExit(t, f.hunter)

	if f.hunter.Running() {
		t.Error("expected loop to be stopped")
	}
	if st := f.repo.Doc().Status; st != model.StatusIdle {
		t.Errorf("expected status cleared to idle, got %q", st)
	}
	for _, c := range f.provider.Reserved() {
		if c != "US" {
			t.Errorf("unexpected country %q reserved", c)
		}
	}
	if keys := f.provider.Keys(); len(keys) == 0 || keys[0] != "KEY" {
		t.Errorf("expected provider bound to stored key, got %v", keys)
	}
}

func TestHunter_NotWorking_ExitsWithoutUpstreamCalls(t *testing.T) {
	for _, st := range []model.RunStatus{model.StatusIdle, model.StatusStopping} {
		t.Run(st.String(), func(t *testing.T) {
			doc := seededDoc(st, "KEY", model.Country{Code: "c1", CountryID: "US"})
			f := newHunterFixture(t, doc)

			f.hunter.Start()
			waitExit(t, f.hunter)

			if n := len(f.provider.Reserved()); n != 0 {
				t.Errorf("expected no reserve calls, got %d", n)
			}
			if got := f.repo.Doc().Status; got != model.StatusIdle {
				t.Errorf("expected idle status, got %q", got)
			}
		})
	}
}

func TestHunter_PreconditionFailure(t *testing.T) {
	tests := []struct {
		name string
		doc  *model.StatusDocument
	}{
		{"missing key", seededDoc(model.StatusWork, "", model.Country{Code: "c1", CountryID: "US"})},
		{"no countries", seededDoc(model.StatusWork, "KEY")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHunterFixture(t, tt.doc)
			f.hunter.Start()
			waitExit(t, f.hunter)

			if n := len(f.provider.Reserved()); n != 0 {
				t.Errorf("expected no reserve calls, got %d", n)
			}
			if got := f.repo.Doc().Status; got != model.StatusIdle {
				t.Errorf("expected status reset to idle, got %q", got)
			}
		})
	}
}

func TestHunter_KeyClearedMidRun(t *testing.T) {
	doc := seededDoc(model.StatusWork, "KEY", model.Country{Code: "c1", CountryID: "US"})
	f := newHunterFixture(t, doc)

	f.hunter.Start()
	waitFor(t, "first reserve", func() bool { return len(f.provider.Reserved()) > 0 })

	f.repo.Set(func(doc *model.StatusDocument) { doc.Key = "" })
	waitExit(t, f.hunter)

	if f.hunter.Running() {
		t.Fatal("expected loop to exit without a key")
	}
	if got := f.repo.Doc().Status; got != model.StatusIdle {
		t.Fatalf("expected status reset to idle, got %q", got)
	}
	if f.hunter.RequestStop(context.Background()) {
		t.Error("expected nothing to stop after the loop exited")
	}
	if got := f.repo.Doc().Status; got != model.StatusIdle {
		t.Errorf("expected status to stay idle, got %q", got)
	}
}

func TestHunter_RequestStopWithoutLoop(t *testing.T) {
	doc := seededDoc(model.StatusWork, "KEY", model.Country{Code: "c1", CountryID: "US"})
	f := newHunterFixture(t, doc)

	if !f.hunter.RequestStop(context.Background()) {
		t.Fatal("expected stop to be requested for a working document")
	}
	if got := f.repo.Doc().Status; got != model.StatusIdle {
		t.Errorf("expected idle with no loop to finish the stop, got %q", got)
	}
}

func TestHunter_StartIsNoopWhileRunning(t *testing.T) {
	doc := seededDoc(model.StatusWork, "KEY", model.Country{Code: "c1", CountryID: "US"})
	f := newHunterFixture(t, doc)

	if !f.hunter.Start() {
		t.Fatal("first Start should launch")
	}
	if f.hunter.Start() {
		t.Error("second Start should be a no-op")
	}
	if !f.hunter.Running() {
		t.Error("expected Running to be true")
	}
	f.hunter.RequestStop(context.Background())
	waitExit(t, f.hunter)
}

func TestHunter_RequestStopWhenIdle(t *testing.T) {
	doc := seededDoc(model.StatusIdle, "KEY", model.Country{Code: "c1", CountryID: "US"})
	f := newHunterFixture(t, doc)

	if f.hunter.RequestStop(context.Background()) {
		t.Error("expected no stop request when idle")
	}
	if f.repo.Saves() != 0 {
		t.Errorf("expected no save, got %d", f.repo.Saves())
	}
	if got := f.repo.Doc().Status; got != model.StatusIdle {
		t.Errorf("expected idle status, got %q", got)
	}
}

func TestHunter_ExternalStatusClearStopsLoop(t *testing.T) {
	doc := seededDoc(model.StatusWork, "KEY", model.Country{Code: "c1", CountryID: "US"})
	f := newHunterFixture(t, doc)

	f.hunter.Start()
	waitFor(t, "first reserve", func() bool { return len(f.provider.Reserved()) > 0 })

	f.repo.Set(func(doc *model.StatusDocument) { doc.Status = model.StatusIdle })
	waitExit(t, f.hunter)
	if got := f.repo.Doc().Status; got != model.StatusIdle {
		t.Errorf("expected idle status, got %q", got)
	}
}

func TestHunter_FailuresAndPanicsDoNotKillLoop(t *testing.T) {
	doc := seededDoc(model.StatusWork, "KEY",
		model.Country{Code: "c1", CountryID: "US"},
		model.Country{Code: "c2", CountryID: "DZ"},
	)
	f := newHunterFixture(t, doc)

	var calls int64
	f.provider.ReserveNumberFunc = func(ctx context.Context, countryID, service string) (*model.Reservation, error) {
		switch atomic.AddInt64(&calls, 1) {
		case 1:
			panic("boom")
		case 2:
			return nil, &domain.TransportError{Op: "getNumber", Err: errors.New("timeout")}
		case 3:
			return &model.Reservation{OperationID: "7"}, nil // incomplete
		}
		return &model.Reservation{OperationID: "8", Number: "2135550000"}, nil
	}
	f.bot.SendButtonsFunc = func(ctx context.Context, chatID int64, text string, rows [][]adapter.InlineButton) error {
		return errors.New("telegram down")
	}

	f.hunter.Start()
	waitFor(t, "a notification after failures", func() bool { return len(f.bot.Messages()) > 0 })
	if !f.hunter.Running() {
		t.Error("expected loop to survive failures")
	}
	if got := f.bot.Messages()[0].Rows[0][1].Data; got != "ban#8" {
		t.Errorf("expected first notice for op 8, got %q", got)
	}

	f.hunter.RequestStop(context.Background())
	waitExit(t, f.hunter)
}

func TestHunter_LeaseHeldElsewhere(t *testing.T) {
	doc := seededDoc(model.StatusWork, "KEY", model.Country{Code: "c1", CountryID: "US"})
	locker := NewMockLocker()
	if _, err := locker.TryLock(context.Background(), "sms_hunter:lease", time.Minute); err != nil {
		t.Fatal(err)
	}
	f := newHunterFixture(t, doc, usecase.WithLocker(locker))

	f.hunter.Start()
	waitExit(t, f.hunter)

	if n := len(f.provider.Reserved()); n != 0 {
		t.Errorf("expected no reserve calls, got %d", n)
	}
	if got := f.repo.Doc().Status; got != model.StatusWork {
		t.Errorf("expected status left as work, got %q", got)
	}
}

func TestHunter_LeaseReleasedOnExit(t *testing.T) {
	doc := seededDoc(model.StatusWork, "KEY", model.Country{Code: "c1", CountryID: "US"})
	locker := NewMockLocker()
	f := newHunterFixture(t, doc, usecase.WithLocker(locker))

	f.hunter.Start()
	waitFor(t, "lease", func() bool { return locker.Held("sms_hunter:lease") })
	waitFor(t, "reserve", func() bool { return len(f.provider.Reserved()) > 0 })

	f.hunter.RequestStop(context.Background())
	waitExit(t, f.hunter)
	if locker.Held("sms_hunter:lease") {
		t.Error("expected lease released after exit")
	}
}

func TestHunter_LeaseLostCancelsLoop(t *testing.T) {
	doc := seededDoc(model.StatusWork, "KEY", model.Country{Code: "c1", CountryID: "US"})
	locker := NewMockLocker()
	locker.RefreshFunc = func(ctx context.Context, key, token string, ttl time.Duration) error {
		return domain.ErrLockHeld
	}
	f := newHunterFixture(t, doc, usecase.WithLocker(locker))

	f.hunter.Start()
	waitExit(t, f.hunter)
	if f.hunter.Running() {
		t.Error("expected loop to stop after losing the lease")
	}
}

func TestHunter_Resume(t *testing.T) {
	t.Run("work restarts the loop", func(t *testing.T) {
		doc := seededDoc(model.StatusWork, "KEY", model.Country{Code: "c1", CountryID: "US"})
		f := newHunterFixture(t, doc)
		if !f.hunter.Resume(context.Background()) {
			t.Fatal("expected Resume to launch the loop")
		}
		waitFor(t, "reserve", func() bool { return len(f.provider.Reserved()) > 0 })
		f.hunter.RequestStop(context.Background())
		waitExit(t, f.hunter)
	})

	t.Run("stale stopping is cleared", func(t *testing.T) {
		doc := seededDoc(model.StatusStopping, "KEY", model.Country{Code: "c1", CountryID: "US"})
		f := newHunterFixture(t, doc)
		if f.hunter.Resume(context.Background()) {
			t.Error("expected no loop for a stopping document")
		}
		if got := f.repo.Doc().Status; got != model.StatusIdle {
			t.Errorf("expected idle status, got %q", got)
		}
	})
}

func TestHunter_ParentCancelEndsLoop(t *testing.T) {
	doc := seededDoc(model.StatusWork, "KEY", model.Country{Code: "c1", CountryID: "US"})
	f := newHunterFixture(t, doc)

	f.hunter.Start()
	waitFor(t, "reserve", func() bool { return len(f.provider.Reserved()) > 0 })
	f.cancel()
	waitExit(t, f.hunter)

	if got := f.repo.Doc().Status; got != model.StatusWork {
		t.Errorf("expected status to stay work for resume, got %q", got)
	}
	if f.hunter.Start() {
		t.Error("expected Start to refuse after shutdown")
	}
}
