package web

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"sms-hunter/internal/domain/model"
	"sms-hunter/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

// mockAdminUC embeds the interface; only what the API calls is implemented.
type mockAdminUC struct {
	usecase.AdminUseCase

	mu       sync.Mutex
	doc      *model.StatusDocument
	startErr error
	starts   int
	stops    int
}

func (m *mockAdminUC) Snapshot(ctx context.Context) *model.StatusDocument {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doc.Clone()
}

func (m *mockAdminUC) StartHunting(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	if m.startErr != nil {
		return false, m.startErr
	}
	if m.doc.Status.IsWork() {
		return false, nil
	}
	m.doc.Status = model.StatusWork
	return true, nil
}

func (m *mockAdminUC) StopHunting(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	if !m.doc.Status.IsWork() {
		return false, nil
	}
	m.doc.Status = model.StatusStopping
	return true, nil
}

type mockHunter struct{ running bool }

func (m *mockHunter) Running() bool                   { return m.running }
func (m *mockHunter) Resume(ctx context.Context) bool { return false }
