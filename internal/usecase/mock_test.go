//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"sms-hunter/internal/domain"
	"sms-hunter/internal/domain/model"
	"sms-hunter/internal/domain/ports/adapter"
	"sms-hunter/internal/domain/ports/repository"
)

// -----------------------------
// Utilities
// -----------------------------

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func seededDoc(status model.RunStatus, key string, countries ...model.Country) *model.StatusDocument {
	doc := model.NewStatusDocument()
	doc.Status = status
	doc.Key = key
	for _, c := range countries {
		doc.Countries.Add(c.Code, c.CountryID)
	}
	return doc
}

// =============================
// Repositories
// =============================

// ---- In-memory StatusRepository ----

type MockStatusRepo struct {
	mu      sync.Mutex
	doc     *model.StatusDocument
	saves   int
	LoadErr error
	SaveErr error
}

var _ repository.StatusRepository = (*MockStatusRepo)(nil)

func NewMockStatusRepo(doc *model.StatusDocument) *MockStatusRepo {
	if doc == nil {
		doc = model.NewStatusDocument()
	}
	return &MockStatusRepo{doc: doc.Clone()}
}

func (m *MockStatusRepo) Load(ctx context.Context) (*model.StatusDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	return m.doc.Clone(), nil
}

func (m *MockStatusRepo) Save(ctx context.Context, doc *model.StatusDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.doc = doc.Clone()
	m.saves++
	return nil
}

func (m *MockStatusRepo) Doc() *model.StatusDocument {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doc.Clone()
}

func (m *MockStatusRepo) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Set replaces the stored document as another process would.
func (m *MockStatusRepo) Set(fn func(doc *model.StatusDocument)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.doc)
}

// =============================
// Adapters
// =============================

// ---- Mock NumberProvider ----

type MockNumberProvider struct {
	mu       sync.Mutex
	keys     []string
	reserved []string

	ReserveNumberFunc   func(ctx context.Context, countryID, service string) (*model.Reservation, error)
	PollCodeFunc        func(ctx context.Context, operationID string) (string, error)
	CancelOperationFunc func(ctx context.Context, operationID string) error
}

var _ adapter.NumberProvider = (*MockNumberProvider)(nil)

// Factory records the key each binding was made with.
func (m *MockNumberProvider) Factory() adapter.NumberProviderFactory {
	return func(apiKey string) adapter.NumberProvider {
		m.mu.Lock()
		m.keys = append(m.keys, apiKey)
		m.mu.Unlock()
		return m
	}
}

func (m *MockNumberProvider) ReserveNumber(ctx context.Context, countryID, service string) (*model.Reservation, error) {
	m.mu.Lock()
	m.reserved = append(m.reserved, countryID)
	m.mu.Unlock()
	if m.ReserveNumberFunc != nil {
		return m.ReserveNumberFunc(ctx, countryID, service)
	}
	return nil, &domain.UpstreamRejectedError{Op: "getNumber", Token: "NO_NUMBERS", Body: "NO_NUMBERS"}
}

func (m *MockNumberProvider) PollCode(ctx context.Context, operationID string) (string, error) {
	if m.PollCodeFunc != nil {
		return m.PollCodeFunc(ctx, operationID)
	}
	return "0", nil
}

func (m *MockNumberProvider) CancelOperation(ctx context.Context, operationID string) error {
	if m.CancelOperationFunc != nil {
		return m.CancelOperationFunc(ctx, operationID)
	}
	return nil
}

func (m *MockNumberProvider) Reserved() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.reserved...)
}

func (m *MockNumberProvider) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.keys...)
}

// ---- Mock TelegramBotAdapter ----

type SentMessage struct {
	ChatID int64
	Text   string
	Rows   [][]adapter.InlineButton
}

type MockTelegramBot struct {
	mu   sync.Mutex
	Sent []SentMessage

	SendButtonsFunc func(ctx context.Context, chatID int64, text string, rows [][]adapter.InlineButton) error
}

var _ adapter.TelegramBotAdapter = (*MockTelegramBot)(nil)

func (m *MockTelegramBot) SendMessage(ctx context.Context, chatID int64, text string) error {
	return m.SendButtons(ctx, chatID, text, nil)
}

func (m *MockTelegramBot) SendButtons(ctx context.Context, chatID int64, text string, rows [][]adapter.InlineButton) error {
	m.mu.Lock()
	m.Sent = append(m.Sent, SentMessage{ChatID: chatID, Text: text, Rows: rows})
	m.mu.Unlock()
	if m.SendButtonsFunc != nil {
		return m.SendButtonsFunc(ctx, chatID, text, rows)
	}
	return nil
}

func (m *MockTelegramBot) Messages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.Sent...)
}

// ---- Mock Locker ----

type MockLocker struct {
	mu       sync.Mutex
	held     map[string]string
	unlocked int

	TryLockFunc func(ctx context.Context, key string, ttl time.Duration) (string, error)
	RefreshFunc func(ctx context.Context, key, token string, ttl time.Duration) error
}

var _ adapter.Locker = (*MockLocker)(nil)

func NewMockLocker() *MockLocker {
	return &MockLocker{held: make(map[string]string)}
}

func (m *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if m.TryLockFunc != nil {
		return m.TryLockFunc(ctx, key, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[key]; ok {
		return "", domain.ErrLockHeld
	}
	m.held[key] = "token-" + key
	return m.held[key], nil
}

func (m *MockLocker) Refresh(ctx context.Context, key, token string, ttl time.Duration) error {
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, key, token, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] != token {
		return domain.ErrLockHeld
	}
	return nil
}

func (m *MockLocker) Unlock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] == token {
		delete(m.held, key)
		m.unlocked++
	}
	return nil
}

func (m *MockLocker) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[key]
	return ok
}

// ---- Mock Limiter ----

type MockLimiter struct {
	mu    sync.Mutex
	keys  []string
	count map[string]int
	Err   error
}

var _ adapter.Limiter = (*MockLimiter)(nil)

func (m *MockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	if m.Err != nil {
		return false, m.Err
	}
	if m.count == nil {
		m.count = make(map[string]int)
	}
	m.count[key]++
	return m.count[key] <= limit, nil
}
