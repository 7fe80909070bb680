//go:build !integration

package postgres

import (
	"context"
	"sync"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
)

// fakeRow implements pgx.Row.
type fakeRow struct {
	ScanFunc func(dest ...interface{}) error
}

func (r fakeRow) Scan(dest ...interface{}) error { return r.ScanFunc(dest...) }

// mockExecutor records statements and delegates to optional Func hooks.
type mockExecutor struct {
	mu    sync.Mutex
	execs []string

	QueryRowFunc func(ctx context.Context, sql string, args ...interface{}) pgx.Row
	ExecFunc     func(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func (m *mockExecutor) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return m.QueryRowFunc(ctx, sql, args...)
}

func (m *mockExecutor) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	m.mu.Lock()
	m.execs = append(m.execs, sql)
	m.mu.Unlock()
	if m.ExecFunc != nil {
		return m.ExecFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag("INSERT 0 1"), nil
}
