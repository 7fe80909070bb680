package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"sms-hunter/internal/domain"
	"sms-hunter/internal/domain/model"
	"sms-hunter/internal/domain/ports/repository"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
)

// Ensure interface compliance
var _ repository.StatusRepository = (*StatusRepo)(nil)

const (
	statusRowID = 1

	// SQLSTATE undefined_table
	codeUndefinedTable = "42P01"
)

// executor is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type executor interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
}

// StatusRepo stores the document in a one-row table. The column is json, not
// jsonb, so the key order of countries survives a round trip.
type StatusRepo struct {
	db executor

	// serializes CREATE TABLE between concurrent first saves
	schemaMu sync.Mutex
}

func NewStatusRepo(db executor) *StatusRepo {
	return &StatusRepo{db: db}
}

// EnsureSchema creates the table if needed.
func (r *StatusRepo) EnsureSchema(ctx context.Context) error {
	const sql = `
CREATE TABLE IF NOT EXISTS bot_status (
  id         SMALLINT PRIMARY KEY,
  doc        JSON NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
	if _, err := r.db.Exec(ctx, sql); err != nil {
		return fmt.Errorf("EnsureSchema bot_status: %w", err)
	}
	return nil
}

func (r *StatusRepo) Load(ctx context.Context) (*model.StatusDocument, error) {
	const sql = `SELECT doc::text FROM bot_status WHERE id = $1;`

	var raw string
	if err := r.db.QueryRow(ctx, sql, statusRowID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUndefinedTable(err) {
			return model.NewStatusDocument(), nil
		}
		return nil, fmt.Errorf("Load status: %w", err)
	}

	doc := model.NewStatusDocument()
	if err := json.Unmarshal([]byte(raw), doc); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorruptStatus, err)
	}
	return doc, nil
}

func (r *StatusRepo) Save(ctx context.Context, doc *model.StatusDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	err = r.upsert(ctx, data)
	if isUndefinedTable(err) {
		r.schemaMu.Lock()
		err = r.EnsureSchema(ctx)
		r.schemaMu.Unlock()
		if err != nil {
			return err
		}
		err = r.upsert(ctx, data)
	}
	if err != nil {
		return fmt.Errorf("Save status: %w", err)
	}
	return nil
}

func (r *StatusRepo) upsert(ctx context.Context, data []byte) error {
	const sql = `
INSERT INTO bot_status (id, doc, updated_at)
VALUES ($1, $2::json, now())
ON CONFLICT (id) DO UPDATE
  SET doc        = EXCLUDED.doc,
      updated_at = EXCLUDED.updated_at;
`
	_, err := r.db.Exec(ctx, sql, statusRowID, string(data))
	return err
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUndefinedTable
}
