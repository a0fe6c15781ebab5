// Package actionlog implements the append-only action-log collaborator on
// PostgreSQL. One row per confirmed mutating action; the core never reads
// these rows back.
package actionlog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/lishuo8109/weibopilot/api/schemas"
)

// DB is the narrow pgx surface the store needs. *pgxpool.Pool satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS actions (
	id          BIGSERIAL PRIMARY KEY,
	kind        TEXT        NOT NULL,
	account_id  TEXT        NOT NULL,
	actor_name  TEXT        NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL,
	content     TEXT        NOT NULL DEFAULT '',
	target_ref  TEXT        NOT NULL DEFAULT '',
	target_text TEXT        NOT NULL DEFAULT ''
)`

const insertActionSQL = `
INSERT INTO actions (kind, account_id, actor_name, occurred_at, content, target_ref, target_text)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// Store writes action records to the actions table. It implements
// schemas.Recorder.
type Store struct {
	db     DB
	logger *zap.Logger
}

var _ schemas.Recorder = (*Store)(nil)

// New builds a store around an open database handle.
func New(db DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger.Named("actionlog")}
}

// EnsureSchema pings the database and creates the actions table if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping action log database: %w", err)
	}
	if _, err := s.db.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to ensure actions table: %w", err)
	}
	return nil
}

// Record appends one row for a confirmed action.
func (s *Store) Record(ctx context.Context, rec schemas.ActionRecord) error {
	_, err := s.db.Exec(ctx, insertActionSQL,
		string(rec.Kind),
		rec.AccountID,
		rec.ActorName,
		rec.OccurredAt,
		rec.Content,
		rec.TargetRef,
		rec.TargetText,
	)
	if err != nil {
		return fmt.Errorf("failed to insert action record: %w", err)
	}
	s.logger.Debug("Recorded action.",
		zap.String("kind", string(rec.Kind)), zap.String("account_id", rec.AccountID))
	return nil
}
