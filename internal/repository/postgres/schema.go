package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS tables (
	id text PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS seats (
	table_id   text NOT NULL REFERENCES tables(id) ON DELETE CASCADE,
	seat_index int  NOT NULL CHECK (seat_index BETWEEN 0 AND 5),
	role_id    text NULL,
	PRIMARY KEY (table_id, seat_index)
);

CREATE TABLE IF NOT EXISTS roles (
	id         text PRIMARY KEY,
	name       text NOT NULL,
	avatar     text NOT NULL,
	signals    jsonb NOT NULL DEFAULT '[]',
	table_id   text NOT NULL,
	seat_id    int  NOT NULL CHECK (seat_id BETWEEN 1 AND 6),
	created_at timestamptz NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id           text PRIMARY KEY,
	from_role_id text NOT NULL,
	to_role_id   text NOT NULL,
	text         text NOT NULL,
	kind         text NOT NULL DEFAULT 'request',
	in_reply_to  text NULL,
	created_at   timestamptz NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_msg_from_time ON messages(from_role_id, created_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_msg_to_time   ON messages(to_role_id,   created_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS role_signals (
	role_id text NOT NULL,
	signal  text NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_role_signals_role ON role_signals(role_id);
`

// EnsureSchema creates all tables and indexes. Every statement is
// idempotent, so reruns on startup are safe.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SeedTables creates the fixed table set with six empty seats each.
// It only runs when the tables table is empty, so a redeploy never
// disturbs live occupancy.
func SeedTables(ctx context.Context, pool *pgxpool.Pool, ids []string, logger *zap.Logger) error {
	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM tables`).Scan(&count); err != nil {
		return fmt.Errorf("count tables: %w", err)
	}
	if count > 0 {
		return nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, id := range ids {
		if _, err := tx.Exec(ctx, `INSERT INTO tables(id) VALUES ($1)`, id); err != nil {
			return fmt.Errorf("seed table %s: %w", id, err)
		}
		for i := 0; i < 6; i++ {
			if _, err := tx.Exec(ctx,
				`INSERT INTO seats(table_id, seat_index, role_id) VALUES ($1, $2, NULL)`, id, i); err != nil {
				return fmt.Errorf("seed seat %s/%d: %w", id, i, err)
			}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}

	logger.Info("seeded tables", zap.Strings("ids", ids))
	return nil
}
