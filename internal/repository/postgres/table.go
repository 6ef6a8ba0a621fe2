package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heiloMeow/nudgeeq/internal/models"
)

type TableStore struct {
	pool *pgxpool.Pool
}

func NewTableStore(pool *pgxpool.Pool) *TableStore {
	return &TableStore{pool: pool}
}

func (s *TableStore) List(ctx context.Context) ([]models.Table, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM tables ORDER BY NULLIF(regexp_replace(id, '\D', '', 'g'), '')::bigint NULLS LAST, id`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	tables := make([]models.Table, 0, len(ids))
	for _, id := range ids {
		t, err := s.loadSeats(ctx, id)
		if err != nil {
			return nil, err
		}
		tables = append(tables, *t)
	}
	return tables, nil
}

func (s *TableStore) GetByID(ctx context.Context, tableID string) (*models.Table, error) {
	var id string
	err := s.pool.QueryRow(ctx, `SELECT id FROM tables WHERE id = $1`, tableID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get table: %w", err)
	}
	return s.loadSeats(ctx, id)
}

// loadSeats dereferences each occupied slot into its occupant projection.
// A slot pointing at a vanished role renders as empty; claim-time
// reconciliation repairs the row itself.
func (s *TableStore) loadSeats(ctx context.Context, tableID string) (*models.Table, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT s.seat_index, r.id, r.name, r.avatar, r.signals
		 FROM seats s
		 LEFT JOIN roles r ON r.id = s.role_id
		 WHERE s.table_id = $1
		 ORDER BY s.seat_index`, tableID,
	)
	if err != nil {
		return nil, fmt.Errorf("load seats: %w", err)
	}
	defer rows.Close()

	t := models.Table{ID: tableID}
	for rows.Next() {
		var seatIndex int
		var id, name, avatar *string
		var rawSignals []byte
		if err := rows.Scan(&seatIndex, &id, &name, &avatar, &rawSignals); err != nil {
			return nil, fmt.Errorf("scan seat: %w", err)
		}
		if seatIndex < 0 || seatIndex > 5 || id == nil {
			continue
		}
		t.Seats[seatIndex] = &models.Occupant{
			ID:      *id,
			Name:    deref(name),
			Avatar:  deref(avatar),
			Signals: parseSignals(rawSignals),
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate seats: %w", err)
	}
	return &t, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
