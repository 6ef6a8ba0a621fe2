package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/heiloMeow/nudgeeq/internal/models"
	"github.com/heiloMeow/nudgeeq/internal/repository"
)

type RoleStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewRoleStore(pool *pgxpool.Pool, logger *zap.Logger) *RoleStore {
	return &RoleStore{pool: pool, logger: logger}
}

func (s *RoleStore) Create(ctx context.Context, role *models.Role) error {
	if role.SeatID < 1 || role.SeatID > 6 {
		return repository.ErrSeatOutOfRange
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create role: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.claimSeat(ctx, tx, role.TableID, role.SeatID-1, role.ID); err != nil {
		return err
	}

	signals, err := json.Marshal(emptyIfNil(role.Signals))
	if err != nil {
		return fmt.Errorf("marshal signals: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO roles(id, name, avatar, signals, table_id, seat_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		role.ID, role.Name, role.Avatar, signals, role.TableID, role.SeatID, role.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert role: %w", err)
	}

	if err := replaceSignals(ctx, tx, role.ID, role.Signals); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *RoleStore) Update(ctx context.Context, roleID string, upd repository.RoleUpdate) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update role: %w", err)
	}
	defer tx.Rollback(ctx)

	var cur models.Role
	var rawSignals []byte
	err = tx.QueryRow(ctx,
		`SELECT id, name, avatar, signals, table_id, seat_id, created_at
		 FROM roles WHERE id = $1 FOR UPDATE`, roleID,
	).Scan(&cur.ID, &cur.Name, &cur.Avatar, &rawSignals, &cur.TableID, &cur.SeatID, &cur.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrRoleNotFound
	}
	if err != nil {
		return fmt.Errorf("load role: %w", err)
	}
	cur.Signals = parseSignals(rawSignals)

	next := cur
	if upd.Name != nil {
		next.Name = *upd.Name
	}
	if upd.Avatar != nil {
		next.Avatar = *upd.Avatar
	}
	if upd.Signals != nil {
		next.Signals = *upd.Signals
	}
	if upd.TableID != nil {
		next.TableID = *upd.TableID
	}
	if upd.SeatID != nil {
		next.SeatID = *upd.SeatID
	}

	if next.TableID != cur.TableID || next.SeatID != cur.SeatID {
		if next.SeatID < 1 || next.SeatID > 6 {
			return repository.ErrSeatOutOfRange
		}
		// Claim the destination before vacating the old slot; the
		// transaction makes the swap invisible to readers.
		if err := s.claimSeat(ctx, tx, next.TableID, next.SeatID-1, roleID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE seats SET role_id = NULL WHERE table_id = $1 AND seat_index = $2 AND role_id = $3`,
			cur.TableID, cur.SeatID-1, roleID,
		); err != nil {
			return fmt.Errorf("vacate old seat: %w", err)
		}
	}

	signals, err := json.Marshal(emptyIfNil(next.Signals))
	if err != nil {
		return fmt.Errorf("marshal signals: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE roles SET name = $1, avatar = $2, signals = $3, table_id = $4, seat_id = $5 WHERE id = $6`,
		next.Name, next.Avatar, signals, next.TableID, next.SeatID, roleID,
	); err != nil {
		return fmt.Errorf("update role: %w", err)
	}

	if err := replaceSignals(ctx, tx, roleID, next.Signals); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *RoleStore) UpdateSignals(ctx context.Context, roleID string, signals []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update signals: %w", err)
	}
	defer tx.Rollback(ctx)

	raw, err := json.Marshal(emptyIfNil(signals))
	if err != nil {
		return fmt.Errorf("marshal signals: %w", err)
	}
	tag, err := tx.Exec(ctx, `UPDATE roles SET signals = $1 WHERE id = $2`, raw, roleID)
	if err != nil {
		return fmt.Errorf("update signals: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrRoleNotFound
	}

	if err := replaceSignals(ctx, tx, roleID, signals); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *RoleStore) Delete(ctx context.Context, roleID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete role: %w", err)
	}
	defer tx.Rollback(ctx)

	var tableID string
	var seatID int
	err = tx.QueryRow(ctx,
		`SELECT table_id, seat_id FROM roles WHERE id = $1 FOR UPDATE`, roleID,
	).Scan(&tableID, &seatID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil // idempotent
	}
	if err != nil {
		return fmt.Errorf("load role: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE seats SET role_id = NULL WHERE table_id = $1 AND seat_index = $2`,
		tableID, seatID-1,
	); err != nil {
		return fmt.Errorf("release seat: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM role_signals WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("delete signal index: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM messages WHERE from_role_id = $1 OR to_role_id = $1`, roleID,
	); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, roleID); err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *RoleStore) GetByID(ctx context.Context, roleID string) (*models.Role, error) {
	var role models.Role
	var rawSignals []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, avatar, signals, table_id, seat_id, created_at
		 FROM roles WHERE id = $1`, roleID,
	).Scan(&role.ID, &role.Name, &role.Avatar, &rawSignals, &role.TableID, &role.SeatID, &role.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get role: %w", err)
	}
	role.Signals = parseSignals(rawSignals)
	return &role, nil
}

func (s *RoleStore) List(ctx context.Context, search string, limit int) ([]models.Role, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, avatar, signals, table_id, seat_id, created_at
		 FROM roles
		 WHERE $1 = '' OR name ILIKE '%' || $1 || '%'
		 ORDER BY created_at DESC
		 LIMIT $2`, search, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	roles := make([]models.Role, 0)
	for rows.Next() {
		var role models.Role
		var rawSignals []byte
		if err := rows.Scan(&role.ID, &role.Name, &role.Avatar, &rawSignals,
			&role.TableID, &role.SeatID, &role.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		role.Signals = parseSignals(rawSignals)
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}
	return roles, nil
}

// claimSeat locks the destination slot and occupies it for roleID. The
// row lock serializes concurrent claimants: the loser re-reads an occupied
// slot and gets ErrSeatTaken. The role's own slot is accepted as-is so a
// repeated claim is a no-op.
func (s *RoleStore) claimSeat(ctx context.Context, tx pgx.Tx, tableID string, seatIndex int, roleID string) error {
	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM tables WHERE id = $1)`, tableID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check table: %w", err)
	}
	if !exists {
		return repository.ErrTableNotFound
	}

	var occupant *string
	err := tx.QueryRow(ctx,
		`SELECT role_id FROM seats WHERE table_id = $1 AND seat_index = $2 FOR UPDATE`,
		tableID, seatIndex,
	).Scan(&occupant)
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrSeatOutOfRange
	}
	if err != nil {
		return fmt.Errorf("lock seat: %w", err)
	}

	if occupant != nil && *occupant != roleID {
		var occupantExists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1)`, *occupant,
		).Scan(&occupantExists); err != nil {
			return fmt.Errorf("check occupant: %w", err)
		}
		if occupantExists {
			return repository.ErrSeatTaken
		}
		if err := s.reconcileStaleSeat(ctx, tx, tableID, seatIndex, *occupant); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE seats SET role_id = $1 WHERE table_id = $2 AND seat_index = $3`,
		roleID, tableID, seatIndex,
	); err != nil {
		return fmt.Errorf("occupy seat: %w", err)
	}
	return nil
}

// reconcileStaleSeat clears a slot whose occupant no longer exists in
// roles. The claim in flight then proceeds against the repaired slot
// instead of failing on historical corruption.
func (s *RoleStore) reconcileStaleSeat(ctx context.Context, tx pgx.Tx, tableID string, seatIndex int, staleRoleID string) error {
	s.logger.Warn("reconciling stale seat pointer",
		zap.String("table_id", tableID),
		zap.Int("seat_index", seatIndex),
		zap.String("stale_role_id", staleRoleID),
	)
	if _, err := tx.Exec(ctx,
		`UPDATE seats SET role_id = NULL WHERE table_id = $1 AND seat_index = $2`,
		tableID, seatIndex,
	); err != nil {
		return fmt.Errorf("reconcile stale seat: %w", err)
	}
	return nil
}

// replaceSignals rebuilds the derived search index for one role from
// scratch. Signals are normalized (trimmed, lower-cased) on the way in;
// blanks are dropped.
func replaceSignals(ctx context.Context, tx pgx.Tx, roleID string, signals []string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM role_signals WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("clear signal index: %w", err)
	}
	for _, sig := range signals {
		v := strings.ToLower(strings.TrimSpace(sig))
		if v == "" {
			continue
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO role_signals(role_id, signal) VALUES ($1, $2)`, roleID, v); err != nil {
			return fmt.Errorf("index signal: %w", err)
		}
	}
	return nil
}

func parseSignals(raw []byte) []string {
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return []string{}
	}
	return out
}

func emptyIfNil(signals []string) []string {
	if signals == nil {
		return []string{}
	}
	return signals
}
