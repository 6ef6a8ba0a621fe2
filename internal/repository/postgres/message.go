package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heiloMeow/nudgeeq/internal/models"
	"github.com/heiloMeow/nudgeeq/internal/repository"
)

type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

func (s *MessageStore) Create(ctx context.Context, fromRoleID, toRoleID, text, kind, inReplyTo string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if fromRoleID == "" || toRoleID == "" || text == "" {
		return nil, repository.ErrMissingFields
	}

	// Both endpoints must exist at creation time; orphaned messages are
	// rejected rather than stored.
	var fromExists, toExists bool
	err := s.pool.QueryRow(ctx,
		`SELECT
			EXISTS (SELECT 1 FROM roles WHERE id = $1),
			EXISTS (SELECT 1 FROM roles WHERE id = $2)`,
		fromRoleID, toRoleID,
	).Scan(&fromExists, &toExists)
	if err != nil {
		return nil, fmt.Errorf("check roles: %w", err)
	}
	if !fromExists || !toExists {
		return nil, repository.ErrRoleNotFound
	}

	msg := models.Message{
		ID:         uuid.NewString(),
		FromRoleID: fromRoleID,
		ToRoleID:   toRoleID,
		Text:       text,
		Kind:       models.NormalizeKind(kind),
		InReplyTo:  inReplyTo,
	}
	// created_at comes from the database clock so storage order and
	// timestamp order agree.
	err = s.pool.QueryRow(ctx,
		`INSERT INTO messages(id, from_role_id, to_role_id, text, kind, in_reply_to, created_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), now())
		 RETURNING created_at`,
		msg.ID, msg.FromRoleID, msg.ToRoleID, msg.Text, msg.Kind, msg.InReplyTo,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &msg, nil
}

func (s *MessageStore) ListSent(ctx context.Context, roleID string, cursor repository.Cursor, limit int) (*models.MessagePage, error) {
	return s.list(ctx, roleID, cursor, limit, false)
}

func (s *MessageStore) ListReceived(ctx context.Context, roleID string, cursor repository.Cursor, limit int) (*models.MessagePage, error) {
	return s.list(ctx, roleID, cursor, limit, true)
}

// list runs the keyset query for either direction. The page walks down
// (created_at, id) in strictly descending order; with a cursor, only rows
// strictly below it qualify, so re-fetching a page never repeats or skips
// rows even when timestamps collide.
func (s *MessageStore) list(ctx context.Context, roleID string, cursor repository.Cursor, limit int, received bool) (*models.MessagePage, error) {
	limit = repository.ClampLimit(limit)

	ownCol, party := "m.from_role_id", "m.to_role_id"
	if received {
		ownCol, party = "m.to_role_id", "m.from_role_id"
	}

	query := fmt.Sprintf(`
		SELECT m.id, m.text, m.created_at, m.kind, m.in_reply_to,
		       m.from_role_id, m.to_role_id, r.id, r.name
		FROM messages m
		JOIN roles r ON r.id = %s
		WHERE %s = $1`, party, ownCol)
	args := []any{roleID}

	if !cursor.IsZero() {
		query += ` AND (m.created_at < $2 OR (m.created_at = $2 AND m.id < $3))`
		args = append(args, cursor.CreatedAt, cursor.ID)
	}
	query += fmt.Sprintf(` ORDER BY m.created_at DESC, m.id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	page := models.MessagePage{Items: make([]models.MessageItem, 0, limit)}
	for rows.Next() {
		var item models.MessageItem
		var inReplyTo *string
		var partyStub models.Party
		if err := rows.Scan(&item.ID, &item.Text, &item.CreatedAt, &item.Kind, &inReplyTo,
			&item.FromRoleID, &item.ToRoleID, &partyStub.ID, &partyStub.Name); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if inReplyTo != nil {
			item.InReplyTo = *inReplyTo
		}
		if received {
			item.From = &partyStub
		} else {
			item.To = &partyStub
		}
		page.Items = append(page.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	if len(page.Items) == limit {
		last := page.Items[len(page.Items)-1]
		page.NextCursor = repository.EncodeCursor(last.CreatedAt, last.ID)
	}
	return &page, nil
}
