package repository

import (
	"context"

	"github.com/heiloMeow/nudgeeq/internal/models"
)

// RoleUpdate carries a partial role edit. Nil fields are left unchanged;
// a TableID/SeatID change is a seat move and is validated like a claim.
type RoleUpdate struct {
	Name    *string
	Avatar  *string
	Signals *[]string
	TableID *string
	SeatID  *int
}

// RoleRepository owns the role lifecycle and the seat occupancy invariant:
// at most one role per (table, seat) at any time. Every multi-step
// mutation is a single atomic unit, so a reader never observes a role
// without a seat or a seat pointing at a role that is gone.
type RoleRepository interface {
	// Create claims the role's seat and inserts the role atomically.
	// Errors: ErrTableNotFound, ErrSeatOutOfRange, ErrSeatTaken.
	// A slot referencing a role id that no longer exists is repaired and
	// then claimed rather than reported as taken.
	Create(ctx context.Context, role *models.Role) error

	// Update applies a partial edit; moving seats frees the old slot only
	// after the destination is confirmed (the role's own current slot is
	// always an acceptable destination). Errors: ErrRoleNotFound plus the
	// claim errors.
	Update(ctx context.Context, roleID string, upd RoleUpdate) error

	// UpdateSignals replaces the signal list and its derived index.
	UpdateSignals(ctx context.Context, roleID string, signals []string) error

	// Delete removes the role, frees its seat, and cascades away its
	// signal-index rows and messages in both directions. Unknown ids are
	// a no-op.
	Delete(ctx context.Context, roleID string) error

	GetByID(ctx context.Context, roleID string) (*models.Role, error)

	// List returns up to limit roles whose name contains search
	// (case-insensitive); empty search matches all.
	List(ctx context.Context, search string, limit int) ([]models.Role, error)
}

// TableRepository reads the fixed, seeded table set.
type TableRepository interface {
	List(ctx context.Context) ([]models.Table, error)

	// GetByID returns nil, nil when the table does not exist.
	GetByID(ctx context.Context, tableID string) (*models.Table, error)
}

// MessageRepository persists request/response messages and serves the
// keyset-paginated inbox and outbox.
type MessageRepository interface {
	// Create validates text non-empty (ErrMissingFields) and both roles
	// existing (ErrRoleNotFound), then assigns id and createdAt
	// server-side and returns the stored message.
	Create(ctx context.Context, fromRoleID, toRoleID, text, kind, inReplyTo string) (*models.Message, error)

	// ListSent pages messages the role sent, newest first, items carrying
	// the recipient's id and name.
	ListSent(ctx context.Context, roleID string, cursor Cursor, limit int) (*models.MessagePage, error)

	// ListReceived pages messages addressed to the role, newest first,
	// items carrying the sender's id and name.
	ListReceived(ctx context.Context, roleID string, cursor Cursor, limit int) (*models.MessagePage, error)
}

// SignalSearchRepository matches roles by substring against their
// broadcast signals.
type SignalSearchRepository interface {
	// Search splits q on whitespace and returns roles matching any term,
	// newest role first, at most limit rows.
	Search(ctx context.Context, q string, limit int) ([]models.SignalMatch, error)
}
