// Package memory is an in-process implementation of the repository
// contracts. It backs tests and DB-less development (STORE=memory); the
// postgres package is the production store.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/heiloMeow/nudgeeq/internal/models"
	"github.com/heiloMeow/nudgeeq/internal/repository"
)

// Store holds everything behind one mutex: a single writer at a time is
// the same isolation the SQL transactions give, so both stores agree on
// what concurrent claimants can observe. The four repository contracts
// are exposed as views over the shared state (Roles, Tables, Messages,
// Signals), mirroring the one-store-per-concern split of the postgres
// package.
type Store struct {
	mu       sync.Mutex
	tables   map[string]*[6]string // table id -> seat slots, "" = empty
	tableIDs []string              // seed order
	roles    map[string]*models.Role
	signals  map[string][]string // role id -> normalized signal index
	messages []models.Message
	logger   *zap.Logger

	// now is swappable in tests to pin timestamps.
	now func() time.Time
}

func NewStore(seedTables []string, logger *zap.Logger) *Store {
	s := &Store{
		tables:  make(map[string]*[6]string),
		roles:   make(map[string]*models.Role),
		signals: make(map[string][]string),
		logger:  logger,
		now:     time.Now,
	}
	for _, id := range seedTables {
		if _, ok := s.tables[id]; ok {
			continue
		}
		s.tables[id] = &[6]string{}
		s.tableIDs = append(s.tableIDs, id)
	}
	return s
}

func (s *Store) Roles() repository.RoleRepository           { return roleView{s} }
func (s *Store) Tables() repository.TableRepository         { return tableView{s} }
func (s *Store) Messages() repository.MessageRepository     { return messageView{s} }
func (s *Store) Signals() repository.SignalSearchRepository { return signalView{s} }

type roleView struct{ s *Store }
type tableView struct{ s *Store }
type messageView struct{ s *Store }
type signalView struct{ s *Store }

var (
	_ repository.RoleRepository         = roleView{}
	_ repository.TableRepository        = tableView{}
	_ repository.MessageRepository      = messageView{}
	_ repository.SignalSearchRepository = signalView{}
)

/* ---------------- roles & seats ---------------- */

func (v roleView) Create(_ context.Context, role *models.Role) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if role.SeatID < 1 || role.SeatID > 6 {
		return repository.ErrSeatOutOfRange
	}
	if err := s.claimSeatLocked(role.TableID, role.SeatID-1, role.ID); err != nil {
		return err
	}

	r := *role
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}
	if r.Signals == nil {
		r.Signals = []string{}
	}
	s.roles[r.ID] = &r
	s.signals[r.ID] = normalizeSignals(r.Signals)
	return nil
}

func (v roleView) Update(_ context.Context, roleID string, upd repository.RoleUpdate) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.roles[roleID]
	if !ok {
		return repository.ErrRoleNotFound
	}

	next := *cur
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
		if err := s.claimSeatLocked(next.TableID, next.SeatID-1, roleID); err != nil {
			return err
		}
		// Vacate only after the destination is held.
		if old, ok := s.tables[cur.TableID]; ok && old[cur.SeatID-1] == roleID {
			old[cur.SeatID-1] = ""
		}
	}

	if next.Signals == nil {
		next.Signals = []string{}
	}
	*cur = next
	s.signals[roleID] = normalizeSignals(next.Signals)
	return nil
}

func (v roleView) UpdateSignals(_ context.Context, roleID string, signals []string) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	role, ok := s.roles[roleID]
	if !ok {
		return repository.ErrRoleNotFound
	}
	if signals == nil {
		signals = []string{}
	}
	role.Signals = signals
	s.signals[roleID] = normalizeSignals(signals)
	return nil
}

func (v roleView) Delete(_ context.Context, roleID string) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	role, ok := s.roles[roleID]
	if !ok {
		return nil
	}
	if seats, ok := s.tables[role.TableID]; ok && role.SeatID >= 1 && role.SeatID <= 6 {
		if seats[role.SeatID-1] == roleID {
			seats[role.SeatID-1] = ""
		}
	}
	delete(s.signals, roleID)
	delete(s.roles, roleID)

	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.FromRoleID == roleID || m.ToRoleID == roleID {
			continue
		}
		kept = append(kept, m)
	}
	s.messages = kept
	return nil
}

func (v roleView) GetByID(_ context.Context, roleID string) (*models.Role, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	role, ok := s.roles[roleID]
	if !ok {
		return nil, nil
	}
	out := *role
	out.Signals = append([]string(nil), role.Signals...)
	return &out, nil
}

func (v roleView) List(_ context.Context, search string, limit int) ([]models.Role, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	search = strings.ToLower(search)
	out := make([]models.Role, 0)
	for _, role := range s.roles {
		if search != "" && !strings.Contains(strings.ToLower(role.Name), search) {
			continue
		}
		r := *role
		r.Signals = append([]string(nil), role.Signals...)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) claimSeatLocked(tableID string, seatIndex int, roleID string) error {
	seats, ok := s.tables[tableID]
	if !ok {
		return repository.ErrTableNotFound
	}
	if seatIndex < 0 || seatIndex > 5 {
		return repository.ErrSeatOutOfRange
	}
	if occupant := seats[seatIndex]; occupant != "" && occupant != roleID {
		if _, alive := s.roles[occupant]; alive {
			return repository.ErrSeatTaken
		}
		s.reconcileStaleSeatLocked(tableID, seatIndex, occupant)
	}
	seats[seatIndex] = roleID
	return nil
}

func (s *Store) reconcileStaleSeatLocked(tableID string, seatIndex int, staleRoleID string) {
	if s.logger != nil {
		s.logger.Warn("reconciling stale seat pointer",
			zap.String("table_id", tableID),
			zap.Int("seat_index", seatIndex),
			zap.String("stale_role_id", staleRoleID),
		)
	}
	s.tables[tableID][seatIndex] = ""
}

/* ---------------- tables ---------------- */

func (v tableView) List(_ context.Context) ([]models.Table, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Table, 0, len(s.tableIDs))
	for _, id := range s.tableIDs {
		out = append(out, s.tableLocked(id))
	}
	return out, nil
}

func (v tableView) GetByID(_ context.Context, tableID string) (*models.Table, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tables[tableID]; !ok {
		return nil, nil
	}
	t := s.tableLocked(tableID)
	return &t, nil
}

func (s *Store) tableLocked(tableID string) models.Table {
	t := models.Table{ID: tableID}
	for i, occupant := range s.tables[tableID] {
		if occupant == "" {
			continue
		}
		role, ok := s.roles[occupant]
		if !ok {
			continue
		}
		t.Seats[i] = &models.Occupant{
			ID:      role.ID,
			Name:    role.Name,
			Avatar:  role.Avatar,
			Signals: append([]string(nil), role.Signals...),
		}
	}
	return t
}

/* ---------------- messages ---------------- */

func (v messageView) Create(_ context.Context, fromRoleID, toRoleID, text, kind, inReplyTo string) (*models.Message, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	text = strings.TrimSpace(text)
	if fromRoleID == "" || toRoleID == "" || text == "" {
		return nil, repository.ErrMissingFields
	}
	if _, ok := s.roles[fromRoleID]; !ok {
		return nil, repository.ErrRoleNotFound
	}
	if _, ok := s.roles[toRoleID]; !ok {
		return nil, repository.ErrRoleNotFound
	}

	msg := models.Message{
		ID:         uuid.NewString(),
		FromRoleID: fromRoleID,
		ToRoleID:   toRoleID,
		Text:       text,
		Kind:       models.NormalizeKind(kind),
		InReplyTo:  inReplyTo,
		CreatedAt:  s.now().UTC(),
	}
	s.messages = append(s.messages, msg)
	out := msg
	return &out, nil
}

func (v messageView) ListSent(_ context.Context, roleID string, cursor repository.Cursor, limit int) (*models.MessagePage, error) {
	return v.s.listMessages(roleID, cursor, limit, false)
}

func (v messageView) ListReceived(_ context.Context, roleID string, cursor repository.Cursor, limit int) (*models.MessagePage, error) {
	return v.s.listMessages(roleID, cursor, limit, true)
}

func (s *Store) listMessages(roleID string, cursor repository.Cursor, limit int, received bool) (*models.MessagePage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit = repository.ClampLimit(limit)

	rows := make([]models.Message, 0)
	for _, m := range s.messages {
		if received && m.ToRoleID != roleID {
			continue
		}
		if !received && m.FromRoleID != roleID {
			continue
		}
		rows = append(rows, m)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].ID > rows[j].ID
	})

	page := models.MessagePage{Items: make([]models.MessageItem, 0, limit)}
	for _, m := range rows {
		if !cursor.IsZero() && !beforeCursor(m, cursor) {
			continue
		}
		party := m.ToRoleID
		if received {
			party = m.FromRoleID
		}
		stub := models.Party{ID: party}
		if partyRole := s.roles[party]; partyRole != nil {
			stub.Name = partyRole.Name
		}
		item := models.MessageItem{
			ID:         m.ID,
			Text:       m.Text,
			CreatedAt:  m.CreatedAt,
			FromRoleID: m.FromRoleID,
			ToRoleID:   m.ToRoleID,
			Kind:       m.Kind,
			InReplyTo:  m.InReplyTo,
		}
		if received {
			item.From = &stub
		} else {
			item.To = &stub
		}
		page.Items = append(page.Items, item)
		if len(page.Items) == limit {
			break
		}
	}

	if len(page.Items) == limit {
		last := page.Items[len(page.Items)-1]
		page.NextCursor = repository.EncodeCursor(last.CreatedAt, last.ID)
	}
	return &page, nil
}

// beforeCursor reports whether m sorts strictly below the cursor in the
// (createdAt desc, id desc) order.
func beforeCursor(m models.Message, c repository.Cursor) bool {
	if m.CreatedAt.Before(c.CreatedAt) {
		return true
	}
	return m.CreatedAt.Equal(c.CreatedAt) && m.ID < c.ID
}

/* ---------------- signal search ---------------- */

func (v signalView) Search(_ context.Context, q string, limit int) ([]models.SignalMatch, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	terms := strings.Fields(strings.ToLower(q))
	if len(terms) == 0 {
		return []models.SignalMatch{}, nil
	}
	if limit < 1 {
		limit = 30
	}
	if limit > 100 {
		limit = 100
	}

	matched := make([]*models.Role, 0)
	for id, indexed := range s.signals {
		if !anyTermMatches(indexed, terms) {
			continue
		}
		if role, ok := s.roles[id]; ok {
			matched = append(matched, role)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]models.SignalMatch, 0, len(matched))
	for _, role := range matched {
		out = append(out, models.SignalMatch{
			Role: models.Occupant{
				ID:      role.ID,
				Name:    role.Name,
				Avatar:  role.Avatar,
				Signals: append([]string(nil), role.Signals...),
			},
			TableID: role.TableID,
			SeatID:  role.SeatID,
		})
	}
	return out, nil
}

func anyTermMatches(indexed []string, terms []string) bool {
	for _, sig := range indexed {
		for _, term := range terms {
			if strings.Contains(sig, term) {
				return true
			}
		}
	}
	return false
}

func normalizeSignals(signals []string) []string {
	out := make([]string, 0, len(signals))
	for _, sig := range signals {
		if v := strings.ToLower(strings.TrimSpace(sig)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
