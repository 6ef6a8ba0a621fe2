package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/heiloMeow/nudgeeq/internal/models"
	"github.com/heiloMeow/nudgeeq/internal/repository"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore([]string{"24", "12"}, zap.NewNop())
}

// pinClock makes the store clock tick one millisecond per call so every
// message gets a distinct, ordered timestamp.
func pinClock(s *Store) {
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	s.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Millisecond)
	}
}

func seatRole(t *testing.T, s *Store, id, tableID string, seatID int) *models.Role {
	t.Helper()
	role := &models.Role{
		ID:      id,
		Name:    "name-" + id,
		Avatar:  "duck",
		TableID: tableID,
		SeatID:  seatID,
	}
	if err := s.Roles().Create(context.Background(), role); err != nil {
		t.Fatalf("create role %s: %v", id, err)
	}
	return role
}

func TestCreateRoleSeatConflict(t *testing.T) {
	s := newTestStore(t)
	seatRole(t, s, "r1", "24", 3)

	err := s.Roles().Create(context.Background(), &models.Role{
		ID: "r2", Name: "b", Avatar: "cat", TableID: "24", SeatID: 3,
	})
	if err != repository.ErrSeatTaken {
		t.Fatalf("err = %v, want ErrSeatTaken", err)
	}
}

func TestCreateRoleValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Roles().Create(ctx, &models.Role{ID: "r1", TableID: "99", SeatID: 1})
	if err != repository.ErrTableNotFound {
		t.Fatalf("unknown table: err = %v, want ErrTableNotFound", err)
	}
	for _, seat := range []int{0, 7, -1} {
		err := s.Roles().Create(ctx, &models.Role{ID: "r1", TableID: "24", SeatID: seat})
		if err != repository.ErrSeatOutOfRange {
			t.Fatalf("seat %d: err = %v, want ErrSeatOutOfRange", seat, err)
		}
	}
}

func TestConcurrentClaimsOneWinner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Roles().Create(ctx, &models.Role{
				ID: fmt.Sprintf("r%d", i), Name: "n", Avatar: "a",
				TableID: "24", SeatID: 1,
			})
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch err {
		case nil:
			winners++
		case repository.ErrSeatTaken:
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
}

func TestStaleSeatReclaimed(t *testing.T) {
	s := newTestStore(t)
	seatRole(t, s, "ghost", "24", 2)

	// Simulate drift: the role row vanished but the seat still points
	// at it. A new claimant repairs the slot instead of bouncing off.
	delete(s.roles, "ghost")
	delete(s.signals, "ghost")

	if err := s.Roles().Create(context.Background(), &models.Role{
		ID: "r2", Name: "b", Avatar: "cat", TableID: "24", SeatID: 2,
	}); err != nil {
		t.Fatalf("claim over stale seat: %v", err)
	}

	table, err := s.Tables().GetByID(context.Background(), "24")
	if err != nil {
		t.Fatalf("get table: %v", err)
	}
	if table.Seats[1] == nil || table.Seats[1].ID != "r2" {
		t.Fatalf("seat 2 occupant = %+v, want r2", table.Seats[1])
	}
}

func TestMoveSeat(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seatRole(t, s, "r1", "24", 1)
	seatRole(t, s, "r2", "24", 2)

	// Moving onto an occupied seat fails and leaves the mover in place.
	two := 2
	if err := s.Roles().Update(ctx, "r1", repository.RoleUpdate{SeatID: &two}); err != repository.ErrSeatTaken {
		t.Fatalf("move onto occupied: err = %v, want ErrSeatTaken", err)
	}
	table, _ := s.Tables().GetByID(ctx, "24")
	if table.Seats[0] == nil || table.Seats[0].ID != "r1" {
		t.Fatalf("failed move vacated the origin seat")
	}

	// Moving to a free seat on another table vacates the old slot.
	dest := "12"
	five := 5
	if err := s.Roles().Update(ctx, "r1", repository.RoleUpdate{TableID: &dest, SeatID: &five}); err != nil {
		t.Fatalf("move: %v", err)
	}
	old, _ := s.Tables().GetByID(ctx, "24")
	if old.Seats[0] != nil {
		t.Fatalf("origin seat still occupied after move")
	}
	moved, _ := s.Tables().GetByID(ctx, "12")
	if moved.Seats[4] == nil || moved.Seats[4].ID != "r1" {
		t.Fatalf("destination seat empty after move")
	}

	role, _ := s.Roles().GetByID(ctx, "r1")
	if role.TableID != "12" || role.SeatID != 5 {
		t.Fatalf("role position = (%s,%d), want (12,5)", role.TableID, role.SeatID)
	}
}

func TestUpdateSameSeatNoop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seatRole(t, s, "r1", "24", 4)

	name := "renamed"
	if err := s.Roles().Update(ctx, "r1", repository.RoleUpdate{Name: &name}); err != nil {
		t.Fatalf("rename in place: %v", err)
	}
	role, _ := s.Roles().GetByID(ctx, "r1")
	if role.Name != "renamed" || role.SeatID != 4 {
		t.Fatalf("role = %+v", role)
	}
}

func TestDeleteRoleCascade(t *testing.T) {
	s := newTestStore(t)
	pinClock(s)
	ctx := context.Background()
	seatRole(t, s, "r1", "24", 1)
	seatRole(t, s, "r2", "24", 2)
	seatRole(t, s, "r3", "24", 3)

	mustSend(t, s, "r1", "r2", "hello")
	mustSend(t, s, "r2", "r1", "hi back")
	mustSend(t, s, "r3", "r2", "unrelated")

	if err := s.Roles().Delete(ctx, "r1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	table, _ := s.Tables().GetByID(ctx, "24")
	if table.Seats[0] != nil {
		t.Fatalf("seat not freed by delete")
	}
	role, err := s.Roles().GetByID(ctx, "r1")
	if err != nil || role != nil {
		t.Fatalf("GetByID after delete = (%v, %v), want (nil, nil)", role, err)
	}

	// Messages touching r1 in either direction are gone; others stay.
	inbox, _ := s.Messages().ListReceived(ctx, "r2", repository.Cursor{}, 50)
	if len(inbox.Items) != 1 || inbox.Items[0].Text != "unrelated" {
		t.Fatalf("r2 inbox after cascade = %+v", inbox.Items)
	}

	// Deleting again is a no-op.
	if err := s.Roles().Delete(ctx, "r1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestCreateMessageValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seatRole(t, s, "r1", "24", 1)

	if _, err := s.Messages().Create(ctx, "r1", "r1", "   ", "request", ""); err != repository.ErrMissingFields {
		t.Fatalf("blank text: err = %v, want ErrMissingFields", err)
	}
	if _, err := s.Messages().Create(ctx, "r1", "nope", "hey", "request", ""); err != repository.ErrRoleNotFound {
		t.Fatalf("unknown recipient: err = %v, want ErrRoleNotFound", err)
	}
	if _, err := s.Messages().Create(ctx, "nope", "r1", "hey", "request", ""); err != repository.ErrRoleNotFound {
		t.Fatalf("unknown sender: err = %v, want ErrRoleNotFound", err)
	}

	msg, err := s.Messages().Create(ctx, "r1", "r1", "hey", "weird-kind", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if msg.Kind != models.KindRequest {
		t.Fatalf("kind = %q, want coerced to request", msg.Kind)
	}
}

func TestMessagePagination(t *testing.T) {
	s := newTestStore(t)
	pinClock(s)
	ctx := context.Background()
	seatRole(t, s, "a", "24", 1)
	seatRole(t, s, "b", "24", 2)

	var ids []string
	for i := 0; i < 5; i++ {
		msg := mustSend(t, s, "a", "b", fmt.Sprintf("m%d", i))
		ids = append(ids, msg.ID)
	}

	// Walk b's inbox two at a time; newest first, no gaps, no repeats.
	var got []string
	cursor := repository.Cursor{}
	for {
		page, err := s.Messages().ListReceived(ctx, "b", cursor, 2)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		for _, item := range page.Items {
			got = append(got, item.ID)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = repository.ParseCursor(page.NextCursor)
		if cursor.IsZero() {
			t.Fatalf("NextCursor %q did not parse", page.NextCursor)
		}
	}

	if len(got) != 5 {
		t.Fatalf("walked %d items, want 5: %v", len(got), got)
	}
	for i, id := range got {
		if want := ids[len(ids)-1-i]; id != want {
			t.Fatalf("position %d = %s, want %s (newest first)", i, id, want)
		}
	}
}

func TestMessagePaginationTieBreak(t *testing.T) {
	s := newTestStore(t)
	at := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return at } // every message shares one timestamp
	ctx := context.Background()
	seatRole(t, s, "a", "24", 1)
	seatRole(t, s, "b", "24", 2)

	seen := make(map[string]bool)
	for i := 0; i < 6; i++ {
		seen[mustSend(t, s, "a", "b", "x").ID] = false
	}

	cursor := repository.Cursor{}
	prev := ""
	for {
		page, err := s.Messages().ListReceived(ctx, "b", cursor, 2)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		for _, item := range page.Items {
			if seen[item.ID] {
				t.Fatalf("item %s returned twice", item.ID)
			}
			seen[item.ID] = true
			if prev != "" && item.ID > prev {
				t.Fatalf("id order broken: %s after %s", item.ID, prev)
			}
			prev = item.ID
		}
		if page.NextCursor == "" {
			break
		}
		cursor = repository.ParseCursor(page.NextCursor)
	}
	for id, ok := range seen {
		if !ok {
			t.Fatalf("item %s never returned", id)
		}
	}
}

func TestSentPageCarriesRecipientStub(t *testing.T) {
	s := newTestStore(t)
	pinClock(s)
	ctx := context.Background()
	seatRole(t, s, "a", "24", 1)
	seatRole(t, s, "b", "24", 2)

	req := mustSend(t, s, "a", "b", "can you help?")
	if _, err := s.Messages().Create(ctx, "b", "a", "Sure.", models.KindResponse, req.ID); err != nil {
		t.Fatalf("reply: %v", err)
	}

	sent, _ := s.Messages().ListSent(ctx, "b", repository.Cursor{}, 10)
	if len(sent.Items) != 1 {
		t.Fatalf("b sent %d items, want 1", len(sent.Items))
	}
	item := sent.Items[0]
	if item.To == nil || item.To.ID != "a" || item.To.Name != "name-a" {
		t.Fatalf("To stub = %+v", item.To)
	}
	if item.From != nil {
		t.Fatalf("sent item carries From stub")
	}
	if item.InReplyTo != req.ID {
		t.Fatalf("inReplyTo = %q, want %q", item.InReplyTo, req.ID)
	}

	inbox, _ := s.Messages().ListReceived(ctx, "b", repository.Cursor{}, 10)
	if len(inbox.Items) != 1 || inbox.Items[0].From == nil || inbox.Items[0].From.Name != "name-a" {
		t.Fatalf("received item From stub = %+v", inbox.Items)
	}
}

func TestSignalSearch(t *testing.T) {
	s := newTestStore(t)
	pinClock(s)
	ctx := context.Background()

	r1 := seatRole(t, s, "r1", "24", 1)
	r1sig := []string{"  Stats ", "python"}
	if err := s.Roles().UpdateSignals(ctx, "r1", r1sig); err != nil {
		t.Fatalf("signals: %v", err)
	}
	seatRole(t, s, "r2", "24", 2)
	if err := s.Roles().UpdateSignals(ctx, "r2", []string{"welding"}); err != nil {
		t.Fatalf("signals: %v", err)
	}

	matches, err := s.Signals().Search(ctx, "STAT", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 1 || matches[0].Role.ID != r1.ID {
		t.Fatalf("matches = %+v, want just r1", matches)
	}
	if matches[0].TableID != "24" || matches[0].SeatID != 1 {
		t.Fatalf("match position = (%s,%d)", matches[0].TableID, matches[0].SeatID)
	}

	empty, err := s.Signals().Search(ctx, "   ", 10)
	if err != nil || len(empty) != 0 {
		t.Fatalf("blank query = (%v, %v), want empty", empty, err)
	}

	none, err := s.Signals().Search(ctx, "quantum", 10)
	if err != nil || len(none) != 0 {
		t.Fatalf("no-hit query = (%v, %v), want empty", none, err)
	}
}

func mustSend(t *testing.T, s *Store, from, to, text string) *models.Message {
	t.Helper()
	msg, err := s.Messages().Create(context.Background(), from, to, text, models.KindRequest, "")
	if err != nil {
		t.Fatalf("send %s->%s: %v", from, to, err)
	}
	return msg
}
