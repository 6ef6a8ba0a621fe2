package models

import (
	"time"
)

// Message kinds. Anything else arriving over the wire is coerced to a
// request, never rejected.
const (
	KindRequest  = "request"
	KindResponse = "response"
)

// Role is a seated person: not an account, just a bearer of a random id
// tied to one (table, seat) slot.
type Role struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar"`
	Signals   []string  `json:"signals"`
	TableID   string    `json:"tableId"`
	SeatID    int       `json:"seatId"` // 1..6
	CreatedAt time.Time `json:"createdAt"`
}

// Occupant is the public projection of a role sitting in a seat.
type Occupant struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Avatar  string   `json:"avatar"`
	Signals []string `json:"signals"`
}

// Table always has exactly six slots; a nil entry is an empty seat.
type Table struct {
	ID    string       `json:"id"`
	Seats [6]*Occupant `json:"seats"`
}

// Availability is the lightweight polling shape for seat pickers.
type Availability struct {
	ID    string  `json:"id"`
	Taken [6]bool `json:"taken"`
}

// Message is immutable once created. CreatedAt and ID are assigned by the
// store so that (CreatedAt desc, ID desc) is a total order consistent with
// insertion order.
//
// InReplyTo is stored as-given: the store does not verify it names an
// existing request, or one addressed to the responder. Clients treat it as
// a best-effort link.
type Message struct {
	ID         string    `json:"id"`
	FromRoleID string    `json:"fromRoleId"`
	ToRoleID   string    `json:"toRoleId"`
	Text       string    `json:"text"`
	Kind       string    `json:"kind"`
	InReplyTo  string    `json:"inReplyTo,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Party is the denormalized counterparty stub on inbox/outbox items.
type Party struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MessageItem is one row of a sent or received page. Sent pages carry To,
// received pages carry From; the flat role ids are always present.
type MessageItem struct {
	ID         string    `json:"id"`
	From       *Party    `json:"from,omitempty"`
	To         *Party    `json:"to,omitempty"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
	FromRoleID string    `json:"fromRoleId"`
	ToRoleID   string    `json:"toRoleId"`
	Kind       string    `json:"kind"`
	InReplyTo  string    `json:"inReplyTo,omitempty"`
}

// MessagePage is the canonical list envelope. NextCursor is set only when
// the page came back full, meaning older rows may exist.
type MessagePage struct {
	Items      []MessageItem `json:"items"`
	NextCursor string        `json:"nextCursor,omitempty"`
}

// PushMessage is the live-channel payload: the message plus the delivery
// direction and best-effort sender display metadata.
type PushMessage struct {
	Message
	Dir          string `json:"dir"` // "in" for the recipient, "out" for the sender's echo
	FromRoleName string `json:"fromRoleName,omitempty"`
	FromTableID  string `json:"fromTableId,omitempty"`
	FromSeatID   int    `json:"fromSeatId,omitempty"`
}

// SignalMatch is one row of a signal search.
type SignalMatch struct {
	Role    Occupant `json:"role"`
	TableID string   `json:"tableId"`
	SeatID  int      `json:"seatId"`
}

// NormalizeKind coerces arbitrary client input to a valid kind.
func NormalizeKind(kind string) string {
	if kind == KindResponse {
		return KindResponse
	}
	return KindRequest
}
