package repository

import (
	"strings"
	"time"
)

// Keyset cursor for message pages: "<RFC3339Nano createdAt>_<id>" of the
// last item of the previous page. Timestamps alone are not a total order
// (two inserts can share one), so the id is the tiebreak; a page continues
// strictly below (createdAt, id).

// Cursor is the decoded form. A zero Cursor means "from the top".
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

func (c Cursor) IsZero() bool {
	return c.ID == "" && c.CreatedAt.IsZero()
}

// EncodeCursor renders the opaque wire form.
func EncodeCursor(createdAt time.Time, id string) string {
	return createdAt.UTC().Format(time.RFC3339Nano) + "_" + id
}

// ParseCursor decodes a wire cursor. Malformed input yields the zero
// cursor: a bad cursor degrades to the first page instead of erroring,
// matching how clients recover from a stale bookmark.
//
// The split is on the first underscore: RFC3339Nano timestamps never
// contain one, while ids may contain any number of them.
func ParseCursor(s string) Cursor {
	if s == "" {
		return Cursor{}
	}
	i := strings.Index(s, "_")
	if i <= 0 || i == len(s)-1 {
		return Cursor{}
	}
	ts, err := time.Parse(time.RFC3339Nano, s[:i])
	if err != nil {
		return Cursor{}
	}
	return Cursor{CreatedAt: ts, ID: s[i+1:]}
}

// ClampLimit bounds a page size to [1,100], defaulting to 20.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
