package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heiloMeow/nudgeeq/internal/models"
)

type SignalStore struct {
	pool *pgxpool.Pool
}

func NewSignalStore(pool *pgxpool.Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

// Search matches any whitespace-separated term of q as a substring of the
// normalized signal index. Index entries are already lower-cased, so a
// plain LIKE with a lowered pattern is case-insensitive.
func (s *SignalStore) Search(ctx context.Context, q string, limit int) ([]models.SignalMatch, error) {
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

	conds := make([]string, 0, len(terms))
	args := make([]any, 0, len(terms)+1)
	for _, term := range terms {
		args = append(args, "%"+escapeLike(term)+"%")
		conds = append(conds, fmt.Sprintf("s.signal LIKE $%d", len(args)))
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT r.id, r.name, r.avatar, r.signals, r.table_id, r.seat_id
		FROM roles r
		WHERE EXISTS (
			SELECT 1 FROM role_signals s
			WHERE s.role_id = r.id AND (%s)
		)
		ORDER BY r.created_at DESC
		LIMIT $%d`, strings.Join(conds, " OR "), len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search signals: %w", err)
	}
	defer rows.Close()

	matches := make([]models.SignalMatch, 0, limit)
	for rows.Next() {
		var m models.SignalMatch
		var rawSignals []byte
		if err := rows.Scan(&m.Role.ID, &m.Role.Name, &m.Role.Avatar, &rawSignals,
			&m.TableID, &m.SeatID); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		m.Role.Signals = parseSignals(rawSignals)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return matches, nil
}

// escapeLike neutralizes LIKE metacharacters so a term matches itself
// literally, keeping this store's semantics aligned with the memory
// store's plain substring match.
func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
