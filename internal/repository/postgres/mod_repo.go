package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// ModRepo handles sim-mod catalog operations on table_mod.
type ModRepo struct {
	db *sql.DB
}

// NewModRepo creates a ModRepo.
func NewModRepo(db *sql.DB) *ModRepo {
	return &ModRepo{db: db}
}

// NamesByUID resolves mod uids to display names. Unknown uids are omitted.
func (r *ModRepo) NamesByUID(ctx context.Context, uids []string) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT uid, name FROM table_mod WHERE uid = ANY($1)`,
		pq.Array(uids),
	)
	if err != nil {
		return nil, fmt.Errorf("find mod names: %w", err)
	}
	defer rows.Close()

	names := make(map[string]string, len(uids))
	for rows.Next() {
		var uid, name string
		if err := rows.Scan(&uid, &name); err != nil {
			return nil, fmt.Errorf("scan mod name: %w", err)
		}
		names[uid] = name
	}
	return names, rows.Err()
}

// IncrementPlayCounts bumps the played counter of each mod.
func (r *ModRepo) IncrementPlayCounts(ctx context.Context, uids []string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE table_mod SET played = played + 1 WHERE uid = ANY($1)`,
		pq.Array(uids),
	)
	if err != nil {
		return fmt.Errorf("increment mod play counts: %w", err)
	}
	return nil
}

// RankedUIDs returns the uids of mods allowed in ranked games.
func (r *ModRepo) RankedUIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT uid FROM table_mod WHERE ranked = TRUE`,
	)
	if err != nil {
		return nil, fmt.Errorf("list ranked mods: %w", err)
	}
	defer rows.Close()

	uids := make(map[string]struct{})
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("scan ranked mod uid: %w", err)
		}
		uids[uid] = struct{}{}
	}
	return uids, rows.Err()
}
