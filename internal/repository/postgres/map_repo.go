package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ta-forever/server/internal/repository"
)

// MapRepo resolves maps against the map_version table.
type MapRepo struct {
	db *sql.DB
}

// NewMapRepo creates a MapRepo.
func NewMapRepo(db *sql.DB) *MapRepo {
	return &MapRepo{db: db}
}

// VersionByName looks a map up by the name game clients report. The vault
// stores maps as "maps/<name>.zip".
func (r *MapRepo) VersionByName(ctx context.Context, name string) (*repository.MapVersion, error) {
	var v repository.MapVersion
	err := r.db.QueryRowContext(ctx,
		`SELECT id, filename, ranked FROM map_version
		 WHERE lower(filename) = lower('maps/' || $1 || '.zip')`,
		name,
	).Scan(&v.ID, &v.FileName, &v.Ranked)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("map %q not in vault", name)
	}
	if err != nil {
		return nil, fmt.Errorf("find map version: %w", err)
	}
	v.Name = name
	return &v, nil
}

// RankedMapIDs returns the ids of every ranked map version.
func (r *MapRepo) RankedMapIDs(ctx context.Context) ([]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM map_version WHERE ranked = TRUE`,
	)
	if err != nil {
		return nil, fmt.Errorf("list ranked maps: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan ranked map id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
