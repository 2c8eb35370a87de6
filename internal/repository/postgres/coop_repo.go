package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ta-forever/server/internal/repository"
)

// CoopRepo handles co-op mission and leaderboard operations.
type CoopRepo struct {
	db *sql.DB
}

// NewCoopRepo creates a CoopRepo.
func NewCoopRepo(db *sql.DB) *CoopRepo {
	return &CoopRepo{db: db}
}

// MissionIDByMap finds the co-op mission played on the given map.
func (r *CoopRepo) MissionIDByMap(ctx context.Context, mapName string) (int, error) {
	var id int
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM coop_map WHERE lower(filename) LIKE lower('%/' || $1 || '.%')`,
		mapName,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("no co-op mission for map %q", mapName)
	}
	if err != nil {
		return 0, fmt.Errorf("find co-op mission: %w", err)
	}
	return id, nil
}

// RecordResult appends a completed mission attempt to the co-op leaderboard.
func (r *CoopRepo) RecordResult(ctx context.Context, res *repository.CoopResult) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO coop_leaderboard (mission, gameuid, secondary, time, player_count)
		 VALUES ($1, $2, $3, make_interval(secs => $4), $5)`,
		res.MissionID, res.GameID, res.Secondary, res.SecondsPlayed, res.PlayerCount,
	)
	if err != nil {
		return fmt.Errorf("record co-op result: %w", err)
	}
	return nil
}
