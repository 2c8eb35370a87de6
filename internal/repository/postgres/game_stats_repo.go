package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ta-forever/server/internal/repository"
)

// GameStatsRepo handles game_stats and game_player_stats operations.
type GameStatsRepo struct {
	db *sql.DB
}

// NewGameStatsRepo creates a GameStatsRepo.
func NewGameStatsRepo(db *sql.DB) *GameStatsRepo {
	return &GameStatsRepo{db: db}
}

// MaxGameID returns the highest game id ever issued, 0 for a fresh database.
func (r *GameStatsRepo) MaxGameID(ctx context.Context) (int, error) {
	var id int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(id), 0) FROM game_stats`,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("max game id: %w", err)
	}
	return id, nil
}

// Create inserts the game_stats row for a launched game.
func (r *GameStatsRepo) Create(ctx context.Context, g *repository.GameStats) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO game_stats (id, "startTime", "gameType", "gameMod", host, "mapId", "gameName", validity)
		 VALUES ($1, $2, $3,
		         (SELECT id FROM "game_featuredMods" WHERE gamemod = $4),
		         $5, NULLIF($6, 0), $7, $8)`,
		g.ID, g.StartTime, g.GameType, g.FeaturedMod, g.HostID, g.MapID, g.Name, g.Validity,
	)
	if err != nil {
		return fmt.Errorf("create game stats: %w", err)
	}
	return nil
}

// CreatePlayerStats inserts the per-player rows for a launched game.
func (r *GameStatsRepo) CreatePlayerStats(ctx context.Context, rows []repository.GamePlayerStats) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create player stats: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO game_player_stats
		   ("gameId", "playerId", "AI", faction, color, team, place, mean, deviation, score)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
	)
	if err != nil {
		return fmt.Errorf("create player stats: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		_, err := stmt.ExecContext(ctx,
			row.GameID, row.PlayerID, row.AI, row.Faction, row.Color,
			row.Team, row.Place, row.Mean, row.Deviation, row.Score,
		)
		if err != nil {
			return fmt.Errorf("create player stats for %d: %w", row.PlayerID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create player stats: %w", err)
	}
	return nil
}

// UpdateValidity stamps the validity downgrade onto the game row.
func (r *GameStatsRepo) UpdateValidity(ctx context.Context, gameID int, validity string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE game_stats SET validity = $1 WHERE id = $2`,
		validity, gameID,
	)
	if err != nil {
		return fmt.Errorf("update game validity: %w", err)
	}
	return nil
}

// UpdateEndTime stamps the simulation end time onto the game row.
func (r *GameStatsRepo) UpdateEndTime(ctx context.Context, gameID int, endTime time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE game_stats SET "endTime" = $1 WHERE id = $2`,
		endTime, gameID,
	)
	if err != nil {
		return fmt.Errorf("update game end time: %w", err)
	}
	return nil
}

// UpdateScores writes the reconciled per-player scores after a game ends.
func (r *GameStatsRepo) UpdateScores(ctx context.Context, gameID int, scores []repository.PlayerScore) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update scores: %w", err)
	}
	defer tx.Rollback()

	for _, s := range scores {
		_, err := tx.ExecContext(ctx,
			`UPDATE game_player_stats SET score = $1, "scoreTime" = NOW()
			 WHERE "gameId" = $2 AND "playerId" = $3`,
			s.Score, gameID, s.PlayerID,
		)
		if err != nil {
			return fmt.Errorf("update score for player %d: %w", s.PlayerID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update scores: %w", err)
	}
	return nil
}

// LinkMatchmakerQueue records which queue produced a matchmade game.
func (r *GameStatsRepo) LinkMatchmakerQueue(ctx context.Context, gameID, queueID int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO matchmaker_queue_game (matchmaker_queue_id, game_stats_id)
		 VALUES ($1, $2)`,
		queueID, gameID,
	)
	if err != nil {
		return fmt.Errorf("link matchmaker queue: %w", err)
	}
	return nil
}
