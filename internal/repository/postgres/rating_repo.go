package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ta-forever/server/internal/model"
	"github.com/ta-forever/server/internal/repository"
)

// RatingRepo persists leaderboard ratings and their journal.
type RatingRepo struct {
	db *sql.DB
}

// NewRatingRepo creates a RatingRepo.
func NewRatingRepo(db *sql.DB) *RatingRepo {
	return &RatingRepo{db: db}
}

// Rating returns the stored leaderboard row, or nil when the player has
// never been rated there.
func (r *RatingRepo) Rating(ctx context.Context, playerID int, rt model.RatingType) (*repository.LeaderboardRating, error) {
	row := &repository.LeaderboardRating{PlayerID: playerID, RatingType: rt}
	err := r.db.QueryRowContext(ctx,
		`SELECT lr.mean, lr.deviation, lr.total_games, lr.won_games, lr.drawn_games,
		        lr.lost_games, lr.streak, lr.best_streak, lr.recent_scores, lr.recent_mod
		 FROM leaderboard_rating lr
		 JOIN leaderboard l ON l.id = lr.leaderboard_id
		 WHERE lr.login_id = $1 AND l.technical_name = $2`,
		playerID, rt,
	).Scan(&row.Mean, &row.Deviation, &row.TotalGames, &row.WonGames, &row.DrawnGames,
		&row.LostGames, &row.Streak, &row.BestStreak, &row.RecentScores, &row.RecentMod)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find leaderboard rating: %w", err)
	}
	return row, nil
}

// InitRating inserts a first-seen row with the configured default rating.
func (r *RatingRepo) InitRating(ctx context.Context, playerID int, rt model.RatingType, mean, deviation float64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO leaderboard_rating
		   (login_id, leaderboard_id, mean, deviation, total_games,
		    won_games, drawn_games, lost_games, streak, best_streak, recent_scores, recent_mod)
		 SELECT $1, id, $3, $4, 0, 0, 0, 0, 0, 0, '', ''
		 FROM leaderboard WHERE technical_name = $2
		 ON CONFLICT (login_id, leaderboard_id) DO NOTHING`,
		playerID, rt, mean, deviation,
	)
	if err != nil {
		return fmt.Errorf("init leaderboard rating: %w", err)
	}
	return nil
}

// UpdateGamePlayerRating stamps the before/after rating onto the player's
// game_player_stats row and returns the row id, or 0 when no row matched.
func (r *RatingRepo) UpdateGamePlayerRating(ctx context.Context, gameID, playerID int, before, after model.Rating) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`UPDATE game_player_stats
		 SET mean = $1, deviation = $2, after_mean = $3, after_deviation = $4, "scoreTime" = NOW()
		 WHERE "gameId" = $5 AND "playerId" = $6
		 RETURNING id`,
		before.Mean, before.Sigma, after.Mean, after.Sigma, gameID, playerID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("update game player rating: %w", err)
	}
	return id, nil
}

// InsertJournal appends one rating-change record.
func (r *RatingRepo) InsertJournal(ctx context.Context, j *repository.RatingJournal) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO leaderboard_rating_journal
		   (game_player_stats_id, leaderboard_id,
		    rating_mean_before, rating_deviation_before,
		    rating_mean_after, rating_deviation_after)
		 SELECT $1, id, $3, $4, $5, $6 FROM leaderboard WHERE technical_name = $2`,
		j.GamePlayerStatsID, j.RatingType,
		j.MeanBefore, j.DeviationBefore, j.MeanAfter, j.DeviationAfter,
	)
	if err != nil {
		return fmt.Errorf("insert rating journal: %w", err)
	}
	return nil
}

// UpsertLeaderboardRating writes the fully recomputed aggregate row.
func (r *RatingRepo) UpsertLeaderboardRating(ctx context.Context, row *repository.LeaderboardRating) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO leaderboard_rating
		   (login_id, leaderboard_id, mean, deviation, total_games,
		    won_games, drawn_games, lost_games, streak, best_streak, recent_scores, recent_mod)
		 SELECT $1, id, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		 FROM leaderboard WHERE technical_name = $2
		 ON CONFLICT (login_id, leaderboard_id) DO UPDATE SET
		   mean = EXCLUDED.mean,
		   deviation = EXCLUDED.deviation,
		   total_games = EXCLUDED.total_games,
		   won_games = EXCLUDED.won_games,
		   drawn_games = EXCLUDED.drawn_games,
		   lost_games = EXCLUDED.lost_games,
		   streak = EXCLUDED.streak,
		   best_streak = EXCLUDED.best_streak,
		   recent_scores = EXCLUDED.recent_scores,
		   recent_mod = EXCLUDED.recent_mod`,
		row.PlayerID, row.RatingType, row.Mean, row.Deviation, row.TotalGames,
		row.WonGames, row.DrawnGames, row.LostGames, row.Streak, row.BestStreak,
		row.RecentScores, row.RecentMod,
	)
	if err != nil {
		return fmt.Errorf("upsert leaderboard rating: %w", err)
	}
	return nil
}
