package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ta-forever/server/internal/repository"
)

// PlayerRepo loads player identity, social lists and ratings at sign-in.
type PlayerRepo struct {
	db *sql.DB
}

// NewPlayerRepo creates a PlayerRepo.
func NewPlayerRepo(db *sql.DB) *PlayerRepo {
	return &PlayerRepo{db: db}
}

// Profile loads one player's identity and friend/foe lists.
func (r *PlayerRepo) Profile(ctx context.Context, id int) (*repository.PlayerProfile, error) {
	p := &repository.PlayerProfile{ID: id}
	var alias sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT login, alias FROM login WHERE id = $1`,
		id,
	).Scan(&p.Login, &alias)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("player %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("find player: %w", err)
	}
	p.Alias = alias.String

	rows, err := r.db.QueryContext(ctx,
		`SELECT subject_id, status FROM friends_and_foes WHERE user_id = $1`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("load social lists: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var subject int
		var status string
		if err := rows.Scan(&subject, &status); err != nil {
			return nil, fmt.Errorf("scan social entry: %w", err)
		}
		switch status {
		case "FRIEND":
			p.Friends = append(p.Friends, subject)
		case "FOE":
			p.Foes = append(p.Foes, subject)
		}
	}
	return p, rows.Err()
}

// UserGroups returns the technical names of the player's user groups.
func (r *PlayerRepo) UserGroups(ctx context.Context, id int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ug.technical_name
		 FROM user_group_assignment uga
		 JOIN user_group ug ON ug.id = uga.group_id
		 WHERE uga.user_id = $1`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("load user groups: %w", err)
	}
	defer rows.Close()
	var groups []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan user group: %w", err)
		}
		groups = append(groups, name)
	}
	return groups, rows.Err()
}

// UniqueIDExemptIDs lists the players exempt from the unique-id check.
func (r *PlayerRepo) UniqueIDExemptIDs(ctx context.Context) ([]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id FROM uniqueid_exempt`)
	if err != nil {
		return nil, fmt.Errorf("load uniqueid exemptions: %w", err)
	}
	defer rows.Close()
	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan uniqueid exemption: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Ratings loads a player's standing on every leaderboard.
func (r *PlayerRepo) Ratings(ctx context.Context, id int) ([]repository.PlayerRating, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT l.technical_name, lr.mean, lr.deviation, lr.total_games
		 FROM leaderboard_rating lr
		 JOIN leaderboard l ON l.id = lr.leaderboard_id
		 WHERE lr.login_id = $1`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("load ratings: %w", err)
	}
	defer rows.Close()

	var ratings []repository.PlayerRating
	for rows.Next() {
		pr := repository.PlayerRating{PlayerID: id}
		if err := rows.Scan(&pr.RatingType, &pr.Mean, &pr.Deviation, &pr.TotalGames); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		ratings = append(ratings, pr)
	}
	return ratings, rows.Err()
}
