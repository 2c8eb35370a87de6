package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ta-forever/server/internal/repository"
)

// TeamkillRepo records teamkill incidents.
type TeamkillRepo struct {
	db *sql.DB
}

// NewTeamkillRepo creates a TeamkillRepo.
func NewTeamkillRepo(db *sql.DB) *TeamkillRepo {
	return &TeamkillRepo{db: db}
}

// Record appends one teamkill incident.
func (r *TeamkillRepo) Record(ctx context.Context, t *repository.Teamkill) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO teamkills (teamkiller, victim, game_id, gametime)
		 VALUES ($1, $2, $3, $4)`,
		t.TeamkillerID, t.VictimID, t.GameID, t.GameTime,
	)
	if err != nil {
		return fmt.Errorf("record teamkill: %w", err)
	}
	return nil
}
