package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ta-forever/server/internal/model"
)

// GameStats is the persistent record of a hosted game.
type GameStats struct {
	ID          int
	StartTime   time.Time
	EndTime     *time.Time
	GameType    string
	FeaturedMod string
	HostID      int
	MapID       int
	Name        string
	Validity    string
}

// GamePlayerStats is the persistent per-player record of a game.
type GamePlayerStats struct {
	GameID    int
	PlayerID  int
	AI        bool
	Faction   int
	Color     int
	Team      int
	Place     int
	Mean      float64
	Deviation float64
	Score     int
}

// PlayerScore carries a resolved score and outcome for persistence after a
// game ends.
type PlayerScore struct {
	PlayerID int
	Score    int
}

// MapVersion describes one uploaded version of a map.
type MapVersion struct {
	ID       int
	Name     string
	FileName string
	Ranked   bool
}

// GameStatsRepository defines game history persistence.
type GameStatsRepository interface {
	// MaxGameID seeds the in-memory id counter at startup.
	MaxGameID(ctx context.Context) (int, error)
	Create(ctx context.Context, g *GameStats) error
	CreatePlayerStats(ctx context.Context, rows []GamePlayerStats) error
	UpdateValidity(ctx context.Context, gameID int, validity string) error
	UpdateEndTime(ctx context.Context, gameID int, endTime time.Time) error
	UpdateScores(ctx context.Context, gameID int, scores []PlayerScore) error
	LinkMatchmakerQueue(ctx context.Context, gameID, queueID int) error
}

// MapRepository resolves map names against the map vault.
type MapRepository interface {
	VersionByName(ctx context.Context, name string) (*MapVersion, error)
	RankedMapIDs(ctx context.Context) ([]int, error)
}

// ModRepository defines sim-mod catalog operations.
type ModRepository interface {
	NamesByUID(ctx context.Context, uids []string) (map[string]string, error)
	IncrementPlayCounts(ctx context.Context, uids []string) error
	RankedUIDs(ctx context.Context) (map[string]struct{}, error)
}

// CoopResult is a completed co-op mission attempt.
type CoopResult struct {
	MissionID     int
	GameID        int
	SecondsPlayed int
	Secondary     bool
	PlayerCount   int
}

// CoopRepository defines co-op leaderboard persistence.
type CoopRepository interface {
	MissionIDByMap(ctx context.Context, mapName string) (int, error)
	RecordResult(ctx context.Context, r *CoopResult) error
}

// Teamkill is one reported teamkill incident.
type Teamkill struct {
	TeamkillerID int
	VictimID     int
	GameID       int
	GameTime     int
}

// TeamkillRepository records teamkill incidents.
type TeamkillRepository interface {
	Record(ctx context.Context, t *Teamkill) error
}

// PlayerProfile is the persistent identity of a player, loaded at sign-in.
type PlayerProfile struct {
	ID      int
	Login   string
	Alias   string
	Friends []int
	Foes    []int
}

// PlayerRating is a player's standing on one leaderboard.
type PlayerRating struct {
	PlayerID   int
	RatingType model.RatingType
	Mean       float64
	Deviation  float64
	TotalGames int
}

// PlayerRepository defines player identity and social-list loading.
type PlayerRepository interface {
	Profile(ctx context.Context, id int) (*PlayerProfile, error)
	Ratings(ctx context.Context, id int) ([]PlayerRating, error)
	// UserGroups returns the technical names of the groups the player is
	// assigned to.
	UserGroups(ctx context.Context, id int) ([]string, error)
	// UniqueIDExemptIDs lists every player exempt from the unique-id
	// hardware check.
	UniqueIDExemptIDs(ctx context.Context) ([]int, error)
}

// LeaderboardRating is the aggregate leaderboard row for one player.
type LeaderboardRating struct {
	PlayerID     int
	RatingType   model.RatingType
	Mean         float64
	Deviation    float64
	TotalGames   int
	WonGames     int
	DrawnGames   int
	LostGames    int
	Streak       int
	BestStreak   int
	RecentScores string
	RecentMod    string
}

// RatingJournal is one append-only rating-change record.
type RatingJournal struct {
	GamePlayerStatsID int64
	PlayerID          int
	GameID            int
	RatingType        model.RatingType
	MeanBefore        float64
	DeviationBefore   float64
	MeanAfter         float64
	DeviationAfter    float64
}

// RatingRepository defines leaderboard persistence for the rating pipeline.
type RatingRepository interface {
	// Rating returns the stored rating or nil when the player has never
	// been rated on that leaderboard.
	Rating(ctx context.Context, playerID int, rt model.RatingType) (*LeaderboardRating, error)
	InitRating(ctx context.Context, playerID int, rt model.RatingType, mean, deviation float64) error
	// UpdateGamePlayerRating stamps the before/after rating onto the
	// game_player_stats row and returns its id, or 0 when no row matched.
	UpdateGamePlayerRating(ctx context.Context, gameID, playerID int, before, after model.Rating) (int64, error)
	InsertJournal(ctx context.Context, j *RatingJournal) error
	UpsertLeaderboardRating(ctx context.Context, r *LeaderboardRating) error
}

// ErrNotRanked is returned when a player has no entry on a leaderboard
// index.
var ErrNotRanked = errors.New("player not on leaderboard")

// LeaderboardIndex is the live rank index over displayed ratings.
type LeaderboardIndex interface {
	SetScore(ctx context.Context, rt model.RatingType, playerID int, displayed float64) error
	// Rank returns the zero-based position from the top and the board size.
	Rank(ctx context.Context, rt model.RatingType, playerID int) (rank, size int, err error)
	Remove(ctx context.Context, rt model.RatingType, playerID int) error
}
