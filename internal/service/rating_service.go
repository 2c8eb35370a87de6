package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ta-forever/server/internal/config"
	"github.com/ta-forever/server/internal/model"
	"github.com/ta-forever/server/internal/repository"
	"github.com/ta-forever/server/pkg/trueskill"
)

// RatingCallback is notified after a game has been rated and persisted.
// Callbacks run on the rating worker goroutine, in registration order.
type RatingCallback func(info *model.EndedGameInfo, old map[int]model.RankedRating, newRatings map[int]model.Rating, likelihoods []model.OutcomeLikelihoods)

// recentScoresLen caps the per-player score history string.
const recentScoresLen = 10

// RatingService rates finished games on a single worker goroutine so
// leaderboard rows are never updated concurrently for the same player.
type RatingService struct {
	env   trueskill.Env
	start model.Rating
	repo  repository.RatingRepository
	index repository.LeaderboardIndex

	mu        sync.Mutex
	accepting bool
	closed    bool
	cancel    context.CancelFunc
	callbacks []RatingCallback

	queue chan *model.EndedGameInfo
	done  chan struct{}
}

// NewRatingService creates a stopped RatingService. Call Start before
// enqueueing games.
func NewRatingService(cfg *config.Config, repo repository.RatingRepository, index repository.LeaderboardIndex) *RatingService {
	return &RatingService{
		env: trueskill.Env{
			Beta:            cfg.RatingBeta,
			Tau:             cfg.RatingTau,
			DrawProbability: cfg.RatingDrawProb,
		},
		start: model.Rating{Mean: cfg.StartRatingMean, Sigma: cfg.StartRatingDev},
		repo:  repo,
		index: index,
		queue: make(chan *model.EndedGameInfo, 128),
		done:  make(chan struct{}),
	}
}

// AddCallback registers a post-rating callback. Not safe to call after
// Start.
func (s *RatingService) AddCallback(cb RatingCallback) {
	s.callbacks = append(s.callbacks, cb)
}

// Start launches the worker and begins accepting games.
func (s *RatingService) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.accepting = true
	s.cancel = cancel
	s.mu.Unlock()
	go s.run(ctx)
}

// Enqueue submits a finished game for rating. Games are rejected once the
// service has stopped accepting or when the queue is full.
func (s *RatingService) Enqueue(info *model.EndedGameInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.accepting {
		return ErrServiceNotReady
	}
	select {
	case s.queue <- info:
		return nil
	default:
		return fmt.Errorf("rating queue full: %w", ErrServiceNotReady)
	}
}

// Pending returns the number of games waiting to be rated.
func (s *RatingService) Pending() int {
	return len(s.queue)
}

// Shutdown stops accepting new games, rates everything already queued and
// returns once the worker has exited.
func (s *RatingService) Shutdown() {
	s.stop(false)
	<-s.done
}

// Kill cancels in-flight work and discards the remaining queue.
func (s *RatingService) Kill() {
	s.stop(true)
	<-s.done
}

func (s *RatingService) stop(cancel bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accepting = false
	if cancel && s.cancel != nil {
		s.cancel()
	}
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
}

func (s *RatingService) run(ctx context.Context) {
	defer close(s.done)
	for info := range s.queue {
		select {
		case <-ctx.Done():
			log.Warn().Int("game_id", info.GameID).Msg("rating worker cancelled, dropping game")
			continue
		default:
		}
		s.rateGame(ctx, info)
	}
}

// rateGame runs the full pipeline for one game: load old ratings, compute
// the skill update, persist, then notify callbacks. A game the rater
// rejects leaves the database untouched.
func (s *RatingService) rateGame(ctx context.Context, info *model.EndedGameInfo) {
	logger := log.With().Int("game_id", info.GameID).Str("rating_type", info.RatingType).Logger()

	rows, oldRanked, err := s.fetchOldRatings(ctx, info)
	if err != nil {
		logger.Error().Err(err).Msg("loading ratings")
		return
	}
	oldRatings := make(map[int]model.Rating, len(oldRanked))
	for pid, r := range oldRanked {
		oldRatings[pid] = r.Rating
	}

	newRatings, likelihoods, err := ratePlayers(s.env, info, oldRatings)
	if err != nil {
		logger.Warn().Err(err).Msg("game not rated")
		return
	}

	teams, err := groupTeams(info)
	if err != nil {
		logger.Warn().Err(err).Msg("game not rated")
		return
	}
	for _, t := range teams {
		for _, pid := range t.PlayerIDs {
			if err := s.persistPlayer(ctx, info, rows[pid], newRatings[pid], t.Outcome); err != nil {
				logger.Error().Err(err).Int("player_id", pid).Msg("persisting rating")
			}
		}
	}

	for _, cb := range s.callbacks {
		cb(info, oldRanked, newRatings, likelihoods)
	}
	logger.Info().Int("players", len(newRatings)).Msg("game rated")
}

// fetchOldRatings loads or initializes the leaderboard row of every player
// in the game and annotates each rating with its current rank. Unranked
// players are seeded onto the index first.
func (s *RatingService) fetchOldRatings(ctx context.Context, info *model.EndedGameInfo) (map[int]*repository.LeaderboardRating, map[int]model.RankedRating, error) {
	rows := make(map[int]*repository.LeaderboardRating)
	ranked := make(map[int]model.RankedRating)
	for _, pid := range info.PlayerIDs() {
		row, err := s.repo.Rating(ctx, pid, info.RatingType)
		if err != nil {
			return nil, nil, fmt.Errorf("rating for player %d: %w", pid, err)
		}
		if row == nil {
			if err := s.repo.InitRating(ctx, pid, info.RatingType, s.start.Mean, s.start.Sigma); err != nil {
				return nil, nil, fmt.Errorf("init rating for player %d: %w", pid, err)
			}
			row = &repository.LeaderboardRating{
				PlayerID:   pid,
				RatingType: info.RatingType,
				Mean:       s.start.Mean,
				Deviation:  s.start.Sigma,
			}
		}
		rating := model.Rating{Mean: row.Mean, Sigma: row.Deviation}

		rank, size, err := s.index.Rank(ctx, info.RatingType, pid)
		if errors.Is(err, repository.ErrNotRanked) {
			if err := s.index.SetScore(ctx, info.RatingType, pid, rating.DisplayedRating()); err != nil {
				return nil, nil, fmt.Errorf("seeding leaderboard index for player %d: %w", pid, err)
			}
			rank, size, err = s.index.Rank(ctx, info.RatingType, pid)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("leaderboard rank for player %d: %w", pid, err)
		}

		rows[pid] = row
		ranked[pid] = model.RankedRating{Rating: rating, Rank: rank, LeaderboardSize: size}
	}
	return rows, ranked, nil
}

// persistPlayer writes one player's rating change: the before/after stamp
// on their game_player_stats row, the journal entry and the aggregate
// leaderboard row, then refreshes the rank index.
func (s *RatingService) persistPlayer(ctx context.Context, info *model.EndedGameInfo, row *repository.LeaderboardRating, after model.Rating, outcome model.GameOutcome) error {
	before := model.Rating{Mean: row.Mean, Sigma: row.Deviation}

	statsID, err := s.repo.UpdateGamePlayerRating(ctx, info.GameID, row.PlayerID, before, after)
	if err != nil {
		return fmt.Errorf("update game player rating: %w", err)
	}
	if statsID == 0 {
		// AI replacements and forced-rated games can legitimately lack a
		// stats row. The leaderboard still advances.
		log.Warn().
			Int("game_id", info.GameID).
			Int("player_id", row.PlayerID).
			Msg("no game_player_stats row, skipping rating journal")
	} else {
		err := s.repo.InsertJournal(ctx, &repository.RatingJournal{
			GamePlayerStatsID: statsID,
			PlayerID:          row.PlayerID,
			GameID:            info.GameID,
			RatingType:        info.RatingType,
			MeanBefore:        before.Mean,
			DeviationBefore:   before.Sigma,
			MeanAfter:         after.Mean,
			DeviationAfter:    after.Sigma,
		})
		if err != nil {
			return fmt.Errorf("insert rating journal: %w", err)
		}
	}

	score := 0
	switch outcome {
	case model.OutcomeVictory:
		score = 1
		row.WonGames++
	case model.OutcomeDraw:
		row.DrawnGames++
	default:
		score = -1
		row.LostGames++
	}
	row.Mean = after.Mean
	row.Deviation = after.Sigma
	row.TotalGames++
	if row.Streak*score >= 0 {
		row.Streak += score
	} else {
		row.Streak = score
	}
	if row.Streak > row.BestStreak {
		row.BestStreak = row.Streak
	}
	row.RecentScores = strconv.Itoa(score+1) + row.RecentScores
	if len(row.RecentScores) > recentScoresLen {
		row.RecentScores = row.RecentScores[:recentScoresLen]
	}
	row.RecentMod = info.FeaturedMod

	if err := s.repo.UpsertLeaderboardRating(ctx, row); err != nil {
		return fmt.Errorf("upsert leaderboard rating: %w", err)
	}
	if err := s.index.SetScore(ctx, info.RatingType, row.PlayerID, after.DisplayedRating()); err != nil {
		return fmt.Errorf("refresh leaderboard index: %w", err)
	}
	return nil
}
