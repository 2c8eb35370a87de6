package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ta-forever/server/internal/model"
	"github.com/ta-forever/server/internal/repository"
)

const staticDataRefreshInterval = 10 * time.Minute

// PlayerService owns the registry of signed-in players and the dirty set
// the broadcaster drains into player_info batches.
type PlayerService struct {
	repo repository.PlayerRepository

	mu             sync.RWMutex
	players        map[int]*model.Player
	dirty          map[int]*model.Player
	uniqueidExempt map[int]struct{}
}

// NewPlayerService creates a PlayerService.
func NewPlayerService(repo repository.PlayerRepository) *PlayerService {
	return &PlayerService{
		repo:           repo,
		players:        make(map[int]*model.Player),
		dirty:          make(map[int]*model.Player),
		uniqueidExempt: make(map[int]struct{}),
	}
}

// RefreshStaticData reloads the rarely-changing set of players exempt from
// the unique-id hardware check.
func (s *PlayerService) RefreshStaticData(ctx context.Context) error {
	ids, err := s.repo.UniqueIDExemptIDs(ctx)
	if err != nil {
		return fmt.Errorf("loading uniqueid exemptions: %w", err)
	}
	exempt := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		exempt[id] = struct{}{}
	}
	s.mu.Lock()
	s.uniqueidExempt = exempt
	s.mu.Unlock()
	return nil
}

// IsUniqueIDExempt reports whether the player may skip the unique-id check.
func (s *PlayerService) IsUniqueIDExempt(id int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.uniqueidExempt[id]
	return ok
}

// Run refreshes the static data periodically until the context is
// cancelled.
func (s *PlayerService) Run(ctx context.Context) {
	ticker := time.NewTicker(staticDataRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RefreshStaticData(ctx); err != nil {
				log.Error().Err(err).Msg("refreshing player static data")
			}
		}
	}
}

// SignIn loads a player's profile and ratings and registers them.
func (s *PlayerService) SignIn(ctx context.Context, id int) (*model.Player, error) {
	profile, err := s.repo.Profile(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("signing in player %d: %w", id, err)
	}
	p := model.NewPlayer(profile.ID, profile.Login)
	p.SetAlias(profile.Alias)
	p.SetFriends(profile.Friends)
	p.SetFoes(profile.Foes)

	groups, err := s.repo.UserGroups(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading user groups for player %d: %w", id, err)
	}
	p.SetUserGroups(groups)

	ratings, err := s.repo.Ratings(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading ratings for player %d: %w", id, err)
	}
	for _, r := range ratings {
		p.SetRating(r.RatingType, model.Rating{Mean: r.Mean, Sigma: r.Deviation})
		p.SetGameCount(r.RatingType, r.TotalGames)
	}

	s.mu.Lock()
	s.players[id] = p
	s.mu.Unlock()
	s.MarkDirty(p)
	return p, nil
}

// Get returns a registered player.
func (s *PlayerService) Get(id int) (*model.Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	return p, ok
}

// Remove drops a player from the registry on sign-out.
func (s *PlayerService) Remove(id int) {
	s.mu.Lock()
	delete(s.players, id)
	delete(s.dirty, id)
	s.mu.Unlock()
}

// All returns every signed-in player.
func (s *PlayerService) All() []*model.Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	players := make([]*model.Player, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, p)
	}
	return players
}

// MarkDirty schedules a player_info broadcast for the player.
func (s *PlayerService) MarkDirty(p *model.Player) {
	s.mu.Lock()
	s.dirty[p.ID] = p
	s.mu.Unlock()
}

// SetPlayerState updates the player's activity and marks them dirty only
// when it actually changed.
func (s *PlayerService) SetPlayerState(p *model.Player, state model.PlayerState) {
	if p.State() == state {
		return
	}
	p.SetState(state)
	s.MarkDirty(p)
}

// OnRatingChange is the rating-pipeline callback keeping the in-memory
// rating cache authoritative.
func (s *PlayerService) OnRatingChange(info *model.EndedGameInfo, _ map[int]model.RankedRating, newRatings map[int]model.Rating, _ []model.OutcomeLikelihoods) {
	for playerID, rating := range newRatings {
		p, ok := s.Get(playerID)
		if !ok {
			continue
		}
		p.SetRating(info.RatingType, rating)
		p.SetGameCount(info.RatingType, p.GameCount(info.RatingType)+1)
		s.MarkDirty(p)
		log.Debug().
			Int("player_id", playerID).
			Str("rating_type", info.RatingType).
			Float64("mean", rating.Mean).
			Msg("player rating updated")
	}
}

// DrainDirty returns and clears the dirty set.
func (s *PlayerService) DrainDirty() []*model.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.dirty) == 0 {
		return nil
	}
	players := make([]*model.Player, 0, len(s.dirty))
	for _, p := range s.dirty {
		players = append(players, p)
	}
	s.dirty = make(map[int]*model.Player)
	sort.Slice(players, func(i, j int) bool { return players[i].ID < players[j].ID })
	return players
}

// PlayerInfoMessage builds the coalesced player_info batch.
func PlayerInfoMessage(players []*model.Player) map[string]any {
	entries := make([]map[string]any, 0, len(players))
	for _, p := range players {
		ratings := make(map[string]any)
		for _, rt := range []model.RatingType{model.RatingGlobal, model.RatingLadder} {
			if r, ok := p.Rating(rt); ok {
				ratings[rt] = map[string]any{
					"rating":          []float64{r.Mean, r.Sigma},
					"number_of_games": p.GameCount(rt),
				}
			}
		}
		entry := map[string]any{
			"id":      p.ID,
			"login":   p.Login,
			"alias":   p.Alias(),
			"state":   p.State().String(),
			"ratings": ratings,
		}
		if p.CurrentGameID != 0 {
			entry["current_game_uid"] = p.CurrentGameID
		}
		entries = append(entries, entry)
	}
	return map[string]any{
		"command": "player_info",
		"players": entries,
	}
}
