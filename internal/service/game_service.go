package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ta-forever/server/internal/config"
	"github.com/ta-forever/server/internal/game"
	"github.com/ta-forever/server/internal/matchmaker"
	"github.com/ta-forever/server/internal/model"
)

// ResultsBus publishes ended-game summaries to the message bus.
type ResultsBus interface {
	Publish(routingKey string, payload any) error
}

// gameResultsRoutingKey is the topic other services bind for rated results.
const gameResultsRoutingKey = "success.gameResults.create"

// DirtyGame is one pending game_info broadcast with its coalesced flags.
type DirtyGame struct {
	Game        *game.Game
	OnlyToPeers bool
	PingsOnly   bool
}

// GameService owns the game registry, the server-wide game id counter and
// the dirty sets drained by the broadcaster.
type GameService struct {
	cfg    *config.Config
	stores game.Stores
	rating *RatingService
	bus    ResultsBus

	mu          sync.Mutex
	games       map[int]*game.Game
	nextID      int
	dirtyGames  map[int]*DirtyGame
	dirtyQueues map[int]*matchmaker.Queue

	queues       []*matchmaker.Queue
	rankedMapIDs map[int]struct{}
}

// NewGameService creates a GameService. The bus may be nil when message
// publishing is disabled.
func NewGameService(cfg *config.Config, stores game.Stores, rating *RatingService, bus ResultsBus) *GameService {
	return &GameService{
		cfg:         cfg,
		stores:      stores,
		rating:      rating,
		bus:         bus,
		games:       make(map[int]*game.Game),
		dirtyGames:  make(map[int]*DirtyGame),
		dirtyQueues: make(map[int]*matchmaker.Queue),
	}
}

// Initialize seeds the id counter from game history and loads the ranked
// map set used for rating-type assignment.
func (s *GameService) Initialize(ctx context.Context) error {
	maxID, err := s.stores.Games.MaxGameID(ctx)
	if err != nil {
		return fmt.Errorf("seeding game id counter: %w", err)
	}
	rankedIDs := make(map[int]struct{})
	if !s.cfg.StrictMapPool {
		ids, err := s.stores.Maps.RankedMapIDs(ctx)
		if err != nil {
			return fmt.Errorf("loading ranked maps: %w", err)
		}
		for _, id := range ids {
			rankedIDs[id] = struct{}{}
		}
	}
	s.mu.Lock()
	s.nextID = maxID + 1
	s.rankedMapIDs = rankedIDs
	s.mu.Unlock()
	log.Info().Int("next_game_id", maxID+1).Int("ranked_maps", len(rankedIDs)).Msg("game service initialized")
	return nil
}

// SetQueues installs the matchmaker queues consulted for rating-type
// assignment and map-pool gating.
func (s *GameService) SetQueues(queues []*matchmaker.Queue) {
	s.mu.Lock()
	s.queues = queues
	s.mu.Unlock()
}

// Queues implements game.QueueProvider.
func (s *GameService) Queues() []*matchmaker.Queue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queues
}

// RankedMapIDs implements game.QueueProvider.
func (s *GameService) RankedMapIDs() map[int]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rankedMapIDs
}

// CreateID returns the next game id from the monotonic counter.
func (s *GameService) CreateID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	return id
}

// CreateGame constructs a game of the kind matching its featured mod,
// registers it and marks it dirty.
func (s *GameService) CreateGame(opts game.Options) *game.Game {
	if opts.ID == 0 {
		opts.ID = s.CreateID()
	}
	if opts.Kind.Name == "" {
		opts.Kind = game.KindForMod(opts.FeaturedMod, game.KindConfig{
			LadderOutcomeFromScore: s.cfg.Ladder1v1OutcomeOverride,
		})
	}
	if opts.SetupTimeout == 0 {
		opts.SetupTimeout = s.cfg.GameSetupTimeout
	}
	g := game.New(opts, s, s, s.stores)

	s.mu.Lock()
	s.games[g.ID] = g
	s.mu.Unlock()

	log.Info().
		Int("game_id", g.ID).
		Str("kind", opts.Kind.Name).
		Str("host", opts.Host.Login).
		Msg("game created")
	s.MarkDirty(g, false, false)
	return g
}

// Get returns a registered game.
func (s *GameService) Get(id int) (*game.Game, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	return g, ok
}

// All returns every registered game.
func (s *GameService) All() []*game.Game {
	s.mu.Lock()
	defer s.mu.Unlock()
	games := make([]*game.Game, 0, len(s.games))
	for _, g := range s.games {
		games = append(games, g)
	}
	sort.Slice(games, func(i, j int) bool { return games[i].ID < games[j].ID })
	return games
}

// MarkDirty implements game.Registry. Flags accumulate by OR-ing into any
// pending record so a tick never loses a requested broadcast scope.
func (s *GameService) MarkDirty(g *game.Game, onlyToPeers, pingsOnly bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.dirtyGames[g.ID]; ok {
		d.OnlyToPeers = d.OnlyToPeers || onlyToPeers
		d.PingsOnly = d.PingsOnly || pingsOnly
		return
	}
	s.dirtyGames[g.ID] = &DirtyGame{Game: g, OnlyToPeers: onlyToPeers, PingsOnly: pingsOnly}
}

// MarkQueueDirty schedules a matchmaker_info broadcast.
func (s *GameService) MarkQueueDirty(q *matchmaker.Queue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirtyQueues[q.ID] = q
}

// RemoveGame implements game.Registry.
func (s *GameService) RemoveGame(g *game.Game) {
	s.mu.Lock()
	_, registered := s.games[g.ID]
	delete(s.games, g.ID)
	s.mu.Unlock()
	if registered {
		log.Info().Int("game_id", g.ID).Msg("game removed")
		// One final broadcast so clients drop it from their lists.
		s.MarkDirty(g, false, false)
	}
}

// PublishResults implements game.Registry: valid rated games are queued
// for rating, and every result is announced on the bus at least once from
// our side.
func (s *GameService) PublishResults(ctx context.Context, info *model.EndedGameInfo) {
	if info.Validity == model.ValidityValid && info.RatingType != "" {
		if err := s.rating.Enqueue(info); err != nil {
			log.Warn().Err(err).Int("game_id", info.GameID).Msg("rating queue rejected game")
		}
	}
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(gameResultsRoutingKey, info.ToMap()); err != nil {
		log.Error().Err(err).Int("game_id", info.GameID).Msg("publishing game results to bus")
	}
}

// DrainDirtyGames returns and clears the pending game broadcasts.
func (s *GameService) DrainDirtyGames() []DirtyGame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.dirtyGames) == 0 {
		return nil
	}
	out := make([]DirtyGame, 0, len(s.dirtyGames))
	for _, d := range s.dirtyGames {
		out = append(out, *d)
	}
	s.dirtyGames = make(map[int]*DirtyGame)
	sort.Slice(out, func(i, j int) bool { return out[i].Game.ID < out[j].Game.ID })
	return out
}

// DrainDirtyQueues returns and clears the pending queue broadcasts.
func (s *GameService) DrainDirtyQueues() []*matchmaker.Queue {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.dirtyQueues) == 0 {
		return nil
	}
	out := make([]*matchmaker.Queue, 0, len(s.dirtyQueues))
	for _, q := range s.dirtyQueues {
		out = append(out, q)
	}
	s.dirtyQueues = make(map[int]*matchmaker.Queue)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
