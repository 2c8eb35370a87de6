package galacticwar

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ta-forever/server/internal/config"
	"github.com/ta-forever/server/internal/matchmaker"
	"github.com/ta-forever/server/internal/model"
)

// QueueSource supplies the matchmaker queues whose map pools the campaign
// must stay compatible with.
type QueueSource interface {
	Queues() []*matchmaker.Queue
}

// Service runs the planetary campaign: it consumes rated-game results,
// moves front lines, persists the state file and rotates scenarios when a
// capital falls.
type Service struct {
	cfg    config.GalacticWarConfig
	queues QueueSource

	mu    sync.Mutex
	state *State
	dirty bool
}

func NewService(cfg config.GalacticWarConfig, queues QueueSource) *Service {
	return &Service{cfg: cfg, queues: queues}
}

// Initialize loads the persisted campaign state, falling back to the
// initial scenario on first run.
func (s *Service) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := LoadDocument(s.cfg.StateFile)
	switch {
	case err == nil:
		if s.state, err = NewState(doc, s.cfg); err != nil {
			return fmt.Errorf("restore galactic war state: %w", err)
		}
		log.Info().Str("scenario", s.state.Label()).Msg("galactic war state restored")
	case errors.Is(err, os.ErrNotExist):
		if err := s.loadScenarioLocked(s.cfg.InitialScenario); err != nil {
			return err
		}
	default:
		return fmt.Errorf("load galactic war state: %w", err)
	}
	s.dirty = true
	return nil
}

// loadScenarioLocked reads a scenario from the scenario directory and
// prepares it for play. Scenarios without capitals get capitals, territory
// and a demilitarized front assigned automatically.
func (s *Service) loadScenarioLocked(name string) error {
	doc, err := LoadDocument(filepath.Join(s.cfg.ScenarioPath, name))
	if err != nil {
		return err
	}
	state, err := NewState(doc, s.cfg)
	if err != nil {
		return fmt.Errorf("load scenario %s: %w", name, err)
	}
	if len(state.Capitals(true, true, true)) == 0 {
		state.AssignTwoCapitals()
		state.DistributePlanetsToFactions()
		state.SeparateAbuttingFactions()
		state.CaptureUncontestedPlanets()
	}
	if s.queues != nil {
		state.EnsureRankedMaps(s.queues.Queues())
	}
	s.state = state
	log.Info().Str("scenario", state.Label()).Msg("galactic war scenario loaded")
	return s.saveLocked()
}

func (s *Service) saveLocked() error {
	if err := SaveDocument(s.cfg.StateFile, s.state.Document()); err != nil {
		return fmt.Errorf("persist galactic war state: %w", err)
	}
	return nil
}

// Run recomputes front lines periodically when an update interval is
// configured. With a zero interval the state is updated inline after each
// rated game and Run returns immediately.
func (s *Service) Run(ctx context.Context) {
	if s.cfg.UpdateInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.UpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.state != nil && s.updateStateLocked() {
				if err := s.saveLocked(); err != nil {
					log.Error().Err(err).Msg("galactic war periodic save failed")
				}
				s.dirty = true
			}
			s.mu.Unlock()
		}
	}
}

// OnGameRating consumes a rated game result. It is registered with the
// rating pipeline and runs on its worker goroutine.
func (s *Service) OnGameRating(info *model.EndedGameInfo, old map[int]model.RankedRating, _ map[int]model.Rating, likelihoods []model.OutcomeLikelihoods) {
	if info.GalacticWarPlanetName == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return
	}

	if err := s.state.ValidateGame(info); err != nil {
		log.Info().Err(err).Int("game_id", info.GameID).Msg("game not eligible for galactic war")
		return
	}

	var stakes map[int]float64
	if s.cfg.StakeStrategy == "rank" {
		stakes = rankStakes(info, old, s.cfg.MaxScore, s.cfg.RankFactor)
	} else {
		stakes = ratingStakes(info, likelihoods, s.cfg.MaxScore)
	}
	if err := s.state.UpdateScores(info, stakes); err != nil {
		log.Error().Err(err).Int("game_id", info.GameID).Msg("galactic war score update failed")
		return
	}

	if s.cfg.UpdateInterval <= 0 {
		s.updateStateLocked()
	}

	if len(s.state.UncapturedCapitals()) < 2 {
		log.Info().Str("scenario", s.state.Label()).Msg("galactic war scenario decided, rotating")
		next, err := NextScenario(s.cfg.ScenarioPath, s.state.Label(), s.cfg.InitialScenario)
		if err == nil {
			err = s.loadScenarioLocked(next)
		}
		if err != nil {
			log.Error().Err(err).Msg("galactic war scenario rotation failed")
		}
	} else if err := s.saveLocked(); err != nil {
		log.Error().Err(err).Msg("galactic war save failed")
	}
	s.dirty = true
}

// updateStateLocked applies the capture rules until the map stops
// changing. Returns whether anything changed.
func (s *Service) updateStateLocked() bool {
	changed := false
	for {
		n := s.state.UpdateFrontLines()
		n += s.state.CaptureIsolatedPlanets()
		n += s.state.CaptureUncontestedPlanets()
		if n == 0 {
			return changed
		}
		changed = true
	}
}

// ManualCapture hands planets to factions by administrative fiat. The spec
// string is "planet:faction;planet:faction;..."; an empty faction marks
// the planet contested. Scores are reset either way.
func (s *Service) ManualCapture(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return errors.New("galactic war not initialized")
	}
	for _, entry := range strings.Split(spec, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, factionName, _ := strings.Cut(entry, ":")
		planet, ok := s.state.Planet(strings.TrimSpace(name))
		if !ok {
			return fmt.Errorf("unknown planet %q", name)
		}
		planet.ResetScores()
		if strings.TrimSpace(factionName) == "" {
			planet.SetControlledBy(nil)
			continue
		}
		f, err := model.ParseFaction(strings.TrimSpace(factionName))
		if err != nil {
			return err
		}
		planet.SetControlledBy(&f)
	}
	if err := s.saveLocked(); err != nil {
		return err
	}
	s.dirty = true
	return nil
}

// ConsumeDirty reports whether a broadcast-worthy change happened since
// the last call and clears the flag.
func (s *Service) ConsumeDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.dirty
	s.dirty = false
	return d
}

// UpdateMessage renders the full campaign state for clients.
func (s *Service) UpdateMessage() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return map[string]any{"command": "galactic_war_update"}
	}
	doc := s.state.Document()
	nodes := make([]map[string]any, 0, len(doc.Nodes))
	for _, n := range doc.Nodes {
		node := map[string]any{
			"id":    n.ID,
			"label": n.Label,
			"map":   n.Map,
			"mod":   n.Mod,
			"size":  n.Size,
			"score": n.Score,
		}
		if n.CapitalOf != "" {
			node["capital_of"] = n.CapitalOf
		}
		if n.ControlledBy != "" {
			node["controlled_by"] = n.ControlledBy
		}
		nodes = append(nodes, node)
	}
	edges := make([]map[string]any, 0, len(doc.Edges))
	for _, e := range doc.Edges {
		edges = append(edges, map[string]any{"source": e.Source, "target": e.Target})
	}
	return map[string]any{
		"command": "galactic_war_update",
		"label":   doc.Label,
		"node":    nodes,
		"edge":    edges,
	}
}
