package game

import (
	"context"
	"time"

	"github.com/ta-forever/server/internal/model"
)

// InitMode selects which lobby phase must be reached before a game counts
// as hosted. The setup timeout is armed against that phase.
type InitMode int

const (
	// NormalLobby games are hosted once the host reports the staging lobby.
	NormalLobby InitMode = iota
	// AutoLobby games skip player-driven setup and are hosted once the
	// host reaches the battleroom.
	AutoLobby
)

// Kind bundles the per-game-mode behavior variations: how a game becomes
// hosted, how player names are displayed, whether scores may override
// reported outcomes, and which extra validity checks run before rating.
type Kind struct {
	Name     string
	Type     model.GameType
	InitMode InitMode

	// PlayerAlias formats the display name for peer wiring messages.
	PlayerAlias func(p *model.Player) string

	// OutcomeOverride may replace the resolved team outcomes, typically
	// from reported scores. It is consulted after resolution and also
	// when resolution failed (outcomes nil).
	OutcomeOverride func(g *Game, rosters []TeamRoster, outcomes []model.GameOutcome) ([]model.GameOutcome, bool)

	// PreRateValidity applies mode-specific validity downgrades before
	// results are published.
	PreRateValidity func(ctx context.Context, g *Game)
}

// KindConfig carries the server settings the kind hooks depend on.
type KindConfig struct {
	// LadderOutcomeFromScore re-resolves 1v1 ladder outcomes from the
	// reported scores instead of the reported outcome words.
	LadderOutcomeFromScore bool
}

func defaultAlias(p *model.Player) string { return p.Alias() }

// CustomKind is the behavior of player-hosted lobbies.
func CustomKind() Kind {
	return Kind{
		Name:        "custom",
		Type:        model.GameTypeCustom,
		InitMode:    NormalLobby,
		PlayerAlias: defaultAlias,
		PreRateValidity: func(ctx context.Context, g *Game) {
			g.mu.RLock()
			launchedAt := g.launchedAt
			players := len(g.livePlayers)
			enforce := g.enforceRating
			poolOK := len(g.mapPoolMapIDs) == 0 || containsID(g.mapPoolMapIDs, g.mapID)
			g.mu.RUnlock()

			minLength := time.Duration(players) * time.Minute
			if !enforce && time.Since(launchedAt) < minLength {
				g.MarkInvalid(ctx, model.ValidityTooShort)
				return
			}
			if !poolOK {
				g.MarkInvalid(ctx, model.ValidityBadMap)
			}
		},
	}
}

// LadderKind is the behavior of matchmaker-created games.
func LadderKind(cfg KindConfig) Kind {
	k := Kind{
		Name:     "ladder",
		Type:     model.GameTypeMatchmaker,
		InitMode: AutoLobby,
		PlayerAlias: func(p *model.Player) string {
			if alias := p.Alias(); alias != p.Login {
				return alias + "/" + p.Login
			}
			return p.Login
		},
		PreRateValidity: func(ctx context.Context, g *Game) {
			g.mu.RLock()
			poolOK := len(g.mapPoolMapIDs) == 0 || containsID(g.mapPoolMapIDs, g.mapID)
			g.mu.RUnlock()
			if !poolOK {
				g.MarkInvalid(ctx, model.ValidityBadMap)
			}
		},
	}
	if cfg.LadderOutcomeFromScore {
		k.OutcomeOverride = ladderScoreOverride
	}
	return k
}

// ladderScoreOverride re-resolves a 1v1 from the victory-reported scores.
// Differing scores decide the winner; equal scores are a draw.
func ladderScoreOverride(g *Game, rosters []TeamRoster, outcomes []model.GameOutcome) ([]model.GameOutcome, bool) {
	if len(rosters) != 2 {
		return outcomes, false
	}
	if len(rosters[0].Players)+len(rosters[1].Players) > 2 {
		return outcomes, false
	}
	scores := make([]float64, 2)
	for i, r := range rosters {
		for _, army := range r.Armies {
			scores[i] += g.armyVictoryScore(army)
		}
	}
	switch {
	case scores[0] > scores[1]:
		return []model.GameOutcome{model.OutcomeVictory, model.OutcomeDefeat}, true
	case scores[1] > scores[0]:
		return []model.GameOutcome{model.OutcomeDefeat, model.OutcomeVictory}, true
	}
	return []model.GameOutcome{model.OutcomeDraw, model.OutcomeDraw}, true
}

// CoopKind is the behavior of cooperative campaign games. Co-op results
// feed the co-op leaderboard, never the skill leaderboards.
func CoopKind() Kind {
	return Kind{
		Name:        "coop",
		Type:        model.GameTypeCoop,
		InitMode:    NormalLobby,
		PlayerAlias: defaultAlias,
		PreRateValidity: func(ctx context.Context, g *Game) {
			g.MarkInvalid(ctx, model.ValidityCoopNotRanked)
		},
	}
}

// KindForMod picks the game kind for a featured mod.
func KindForMod(featuredMod string, cfg KindConfig) Kind {
	switch featuredMod {
	case "ladder1v1":
		return LadderKind(cfg)
	case "coop":
		return CoopKind()
	}
	return CustomKind()
}

func (g *Game) armyVictoryScore(army int) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.results.VictoryOnlyScore(army)
}

func containsID(set map[int]struct{}, id int) bool {
	_, ok := set[id]
	return ok
}
