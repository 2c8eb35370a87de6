package game

import (
	"context"
	"strings"

	"github.com/ta-forever/server/internal/model"
)

// validateGameSettings runs the ranked-play checks once a game is live.
// The first failing check decides the validity downgrade.
func (g *Game) validateGameSettings(ctx context.Context) {
	g.mu.RLock()
	mapRanked := g.mapRanked
	mods := make([]string, 0, len(g.mods))
	for uid := range g.mods {
		mods = append(mods, uid)
	}
	hasAIs := len(g.ais) > 0
	players := len(g.livePlayers)
	options := make(map[string]any, len(g.gameOptions))
	for k, v := range g.gameOptions {
		options[k] = v
	}
	victory := g.victory
	g.mu.RUnlock()

	if !mapRanked {
		g.MarkInvalid(ctx, model.ValidityBadMap)
		return
	}
	if len(mods) > 0 {
		ranked, err := g.stores.Mods.RankedUIDs(ctx)
		if err != nil {
			g.log.Error().Err(err).Msg("loading ranked mod list")
		}
		for _, uid := range mods {
			if _, ok := ranked[uid]; !ok {
				g.MarkInvalid(ctx, model.ValidityBadMod)
				return
			}
		}
	}
	if hasAIs {
		g.MarkInvalid(ctx, model.ValidityHasAIPlayers)
		return
	}

	rosters := g.TeamRosters()
	if len(rosters) > 2 {
		g.MarkInvalid(ctx, model.ValidityMultiTeam)
		return
	}
	for _, r := range rosters {
		if r.TeamID == FFATeam && players > 2 {
			g.MarkInvalid(ctx, model.ValidityFFANotRanked)
			return
		}
	}

	if optBool(options["AIReplacement"]) {
		g.MarkInvalid(ctx, model.ValidityHasAIPlayers)
		return
	}
	if fog, ok := options["FogOfWar"].(string); ok && fog != "explored" {
		g.MarkInvalid(ctx, model.ValidityNoFogOfWar)
		return
	}
	if optBool(options["CheatsEnabled"]) {
		g.MarkInvalid(ctx, model.ValidityCheatsEnabled)
		return
	}
	if optBool(options["PrebuiltUnits"]) {
		g.MarkInvalid(ctx, model.ValidityPrebuiltEnabled)
		return
	}
	if optBool(options["NoRushOption"]) {
		g.MarkInvalid(ctx, model.ValidityNorushEnabled)
		return
	}
	if n, ok := optInt(options["RestrictedCategories"]); ok && n != 0 {
		g.MarkInvalid(ctx, model.ValidityBadUnitRestrictions)
		return
	}
	if lock, ok := options["TeamLock"].(string); ok && lock != "locked" {
		g.MarkInvalid(ctx, model.ValidityUnlockedTeams)
		return
	}

	if len(rosters) == 2 && len(rosters[0].Players) != len(rosters[1].Players) {
		g.MarkInvalid(ctx, model.ValidityUnevenTeamsNotRanked)
		return
	}
	if players < 2 {
		g.MarkInvalid(ctx, model.ValiditySinglePlayer)
		return
	}
	if victory != model.VictoryDemoralization && g.kind.Type != model.GameTypeCoop {
		g.MarkInvalid(ctx, model.ValidityWrongVictoryCondition)
		return
	}
}

func optBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int:
		return b != 0
	case float64:
		return b != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1", "yes", "on":
			return true
		}
	}
	return false
}
