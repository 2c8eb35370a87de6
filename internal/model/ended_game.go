package model

// EndedGamePlayerSummary describes one player's part in a finished game.
type EndedGamePlayerSummary struct {
	PlayerID int
	TeamID   int
	Faction  Faction
	Outcome  GameOutcome
}

// EndedGameInfo is the immutable summary of a finished game, published to
// the rating pipeline and the message bus.
type EndedGameInfo struct {
	GameID                int
	RatingType            RatingType
	MapID                 int
	MapName               string
	FeaturedMod           string
	GalacticWarPlanetName string
	SimModIDs             []string
	Validity              ValidityState
	TeamOutcomes          []GameOutcome
	PlayerSummaries       []EndedGamePlayerSummary
}

// PlayerIDs returns the ids of all summarized players.
func (i *EndedGameInfo) PlayerIDs() []int {
	ids := make([]int, 0, len(i.PlayerSummaries))
	for _, s := range i.PlayerSummaries {
		ids = append(ids, s.PlayerID)
	}
	return ids
}

// ToMap renders the summary for JSON encoding on the message bus.
func (i *EndedGameInfo) ToMap() map[string]any {
	players := make([]map[string]any, 0, len(i.PlayerSummaries))
	for _, s := range i.PlayerSummaries {
		players = append(players, map[string]any{
			"player_id": s.PlayerID,
			"team_id":   s.TeamID,
			"faction":   s.Faction.String(),
			"outcome":   string(s.Outcome),
		})
	}
	outcomes := make([]string, 0, len(i.TeamOutcomes))
	for _, o := range i.TeamOutcomes {
		outcomes = append(outcomes, string(o))
	}
	return map[string]any{
		"game_id":                  i.GameID,
		"rating_type":              i.RatingType,
		"map_id":                   i.MapID,
		"map_name":                 i.MapName,
		"featured_mod":             i.FeaturedMod,
		"galactic_war_planet_name": i.GalacticWarPlanetName,
		"sim_mod_ids":              i.SimModIDs,
		"validity":                 i.Validity.String(),
		"team_outcomes":            outcomes,
		"players":                  players,
	}
}
