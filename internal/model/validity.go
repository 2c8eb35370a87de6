package model

// ValidityState records why a game is excluded from rating. Once a game
// leaves Valid it never goes back.
type ValidityState int

const (
	ValidityValid ValidityState = iota
	ValidityTooShort
	ValidityBadMap
	ValidityBadMod
	ValidityHasAIPlayers
	ValidityCheatsEnabled
	ValidityPrebuiltEnabled
	ValidityNorushEnabled
	ValidityBadUnitRestrictions
	ValidityUnlockedTeams
	ValidityNoFogOfWar
	ValidityWrongVictoryCondition
	ValidityUnevenTeamsNotRanked
	ValiditySinglePlayer
	ValidityMultiTeam
	ValidityFFANotRanked
	ValidityMutualDraw
	ValidityTooManyDesyncs
	ValidityUnknownResult
	ValidityCoopNotRanked
)

var validityNames = map[ValidityState]string{
	ValidityValid:                 "VALID",
	ValidityTooShort:              "TOO_SHORT",
	ValidityBadMap:                "BAD_MAP",
	ValidityBadMod:                "BAD_MOD",
	ValidityHasAIPlayers:          "HAS_AI_PLAYERS",
	ValidityCheatsEnabled:         "CHEATS_ENABLED",
	ValidityPrebuiltEnabled:       "PREBUILT_ENABLED",
	ValidityNorushEnabled:         "NORUSH_ENABLED",
	ValidityBadUnitRestrictions:   "BAD_UNIT_RESTRICTIONS",
	ValidityUnlockedTeams:         "UNLOCKED_TEAMS",
	ValidityNoFogOfWar:            "NO_FOG_OF_WAR",
	ValidityWrongVictoryCondition: "WRONG_VICTORY_CONDITION",
	ValidityUnevenTeamsNotRanked:  "UNEVEN_TEAMS_NOT_RANKED",
	ValiditySinglePlayer:          "SINGLE_PLAYER",
	ValidityMultiTeam:             "MULTI_TEAM",
	ValidityFFANotRanked:          "FFA_NOT_RANKED",
	ValidityMutualDraw:            "MUTUAL_DRAW",
	ValidityTooManyDesyncs:        "TOO_MANY_DESYNCS",
	ValidityUnknownResult:         "UNKNOWN_RESULT",
	ValidityCoopNotRanked:         "COOP_NOT_RANKED",
}

func (v ValidityState) String() string {
	if name, ok := validityNames[v]; ok {
		return name
	}
	return "UNKNOWN_VALIDITY"
}
