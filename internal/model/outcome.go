package model

import "strings"

// GameOutcome is the resolved result for an army or team.
type GameOutcome string

const (
	OutcomeVictory     GameOutcome = "VICTORY"
	OutcomeDefeat      GameOutcome = "DEFEAT"
	OutcomeDraw        GameOutcome = "DRAW"
	OutcomeMutualDraw  GameOutcome = "MUTUAL_DRAW"
	OutcomeUnknown     GameOutcome = "UNKNOWN"
	OutcomeConflicting GameOutcome = "CONFLICTING"
)

// ParseReportedOutcome maps the outcome word of a GameResult message to a
// GameOutcome. Only victory, defeat, draw and mutual_draw can be reported by
// game clients.
func ParseReportedOutcome(word string) (GameOutcome, bool) {
	switch GameOutcome(strings.ToUpper(word)) {
	case OutcomeVictory:
		return OutcomeVictory, true
	case OutcomeDefeat:
		return OutcomeDefeat, true
	case OutcomeDraw:
		return OutcomeDraw, true
	case OutcomeMutualDraw:
		return OutcomeMutualDraw, true
	}
	return OutcomeUnknown, false
}
