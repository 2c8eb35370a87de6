package game

import (
	"errors"

	"github.com/ta-forever/server/internal/model"
)

// ErrUnresolvable marks a set of team reports that no consistent outcome
// assignment can satisfy. Callers downgrade the game to UNKNOWN_RESULT.
var ErrUnresolvable = errors.New("conflicting team outcome reports")

// ResolveTeamOutcomes turns per-player partial outcomes, grouped by team,
// into one outcome per team. Exactly one team may win; a win is only
// accepted when no contradicting report exists. All teams drawing is also
// consistent. Everything else is unresolvable.
func ResolveTeamOutcomes(teams [][]model.GameOutcome) ([]model.GameOutcome, error) {
	merged := make([]model.GameOutcome, len(teams))
	for i, reports := range teams {
		merged[i] = mergeTeamReports(reports)
	}

	victors := 0
	for _, o := range merged {
		switch o {
		case model.OutcomeConflicting:
			return nil, ErrUnresolvable
		case model.OutcomeVictory:
			victors++
		}
	}

	switch {
	case victors == 1:
		out := make([]model.GameOutcome, len(merged))
		for i, o := range merged {
			if o == model.OutcomeVictory {
				out[i] = model.OutcomeVictory
			} else {
				out[i] = model.OutcomeDefeat
			}
		}
		return out, nil
	case victors > 1:
		return nil, ErrUnresolvable
	}

	// No victor. The only remaining consistent assignment is a draw
	// agreed by every team.
	for _, o := range merged {
		if o != model.OutcomeDraw {
			return nil, ErrUnresolvable
		}
	}
	out := make([]model.GameOutcome, len(merged))
	for i := range out {
		out[i] = model.OutcomeDraw
	}
	return out, nil
}

// mergeTeamReports combines the partial outcomes of one team's players.
// UNKNOWN reports are uninformative and ignored; agreement yields the agreed
// outcome; disagreement yields CONFLICTING.
func mergeTeamReports(reports []model.GameOutcome) model.GameOutcome {
	result := model.OutcomeUnknown
	for _, o := range reports {
		if o == model.OutcomeUnknown {
			continue
		}
		if o == model.OutcomeMutualDraw {
			o = model.OutcomeDraw
		}
		switch {
		case result == model.OutcomeUnknown:
			result = o
		case result != o:
			return model.OutcomeConflicting
		}
	}
	return result
}
