package game

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ta-forever/server/internal/model"
)

// ArmyResult is one player's report about one army.
type ArmyResult struct {
	ReporterID int
	Outcome    model.GameOutcome
	Score      float64
}

// ResultReports accumulates the per-army reports sent by game clients.
// Reports are append-only; conflicting reports are reconciled on read.
type ResultReports struct {
	GameID  int
	reports map[int][]ArmyResult
}

func NewResultReports(gameID int) *ResultReports {
	return &ResultReports{GameID: gameID, reports: make(map[int][]ArmyResult)}
}

// ParseResult decodes the free-form result text of a GameResult command.
// The last two words are the outcome and the score; anything before them is
// ignored.
func ParseResult(text string) (model.GameOutcome, float64, error) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return model.OutcomeUnknown, 0, fmt.Errorf("%w: %q", ErrMalformedResult, text)
	}
	outcomeWord := fields[len(fields)-2]
	scoreWord := fields[len(fields)-1]
	outcome, ok := model.ParseReportedOutcome(outcomeWord)
	if !ok {
		return model.OutcomeUnknown, 0, fmt.Errorf("%w: outcome %q", ErrMalformedResult, outcomeWord)
	}
	score, err := strconv.ParseFloat(scoreWord, 64)
	if err != nil {
		return model.OutcomeUnknown, 0, fmt.Errorf("%w: score %q", ErrMalformedResult, scoreWord)
	}
	return outcome, score, nil
}

// Add records a report for an army.
func (r *ResultReports) Add(army, reporterID int, outcome model.GameOutcome, score float64) {
	r.reports[army] = append(r.reports[army], ArmyResult{
		ReporterID: reporterID,
		Outcome:    outcome,
		Score:      score,
	})
}

// Armies returns the armies that have at least one report, in ascending order.
func (r *ResultReports) Armies() []int {
	armies := make([]int, 0, len(r.reports))
	for a := range r.reports {
		armies = append(armies, a)
	}
	sort.Ints(armies)
	return armies
}

// Reports returns the raw reports for an army.
func (r *ResultReports) Reports(army int) []ArmyResult {
	return r.reports[army]
}

// Empty reports whether no army has any report.
func (r *ResultReports) Empty() bool {
	return len(r.reports) == 0
}

// Outcome reconciles the reports for one army. Any DRAW report decides a
// draw; otherwise the most frequent reported outcome wins, with ties
// collapsing to CONFLICTING.
func (r *ResultReports) Outcome(army int) model.GameOutcome {
	reports := r.reports[army]
	if len(reports) == 0 {
		return model.OutcomeUnknown
	}
	counts := make(map[model.GameOutcome]int)
	for _, rep := range reports {
		if rep.Outcome == model.OutcomeDraw || rep.Outcome == model.OutcomeMutualDraw {
			return model.OutcomeDraw
		}
		counts[rep.Outcome]++
	}
	best, bestCount, tied := model.OutcomeUnknown, 0, false
	for _, o := range []model.GameOutcome{model.OutcomeVictory, model.OutcomeDefeat, model.OutcomeUnknown} {
		switch {
		case counts[o] > bestCount:
			best, bestCount, tied = o, counts[o], false
		case counts[o] == bestCount && counts[o] > 0 && o != best:
			tied = true
		}
	}
	if tied {
		return model.OutcomeConflicting
	}
	return best
}

// Score returns the median reported score of an army.
func (r *ResultReports) Score(army int) float64 {
	return median(r.reports[army], func(ArmyResult) bool { return true })
}

// VictoryOnlyScore is the median over victory reports only, used where the
// score of a defeated army is meaningless.
func (r *ResultReports) VictoryOnlyScore(army int) float64 {
	return median(r.reports[army], func(rep ArmyResult) bool {
		return rep.Outcome == model.OutcomeVictory
	})
}

// MutuallyAgreedDraw reports whether every reported army has at least one
// draw report.
func (r *ResultReports) MutuallyAgreedDraw() bool {
	if len(r.reports) == 0 {
		return false
	}
	for _, reports := range r.reports {
		drawn := false
		for _, rep := range reports {
			if rep.Outcome == model.OutcomeDraw || rep.Outcome == model.OutcomeMutualDraw {
				drawn = true
				break
			}
		}
		if !drawn {
			return false
		}
	}
	return true
}

func median(reports []ArmyResult, include func(ArmyResult) bool) float64 {
	scores := make([]float64, 0, len(reports))
	for _, rep := range reports {
		if include(rep) {
			scores = append(scores, rep.Score)
		}
	}
	if len(scores) == 0 {
		return 0
	}
	sort.Float64s(scores)
	mid := len(scores) / 2
	if len(scores)%2 == 1 {
		return scores[mid]
	}
	return (scores[mid-1] + scores[mid]) / 2
}
