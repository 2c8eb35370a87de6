package game

import (
	"errors"
	"testing"

	"github.com/ta-forever/server/internal/model"
)

func TestResolveTeamOutcomes(t *testing.T) {
	v := model.OutcomeVictory
	d := model.OutcomeDefeat
	dr := model.OutcomeDraw
	u := model.OutcomeUnknown

	tests := []struct {
		name    string
		teams   [][]model.GameOutcome
		want    []model.GameOutcome
		wantErr bool
	}{
		{"clear winner", [][]model.GameOutcome{{v}, {d}}, []model.GameOutcome{v, d}, false},
		{"winner with unknown loser", [][]model.GameOutcome{{v}, {u}}, []model.GameOutcome{v, d}, false},
		{"team agreement", [][]model.GameOutcome{{v, v}, {d, u}}, []model.GameOutcome{v, d}, false},
		{"all draw", [][]model.GameOutcome{{dr}, {dr}}, []model.GameOutcome{dr, dr}, false},
		{"two victors", [][]model.GameOutcome{{v}, {v}}, nil, true},
		{"team disagreement", [][]model.GameOutcome{{v, d}, {d}}, nil, true},
		{"all unknown", [][]model.GameOutcome{{u}, {u}}, nil, true},
		{"draw against defeat", [][]model.GameOutcome{{dr}, {d}}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveTeamOutcomes(tt.teams)
			if tt.wantErr {
				if !errors.Is(err, ErrUnresolvable) {
					t.Fatalf("error = %v, want ErrUnresolvable", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d outcomes, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("team %d outcome = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
