package service

import (
	"fmt"
	"sort"

	"github.com/ta-forever/server/internal/model"
	"github.com/ta-forever/server/pkg/trueskill"
)

// ratedTeam is one team's view of a game inside the rating pipeline.
type ratedTeam struct {
	TeamID    int
	PlayerIDs []int
	Outcome   model.GameOutcome
}

// groupTeams splits the player summaries by team, ordered by team id, and
// checks that each team's reported player outcomes agree.
func groupTeams(info *model.EndedGameInfo) ([]ratedTeam, error) {
	byTeam := make(map[int]*ratedTeam)
	order := make([]int, 0, 2)
	for _, s := range info.PlayerSummaries {
		t, ok := byTeam[s.TeamID]
		if !ok {
			t = &ratedTeam{TeamID: s.TeamID, Outcome: s.Outcome}
			byTeam[s.TeamID] = t
			order = append(order, s.TeamID)
		}
		t.PlayerIDs = append(t.PlayerIDs, s.PlayerID)
	}
	sort.Ints(order)
	teams := make([]ratedTeam, 0, len(order))
	for _, id := range order {
		teams = append(teams, *byTeam[id])
	}
	if len(teams) != 2 {
		return nil, fmt.Errorf("%w: %d teams", ErrGameRating, len(teams))
	}
	if len(info.TeamOutcomes) == len(teams) {
		for i := range teams {
			teams[i].Outcome = info.TeamOutcomes[i]
		}
	}
	return teams, nil
}

// ranksFor converts the two team outcomes into rating ranks; lower wins.
func ranksFor(teams []ratedTeam) ([]int, error) {
	a, b := teams[0].Outcome, teams[1].Outcome
	switch {
	case a == model.OutcomeVictory && b != model.OutcomeVictory:
		return []int{0, 1}, nil
	case b == model.OutcomeVictory && a != model.OutcomeVictory:
		return []int{1, 0}, nil
	case a == model.OutcomeDraw && b == model.OutcomeDraw:
		return []int{0, 0}, nil
	}
	return nil, fmt.Errorf("%w: outcomes %v vs %v", ErrGameRating, a, b)
}

// ratePlayers runs the skill update for a two-team game and applies the
// monotonicity override: a winning or drawing player's displayed rating
// never drops.
func ratePlayers(env trueskill.Env, info *model.EndedGameInfo, old map[int]model.Rating) (map[int]model.Rating, []model.OutcomeLikelihoods, error) {
	teams, err := groupTeams(info)
	if err != nil {
		return nil, nil, err
	}
	ranks, err := ranksFor(teams)
	if err != nil {
		return nil, nil, err
	}

	groups := make([][]trueskill.Rating, len(teams))
	for i, t := range teams {
		for _, pid := range t.PlayerIDs {
			r, ok := old[pid]
			if !ok {
				return nil, nil, fmt.Errorf("%w: no old rating for player %d", ErrGameRating, pid)
			}
			groups[i] = append(groups[i], trueskill.Rating{Mean: r.Mean, Sigma: r.Sigma})
		}
	}

	pWin, pDraw, pLose := env.OutcomeProbabilities(groups[0], groups[1])
	likelihoods := []model.OutcomeLikelihoods{
		{PWin: pWin, PDraw: pDraw, PLose: pLose},
		{PWin: pLose, PDraw: pDraw, PLose: pWin},
	}

	rated, err := env.Rate(groups, ranks)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrGameRating, err)
	}

	newRatings := make(map[int]model.Rating, len(old))
	for i, t := range teams {
		kept := t.Outcome == model.OutcomeVictory || t.Outcome == model.OutcomeDraw
		for j, pid := range t.PlayerIDs {
			next := model.Rating{Mean: rated[i][j].Mean, Sigma: rated[i][j].Sigma}
			if kept && next.DisplayedRating() < old[pid].DisplayedRating() {
				next = old[pid]
			}
			newRatings[pid] = next
		}
	}
	return newRatings, likelihoods, nil
}
