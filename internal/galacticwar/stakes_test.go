package galacticwar

import (
	"math"
	"testing"

	"github.com/ta-forever/server/internal/model"
)

func TestRatingStakes(t *testing.T) {
	info := campaignGame("Thalassean", model.FactionArm, model.FactionCore, model.OutcomeVictory, model.OutcomeDefeat)
	likelihoods := []model.OutcomeLikelihoods{
		{PWin: 0.7, PDraw: 0.1, PLose: 0.2},
		{PWin: 0.2, PDraw: 0.1, PLose: 0.7},
	}
	stakes := ratingStakes(info, likelihoods, 10)
	if got := stakes[1]; math.Abs(got-7) > 1e-9 {
		t.Errorf("favourite stake = %v, want 7", got)
	}
	if got := stakes[2]; math.Abs(got-2) > 1e-9 {
		t.Errorf("underdog stake = %v, want 2", got)
	}
}

func TestRankStakesUncertainPairsPostHalf(t *testing.T) {
	info := campaignGame("Thalassean", model.FactionArm, model.FactionCore, model.OutcomeVictory, model.OutcomeDefeat)
	old := map[int]model.RankedRating{
		1: {Rating: model.Rating{Mean: 1700, Sigma: 50}, Rank: 0, LeaderboardSize: 5},
		2: {Rating: model.Rating{Mean: 1300, Sigma: 50}, Rank: 4, LeaderboardSize: 5},
	}
	stakes := rankStakes(info, old, 10, 0.2)
	for pid, want := range map[int]float64{1: 5, 2: 5} {
		if got := stakes[pid]; got != want {
			t.Errorf("player %d stake = %v, want %v on a tiny leaderboard", pid, got, want)
		}
	}
}

func TestRankStakesCloseRatingsPostHalf(t *testing.T) {
	info := campaignGame("Thalassean", model.FactionArm, model.FactionCore, model.OutcomeVictory, model.OutcomeDefeat)
	old := map[int]model.RankedRating{
		1: {Rating: model.Rating{Mean: 1500.2, Sigma: 50}, Rank: 40, LeaderboardSize: 100},
		2: {Rating: model.Rating{Mean: 1500, Sigma: 50}, Rank: 41, LeaderboardSize: 100},
	}
	stakes := rankStakes(info, old, 10, 0.2)
	if stakes[1] != 5 || stakes[2] != 5 {
		t.Errorf("stakes = %v, want 5 each for a near-even pair", stakes)
	}
}

func TestRankStakesFavourTheBetterRanked(t *testing.T) {
	info := campaignGame("Thalassean", model.FactionArm, model.FactionCore, model.OutcomeVictory, model.OutcomeDefeat)
	old := map[int]model.RankedRating{
		1: {Rating: model.Rating{Mean: 1800, Sigma: 50}, Rank: 10, LeaderboardSize: 100},
		2: {Rating: model.Rating{Mean: 1300, Sigma: 50}, Rank: 90, LeaderboardSize: 100},
	}
	stakes := rankStakes(info, old, 10, 0.2)
	if stakes[1] < 9.9 {
		t.Errorf("favourite stake = %v, want nearly the full 10", stakes[1])
	}
	if stakes[2] > 0.1 {
		t.Errorf("underdog stake = %v, want nearly 0", stakes[2])
	}
	if stakes[1] <= stakes[2] {
		t.Errorf("stakes = %v, the better ranked player must wager more", stakes)
	}
}
