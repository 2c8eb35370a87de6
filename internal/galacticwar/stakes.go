package galacticwar

import (
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ta-forever/server/internal/model"
)

// Stakes put a campaign score on the line for each player before a game
// settles. The rating strategy wagers each team's win probability; the
// rank strategy wagers by leaderboard standing, pairwise against each
// opponent.

const (
	minRankedPopulation = 10
	minDisplayedGap     = 1.0
)

// ratingStakes wagers each player's share of maxScore scaled by their
// team's win probability. Likelihoods are indexed by ascending team id,
// matching the rating pipeline's team order.
func ratingStakes(info *model.EndedGameInfo, likelihoods []model.OutcomeLikelihoods, maxScore float64) map[int]float64 {
	teamIDs := make([]int, 0, 2)
	seen := make(map[int]struct{})
	for _, s := range info.PlayerSummaries {
		if _, ok := seen[s.TeamID]; !ok {
			seen[s.TeamID] = struct{}{}
			teamIDs = append(teamIDs, s.TeamID)
		}
	}
	sort.Ints(teamIDs)

	likelihoodByTeam := make(map[int]model.OutcomeLikelihoods, len(teamIDs))
	for i, teamID := range teamIDs {
		if i < len(likelihoods) {
			likelihoodByTeam[teamID] = likelihoods[i]
		}
	}

	stakes := make(map[int]float64, len(info.PlayerSummaries))
	for _, s := range info.PlayerSummaries {
		stakes[s.PlayerID] = likelihoodByTeam[s.TeamID].PWin * maxScore
	}
	return stakes
}

// rankStakes wagers pairwise against each opposing player: the better a
// player's normalized leaderboard rank relative to the opponent's, the
// more they stand to lose. Pairs with a tiny displayed-rating gap, or a
// leaderboard too small to rank meaningfully, post half the per-opponent
// maximum each.
func rankStakes(info *model.EndedGameInfo, old map[int]model.RankedRating, maxScore, rankFactor float64) map[int]float64 {
	teams := make(map[int][]model.EndedGamePlayerSummary)
	for _, s := range info.PlayerSummaries {
		teams[s.TeamID] = append(teams[s.TeamID], s)
	}

	normal := distuv.Normal{Mu: 0, Sigma: 1}
	stakes := make(map[int]float64, len(info.PlayerSummaries))
	for _, s := range info.PlayerSummaries {
		var opponents []model.EndedGamePlayerSummary
		for teamID, members := range teams {
			if teamID != s.TeamID {
				opponents = append(opponents, members...)
			}
		}
		if len(opponents) == 0 {
			continue
		}
		maxPerOpponent := maxScore / float64(len(opponents))

		total := 0.0
		own := old[s.PlayerID]
		for _, opp := range opponents {
			other := old[opp.PlayerID]
			gap := own.Rating.DisplayedRating() - other.Rating.DisplayedRating()
			if gap < 0 {
				gap = -gap
			}
			if own.LeaderboardSize < minRankedPopulation || other.LeaderboardSize < minRankedPopulation || gap < minDisplayedGap {
				total += maxPerOpponent / 2
				continue
			}
			ownNorm := float64(own.Rank) / float64(own.LeaderboardSize)
			otherNorm := float64(other.Rank) / float64(other.LeaderboardSize)
			// Rank 0 is the top of the board, so a lower normalized
			// rank than the opponent's pushes the CDF argument
			// positive and the stake toward the per-opponent maximum.
			total += normal.CDF((otherNorm-ownNorm)/rankFactor) * maxPerOpponent
		}
		stakes[s.PlayerID] = total
	}
	return stakes
}
