package model

// RatingType names a leaderboard. Values correspond to legacy table names.
type RatingType = string

const (
	RatingGlobal RatingType = "global"
	RatingLadder RatingType = "ladder1v1"
)

// Rating is a TrueSkill-style skill estimate.
type Rating struct {
	Mean  float64
	Sigma float64
}

// DisplayedRating is the conservative estimate used everywhere a single
// number is needed: mean minus three standard deviations.
func (r Rating) DisplayedRating() float64 {
	return r.Mean - 3*r.Sigma
}

// RankedRating is a rating annotated with its leaderboard position.
// Rank 0 is the top of the board.
type RankedRating struct {
	Rating
	Rank            int
	LeaderboardSize int
}

// OutcomeLikelihoods are the pre-game win/draw/lose probabilities of a team,
// derived from the aggregated team means and the TrueSkill draw margin.
type OutcomeLikelihoods struct {
	PWin  float64
	PDraw float64
	PLose float64
}

// InclusiveRange is a rating range with optionally open endpoints.
type InclusiveRange struct {
	Lo *float64
	Hi *float64
}

// Contains reports whether v falls inside the range.
func (r InclusiveRange) Contains(v float64) bool {
	if r.Lo != nil && v < *r.Lo {
		return false
	}
	if r.Hi != nil && v > *r.Hi {
		return false
	}
	return true
}
