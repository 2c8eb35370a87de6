// Package trueskill implements two-team TrueSkill rating updates with draw
// support, following Herbrich, Minka and Graepel (2006).
package trueskill

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Rating is a player skill estimate.
type Rating struct {
	Mean  float64
	Sigma float64
}

// Env holds the environment constants of a rating system.
type Env struct {
	// Beta is the skill distance guaranteeing about a 76% win chance.
	Beta float64
	// Tau is the additive dynamics factor applied to sigma each game.
	Tau float64
	// DrawProbability is the chance of a draw between equal opponents.
	DrawProbability float64
}

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// DrawMargin returns the draw margin epsilon for a match involving n players
// in total.
func (e Env) DrawMargin(n int) float64 {
	return stdNormal.Quantile((1+e.DrawProbability)/2) * math.Sqrt(float64(n)) * e.Beta
}

// vWin and wWin are the additive correction terms for a decided outcome.
func vWin(t, eps float64) float64 {
	x := t - eps
	denom := stdNormal.CDF(x)
	if denom < 1e-300 {
		return -x
	}
	return stdNormal.Prob(x) / denom
}

func wWin(t, eps float64) float64 {
	v := vWin(t, eps)
	return v * (v + t - eps)
}

// vDraw and wDraw are the correction terms for a drawn outcome.
func vDraw(t, eps float64) float64 {
	at := math.Abs(t)
	denom := stdNormal.CDF(eps-at) - stdNormal.CDF(-eps-at)
	if denom < 1e-300 {
		if t < 0 {
			return -t - eps
		}
		return -t + eps
	}
	v := (stdNormal.Prob(-eps-at) - stdNormal.Prob(eps-at)) / denom
	if t < 0 {
		return -v
	}
	return v
}

func wDraw(t, eps float64) float64 {
	at := math.Abs(t)
	denom := stdNormal.CDF(eps-at) - stdNormal.CDF(-eps-at)
	if denom < 1e-300 {
		return 1
	}
	v := vDraw(t, eps)
	return v*v + ((eps-at)*stdNormal.Prob(eps-at)+(eps+at)*stdNormal.Prob(eps+at))/denom
}

type teamStats struct {
	mean   float64
	sigma2 float64
	size   int
}

func summarize(team []Rating, tau float64) teamStats {
	var s teamStats
	for _, r := range team {
		s.mean += r.Mean
		s.sigma2 += r.Sigma*r.Sigma + tau*tau
	}
	s.size = len(team)
	return s
}

// Rate computes updated ratings for exactly two teams. Ranks give the
// finishing order of each team, lower is better; equal ranks mean a draw.
// The returned slices parallel the input.
func (e Env) Rate(teams [][]Rating, ranks []int) ([][]Rating, error) {
	if len(teams) != 2 || len(ranks) != 2 {
		return nil, fmt.Errorf("trueskill: expected 2 teams, got %d", len(teams))
	}
	if len(teams[0]) == 0 || len(teams[1]) == 0 {
		return nil, fmt.Errorf("trueskill: empty team")
	}

	a := summarize(teams[0], e.Tau)
	b := summarize(teams[1], e.Tau)
	n := a.size + b.size

	// c^2 = sigma_a^2 + sigma_b^2 + n*beta^2
	c := math.Sqrt(a.sigma2 + b.sigma2 + float64(n)*e.Beta*e.Beta)
	eps := e.DrawMargin(n) / c

	// Orient the performance difference so team a is the (weak) winner.
	sign := 1.0
	winner, loser := a, b
	if ranks[0] > ranks[1] {
		sign = -1.0
		winner, loser = b, a
	}
	t := (winner.mean - loser.mean) / c

	var v, w float64
	if ranks[0] == ranks[1] {
		v = vDraw(t, eps)
		w = wDraw(t, eps)
	} else {
		v = vWin(t, eps)
		w = wWin(t, eps)
	}

	rate := func(team []Rating, stats teamStats, dir float64) []Rating {
		out := make([]Rating, len(team))
		for i, r := range team {
			sigma2 := r.Sigma*r.Sigma + e.Tau*e.Tau
			mean := r.Mean + dir*sigma2/c*v
			variance := sigma2 * (1 - sigma2/(c*c)*w)
			out[i] = Rating{Mean: mean, Sigma: math.Sqrt(variance)}
		}
		return out
	}

	return [][]Rating{
		rate(teams[0], a, sign),
		rate(teams[1], b, -sign),
	}, nil
}

// OutcomeProbabilities returns the win, draw and lose probabilities of the
// first team against the second, before the game is played.
func (e Env) OutcomeProbabilities(teamA, teamB []Rating) (pWin, pDraw, pLose float64) {
	a := summarize(teamA, 0)
	b := summarize(teamB, 0)
	n := a.size + b.size
	c := math.Sqrt(a.sigma2 + b.sigma2 + float64(n)*e.Beta*e.Beta)
	eps := e.DrawMargin(n)
	d := a.mean - b.mean
	pWin = stdNormal.CDF((d - eps) / c)
	pLose = stdNormal.CDF((-d - eps) / c)
	pDraw = 1 - pWin - pLose
	if pDraw < 0 {
		pDraw = 0
	}
	return pWin, pDraw, pLose
}

// WinProbability is a convenience wrapper ignoring the draw margin, used
// where only a single head-to-head estimate is needed.
func (e Env) WinProbability(teamA, teamB []Rating) float64 {
	a := summarize(teamA, 0)
	b := summarize(teamB, 0)
	n := a.size + b.size
	c := math.Sqrt(a.sigma2 + b.sigma2 + float64(n)*e.Beta*e.Beta)
	return stdNormal.CDF((a.mean - b.mean) / c)
}
