package trueskill

import (
	"math"
	"testing"
)

var env = Env{Beta: 250, Tau: 5, DrawProbability: 0.1}

func approx(t *testing.T, got, want, tol float64, what string) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s = %v, want %v (tol %v)", what, got, want, tol)
	}
}

func TestRateWinnerGainsLoserLoses(t *testing.T) {
	teams := [][]Rating{
		{{Mean: 1500, Sigma: 500}},
		{{Mean: 1500, Sigma: 500}},
	}
	rated, err := env.Rate(teams, []int{0, 1})
	if err != nil {
		t.Fatal(err)
	}
	w, l := rated[0][0], rated[1][0]
	if w.Mean <= 1500 {
		t.Errorf("winner mean %v, want > 1500", w.Mean)
	}
	if l.Mean >= 1500 {
		t.Errorf("loser mean %v, want < 1500", l.Mean)
	}
	// Symmetric game, symmetric shift.
	approx(t, w.Mean-1500, 1500-l.Mean, 1e-9, "mean shift symmetry")
	if w.Sigma >= 500 || l.Sigma >= 500 {
		t.Errorf("sigma did not shrink: %v, %v", w.Sigma, l.Sigma)
	}
}

func TestRateOrderIndependentOfRankOrientation(t *testing.T) {
	teams := [][]Rating{
		{{Mean: 1200, Sigma: 300}},
		{{Mean: 1700, Sigma: 120}},
	}
	a, err := env.Rate(teams, []int{0, 1})
	if err != nil {
		t.Fatal(err)
	}
	b, err := env.Rate([][]Rating{teams[1], teams[0]}, []int{1, 0})
	if err != nil {
		t.Fatal(err)
	}
	approx(t, a[0][0].Mean, b[1][0].Mean, 1e-9, "winner mean")
	approx(t, a[1][0].Mean, b[0][0].Mean, 1e-9, "loser mean")
}

func TestRateDrawPullsMeansTogether(t *testing.T) {
	teams := [][]Rating{
		{{Mean: 1800, Sigma: 100}},
		{{Mean: 1400, Sigma: 100}},
	}
	rated, err := env.Rate(teams, []int{0, 0})
	if err != nil {
		t.Fatal(err)
	}
	if rated[0][0].Mean >= 1800 {
		t.Errorf("favourite mean %v, want < 1800 after draw", rated[0][0].Mean)
	}
	if rated[1][0].Mean <= 1400 {
		t.Errorf("underdog mean %v, want > 1400 after draw", rated[1][0].Mean)
	}
}

func TestRateUpsetMovesMoreThanExpectedWin(t *testing.T) {
	strong := Rating{Mean: 1900, Sigma: 100}
	weak := Rating{Mean: 1100, Sigma: 100}

	upset, err := env.Rate([][]Rating{{weak}, {strong}}, []int{0, 1})
	if err != nil {
		t.Fatal(err)
	}
	expected, err := env.Rate([][]Rating{{strong}, {weak}}, []int{0, 1})
	if err != nil {
		t.Fatal(err)
	}
	upsetGain := upset[0][0].Mean - weak.Mean
	expectedGain := expected[0][0].Mean - strong.Mean
	if upsetGain <= expectedGain {
		t.Errorf("upset gain %v not greater than expected-win gain %v", upsetGain, expectedGain)
	}
}

func TestRateRejectsBadInput(t *testing.T) {
	if _, err := env.Rate([][]Rating{{{Mean: 1500, Sigma: 500}}}, []int{0}); err == nil {
		t.Error("expected error for single team")
	}
	if _, err := env.Rate([][]Rating{{}, {{Mean: 1500, Sigma: 500}}}, []int{0, 1}); err == nil {
		t.Error("expected error for empty team")
	}
}

func TestOutcomeProbabilitiesSumToOne(t *testing.T) {
	a := []Rating{{Mean: 1700, Sigma: 120}}
	b := []Rating{{Mean: 1400, Sigma: 200}}
	pw, pd, pl := env.OutcomeProbabilities(a, b)
	approx(t, pw+pd+pl, 1, 1e-9, "probability sum")
	if pw <= pl {
		t.Errorf("pWin %v not greater than pLose %v for stronger team", pw, pl)
	}
	// Reversed matchup mirrors the probabilities.
	pw2, pd2, pl2 := env.OutcomeProbabilities(b, a)
	approx(t, pw, pl2, 1e-9, "mirrored pWin")
	approx(t, pl, pw2, 1e-9, "mirrored pLose")
	approx(t, pd, pd2, 1e-9, "mirrored pDraw")
}

func TestWinProbabilityEqualTeamsIsHalf(t *testing.T) {
	a := []Rating{{Mean: 1500, Sigma: 500}}
	b := []Rating{{Mean: 1500, Sigma: 500}}
	approx(t, env.WinProbability(a, b), 0.5, 1e-9, "equal teams win probability")
}

func TestDrawMarginGrowsWithPlayers(t *testing.T) {
	if env.DrawMargin(2) >= env.DrawMargin(8) {
		t.Error("draw margin should grow with player count")
	}
	zero := Env{Beta: 250, Tau: 5, DrawProbability: 0}
	approx(t, zero.DrawMargin(2), 0, 1e-9, "zero draw probability margin")
}
