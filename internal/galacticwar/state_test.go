package galacticwar

import (
	"errors"
	"testing"

	"github.com/ta-forever/server/internal/config"
	"github.com/ta-forever/server/internal/matchmaker"
	"github.com/ta-forever/server/internal/model"
)

func testConfig() config.GalacticWarConfig {
	return config.GalacticWarConfig{
		MaxScore:               10,
		RequiredDominanceRatio: 2,
		StakeStrategy:          "rating",
		RankFactor:             0.2,
		WinnerTakesPot:         true,
		RequireCorrectMod:      true,
	}
}

// testDocument is a five-planet chain with an arm and a core capital at the
// ends and a contested middle, plus a cul-de-sac off the arm side:
//
//	Armstar(arm*) - Barathrum(arm) - Thalassean(?) - Lusch(core) - Corestar(core*)
//	                     |
//	                Gelidus(?)
func testDocument() *Document {
	return &Document{
		Label: "testgalaxy",
		Nodes: []NodeDoc{
			{ID: 0, Label: "Armstar", Map: "SHERWOOD", Mod: "tacc", Size: 10, CapitalOf: "arm", ControlledBy: "arm"},
			{ID: 1, Label: "Barathrum", Map: "GODS_OF_WAR", Mod: "tacc", Size: 10, ControlledBy: "arm"},
			{ID: 2, Label: "Thalassean", Map: "SHERWOOD", Mod: "tacc", Size: 10},
			{ID: 3, Label: "Lusch", Map: "CORE_PRIME", Mod: "tacc", Size: 10, ControlledBy: "core"},
			{ID: 4, Label: "Corestar", Map: "SHERWOOD", Mod: "tacc", Size: 10, CapitalOf: "core", ControlledBy: "core"},
			{ID: 5, Label: "Gelidus", Map: "SHERWOOD", Mod: "tacc", Size: 10},
		},
		Edges: []EdgeDoc{
			{Source: 0, Target: 1},
			{Source: 1, Target: 2},
			{Source: 2, Target: 3},
			{Source: 3, Target: 4},
			{Source: 1, Target: 5},
		},
	}
}

func testState(t *testing.T) *State {
	t.Helper()
	s, err := NewState(testDocument(), testConfig())
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	return s
}

func mustPlanet(t *testing.T, s *State, name string) *Planet {
	t.Helper()
	p, ok := s.Planet(name)
	if !ok {
		t.Fatalf("planet %q missing", name)
	}
	return p
}

// campaignGame is a finished ladder 1v1 on the given planet, player 1 on
// team 2 against player 2 on team 3.
func campaignGame(planet string, factionA, factionB model.Faction, outA, outB model.GameOutcome) *model.EndedGameInfo {
	return &model.EndedGameInfo{
		GameID:                50,
		RatingType:            model.RatingLadder,
		MapName:               "SHERWOOD",
		FeaturedMod:           "tacc",
		GalacticWarPlanetName: planet,
		Validity:              model.ValidityValid,
		PlayerSummaries: []model.EndedGamePlayerSummary{
			{PlayerID: 1, TeamID: 2, Faction: factionA, Outcome: outA},
			{PlayerID: 2, TeamID: 3, Faction: factionB, Outcome: outB},
		},
	}
}

func TestValidateGame(t *testing.T) {
	valid := func() *model.EndedGameInfo {
		return campaignGame("Thalassean", model.FactionArm, model.FactionCore, model.OutcomeVictory, model.OutcomeDefeat)
	}
	cases := []struct {
		name    string
		mutate  func(*model.EndedGameInfo)
		wantErr bool
	}{
		{"valid", func(*model.EndedGameInfo) {}, false},
		{"unknown planet", func(i *model.EndedGameInfo) { i.GalacticWarPlanetName = "Pluto" }, true},
		{"wrong map", func(i *model.EndedGameInfo) { i.MapName = "CORE_PRIME" }, true},
		{"wrong mod", func(i *model.EndedGameInfo) { i.FeaturedMod = "tavmod" }, true},
		{"mixed team factions", func(i *model.EndedGameInfo) {
			i.PlayerSummaries = append(i.PlayerSummaries, model.EndedGamePlayerSummary{
				PlayerID: 3, TeamID: 2, Faction: model.FactionCore, Outcome: model.OutcomeVictory,
			})
		}, true},
		{"three teams", func(i *model.EndedGameInfo) {
			i.PlayerSummaries = append(i.PlayerSummaries, model.EndedGamePlayerSummary{
				PlayerID: 3, TeamID: 4, Faction: model.FactionGok, Outcome: model.OutcomeDefeat,
			})
		}, true},
		{"same factions", func(i *model.EndedGameInfo) {
			i.PlayerSummaries[1].Faction = model.FactionArm
		}, true},
		{"unranked", func(i *model.EndedGameInfo) { i.RatingType = model.RatingGlobal }, true},
		{"invalid game", func(i *model.EndedGameInfo) { i.Validity = model.ValidityTooShort }, true},
		{"controlled planet", func(i *model.EndedGameInfo) {
			i.GalacticWarPlanetName = "Barathrum"
			i.MapName = "GODS_OF_WAR"
		}, true},
		{"no connectivity", func(i *model.EndedGameInfo) {
			// Gelidus only borders arm territory, so core cannot attack it.
			i.GalacticWarPlanetName = "Gelidus"
		}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := testState(t)
			info := valid()
			c.mutate(info)
			err := s.ValidateGame(info)
			if c.wantErr && !errors.Is(err, ErrInvalidGame) {
				t.Errorf("err = %v, want ErrInvalidGame", err)
			}
			if !c.wantErr && err != nil {
				t.Errorf("err = %v, want nil", err)
			}
		})
	}
}

func TestValidateGameRespectsModConfig(t *testing.T) {
	cfg := testConfig()
	cfg.RequireCorrectMod = false
	s, err := NewState(testDocument(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	info := campaignGame("Thalassean", model.FactionArm, model.FactionCore, model.OutcomeVictory, model.OutcomeDefeat)
	info.FeaturedMod = "tavmod"
	if err := s.ValidateGame(info); err != nil {
		t.Errorf("mod mismatch rejected despite config: %v", err)
	}
}

func TestUpdateScoresVictorTakesPot(t *testing.T) {
	s := testState(t)
	info := campaignGame("Thalassean", model.FactionArm, model.FactionCore, model.OutcomeVictory, model.OutcomeDefeat)
	if err := s.UpdateScores(info, map[int]float64{1: 4, 2: 6}); err != nil {
		t.Fatalf("UpdateScores: %v", err)
	}
	p := mustPlanet(t, s, "Thalassean")
	if got := p.Score(model.FactionCore); got != 4 {
		t.Errorf("core score = %v, want 4 (lost its stake)", got)
	}
	if got := p.Score(model.FactionArm); got != 16 {
		t.Errorf("arm score = %v, want 16 (took the pot)", got)
	}
	if got := p.BelligerentScore(1, model.FactionArm); got != 6 {
		t.Errorf("victor belligerent score = %v, want 6", got)
	}
	if got := p.BelligerentScore(2, model.FactionCore); got != -6 {
		t.Errorf("defeated belligerent score = %v, want -6", got)
	}
}

func TestUpdateScoresDrawForfeitsHalf(t *testing.T) {
	s := testState(t)
	info := campaignGame("Thalassean", model.FactionArm, model.FactionCore, model.OutcomeDraw, model.OutcomeDraw)
	if err := s.UpdateScores(info, map[int]float64{1: 4, 2: 6}); err != nil {
		t.Fatalf("UpdateScores: %v", err)
	}
	p := mustPlanet(t, s, "Thalassean")
	if got := p.Score(model.FactionArm); got != 8 {
		t.Errorf("arm score = %v, want 8", got)
	}
	if got := p.Score(model.FactionCore); got != 7 {
		t.Errorf("core score = %v, want 7", got)
	}
}

func TestUpdateScoresRebaselinesNegatives(t *testing.T) {
	s := testState(t)
	p := mustPlanet(t, s, "Thalassean")
	p.SetScore(model.FactionCore, 3)

	info := campaignGame("Thalassean", model.FactionArm, model.FactionCore, model.OutcomeVictory, model.OutcomeDefeat)
	if err := s.UpdateScores(info, map[int]float64{1: 4, 2: 6}); err != nil {
		t.Fatalf("UpdateScores: %v", err)
	}
	if got := p.Score(model.FactionCore); got != 0 {
		t.Errorf("core score = %v, want 0 after re-baseline", got)
	}
	if got := p.Score(model.FactionArm); got != 19 {
		t.Errorf("arm score = %v, want 19 after re-baseline", got)
	}
}

func TestUpdateFrontLinesCapturesDominantAndContestsNeighbours(t *testing.T) {
	s := testState(t)
	p := mustPlanet(t, s, "Thalassean")
	p.SetScore(model.FactionArm, 21)
	p.SetScore(model.FactionCore, 4)

	if changes := s.UpdateFrontLines(); changes == 0 {
		t.Fatal("no changes reported")
	}
	if f, ok := p.ControlledBy(); !ok || f != model.FactionArm {
		t.Errorf("Thalassean control = %v/%v, want arm", f, ok)
	}
	lusch := mustPlanet(t, s, "Lusch")
	if _, ok := lusch.ControlledBy(); ok {
		t.Error("Lusch still controlled, want contested by the new front line")
	}
	if got := lusch.Score(model.FactionCore); got != lusch.Size {
		t.Errorf("Lusch core score = %v, want reset to size %v", got, lusch.Size)
	}
}

func TestUpdateFrontLinesIgnoresBalancedPlanets(t *testing.T) {
	s := testState(t)
	p := mustPlanet(t, s, "Thalassean")
	p.SetScore(model.FactionArm, 15)
	p.SetScore(model.FactionCore, 10)

	if changes := s.UpdateFrontLines(); changes != 0 {
		t.Errorf("changes = %d, want 0 below the dominance ratio", changes)
	}
	if _, ok := p.ControlledBy(); ok {
		t.Error("Thalassean captured without dominance")
	}
}

func TestCaptureUncontestedPlanets(t *testing.T) {
	s := testState(t)
	arm := model.FactionArm
	mustPlanet(t, s, "Lusch").SetControlledBy(&arm)

	changes := s.CaptureUncontestedPlanets()
	if changes != 2 {
		t.Errorf("changes = %d, want 2", changes)
	}
	for _, name := range []string{"Thalassean", "Gelidus"} {
		if f, ok := mustPlanet(t, s, name).ControlledBy(); !ok || f != model.FactionArm {
			t.Errorf("%s control = %v/%v, want arm", name, f, ok)
		}
	}
}

func TestCaptureUncontestedSkipsCapitals(t *testing.T) {
	s := testState(t)
	core := model.FactionCore
	mustPlanet(t, s, "Armstar").SetControlledBy(nil)
	mustPlanet(t, s, "Barathrum").SetControlledBy(&core)

	s.CaptureUncontestedPlanets()
	if _, ok := mustPlanet(t, s, "Armstar").ControlledBy(); ok {
		t.Error("contested capital captured by the uncontested rule")
	}
}

func TestCaptureIsolatedPlanets(t *testing.T) {
	s := testState(t)
	arm := model.FactionArm
	// Thalassean is arm but its only link to the arm capital runs through
	// Barathrum, which has fallen.
	mustPlanet(t, s, "Thalassean").SetControlledBy(&arm)
	mustPlanet(t, s, "Barathrum").SetControlledBy(nil)

	changes := s.CaptureIsolatedPlanets()
	if changes != 1 {
		t.Errorf("changes = %d, want 1", changes)
	}
	if f, ok := mustPlanet(t, s, "Thalassean").ControlledBy(); !ok || f != model.FactionCore {
		t.Errorf("Thalassean control = %v/%v, want core", f, ok)
	}
}

func TestCaptureIsolatedRequiresTwoFactions(t *testing.T) {
	s := testState(t)
	arm := model.FactionArm
	for _, name := range []string{"Barathrum", "Thalassean", "Lusch", "Corestar"} {
		mustPlanet(t, s, name).SetControlledBy(&arm)
	}
	if changes := s.CaptureIsolatedPlanets(); changes != 0 {
		t.Errorf("changes = %d, want 0 with a single faction on the map", changes)
	}
}

// diameterDocument is a path 0-1-2-3-4 with a spur 2-5; the farthest-apart
// pair is (0, 4).
func diameterDocument() *Document {
	doc := &Document{Label: "fresh"}
	for id := 0; id <= 5; id++ {
		doc.Nodes = append(doc.Nodes, NodeDoc{ID: id, Label: "P" + string(rune('0'+id)), Map: "SHERWOOD", Mod: "tacc", Size: 10})
	}
	doc.Edges = []EdgeDoc{
		{Source: 0, Target: 1}, {Source: 1, Target: 2}, {Source: 2, Target: 3},
		{Source: 3, Target: 4}, {Source: 2, Target: 5},
	}
	return doc
}

func TestAssignTwoCapitalsAtDiameter(t *testing.T) {
	s, err := NewState(diameterDocument(), testConfig())
	if err != nil {
		t.Fatal(err)
	}
	s.AssignTwoCapitals()

	capitals := s.Capitals(true, true, true)
	if len(capitals) != 2 {
		t.Fatalf("capitals = %d, want 2", len(capitals))
	}
	ids := map[int]bool{capitals[0].ID: true, capitals[1].ID: true}
	if !ids[0] || !ids[4] {
		t.Errorf("capitals at %v, want the diameter endpoints 0 and 4", ids)
	}
	for _, c := range capitals {
		owner, ok := c.CapitalOf()
		if controller, controlled := c.ControlledBy(); !ok || !controlled || owner != controller {
			t.Errorf("capital %s not controlled by its own faction", c.Name)
		}
	}
}

func TestDistributePlanetsToFactions(t *testing.T) {
	s, err := NewState(diameterDocument(), testConfig())
	if err != nil {
		t.Fatal(err)
	}
	s.AssignTwoCapitals()
	s.DistributePlanetsToFactions()

	capitalAt := func(id int) model.Faction {
		for _, c := range s.Capitals(true, true, true) {
			if c.ID == id {
				f, _ := c.CapitalOf()
				return f
			}
		}
		t.Fatalf("no capital at %d", id)
		return 0
	}
	near := capitalAt(0)
	far := capitalAt(4)

	if f, ok := mustPlanet(t, s, "P1").ControlledBy(); !ok || f != near {
		t.Errorf("P1 control = %v/%v, want the nearer capital's faction", f, ok)
	}
	if f, ok := mustPlanet(t, s, "P3").ControlledBy(); !ok || f != far {
		t.Errorf("P3 control = %v/%v, want the farther capital's faction", f, ok)
	}
	// P2 and P5 are equidistant from both capitals.
	for _, name := range []string{"P2", "P5"} {
		if _, ok := mustPlanet(t, s, name).ControlledBy(); ok {
			t.Errorf("%s controlled, want contested when equidistant", name)
		}
	}
}

func TestSeparateAbuttingFactions(t *testing.T) {
	s := testState(t)
	arm := model.FactionArm
	// Push the arm front right up against Lusch.
	mustPlanet(t, s, "Thalassean").SetControlledBy(&arm)

	s.SeparateAbuttingFactions()
	for _, name := range []string{"Thalassean", "Lusch"} {
		if _, ok := mustPlanet(t, s, name).ControlledBy(); ok {
			t.Errorf("%s still controlled, want both sides of the border contested", name)
		}
	}
	if f, ok := mustPlanet(t, s, "Barathrum").ControlledBy(); !ok || f != model.FactionArm {
		t.Errorf("Barathrum control = %v/%v, interior planet should be untouched", f, ok)
	}
}

func TestEnsureRankedMaps(t *testing.T) {
	s := testState(t)
	pool := matchmaker.NewMapPool(1, "ladders", []matchmaker.Map{
		{ID: 1, Name: "SHERWOOD"},
		{ID: 2, Name: "GODS_OF_WAR"},
	})
	queues := []*matchmaker.Queue{
		{ID: 1, Name: "tacc1v1", FeaturedMod: "tacc", RatingType: model.RatingLadder, TeamSize: 1,
			Pools: []matchmaker.RatedPool{{Pool: pool}}},
		{ID: 2, Name: "tacc2v2", FeaturedMod: "tacc", RatingType: "tacc2v2", TeamSize: 2},
	}

	s.EnsureRankedMaps(queues)
	lusch := mustPlanet(t, s, "Lusch")
	if lusch.Map != "SHERWOOD" && lusch.Map != "GODS_OF_WAR" {
		t.Errorf("Lusch map = %q, want a pool map", lusch.Map)
	}
	if got := mustPlanet(t, s, "Thalassean").Map; got != "SHERWOOD" {
		t.Errorf("Thalassean map = %q, pool map should be kept", got)
	}
}
