package galacticwar

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ta-forever/server/internal/config"
	"github.com/ta-forever/server/internal/model"
)

func testServiceConfig(t *testing.T) config.GalacticWarConfig {
	t.Helper()
	dir := t.TempDir()
	cfg := testConfig()
	cfg.StateFile = filepath.Join(dir, "state.json")
	cfg.ScenarioPath = filepath.Join(dir, "scenarios")
	cfg.InitialScenario = "galaxy_1.json"
	if err := os.Mkdir(cfg.ScenarioPath, 0o755); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func writeScenario(t *testing.T, cfg config.GalacticWarConfig, name string, doc *Document) {
	t.Helper()
	if err := SaveDocument(filepath.Join(cfg.ScenarioPath, name), doc); err != nil {
		t.Fatal(err)
	}
}

func TestInitializeFreshScenario(t *testing.T) {
	cfg := testServiceConfig(t)
	writeScenario(t, cfg, cfg.InitialScenario, diameterDocument())
	svc := NewService(cfg, nil)

	if err := svc.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	svc.mu.Lock()
	capitals := svc.state.UncapturedCapitals()
	svc.mu.Unlock()
	if len(capitals) != 2 {
		t.Errorf("uncaptured capitals = %d, want 2 after fresh setup", len(capitals))
	}
	if _, err := os.Stat(cfg.StateFile); err != nil {
		t.Errorf("state file not persisted: %v", err)
	}
	if !svc.ConsumeDirty() {
		t.Error("fresh initialization should flag a broadcast")
	}
	if svc.ConsumeDirty() {
		t.Error("dirty flag not cleared")
	}
}

func TestInitializeRestoresStateFile(t *testing.T) {
	cfg := testServiceConfig(t)
	if err := SaveDocument(cfg.StateFile, testDocument()); err != nil {
		t.Fatal(err)
	}
	svc := NewService(cfg, nil)
	if err := svc.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	svc.mu.Lock()
	label := svc.state.Label()
	svc.mu.Unlock()
	if label != "testgalaxy" {
		t.Errorf("label = %q, want the persisted campaign restored", label)
	}
}

func TestInitializeMissingScenarioFails(t *testing.T) {
	cfg := testServiceConfig(t)
	if err := NewService(cfg, nil).Initialize(); err == nil {
		t.Error("expected error with no scenario to load")
	}
}

func TestOnGameRatingMovesScoresAndPersists(t *testing.T) {
	cfg := testServiceConfig(t)
	if err := SaveDocument(cfg.StateFile, testDocument()); err != nil {
		t.Fatal(err)
	}
	svc := NewService(cfg, nil)
	if err := svc.Initialize(); err != nil {
		t.Fatal(err)
	}
	svc.ConsumeDirty()

	info := campaignGame("Thalassean", model.FactionArm, model.FactionCore, model.OutcomeVictory, model.OutcomeDefeat)
	likelihoods := []model.OutcomeLikelihoods{
		{PWin: 0.4, PDraw: 0.2, PLose: 0.4},
		{PWin: 0.4, PDraw: 0.2, PLose: 0.4},
	}
	svc.OnGameRating(info, nil, nil, likelihoods)

	if !svc.ConsumeDirty() {
		t.Error("rated game should flag a broadcast")
	}
	doc, err := LoadDocument(cfg.StateFile)
	if err != nil {
		t.Fatal(err)
	}
	persisted, err := NewState(doc, cfg)
	if err != nil {
		t.Fatal(err)
	}
	p, _ := persisted.Planet("Thalassean")
	if p == nil {
		t.Fatal("Thalassean missing from persisted state")
	}
	arm, core := p.Score(model.FactionArm), p.Score(model.FactionCore)
	if arm <= core {
		t.Errorf("persisted scores arm=%v core=%v, want the victor ahead", arm, core)
	}
}

func TestOnGameRatingIgnoresNonCampaignGames(t *testing.T) {
	cfg := testServiceConfig(t)
	if err := SaveDocument(cfg.StateFile, testDocument()); err != nil {
		t.Fatal(err)
	}
	svc := NewService(cfg, nil)
	if err := svc.Initialize(); err != nil {
		t.Fatal(err)
	}
	svc.ConsumeDirty()

	info := campaignGame("", model.FactionArm, model.FactionCore, model.OutcomeVictory, model.OutcomeDefeat)
	svc.OnGameRating(info, nil, nil, nil)
	if svc.ConsumeDirty() {
		t.Error("game without a planet should not touch the campaign")
	}

	invalid := campaignGame("Thalassean", model.FactionArm, model.FactionCore, model.OutcomeVictory, model.OutcomeDefeat)
	invalid.Validity = model.ValidityTooShort
	svc.OnGameRating(invalid, nil, nil, nil)
	if svc.ConsumeDirty() {
		t.Error("invalid game should not touch the campaign")
	}
}

func TestScenarioRotatesWhenCapitalFalls(t *testing.T) {
	cfg := testServiceConfig(t)
	writeScenario(t, cfg, "galaxy_1.json", &Document{
		Label: "fresh start",
		Nodes: diameterDocument().Nodes,
		Edges: diameterDocument().Edges,
	})

	// The core capital has already fallen; one more decisive arm win
	// should end the scenario.
	doc := testDocument()
	doc.Nodes[4].CapitalOf = "core"
	doc.Nodes[4].ControlledBy = "arm"
	if err := SaveDocument(cfg.StateFile, doc); err != nil {
		t.Fatal(err)
	}
	svc := NewService(cfg, nil)
	if err := svc.Initialize(); err != nil {
		t.Fatal(err)
	}

	info := campaignGame("Thalassean", model.FactionArm, model.FactionCore, model.OutcomeVictory, model.OutcomeDefeat)
	likelihoods := []model.OutcomeLikelihoods{
		{PWin: 0.5, PDraw: 0, PLose: 0.5},
		{PWin: 0.5, PDraw: 0, PLose: 0.5},
	}
	svc.OnGameRating(info, nil, nil, likelihoods)

	svc.mu.Lock()
	label := svc.state.Label()
	svc.mu.Unlock()
	if label != "fresh start" {
		t.Errorf("label = %q, want the next scenario loaded", label)
	}
}

func TestManualCapture(t *testing.T) {
	cfg := testServiceConfig(t)
	if err := SaveDocument(cfg.StateFile, testDocument()); err != nil {
		t.Fatal(err)
	}
	svc := NewService(cfg, nil)
	if err := svc.Initialize(); err != nil {
		t.Fatal(err)
	}

	if err := svc.ManualCapture("Thalassean:core; Barathrum:"); err != nil {
		t.Fatalf("ManualCapture: %v", err)
	}
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if f, ok := mustStatePlanet(t, svc.state, "Thalassean").ControlledBy(); !ok || f != model.FactionCore {
		t.Errorf("Thalassean control = %v/%v, want core", f, ok)
	}
	if _, ok := mustStatePlanet(t, svc.state, "Barathrum").ControlledBy(); ok {
		t.Error("Barathrum still controlled, want contested")
	}
}

func TestManualCaptureRejectsUnknownPlanet(t *testing.T) {
	cfg := testServiceConfig(t)
	if err := SaveDocument(cfg.StateFile, testDocument()); err != nil {
		t.Fatal(err)
	}
	svc := NewService(cfg, nil)
	if err := svc.Initialize(); err != nil {
		t.Fatal(err)
	}
	if err := svc.ManualCapture("Pluto:arm"); err == nil {
		t.Error("expected error for unknown planet")
	}
}

func mustStatePlanet(t *testing.T, s *State, name string) *Planet {
	t.Helper()
	p, ok := s.Planet(name)
	if !ok {
		t.Fatalf("planet %q missing", name)
	}
	return p
}

func TestUpdateMessage(t *testing.T) {
	cfg := testServiceConfig(t)
	if err := SaveDocument(cfg.StateFile, testDocument()); err != nil {
		t.Fatal(err)
	}
	svc := NewService(cfg, nil)
	if err := svc.Initialize(); err != nil {
		t.Fatal(err)
	}

	msg := svc.UpdateMessage()
	if msg["command"] != "galactic_war_update" {
		t.Errorf("command = %v", msg["command"])
	}
	if msg["label"] != "testgalaxy" {
		t.Errorf("label = %v", msg["label"])
	}
	nodes, ok := msg["node"].([]map[string]any)
	if !ok || len(nodes) != 6 {
		t.Fatalf("node list = %v", msg["node"])
	}
	edges, ok := msg["edge"].([]map[string]any)
	if !ok || len(edges) != 5 {
		t.Fatalf("edge list = %v", msg["edge"])
	}
}
