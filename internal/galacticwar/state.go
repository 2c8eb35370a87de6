package galacticwar

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/ta-forever/server/internal/config"
	"github.com/ta-forever/server/internal/matchmaker"
	"github.com/ta-forever/server/internal/model"
)

// ErrInvalidGame rejects a rated game that cannot move the campaign.
var ErrInvalidGame = errors.New("invalid galactic war game")

// mapPoolConsultRating is the displayed rating at which queue map pools
// are consulted for campaign map assignment.
const mapPoolConsultRating = 1500

// State is the campaign: a graph of planets connected by jump-gates, with
// per-planet faction scores and two capitals fighting over the middle.
type State struct {
	cfg   config.GalacticWarConfig
	label string

	planetsByID   map[int]*Planet
	planetsByName map[string]*Planet
	jumpGates     []EdgeDoc
	neighbours    map[string][]*Planet
	capitals      map[model.Faction]*Planet
}

// NewState builds a campaign state from a scenario document.
func NewState(doc *Document, cfg config.GalacticWarConfig) (*State, error) {
	s := &State{
		cfg:           cfg,
		label:         doc.Label,
		planetsByID:   make(map[int]*Planet, len(doc.Nodes)),
		planetsByName: make(map[string]*Planet, len(doc.Nodes)),
		jumpGates:     append([]EdgeDoc(nil), doc.Edges...),
		neighbours:    make(map[string][]*Planet),
		capitals:      make(map[model.Faction]*Planet),
	}
	usedNames := make(map[string]struct{}, len(doc.Nodes))
	for _, node := range doc.Nodes {
		p := newPlanet(node, usedNames)
		if _, dup := s.planetsByID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate planet id %d", p.ID)
		}
		s.planetsByID[p.ID] = p
		s.planetsByName[p.Name] = p
		if f, ok := p.CapitalOf(); ok {
			s.capitals[f] = p
		}
	}
	for _, gate := range s.jumpGates {
		source, okS := s.planetsByID[gate.Source]
		target, okT := s.planetsByID[gate.Target]
		if !okS || !okT {
			return nil, fmt.Errorf("jump gate %d-%d references unknown planet", gate.Source, gate.Target)
		}
		s.neighbours[source.Name] = append(s.neighbours[source.Name], target)
		s.neighbours[target.Name] = append(s.neighbours[target.Name], source)
	}
	return s, nil
}

// Document renders the state back into its canonical on-disk form.
func (s *State) Document() *Document {
	doc := &Document{Label: s.label, Edges: append([]EdgeDoc(nil), s.jumpGates...)}
	for _, p := range s.sortedPlanets() {
		doc.Nodes = append(doc.Nodes, p.Doc())
	}
	return doc
}

// Label names the scenario this state was loaded from.
func (s *State) Label() string { return s.label }

// Planet looks a planet up by name.
func (s *State) Planet(name string) (*Planet, bool) {
	p, ok := s.planetsByName[name]
	return p, ok
}

func (s *State) sortedPlanets() []*Planet {
	planets := make([]*Planet, 0, len(s.planetsByID))
	for _, p := range s.planetsByID {
		planets = append(planets, p)
	}
	sort.Slice(planets, func(i, j int) bool { return planets[i].ID < planets[j].ID })
	return planets
}

// ValidateGame rejects rated games that should not move the campaign.
func (s *State) ValidateGame(info *model.EndedGameInfo) error {
	planet, ok := s.planetsByName[info.GalacticWarPlanetName]
	if !ok {
		return fmt.Errorf("%w: %q is not part of scenario %q", ErrInvalidGame, info.GalacticWarPlanetName, s.label)
	}
	if planet.Map != info.MapName {
		return fmt.Errorf("%w: %q should be played on map %q, not %q", ErrInvalidGame, planet.Name, planet.Map, info.MapName)
	}
	if s.cfg.RequireCorrectMod && planet.Mod != info.FeaturedMod {
		return fmt.Errorf("%w: %q should be played with mod %q, not %q", ErrInvalidGame, planet.Name, planet.Mod, info.FeaturedMod)
	}

	factionsByTeam := make(map[int]model.Faction)
	teamIDs := make([]int, 0, 2)
	for _, summary := range info.PlayerSummaries {
		if f, seen := factionsByTeam[summary.TeamID]; seen {
			if f != summary.Faction {
				return fmt.Errorf("%w: should be played one faction versus another", ErrInvalidGame)
			}
			continue
		}
		factionsByTeam[summary.TeamID] = summary.Faction
		teamIDs = append(teamIDs, summary.TeamID)
	}
	if len(factionsByTeam) != 2 {
		return fmt.Errorf("%w: should be played with exactly two teams", ErrInvalidGame)
	}
	if factionsByTeam[teamIDs[0]] == factionsByTeam[teamIDs[1]] {
		return fmt.Errorf("%w: should be played with opposing factions", ErrInvalidGame)
	}

	if info.RatingType == "" || info.RatingType == model.RatingGlobal {
		return fmt.Errorf("%w: should be played with ranked settings", ErrInvalidGame)
	}
	if info.Validity != model.ValidityValid {
		return fmt.Errorf("%w: %s", ErrInvalidGame, info.Validity.String())
	}
	if controller, controlled := planet.ControlledBy(); controlled {
		return fmt.Errorf("%w: %q (%s controlled) is not contested", ErrInvalidGame, planet.Name, controller)
	}

	for _, teamID := range teamIDs {
		faction := factionsByTeam[teamID]
		if capital, ok := planet.CapitalOf(); ok && capital == faction {
			continue
		}
		connected := false
		for _, neighbour := range s.neighbours[planet.Name] {
			if f, ok := neighbour.ControlledBy(); ok && f == faction {
				connected = true
				break
			}
		}
		if !connected {
			return fmt.Errorf("%w: %s does not have connectivity to planet %q", ErrInvalidGame, faction, planet.Name)
		}
	}
	return nil
}

// UpdateScores settles the per-player stakes of a completed game on its
// planet. Victors keep their stake, drawers forfeit half, the defeated
// forfeit all of it; forfeits are pooled and split among the victors.
func (s *State) UpdateScores(info *model.EndedGameInfo, stakes map[int]float64) error {
	planet, ok := s.planetsByName[info.GalacticWarPlanetName]
	if !ok {
		return fmt.Errorf("%w: %q is not part of scenario %q", ErrInvalidGame, info.GalacticWarPlanetName, s.label)
	}

	pot := 0.0
	victors := 0
	for _, summary := range info.PlayerSummaries {
		loss := stakes[summary.PlayerID]
		switch summary.Outcome {
		case model.OutcomeVictory:
			loss = 0
			victors++
		case model.OutcomeDraw:
			loss /= 2
		}
		if loss != 0 {
			planet.SetScore(summary.Faction, planet.Score(summary.Faction)-loss)
			planet.AdjustBelligerent(summary.PlayerID, summary.Faction, -loss)
			pot += loss
		}
		log.Info().
			Str("planet", planet.Name).
			Int("player_id", summary.PlayerID).
			Str("faction", summary.Faction.String()).
			Float64("forfeit", loss).
			Msg("galactic war stake settled")
	}

	teamSize := len(info.PlayerSummaries) / 2
	if victors > 0 && teamSize > 0 {
		winnings := pot / float64(teamSize)
		for _, summary := range info.PlayerSummaries {
			if summary.Outcome != model.OutcomeVictory {
				continue
			}
			if s.cfg.WinnerTakesPot {
				planet.SetScore(summary.Faction, planet.Score(summary.Faction)+winnings)
			}
			planet.AdjustBelligerent(summary.PlayerID, summary.Faction, winnings)
		}
	}

	// Re-baseline so no faction's score goes negative.
	scores := planet.Scores()
	minScore := 0.0
	for _, score := range scores {
		if score < minScore {
			minScore = score
		}
	}
	if minScore < 0 {
		for f, score := range scores {
			planet.SetScore(f, score-minScore)
		}
	}
	return nil
}

// UpdateFrontLines captures every contested planet with a dominant faction
// and contests the captured planets' hostile neighbours. Higher-scored
// planets are processed first so they win conflicts. Returns the number of
// planets whose control changed.
func (s *State) UpdateFrontLines() int {
	contested := make([]*Planet, 0)
	for _, p := range s.sortedPlanets() {
		if _, controlled := p.ControlledBy(); !controlled {
			contested = append(contested, p)
		}
	}
	sort.SliceStable(contested, func(i, j int) bool {
		return maxScore(contested[i]) > maxScore(contested[j])
	})
	changes := 0
	for _, p := range contested {
		changes += s.UpdatePlanetFrontLine(p)
	}
	return changes
}

// UpdatePlanetFrontLine applies the front-line rule to one planet.
func (s *State) UpdatePlanetFrontLine(planet *Planet) int {
	dominant, ok := planet.DominantFaction(s.cfg.RequiredDominanceRatio)
	if !ok {
		return 0
	}
	log.Info().Str("planet", planet.Name).Str("faction", dominant.String()).Msg("planet captured by dominance")
	planet.SetControlledBy(&dominant)
	changes := 1
	for _, neighbour := range s.neighbours[planet.Name] {
		hostileDominant, dOK := neighbour.DominantFaction(s.cfg.RequiredDominanceRatio)
		controller, cOK := neighbour.ControlledBy()
		if (dOK && hostileDominant != dominant) || (cOK && controller != dominant) {
			log.Info().Str("planet", neighbour.Name).Str("captured", planet.Name).Msg("neighbour contested by new front line")
			neighbour.SetControlledBy(nil)
			neighbour.ResetScores()
			changes++
		}
	}
	return changes
}

func maxScore(p *Planet) float64 {
	best := 0.0
	first := true
	for _, s := range p.Scores() {
		if first || s > best {
			best = s
			first = false
		}
	}
	return best
}

// CaptureUncontestedPlanets hands every contested non-capital whose
// controlled neighbours all belong to one faction over to that faction.
func (s *State) CaptureUncontestedPlanets() int {
	changes := 0
	for _, planet := range s.sortedPlanets() {
		if _, controlled := planet.ControlledBy(); controlled {
			continue
		}
		if _, isCapital := planet.CapitalOf(); isCapital {
			continue
		}
		var sole *model.Faction
		unanimous := true
		for _, neighbour := range s.neighbours[planet.Name] {
			f, ok := neighbour.ControlledBy()
			if !ok {
				continue
			}
			if sole == nil {
				faction := f
				sole = &faction
			} else if *sole != f {
				unanimous = false
				break
			}
		}
		if unanimous && sole != nil {
			log.Info().Str("planet", planet.Name).Str("faction", sole.String()).Msg("planet captured uncontested")
			planet.SetControlledBy(sole)
			changes++
		}
	}
	return changes
}

// CaptureIsolatedPlanets reassigns controlled planets with no path to
// their capital through friendly territory to the opposing faction. Only
// two-faction fronts are handled.
func (s *State) CaptureIsolatedPlanets() int {
	byFaction := make(map[model.Faction][]*Planet)
	for _, p := range s.planetsByID {
		if f, ok := p.ControlledBy(); ok {
			byFaction[f] = append(byFaction[f], p)
		}
	}
	if len(byFaction) != 2 {
		return 0
	}

	changes := 0
	for faction, capital := range s.capitals {
		other, ok := s.otherCapitalFaction(faction)
		if !ok {
			continue
		}
		owned := byFaction[faction]
		ids := make(map[int]struct{}, len(owned))
		for _, p := range owned {
			ids[p.ID] = struct{}{}
		}
		reachable := s.reachableFrom(capital.ID, ids)
		for _, p := range owned {
			if p.ID == capital.ID {
				continue
			}
			if _, ok := reachable[p.ID]; ok {
				continue
			}
			log.Info().Str("planet", p.Name).Str("faction", other.String()).Msg("isolated planet captured")
			captured := other
			p.SetControlledBy(&captured)
			changes++
		}
	}
	return changes
}

func (s *State) otherCapitalFaction(faction model.Faction) (model.Faction, bool) {
	for f := range s.capitals {
		if f != faction {
			return f, true
		}
	}
	return 0, false
}

// reachableFrom returns the planet ids connected to start within the
// induced subgraph over ids. An empty set is returned when start is not in
// the subgraph.
func (s *State) reachableFrom(start int, ids map[int]struct{}) map[int]struct{} {
	reached := make(map[int]struct{})
	if _, ok := ids[start]; !ok {
		return reached
	}
	g := s.subgraph(ids)
	startNode := g.Node(int64(start))
	if startNode == nil {
		return reached
	}
	for _, component := range topo.ConnectedComponents(g) {
		inComponent := false
		for _, n := range component {
			if n.ID() == int64(start) {
				inComponent = true
				break
			}
		}
		if inComponent {
			for _, n := range component {
				reached[int(n.ID())] = struct{}{}
			}
			break
		}
	}
	return reached
}

func (s *State) subgraph(ids map[int]struct{}) *simple.UndirectedGraph {
	g := simple.NewUndirectedGraph()
	for id := range ids {
		g.AddNode(simple.Node(id))
	}
	for _, gate := range s.jumpGates {
		_, okS := ids[gate.Source]
		_, okT := ids[gate.Target]
		if okS && okT && gate.Source != gate.Target {
			g.SetEdge(g.NewEdge(simple.Node(gate.Source), simple.Node(gate.Target)))
		}
	}
	return g
}

func (s *State) fullGraph() *simple.UndirectedGraph {
	ids := make(map[int]struct{}, len(s.planetsByID))
	for id := range s.planetsByID {
		ids[id] = struct{}{}
	}
	return s.subgraph(ids)
}

// Capitals returns capital planets filtered by their current standing.
func (s *State) Capitals(standing, contested, captured bool) []*Planet {
	var out []*Planet
	factions := make([]model.Faction, 0, len(s.capitals))
	for f := range s.capitals {
		factions = append(factions, f)
	}
	sort.Slice(factions, func(i, j int) bool { return factions[i] < factions[j] })
	for _, faction := range factions {
		planet := s.capitals[faction]
		controller, controlled := planet.ControlledBy()
		switch {
		case standing && controlled && controller == faction:
			out = append(out, planet)
		case contested && !controlled:
			out = append(out, planet)
		case captured && controlled && controller != faction:
			out = append(out, planet)
		}
	}
	return out
}

// UncapturedCapitals returns the capitals still standing or contested.
// Fewer than two means the scenario is decided.
func (s *State) UncapturedCapitals() []*Planet {
	return s.Capitals(true, true, false)
}

// AssignTwoCapitals places the arm and core capitals at the two endpoints
// of the graph's diameter, the farthest-apart planet pair.
func (s *State) AssignTwoCapitals() {
	g := s.fullGraph()
	all := path.DijkstraAllPaths(g)

	ids := make([]int, 0, len(s.planetsByID))
	for id := range s.planetsByID {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	bestA, bestB, bestLen := -1, -1, -1.0
	for i, a := range ids {
		for _, b := range ids[i+1:] {
			w := all.Weight(int64(a), int64(b))
			if w > bestLen && w < float64(len(ids)+1) {
				bestA, bestB, bestLen = a, b, w
			}
		}
	}
	if bestA < 0 {
		return
	}

	arm := model.FactionArm
	core := model.FactionCore
	s.capitals = make(map[model.Faction]*Planet)
	for _, p := range s.sortedPlanets() {
		switch p.ID {
		case bestA:
			p.setCapitalOf(&arm)
			p.SetControlledBy(&arm)
			s.capitals[arm] = p
		case bestB:
			p.setCapitalOf(&core)
			p.SetControlledBy(&core)
			s.capitals[core] = p
		default:
			p.setCapitalOf(nil)
		}
	}
	log.Info().
		Str("arm_capital", s.capitals[arm].Name).
		Str("core_capital", s.capitals[core].Name).
		Msg("capitals assigned at graph diameter")
}

// DistributePlanetsToFactions hands every planet to the faction whose
// capital is closer by shortest path. Equidistant planets stay contested.
func (s *State) DistributePlanetsToFactions() {
	g := s.fullGraph()
	type capitalDistance struct {
		faction  model.Faction
		distance map[int64]float64
	}
	var fronts []capitalDistance
	factions := make([]model.Faction, 0, len(s.capitals))
	for f := range s.capitals {
		factions = append(factions, f)
	}
	sort.Slice(factions, func(i, j int) bool { return factions[i] < factions[j] })
	for _, f := range factions {
		capital := s.capitals[f]
		shortest := path.DijkstraFrom(g.Node(int64(capital.ID)), g)
		dist := make(map[int64]float64, len(s.planetsByID))
		for id := range s.planetsByID {
			dist[int64(id)] = shortest.WeightTo(int64(id))
		}
		fronts = append(fronts, capitalDistance{faction: f, distance: dist})
	}
	if len(fronts) < 2 {
		return
	}

	for _, p := range s.sortedPlanets() {
		if _, isCapital := p.CapitalOf(); isCapital {
			continue
		}
		d0 := fronts[0].distance[int64(p.ID)]
		d1 := fronts[1].distance[int64(p.ID)]
		switch {
		case d0 == d1:
			p.SetControlledBy(nil)
			p.ResetScores()
		case d0 < d1:
			f := fronts[0].faction
			p.SetControlledBy(&f)
		default:
			f := fronts[1].faction
			p.SetControlledBy(&f)
		}
	}
}

// SeparateAbuttingFactions contests both sides of every border where
// territory of opposing factions touches.
func (s *State) SeparateAbuttingFactions() {
	abutting := make(map[int]*Planet)
	for _, p := range s.sortedPlanets() {
		f, ok := p.ControlledBy()
		if !ok {
			continue
		}
		for _, neighbour := range s.neighbours[p.Name] {
			nf, nok := neighbour.ControlledBy()
			if nok && nf != f {
				abutting[p.ID] = p
				abutting[neighbour.ID] = neighbour
			}
		}
	}
	for _, p := range abutting {
		p.SetControlledBy(nil)
		p.ResetScores()
	}
}

// EnsureRankedMaps reassigns any planet whose map is missing from the 1v1
// matchmaker pool of its mod, so every campaign game can be rated.
func (s *State) EnsureRankedMaps(queues []*matchmaker.Queue) {
	var chosenIDs []int
	for _, p := range s.sortedPlanets() {
		for _, q := range queues {
			if q.FeaturedMod != p.Mod || q.TeamSize != 1 {
				continue
			}
			pool := q.PoolForRating(mapPoolConsultRating)
			if pool == nil {
				break
			}
			inPool := false
			for _, m := range pool.Maps {
				if m.Name == p.Map {
					inPool = true
					break
				}
			}
			if !inPool {
				if replacement, ok := pool.ChooseMap(chosenIDs); ok {
					log.Info().
						Str("planet", p.Name).
						Str("old_map", p.Map).
						Str("new_map", replacement.Name).
						Msg("planet map not in ranked pool, reassigning")
					chosenIDs = append(chosenIDs, replacement.ID)
					p.Map = replacement.Name
				}
			}
			break
		}
	}
}
