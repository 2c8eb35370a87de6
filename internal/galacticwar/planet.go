package galacticwar

import (
	"math/rand"
	"sort"
	"strconv"

	"github.com/ta-forever/server/internal/model"
)

const (
	defaultPlanetMap  = "SHERWOOD"
	defaultPlanetMod  = "tacc"
	defaultPlanetSize = 10
)

// planetNames seeds scenarios whose authors left labels blank.
var planetNames = []string{
	"Barathrum", "Thalassean", "Gelidus", "Rougpelt", "Dump", "Lusch",
	"Empyrrean", "Tergiverse", "Aqueous", "Hydross", "Temblor", "Vermin",
	"Core Prime", "Rigel", "Moros", "Dune", "Krogoth", "Zenne",
}

// belligerent keys per-player score attribution on a planet.
type belligerent struct {
	PlayerID int
	Faction  model.Faction
}

// Planet is one node of the campaign graph. Faction scores track how close
// each side is to capturing it; a nil controlling faction means contested.
type Planet struct {
	ID   int
	Name string
	Map  string
	Mod  string
	Size float64

	scores       map[model.Faction]float64
	capitalOf    *model.Faction
	controlledBy *model.Faction
	belligerents map[belligerent]float64
}

// newPlanet builds a planet from its scenario node, filling in defaults for
// anything the scenario author left blank. usedNames prevents generated
// names from colliding.
func newPlanet(doc NodeDoc, usedNames map[string]struct{}) *Planet {
	p := &Planet{
		ID:           doc.ID,
		Name:         doc.Label,
		Map:          doc.Map,
		Mod:          doc.Mod,
		Size:         doc.Size,
		scores:       make(map[model.Faction]float64),
		belligerents: make(map[belligerent]float64),
	}
	if p.Name == "" {
		p.Name = generatePlanetName(usedNames)
	}
	usedNames[p.Name] = struct{}{}
	if p.Map == "" {
		p.Map = defaultPlanetMap
	}
	if p.Mod == "" {
		p.Mod = defaultPlanetMod
	}
	if p.Size <= 0 {
		p.Size = defaultPlanetSize
	}

	for name, score := range doc.Score {
		if f, err := model.ParseFaction(name); err == nil {
			p.scores[f] = score
		}
	}
	if len(p.scores) == 0 {
		p.scores[model.FactionArm] = p.Size
		p.scores[model.FactionCore] = p.Size
	}
	if f, err := model.ParseFaction(doc.CapitalOf); err == nil && doc.CapitalOf != "" {
		p.capitalOf = &f
	}
	if f, err := model.ParseFaction(doc.ControlledBy); err == nil && doc.ControlledBy != "" {
		p.controlledBy = &f
	}
	for _, b := range doc.Belligerents {
		if f, err := model.ParseFaction(b.Faction); err == nil {
			p.belligerents[belligerent{PlayerID: b.PlayerID, Faction: f}] = b.Score
		}
	}
	return p
}

func generatePlanetName(used map[string]struct{}) string {
	for _, i := range rand.Perm(len(planetNames)) {
		if _, ok := used[planetNames[i]]; !ok {
			return planetNames[i]
		}
	}
	n := len(used) + 1
	for {
		name := "Planet " + strconv.Itoa(n)
		if _, ok := used[name]; !ok {
			return name
		}
		n++
	}
}

// Doc renders the planet back into its scenario-file form.
func (p *Planet) Doc() NodeDoc {
	doc := NodeDoc{
		ID:    p.ID,
		Label: p.Name,
		Map:   p.Map,
		Mod:   p.Mod,
		Size:  p.Size,
		Score: make(map[string]float64, len(p.scores)),
	}
	for f, score := range p.scores {
		doc.Score[f.String()] = score
	}
	if p.capitalOf != nil {
		doc.CapitalOf = p.capitalOf.String()
	}
	if p.controlledBy != nil {
		doc.ControlledBy = p.controlledBy.String()
	}
	keys := make([]belligerent, 0, len(p.belligerents))
	for b := range p.belligerents {
		keys = append(keys, b)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].PlayerID != keys[j].PlayerID {
			return keys[i].PlayerID < keys[j].PlayerID
		}
		return keys[i].Faction < keys[j].Faction
	})
	for _, b := range keys {
		doc.Belligerents = append(doc.Belligerents, BelligerentDoc{
			PlayerID: b.PlayerID,
			Faction:  b.Faction.String(),
			Score:    p.belligerents[b],
		})
	}
	return doc
}

// CapitalOf returns the faction this planet is a capital of, if any.
func (p *Planet) CapitalOf() (model.Faction, bool) {
	if p.capitalOf == nil {
		return 0, false
	}
	return *p.capitalOf, true
}

func (p *Planet) setCapitalOf(f *model.Faction) {
	p.capitalOf = f
}

// ControlledBy returns the controlling faction; ok is false when the planet
// is contested.
func (p *Planet) ControlledBy() (model.Faction, bool) {
	if p.controlledBy == nil {
		return 0, false
	}
	return *p.controlledBy, true
}

// SetControlledBy hands the planet to a faction, or marks it contested when
// f is nil.
func (p *Planet) SetControlledBy(f *model.Faction) {
	if f == nil {
		p.controlledBy = nil
		return
	}
	faction := *f
	p.controlledBy = &faction
}

// Score returns a faction's standing on the planet, defaulting to the
// planet size for factions with no recorded score.
func (p *Planet) Score(f model.Faction) float64 {
	if s, ok := p.scores[f]; ok {
		return s
	}
	return p.Size
}

// Scores returns a copy of the per-faction score table.
func (p *Planet) Scores() map[model.Faction]float64 {
	out := make(map[model.Faction]float64, len(p.scores))
	for f, s := range p.scores {
		out[f] = s
	}
	return out
}

// SetScore records a faction's standing on the planet.
func (p *Planet) SetScore(f model.Faction, score float64) {
	p.scores[f] = score
}

// ResetScores returns every recorded faction score to the planet size.
func (p *Planet) ResetScores() {
	for f := range p.scores {
		p.scores[f] = p.Size
	}
}

// DominantFaction returns the faction whose score exceeds the required
// dominance ratio over the weakest score, if any.
func (p *Planet) DominantFaction(requiredRatio float64) (model.Faction, bool) {
	if len(p.scores) == 0 {
		return 0, false
	}
	var minScore, maxScore float64
	var maxFaction model.Faction
	first := true
	factions := make([]model.Faction, 0, len(p.scores))
	for f := range p.scores {
		factions = append(factions, f)
	}
	sort.Slice(factions, func(i, j int) bool { return factions[i] < factions[j] })
	for _, f := range factions {
		s := p.scores[f]
		if first {
			minScore, maxScore, maxFaction = s, s, f
			first = false
			continue
		}
		if s < minScore {
			minScore = s
		}
		if s > maxScore {
			maxScore = s
			maxFaction = f
		}
	}
	if maxScore > requiredRatio*minScore {
		return maxFaction, true
	}
	return 0, false
}

// AdjustBelligerent accumulates a player's score contribution on the planet.
func (p *Planet) AdjustBelligerent(playerID int, f model.Faction, delta float64) {
	p.belligerents[belligerent{PlayerID: playerID, Faction: f}] += delta
}

// BelligerentScore returns a player's accumulated contribution.
func (p *Planet) BelligerentScore(playerID int, f model.Faction) float64 {
	return p.belligerents[belligerent{PlayerID: playerID, Faction: f}]
}
