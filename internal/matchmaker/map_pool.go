package matchmaker

import (
	"math/rand"

	"github.com/rs/zerolog/log"
)

// Map is one playable entry of a map pool.
type Map struct {
	ID   int
	Name string
	Path string
}

// MapPool is a named set of maps with a selection policy that favours the
// maps a group of players has seen least.
type MapPool struct {
	ID   int
	Name string
	Maps map[int]Map
}

func NewMapPool(id int, name string, maps []Map) *MapPool {
	byID := make(map[int]Map, len(maps))
	for _, m := range maps {
		byID[m.ID] = m
	}
	return &MapPool{ID: id, Name: name, Maps: byID}
}

// Contains reports whether the pool holds the given map id.
func (p *MapPool) Contains(mapID int) bool {
	_, ok := p.Maps[mapID]
	return ok
}

// ChooseMap picks a map from the pool, preferring the ones that occur least
// often in playedMapIDs. Ties are broken at random.
func (p *MapPool) ChooseMap(playedMapIDs []int) (Map, bool) {
	if len(p.Maps) == 0 {
		log.Warn().Str("pool", p.Name).Msg("choosing from empty map pool")
		return Map{}, false
	}
	played := make(map[int]int)
	for _, id := range playedMapIDs {
		played[id]++
	}
	least := -1
	var candidates []Map
	for id, m := range p.Maps {
		n := played[id]
		switch {
		case least == -1 || n < least:
			least = n
			candidates = candidates[:0]
			candidates = append(candidates, m)
		case n == least:
			candidates = append(candidates, m)
		}
	}
	return candidates[rand.Intn(len(candidates))], true
}
