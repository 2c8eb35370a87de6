package matchmaker

import (
	"github.com/ta-forever/server/internal/model"
)

// RatedPool binds a map pool to the rating bracket it serves. Open endpoints
// mean the bracket extends without bound in that direction.
type RatedPool struct {
	Pool  *MapPool
	Range model.InclusiveRange
}

// Queue describes one matchmaker ladder. Matching itself happens elsewhere;
// games only consult queues for rating-type assignment and map pool gating.
type Queue struct {
	ID          int
	Name        string
	FeaturedMod string
	RatingType  model.RatingType
	TeamSize    int
	Pools       []RatedPool
}

// PoolForRating returns the map pool whose bracket contains the given
// displayed rating, or nil when no bracket matches.
func (q *Queue) PoolForRating(rating float64) *MapPool {
	for _, rp := range q.Pools {
		if rp.Range.Contains(rating) {
			return rp.Pool
		}
	}
	return nil
}

// MapIDsForRating returns the map ids of the pool serving the given rating.
func (q *Queue) MapIDsForRating(rating float64) map[int]struct{} {
	pool := q.PoolForRating(rating)
	if pool == nil {
		return nil
	}
	ids := make(map[int]struct{}, len(pool.Maps))
	for id := range pool.Maps {
		ids[id] = struct{}{}
	}
	return ids
}
