package model

import "sync"

// Player is a signed-in user. Game membership is tracked by integer id so
// that a player record never keeps a dead game alive; the owning services
// resolve ids back to live objects.
type Player struct {
	mu sync.RWMutex

	ID    int
	Login string
	alias string

	state   PlayerState
	ratings map[RatingType]Rating
	games   map[RatingType]int

	// CurrentGameID is the id of the game the player is hosting or has
	// joined, or 0 when idle.
	CurrentGameID int

	friends map[int]struct{}
	foes    map[int]struct{}
	groups  map[string]struct{}
}

// NewPlayer creates a player with the given identity and no ratings.
func NewPlayer(id int, login string) *Player {
	return &Player{
		ID:      id,
		Login:   login,
		alias:   login,
		ratings: make(map[RatingType]Rating),
		games:   make(map[RatingType]int),
		friends: make(map[int]struct{}),
		foes:    make(map[int]struct{}),
		groups:  make(map[string]struct{}),
	}
}

// Alias returns the display name, which defaults to the login.
func (p *Player) Alias() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.alias
}

// SetAlias changes the display name. An empty alias resets to the login.
func (p *Player) SetAlias(alias string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if alias == "" {
		alias = p.Login
	}
	p.alias = alias
}

// State returns the player's current activity.
func (p *Player) State() PlayerState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// SetState records what the player is doing.
func (p *Player) SetState(s PlayerState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

// Rating returns the player's rating for the given leaderboard and whether
// one has been recorded.
func (p *Player) Rating(rt RatingType) (Rating, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.ratings[rt]
	return r, ok
}

// SetRating records a rating for a leaderboard.
func (p *Player) SetRating(rt RatingType, r Rating) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ratings[rt] = r
}

// GameCount returns how many rated games the player has on a leaderboard.
func (p *Player) GameCount(rt RatingType) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.games[rt]
}

// SetGameCount records the rated game count for a leaderboard.
func (p *Player) SetGameCount(rt RatingType, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.games[rt] = n
}

// SetFriends replaces the player's friend list.
func (p *Player) SetFriends(ids []int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.friends = make(map[int]struct{}, len(ids))
	for _, id := range ids {
		p.friends[id] = struct{}{}
	}
}

// SetFoes replaces the player's foe list.
func (p *Player) SetFoes(ids []int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.foes = make(map[int]struct{}, len(ids))
	for _, id := range ids {
		p.foes[id] = struct{}{}
	}
}

// SetUserGroups replaces the player's user-group memberships.
func (p *Player) SetUserGroups(names []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.groups = make(map[string]struct{}, len(names))
	for _, name := range names {
		p.groups[name] = struct{}{}
	}
}

// InGroup reports whether the player belongs to the named user group.
func (p *Player) InGroup(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.groups[name]
	return ok
}

// IsFriend reports whether the given player id is on the friend list.
func (p *Player) IsFriend(id int) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.friends[id]
	return ok
}

// IsFoe reports whether the given player id is on the foe list.
func (p *Player) IsFoe(id int) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.foes[id]
	return ok
}
