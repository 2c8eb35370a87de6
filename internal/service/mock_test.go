package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/ta-forever/server/internal/model"
	"github.com/ta-forever/server/internal/repository"
)

func ratingKey(playerID int, rt model.RatingType) string {
	return fmt.Sprintf("%d:%s", playerID, rt)
}

type mockRatingRepo struct {
	mu      sync.Mutex
	ratings map[string]repository.LeaderboardRating
	inited  []int
	// statsIDs overrides the id returned by UpdateGamePlayerRating; a
	// missing entry yields 100+playerID.
	statsIDs map[int]int64
	updates  []repository.RatingJournal
	journal  []repository.RatingJournal
	upserts  []repository.LeaderboardRating
}

func newMockRatingRepo() *mockRatingRepo {
	return &mockRatingRepo{
		ratings:  make(map[string]repository.LeaderboardRating),
		statsIDs: make(map[int]int64),
	}
}

func (m *mockRatingRepo) Rating(_ context.Context, playerID int, rt model.RatingType) (*repository.LeaderboardRating, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.ratings[ratingKey(playerID, rt)]
	if !ok {
		return nil, nil
	}
	out := r
	return &out, nil
}

func (m *mockRatingRepo) InitRating(_ context.Context, playerID int, rt model.RatingType, mean, deviation float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inited = append(m.inited, playerID)
	m.ratings[ratingKey(playerID, rt)] = repository.LeaderboardRating{
		PlayerID:   playerID,
		RatingType: rt,
		Mean:       mean,
		Deviation:  deviation,
	}
	return nil
}

func (m *mockRatingRepo) UpdateGamePlayerRating(_ context.Context, gameID, playerID int, before, after model.Rating) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, repository.RatingJournal{
		PlayerID:        playerID,
		GameID:          gameID,
		MeanBefore:      before.Mean,
		DeviationBefore: before.Sigma,
		MeanAfter:       after.Mean,
		DeviationAfter:  after.Sigma,
	})
	if id, ok := m.statsIDs[playerID]; ok {
		return id, nil
	}
	return int64(100 + playerID), nil
}

func (m *mockRatingRepo) InsertJournal(_ context.Context, j *repository.RatingJournal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal = append(m.journal, *j)
	return nil
}

func (m *mockRatingRepo) UpsertLeaderboardRating(_ context.Context, r *repository.LeaderboardRating) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts = append(m.upserts, *r)
	m.ratings[ratingKey(r.PlayerID, r.RatingType)] = *r
	return nil
}

func (m *mockRatingRepo) upsertFor(playerID int) (repository.LeaderboardRating, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.upserts) - 1; i >= 0; i-- {
		if m.upserts[i].PlayerID == playerID {
			return m.upserts[i], true
		}
	}
	return repository.LeaderboardRating{}, false
}

type mockIndex struct {
	mu     sync.Mutex
	scores map[model.RatingType]map[int]float64
}

func newMockIndex() *mockIndex {
	return &mockIndex{scores: make(map[model.RatingType]map[int]float64)}
}

func (m *mockIndex) SetScore(_ context.Context, rt model.RatingType, playerID int, displayed float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scores[rt] == nil {
		m.scores[rt] = make(map[int]float64)
	}
	m.scores[rt][playerID] = displayed
	return nil
}

func (m *mockIndex) Rank(_ context.Context, rt model.RatingType, playerID int) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	board := m.scores[rt]
	own, ok := board[playerID]
	if !ok {
		return 0, 0, repository.ErrNotRanked
	}
	rank := 0
	for pid, score := range board {
		if pid != playerID && score > own {
			rank++
		}
	}
	return rank, len(board), nil
}

func (m *mockIndex) Remove(_ context.Context, rt model.RatingType, playerID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.scores[rt], playerID)
	return nil
}

func (m *mockIndex) score(rt model.RatingType, playerID int) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scores[rt][playerID]
	return s, ok
}

type mockBus struct {
	mu        sync.Mutex
	published []busMessage
}

type busMessage struct {
	routingKey string
	payload    any
}

func (m *mockBus) Publish(routingKey string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, busMessage{routingKey: routingKey, payload: payload})
	return nil
}

type mockPlayerRepo struct {
	profiles map[int]repository.PlayerProfile
	ratings  map[int][]repository.PlayerRating
	groups   map[int][]string
	exempt   []int
}

func newMockPlayerRepo() *mockPlayerRepo {
	return &mockPlayerRepo{
		profiles: make(map[int]repository.PlayerProfile),
		ratings:  make(map[int][]repository.PlayerRating),
		groups:   make(map[int][]string),
	}
}

func (m *mockPlayerRepo) Profile(_ context.Context, id int) (*repository.PlayerProfile, error) {
	p, ok := m.profiles[id]
	if !ok {
		return nil, fmt.Errorf("no such player %d", id)
	}
	return &p, nil
}

func (m *mockPlayerRepo) Ratings(_ context.Context, id int) ([]repository.PlayerRating, error) {
	return m.ratings[id], nil
}

func (m *mockPlayerRepo) UserGroups(_ context.Context, id int) ([]string, error) {
	return m.groups[id], nil
}

func (m *mockPlayerRepo) UniqueIDExemptIDs(_ context.Context) ([]int, error) {
	return m.exempt, nil
}

// seededRow is a pre-existing global leaderboard row for streak and score
// history tests.
func seededRow(playerID int, mean, deviation float64, streak, bestStreak int, recentScores string) repository.LeaderboardRating {
	return repository.LeaderboardRating{
		PlayerID:     playerID,
		RatingType:   model.RatingGlobal,
		Mean:         mean,
		Deviation:    deviation,
		TotalGames:   5,
		Streak:       streak,
		BestStreak:   bestStreak,
		RecentScores: recentScores,
	}
}

// ended1v1 builds the summary of a finished global 1v1 between players a
// and b with the given team outcomes.
func ended1v1(gameID, a, b int, outA, outB model.GameOutcome) *model.EndedGameInfo {
	return &model.EndedGameInfo{
		GameID:       gameID,
		RatingType:   model.RatingGlobal,
		MapName:      "SHERWOOD",
		FeaturedMod:  "tacc",
		Validity:     model.ValidityValid,
		TeamOutcomes: []model.GameOutcome{outA, outB},
		PlayerSummaries: []model.EndedGamePlayerSummary{
			{PlayerID: a, TeamID: 2, Outcome: outA},
			{PlayerID: b, TeamID: 3, Outcome: outB},
		},
	}
}
