package game

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ta-forever/server/internal/matchmaker"
	"github.com/ta-forever/server/internal/model"
	"github.com/ta-forever/server/internal/repository"
)

type dirtyRecord struct {
	game        *Game
	onlyToPeers bool
	pingsOnly   bool
}

type mockRegistry struct {
	mu        sync.Mutex
	dirty     []dirtyRecord
	removed   []*Game
	published []*model.EndedGameInfo
}

func (m *mockRegistry) MarkDirty(g *Game, onlyToPeers, pingsOnly bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirty = append(m.dirty, dirtyRecord{g, onlyToPeers, pingsOnly})
}

func (m *mockRegistry) RemoveGame(g *Game) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, g)
}

func (m *mockRegistry) PublishResults(_ context.Context, info *model.EndedGameInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, info)
}

func (m *mockRegistry) publishedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.published)
}

type mockQueues struct {
	queues []*matchmaker.Queue
	ranked map[int]struct{}
}

func (m *mockQueues) Queues() []*matchmaker.Queue    { return m.queues }
func (m *mockQueues) RankedMapIDs() map[int]struct{} { return m.ranked }

type mockGameStatsRepo struct {
	mu          sync.Mutex
	created     []*repository.GameStats
	playerStats []repository.GamePlayerStats
	validities  []string
	endTimes    []time.Time
	scores      []repository.PlayerScore
	queueLinks  []int
}

func (m *mockGameStatsRepo) MaxGameID(_ context.Context) (int, error) { return 41, nil }

func (m *mockGameStatsRepo) Create(_ context.Context, g *repository.GameStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, g)
	return nil
}

func (m *mockGameStatsRepo) CreatePlayerStats(_ context.Context, rows []repository.GamePlayerStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playerStats = append(m.playerStats, rows...)
	return nil
}

func (m *mockGameStatsRepo) UpdateValidity(_ context.Context, _ int, validity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validities = append(m.validities, validity)
	return nil
}

func (m *mockGameStatsRepo) UpdateEndTime(_ context.Context, _ int, endTime time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endTimes = append(m.endTimes, endTime)
	return nil
}

func (m *mockGameStatsRepo) UpdateScores(_ context.Context, _ int, scores []repository.PlayerScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores = append(m.scores, scores...)
	return nil
}

func (m *mockGameStatsRepo) LinkMatchmakerQueue(_ context.Context, _, queueID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueLinks = append(m.queueLinks, queueID)
	return nil
}

type mockMapRepo struct {
	versions map[string]*repository.MapVersion
}

func (m *mockMapRepo) VersionByName(_ context.Context, name string) (*repository.MapVersion, error) {
	v, ok := m.versions[name]
	if !ok {
		return nil, fmt.Errorf("map %q not found", name)
	}
	return v, nil
}

func (m *mockMapRepo) RankedMapIDs(_ context.Context) ([]int, error) {
	var ids []int
	for _, v := range m.versions {
		if v.Ranked {
			ids = append(ids, v.ID)
		}
	}
	return ids, nil
}

type mockModRepo struct {
	names  map[string]string
	ranked map[string]struct{}
	played []string
}

func (m *mockModRepo) NamesByUID(_ context.Context, uids []string) (map[string]string, error) {
	out := make(map[string]string)
	for _, uid := range uids {
		if name, ok := m.names[uid]; ok {
			out[uid] = name
		}
	}
	return out, nil
}

func (m *mockModRepo) IncrementPlayCounts(_ context.Context, uids []string) error {
	m.played = append(m.played, uids...)
	return nil
}

func (m *mockModRepo) RankedUIDs(_ context.Context) (map[string]struct{}, error) {
	return m.ranked, nil
}

type mockCoopRepo struct {
	missions map[string]int
	results  []*repository.CoopResult
}

func (m *mockCoopRepo) MissionIDByMap(_ context.Context, mapName string) (int, error) {
	id, ok := m.missions[mapName]
	if !ok {
		return 0, fmt.Errorf("no mission for map %q", mapName)
	}
	return id, nil
}

func (m *mockCoopRepo) RecordResult(_ context.Context, r *repository.CoopResult) error {
	m.results = append(m.results, r)
	return nil
}

type mockTeamkillRepo struct {
	recorded []*repository.Teamkill
}

func (m *mockTeamkillRepo) Record(_ context.Context, t *repository.Teamkill) error {
	m.recorded = append(m.recorded, t)
	return nil
}

type sentMessage struct {
	command string
	alias   string
	uid     int
	offer   bool
}

type mockMessenger struct {
	mu      sync.Mutex
	sent    []sentMessage
	notices []string
	ice     []any
}

func (m *mockMessenger) record(msg sentMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mockMessenger) SendHostGame(mapName string) error {
	return m.record(sentMessage{command: "HostGame", alias: mapName})
}

func (m *mockMessenger) SendJoinGame(alias string, uid int) error {
	return m.record(sentMessage{command: "JoinGame", alias: alias, uid: uid})
}

func (m *mockMessenger) SendConnectToPeer(alias string, uid int, offer bool) error {
	return m.record(sentMessage{command: "ConnectToPeer", alias: alias, uid: uid, offer: offer})
}

func (m *mockMessenger) SendDisconnectFromPeer(uid int) error {
	return m.record(sentMessage{command: "DisconnectFromPeer", uid: uid})
}

func (m *mockMessenger) SendIceMsg(senderID int, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ice = append(m.ice, payload)
	return nil
}

func (m *mockMessenger) SendNotice(style, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices = append(m.notices, style+": "+text)
	return nil
}

func (m *mockMessenger) commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	for i, s := range m.sent {
		out[i] = s.command
	}
	return out
}

type testStores struct {
	games     *mockGameStatsRepo
	maps      *mockMapRepo
	mods      *mockModRepo
	coop      *mockCoopRepo
	teamkills *mockTeamkillRepo
}

func newTestStores() *testStores {
	return &testStores{
		games: &mockGameStatsRepo{},
		maps: &mockMapRepo{versions: map[string]*repository.MapVersion{
			"SHERWOOD": {ID: 7, Name: "SHERWOOD", FileName: "maps/sherwood.zip", Ranked: true},
		}},
		mods:      &mockModRepo{names: map[string]string{}, ranked: map[string]struct{}{}},
		coop:      &mockCoopRepo{missions: map[string]int{}},
		teamkills: &mockTeamkillRepo{},
	}
}

func (s *testStores) stores() Stores {
	return Stores{
		Games:     s.games,
		Maps:      s.maps,
		Mods:      s.mods,
		Coop:      s.coop,
		Teamkills: s.teamkills,
	}
}

func newTestPlayer(id int, login string) *model.Player {
	p := model.NewPlayer(id, login)
	p.SetRating(model.RatingGlobal, model.Rating{Mean: 1500, Sigma: 500})
	return p
}
