package game

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ta-forever/server/internal/matchmaker"
	"github.com/ta-forever/server/internal/model"
	"github.com/ta-forever/server/internal/repository"
)

// FFATeam is the team id game clients assign to free-for-all players.
// Team -1 marks observers.
const FFATeam = 1

const desyncAbortThreshold = 20

// Registry is the game-service surface a game calls back into.
type Registry interface {
	MarkDirty(g *Game, onlyToPeers, pingsOnly bool)
	RemoveGame(g *Game)
	PublishResults(ctx context.Context, info *model.EndedGameInfo)
}

// QueueProvider exposes the matchmaker queues and the server-wide set of
// ranked map ids for rating-type assignment.
type QueueProvider interface {
	Queues() []*matchmaker.Queue
	RankedMapIDs() map[int]struct{}
}

// Stores groups the persistence dependencies of a game.
type Stores struct {
	Games     repository.GameStatsRepository
	Maps      repository.MapRepository
	Mods      repository.ModRepository
	Coop      repository.CoopRepository
	Teamkills repository.TeamkillRepository
}

// Options configures a new game.
type Options struct {
	ID                    int
	Host                  *model.Player
	Name                  string
	MapName               string
	FeaturedMod           string
	Kind                  Kind
	Visibility            model.VisibilityState
	MaxPlayers            int
	DisplayedRatingRange  model.InclusiveRange
	EnforceRatingRange    bool
	RatingTypePreferred   model.RatingType
	MatchmakerQueueID     int
	MapPoolMapIDs         map[int]struct{}
	GalacticWarPlanetName string
	SetupTimeout          time.Duration
}

// Game is one hosted game session. Mutations arrive from the host's and
// joiners' connection goroutines; all state is guarded by mu.
type Game struct {
	ID   int
	kind Kind

	registry Registry
	queues   QueueProvider
	stores   Stores
	log      zerolog.Logger

	mu sync.RWMutex

	state    model.GameState
	validity model.ValidityState
	victory  model.Victory

	host        *model.Player
	name        string
	mapName     string
	mapID       int
	mapFilePath string
	mapRanked   bool
	featuredMod string

	visibility         model.VisibilityState
	maxPlayers         int
	replayDelaySeconds int

	ratingType            model.RatingType
	ratingTypePreferred   model.RatingType
	displayedRatingRange  model.InclusiveRange
	enforceRatingRange    bool
	matchmakerQueueID     int
	mapPoolMapIDs         map[int]struct{}
	galacticWarPlanetName string

	gameOptions   map[string]any
	playerOptions map[int]map[string]any
	ais           map[string]map[string]any
	mods          map[string]string
	playerPings   map[int]map[int]float64

	conns map[int]*Connection

	results *ResultReports
	desyncs int

	createdAt  time.Time
	launchedAt time.Time

	livePlayers []*model.Player

	hostedStaging    chan struct{}
	hostedBattleroom chan struct{}
	launched         chan struct{}
	stagingOnce      sync.Once
	battleroomOnce   sync.Once
	launchedOnce     sync.Once

	setupTimeout   time.Duration
	enforceRating  bool
	ended          bool
	simEnded       bool
	published      bool
}

// New creates a game in INITIALIZING state and arms the setup timeout.
func New(opts Options, registry Registry, queues QueueProvider, stores Stores) *Game {
	if opts.MaxPlayers == 0 {
		opts.MaxPlayers = 10
	}
	if opts.SetupTimeout == 0 {
		opts.SetupTimeout = 60 * time.Second
	}
	g := &Game{
		ID:       opts.ID,
		kind:     opts.Kind,
		registry: registry,
		queues:   queues,
		stores:   stores,
		log:      log.With().Int("game_id", opts.ID).Str("kind", opts.Kind.Name).Logger(),

		state:    model.GameInitializing,
		validity: model.ValidityValid,
		victory:  model.VictoryDemoralization,

		host:        opts.Host,
		name:        opts.Name,
		mapName:     opts.MapName,
		featuredMod: opts.FeaturedMod,

		visibility: opts.Visibility,
		maxPlayers: opts.MaxPlayers,

		ratingType:            model.RatingGlobal,
		ratingTypePreferred:   opts.RatingTypePreferred,
		displayedRatingRange:  opts.DisplayedRatingRange,
		enforceRatingRange:    opts.EnforceRatingRange,
		matchmakerQueueID:     opts.MatchmakerQueueID,
		mapPoolMapIDs:         opts.MapPoolMapIDs,
		galacticWarPlanetName: opts.GalacticWarPlanetName,

		gameOptions:   make(map[string]any),
		playerOptions: make(map[int]map[string]any),
		ais:           make(map[string]map[string]any),
		mods:          make(map[string]string),
		playerPings:   make(map[int]map[int]float64),

		conns:   make(map[int]*Connection),
		results: NewResultReports(opts.ID),

		createdAt:        time.Now(),
		hostedStaging:    make(chan struct{}),
		hostedBattleroom: make(chan struct{}),
		launched:         make(chan struct{}),
		setupTimeout:     opts.SetupTimeout,
	}
	if opts.RatingTypePreferred != "" {
		g.ratingType = opts.RatingTypePreferred
	}
	if opts.Visibility == "" {
		g.visibility = model.VisibilityPublic
	}
	go g.watchSetupTimeout()
	return g
}

// watchSetupTimeout ends the game if the host never reaches the hosted
// phase within the setup timeout.
func (g *Game) watchSetupTimeout() {
	hosted := g.hostedStaging
	if g.kind.InitMode == AutoLobby {
		hosted = g.hostedBattleroom
	}
	select {
	case <-hosted:
	case <-time.After(g.setupTimeout):
		g.log.Info().Dur("timeout", g.setupTimeout).Msg("game setup timed out")
		g.OnGameEnd(context.Background())
	}
}

// Accessors.

func (g *Game) State() model.GameState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

func (g *Game) Validity() model.ValidityState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.validity
}

func (g *Game) Host() *model.Player { return g.host }

func (g *Game) Name() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.name
}

func (g *Game) MapName() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.mapName
}

func (g *Game) MapFilePath() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.mapFilePath
}

func (g *Game) FeaturedMod() string { return g.featuredMod }

func (g *Game) Kind() Kind { return g.kind }

func (g *Game) RatingType() model.RatingType {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.ratingType
}

func (g *Game) GalacticWarPlanetName() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.galacticWarPlanetName
}

// HostedStaging is closed when the host has reported the staging lobby.
func (g *Game) HostedStaging() <-chan struct{} { return g.hostedStaging }

// HostedBattleroom is closed when the host has reached the battleroom.
func (g *Game) HostedBattleroom() <-chan struct{} { return g.hostedBattleroom }

// Launched is closed when the game has gone live.
func (g *Game) Launched() <-chan struct{} { return g.launched }

func (g *Game) setHostedStaging() {
	g.stagingOnce.Do(func() { close(g.hostedStaging) })
}

func (g *Game) setHostedBattleroom() {
	g.battleroomOnce.Do(func() { close(g.hostedBattleroom) })
}

func (g *Game) setLaunched() {
	g.launchedOnce.Do(func() { close(g.launched) })
}

// MarkDirty schedules a game_info broadcast on the next tick.
func (g *Game) MarkDirty(onlyToPeers, pingsOnly bool) {
	g.registry.MarkDirty(g, onlyToPeers, pingsOnly)
}

// Players returns the game's current roster. While the game is being set
// up this is the connected players that hold a player_options entry; from
// LIVE on it is the roster frozen at launch.
func (g *Game) Players() []*model.Player {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.playersLocked()
}

func (g *Game) playersLocked() []*model.Player {
	if g.state == model.GameLive || g.state == model.GameEnded {
		return g.livePlayers
	}
	players := make([]*model.Player, 0, len(g.conns))
	ids := make([]int, 0, len(g.conns))
	for id := range g.conns {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if _, ok := g.playerOptions[id]; ok {
			players = append(players, g.conns[id].Player)
		}
	}
	return players
}

// HasPlayer reports whether the given player is on the current roster.
func (g *Game) HasPlayer(playerID int) bool {
	for _, p := range g.Players() {
		if p.ID == playerID {
			return true
		}
	}
	return false
}

// AddConnection registers a game connection. The host must be connected
// before anyone may join, and the roster is capped at max_players.
func (g *Game) AddConnection(c *Connection) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == model.GameEnded {
		return ErrGameEnded
	}
	if c.Player.ID != g.host.ID {
		if _, ok := g.conns[g.host.ID]; !ok {
			return ErrHostNotConnected
		}
		if len(g.conns) >= g.maxPlayers {
			return ErrGameFull
		}
	}
	g.conns[c.Player.ID] = c
	return nil
}

// RemoveConnection drops a game connection and its seat. A departure can
// finish the game: a straggler leaving completes the sim-end scan of the
// remaining connections, and an emptied game, or a host walking out of
// the lobby, is ended outright.
func (g *Game) RemoveConnection(ctx context.Context, c *Connection) {
	g.mu.Lock()
	if g.conns[c.Player.ID] != c {
		g.mu.Unlock()
		return
	}
	delete(g.conns, c.Player.ID)
	if g.state == model.GameStaging || g.state == model.GameBattleroom {
		delete(g.playerOptions, c.Player.ID)
	}
	empty := len(g.conns) == 0
	state := g.state
	hostLeft := c.Player.ID == g.host.ID
	g.mu.Unlock()

	g.MarkDirty(false, false)
	if empty && state == model.GameEnded {
		g.registry.RemoveGame(g)
		return
	}
	g.CheckSimEnd(ctx)
	hostLeftLobby := hostLeft &&
		(state == model.GameStaging || state == model.GameBattleroom)
	if empty || hostLeftLobby {
		g.OnGameEnd(ctx)
	}
}

// Connection returns the game connection of a player.
func (g *Game) Connection(playerID int) (*Connection, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.conns[playerID]
	return c, ok
}

// Connections returns all game connections.
func (g *Game) Connections() []*Connection {
	g.mu.RLock()
	defer g.mu.RUnlock()
	conns := make([]*Connection, 0, len(g.conns))
	for _, c := range g.conns {
		conns = append(conns, c)
	}
	return conns
}

// Option handling.

// SetPlayerOption stores one slot option for a player.
func (g *Game) SetPlayerOption(playerID int, key string, value any) {
	g.mu.Lock()
	opts, ok := g.playerOptions[playerID]
	if !ok {
		opts = make(map[string]any)
		g.playerOptions[playerID] = opts
	}
	opts[key] = value
	g.mu.Unlock()
	g.MarkDirty(false, false)
}

// PlayerOption reads one slot option of a player.
func (g *Game) PlayerOption(playerID int, key string) (any, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	opts, ok := g.playerOptions[playerID]
	if !ok {
		return nil, false
	}
	v, ok := opts[key]
	return v, ok
}

// PlayerOptionInt reads one slot option of a player as an integer.
func (g *Game) PlayerOptionInt(playerID int, key string) (int, bool) {
	v, ok := g.PlayerOption(playerID, key)
	if !ok {
		return 0, false
	}
	return optInt(v)
}

// SetAIOption stores one slot option for an AI player.
func (g *Game) SetAIOption(name, key string, value any) {
	g.mu.Lock()
	opts, ok := g.ais[name]
	if !ok {
		opts = make(map[string]any)
		g.ais[name] = opts
	}
	opts[key] = value
	g.mu.Unlock()
	g.MarkDirty(false, false)
}

// ClearSlot vacates the given start slot for players and AIs alike.
func (g *Game) ClearSlot(slot int) {
	g.mu.Lock()
	for pid, opts := range g.playerOptions {
		if s, ok := optInt(opts["StartSpot"]); ok && s == slot {
			delete(g.playerOptions, pid)
		}
	}
	for name, opts := range g.ais {
		if s, ok := optInt(opts["StartSpot"]); ok && s == slot {
			delete(g.ais, name)
		}
	}
	g.mu.Unlock()
	g.MarkDirty(false, false)
}

// SetGameOption applies one lobby option from the host. A handful of keys
// have dedicated side effects; the rest are stored as-is.
func (g *Game) SetGameOption(ctx context.Context, key string, value any) {
	switch key {
	case "Victory":
		s, _ := value.(string)
		v, ok := model.ParseVictory(strings.ToLower(s))
		if !ok {
			g.log.Warn().Str("value", s).Msg("unknown victory condition")
			return
		}
		g.mu.Lock()
		g.victory = v
		g.mu.Unlock()
	case "Slots":
		if n, ok := optInt(value); ok && n > 0 {
			g.mu.Lock()
			g.maxPlayers = n
			g.mu.Unlock()
		}
	case "MapDetails":
		s, _ := value.(string)
		g.setMapDetails(ctx, s)
	case "RatingType":
		s, _ := value.(string)
		g.mu.Lock()
		g.ratingTypePreferred = s
		g.ratingType = s
		g.mu.Unlock()
	case "ReplayDelaySeconds":
		if n, ok := optInt(value); ok && n >= 0 {
			g.mu.Lock()
			g.replayDelaySeconds = n
			g.mu.Unlock()
		}
	case "Title":
		s, _ := value.(string)
		if !isASCII(s) {
			g.log.Warn().Msg("ignoring non-ascii game title")
			return
		}
		g.mu.Lock()
		g.name = s
		g.mu.Unlock()
	default:
		g.mu.Lock()
		g.gameOptions[key] = value
		g.mu.Unlock()
	}
	g.MarkDirty(false, false)
}

// setMapDetails consumes the unit-separated MapDetails option and resolves
// the named map against the map vault.
func (g *Game) setMapDetails(ctx context.Context, details string) {
	parts := strings.Split(details, "\x1f")
	name := strings.TrimSpace(parts[0])
	if name == "" {
		return
	}
	g.mu.Lock()
	g.mapName = name
	g.mu.Unlock()

	version, err := g.stores.Maps.VersionByName(ctx, name)
	if err != nil {
		g.log.Warn().Err(err).Str("map", name).Msg("map not found in vault")
		g.mu.Lock()
		g.mapID = 0
		g.mapFilePath = ""
		g.mapRanked = false
		g.mu.Unlock()
		return
	}
	g.mu.Lock()
	g.mapID = version.ID
	g.mapFilePath = version.FileName
	g.mapRanked = version.Ranked
	g.mu.Unlock()
}

// SetMods replaces the active sim-mod set.
func (g *Game) SetMods(mods map[string]string) {
	g.mu.Lock()
	g.mods = mods
	g.mu.Unlock()
	g.MarkDirty(false, false)
}

// Mods returns the active sim-mod uid to name mapping.
func (g *Game) Mods() map[string]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	mods := make(map[string]string, len(g.mods))
	for k, v := range g.mods {
		mods[k] = v
	}
	return mods
}

// SetPlayerPings stores a player's latest peer latency samples, pruned to
// players still in the game.
func (g *Game) SetPlayerPings(playerID int, pings map[int]float64) {
	current := make(map[int]struct{})
	for _, p := range g.Players() {
		current[p.ID] = struct{}{}
	}
	pruned := make(map[int]float64, len(pings))
	for peer, ms := range pings {
		if _, ok := current[peer]; ok {
			pruned[peer] = ms
		}
	}
	g.mu.Lock()
	if _, ok := current[playerID]; ok {
		g.playerPings[playerID] = pruned
	}
	for pid := range g.playerPings {
		if _, ok := current[pid]; !ok {
			delete(g.playerPings, pid)
		}
	}
	g.mu.Unlock()
}

// SetEnforceRating opts the game out of the minimum-length validity check.
func (g *Game) SetEnforceRating() {
	g.mu.Lock()
	g.enforceRating = true
	g.mu.Unlock()
}

// AddDesync counts one reported desync.
func (g *Game) AddDesync() {
	g.mu.Lock()
	g.desyncs++
	g.mu.Unlock()
}

// AddResult ingests one GameResult report.
func (g *Game) AddResult(reporterID, army int, outcome model.GameOutcome, score float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.armyKnownLocked(army) {
		return ErrUnknownArmy
	}
	g.results.Add(army, reporterID, outcome, score)
	return nil
}

func (g *Game) armyKnownLocked(army int) bool {
	for _, opts := range g.playerOptions {
		if a, ok := optInt(opts["Army"]); ok && a == army {
			return true
		}
	}
	for _, opts := range g.ais {
		if a, ok := optInt(opts["Army"]); ok && a == army {
			return true
		}
	}
	return false
}

// MarkInvalid downgrades validity. The first downgrade wins; a game never
// becomes valid again.
func (g *Game) MarkInvalid(ctx context.Context, reason model.ValidityState) {
	g.mu.Lock()
	if g.validity != model.ValidityValid || reason == model.ValidityValid {
		g.mu.Unlock()
		return
	}
	g.validity = reason
	g.mu.Unlock()
	g.log.Info().Str("validity", reason.String()).Msg("game marked invalid")
	if err := g.stores.Games.UpdateValidity(ctx, g.ID, reason.String()); err != nil {
		g.log.Error().Err(err).Msg("persisting game validity")
	}
}

// State transitions.

// OnHostStaging moves INITIALIZING to STAGING once the host is in.
func (g *Game) OnHostStaging() error {
	g.mu.Lock()
	if g.state != model.GameInitializing {
		g.mu.Unlock()
		return ErrStateNotDirty
	}
	g.state = model.GameStaging
	g.mu.Unlock()
	g.MarkDirty(false, false)
	return nil
}

// OnHostBattleroom moves STAGING to BATTLEROOM.
func (g *Game) OnHostBattleroom() error {
	g.mu.Lock()
	if g.state != model.GameStaging {
		g.mu.Unlock()
		return ErrStateNotDirty
	}
	g.state = model.GameBattleroom
	g.mu.Unlock()
	g.setHostedBattleroom()
	g.MarkDirty(false, false)
	return nil
}

// OnLaunching moves BATTLEROOM to LAUNCHING and stamps the launch time.
func (g *Game) OnLaunching() error {
	g.mu.Lock()
	if g.state != model.GameBattleroom {
		g.mu.Unlock()
		return ErrStateNotDirty
	}
	g.state = model.GameLaunching
	g.launchedAt = time.Now()
	players := g.playersLocked()
	g.mu.Unlock()
	for _, p := range players {
		p.SetState(model.PlayerPlaying)
	}
	g.MarkDirty(false, false)
	return nil
}

// OnLive moves LAUNCHING to LIVE: the roster is frozen, the rating type is
// finalized, the game is persisted and its settings validated.
func (g *Game) OnLive(ctx context.Context) error {
	g.mu.Lock()
	if g.state != model.GameLaunching {
		g.mu.Unlock()
		return ErrStateNotDirty
	}
	// Freeze the roster to the seated players holding an army.
	live := make([]*model.Player, 0, len(g.conns))
	for pid, c := range g.conns {
		opts, ok := g.playerOptions[pid]
		if !ok {
			continue
		}
		if army, ok := optInt(opts["Army"]); !ok || army < 0 {
			continue
		}
		live = append(live, c.Player)
	}
	sort.Slice(live, func(i, j int) bool { return live[i].ID < live[j].ID })
	g.livePlayers = live
	g.state = model.GameLive
	g.mu.Unlock()

	g.assignRatingType(true)
	g.setLaunched()

	if err := g.persistOnLive(ctx); err != nil {
		g.log.Error().Err(err).Msg("persisting game at launch")
	}
	g.validateGameSettings(ctx)
	g.MarkDirty(false, false)
	return nil
}

func (g *Game) persistOnLive(ctx context.Context) error {
	g.mu.RLock()
	stats := &repository.GameStats{
		ID:          g.ID,
		StartTime:   g.launchedAt,
		GameType:    g.kind.Type.String(),
		FeaturedMod: g.featuredMod,
		HostID:      g.host.ID,
		MapID:       g.mapID,
		Name:        g.name,
		Validity:    g.validity.String(),
	}
	rows := make([]repository.GamePlayerStats, 0, len(g.livePlayers))
	for _, p := range g.livePlayers {
		opts := g.playerOptions[p.ID]
		faction, _ := optInt(opts["Faction"])
		color, _ := optInt(opts["Color"])
		team, _ := optInt(opts["Team"])
		place, _ := optInt(opts["StartSpot"])
		rating, _ := p.Rating(g.ratingType)
		rows = append(rows, repository.GamePlayerStats{
			GameID:    g.ID,
			PlayerID:  p.ID,
			Faction:   faction,
			Color:     color,
			Team:      team,
			Place:     place,
			Mean:      rating.Mean,
			Deviation: rating.Sigma,
		})
	}
	modUIDs := make([]string, 0, len(g.mods))
	for uid := range g.mods {
		modUIDs = append(modUIDs, uid)
	}
	sort.Strings(modUIDs)
	queueID := g.matchmakerQueueID
	g.mu.RUnlock()

	if err := g.stores.Games.Create(ctx, stats); err != nil {
		return err
	}
	if err := g.stores.Games.CreatePlayerStats(ctx, rows); err != nil {
		return err
	}
	if len(modUIDs) > 0 {
		if err := g.stores.Mods.IncrementPlayCounts(ctx, modUIDs); err != nil {
			return err
		}
	}
	if queueID != 0 {
		if err := g.stores.Games.LinkMatchmakerQueue(ctx, g.ID, queueID); err != nil {
			return err
		}
	}
	return nil
}

// OnGameEnd finalizes the game. It is idempotent; the game always reaches
// ENDED and is marked dirty even when result processing fails.
func (g *Game) OnGameEnd(ctx context.Context) {
	g.mu.Lock()
	if g.ended {
		g.mu.Unlock()
		return
	}
	g.ended = true
	wasLive := g.state == model.GameLive
	desyncs := g.desyncs
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.state = model.GameEnded
		empty := len(g.conns) == 0
		g.mu.Unlock()
		g.MarkDirty(false, false)
		if empty {
			g.registry.RemoveGame(g)
		}
	}()

	if !wasLive {
		g.log.Info().Msg("game ended before going live")
		return
	}
	if desyncs > desyncAbortThreshold {
		g.MarkInvalid(ctx, model.ValidityTooManyDesyncs)
		return
	}
	g.mu.RLock()
	mutualDraw := g.results.MutuallyAgreedDraw()
	g.mu.RUnlock()
	if mutualDraw {
		g.log.Info().Msg("game ended in mutually agreed draw")
		g.MarkInvalid(ctx, model.ValidityMutualDraw)
		return
	}
	g.processGameResults(ctx)
}

// CheckSimEnd ends the game once every remaining connection has reported
// the end of its simulation.
func (g *Game) CheckSimEnd(ctx context.Context) {
	g.mu.Lock()
	if (g.state != model.GameLaunching && g.state != model.GameLive) || g.simEnded {
		g.mu.Unlock()
		return
	}
	for _, c := range g.conns {
		if !c.FinishedSim() {
			g.mu.Unlock()
			return
		}
	}
	g.simEnded = true
	g.mu.Unlock()

	if err := g.stores.Games.UpdateEndTime(ctx, g.ID, time.Now()); err != nil {
		g.log.Error().Err(err).Msg("persisting game end time")
	}
	g.OnGameEnd(ctx)
}

// processGameResults persists reported scores and publishes the resolved
// outcome exactly once.
func (g *Game) processGameResults(ctx context.Context) {
	g.mu.RLock()
	empty := g.results.Empty()
	g.mu.RUnlock()
	if empty {
		g.log.Info().Msg("game ended with no results")
		g.MarkInvalid(ctx, model.ValidityUnknownResult)
		return
	}

	if g.kind.PreRateValidity != nil {
		g.kind.PreRateValidity(ctx, g)
	}

	scores := make([]repository.PlayerScore, 0)
	g.mu.RLock()
	for _, p := range g.livePlayers {
		army, ok := optInt(g.playerOptions[p.ID]["Army"])
		if !ok {
			continue
		}
		scores = append(scores, repository.PlayerScore{
			PlayerID: p.ID,
			Score:    int(g.results.Score(army)),
		})
	}
	g.mu.RUnlock()
	if err := g.stores.Games.UpdateScores(ctx, g.ID, scores); err != nil {
		g.log.Error().Err(err).Msg("persisting player scores")
	}

	info, err := g.ResolveOutcomes()
	if err != nil {
		// The result still has to reach the bus so downstream consumers
		// see the game close; every team goes out as UNKNOWN.
		g.log.Info().Err(err).Msg("game results could not be resolved")
		g.MarkInvalid(ctx, model.ValidityUnknownResult)
		rosters := g.TeamRosters()
		outcomes := make([]model.GameOutcome, len(rosters))
		for i := range outcomes {
			outcomes[i] = model.OutcomeUnknown
		}
		info = g.endedGameInfo(rosters, outcomes)
	}

	g.mu.Lock()
	already := g.published
	g.published = true
	g.mu.Unlock()
	if already {
		return
	}
	g.registry.PublishResults(ctx, info)
}

// TeamRoster groups the live players seated on one team.
type TeamRoster struct {
	TeamID  int
	Players []*model.Player
	Armies  []int
}

// TeamRosters returns the live roster grouped by team id, observers
// excluded, ordered by team id.
func (g *Game) TeamRosters() []TeamRoster {
	g.mu.RLock()
	defer g.mu.RUnlock()
	byTeam := make(map[int]*TeamRoster)
	for _, p := range g.livePlayers {
		opts := g.playerOptions[p.ID]
		team, ok := optInt(opts["Team"])
		if !ok || team < 0 {
			continue
		}
		army, ok := optInt(opts["Army"])
		if !ok || army < 0 {
			continue
		}
		r, ok := byTeam[team]
		if !ok {
			r = &TeamRoster{TeamID: team}
			byTeam[team] = r
		}
		r.Players = append(r.Players, p)
		r.Armies = append(r.Armies, army)
	}
	rosters := make([]TeamRoster, 0, len(byTeam))
	for _, r := range byTeam {
		rosters = append(rosters, *r)
	}
	sort.Slice(rosters, func(i, j int) bool { return rosters[i].TeamID < rosters[j].TeamID })
	return rosters
}

// ResolveOutcomes builds the EndedGameInfo from the accumulated reports.
func (g *Game) ResolveOutcomes() (*model.EndedGameInfo, error) {
	rosters := g.TeamRosters()

	teamReports := make([][]model.GameOutcome, len(rosters))
	g.mu.RLock()
	for i, r := range rosters {
		for _, army := range r.Armies {
			teamReports[i] = append(teamReports[i], g.results.Outcome(army))
		}
	}
	g.mu.RUnlock()

	outcomes, err := ResolveTeamOutcomes(teamReports)
	if err != nil {
		if g.kind.OutcomeOverride == nil {
			return nil, err
		}
		outcomes = nil
	}
	if g.kind.OutcomeOverride != nil {
		if overridden, ok := g.kind.OutcomeOverride(g, rosters, outcomes); ok {
			outcomes = overridden
		}
	}
	if outcomes == nil {
		return nil, ErrUnresolvable
	}
	return g.endedGameInfo(rosters, outcomes), nil
}

// endedGameInfo assembles the published summary for the given rosters and
// per-team outcomes. Player outcomes stay as reported even when the team
// outcomes were overridden or defaulted.
func (g *Game) endedGameInfo(rosters []TeamRoster, outcomes []model.GameOutcome) *model.EndedGameInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	modUIDs := make([]string, 0, len(g.mods))
	for uid := range g.mods {
		modUIDs = append(modUIDs, uid)
	}
	sort.Strings(modUIDs)

	info := &model.EndedGameInfo{
		GameID:                g.ID,
		RatingType:            g.ratingType,
		MapID:                 g.mapID,
		MapName:               g.mapName,
		FeaturedMod:           g.featuredMod,
		GalacticWarPlanetName: g.galacticWarPlanetName,
		SimModIDs:             modUIDs,
		Validity:              g.validity,
		TeamOutcomes:          outcomes,
	}
	for _, r := range rosters {
		for j, p := range r.Players {
			faction, _ := optInt(g.playerOptions[p.ID]["Faction"])
			info.PlayerSummaries = append(info.PlayerSummaries, model.EndedGamePlayerSummary{
				PlayerID: p.ID,
				TeamID:   r.TeamID,
				Faction:  model.Faction(faction),
				Outcome:  g.results.Outcome(r.Armies[j]),
			})
		}
	}
	return info
}

// Rating-type assignment.

// assignRatingType finalizes which leaderboard the game rates on. With
// strict set, a queue is only adopted when the roster splits into exactly
// two equal teams.
func (g *Game) assignRatingType(strict bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.state {
	case model.GameStaging, model.GameBattleroom, model.GameLaunching, model.GameLive:
	default:
		return
	}
	if g.ratingTypePreferred == model.RatingGlobal {
		g.ratingType = model.RatingGlobal
		g.matchmakerQueueID = 0
		g.mapPoolMapIDs = nil
		return
	}
	if g.kind.Type == model.GameTypeMatchmaker {
		if g.ratingTypePreferred != "" {
			g.ratingType = g.ratingTypePreferred
		}
		return
	}
	if q := g.findSuitableQueueLocked(strict); q != nil {
		g.ratingType = q.RatingType
		g.matchmakerQueueID = q.ID
		g.mapPoolMapIDs = q.MapIDsForRating(1500)
		return
	}
	g.ratingType = model.RatingGlobal
}

func (g *Game) findSuitableQueueLocked(strict bool) *matchmaker.Queue {
	players := g.playersLocked()
	teamSizes := make(map[int]int)
	for _, p := range players {
		if team, ok := optInt(g.playerOptions[p.ID]["Team"]); ok && team >= 0 {
			teamSizes[team]++
		}
	}
	var teamSize int
	if strict {
		if len(teamSizes) != 2 {
			return nil
		}
		sizes := make([]int, 0, 2)
		for _, n := range teamSizes {
			sizes = append(sizes, n)
		}
		if sizes[0] != sizes[1] {
			return nil
		}
		teamSize = sizes[0]
	} else {
		teamSize = (1 + len(players)) / 2
	}

	var best *matchmaker.Queue
	for _, q := range g.queues.Queues() {
		if q.FeaturedMod != g.featuredMod || q.TeamSize > teamSize {
			continue
		}
		if !g.mapAllowedForQueueLocked(q) {
			continue
		}
		if best == nil || q.TeamSize > best.TeamSize {
			best = q
		}
	}
	return best
}

func (g *Game) mapAllowedForQueueLocked(q *matchmaker.Queue) bool {
	if g.mapID == 0 {
		return false
	}
	if pool := q.PoolForRating(1500); pool != nil && pool.Contains(g.mapID) {
		return true
	}
	ranked := g.queues.RankedMapIDs()
	if len(ranked) == 0 {
		return false
	}
	_, ok := ranked[g.mapID]
	return ok
}

// Visibility.

// IsVisibleTo implements the game-list visibility predicate.
func (g *Game) IsVisibleTo(p *model.Player) bool {
	if p == nil {
		return false
	}
	g.mu.RLock()
	state := g.state
	host := g.host
	_, connected := g.conns[p.ID]
	enforce := g.enforceRatingRange
	ratingRange := g.displayedRatingRange
	visibility := g.visibility
	ratingType := g.ratingType
	g.mu.RUnlock()

	switch state {
	case model.GameLaunching, model.GameLive, model.GameEnded:
		return true
	}
	if p.ID == host.ID || connected {
		return true
	}
	if enforce {
		if r, ok := p.Rating(ratingType); ok && !ratingRange.Contains(r.DisplayedRating()) {
			return false
		}
	}
	if visibility == model.VisibilityFriends {
		return host.IsFriend(p.ID)
	}
	return !host.IsFoe(p.ID)
}

// InfoMessage builds the coalesced game_info broadcast payload.
func (g *Game) InfoMessage(pingsOnly bool) map[string]any {
	g.mu.RLock()
	defer g.mu.RUnlock()

	msg := map[string]any{
		"command": "game_info",
		"uid":     g.ID,
	}
	pings := make(map[string]any, len(g.playerPings))
	for pid, peers := range g.playerPings {
		row := make([][2]float64, 0, len(peers))
		peerIDs := make([]int, 0, len(peers))
		for peer := range peers {
			peerIDs = append(peerIDs, peer)
		}
		sort.Ints(peerIDs)
		for _, peer := range peerIDs {
			row = append(row, [2]float64{float64(peer), peers[peer]})
		}
		pings[strconv.Itoa(pid)] = row
	}
	if len(pings) > 0 {
		msg["player_pings"] = pings
	}
	if pingsOnly {
		return msg
	}

	teams := make(map[string][]string)
	for _, p := range g.playersLocked() {
		team, ok := optInt(g.playerOptions[p.ID]["Team"])
		if !ok {
			continue
		}
		key := strconv.Itoa(team)
		teams[key] = append(teams[key], p.Login)
	}

	var launchedAt any
	if !g.launchedAt.IsZero() {
		launchedAt = g.launchedAt.Unix()
	}
	msg["title"] = g.name
	msg["state"] = g.state.ClientState()
	msg["game_type"] = g.kind.Type.String()
	msg["featured_mod"] = g.featuredMod
	msg["sim_mods"] = g.mods
	msg["mapname"] = g.mapName
	msg["map_file_path"] = g.mapFilePath
	msg["host"] = g.host.Login
	msg["num_players"] = len(g.playersLocked())
	msg["max_players"] = g.maxPlayers
	msg["visibility"] = string(g.visibility)
	msg["launched_at"] = launchedAt
	msg["rating_type"] = g.ratingType
	msg["rating_min"] = floatOrNil(g.displayedRatingRange.Lo)
	msg["rating_max"] = floatOrNil(g.displayedRatingRange.Hi)
	msg["enforce_rating_range"] = g.enforceRatingRange
	msg["replay_delay_seconds"] = g.replayDelaySeconds
	msg["galactic_war_planet_name"] = g.galacticWarPlanetName
	msg["teams"] = teams
	return msg
}

// Helpers.

func optInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		out, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return out, true
	}
	return 0, false
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

func floatOrNil(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
