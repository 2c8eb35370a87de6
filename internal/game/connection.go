package game

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ta-forever/server/internal/model"
	"github.com/ta-forever/server/internal/repository"
)

// Messenger delivers server-to-game-client messages for one connection.
type Messenger interface {
	SendHostGame(mapName string) error
	SendJoinGame(alias string, uid int) error
	SendConnectToPeer(alias string, uid int, offer bool) error
	SendDisconnectFromPeer(uid int) error
	SendIceMsg(senderID int, payload any) error
	SendNotice(style, text string) error
}

// Connection binds one player's game client to one game and translates its
// command stream into game mutations. Commands arrive in receive order from
// a single reader goroutine.
type Connection struct {
	Player *model.Player

	game *Game
	msg  Messenger
	log  zerolog.Logger

	mu          sync.Mutex
	subState    string
	finishedSim bool
	aborted     bool
}

// NewConnection creates a game connection. The caller is responsible for
// registering it on the game via AddConnection.
func NewConnection(g *Game, p *model.Player, msg Messenger) *Connection {
	return &Connection{
		Player: p,
		game:   g,
		msg:    msg,
		log: log.With().
			Int("game_id", g.ID).
			Int("player_id", p.ID).
			Str("login", p.Login).
			Logger(),
	}
}

// Game returns the game this connection belongs to.
func (c *Connection) Game() *Game { return c.game }

// IsHost reports whether this connection belongs to the game's host.
func (c *Connection) IsHost() bool { return c.Player.ID == c.game.Host().ID }

// FinishedSim reports whether the client declared its simulation over.
func (c *Connection) FinishedSim() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finishedSim
}

// HandleMessage dispatches one decoded game command. Malformed arguments
// are logged and dropped; the connection stays up.
func (c *Connection) HandleMessage(ctx context.Context, command string, args []any) error {
	switch command {
	case "GameState":
		major, _ := stringArg(args, 0)
		return c.handleGameState(ctx, major, c.takeSubState())
	case "GameOption":
		key, _ := stringArg(args, 0)
		if key == "SubState" {
			// Kept aside and consumed with the next GameState so the
			// pair is applied atomically even if messages interleave.
			v, _ := stringArg(args, 1)
			c.setSubState(v)
			return nil
		}
		if !c.IsHost() {
			c.log.Debug().Str("key", key).Msg("ignoring game option from non-host")
			return nil
		}
		if len(args) < 2 {
			return fmt.Errorf("GameOption: missing value for %q", key)
		}
		c.game.SetGameOption(ctx, key, args[1])
		return nil
	case "PlayerOption":
		return c.handlePlayerOption(args)
	case "AIOption":
		if !c.IsHost() {
			return nil
		}
		name, _ := stringArg(args, 0)
		key, _ := stringArg(args, 1)
		if name == "" || key == "" || len(args) < 3 {
			return fmt.Errorf("AIOption: malformed arguments %v", args)
		}
		c.game.SetAIOption(name, key, args[2])
		return nil
	case "ClearSlot":
		if !c.IsHost() {
			return nil
		}
		slot, ok := intArg(args, 0)
		if !ok {
			return fmt.Errorf("ClearSlot: malformed arguments %v", args)
		}
		c.game.ClearSlot(slot)
		return nil
	case "GameMods":
		return c.handleGameMods(ctx, args)
	case "GameResult":
		return c.handleGameResult(args)
	case "GameEnded":
		return c.handleGameEnded(ctx)
	case "OperationComplete":
		return c.handleOperationComplete(ctx, args)
	case "TeamkillHappened":
		return c.handleTeamkill(ctx, args)
	case "IceMsg":
		return c.handleIceMsg(args)
	case "GameMetrics":
		return c.handleGameMetrics(args)
	case "Desync":
		c.game.AddDesync()
		return nil
	case "EnforceRating":
		c.game.SetEnforceRating()
		return nil
	case "JsonStats":
		c.log.Debug().Msg("discarding json stats")
		return nil
	case "Chat", "Rehost", "Bottleneck", "BottleneckCleared", "Disconnected", "GameFull":
		return nil
	}
	c.log.Warn().Str("command", command).Msg("unknown game command")
	return nil
}

func (c *Connection) setSubState(v string) {
	c.mu.Lock()
	c.subState = v
	c.mu.Unlock()
}

func (c *Connection) takeSubState() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.subState
	c.subState = ""
	return v
}

// handleGameState drives the lifecycle from (major, minor) state reports.
func (c *Connection) handleGameState(ctx context.Context, major, minor string) error {
	switch major {
	case "Idle":
		if c.IsHost() {
			if err := c.game.OnHostStaging(); err != nil {
				c.log.Debug().Err(err).Msg("idle report ignored")
			}
		}
	case "Lobby":
		switch minor {
		case "Battleroom":
			if c.IsHost() {
				if err := c.game.OnHostBattleroom(); err != nil {
					return nil
				}
				c.Player.SetState(model.PlayerHosted)
			} else {
				c.Player.SetState(model.PlayerJoined)
			}
			c.game.MarkDirty(false, false)
		default: // Staging
			if c.IsHost() {
				c.game.setHostedStaging()
				if err := c.msg.SendHostGame(c.game.MapName()); err != nil {
					c.log.Error().Err(err).Msg("sending HostGame")
				}
			} else {
				return c.connectToHost(ctx)
			}
		}
	case "Launching":
		if !c.IsHost() {
			return nil
		}
		switch minor {
		case "Live":
			if err := c.game.OnLive(ctx); err != nil {
				c.log.Debug().Err(err).Msg("live report ignored")
			}
		default:
			if err := c.game.OnLaunching(); err != nil {
				c.log.Debug().Err(err).Msg("launching report ignored")
			}
		}
	case "Ended":
		c.Abort(ctx, "")
	}
	return nil
}

// connectToHost performs the three-way peer wiring for a joiner once the
// host's lobby is up. Failures to reach a single peer never abort the
// wiring of the remainder.
func (c *Connection) connectToHost(ctx context.Context) error {
	select {
	case <-c.game.HostedStaging():
	case <-ctx.Done():
		return ctx.Err()
	}

	host := c.game.Host()
	hostConn, ok := c.game.Connection(host.ID)
	if !ok {
		c.Abort(ctx, "host left before join completed")
		return nil
	}
	alias := c.game.Kind().PlayerAlias

	if err := c.msg.SendJoinGame(alias(host), host.ID); err != nil {
		c.log.Error().Err(err).Msg("sending JoinGame")
		return nil
	}
	if err := hostConn.msg.SendConnectToPeer(alias(c.Player), c.Player.ID, true); err != nil {
		c.log.Warn().Err(err).Msg("offering joiner to host")
	}

	for _, peer := range c.game.Connections() {
		if peer == c || peer == hostConn {
			continue
		}
		if err := peer.msg.SendConnectToPeer(alias(c.Player), c.Player.ID, true); err != nil {
			c.log.Warn().Err(err).Int("peer_id", peer.Player.ID).Msg("offering newcomer to peer")
		}
		if err := c.msg.SendConnectToPeer(alias(peer.Player), peer.Player.ID, false); err != nil {
			c.log.Warn().Err(err).Int("peer_id", peer.Player.ID).Msg("answering peer to newcomer")
		}
	}
	return nil
}

func (c *Connection) handlePlayerOption(args []any) error {
	pid, ok := intArg(args, 0)
	key, _ := stringArg(args, 1)
	if !ok || key == "" || len(args) < 3 {
		return fmt.Errorf("PlayerOption: malformed arguments %v", args)
	}
	if !c.IsHost() && pid != c.Player.ID {
		c.log.Debug().Int("target", pid).Msg("ignoring player option for other player")
		return nil
	}
	c.game.SetPlayerOption(pid, key, args[2])
	return nil
}

func (c *Connection) handleGameMods(ctx context.Context, args []any) error {
	if !c.IsHost() {
		return nil
	}
	mode, _ := stringArg(args, 0)
	switch mode {
	case "activated":
		if n, ok := intArg(args, 1); ok && n == 0 {
			c.game.SetMods(map[string]string{})
		}
	case "uids":
		raw, _ := stringArg(args, 1)
		uids := strings.Fields(raw)
		names, err := c.game.stores.Mods.NamesByUID(ctx, uids)
		if err != nil {
			return fmt.Errorf("GameMods: resolving uids: %w", err)
		}
		mods := make(map[string]string, len(uids))
		for _, uid := range uids {
			if name, ok := names[uid]; ok {
				mods[uid] = name
			}
		}
		c.game.SetMods(mods)
	default:
		return fmt.Errorf("GameMods: unknown mode %q", mode)
	}
	return nil
}

func (c *Connection) handleGameResult(args []any) error {
	army, ok := intArg(args, 0)
	text, _ := stringArg(args, 1)
	if !ok || text == "" {
		return fmt.Errorf("GameResult: malformed arguments %v", args)
	}
	outcome, score, err := ParseResult(text)
	if err != nil {
		c.log.Info().Err(err).Msg("dropping unparseable game result")
		return nil
	}
	if err := c.game.AddResult(c.Player.ID, army, outcome, score); err != nil {
		c.log.Info().Err(err).Int("army", army).Msg("dropping game result")
	}
	return nil
}

func (c *Connection) handleGameEnded(ctx context.Context) error {
	c.mu.Lock()
	if c.finishedSim {
		c.mu.Unlock()
		return nil
	}
	c.finishedSim = true
	c.mu.Unlock()
	c.game.CheckSimEnd(ctx)
	return nil
}

// handleOperationComplete records a finished co-op mission. Only primary
// objectives of an unranked co-op game count.
func (c *Connection) handleOperationComplete(ctx context.Context, args []any) error {
	primary, ok := intArg(args, 0)
	if !ok {
		return fmt.Errorf("OperationComplete: malformed arguments %v", args)
	}
	if primary != 1 {
		return nil
	}
	if c.game.Validity() != model.ValidityCoopNotRanked {
		return nil
	}
	secondary, _ := intArg(args, 1)
	seconds, _ := intArg(args, 2)

	missionID, err := c.game.stores.Coop.MissionIDByMap(ctx, c.game.MapName())
	if err != nil {
		c.log.Warn().Err(err).Str("map", c.game.MapName()).Msg("no co-op mission for map")
		return nil
	}
	result := &repository.CoopResult{
		MissionID:     missionID,
		GameID:        c.game.ID,
		SecondsPlayed: seconds,
		Secondary:     secondary == 1,
		PlayerCount:   len(c.game.Players()),
	}
	if err := c.game.stores.Coop.RecordResult(ctx, result); err != nil {
		c.log.Error().Err(err).Msg("recording co-op result")
	}
	return nil
}

func (c *Connection) handleTeamkill(ctx context.Context, args []any) error {
	gameTime, _ := intArg(args, 0)
	killerID, ok := intArg(args, 1)
	if !ok {
		return fmt.Errorf("TeamkillHappened: malformed arguments %v", args)
	}
	victimID, _ := intArg(args, 3)
	if killerID == 0 {
		// AI teamkills carry id 0 and are not tracked.
		return nil
	}
	t := &repository.Teamkill{
		TeamkillerID: killerID,
		VictimID:     victimID,
		GameID:       c.game.ID,
		GameTime:     gameTime,
	}
	if err := c.game.stores.Teamkills.Record(ctx, t); err != nil {
		c.log.Error().Err(err).Msg("recording teamkill")
	}
	return nil
}

// handleIceMsg relays an ICE payload to another connection of the same game.
func (c *Connection) handleIceMsg(args []any) error {
	receiverID, ok := intArg(args, 0)
	if !ok || len(args) < 2 {
		return fmt.Errorf("IceMsg: malformed arguments %v", args)
	}
	receiver, ok := c.game.Connection(receiverID)
	if !ok {
		c.log.Debug().Int("receiver_id", receiverID).Msg("dropping ice message for unknown receiver")
		return nil
	}
	if err := receiver.msg.SendIceMsg(c.Player.ID, args[1]); err != nil {
		c.log.Warn().Err(err).Int("receiver_id", receiverID).Msg("relaying ice message")
	}
	return nil
}

// handleGameMetrics currently understands PlayerPings; other metric kinds
// are discarded.
func (c *Connection) handleGameMetrics(args []any) error {
	kind, _ := stringArg(args, 0)
	if kind != "PlayerPings" {
		return nil
	}
	if len(args) < 2 {
		return fmt.Errorf("GameMetrics: missing value for %q", kind)
	}
	pings := make(map[int]float64)
	if raw, ok := args[1].(map[string]any); ok {
		for peer, ms := range raw {
			peerID, ok := optInt(peer)
			if !ok {
				continue
			}
			if v, ok := ms.(float64); ok {
				pings[peerID] = v
			}
		}
	}
	c.game.SetPlayerPings(c.Player.ID, pings)
	// Pings change constantly; flush them to peers only, without a full
	// game_info for everyone.
	c.game.MarkDirty(true, true)
	return nil
}

// Abort tears the connection down. It is idempotent; the reason, when
// non-empty, is delivered to the player as a game_join_fail notice.
func (c *Connection) Abort(ctx context.Context, reason string) {
	c.mu.Lock()
	if c.aborted {
		c.mu.Unlock()
		return
	}
	c.aborted = true
	c.mu.Unlock()

	if reason != "" {
		c.log.Info().Str("reason", reason).Msg("aborting game connection")
		if err := c.msg.SendNotice("game_join_fail", reason); err != nil {
			c.log.Warn().Err(err).Msg("sending join-fail notice")
		}
	}

	state := c.game.State()
	if state == model.GameStaging || state == model.GameBattleroom {
		c.disconnectAllPeers()
	}
	c.game.RemoveConnection(ctx, c)
	if c.Player.CurrentGameID == c.game.ID {
		c.Player.CurrentGameID = 0
	}
}

func (c *Connection) disconnectAllPeers() {
	for _, peer := range c.game.Connections() {
		if peer == c {
			continue
		}
		if err := peer.msg.SendDisconnectFromPeer(c.Player.ID); err != nil {
			c.log.Debug().Err(err).Int("peer_id", peer.Player.ID).Msg("disconnecting peer")
		}
	}
}

// Argument helpers. Decoded JSON arguments arrive as float64 or string.

func stringArg(args []any, i int) (string, bool) {
	if i >= len(args) {
		return "", false
	}
	s, ok := args[i].(string)
	return s, ok
}

func intArg(args []any, i int) (int, bool) {
	if i >= len(args) {
		return 0, false
	}
	return optInt(args[i])
}
