package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ta-forever/server/internal/game"
	"github.com/ta-forever/server/internal/model"
	"github.com/ta-forever/server/internal/service"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = 54 * time.Second // Must be less than pongWait
	maxMsgSize  = 64 * 1024
	sendBufSize = 256

	defaultMaxPlayers = 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // identity comes from the fronting proxy, not the origin
	},
}

// clientMessage is the envelope for everything a lobby client sends.
// Messages with target "game" are forwarded to the player's game
// connection; the rest are lobby commands.
type clientMessage struct {
	Command string `json:"command"`
	Target  string `json:"target"`
	Args    []any  `json:"args"`

	// game_host
	Title      string `json:"title"`
	MapName    string `json:"mapname"`
	Mod        string `json:"mod"`
	Visibility string `json:"visibility"`
	MaxPlayers int    `json:"max_players"`
	PlanetName string `json:"galactic_war_planet_name"`

	// game_join
	UID int `json:"uid"`
}

// LobbyHandler upgrades lobby clients to WebSocket and translates their
// command stream into service calls.
type LobbyHandler struct {
	hub     *Hub
	players *service.PlayerService
	games   *service.GameService
}

func NewLobbyHandler(hub *Hub, players *service.PlayerService, games *service.GameService) *LobbyHandler {
	return &LobbyHandler{hub: hub, players: players, games: games}
}

// ServeWS handles GET /ws. The fronting proxy authenticates the session
// and injects the player id as a query parameter.
func (h *LobbyHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	playerID, err := strconv.Atoi(r.URL.Query().Get("player_id"))
	if err != nil || playerID <= 0 {
		http.Error(w, `{"error":"missing or malformed player_id"}`, http.StatusUnauthorized)
		return
	}

	player, err := h.players.SignIn(r.Context(), playerID)
	if err != nil {
		log.Warn().Err(err).Int("player_id", playerID).Msg("sign-in failed")
		http.Error(w, `{"error":"unknown player"}`, http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		h.players.Remove(playerID)
		return
	}

	c := newConn(ws, player)
	h.hub.Register(c)

	if err := c.Send(map[string]any{
		"command":   "welcome",
		"player_id": player.ID,
		"login":     player.Login,
	}); err != nil {
		log.Warn().Err(err).Int("player_id", player.ID).Msg("sending welcome")
	}

	// The context outlives the request: a joiner can be parked waiting for
	// its host inside the read loop, and only the write pump notices a
	// dead socket. Cancelling from there unblocks the reader.
	ctx, cancel := context.WithCancel(context.Background())
	go h.writePump(ctx, cancel, c)
	go h.readPump(ctx, c)

	log.Info().
		Int("player_id", player.ID).
		Str("login", player.Login).
		Int("total", h.hub.ConnectionCount()).
		Msg("lobby client connected")
}

func (h *LobbyHandler) readPump(ctx context.Context, c *Conn) {
	defer func() {
		h.disconnect(c)
		log.Info().Int("player_id", c.player.ID).Msg("lobby client disconnected")
	}()

	c.ws.SetReadLimit(maxMsgSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg clientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Int("player_id", c.player.ID).Msg("websocket unexpected close")
			}
			return
		}
		h.dispatch(ctx, c, &msg)
	}
}

func (h *LobbyHandler) writePump(ctx context.Context, cancel context.CancelFunc, c *Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		c.ws.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *LobbyHandler) dispatch(ctx context.Context, c *Conn, msg *clientMessage) {
	if msg.Target == "game" {
		gc := c.gameConnection()
		if gc == nil {
			log.Debug().Int("player_id", c.player.ID).Str("command", msg.Command).Msg("game command outside a game")
			return
		}
		if err := gc.HandleMessage(ctx, msg.Command, msg.Args); err != nil {
			log.Info().Err(err).Int("player_id", c.player.ID).Str("command", msg.Command).Msg("game command failed")
		}
		return
	}

	switch msg.Command {
	case "game_host":
		h.handleGameHost(c, msg)
	case "game_join":
		h.handleGameJoin(c, msg)
	case "pong":
		// Reply to the broadcaster's application-level ping.
	default:
		log.Warn().Int("player_id", c.player.ID).Str("command", msg.Command).Msg("unknown lobby command")
	}
}

func (h *LobbyHandler) handleGameHost(c *Conn, msg *clientMessage) {
	if c.gameConnection() != nil {
		c.SendNotice("error", "you are already in a game")
		return
	}
	player := c.player

	visibility := model.VisibilityPublic
	if msg.Visibility == string(model.VisibilityFriends) {
		visibility = model.VisibilityFriends
	}
	title := msg.Title
	if title == "" {
		title = player.Login + "'s game"
	}
	mod := msg.Mod
	if mod == "" {
		mod = "tacc"
	}
	maxPlayers := msg.MaxPlayers
	if maxPlayers <= 0 {
		maxPlayers = defaultMaxPlayers
	}

	h.players.SetPlayerState(player, model.PlayerHosting)
	g := h.games.CreateGame(game.Options{
		Host:                  player,
		Name:                  title,
		MapName:               msg.MapName,
		FeaturedMod:           mod,
		Visibility:            visibility,
		MaxPlayers:            maxPlayers,
		GalacticWarPlanetName: msg.PlanetName,
	})
	gc := game.NewConnection(g, player, c)
	if err := g.AddConnection(gc); err != nil {
		h.players.SetPlayerState(player, model.PlayerIdle)
		c.SendNotice("error", "could not host game: "+err.Error())
		return
	}
	c.setGameConn(gc)
	player.CurrentGameID = g.ID

	h.sendGameLaunch(c, g)
}

func (h *LobbyHandler) handleGameJoin(c *Conn, msg *clientMessage) {
	if c.gameConnection() != nil {
		c.SendNotice("error", "you are already in a game")
		return
	}
	player := c.player

	g, ok := h.games.Get(msg.UID)
	if !ok {
		c.SendNotice("game_join_fail", "game does not exist")
		return
	}
	if !g.IsVisibleTo(player) {
		c.SendNotice("game_join_fail", "game not available")
		return
	}

	h.players.SetPlayerState(player, model.PlayerJoining)
	gc := game.NewConnection(g, player, c)
	if err := g.AddConnection(gc); err != nil {
		h.players.SetPlayerState(player, model.PlayerIdle)
		c.SendNotice("game_join_fail", err.Error())
		return
	}
	c.setGameConn(gc)
	player.CurrentGameID = g.ID

	h.sendGameLaunch(c, g)
}

func (h *LobbyHandler) sendGameLaunch(c *Conn, g *game.Game) {
	if err := c.Send(map[string]any{
		"command": "game_launch",
		"uid":     g.ID,
		"mod":     g.FeaturedMod(),
		"mapname": g.MapName(),
	}); err != nil {
		log.Warn().Err(err).Int("player_id", c.player.ID).Int("game_id", g.ID).Msg("sending game_launch")
	}
}

// disconnect tears down everything the connection owns: its game seat,
// its presence in the registry and its hub registration. Closing the send
// channel ends the write pump, which owns closing the socket.
func (h *LobbyHandler) disconnect(c *Conn) {
	if gc := c.takeGameConn(); gc != nil {
		gc.Abort(context.Background(), "")
	}
	h.players.SetPlayerState(c.player, model.PlayerIdle)
	h.players.Remove(c.player.ID)
	h.hub.Unregister(c)
}
