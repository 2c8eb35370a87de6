package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ta-forever/server/internal/game"
	"github.com/ta-forever/server/internal/model"
)

// ErrSendBufferFull is returned when a connection's send buffer is full
// and a message had to be dropped.
var ErrSendBufferFull = errors.New("send buffer full")

// Conn is one authenticated lobby connection. It carries the signed-in
// player and, while the player is in a game, the game connection that
// translates its command stream.
type Conn struct {
	player *model.Player
	ws     *websocket.Conn
	send   chan []byte

	mu       sync.Mutex
	gameConn *game.Connection
}

func newConn(ws *websocket.Conn, player *model.Player) *Conn {
	return &Conn{
		player: player,
		ws:     ws,
		send:   make(chan []byte, sendBufSize),
	}
}

// Player returns the signed-in player behind the connection.
func (c *Conn) Player() *model.Player { return c.player }

// Send queues one message for delivery. Slow consumers drop messages
// rather than stall the server.
func (c *Conn) Send(msg map[string]any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if !c.trySend(data) {
		return ErrSendBufferFull
	}
	return nil
}

func (c *Conn) trySend(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Conn) setGameConn(gc *game.Connection) {
	c.mu.Lock()
	c.gameConn = gc
	c.mu.Unlock()
}

func (c *Conn) gameConnection() *game.Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gameConn
}

func (c *Conn) takeGameConn() *game.Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	gc := c.gameConn
	c.gameConn = nil
	return gc
}

// gameMessage wraps a server-to-game-client command in the wire envelope
// the game adapter listens for.
func gameMessage(command string, args ...any) map[string]any {
	if args == nil {
		args = []any{}
	}
	return map[string]any{"command": command, "target": "game", "args": args}
}

// The game.Messenger implementation. Drops are logged but never fail the
// caller's game logic.

func (c *Conn) SendHostGame(mapName string) error {
	return c.Send(gameMessage("HostGame", mapName))
}

func (c *Conn) SendJoinGame(alias string, uid int) error {
	return c.Send(gameMessage("JoinGame", alias, uid))
}

func (c *Conn) SendConnectToPeer(alias string, uid int, offer bool) error {
	return c.Send(gameMessage("ConnectToPeer", alias, uid, offer))
}

func (c *Conn) SendDisconnectFromPeer(uid int) error {
	return c.Send(gameMessage("DisconnectFromPeer", uid))
}

func (c *Conn) SendIceMsg(senderID int, payload any) error {
	return c.Send(gameMessage("IceMsg", senderID, payload))
}

func (c *Conn) SendNotice(style, text string) error {
	err := c.Send(map[string]any{"command": "notice", "style": style, "text": text})
	if err != nil {
		log.Warn().Err(err).Int("player_id", c.player.ID).Str("style", style).Msg("dropping notice")
	}
	return err
}
