package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ta-forever/server/internal/config"
	"github.com/ta-forever/server/internal/matchmaker"
	"github.com/ta-forever/server/internal/model"
)

// Sender fans one message out to every authenticated connection whose
// player passes the filter. A nil filter means everyone.
type Sender interface {
	Broadcast(msg map[string]any, allow func(*model.Player) bool)
}

// GalacticWarSource is the broadcaster's view of the campaign engine.
type GalacticWarSource interface {
	// ConsumeDirty reports whether an update is pending and clears the flag.
	ConsumeDirty() bool
	UpdateMessage() map[string]any
}

// Broadcaster periodically drains every dirty source and emits the
// coalesced updates, at most one message per dirty entity per tick.
type Broadcaster struct {
	cfg     *config.Config
	sender  Sender
	games   *GameService
	players *PlayerService
	tada    *TadaService
	gw      GalacticWarSource
}

// NewBroadcaster creates a Broadcaster. gw may be nil when the campaign
// engine is disabled.
func NewBroadcaster(cfg *config.Config, sender Sender, games *GameService, players *PlayerService, tada *TadaService, gw GalacticWarSource) *Broadcaster {
	return &Broadcaster{
		cfg:     cfg,
		sender:  sender,
		games:   games,
		players: players,
		tada:    tada,
		gw:      gw,
	}
}

// Run flushes dirty sets on the report interval and pings all connections
// on the ping interval, until the context is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	flush := time.NewTicker(b.cfg.DirtyReportInterval)
	defer flush.Stop()
	ping := time.NewTicker(b.cfg.PingInterval)
	defer ping.Stop()

	log.Info().
		Dur("flush_interval", b.cfg.DirtyReportInterval).
		Dur("ping_interval", b.cfg.PingInterval).
		Msg("broadcaster started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("broadcaster stopped")
			return
		case <-flush.C:
			b.Flush()
		case <-ping.C:
			b.sender.Broadcast(map[string]any{"command": "ping"}, nil)
		}
	}
}

// Flush drains all dirty sources once.
func (b *Broadcaster) Flush() {
	for _, d := range b.games.DrainDirtyGames() {
		g := d.Game
		onlyToPeers := d.OnlyToPeers
		pingsOnly := d.PingsOnly && b.cfg.PublishGameInfoWithPingsOnly
		b.sender.Broadcast(g.InfoMessage(pingsOnly), func(p *model.Player) bool {
			if !g.IsVisibleTo(p) {
				return false
			}
			return !onlyToPeers || g.HasPlayer(p.ID)
		})
	}

	if queues := b.games.DrainDirtyQueues(); len(queues) > 0 {
		b.sender.Broadcast(MatchmakerInfoMessage(queues), nil)
	}

	if players := b.players.DrainDirty(); len(players) > 0 {
		b.sender.Broadcast(PlayerInfoMessage(players), nil)
	}

	if b.gw != nil && b.gw.ConsumeDirty() {
		b.sender.Broadcast(b.gw.UpdateMessage(), nil)
	}

	for _, r := range b.tada.DrainDirty() {
		b.sender.Broadcast(map[string]any{
			"command":      "new_tada_replay",
			"taf_game_id":  r.TafGameID,
			"tada_game_id": r.TadaGameID,
			"map_name":     r.MapName,
		}, nil)
	}
}

// MatchmakerInfoMessage builds the coalesced matchmaker_info batch.
func MatchmakerInfoMessage(queues []*matchmaker.Queue) map[string]any {
	entries := make([]map[string]any, 0, len(queues))
	for _, q := range queues {
		entries = append(entries, map[string]any{
			"queue_name":   q.Name,
			"featured_mod": q.FeaturedMod,
			"rating_type":  q.RatingType,
			"team_size":    q.TeamSize,
		})
	}
	return map[string]any{
		"command": "matchmaker_info",
		"queues":  entries,
	}
}
