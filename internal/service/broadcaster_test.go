package service

import (
	"context"
	"sync"
	"testing"

	"github.com/ta-forever/server/internal/game"
	"github.com/ta-forever/server/internal/model"
)

type sentBroadcast struct {
	msg   map[string]any
	allow func(*model.Player) bool
}

type mockSender struct {
	mu   sync.Mutex
	sent []sentBroadcast
}

func (m *mockSender) Broadcast(msg map[string]any, allow func(*model.Player) bool) {
	m.mu.Lock()
	m.sent = append(m.sent, sentBroadcast{msg: msg, allow: allow})
	m.mu.Unlock()
}

func (m *mockSender) byCommand(command string) []sentBroadcast {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentBroadcast
	for _, s := range m.sent {
		if s.msg["command"] == command {
			out = append(out, s)
		}
	}
	return out
}

type stubGalacticWar struct {
	dirty bool
}

func (s *stubGalacticWar) ConsumeDirty() bool {
	d := s.dirty
	s.dirty = false
	return d
}

func (s *stubGalacticWar) UpdateMessage() map[string]any {
	return map[string]any{"command": "galactic_war_update"}
}

func testBroadcaster(t *testing.T) (*Broadcaster, *GameService, *PlayerService, *TadaService, *stubGalacticWar, *mockSender) {
	t.Helper()
	games, _, _ := testGameService(t)
	players := NewPlayerService(newMockPlayerRepo())
	tada := NewTadaService()
	gw := &stubGalacticWar{}
	sender := &mockSender{}
	b := NewBroadcaster(testRatingConfig(), sender, games, players, tada, gw)
	return b, games, players, tada, gw, sender
}

func TestFlushGameInfoSkipsFoes(t *testing.T) {
	b, games, _, _, _, sender := testBroadcaster(t)
	host := model.NewPlayer(1, "fixer")
	host.SetFoes([]int{3})
	g := games.CreateGame(game.Options{Host: host, Name: "fixer's game"})
	defer g.OnGameEnd(context.Background())

	b.Flush()

	infos := sender.byCommand("game_info")
	if len(infos) != 1 {
		t.Fatalf("game_info broadcasts = %d, want 1", len(infos))
	}
	friend := model.NewPlayer(2, "friend")
	foe := model.NewPlayer(3, "foe")
	if !infos[0].allow(friend) {
		t.Error("game hidden from a non-foe")
	}
	if infos[0].allow(foe) {
		t.Error("game visible to a player on the host's foes list")
	}

	// The dirty set is spent; a second tick is silent.
	sender.sent = nil
	b.Flush()
	if got := sender.byCommand("game_info"); len(got) != 0 {
		t.Errorf("second flush sent %d game_info messages, want 0", len(got))
	}
}

func TestFlushOnlyToPeers(t *testing.T) {
	b, games, _, _, _, sender := testBroadcaster(t)
	host := model.NewPlayer(1, "fixer")
	g := games.CreateGame(game.Options{Host: host})
	defer g.OnGameEnd(context.Background())
	games.DrainDirtyGames()

	games.MarkDirty(g, true, false)
	b.Flush()

	infos := sender.byCommand("game_info")
	if len(infos) != 1 {
		t.Fatalf("game_info broadcasts = %d, want 1", len(infos))
	}
	outsider := model.NewPlayer(5, "outsider")
	if infos[0].allow(outsider) {
		t.Error("peers-only broadcast reached a player outside the game")
	}
}

func TestFlushCoalescesDirtyPlayers(t *testing.T) {
	b, _, players, _, _, sender := testBroadcaster(t)
	p1 := model.NewPlayer(1, "fixer")
	p2 := model.NewPlayer(2, "tester")
	players.MarkDirty(p1)
	players.MarkDirty(p2)
	players.MarkDirty(p1)

	b.Flush()

	batches := sender.byCommand("player_info")
	if len(batches) != 1 {
		t.Fatalf("player_info batches = %d, want 1", len(batches))
	}
	entries := batches[0].msg["players"].([]map[string]any)
	if len(entries) != 2 {
		t.Errorf("batched players = %d, want 2", len(entries))
	}
}

func TestFlushGalacticWarAndTada(t *testing.T) {
	b, _, _, tada, gw, sender := testBroadcaster(t)
	gw.dirty = true
	tada.MarkDirty(TadaReplay{TafGameID: 41, TadaGameID: 900, MapName: "SHERWOOD"})

	b.Flush()

	if got := sender.byCommand("galactic_war_update"); len(got) != 1 {
		t.Errorf("galactic_war_update broadcasts = %d, want 1", len(got))
	}
	replays := sender.byCommand("new_tada_replay")
	if len(replays) != 1 {
		t.Fatalf("new_tada_replay broadcasts = %d, want 1", len(replays))
	}
	if replays[0].msg["taf_game_id"] != 41 {
		t.Errorf("taf_game_id = %v, want 41", replays[0].msg["taf_game_id"])
	}

	sender.sent = nil
	b.Flush()
	if len(sender.sent) != 0 {
		t.Errorf("second flush sent %d messages, want 0", len(sender.sent))
	}
}
