package core

import (
	"sync"
	"testing"
)

// delivery records one bus call for assertions.
type delivery struct {
	plane  string
	notice *Notice
	to     []string
}

// recorder implements Bus and appends into the env's shared sink so tests can
// assert on cross-plane ordering. Delivery may happen from several goroutines.
type recorder struct {
	plane string
	env   *testEnv
}

func (r *recorder) Deliver(n *Notice, to ...string) {
	r.env.mu.Lock()
	defer r.env.mu.Unlock()
	r.env.delivered = append(r.env.delivered, delivery{plane: r.plane, notice: n, to: to})
}

type testEnv struct {
	server  *Server
	channel *Channel

	mu        sync.Mutex
	delivered []delivery
}

func (e *testEnv) byKind(kind NoticeKind) []delivery {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []delivery
	for _, d := range e.delivered {
		if d.notice.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

func (e *testEnv) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delivered = nil
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	acm := ACM{PlayerConnect: true, PlayerDisconnect: true, StageUpdate: true}
	srv := NewServer(acm, nil)
	srv.RegisterGame("colony", "standard", "scarcity")

	ch, err := srv.CreateChannel(ChannelConfig{Name: "arena"}, nil)
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}

	env := &testEnv{server: srv, channel: ch}
	ch.BindBuses(
		&recorder{plane: "admin", env: env},
		&recorder{plane: "player", env: env},
	)
	return env
}

func mustAddClient(t *testing.T, reg *Registry, id string, attrs map[string]any) *ClientRecord {
	t.Helper()
	rec, err := reg.AddClient(id, attrs)
	if err != nil {
		t.Fatalf("add client %s: %v", id, err)
	}
	return rec
}

func mustCreateRoom(t *testing.T, ch *Channel, typ RoomType, cfg RoomConfig) *Room {
	t.Helper()
	room, err := ch.CreateRoom(typ, cfg)
	if err != nil {
		t.Fatalf("create room %q: %v", cfg.Name, err)
	}
	return room
}

func mustPlace(t *testing.T, ch *Channel, clientID, room string) {
	t.Helper()
	if !ch.PlaceClient(clientID, room) {
		t.Fatalf("place %s into %s failed", clientID, room)
	}
}

// stubGame implements GameState with a fixed answer.
type stubGame struct {
	over bool
}

func (g stubGame) IsGameOver() bool { return g.over }
