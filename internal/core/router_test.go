package core

import (
	"errors"
	"sort"
	"sync"
	"testing"
)

// routerEnv builds a channel with a lobby holding one connected admin monitor
// and two connected players.
func routerEnv(t *testing.T) (*testEnv, *Router) {
	t.Helper()
	env := newTestEnv(t)
	ch := env.channel
	reg := ch.Registry()

	mustCreateRoom(t, ch, RoomBasic, RoomConfig{Name: "lobby"})
	mustAddClient(t, reg, "m", map[string]any{"admin": true})
	mustAddClient(t, reg, "p1", nil)
	mustAddClient(t, reg, "p2", nil)
	for _, id := range []string{"m", "p1", "p2"} {
		if err := reg.MarkConnected(id, "s-"+id); err != nil {
			t.Fatalf("mark connected %s: %v", id, err)
		}
		mustPlace(t, ch, id, "lobby")
	}

	env.reset()
	return env, NewRouter(ch, nil)
}

func sortedRecipients(deliveries []delivery) []string {
	var out []string
	for _, d := range deliveries {
		out = append(out, d.to...)
	}
	sort.Strings(out)
	return out
}

func TestRouteUnknownSenderRoom(t *testing.T) {
	env, rt := routerEnv(t)
	mustAddClient(t, env.channel.Registry(), "stray", nil)

	err := rt.Route(&Message{From: "stray", To: ScopeRoom})
	if !errors.Is(err, ErrRouting) {
		t.Fatalf("expected ErrRouting, got %v", err)
	}
	if len(env.delivered) != 0 {
		t.Fatalf("dropped message must not be delivered: %+v", env.delivered)
	}
}

func TestRouteRoomScope(t *testing.T) {
	env, rt := routerEnv(t)

	if err := rt.Route(&Message{From: "p1", To: ScopeRoom, Text: "hi"}); err != nil {
		t.Fatalf("route: %v", err)
	}
	if len(env.delivered) != 1 {
		t.Fatalf("deliveries = %+v, want one", env.delivered)
	}
	d := env.delivered[0]
	if d.plane != "player" || len(d.to) != 1 || d.to[0] != "p2" {
		t.Fatalf("delivery = %+v, want player plane to p2 only", d)
	}
	if d.notice.Kind != NoticeMessage || d.notice.Message.Text != "hi" {
		t.Fatalf("notice = %+v, want the routed message", d.notice)
	}
}

func TestRouteRoomAdminPlane(t *testing.T) {
	env, rt := routerEnv(t)
	ch := env.channel
	reg := ch.Registry()

	mustAddClient(t, reg, "m2", map[string]any{"admin": true})
	if err := reg.MarkConnected("m2", "s-m2"); err != nil {
		t.Fatalf("mark connected: %v", err)
	}
	mustPlace(t, ch, "m2", "lobby")

	env.reset()
	if err := rt.Route(&Message{From: "m", To: ScopeRoom, Admin: true}); err != nil {
		t.Fatalf("route: %v", err)
	}
	if len(env.delivered) != 1 {
		t.Fatalf("deliveries = %+v, want one", env.delivered)
	}
	d := env.delivered[0]
	if d.plane != "admin" || len(d.to) != 1 || d.to[0] != "m2" {
		t.Fatalf("delivery = %+v, want admin plane to m2 only", d)
	}
}

func TestRouteStageUpdateRedirect(t *testing.T) {
	env, rt := routerEnv(t)
	ch := env.channel

	off := false
	if _, err := ch.CreateGameRoom(RoomConfig{
		Name:     "exam",
		GameName: "colony",
		ACM:      &ACMPatch{StageUpdate: &off, PlayerConnect: &off},
	}); err != nil {
		t.Fatalf("create game room: %v", err)
	}
	for _, id := range []string{"m", "p1", "p2"} {
		if err := ch.MoveClient(id, "exam", ""); err != nil {
			t.Fatalf("move %s: %v", id, err)
		}
	}

	env.reset()
	if err := rt.Route(&Message{From: "p1", To: ScopeRoom, Stage: true}); err != nil {
		t.Fatalf("route: %v", err)
	}
	if len(env.delivered) != 1 {
		t.Fatalf("deliveries = %+v, want one", env.delivered)
	}
	d := env.delivered[0]
	if d.plane != "admin" || len(d.to) != 1 || d.to[0] != "m" {
		t.Fatalf("delivery = %+v, want redirect to room admin m", d)
	}
}

func TestRouteChannelScope(t *testing.T) {
	env, rt := routerEnv(t)

	if err := rt.Route(&Message{From: "p1", To: ScopeChannel}); err != nil {
		t.Fatalf("route: %v", err)
	}
	got := sortedRecipients(env.delivered)
	if len(got) != 2 || got[0] != "p1" || got[1] != "p2" {
		t.Fatalf("recipients = %v, want all connected players", got)
	}
	if env.delivered[0].plane != "player" {
		t.Fatalf("plane = %q, want player", env.delivered[0].plane)
	}
}

func TestRouteRoomX(t *testing.T) {
	env, rt := routerEnv(t)
	ch := env.channel
	reg := ch.Registry()

	mustCreateRoom(t, ch, RoomBasic, RoomConfig{Name: "side"})
	mustAddClient(t, reg, "p3", nil)
	if err := reg.MarkConnected("p3", "s-p3"); err != nil {
		t.Fatalf("mark connected: %v", err)
	}
	mustPlace(t, ch, "p3", "side")

	env.reset()
	if err := rt.Route(&Message{From: "p1", To: ScopeRoomX, Target: "side"}); err != nil {
		t.Fatalf("route: %v", err)
	}
	if len(env.delivered) != 1 || env.delivered[0].to[0] != "p3" {
		t.Fatalf("deliveries = %+v, want p3 only", env.delivered)
	}

	env.reset()
	err := rt.Route(&Message{From: "p1", To: ScopeRoomX, Target: "nowhere"})
	if !errors.Is(err, ErrRouting) {
		t.Fatalf("unknown target room: got %v", err)
	}
	if len(env.delivered) != 0 {
		t.Fatalf("dropped message must not be delivered: %+v", env.delivered)
	}
}

func TestRouteChannelXAndAll(t *testing.T) {
	env, rt := routerEnv(t)

	beta, err := env.server.CreateChannel(ChannelConfig{Name: "beta"}, nil)
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}
	beta.BindBuses(
		&recorder{plane: "beta-admin", env: env},
		&recorder{plane: "beta-player", env: env},
	)
	mustCreateRoom(t, beta, RoomBasic, RoomConfig{Name: "lobby"})
	mustAddClient(t, beta.Registry(), "b1", nil)
	if err := beta.Registry().MarkConnected("b1", "s-b1"); err != nil {
		t.Fatalf("mark connected: %v", err)
	}
	mustPlace(t, beta, "b1", "lobby")

	env.reset()
	if err := rt.Route(&Message{From: "p1", To: ScopeChannelX, Target: "beta"}); err != nil {
		t.Fatalf("route: %v", err)
	}
	if len(env.delivered) != 1 || env.delivered[0].plane != "beta-player" || env.delivered[0].to[0] != "b1" {
		t.Fatalf("deliveries = %+v, want beta player plane to b1", env.delivered)
	}

	env.reset()
	if err := rt.Route(&Message{From: "p1", To: ScopeAll}); err != nil {
		t.Fatalf("route: %v", err)
	}
	got := sortedRecipients(env.delivered)
	if len(got) != 3 || got[0] != "b1" || got[1] != "p1" || got[2] != "p2" {
		t.Fatalf("recipients = %v, want every connected player across channels", got)
	}
}

func TestRouteServerScope(t *testing.T) {
	env, rt := routerEnv(t)

	if err := rt.Route(&Message{From: "p1", To: ScopeServer}); err != nil {
		t.Fatalf("route: %v", err)
	}
	if len(env.delivered) != 1 {
		t.Fatalf("deliveries = %+v, want one", env.delivered)
	}
	d := env.delivered[0]
	if d.plane != "admin" || len(d.to) != 1 || d.to[0] != "m" {
		t.Fatalf("delivery = %+v, want admin plane to monitor m", d)
	}

	// Without a monitor the message is dropped without an error.
	if err := env.channel.Registry().MarkDisconnected("m"); err != nil {
		t.Fatalf("mark disconnected: %v", err)
	}
	env.reset()
	if err := rt.Route(&Message{From: "p1", To: ScopeServer}); err != nil {
		t.Fatalf("route without monitor: %v", err)
	}
	if len(env.delivered) != 0 {
		t.Fatalf("deliveries = %+v, want none", env.delivered)
	}
}

func TestRouteForwardAllMirror(t *testing.T) {
	env, rt := routerEnv(t)
	ch := env.channel

	on := true
	off := false
	if _, err := ch.CreateGameRoom(RoomConfig{
		Name:     "fwd",
		GameName: "colony",
		ACM:      &ACMPatch{ForwardAll: &on, PlayerConnect: &off},
	}); err != nil {
		t.Fatalf("create game room: %v", err)
	}
	for _, id := range []string{"m", "p1", "p2"} {
		if err := ch.MoveClient(id, "fwd", ""); err != nil {
			t.Fatalf("move %s: %v", id, err)
		}
	}

	env.reset()
	if err := rt.Route(&Message{From: "p1", To: ScopeRoom}); err != nil {
		t.Fatalf("route: %v", err)
	}
	if len(env.delivered) != 2 {
		t.Fatalf("deliveries = %+v, want peer delivery plus admin mirror", env.delivered)
	}
	if env.delivered[0].plane != "player" || env.delivered[0].to[0] != "p2" {
		t.Fatalf("first delivery = %+v, want player plane to p2", env.delivered[0])
	}
	if env.delivered[1].plane != "admin" || env.delivered[1].to[0] != "m" {
		t.Fatalf("second delivery = %+v, want admin mirror to m", env.delivered[1])
	}
}

func TestRouteServerScopeNoDoubleDelivery(t *testing.T) {
	env, rt := routerEnv(t)
	ch := env.channel

	on := true
	off := false
	if _, err := ch.CreateGameRoom(RoomConfig{
		Name:     "fwd",
		GameName: "colony",
		ACM:      &ACMPatch{ForwardAll: &on, PlayerConnect: &off},
	}); err != nil {
		t.Fatalf("create game room: %v", err)
	}
	for _, id := range []string{"m", "p1"} {
		if err := ch.MoveClient(id, "fwd", ""); err != nil {
			t.Fatalf("move %s: %v", id, err)
		}
	}

	env.reset()
	if err := rt.Route(&Message{From: "p1", To: ScopeServer}); err != nil {
		t.Fatalf("route: %v", err)
	}

	// m is both the monitor and the room admin; the mirror must not hand the
	// message over a second time.
	count := 0
	for _, d := range env.delivered {
		for _, id := range d.to {
			if id == "m" {
				count++
			}
		}
	}
	if count != 1 {
		t.Fatalf("m received the message %d times, want exactly once: %+v", count, env.delivered)
	}
}

// Routing reads room membership concurrently with moves triggered by other
// connections; run under -race.
func TestRouteConcurrentWithMoves(t *testing.T) {
	env, rt := routerEnv(t)
	ch := env.channel
	mustCreateRoom(t, ch, RoomBasic, RoomConfig{Name: "annex"})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = rt.Route(&Message{From: "p1", To: ScopeRoom})
			_ = rt.Route(&Message{From: "p1", To: ScopeServer})
		}
	}()
	go func() {
		defer wg.Done()
		rooms := []string{"annex", "lobby"}
		for i := 0; i < 200; i++ {
			if err := ch.MoveClient("p2", rooms[i%2], ""); err != nil {
				t.Errorf("move p2: %v", err)
				return
			}
		}
	}()
	wg.Wait()

	if room, _ := ch.Registry().GetClientRoom("p2"); room != "lobby" {
		t.Fatalf("p2 ended in %q, want lobby", room)
	}
}

func TestRouteDirectRecipient(t *testing.T) {
	env, rt := routerEnv(t)
	reg := env.channel.Registry()

	reg.RegisterRoomAlias("lobby", "buddy", "p2")

	if err := rt.Route(&Message{From: "p1", To: "buddy"}); err != nil {
		t.Fatalf("route: %v", err)
	}
	if len(env.delivered) != 1 {
		t.Fatalf("deliveries = %+v, want one", env.delivered)
	}
	d := env.delivered[0]
	if d.plane != "player" || len(d.to) != 1 || d.to[0] != "p2" {
		t.Fatalf("delivery = %+v, want player plane to p2", d)
	}

	env.reset()
	err := rt.Route(&Message{From: "p1", To: "stranger"})
	if !errors.Is(err, ErrRouting) {
		t.Fatalf("unresolved recipient: got %v", err)
	}
	if len(env.delivered) != 0 {
		t.Fatalf("dropped message must not be delivered: %+v", env.delivered)
	}
}
