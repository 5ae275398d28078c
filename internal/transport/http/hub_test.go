package http

import (
	"testing"

	"github.com/fieldlab/arena-server/internal/core"
	"github.com/fieldlab/arena-server/internal/proto"
)

func newTestSession(clientID string) *session {
	return &session{
		clientID:  clientID,
		sessionID: "s-" + clientID,
		events:    make(chan *proto.Outbound, sessionBuffer),
		closed:    make(chan struct{}),
	}
}

func TestHubDeliver(t *testing.T) {
	hub := NewSessionHub(false, nil)
	s1 := newTestSession("p1")
	s2 := newTestSession("p2")
	hub.register(s1)
	hub.register(s2)

	hub.Deliver(&core.Notice{Kind: core.NoticeConnect, Room: "lobby", ClientID: "p3"}, "p1", "p2", "ghost")

	for _, s := range []*session{s1, s2} {
		select {
		case out := <-s.events:
			if out.Type != proto.OutboundTypeEvent || out.Event != proto.EventConnect {
				t.Fatalf("event = %+v, want connect event", out)
			}
		default:
			t.Fatalf("session %s got no event", s.clientID)
		}
	}
}

func TestHubDropsSlowConsumer(t *testing.T) {
	hub := NewSessionHub(false, nil)
	s := &session{
		clientID: "p1",
		events:   make(chan *proto.Outbound), // unbuffered, nobody reading
		closed:   make(chan struct{}),
	}
	hub.register(s)

	// Must not block.
	hub.Deliver(&core.Notice{Kind: core.NoticeConnect, Room: "lobby"}, "p1")
}

func TestHubRegisterReplacesSession(t *testing.T) {
	hub := NewSessionHub(false, nil)
	old := newTestSession("p1")
	hub.register(old)

	replacement := newTestSession("p1")
	hub.register(replacement)

	select {
	case <-old.closed:
	default:
		t.Fatal("stale session must be closed on re-register")
	}

	// Unregistering the stale session must not evict the replacement.
	hub.unregister(old)
	hub.Deliver(&core.Notice{Kind: core.NoticeConnect, Room: "lobby"}, "p1")
	select {
	case <-replacement.events:
	default:
		t.Fatal("replacement session got no event")
	}
}

func TestHubKick(t *testing.T) {
	hub := NewSessionHub(false, nil)
	s := newTestSession("p1")
	hub.register(s)

	hub.Kick("p1")
	select {
	case <-s.closed:
	default:
		t.Fatal("kicked session must be closed")
	}

	hub.Kick("ghost")
}

func TestOutboundFromNotice(t *testing.T) {
	rec := &core.ClientRecord{ID: "p1", Connected: true}
	n := &core.Notice{Kind: core.NoticeConnect, Room: "lobby", ClientID: "p1", Record: rec}

	out := outboundFromNotice(n, true)
	ev, ok := out.Data.(proto.ConnectEvent)
	if !ok || ev.Record == nil {
		t.Fatalf("admin plane data = %+v, want record attached", out.Data)
	}

	out = outboundFromNotice(n, false)
	ev, ok = out.Data.(proto.ConnectEvent)
	if !ok || ev.Record != nil {
		t.Fatalf("player plane data = %+v, want id-only", out.Data)
	}
	if ev.Client != "p1" || ev.Room != "lobby" {
		t.Fatalf("event = %+v, want p1 in lobby", ev)
	}

	// An empty player list still serializes as a list, not as absence.
	out = outboundFromNotice(&core.Notice{Kind: core.NoticePlayerList, Room: "lobby"}, false)
	list, ok := out.Data.(proto.PlayerListEvent)
	if !ok || list.Players == nil || len(list.Players) != 0 {
		t.Fatalf("player list data = %+v, want empty non-nil list", out.Data)
	}
}
