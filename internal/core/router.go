package core

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Destination scopes understood by the router. Anything else in Message.To is
// treated as a client id or alias.
const (
	ScopeAll      = "ALL"
	ScopeChannel  = "CHANNEL"
	ScopeRoom     = "ROOM"
	ScopeChannelX = "CHANNEL_X"
	ScopeRoomX    = "ROOM_X"
	ScopeServer   = "SERVER"
)

// Message is an outbound client message before routing. Admin selects the
// delivery plane; Target names the channel or room for the X scopes.
type Message struct {
	From   string         `json:"from"`
	To     string         `json:"to"`
	Target string         `json:"target,omitempty"`
	Admin  bool           `json:"admin,omitempty"`
	Stage  bool           `json:"stage,omitempty"`
	Text   string         `json:"text,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
}

// Router resolves a message's destination scope to a bus and recipient set,
// applying the sender room's forwarding policy.
type Router struct {
	channel *Channel
	log     zerolog.Logger
}

// NewRouter builds a router for one channel.
func NewRouter(ch *Channel, logger *zerolog.Logger) *Router {
	sub := zerolog.Nop()
	if logger != nil {
		sub = logger.With().Str("module", "core.router").Str("channel", ch.Name()).Logger()
	}
	return &Router{channel: ch, log: sub}
}

// Route delivers msg to the recipients its destination scope selects.
// Failures are operational: the message is logged and dropped, state is never
// mutated.
func (rt *Router) Route(msg *Message) error {
	ch := rt.channel
	reg := ch.Registry()

	senderRoomName, _ := reg.GetClientRoom(msg.From)
	senderRoom, ok := ch.Room(senderRoomName)
	if !ok {
		rt.log.Warn().Str("from", msg.From).Str("to", msg.To).Msg("dropping message: sender room unknown")
		return fmt.Errorf("sender %q has no live room: %w", msg.From, ErrRouting)
	}

	notice := &Notice{Kind: NoticeMessage, Room: senderRoomName, Message: msg}
	delivered, err := rt.dispatch(msg, senderRoom, notice)
	if err != nil {
		return err
	}

	if senderRoom.ACM.ForwardAll {
		mirror := memberIDs(senderRoom.Admins(), msg.From)
		if msg.To == ScopeServer {
			// An admin explicitly addressed via SERVER must not receive the
			// message twice.
			mirror = subtract(mirror, delivered)
		}
		if len(mirror) > 0 {
			ch.bus(true).Deliver(notice, mirror...)
		}
	}
	return nil
}

// dispatch resolves the scope and delivers; it returns the ids delivered to
// on the admin plane so the forward-all overlay can avoid double delivery.
func (rt *Router) dispatch(msg *Message, senderRoom *Room, notice *Notice) ([]string, error) {
	ch := rt.channel
	reg := ch.Registry()

	switch msg.To {
	case ScopeAll:
		for _, c := range ch.server.Channels() {
			if ids := connectedIDs(c.Registry(), msg.Admin); len(ids) > 0 {
				c.bus(msg.Admin).Deliver(notice, ids...)
			}
		}
		return nil, nil

	case ScopeChannel:
		if ids := connectedIDs(reg, msg.Admin); len(ids) > 0 {
			ch.bus(msg.Admin).Deliver(notice, ids...)
		}
		return nil, nil

	case ScopeRoom:
		return nil, rt.deliverRoom(msg, senderRoom, notice)

	case ScopeChannelX:
		target, ok := ch.server.Channel(msg.Target)
		if !ok {
			rt.log.Warn().Str("channel", msg.Target).Msg("dropping message: unknown target channel")
			return nil, fmt.Errorf("channel %q: %w", msg.Target, ErrRouting)
		}
		if ids := connectedIDs(target.Registry(), msg.Admin); len(ids) > 0 {
			target.bus(msg.Admin).Deliver(notice, ids...)
		}
		return nil, nil

	case ScopeRoomX:
		room, ok := ch.Room(msg.Target)
		if !ok {
			rt.log.Warn().Str("room", msg.Target).Msg("dropping message: unknown target room")
			return nil, fmt.Errorf("room %q: %w", msg.Target, ErrRouting)
		}
		return nil, rt.deliverRoom(msg, room, notice)

	case ScopeServer:
		// The implicit admin-monitor pseudo-room: one monitor gets the
		// message directly, several get it as a group.
		monitors := recordIDs(reg.ConnectedAdmins())
		if len(monitors) == 0 {
			rt.log.Warn().Str("from", msg.From).Msg("dropping message: no admin monitor present")
			return nil, nil
		}
		ch.bus(true).Deliver(notice, monitors...)
		return monitors, nil

	default:
		id := reg.LookupClient(msg.To, senderRoom.Name)
		if id == "" {
			rt.log.Warn().Str("to", msg.To).Msg("dropping message: unresolved recipient")
			return nil, fmt.Errorf("recipient %q: %w", msg.To, ErrRouting)
		}
		ch.bus(msg.Admin).Deliver(notice, id)
		if msg.Admin {
			return []string{id}, nil
		}
		return nil, nil
	}
}

// deliverRoom sends to the room's partition matching the message's plane.
// Stage updates to players are redirected to the room's admins when the room
// policy keeps stage traffic away from peers.
func (rt *Router) deliverRoom(msg *Message, room *Room, notice *Notice) error {
	ch := rt.channel
	if msg.Admin {
		if ids := memberIDs(room.Admins(), msg.From); len(ids) > 0 {
			ch.bus(true).Deliver(notice, ids...)
		}
		return nil
	}
	if msg.Stage && !room.ACM.StageUpdate {
		if ids := memberIDs(room.Admins(), msg.From); len(ids) > 0 {
			ch.bus(true).Deliver(notice, ids...)
		}
		return nil
	}
	if ids := memberIDs(room.Players(), msg.From); len(ids) > 0 {
		ch.bus(false).Deliver(notice, ids...)
	}
	return nil
}

func connectedIDs(reg *Registry, admin bool) []string {
	if admin {
		return recordIDs(reg.ConnectedAdmins())
	}
	return recordIDs(reg.ConnectedPlayers())
}

func recordIDs(recs []*ClientRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}

func subtract(ids, remove []string) []string {
	if len(remove) == 0 {
		return ids
	}
	drop := make(map[string]struct{}, len(remove))
	for _, r := range remove {
		drop[r] = struct{}{}
	}
	out := ids[:0]
	for _, id := range ids {
		if _, ok := drop[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
