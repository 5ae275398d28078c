package core

// NoticeKind discriminates the payloads pushed onto a bus.
type NoticeKind int

const (
	// NoticeConnect announces a client arriving in a room.
	NoticeConnect NoticeKind = iota
	// NoticeDisconnect announces a client leaving a room.
	NoticeDisconnect
	// NoticePlayerList replaces the recipient's view of a room's players.
	NoticePlayerList
	// NoticeMessage carries a routed client message.
	NoticeMessage
)

// Notice is what the core hands to a bus. Peer-facing connect notices carry
// only the client id; admin-facing ones carry the full record.
type Notice struct {
	Kind     NoticeKind
	Room     string
	ClientID string
	Record   *ClientRecord
	Players  []*ClientRecord
	Message  *Message
}

// Bus is one logical delivery plane (admin or player). Deliver is
// fire-and-forget: the core never inspects delivery success.
type Bus interface {
	Deliver(n *Notice, to ...string)
}

// Disconnector tears down a client's transport session. Room destruction uses
// it to forcibly disconnect remaining members.
type Disconnector interface {
	Kick(clientID string)
}

// NopBus drops everything. Channels without a bound transport use it.
type NopBus struct{}

func (NopBus) Deliver(*Notice, ...string) {}
