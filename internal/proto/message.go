package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeHello = "hello"
	InboundTypeMsg   = "msg"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventConnect    = "client_connected"
	EventDisconnect = "client_disconnected"
	EventPlayerList = "player_list"
	EventMessage    = "message"
)

// HelloData is sent by the client to introduce itself.
type HelloData struct {
	Token    string `json:"token"`
	Room     string `json:"room,omitempty"`
	Protocol int    `json:"protocol,omitempty"`
}

// MsgData is a routed message from the client. To is a scope constant or a
// client id/alias; Target names the channel or room for the X scopes.
type MsgData struct {
	To     string         `json:"to"`
	Target string         `json:"target,omitempty"`
	Stage  bool           `json:"stage,omitempty"`
	Text   string         `json:"text,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// ConnectEvent announces a client arriving in a room. Record is only present
// on the admin plane.
type ConnectEvent struct {
	Room   string `json:"room"`
	Client string `json:"client"`
	Record any    `json:"record,omitempty"`
}

// DisconnectEvent announces a client leaving a room.
type DisconnectEvent struct {
	Room   string `json:"room"`
	Client string `json:"client"`
	Record any    `json:"record,omitempty"`
}

// PlayerListEvent replaces the recipient's view of a room's players. An empty
// list is meaningful: it tells the client it is now alone.
type PlayerListEvent struct {
	Room    string `json:"room"`
	Players []any  `json:"players"`
}

// MessageEvent carries a routed client message.
type MessageEvent struct {
	Room string         `json:"room,omitempty"`
	From string         `json:"from"`
	Text string         `json:"text,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
