package http

import (
	"github.com/fieldlab/arena-server/internal/core"
	"github.com/fieldlab/arena-server/internal/proto"
)

// outboundFromNotice converts a core notice into its wire shape. Full records
// only ever travel the admin plane.
func outboundFromNotice(n *core.Notice, adminPlane bool) *proto.Outbound {
	out := &proto.Outbound{Type: proto.OutboundTypeEvent}

	switch n.Kind {
	case core.NoticeConnect:
		ev := proto.ConnectEvent{Room: n.Room, Client: n.ClientID}
		if adminPlane && n.Record != nil {
			ev.Record = n.Record
		}
		out.Event = proto.EventConnect
		out.Data = ev

	case core.NoticeDisconnect:
		ev := proto.DisconnectEvent{Room: n.Room, Client: n.ClientID}
		if adminPlane && n.Record != nil {
			ev.Record = n.Record
		}
		out.Event = proto.EventDisconnect
		out.Data = ev

	case core.NoticePlayerList:
		players := make([]any, 0, len(n.Players))
		for _, p := range n.Players {
			players = append(players, p)
		}
		out.Event = proto.EventPlayerList
		out.Data = proto.PlayerListEvent{Room: n.Room, Players: players}

	case core.NoticeMessage:
		ev := proto.MessageEvent{Room: n.Room}
		if n.Message != nil {
			ev.From = n.Message.From
			ev.Text = n.Message.Text
			ev.Data = n.Message.Data
		}
		out.Event = proto.EventMessage
		out.Data = ev
	}
	return out
}
