package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/fieldlab/arena-server/internal/auth"
	"github.com/fieldlab/arena-server/internal/core"
	"github.com/fieldlab/arena-server/internal/proto"
	"github.com/fieldlab/arena-server/internal/utils"
)

const helloTimeout = 10 * time.Second

// WSHandler upgrades HTTP connections and bridges them to the channel: the
// hello handshake authenticates and places the client, inbound messages go
// through the router, and bus events flow back over the socket.
type WSHandler struct {
	channel   *core.Channel
	router    *core.Router
	auth      *auth.Service
	adminHub  *SessionHub
	playerHub *SessionHub
	log       *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(ch *core.Channel, router *core.Router, authService *auth.Service, adminHub, playerHub *SessionHub, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{
		channel:   ch,
		router:    router,
		auth:      authService,
		adminHub:  adminHub,
		playerHub: playerHub,
		log:       logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	rec, sess, err := h.handshake(ctx, conn)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws handshake failed")
		conn.Close(websocket.StatusPolicyViolation, "handshake failed")
		return
	}

	hub := h.playerHub
	if rec.Admin {
		hub = h.adminHub
	}
	hub.register(sess)
	defer func() {
		hub.unregister(sess)
		if err := h.channel.Disconnect(rec.ID); err != nil {
			h.log.Warn().Err(err).Str("client", rec.ID).Msg("disconnect bookkeeping failed")
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, rec)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, sess)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// handshake reads the hello message, validates the token, makes sure the
// identity is registered, and places the client into its target room.
func (h *WSHandler) handshake(ctx context.Context, conn *websocket.Conn) (*core.ClientRecord, *session, error) {
	ctx, cancel := context.WithTimeout(ctx, helloTimeout)
	defer cancel()

	var inbound proto.Inbound
	if err := wsjson.Read(ctx, conn, &inbound); err != nil {
		return nil, nil, fmt.Errorf("read hello: %w", err)
	}
	if inbound.Type != proto.InboundTypeHello {
		return nil, nil, fmt.Errorf("expected hello, got %q", inbound.Type)
	}
	var hello proto.HelloData
	if err := json.Unmarshal(inbound.Data, &hello); err != nil {
		return nil, nil, fmt.Errorf("decode hello: %w", err)
	}

	claims, err := h.auth.ValidateToken(hello.Token)
	if err != nil {
		return nil, nil, fmt.Errorf("validate token: %w", err)
	}

	registry := h.channel.Registry()
	rec, ok := registry.GetClient(claims.ClientID)
	if !ok {
		rec, err = registry.AddClient(claims.ClientID, map[string]any{"admin": claims.Admin})
		if err != nil {
			return nil, nil, fmt.Errorf("register client: %w", err)
		}
	}

	room := hello.Room
	if room == "" {
		room = h.channel.EntryRoom()
	}
	sessionID := utils.NewID()
	if _, err := h.channel.Connect(rec.ID, sessionID, room); err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}

	sess := &session{
		clientID:  rec.ID,
		sessionID: sessionID,
		events:    make(chan *proto.Outbound, sessionBuffer),
		closed:    make(chan struct{}),
	}
	return rec, sess, nil
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, rec *core.ClientRecord) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}
		if inbound.Type != proto.InboundTypeMsg {
			if err := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: &proto.Error{Code: core.ErrCodeInvalidArgument, Msg: "unknown message type"},
			}); err != nil {
				return err
			}
			continue
		}
		var data proto.MsgData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			h.log.Debug().Err(err).Str("client", rec.ID).Msg("bad msg payload")
			continue
		}
		msg := &core.Message{
			From:   rec.ID,
			To:     data.To,
			Target: data.Target,
			Admin:  rec.Admin,
			Stage:  data.Stage,
			Text:   data.Text,
			Data:   data.Data,
		}
		if err := h.router.Route(msg); err != nil {
			// Routing failures are operational: report and keep the session.
			if writeErr := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: &proto.Error{Code: core.ErrorCode(err), Msg: err.Error()},
			}); writeErr != nil {
				return writeErr
			}
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sess *session) error {
	for {
		select {
		case event, ok := <-sess.events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, event); err != nil {
				return err
			}
		case <-sess.closed:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
