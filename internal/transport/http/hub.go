package http

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/fieldlab/arena-server/internal/core"
	"github.com/fieldlab/arena-server/internal/proto"
)

const sessionBuffer = 32

// session is one live WebSocket attachment of a client.
type session struct {
	clientID  string
	sessionID string
	events    chan *proto.Outbound
	closed    chan struct{}
	closeOnce sync.Once
}

func (s *session) close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// SessionHub maps client ids to live sessions and realizes both delivery
// planes of the core: Deliver is fire-and-forget, slow consumers are dropped.
// It also implements the disconnector used by room destruction.
type SessionHub struct {
	mu       sync.RWMutex
	sessions map[string]*session
	admin    bool
	log      zerolog.Logger
}

// NewSessionHub builds an empty hub for one delivery plane.
func NewSessionHub(admin bool, logger *zerolog.Logger) *SessionHub {
	sub := zerolog.Nop()
	if logger != nil {
		sub = logger.With().Str("module", "transport.hub").Bool("admin_plane", admin).Logger()
	}
	return &SessionHub{
		sessions: make(map[string]*session),
		admin:    admin,
		log:      sub,
	}
}

func (h *SessionHub) register(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.sessions[s.clientID]; ok {
		old.close()
	}
	h.sessions[s.clientID] = s
}

func (h *SessionHub) unregister(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.sessions[s.clientID]; ok && cur == s {
		delete(h.sessions, s.clientID)
	}
	s.close()
}

// Deliver pushes the notice to every recipient with a live session. The core
// never awaits delivery; events to slow consumers are dropped.
func (h *SessionHub) Deliver(n *core.Notice, to ...string) {
	out := outboundFromNotice(n, h.admin)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, id := range to {
		s, ok := h.sessions[id]
		if !ok {
			continue
		}
		select {
		case s.events <- out:
		default:
			h.log.Warn().Str("client", id).Msg("dropping event for slow consumer")
		}
	}
}

// Kick tears down the client's session, if any.
func (h *SessionHub) Kick(clientID string) {
	h.mu.RLock()
	s, ok := h.sessions[clientID]
	h.mu.RUnlock()
	if ok {
		s.close()
	}
}
