package core

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Server is the process hub: it owns the channels, the process-wide room
// table, and the game catalog used to validate game rooms.
type Server struct {
	mu       sync.RWMutex
	channels map[string]*Channel
	rooms    map[string]*Room
	games    map[string]map[string]struct{}
	acm      ACM
	log      zerolog.Logger
}

// NewServer builds an empty server with the given default room policy.
func NewServer(defaultACM ACM, logger *zerolog.Logger) *Server {
	sub := zerolog.Nop()
	if logger != nil {
		sub = logger.With().Str("module", "core.server").Logger()
	}
	return &Server{
		channels: make(map[string]*Channel),
		rooms:    make(map[string]*Room),
		games:    make(map[string]map[string]struct{}),
		acm:      defaultACM,
		log:      sub,
	}
}

// RegisterGame adds a game and its treatments to the catalog.
func (s *Server) RegisterGame(name string, treatments ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.games[name]
	if !ok {
		set = make(map[string]struct{})
		s.games[name] = set
	}
	for _, t := range treatments {
		set[t] = struct{}{}
	}
}

// resolveGame validates a game/treatment descriptor against the catalog.
func (s *Server) resolveGame(game, treatment string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.games[game]
	if !ok {
		return fmt.Errorf("game %q: %w", game, ErrConfiguration)
	}
	if treatment != "" {
		if _, ok := set[treatment]; !ok {
			return fmt.Errorf("game %q treatment %q: %w", game, treatment, ErrConfiguration)
		}
	}
	return nil
}

// CreateChannel registers a new channel under name.
func (s *Server) CreateChannel(cfg ChannelConfig, logger *zerolog.Logger) (*Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.Name == "" {
		return nil, fmt.Errorf("empty channel name: %w", ErrInvalidArgument)
	}
	if _, ok := s.channels[cfg.Name]; ok {
		return nil, fmt.Errorf("channel %q: %w", cfg.Name, ErrNameCollision)
	}
	ch := newChannel(s, cfg, logger)
	s.channels[cfg.Name] = ch
	s.log.Info().Str("channel", cfg.Name).Msg("channel created")
	return ch, nil
}

// Channel returns the channel registered under name.
func (s *Server) Channel(name string) (*Channel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[name]
	return ch, ok
}

// Channels returns all registered channels.
func (s *Server) Channels() []*Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		out = append(out, ch)
	}
	return out
}

// RoomByID looks a room up in the process-wide room table.
func (s *Server) RoomByID(id string) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	return r, ok
}

// registerRoom mints a process-wide unique id for r and stores it in the
// global room table. Ids are never reused.
func (s *Server) registerRoom(r *Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < idGenRetries; i++ {
		id := uuid.NewString()
		if _, taken := s.rooms[id]; taken {
			continue
		}
		r.ID = id
		s.rooms[id] = r
		return nil
	}
	return fmt.Errorf("room id: %w", ErrIdentityGeneration)
}

func (s *Server) unregisterRoom(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, id)
}
