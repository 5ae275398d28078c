package core

import (
	"fmt"
	"strings"

	"github.com/fieldlab/arena-server/internal/collection"
)

// RoomType is one of the fixed room kinds a channel can host.
type RoomType string

const (
	RoomBasic        RoomType = "basic"
	RoomWaiting      RoomType = "waiting"
	RoomRequirements RoomType = "requirements"
	RoomGame         RoomType = "game"
	RoomGarage       RoomType = "garage"
)

func validRoomType(t RoomType) bool {
	switch t {
	case RoomBasic, RoomWaiting, RoomRequirements, RoomGame, RoomGarage:
		return true
	}
	return false
}

// ACM is a room's admission/notification policy.
type ACM struct {
	PlayerConnect    bool `mapstructure:"player_connect" yaml:"player_connect"`
	PlayerDisconnect bool `mapstructure:"player_disconnect" yaml:"player_disconnect"`
	StageUpdate      bool `mapstructure:"stage_update" yaml:"stage_update"`
	ForwardAll       bool `mapstructure:"forward_all" yaml:"forward_all"`
}

// ACMPatch overrides individual policy flags at room creation.
type ACMPatch struct {
	PlayerConnect    *bool
	PlayerDisconnect *bool
	StageUpdate      *bool
	ForwardAll       *bool
}

// Merge applies the non-nil fields of p over a copy of the defaults.
func (a ACM) Merge(p *ACMPatch) ACM {
	if p == nil {
		return a
	}
	if p.PlayerConnect != nil {
		a.PlayerConnect = *p.PlayerConnect
	}
	if p.PlayerDisconnect != nil {
		a.PlayerDisconnect = *p.PlayerDisconnect
	}
	if p.StageUpdate != nil {
		a.StageUpdate = *p.StageUpdate
	}
	if p.ForwardAll != nil {
		a.ForwardAll = *p.ForwardAll
	}
	return a
}

// GameState is the narrow window into the game-stage collaborator. The
// controller only ever asks whether a room's game has finished.
type GameState interface {
	IsGameOver() bool
}

// RoomConfig configures room creation.
type RoomConfig struct {
	Type       RoomType
	Name       string
	Group      string
	ParentName string
	// Clients are moved into the new room through the authoritative move
	// path once the room is registered.
	Clients    []string
	ACM        *ACMPatch
	GameName   string
	Treatment  string
	LogicPath  string
	ClientPath string
}

// Room is a named membership container. Its id is unique across the whole
// process; its name is unique within the owning channel while the room lives.
type Room struct {
	ID         string
	Name       string
	Type       RoomType
	Group      string
	ParentName string
	ACM        ACM

	GameName   string
	Treatment  string
	LogicPath  string
	ClientPath string

	channel  *Channel
	children []string
	members  *collection.Collection[*ClientRecord]
	game     GameState
}

// newRoom validates the config, registers the room in the server's global
// room table, and returns it with empty membership. It does not register the
// name in the channel's directory; the controller does that.
func newRoom(ch *Channel, cfg RoomConfig) (*Room, error) {
	if !validRoomType(cfg.Type) {
		return nil, fmt.Errorf("room type %q: %w", cfg.Type, ErrInvalidArgument)
	}
	if cfg.Type == RoomGame {
		if err := ch.server.resolveGame(cfg.GameName, cfg.Treatment); err != nil {
			return nil, err
		}
	}
	members := collection.New(func(c *ClientRecord) string { return c.ID })
	members.DefineView(viewAdmins, func(c *ClientRecord) bool { return c.Admin })
	members.DefineView(viewPlayers, func(c *ClientRecord) bool { return !c.Admin })

	r := &Room{
		Name:       cfg.Name,
		Type:       cfg.Type,
		Group:      cfg.Group,
		ParentName: cfg.ParentName,
		ACM:        ch.acm.Merge(cfg.ACM),
		GameName:   cfg.GameName,
		Treatment:  cfg.Treatment,
		LogicPath:  cfg.LogicPath,
		ClientPath: cfg.ClientPath,
		channel:    ch,
		members:    members,
	}
	if err := ch.server.registerRoom(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Channel returns the owning channel.
func (r *Room) Channel() *Channel { return r.channel }

// SetGameState attaches the game-stage collaborator's state handle.
func (r *Room) SetGameState(g GameState) {
	r.channel.mu.Lock()
	defer r.channel.mu.Unlock()
	r.game = g
}

// Membership, children, and game state are guarded by the owning channel's
// mutex. The exported accessors take its read lock; the *Locked variants are
// for controller code that already holds it.

// IsGameOver reports whether the room's game has finished. Non-game rooms and
// game rooms without an attached stage sequencer count as finished.
func (r *Room) IsGameOver() bool {
	r.channel.mu.RLock()
	defer r.channel.mu.RUnlock()
	return r.isGameOverLocked()
}

func (r *Room) isGameOverLocked() bool {
	if r.Type != RoomGame || r.game == nil {
		return true
	}
	return r.game.IsGameOver()
}

func (r *Room) addClient(rec *ClientRecord) bool {
	return r.members.Insert(rec)
}

func (r *Room) removeClient(id string) (*ClientRecord, bool) {
	return r.members.RemoveByKey(id)
}

// HasClient reports whether the client is a member of this room.
func (r *Room) HasClient(id string) bool {
	r.channel.mu.RLock()
	defer r.channel.mu.RUnlock()
	return r.hasClientLocked(id)
}

func (r *Room) hasClientLocked(id string) bool {
	return r.members.Has(id)
}

// Client returns the member record stored under id.
func (r *Room) Client(id string) (*ClientRecord, bool) {
	r.channel.mu.RLock()
	defer r.channel.mu.RUnlock()
	return r.members.Get(id)
}

// Members returns all member records.
func (r *Room) Members() []*ClientRecord {
	r.channel.mu.RLock()
	defer r.channel.mu.RUnlock()
	return r.membersLocked()
}

func (r *Room) membersLocked() []*ClientRecord { return r.members.Values() }

// Admins returns the admin partition of the membership.
func (r *Room) Admins() []*ClientRecord {
	r.channel.mu.RLock()
	defer r.channel.mu.RUnlock()
	return r.adminsLocked()
}

func (r *Room) adminsLocked() []*ClientRecord { return r.members.View(viewAdmins) }

// Players returns the player partition of the membership.
func (r *Room) Players() []*ClientRecord {
	r.channel.mu.RLock()
	defer r.channel.mu.RUnlock()
	return r.playersLocked()
}

func (r *Room) playersLocked() []*ClientRecord { return r.members.View(viewPlayers) }

// PlayerCount returns the number of player members.
func (r *Room) PlayerCount() int {
	r.channel.mu.RLock()
	defer r.channel.mu.RUnlock()
	return r.playerCountLocked()
}

func (r *Room) playerCountLocked() int { return len(r.playersLocked()) }

// Parent returns the current parent room name. Destroying a room reparents its
// children, so the value can change over the room's lifetime.
func (r *Room) Parent() string {
	r.channel.mu.RLock()
	defer r.channel.mu.RUnlock()
	return r.ParentName
}

// Children returns the ordered set of child room names.
func (r *Room) Children() []string {
	r.channel.mu.RLock()
	defer r.channel.mu.RUnlock()
	return r.childrenLocked()
}

func (r *Room) childrenLocked() []string {
	out := make([]string, len(r.children))
	copy(out, r.children)
	return out
}

func (r *Room) addChild(name string) {
	for _, c := range r.children {
		if c == name {
			return
		}
	}
	r.children = append(r.children, name)
}

func (r *Room) removeChild(name string) bool {
	for i, c := range r.children {
		if c == name {
			r.children = append(r.children[:i], r.children[i+1:]...)
			return true
		}
	}
	return false
}

// DefaultRoomName returns the default name for a non-game room of type t.
func DefaultRoomName(t RoomType) string {
	return strings.ToLower(string(t))
}
