package core

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// ChannelConfig configures a channel at creation.
type ChannelConfig struct {
	Name  string
	Group string
	// MaxRooms caps the number of live rooms; zero means unlimited.
	MaxRooms int
	// ACM overrides the server's default room policy for rooms of this
	// channel.
	ACM *ACMPatch
}

// DestroyOptions controls how DestroyRoom disposes of remaining members.
// SubstituteRoom and DisconnectPlayers are mutually exclusive.
type DestroyOptions struct {
	SubstituteRoom    string
	IgnoreRunningGame bool
	DisconnectPlayers bool
}

// RoomHooks receives room lifecycle callbacks (setup/start of the game-stage
// collaborator). All callbacks are optional no-ops by default.
type RoomHooks interface {
	OnRoomCreated(r *Room)
}

// Channel is the controller for one tenant: it owns the registry, the room
// directory, and the authoritative move/notify logic between them. All
// mutations triggered by one inbound event run under the channel mutex and so
// appear atomic to other events on the same channel.
type Channel struct {
	mu       sync.RWMutex
	server   *Server
	name     string
	group    string
	registry *Registry
	rooms    map[string]*Room
	acm      ACM
	maxRooms int

	autoRoomCounter int
	entryRoom       string

	adminBus     Bus
	playerBus    Bus
	disconnector Disconnector
	hooks        RoomHooks

	log zerolog.Logger
}

func newChannel(s *Server, cfg ChannelConfig, logger *zerolog.Logger) *Channel {
	sub := zerolog.Nop()
	if logger != nil {
		sub = logger.With().Str("module", "core.channel").Str("channel", cfg.Name).Logger()
	}
	group := cfg.Group
	if group == "" {
		group = cfg.Name
	}
	return &Channel{
		server:    s,
		name:      cfg.Name,
		group:     group,
		registry:  NewRegistry(logger),
		rooms:     make(map[string]*Room),
		acm:       s.acm.Merge(cfg.ACM),
		maxRooms:  cfg.MaxRooms,
		adminBus:  NopBus{},
		playerBus: NopBus{},
		log:       sub,
	}
}

// Name returns the channel name.
func (ch *Channel) Name() string { return ch.name }

// Group returns the group prefix used to mint default room names.
func (ch *Channel) Group() string { return ch.group }

// Registry returns the channel's client registry.
func (ch *Channel) Registry() *Registry { return ch.registry }

// BindBuses attaches the admin and player delivery planes.
func (ch *Channel) BindBuses(admin, player Bus) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if admin != nil {
		ch.adminBus = admin
	}
	if player != nil {
		ch.playerBus = player
	}
}

// BindDisconnector attaches the transport teardown collaborator.
func (ch *Channel) BindDisconnector(d Disconnector) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.disconnector = d
}

// BindHooks attaches the room lifecycle collaborator.
func (ch *Channel) BindHooks(h RoomHooks) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.hooks = h
}

// SetEntryRoom names the room where connecting clients without an explicit
// target land. The room must already exist; naming a missing room is a
// contract violation.
func (ch *Channel) SetEntryRoom(name string) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if _, ok := ch.rooms[name]; !ok {
		return fmt.Errorf("entry room %q: %w", name, ErrUnknownRoom)
	}
	ch.entryRoom = name
	return nil
}

// EntryRoom returns the configured entry room name.
func (ch *Channel) EntryRoom() string {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return ch.entryRoom
}

// Room returns the live room registered under name.
func (ch *Channel) Room(name string) (*Room, bool) {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	r, ok := ch.rooms[name]
	return r, ok
}

// Rooms returns all live rooms of the channel.
func (ch *Channel) Rooms() []*Room {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	out := make([]*Room, 0, len(ch.rooms))
	for _, r := range ch.rooms {
		out = append(out, r)
	}
	return out
}

func (ch *Channel) bus(admin bool) Bus {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	if admin {
		return ch.adminBus
	}
	return ch.playerBus
}

// CreateGameRoom creates a game room. Without an explicit name, names of the
// form group+zero-padded counter are probed until a free one is found. An
// initial client list is moved in through the authoritative move path.
func (ch *Channel) CreateGameRoom(cfg RoomConfig) (*Room, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.maxRooms > 0 && len(ch.rooms) >= ch.maxRooms {
		ch.log.Warn().Int("max_rooms", ch.maxRooms).Msg("room cap reached, not creating room")
		return nil, ErrRoomLimit
	}
	if cfg.Name == "" {
		for {
			name := fmt.Sprintf("%s%03d", ch.group, ch.autoRoomCounter)
			ch.autoRoomCounter++
			if _, taken := ch.rooms[name]; !taken {
				cfg.Name = name
				break
			}
		}
	} else if _, taken := ch.rooms[cfg.Name]; taken {
		return nil, fmt.Errorf("room %q: %w", cfg.Name, ErrNameCollision)
	}
	if cfg.ParentName != "" {
		if _, ok := ch.rooms[cfg.ParentName]; !ok {
			return nil, fmt.Errorf("parent %q: %w", cfg.ParentName, ErrUnknownParent)
		}
	}
	cfg.Type = RoomGame
	if cfg.Group == "" {
		cfg.Group = ch.group
	}
	room, err := newRoom(ch, cfg)
	if err != nil {
		return nil, err
	}
	ch.rooms[room.Name] = room
	if cfg.ParentName != "" {
		ch.rooms[cfg.ParentName].addChild(room.Name)
	}
	ch.log.Info().Str("room", room.Name).Str("game", cfg.GameName).Msg("game room created")

	for _, c := range cfg.Clients {
		if err := ch.moveLocked(c, room.Name, ""); err != nil {
			ch.log.Warn().Err(err).Str("client", c).Str("room", room.Name).Msg("could not move client into new room")
		}
	}
	return room, nil
}

// CreateRoom creates a non-game room of type t and runs its lifecycle hooks.
func (ch *Channel) CreateRoom(t RoomType, cfg RoomConfig) (*Room, error) {
	ch.mu.Lock()
	room, err := ch.createRoomLocked(t, cfg)
	hooks := ch.hooks
	ch.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if hooks != nil {
		hooks.OnRoomCreated(room)
	}
	return room, nil
}

func (ch *Channel) createRoomLocked(t RoomType, cfg RoomConfig) (*Room, error) {
	cfg.Type = t
	if cfg.Name == "" {
		cfg.Name = DefaultRoomName(t)
	}
	if cfg.Group == "" {
		cfg.Group = ch.group
	}
	if _, taken := ch.rooms[cfg.Name]; taken {
		return nil, fmt.Errorf("room %q: %w", cfg.Name, ErrNameCollision)
	}
	room, err := newRoom(ch, cfg)
	if err != nil {
		return nil, err
	}
	ch.rooms[room.Name] = room
	if cfg.ParentName != "" {
		if parent, ok := ch.rooms[cfg.ParentName]; ok {
			parent.addChild(room.Name)
		}
	}
	ch.log.Info().Str("room", room.Name).Str("type", string(t)).Msg("room created")
	return room, nil
}

// DestroyRoom removes a room after disposing of its members. It refuses
// (false, nil) when the room's game is still running without
// IgnoreRunningGame, or when players remain without a disposition policy.
// Children are reparented to the destroyed room's own parent.
func (ch *Channel) DestroyRoom(name string, opts DestroyOptions) (bool, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	room, ok := ch.rooms[name]
	if !ok {
		return false, fmt.Errorf("room %q: %w", name, ErrUnknownRoom)
	}
	if opts.SubstituteRoom != "" && opts.DisconnectPlayers {
		return false, fmt.Errorf("substitute room and disconnect players: %w", ErrIncompatibleOptions)
	}
	if opts.SubstituteRoom != "" {
		if _, ok := ch.rooms[opts.SubstituteRoom]; !ok {
			return false, fmt.Errorf("substitute room %q: %w", opts.SubstituteRoom, ErrInvalidArgument)
		}
	}
	if !room.isGameOverLocked() && !opts.IgnoreRunningGame {
		ch.log.Warn().Str("room", name).Msg("destroy refused: game still running")
		return false, nil
	}
	if room.playerCountLocked() > 0 && opts.SubstituteRoom == "" && !opts.DisconnectPlayers {
		ch.log.Warn().Str("room", name).Msg("destroy refused: players remain and no disposition given")
		return false, nil
	}

	for _, rec := range room.membersLocked() {
		switch {
		case rec.Admin:
			ch.evictLocked(room, rec)
		case opts.SubstituteRoom != "":
			if err := ch.moveLocked(rec.ID, opts.SubstituteRoom, room.Name); err != nil {
				ch.log.Warn().Err(err).Str("client", rec.ID).Msg("substitute move failed, disconnecting")
				ch.evictLocked(room, rec)
			}
		default:
			ch.evictLocked(room, rec)
		}
	}

	if parent, ok := ch.rooms[room.ParentName]; ok {
		parent.removeChild(room.Name)
	}
	for _, childName := range room.childrenLocked() {
		child, ok := ch.rooms[childName]
		if !ok {
			continue
		}
		child.ParentName = room.ParentName
		if parent, ok := ch.rooms[room.ParentName]; ok {
			parent.addChild(childName)
		}
	}

	delete(ch.rooms, name)
	ch.server.unregisterRoom(room.ID)
	ch.log.Info().Str("room", name).Msg("room destroyed")
	return true, nil
}

// evictLocked forcibly disconnects a member of a room being destroyed.
func (ch *Channel) evictLocked(room *Room, rec *ClientRecord) {
	room.removeClient(rec.ID)
	ch.registry.MoveClientBack(rec.ID)
	if err := ch.registry.MarkDisconnected(rec.ID); err != nil {
		ch.log.Warn().Err(err).Str("client", rec.ID).Msg("mark disconnected failed")
	}
	if ch.disconnector != nil {
		ch.disconnector.Kick(rec.ID)
	}
}

// MoveClient is the authoritative move: it updates room membership, the
// registry room-stack, and fires the notification matrix. fromRoom may be
// empty, in which case the registry's current room for the client is used.
func (ch *Channel) MoveClient(clientOrAlias, toRoom, fromRoom string) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.moveLocked(clientOrAlias, toRoom, fromRoom)
}

func (ch *Channel) moveLocked(clientOrAlias, toRoom, fromRoom string) error {
	id := ch.registry.LookupClient(clientOrAlias, "")
	if id == "" {
		return fmt.Errorf("move %q: %w", clientOrAlias, ErrUnknownClient)
	}
	if fromRoom == "" {
		fromRoom, _ = ch.registry.GetClientRoom(id)
	}
	oldRoom, ok := ch.rooms[fromRoom]
	if !ok {
		return fmt.Errorf("move %q from %q: %w", id, fromRoom, ErrInvalidState)
	}
	newRoom, ok := ch.rooms[toRoom]
	if !ok {
		return fmt.Errorf("move %q to %q: %w", id, toRoom, ErrUnknownRoom)
	}
	if !oldRoom.hasClientLocked(id) {
		return fmt.Errorf("move %q from %q: %w", id, fromRoom, ErrNotAMember)
	}

	rec, _ := oldRoom.removeClient(id)
	priorPlayers := newRoom.playersLocked()
	newRoom.addClient(rec)
	if err := ch.registry.MoveClient(id, toRoom); err != nil {
		return err
	}

	// Leaving notice first so observers of both rooms see a causal order.
	ch.notifyDisconnect(oldRoom, rec, oldRoom.ACM.PlayerConnect)
	ch.notifyConnect(newRoom, rec)

	// A mover that will get no fresh list in the new room must not keep the
	// old room's player list.
	if !rec.Admin && oldRoom.ACM.PlayerConnect &&
		(!newRoom.ACM.PlayerConnect || len(priorPlayers) == 0) {
		ch.playerBus.Deliver(&Notice{Kind: NoticePlayerList, Room: toRoom}, id)
	}
	return nil
}

// PlaceClient is the silent first-time placement path: membership and
// room-stack are updated, no bus traffic is generated. Returns false when the
// room is unknown or the client is already present in some room.
func (ch *Channel) PlaceClient(clientID, roomName string) bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.placeLocked(clientID, roomName)
}

func (ch *Channel) placeLocked(clientID, roomName string) bool {
	room, ok := ch.rooms[roomName]
	if !ok {
		ch.log.Warn().Str("room", roomName).Msg("place refused: unknown room")
		return false
	}
	rec, ok := ch.registry.GetClient(clientID)
	if !ok {
		ch.log.Warn().Str("client", clientID).Msg("place refused: unknown client")
		return false
	}
	for _, r := range ch.rooms {
		if r.hasClientLocked(clientID) {
			ch.log.Warn().Str("client", clientID).Str("room", r.Name).Msg("place refused: already present in a room")
			return false
		}
	}
	room.addClient(rec)
	if err := ch.registry.MoveClient(clientID, roomName); err != nil {
		room.removeClient(clientID)
		return false
	}
	return true
}

// Connect handles a transport-level connection: the client is marked
// connected, placed into the target room, and the arrival notices of the
// notification matrix are fired.
func (ch *Channel) Connect(clientID, sessionID, roomName string) (*ClientRecord, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	rec, ok := ch.registry.GetClient(clientID)
	if !ok {
		return nil, fmt.Errorf("connect %q: %w", clientID, ErrUnknownClient)
	}
	room, ok := ch.rooms[roomName]
	if !ok {
		return nil, fmt.Errorf("connect %q to %q: %w", clientID, roomName, ErrUnknownRoom)
	}
	if err := ch.registry.MarkConnected(clientID, sessionID); err != nil {
		return nil, err
	}
	if !room.hasClientLocked(clientID) {
		if !ch.placeLocked(clientID, roomName) {
			return nil, fmt.Errorf("connect %q to %q: %w", clientID, roomName, ErrInvalidState)
		}
	}
	ch.notifyConnect(room, rec)
	return rec, nil
}

// Disconnect handles a transport-level disconnection: membership in the
// current room is dropped, the record is marked disconnected-but-remembered,
// and the departure notices are fired.
func (ch *Channel) Disconnect(clientOrAlias string) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	id := ch.registry.LookupClient(clientOrAlias, "")
	if id == "" {
		return fmt.Errorf("disconnect %q: %w", clientOrAlias, ErrUnknownClient)
	}
	rec, _ := ch.registry.GetClient(id)
	if err := ch.registry.MarkDisconnected(id); err != nil {
		return err
	}
	roomName, ok := ch.registry.GetClientRoom(id)
	if !ok {
		return nil
	}
	room, ok := ch.rooms[roomName]
	if !ok {
		return nil
	}
	if _, present := room.removeClient(id); present {
		ch.notifyDisconnect(room, rec, room.ACM.PlayerDisconnect)
	}
	return nil
}

// notifyConnect fires the arrival side of the notification matrix: room
// admins always get the full record; peers get an id-only notice when the
// room policy allows it and the arriving player is not alone; the arriving
// player gets the full player list with itself excluded.
func (ch *Channel) notifyConnect(room *Room, rec *ClientRecord) {
	if admins := memberIDs(room.adminsLocked(), rec.ID); len(admins) > 0 {
		ch.adminBus.Deliver(&Notice{
			Kind:     NoticeConnect,
			Room:     room.Name,
			ClientID: rec.ID,
			Record:   rec.Clone(),
		}, admins...)
	}
	if rec.Admin {
		return
	}
	if !room.ACM.PlayerConnect || room.playerCountLocked() <= 1 {
		return
	}
	peers := memberIDs(room.playersLocked(), rec.ID)
	ch.playerBus.Deliver(&Notice{
		Kind:     NoticeConnect,
		Room:     room.Name,
		ClientID: rec.ID,
	}, peers...)

	others := make([]*ClientRecord, 0, len(peers))
	for _, p := range room.playersLocked() {
		if p.ID != rec.ID {
			others = append(others, p.Clone())
		}
	}
	ch.playerBus.Deliver(&Notice{
		Kind:    NoticePlayerList,
		Room:    room.Name,
		Players: others,
	}, rec.ID)
}

// notifyDisconnect fires the departure side: room admins always get the full
// record, peers get an id-only notice when notifyPeers is set.
func (ch *Channel) notifyDisconnect(room *Room, rec *ClientRecord, notifyPeers bool) {
	if admins := memberIDs(room.adminsLocked(), rec.ID); len(admins) > 0 {
		ch.adminBus.Deliver(&Notice{
			Kind:     NoticeDisconnect,
			Room:     room.Name,
			ClientID: rec.ID,
			Record:   rec.Clone(),
		}, admins...)
	}
	if rec.Admin || !notifyPeers {
		return
	}
	if peers := memberIDs(room.playersLocked(), rec.ID); len(peers) > 0 {
		ch.playerBus.Deliver(&Notice{
			Kind:     NoticeDisconnect,
			Room:     room.Name,
			ClientID: rec.ID,
		}, peers...)
	}
}

func memberIDs(recs []*ClientRecord, exclude string) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		if r.ID != exclude {
			out = append(out, r.ID)
		}
	}
	return out
}
