package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldlab/arena-server/internal/collection"
	"github.com/fieldlab/arena-server/internal/utils"
)

// View names defined on the registry's client collection.
const (
	viewAdmins              = "admins"
	viewPlayers             = "players"
	viewConnected           = "connected"
	viewDisconnected        = "disconnected"
	viewConnectedAdmins     = "connected_admins"
	viewConnectedPlayers    = "connected_players"
	viewDisconnectedAdmins  = "disconnected_admins"
	viewDisconnectedPlayers = "disconnected_players"
)

const idGenRetries = 100

// Profile is the credential pair checked by Authorize.
type Profile struct {
	ID  string
	Pwd string
}

// Registry owns the client records of one channel: identities, per-client
// room-stack history, and the room-scoped and global alias maps. All methods
// are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	clients *collection.Collection[*ClientRecord]

	// roomStacks holds, per client id, the ordered room history; the last
	// entry is the client's current room.
	roomStacks map[string][]string

	// roomAliases is room -> alias -> target, gameAliases is alias -> target.
	// Targets need not exist; dangling aliases simply fail to resolve.
	roomAliases map[string]map[string]string
	gameAliases map[string]string

	// Capacity-claim state: tag -> id, plus a monotonic scan cursor over the
	// insertion-ordered claim queue.
	tags       map[string]string
	claimQueue []string
	claimPos   int

	log zerolog.Logger
}

// NewRegistry builds an empty registry.
func NewRegistry(logger *zerolog.Logger) *Registry {
	clients := collection.New(func(c *ClientRecord) string { return c.ID })
	clients.DefineView(viewAdmins, func(c *ClientRecord) bool { return c.Admin })
	clients.DefineView(viewPlayers, func(c *ClientRecord) bool { return !c.Admin })
	clients.DefineView(viewConnected, func(c *ClientRecord) bool { return c.Connected })
	clients.DefineView(viewDisconnected, func(c *ClientRecord) bool { return c.Disconnected })
	clients.DefineView(viewConnectedAdmins, func(c *ClientRecord) bool { return c.Connected && c.Admin })
	clients.DefineView(viewConnectedPlayers, func(c *ClientRecord) bool { return c.Connected && !c.Admin })
	clients.DefineView(viewDisconnectedAdmins, func(c *ClientRecord) bool { return c.Disconnected && c.Admin })
	clients.DefineView(viewDisconnectedPlayers, func(c *ClientRecord) bool { return c.Disconnected && !c.Admin })

	sub := zerolog.Nop()
	if logger != nil {
		sub = logger.With().Str("module", "core.registry").Logger()
	}
	return &Registry{
		clients:     clients,
		roomStacks:  make(map[string][]string),
		roomAliases: make(map[string]map[string]string),
		gameAliases: make(map[string]string),
		tags:        make(map[string]string),
		log:         sub,
	}
}

// GenerateClientID mints an id distinct from every registered one.
func (r *Registry) GenerateClientID() (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := 0; i < idGenRetries; i++ {
		id := utils.NewID()
		if !r.clients.Has(id) {
			return id, nil
		}
	}
	return "", fmt.Errorf("client id: %w", ErrIdentityGeneration)
}

// AddClient registers a new record under id, materializing defaults over
// attrs, and initializes its empty room-stack.
func (r *Registry) AddClient(id string, attrs map[string]any) (*ClientRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addClientLocked(id, attrs)
}

func (r *Registry) addClientLocked(id string, attrs map[string]any) (*ClientRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("empty client id: %w", ErrInvalidArgument)
	}
	if r.clients.Has(id) {
		return nil, fmt.Errorf("client %q: %w", id, ErrDuplicateIdentity)
	}
	rec, err := NewClientRecord(id, attrs)
	if err != nil {
		return nil, err
	}
	r.clients.Insert(rec)
	r.roomStacks[id] = nil
	r.claimQueue = append(r.claimQueue, id)
	return rec, nil
}

// ImportClients adds each entry independently. A failing entry does not roll
// back prior ones; the per-entry errors are returned positionally.
func (r *Registry) ImportClients(entries []map[string]any) []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	errs := make([]error, len(entries))
	for i, entry := range entries {
		id, _ := entry["id"].(string)
		if _, err := r.addClientLocked(id, entry); err != nil {
			r.log.Warn().Err(err).Int("index", i).Msg("import client failed")
			errs[i] = err
		}
	}
	return errs
}

// RemoveClient evicts the client from every room on its stack (cleaning up
// room-scoped aliases on the way out), deletes global aliases targeting it,
// and finally drops the record and its stack.
func (r *Registry) RemoveClient(clientOrAlias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.resolveLocked(clientOrAlias, "")
	if id == "" {
		return fmt.Errorf("remove %q: %w", clientOrAlias, ErrUnknownClient)
	}
	for r.moveClientBackLocked(id) {
	}
	for alias, target := range r.gameAliases {
		if target == id {
			delete(r.gameAliases, alias)
		}
	}
	delete(r.roomStacks, id)
	r.clients.RemoveByKey(id)
	return nil
}

// MoveClient records that the client entered newRoom. Moving to the room the
// client is already in is a no-op. Leaving a room deregisters the room-scoped
// aliases that resolve directly to the client there.
func (r *Registry) MoveClient(clientOrAlias, newRoom string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.resolveLocked(clientOrAlias, "")
	if id == "" {
		return fmt.Errorf("move %q: %w", clientOrAlias, ErrUnknownClient)
	}
	stack := r.roomStacks[id]
	if len(stack) > 0 {
		if stack[len(stack)-1] == newRoom {
			return nil
		}
		r.deregisterClientRoomAliasesLocked(id, stack[len(stack)-1])
	}
	r.roomStacks[id] = append(stack, newRoom)
	return nil
}

// MoveClientBack pops the client's current room, returning to the previous
// one. Returns false on an already-empty stack; callers loop on this to fully
// evict a client.
func (r *Registry) MoveClientBack(clientOrAlias string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.resolveLocked(clientOrAlias, "")
	if id == "" {
		return false
	}
	return r.moveClientBackLocked(id)
}

func (r *Registry) moveClientBackLocked(id string) bool {
	stack := r.roomStacks[id]
	if len(stack) == 0 {
		return false
	}
	r.deregisterClientRoomAliasesLocked(id, stack[len(stack)-1])
	r.roomStacks[id] = stack[:len(stack)-1]
	return true
}

// UpdateClient merges patch onto the resolved record.
func (r *Registry) UpdateClient(clientOrAlias string, patch map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateClientLocked(clientOrAlias, patch)
}

func (r *Registry) updateClientLocked(clientOrAlias string, patch map[string]any) error {
	if patch == nil {
		return fmt.Errorf("nil patch: %w", ErrInvalidArgument)
	}
	id := r.resolveLocked(clientOrAlias, "")
	if id == "" {
		return fmt.Errorf("update %q: %w", clientOrAlias, ErrUnknownClient)
	}
	rec, ok := r.clients.Get(id)
	if !ok {
		return fmt.Errorf("update %q: %w", clientOrAlias, ErrUnknownClient)
	}
	return rec.apply(patch)
}

// MarkConnected flags the client as connected and binds its session id.
func (r *Registry) MarkConnected(clientOrAlias, sessionID string) error {
	return r.UpdateClient(clientOrAlias, map[string]any{
		"connected": true, "disconnected": false, "sid": sessionID,
	})
}

// MarkDisconnected flags the client as disconnected-but-remembered.
func (r *Registry) MarkDisconnected(clientOrAlias string) error {
	return r.UpdateClient(clientOrAlias, map[string]any{
		"connected": false, "disconnected": true,
	})
}

// MarkValid makes the slot usable for auto-assignment again.
func (r *Registry) MarkValid(clientOrAlias string) error {
	return r.UpdateClient(clientOrAlias, map[string]any{"valid": true})
}

// MarkInvalid makes the slot temporarily unusable for auto-assignment.
func (r *Registry) MarkInvalid(clientOrAlias string) error {
	return r.UpdateClient(clientOrAlias, map[string]any{"valid": false})
}

// CheckOut permanently retires the identity from authentication.
func (r *Registry) CheckOut(clientOrAlias string) error {
	return r.UpdateClient(clientOrAlias, map[string]any{"checkedOut": true})
}

// GetClient returns the record for a client id or alias.
func (r *Registry) GetClient(clientOrAlias string) (*ClientRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id := r.resolveLocked(clientOrAlias, "")
	if id == "" {
		return nil, false
	}
	return r.clients.Get(id)
}

// GetClientRoom returns the top of the client's room-stack.
func (r *Registry) GetClientRoom(clientOrAlias string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id := r.resolveLocked(clientOrAlias, "")
	if id == "" {
		return "", false
	}
	stack := r.roomStacks[id]
	if len(stack) == 0 {
		return "", false
	}
	return stack[len(stack)-1], true
}

// GetRoomIDs returns the ids of all clients whose current room is room.
func (r *Registry) GetRoomIDs(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, id := range r.clients.Keys() {
		stack := r.roomStacks[id]
		if len(stack) > 0 && stack[len(stack)-1] == room {
			out = append(out, id)
		}
	}
	return out
}

// RegisterRoomAlias binds alias to target within room. The target may be a
// client id, a global alias, or another alias in the same room, and need not
// exist yet.
func (r *Registry) RegisterRoomAlias(room, alias, target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.roomAliases[room]
	if m == nil {
		m = make(map[string]string)
		r.roomAliases[room] = m
	}
	m[alias] = target
}

// DeregisterRoomAlias removes alias from room. Removing the last alias drops
// the room's alias map entirely.
func (r *Registry) DeregisterRoomAlias(room, alias string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deregisterRoomAliasLocked(room, alias)
}

func (r *Registry) deregisterRoomAliasLocked(room, alias string) bool {
	m, ok := r.roomAliases[room]
	if !ok {
		return false
	}
	if _, ok := m[alias]; !ok {
		return false
	}
	delete(m, alias)
	if len(m) == 0 {
		delete(r.roomAliases, room)
	}
	return true
}

// DeregisterClientRoomAliases removes the aliases in room that resolve
// directly to the client.
func (r *Registry) DeregisterClientRoomAliases(clientOrAlias, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.resolveLocked(clientOrAlias, "")
	if id == "" {
		return
	}
	r.deregisterClientRoomAliasesLocked(id, room)
}

func (r *Registry) deregisterClientRoomAliasesLocked(id, room string) {
	m, ok := r.roomAliases[room]
	if !ok {
		return
	}
	for alias, target := range m {
		if target == id {
			r.deregisterRoomAliasLocked(room, alias)
		}
	}
}

// RegisterGameAlias binds a channel-global alias to target.
func (r *Registry) RegisterGameAlias(alias, target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gameAliases[alias] = target
}

// DeregisterGameAlias removes a channel-global alias.
func (r *Registry) DeregisterGameAlias(alias string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.gameAliases[alias]; !ok {
		return false
	}
	delete(r.gameAliases, alias)
	return true
}

// LookupClient resolves a client id or alias to a canonical client id.
// Room-scoped aliases are tried before global ones, and only when room is
// non-empty. Cycles in the alias graph resolve to "" rather than looping.
func (r *Registry) LookupClient(clientOrAlias, room string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolveLocked(clientOrAlias, room)
}

func (r *Registry) resolveLocked(candidate, room string) string {
	visited := make(map[string]struct{})
	for {
		if _, seen := visited[candidate]; seen {
			return ""
		}
		visited[candidate] = struct{}{}

		if room != "" {
			if m, ok := r.roomAliases[room]; ok {
				if next, ok := m[candidate]; ok {
					candidate = next
					continue
				}
			}
		}
		if r.clients.Has(candidate) {
			return candidate
		}
		if next, ok := r.gameAliases[candidate]; ok {
			candidate = next
			continue
		}
		return ""
	}
}

// Authorize validates a connection profile against the registry. It fails
// closed on unknown ids, password mismatch, checked-out identities, and
// invalidated slots that are not disconnected.
func (r *Registry) Authorize(profile Profile) (*ClientRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.clients.Get(profile.ID)
	if !ok {
		return nil, false
	}
	if rec.Pwd != "" && rec.Pwd != profile.Pwd {
		return nil, false
	}
	if rec.CheckedOut {
		return nil, false
	}
	if !rec.Valid && !rec.Disconnected {
		return nil, false
	}
	return rec, true
}

// ClaimID assigns tag to the next untagged, valid player slot and stamps it.
// Claiming an already-claimed tag returns the same record. The scan cursor is
// monotonic: slots skipped once are never revisited.
func (r *Registry) ClaimID(tag string) (*ClientRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.tags[tag]; ok {
		rec, live := r.clients.Get(id)
		return rec, live
	}
	for r.claimPos < len(r.claimQueue) {
		id := r.claimQueue[r.claimPos]
		r.claimPos++
		rec, ok := r.clients.Get(id)
		if !ok || rec.Admin || !rec.Valid || rec.Tag != "" {
			continue
		}
		rec.Tag = tag
		rec.TagDate = time.Now()
		r.tags[tag] = id
		r.log.Info().Str("tag", tag).Str("client_id", id).Msg("claimed slot")
		return rec, true
	}
	return nil, false
}

// Admins returns all admin records.
func (r *Registry) Admins() []*ClientRecord { return r.view(viewAdmins) }

// Players returns all non-admin records.
func (r *Registry) Players() []*ClientRecord { return r.view(viewPlayers) }

// Connected returns all connected records.
func (r *Registry) Connected() []*ClientRecord { return r.view(viewConnected) }

// Disconnected returns all disconnected-but-remembered records.
func (r *Registry) Disconnected() []*ClientRecord { return r.view(viewDisconnected) }

// ConnectedAdmins returns all connected admin records.
func (r *Registry) ConnectedAdmins() []*ClientRecord { return r.view(viewConnectedAdmins) }

// ConnectedPlayers returns all connected player records.
func (r *Registry) ConnectedPlayers() []*ClientRecord { return r.view(viewConnectedPlayers) }

// DisconnectedAdmins returns all disconnected admin records.
func (r *Registry) DisconnectedAdmins() []*ClientRecord { return r.view(viewDisconnectedAdmins) }

// DisconnectedPlayers returns all disconnected player records.
func (r *Registry) DisconnectedPlayers() []*ClientRecord { return r.view(viewDisconnectedPlayers) }

func (r *Registry) view(name string) []*ClientRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients.View(name)
}

// IDs returns all client ids.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients.Keys()
}

// SessionIDs returns the session ids of all records that have one.
func (r *Registry) SessionIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, rec := range r.clients.Values() {
		if rec.SessionID != "" {
			out = append(out, rec.SessionID)
		}
	}
	return out
}

// Records returns all client records.
func (r *Registry) Records() []*ClientRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients.Values()
}
