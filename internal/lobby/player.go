package lobby

import "math/rand"

// Player is one connected client. Created on a successful connect, destroyed
// on explicit disconnect or liveness expiry. The registry owns the canonical
// Player; rooms hold references by client and user id only.
type Player struct {
	// ClientID is the fleet-local opaque handle assigned at connect time.
	// Unique per connection.
	ClientID int64 `json:"client_id"`

	// UserID is the stable identity string. Unique per real user, survives
	// reconnects (a reconnect gets a fresh ClientID under the same UserID).
	UserID string `json:"user_id"`

	Username string `json:"username"`

	// RoomID is the room the player currently belongs to, empty when
	// unmatched.
	RoomID string `json:"room_id,omitempty"`

	// LastSeen is the logical tick of the player's last keep-alive or
	// request activity.
	LastSeen int64 `json:"-"`
}

// PlayerRegistry is the in-memory store of connected players keyed by client
// id, with a secondary index by user id.
//
// The registry is not safe for concurrent use on its own: the coordinator
// serializes all access (request dispatch and the sweep run on one lock), so
// the maps need no internal locking.
type PlayerRegistry struct {
	byClient map[int64]*Player
	byUser   map[string]int64
}

// NewPlayerRegistry creates an empty registry.
func NewPlayerRegistry() *PlayerRegistry {
	return &PlayerRegistry{
		byClient: make(map[int64]*Player),
		byUser:   make(map[string]int64),
	}
}

// Connect stores p under a fresh non-zero 64-bit client id and stamps its
// liveness to now. If the same user id is already connected, the previous
// connection's entry is dropped and its client id returned in replaced so
// the caller can evict the stale reference from any room.
//
// Connect itself never fails; gating (the accept-connections flag) is the
// caller's responsibility.
func (r *PlayerRegistry) Connect(p Player, now int64) (clientID int64, replaced int64) {
	if old, ok := r.byUser[p.UserID]; ok && p.UserID != "" {
		delete(r.byClient, old)
		delete(r.byUser, p.UserID)
		replaced = old
	}

	for {
		clientID = rand.Int63()
		if clientID == 0 {
			continue
		}
		if _, taken := r.byClient[clientID]; !taken {
			break
		}
	}

	p.ClientID = clientID
	p.LastSeen = now
	r.byClient[clientID] = &p
	if p.UserID != "" {
		r.byUser[p.UserID] = clientID
	}
	return clientID, replaced
}

// Touch refreshes the player's liveness stamp. Unknown ids are a no-op and
// report false.
func (r *PlayerRegistry) Touch(clientID, now int64) bool {
	p, ok := r.byClient[clientID]
	if !ok {
		return false
	}
	p.LastSeen = now
	return true
}

// TouchByUserID refreshes liveness through the user-id index. Used by the
// keep_list path, where a dedicated server reports users rather than client
// handles.
func (r *PlayerRegistry) TouchByUserID(userID string, now int64) bool {
	id, ok := r.byUser[userID]
	if !ok {
		return false
	}
	return r.Touch(id, now)
}

// Lookup returns the player for clientID, or ErrNotFound.
func (r *PlayerRegistry) Lookup(clientID int64) (*Player, error) {
	p, ok := r.byClient[clientID]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

// LookupByUserID returns the player for userID, or ErrNotFound.
func (r *PlayerRegistry) LookupByUserID(userID string) (*Player, error) {
	id, ok := r.byUser[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Lookup(id)
}

// Remove deletes the player and returns it. Room eviction is performed by
// the coordinator, which owns both registries.
func (r *PlayerRegistry) Remove(clientID int64) (*Player, bool) {
	p, ok := r.byClient[clientID]
	if !ok {
		return nil, false
	}
	delete(r.byClient, clientID)
	delete(r.byUser, p.UserID)
	return p, true
}

// Sweep removes every player whose last_seen is older than ttl ticks and
// returns the removed players. Running Sweep twice with no intervening
// activity removes nothing the second time.
func (r *PlayerRegistry) Sweep(now, ttl int64) []*Player {
	var removed []*Player
	for id, p := range r.byClient {
		if now-p.LastSeen > ttl {
			delete(r.byClient, id)
			delete(r.byUser, p.UserID)
			removed = append(removed, p)
		}
	}
	return removed
}

// Count returns the number of connected players.
func (r *PlayerRegistry) Count() int {
	return len(r.byClient)
}
