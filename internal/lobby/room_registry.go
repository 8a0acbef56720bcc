package lobby

import (
	"github.com/google/uuid"
)

// CreateDescriptor is the room-creation payload chosen by the creating
// client (or synthesized by the matchmaker).
type CreateDescriptor struct {
	Title     string     `json:"title"`
	Kind      ServerKind `json:"kind"`
	Capacity  int        `json:"capacity"`
	Visible   bool       `json:"visible"`
	Extra     string     `json:"extra,omitempty"`
	Permanent bool       `json:"permanent,omitempty"`
}

// RoomRegistry is the in-memory store of rooms. It enforces the join/start/
// quit rules and the room lifecycle; port bookkeeping and process control
// stay with the coordinator, which reacts to rooms this registry creates and
// deletes.
//
// Like PlayerRegistry, the registry relies on the coordinator to serialize
// access and carries no internal locking.
type RoomRegistry struct {
	rooms    map[string]*Room
	maxRooms int
	ownHost  string
}

// NewRoomRegistry creates an empty registry. maxRooms caps the number of
// simultaneously registered rooms; ownHost is this instance's fleet host
// identity, used to mark rooms whose process lives elsewhere as remote.
func NewRoomRegistry(maxRooms int, ownHost string) *RoomRegistry {
	return &RoomRegistry{
		rooms:    make(map[string]*Room),
		maxRooms: maxRooms,
		ownHost:  ownHost,
	}
}

// Create allocates a fresh room in Waiting state bound to the assigned
// host/port. The room is remote exactly when host differs from this
// instance's own identity. Returns ErrCapacityExceeded when the registry is
// already at its configured maximum.
//
// The creator is not joined here; callers join explicitly so matchmaking and
// remote adoption can share this path.
func (r *RoomRegistry) Create(desc CreateDescriptor, host string, port int, now int64) (*Room, error) {
	if len(r.rooms) >= r.maxRooms {
		return nil, ErrCapacityExceeded
	}
	if desc.Capacity <= 0 {
		desc.Capacity = 2
	}

	room := &Room{
		ID:           uuid.NewString(),
		Title:        desc.Title,
		Kind:         desc.Kind,
		Host:         host,
		Port:         port,
		State:        StateWaiting,
		Remote:       desc.Kind == KindDedicated && host != r.ownHost,
		Visible:      desc.Visible,
		Capacity:     desc.Capacity,
		Extra:        desc.Extra,
		Permanent:    desc.Permanent,
		LastActivity: now,
		CreatedAt:    now,
	}
	r.rooms[room.ID] = room
	return room.snapshot(), nil
}

// Adopt inserts a pre-built room, used when a peer asks this instance to run
// a game it scheduled: the peer keeps the member-facing entry, we keep a
// local record so the process shows up in our inventory. Capacity still
// applies.
func (r *RoomRegistry) Adopt(room *Room, now int64) error {
	if len(r.rooms) >= r.maxRooms {
		return ErrCapacityExceeded
	}
	if _, exists := r.rooms[room.ID]; exists {
		return nil // idempotent: a repeated start RPC is a no-op
	}
	room.adopted = true
	room.LastActivity = now
	room.CreatedAt = now
	r.rooms[room.ID] = room
	return nil
}

// Join adds the player to the room. Idempotent when the player is already a
// member. Requires the room not to have ended and to have space.
func (r *RoomRegistry) Join(p *Player, roomID string, now int64) (*Room, error) {
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	if room.HasMember(p.ClientID) {
		room.LastActivity = now
		return room.snapshot(), nil
	}
	if room.State == StateEnded {
		return nil, ErrRoomEnded
	}
	if room.IsFull() {
		return nil, ErrRoomFull
	}

	room.Members = append(room.Members, Member{
		ClientID: p.ClientID,
		UserID:   p.UserID,
		Username: p.Username,
	})
	room.LastActivity = now
	return room.snapshot(), nil
}

// Quit removes the player from the room. Allowed only while the room is
// still Waiting; once play has started, departure is handled by disconnect
// or expiry instead. When the last member leaves, the room is deleted and
// reported back so the caller can release its port.
func (r *RoomRegistry) Quit(clientID int64, roomID string, now int64) (room *Room, deleted bool, err error) {
	rm, ok := r.rooms[roomID]
	if !ok {
		return nil, false, ErrNotFound
	}
	if rm.State != StateWaiting {
		return nil, false, ErrStateConflict
	}
	if !rm.removeMember(clientID) {
		return nil, false, ErrNotFound
	}
	rm.LastActivity = now

	if len(rm.Members) == 0 {
		delete(r.rooms, roomID)
		return rm.snapshot(), true, nil
	}
	return rm.snapshot(), false, nil
}

// EvictMember removes clientID from every room it belongs to, deleting rooms
// that become empty. Used on disconnect and player expiry, where the
// Waiting-only rule of Quit does not apply.
func (r *RoomRegistry) EvictMember(clientID int64, now int64) (emptied []*Room) {
	for id, room := range r.rooms {
		if !room.removeMember(clientID) {
			continue
		}
		room.LastActivity = now
		if len(room.Members) == 0 {
			delete(r.rooms, id)
			emptied = append(emptied, room.snapshot())
		}
	}
	return emptied
}

// Start transitions the room from Waiting to Playing. Only the owner
// (members[0]) may start, and only once; the join secret is stored for late
// joiners to authenticate with. Launching the actual game-server process is
// the coordinator's reaction to a successful Start.
func (r *RoomRegistry) Start(clientID int64, roomID, joinSecret string, now int64) (*Room, error) {
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	owner, ok := room.Owner()
	if !ok || owner.ClientID != clientID {
		return nil, ErrUnauthorized
	}
	if room.State != StateWaiting {
		return nil, ErrStateConflict
	}

	room.State = StatePlaying
	room.JoinSecret = joinSecret
	room.LastActivity = now
	return room.snapshot(), nil
}

// AppendChat appends to the room's bounded 20-message ring.
func (r *RoomRegistry) AppendChat(roomID string, msg ChatMessage, now int64) (*Room, error) {
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	room.appendChat(msg)
	room.LastActivity = now
	return room.snapshot(), nil
}

// Touch refreshes the room's activity stamp.
func (r *RoomRegistry) Touch(roomID string, now int64) bool {
	room, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	room.LastActivity = now
	return true
}

// Get returns a snapshot of the room, or ErrNotFound.
func (r *RoomRegistry) Get(roomID string) (*Room, error) {
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	return room.snapshot(), nil
}

// Delete removes the room outright and returns its last snapshot.
func (r *RoomRegistry) Delete(roomID string) (*Room, bool) {
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, false
	}
	delete(r.rooms, roomID)
	return room.snapshot(), true
}

// Visible returns snapshots of all listable rooms, for refresh_list.
func (r *RoomRegistry) Visible() []*Room {
	out := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		if room.Visible {
			out = append(out, room.snapshot())
		}
	}
	return out
}

// LocalDedicated returns snapshots of the dedicated rooms whose process runs
// on this host. This is the inventory peers see through remote_info.
func (r *RoomRegistry) LocalDedicated() []*Room {
	var out []*Room
	for _, room := range r.rooms {
		if room.Kind == KindDedicated && !room.Remote && room.Host == r.ownHost {
			out = append(out, room.snapshot())
		}
	}
	return out
}

// MatchBucket finds a pending matchmaking bucket compatible with mode that
// still has space.
func (r *RoomRegistry) MatchBucket(mode string) (*Room, bool) {
	for _, room := range r.rooms {
		if room.Matchmaking && room.State == StateWaiting && room.Extra == mode && !room.IsFull() {
			return room.snapshot(), true
		}
	}
	return nil, false
}

// ExpiredBuckets returns matchmaking buckets that have waited past timeout
// ticks without reaching their minimum population.
func (r *RoomRegistry) ExpiredBuckets(now, timeout int64) []*Room {
	var out []*Room
	for _, room := range r.rooms {
		if room.Matchmaking && room.State == StateWaiting &&
			len(room.Members) < room.MatchMin && now-room.CreatedAt > timeout {
			out = append(out, room.snapshot())
		}
	}
	return out
}

// Sweep deletes rooms with zero members or whose last activity exceeds ttl
// ticks, returning their final snapshots so the caller can release ports and
// stop processes. Idempotent across back-to-back calls with no intervening
// activity.
func (r *RoomRegistry) Sweep(now, ttl int64) []*Room {
	var removed []*Room
	for id, room := range r.rooms {
		// Adopted records have no local members by construction; only the
		// activity window applies to them.
		if (len(room.Members) == 0 && !room.adopted) || now-room.LastActivity > ttl {
			delete(r.rooms, id)
			removed = append(removed, room.snapshot())
		}
	}
	return removed
}

// Count returns the number of registered rooms.
func (r *RoomRegistry) Count() int {
	return len(r.rooms)
}
