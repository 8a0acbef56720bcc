package lobby

import (
	"golang.org/x/exp/slices"
)

// ServerKind says where a room's gameplay runs.
type ServerKind string

const (
	// KindHosted rooms are served by one member's own connection
	// (peer-to-peer or relay-assisted). No process is launched for them.
	KindHosted ServerKind = "hosted"

	// KindDedicated rooms run on a separately-launched game-server process
	// bound to a specific host:port somewhere in the fleet.
	KindDedicated ServerKind = "dedicated"
)

// RoomState is the room lifecycle: Waiting → Playing → Ended. Ended is a
// terminal marker only; rooms never re-enter Waiting. In practice rooms are
// deleted from the registry once empty or expired rather than transitioned
// to Ended.
type RoomState string

const (
	StateWaiting RoomState = "waiting"
	StatePlaying RoomState = "playing"
	StateEnded   RoomState = "ended"
)

// chatLimit bounds the per-room chat ring.
const chatLimit = 20

// Member is a room's reference to a player. The player itself is owned by
// the PlayerRegistry; a member entry going stale (player expired) is healed
// by the sweep.
type Member struct {
	ClientID int64  `json:"client_id"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// ChatMessage is one entry in a room's bounded chat log.
type ChatMessage struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Text     string `json:"text"`
}

// Room is a matchable unit of play. Members[0], when present, is the
// authoritative owner of the room. For a live dedicated room the
// (Host, Port) pair is unique fleet-wide.
type Room struct {
	ID    string     `json:"id"`
	Title string     `json:"title"`
	Kind  ServerKind `json:"kind"`

	// Host is the fleet host identity the room is bound to; Port is its
	// game-server port (0 for hosted rooms).
	Host string `json:"host"`
	Port int    `json:"port"`

	State RoomState `json:"state"`

	// Remote is true when the dedicated process lives on a different lobby
	// host than the instance holding this registry entry.
	Remote bool `json:"remote,omitempty"`

	Visible  bool `json:"visible"`
	Capacity int  `json:"capacity"`

	Members []Member      `json:"members"`
	Chat    []ChatMessage `json:"chat,omitempty"`

	// JoinSecret is set when the owner starts the room and is how late
	// joiners authenticate against the game server.
	JoinSecret string `json:"join_secret,omitempty"`

	// Extra is an opaque payload chosen by the room creator, e.g. an encoded
	// game mode. Matchmaking compares it verbatim.
	Extra string `json:"extra,omitempty"`

	// Permanent dedicated rooms are exempt from the game server's empty
	// self-shutdown.
	Permanent bool `json:"permanent,omitempty"`

	// Matchmaking marks the room as a pending matchmaking bucket.
	Matchmaking bool `json:"matchmaking,omitempty"`

	// MatchMin is the bucket's minimum population; buckets still below it
	// when the match timeout hits are torn down.
	MatchMin int `json:"match_min,omitempty"`

	// matchIP is the requester address that opened the bucket, kept for log
	// correlation only.
	matchIP string

	// adopted marks a room record created on behalf of a peer's remote-start
	// request. Adopted rooms never have local members; they live until the
	// game server's keep-alives stop, the peer sends remote_stop, or the
	// process exits.
	adopted bool

	// LastActivity and CreatedAt are logical ticks, immune to wall-clock
	// changes.
	LastActivity int64 `json:"-"`
	CreatedAt    int64 `json:"-"`
}

// Owner returns the room's authoritative owner, members[0].
func (r *Room) Owner() (Member, bool) {
	if len(r.Members) == 0 {
		return Member{}, false
	}
	return r.Members[0], true
}

// HasMember reports whether clientID is currently a member.
func (r *Room) HasMember(clientID int64) bool {
	return slices.IndexFunc(r.Members, func(m Member) bool { return m.ClientID == clientID }) >= 0
}

// IsFull reports whether the member count has reached capacity.
func (r *Room) IsFull() bool {
	return len(r.Members) >= r.Capacity
}

// removeMember drops clientID from the member list, preserving order so the
// ownership invariant (members[0]) stays meaningful.
func (r *Room) removeMember(clientID int64) bool {
	idx := slices.IndexFunc(r.Members, func(m Member) bool { return m.ClientID == clientID })
	if idx < 0 {
		return false
	}
	r.Members = append(r.Members[:idx], r.Members[idx+1:]...)
	return true
}

// appendChat pushes msg onto the chat ring, evicting the oldest entry past
// the 20-message bound.
func (r *Room) appendChat(msg ChatMessage) {
	r.Chat = append(r.Chat, msg)
	if len(r.Chat) > chatLimit {
		r.Chat = r.Chat[len(r.Chat)-chatLimit:]
	}
}

// snapshot returns a deep copy safe to hand to callers. Snapshots are
// read-mostly: they are not kept fresh past one request cycle.
func (r *Room) snapshot() *Room {
	cp := *r
	cp.Members = append([]Member(nil), r.Members...)
	cp.Chat = append([]ChatMessage(nil), r.Chat...)
	return &cp
}
