package lobby

import "log"

// Criteria is a matchmaking request. Mode is compared verbatim against a
// bucket room's Extra payload; MinPlayers is the population a bucket must
// reach before the match timeout or be torn down; MaxPlayers is the bucket
// capacity.
type Criteria struct {
	Mode       string `json:"mode"`
	MinPlayers int    `json:"min_players"`
	MaxPlayers int    `json:"max_players"`
}

// Matchmaker groups compatible players into pending bucket rooms. A bucket
// is an ordinary (invisible) room tagged matchmaking: the first requester
// opens it and becomes its sole member, subsequent compatible requests fill
// it, and the coordinator's sweep expires buckets that idle below their
// minimum population.
//
// Bucket rooms are created through the injected create function so host and
// port selection stays with the coordinator, which owns the allocator.
type Matchmaker struct {
	rooms   *RoomRegistry
	timeout int64

	// create builds a new bucket room for the given criteria, choosing host
	// and port. Injected by the coordinator.
	create func(c Criteria) (*Room, error)
}

// NewMatchmaker creates a matchmaker over the shared room registry.
// timeout is the bucket expiry window in ticks.
func NewMatchmaker(rooms *RoomRegistry, timeout int64, create func(c Criteria) (*Room, error)) *Matchmaker {
	return &Matchmaker{
		rooms:   rooms,
		timeout: timeout,
		create:  create,
	}
}

// FindMatch joins p to a compatible pending bucket, or opens a new one with
// p as sole member. The returned room is the bucket in either case; callers
// poll it (refresh) to watch it fill.
func (m *Matchmaker) FindMatch(p *Player, c Criteria, now int64, requesterIP string) (*Room, error) {
	if c.MinPlayers < 1 {
		c.MinPlayers = 2
	}
	if c.MaxPlayers < c.MinPlayers {
		c.MaxPlayers = c.MinPlayers
	}

	if bucket, ok := m.rooms.MatchBucket(c.Mode); ok {
		return m.rooms.Join(p, bucket.ID, now)
	}

	room, err := m.create(c)
	if err != nil {
		return nil, err
	}

	// Tag the live registry entry, not the snapshot create returned.
	if live, ok := m.rooms.rooms[room.ID]; ok {
		live.Matchmaking = true
		live.MatchMin = c.MinPlayers
		live.matchIP = requesterIP
	}
	log.Printf("matchmaking: opened bucket %s mode=%q min=%d max=%d from %s",
		room.ID, c.Mode, c.MinPlayers, c.MaxPlayers, requesterIP)

	return m.rooms.Join(p, room.ID, now)
}

// Cancel removes p from any pending bucket it occupies. An emptied bucket is
// torn down the same way an empty room is; the returned rooms let the caller
// release their ports.
func (m *Matchmaker) Cancel(p *Player, now int64) (emptied []*Room, found bool) {
	for id, room := range m.rooms.rooms {
		if !room.Matchmaking || !room.HasMember(p.ClientID) {
			continue
		}
		found = true
		if room.removeMember(p.ClientID) && len(room.Members) == 0 {
			delete(m.rooms.rooms, id)
			emptied = append(emptied, room.snapshot())
		}
	}
	return emptied, found
}

// Sweep expires buckets that waited past the configured timeout without
// reaching their minimum population. Members of an expired bucket are
// released back to unmatched (the coordinator clears their room reference);
// the bucket room is deleted and returned for port cleanup.
func (m *Matchmaker) Sweep(now int64) []*Room {
	expired := m.rooms.ExpiredBuckets(now, m.timeout)
	for _, bucket := range expired {
		m.rooms.Delete(bucket.ID)
		log.Printf("matchmaking: bucket %s expired with %d/%d players",
			bucket.ID, len(bucket.Members), bucket.MatchMin)
	}
	return expired
}
