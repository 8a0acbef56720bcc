package lobby

import (
	"context"
	"crypto/subtle"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/lobbyd/internal/fleet"
	"github.com/dreamware/lobbyd/internal/ports"
)

// jobKind enumerates the outbound fleet RPCs.
type jobKind int

const (
	jobStart jobKind = iota
	jobStop
	jobInventory
)

// remoteJob is one queued outbound RPC. Handlers enqueue jobs and answer
// their own caller immediately; a single worker drains the queue so no
// request ever blocks on a peer.
type remoteJob struct {
	kind jobKind
	addr string // peer base URL
	host string // peer host identity (inventory reconciliation key)
	room fleet.RoomInfo
}

// Coordinator owns every registry and runs the lobby's single-writer
// sequence: request dispatch, the periodic sweep, launcher exit feedback and
// inventory reconciliation all serialize on one lock, so cross-component
// invariants (port reserved exactly while its room lives) hold without
// distributed transactions.
//
// All sub-components are injected at construction; there is no ambient
// "current instance" lookup anywhere in the package.
type Coordinator struct {
	cfg *Config

	mu       sync.Mutex
	players  *PlayerRegistry
	rooms    *RoomRegistry
	match    *Matchmaker
	alloc    *ports.Allocator
	launcher Launcher
	remote   *fleet.Client

	// tick is the monotonic logical clock. All expiry math compares ticks,
	// never wall time, so expiry is immune to clock skew.
	tick int64

	// accepted flips once the first connection is taken; fleet polling stays
	// off until then.
	accepted bool

	outbound chan remoteJob
	wg       sync.WaitGroup
}

// NewCoordinator wires a coordinator from its parts. launcher may be nil for
// hosted-only instances (a NopLauncher is substituted).
func NewCoordinator(cfg *Config, alloc *ports.Allocator, launcher Launcher, remote *fleet.Client) *Coordinator {
	if launcher == nil {
		launcher = NopLauncher{}
	}
	c := &Coordinator{
		cfg:      cfg,
		players:  NewPlayerRegistry(),
		rooms:    NewRoomRegistry(cfg.MaxRooms, cfg.Host),
		alloc:    alloc,
		launcher: launcher,
		remote:   remote,
		outbound: make(chan remoteJob, 256),
	}
	c.match = NewMatchmaker(c.rooms, cfg.MatchTimeoutTicks, c.createBucket)
	return c
}

// Run drives the sweep ticker and the outbound worker until ctx is
// canceled.
func (c *Coordinator) Run(ctx context.Context) {
	c.wg.Add(1)
	go c.outboundWorker(ctx)

	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	log.Printf("coordinator sweep running every %v (ttl %d ticks)", c.cfg.SweepInterval, c.cfg.TTLTicks)
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-ctx.Done():
			close(c.outbound)
			c.wg.Wait()
			return
		}
	}
}

// outboundWorker drains the fire-and-forget RPC queue. Inventory results are
// fed back through applyInventory, which takes the coordinator lock, so
// reconciliation never mutates state from an arbitrary callback.
func (c *Coordinator) outboundWorker(ctx context.Context) {
	defer c.wg.Done()
	for job := range c.outbound {
		switch job.kind {
		case jobStart:
			if ok, err := c.remote.StartGame(ctx, job.addr, job.room); err != nil {
				log.Printf("remote start %s on %s failed: %v", job.room.ID, job.host, err)
			} else if !ok {
				log.Printf("remote start %s rejected by %s", job.room.ID, job.host)
			}
		case jobStop:
			if _, err := c.remote.StopGame(ctx, job.addr, job.room.ID); err != nil {
				log.Printf("remote stop %s on %s failed: %v", job.room.ID, job.host, err)
			}
		case jobInventory:
			rooms, err := c.remote.Inventory(ctx, job.addr)
			if err != nil {
				log.Printf("inventory poll of %s failed: %v", job.host, err)
				continue
			}
			c.applyInventory(job.host, rooms)
		}
	}
}

// enqueue submits a job without ever blocking the request path. A full
// queue drops the job; the reconciliation sweep heals whatever a dropped
// message would have told us.
func (c *Coordinator) enqueue(job remoteJob) {
	select {
	case c.outbound <- job:
	default:
		log.Printf("outbound queue full, dropped %v for host %s", job.kind, job.host)
	}
}

// Connect registers a new player and returns its fresh client handle. Fails
// only when the instance is not accepting connections.
func (c *Coordinator) Connect(p Player) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cfg.AcceptConnections {
		return 0, ErrConnectionsDisabled
	}
	c.accepted = true

	clientID, replaced := c.players.Connect(p, c.tick)
	if replaced != 0 {
		c.evictLocked(replaced)
	}
	log.Printf("player %q connected (client %d)", p.Username, clientID)
	return clientID, nil
}

// Disconnect removes the player and evicts it from every room it belonged
// to.
func (c *Coordinator) Disconnect(clientID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.players.Remove(clientID); !ok {
		return false
	}
	c.evictLocked(clientID)
	return true
}

// RefreshList returns all currently visible rooms.
func (c *Coordinator) RefreshList() []*Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms.Visible()
}

// Refresh returns a fresh snapshot of one room and counts as activity for
// both the caller and the room.
func (c *Coordinator) Refresh(clientID int64, roomID string) (*Room, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.players.Touch(clientID, c.tick)
	room, err := c.rooms.Get(roomID)
	if err != nil {
		return nil, err
	}
	c.rooms.Touch(roomID, c.tick)
	return room, nil
}

// CreateRoom creates a room on behalf of clientID and joins the creator as
// owner. Dedicated rooms get a host picked fleet-wide by least load and the
// first free port there; the port is reserved atomically with creation.
func (c *Coordinator) CreateRoom(clientID int64, desc CreateDescriptor) (*Room, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.players.Lookup(clientID)
	if err != nil {
		return nil, err
	}
	p.LastSeen = c.tick

	host := c.cfg.Host
	port := 0
	if desc.Kind == KindDedicated {
		host = c.alloc.PickLeastLoadedHost(c.fleetHostNames())
		port, err = c.alloc.AllocateDedicated(host)
		if err != nil {
			return nil, err
		}
	}

	room, err := c.rooms.Create(desc, host, port, c.tick)
	if err != nil {
		if desc.Kind == KindDedicated {
			c.alloc.Release(host, port)
		}
		return nil, err
	}

	room, err = c.rooms.Join(p, room.ID, c.tick)
	if err != nil {
		// Cannot happen for a fresh room; guard anyway.
		c.dropRoomLocked(room)
		return nil, err
	}
	p.RoomID = room.ID

	log.Printf("room %s created by %q (kind=%s host=%s port=%d remote=%v)",
		room.ID, p.Username, room.Kind, room.Host, room.Port, room.Remote)
	return room, nil
}

// Join adds the caller to the room.
func (c *Coordinator) Join(clientID int64, roomID string) (*Room, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.players.Lookup(clientID)
	if err != nil {
		return nil, err
	}
	p.LastSeen = c.tick

	room, err := c.rooms.Join(p, roomID, c.tick)
	if err != nil {
		return nil, err
	}
	p.RoomID = room.ID
	return room, nil
}

// Quit removes the caller from the room. Leaving is only possible while the
// room is still waiting; started rooms drain via disconnect or expiry.
func (c *Coordinator) Quit(clientID int64, roomID string) (*Room, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.players.Lookup(clientID)
	if err != nil {
		return nil, err
	}
	p.LastSeen = c.tick

	room, deleted, err := c.rooms.Quit(clientID, roomID, c.tick)
	if err != nil {
		return nil, err
	}
	p.RoomID = ""
	if deleted {
		c.releaseLocked(room)
	}
	return room, nil
}

// Start transitions the caller's room to Playing and triggers the game
// launch: locally through the launcher, or by a fire-and-forget RPC to the
// peer that hosts the room. Hosted rooms need no process at all.
//
// The caller's response does not wait for a remote peer: the room exists
// here first and clients retry their game connection with backoff while the
// process comes up.
func (c *Coordinator) Start(clientID int64, roomID, joinSecret string) (*Room, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.players.Lookup(clientID); err != nil {
		return nil, err
	}
	c.players.Touch(clientID, c.tick)

	// Owners usually mint the secret; generate one for those that don't.
	if joinSecret == "" {
		joinSecret = uuid.NewString()
	}
	room, err := c.rooms.Start(clientID, roomID, joinSecret, c.tick)
	if err != nil {
		return nil, err
	}

	if room.Kind == KindDedicated {
		if room.Remote {
			c.enqueue(remoteJob{
				kind: jobStart,
				addr: c.addrForHost(room.Host),
				host: room.Host,
				room: roomToWire(room),
			})
		} else if err := c.launcher.Start(room); err != nil {
			log.Printf("local launch for room %s failed: %v", room.ID, err)
		}
	}
	return room, nil
}

// Chat appends a message to the caller's current room.
func (c *Coordinator) Chat(clientID int64, text string) (*Room, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.players.Lookup(clientID)
	if err != nil {
		return nil, err
	}
	p.LastSeen = c.tick
	if p.RoomID == "" {
		return nil, ErrNotFound
	}

	return c.rooms.AppendChat(p.RoomID, ChatMessage{
		UserID:   p.UserID,
		Username: p.Username,
		Text:     text,
	}, c.tick)
}

// Keep is the player keep-alive. A live player implies its room is live too.
func (c *Coordinator) Keep(clientID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.players.Lookup(clientID)
	if err != nil {
		return false
	}
	p.LastSeen = c.tick
	if p.RoomID != "" {
		c.rooms.Touch(p.RoomID, c.tick)
	}
	return true
}

// KeepList is the dedicated game server's keep-alive: it refreshes its room
// and every connected user it reports.
func (c *Coordinator) KeepList(roomID string, userIDs []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	found := c.rooms.Touch(roomID, c.tick)
	for _, uid := range userIDs {
		c.players.TouchByUserID(uid, c.tick)
	}
	return found
}

// Matchmake finds or opens a matchmaking bucket for the caller.
func (c *Coordinator) Matchmake(clientID int64, criteria Criteria, requesterIP string) (*Room, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.players.Lookup(clientID)
	if err != nil {
		return nil, err
	}
	p.LastSeen = c.tick

	room, err := c.match.FindMatch(p, criteria, c.tick, requesterIP)
	if err != nil {
		return nil, err
	}
	p.RoomID = room.ID
	return room, nil
}

// CancelMatch withdraws the caller from pending matchmaking.
func (c *Coordinator) CancelMatch(clientID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.players.Lookup(clientID)
	if err != nil {
		return false
	}
	p.LastSeen = c.tick

	emptied, found := c.match.Cancel(p, c.tick)
	if found {
		p.RoomID = ""
	}
	for _, room := range emptied {
		c.releaseLocked(room)
	}
	return found
}

// createBucket is the matchmaker's room factory: bucket rooms are dedicated
// and invisible, placed like any other dedicated room.
func (c *Coordinator) createBucket(criteria Criteria) (*Room, error) {
	host := c.alloc.PickLeastLoadedHost(c.fleetHostNames())
	port, err := c.alloc.AllocateDedicated(host)
	if err != nil {
		return nil, err
	}

	room, err := c.rooms.Create(CreateDescriptor{
		Title:    "match: " + criteria.Mode,
		Kind:     KindDedicated,
		Capacity: criteria.MaxPlayers,
		Visible:  false,
		Extra:    criteria.Mode,
	}, host, port, c.tick)
	if err != nil {
		c.alloc.Release(host, port)
		return nil, err
	}
	return room, nil
}

// RemoteStart honors a peer's request to run a game on this machine. The
// room is adopted into the local registry (so remote_info lists it) and the
// process launched. A wrong secret yields false, never an error body.
func (c *Coordinator) RemoteStart(secret string, info fleet.RoomInfo) bool {
	if !c.secretOK(secret) {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	room := &Room{
		ID:         info.ID,
		Title:      info.Title,
		Kind:       KindDedicated,
		Host:       c.cfg.Host,
		Port:       info.Port,
		State:      StatePlaying,
		Capacity:   info.Capacity,
		Extra:      info.Extra,
		JoinSecret: info.JoinSecret,
		Permanent:  info.Permanent,
	}
	if err := c.rooms.Adopt(room, c.tick); err != nil {
		return false
	}
	c.alloc.Reserve(c.cfg.Host, info.Port)

	if err := c.launcher.Start(room); err != nil {
		log.Printf("adopted launch for room %s failed: %v", room.ID, err)
		c.rooms.Delete(room.ID)
		c.alloc.Release(c.cfg.Host, info.Port)
		return false
	}
	log.Printf("adopted room %s on port %d for fleet peer", room.ID, room.Port)
	return true
}

// RemoteStop honors a peer's request to terminate a game running here.
func (c *Coordinator) RemoteStop(secret, roomID string) bool {
	if !c.secretOK(secret) {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	room, ok := c.rooms.Delete(roomID)
	if !ok {
		// The stop may have raced ahead of its start; our own sweep
		// reconciles either way.
		return false
	}
	c.alloc.Release(room.Host, room.Port)
	if err := c.launcher.Stop(roomID); err != nil {
		log.Printf("stopping room %s: %v", roomID, err)
	}
	return true
}

// RemoteInfo answers a peer's inventory poll with the dedicated rooms live
// on this host. A wrong secret gets an empty list, indistinguishable from an
// idle host.
func (c *Coordinator) RemoteInfo(secret string) []fleet.RoomInfo {
	if !c.secretOK(secret) {
		return []fleet.RoomInfo{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	local := c.rooms.LocalDedicated()
	out := make([]fleet.RoomInfo, 0, len(local))
	for _, room := range local {
		out = append(out, roomToWire(room))
	}
	return out
}

// OnGameExit is the launcher's feedback path: the process for roomID ended
// on its own, so the room record and its port reservation go away.
func (c *Coordinator) OnGameExit(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	room, ok := c.rooms.Delete(roomID)
	if !ok {
		return
	}
	c.alloc.Release(room.Host, room.Port)
	c.clearMembersLocked(room)
	log.Printf("room %s removed after its game server exited", roomID)
}

// applyInventory reconciles port bookkeeping for one peer host: the cached
// reservation set is replaced by exactly the ports the peer reports live.
// This self-heals any drift from missed stop notifications.
func (c *Coordinator) applyInventory(host string, rooms []fleet.RoomInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.alloc.ResetHost(host)
	for _, room := range rooms {
		c.alloc.Reserve(host, room.Port)
	}
	log.Printf("reconciled %s: %d live games", host, len(rooms))
}

// Sweep runs one expiry pass by hand. Run's ticker calls this once per
// interval; tests call it directly to advance logical time.
func (c *Coordinator) Sweep() {
	c.sweep()
}

func (c *Coordinator) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tick++

	for _, p := range c.players.Sweep(c.tick, c.cfg.TTLTicks) {
		log.Printf("player %q expired", p.Username)
		c.evictLocked(p.ClientID)
	}

	for _, room := range c.rooms.Sweep(c.tick, c.cfg.TTLTicks) {
		log.Printf("room %s expired", room.ID)
		c.releaseLocked(room)
		c.clearMembersLocked(room)
	}

	for _, bucket := range c.match.Sweep(c.tick) {
		c.releaseLocked(bucket)
		c.clearMembersLocked(bucket)
	}

	if c.accepted && len(c.cfg.FleetHosts) > 0 && c.tick%c.cfg.RemotePollEvery == 0 {
		for _, h := range c.cfg.FleetHosts {
			c.enqueue(remoteJob{kind: jobInventory, addr: h.Addr, host: h.Name})
		}
	}
}

// Tick returns the current logical tick.
func (c *Coordinator) Tick() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tick
}

// evictLocked removes a vanished player from every room, cleaning up rooms
// that become empty. Caller holds c.mu.
func (c *Coordinator) evictLocked(clientID int64) {
	for _, room := range c.rooms.EvictMember(clientID, c.tick) {
		c.releaseLocked(room)
	}
}

// releaseLocked returns a dead room's port and shuts its process down,
// locally or via the peer that runs it. Caller holds c.mu.
func (c *Coordinator) releaseLocked(room *Room) {
	if room.Kind != KindDedicated {
		return
	}
	c.alloc.Release(room.Host, room.Port)
	if room.Remote {
		c.enqueue(remoteJob{
			kind: jobStop,
			addr: c.addrForHost(room.Host),
			host: room.Host,
			room: fleet.RoomInfo{ID: room.ID},
		})
	} else if err := c.launcher.Stop(room.ID); err != nil {
		log.Printf("stopping room %s: %v", room.ID, err)
	}
}

// clearMembersLocked resets the room reference of every player still
// pointing at a removed room. Caller holds c.mu.
func (c *Coordinator) clearMembersLocked(room *Room) {
	for _, m := range room.Members {
		if p, err := c.players.Lookup(m.ClientID); err == nil && p.RoomID == room.ID {
			p.RoomID = ""
		}
	}
}

// dropRoomLocked deletes a room and releases its port without touching any
// process (used only on creation rollback). Caller holds c.mu.
func (c *Coordinator) dropRoomLocked(room *Room) {
	c.rooms.Delete(room.ID)
	if room.Kind == KindDedicated {
		c.alloc.Release(room.Host, room.Port)
	}
}

// fleetHostNames returns the configured fleet host identities plus this
// instance's own, own first so a tie on load keeps games local.
func (c *Coordinator) fleetHostNames() []string {
	names := make([]string, 0, len(c.cfg.FleetHosts)+1)
	names = append(names, c.cfg.Host)
	for _, h := range c.cfg.FleetHosts {
		names = append(names, h.Name)
	}
	return names
}

// addrForHost resolves a fleet host identity to its RPC base URL.
func (c *Coordinator) addrForHost(host string) string {
	for _, h := range c.cfg.FleetHosts {
		if h.Name == host {
			return h.Addr
		}
	}
	return ""
}

// secretOK compares the presented fleet secret in constant time. An
// instance configured without a secret honors no fleet RPCs at all.
func (c *Coordinator) secretOK(secret string) bool {
	if c.cfg.FleetSecret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(c.cfg.FleetSecret)) == 1
}

// roomToWire converts a room snapshot to its fleet wire form.
func roomToWire(room *Room) fleet.RoomInfo {
	return fleet.RoomInfo{
		ID:         room.ID,
		Title:      room.Title,
		Host:       room.Host,
		Port:       room.Port,
		Capacity:   room.Capacity,
		Extra:      room.Extra,
		JoinSecret: room.JoinSecret,
		Permanent:  room.Permanent,
	}
}
