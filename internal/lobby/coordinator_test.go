package lobby

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/lobbyd/internal/fleet"
	"github.com/dreamware/lobbyd/internal/ports"
)

// recordLauncher records start/stop calls instead of spawning processes.
type recordLauncher struct {
	mu      sync.Mutex
	started []string
	stopped []string
}

func (l *recordLauncher) Start(room *Room) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = append(l.started, room.ID)
	return nil
}

func (l *recordLauncher) Stop(roomID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped = append(l.stopped, roomID)
	return nil
}

func testLobbyConfig() *Config {
	return &Config{
		Host:              "self",
		FleetSecret:       "fleet-key",
		AcceptConnections: true,
		MaxRooms:          50,
		PortMin:           7777,
		PortMax:           7779,
		SweepInterval:     time.Second,
		TTLTicks:          5,
		MatchTimeoutTicks: 3,
		RemotePollEvery:   10,
	}
}

func newTestCoordinator(cfg *Config) (*Coordinator, *ports.Allocator, *recordLauncher) {
	alloc := ports.NewAllocator(cfg.PortMin, cfg.PortMax)
	launcher := &recordLauncher{}
	c := NewCoordinator(cfg, alloc, launcher, fleet.NewClient(cfg.FleetSecret))
	return c, alloc, launcher
}

func mustConnect(t *testing.T, c *Coordinator, user string) int64 {
	t.Helper()
	id, err := c.Connect(Player{UserID: user, Username: user})
	require.NoError(t, err)
	return id
}

// TestConnectGate verifies the accept-connections feature flag and the wire
// error message it produces.
func TestConnectGate(t *testing.T) {
	cfg := testLobbyConfig()
	cfg.AcceptConnections = false
	c, _, _ := newTestCoordinator(cfg)

	_, err := c.Connect(Player{UserID: "u1"})
	require.Error(t, err)
	assert.Equal(t, "Connection Disabled!", err.Error())

	cfg.AcceptConnections = true
	id, err := c.Connect(Player{UserID: "u1"})
	require.NoError(t, err)
	assert.NotZero(t, id)
}

// TestCreateRefreshRoundTrip verifies create-then-refresh yields identical
// binding and shape.
func TestCreateRefreshRoundTrip(t *testing.T) {
	c, alloc, _ := newTestCoordinator(testLobbyConfig())
	p1 := mustConnect(t, c, "alice")

	created, err := c.CreateRoom(p1, CreateDescriptor{Title: "arena", Kind: KindDedicated, Capacity: 4, Visible: true})
	require.NoError(t, err)
	assert.Equal(t, "self", created.Host)
	assert.Equal(t, 7777, created.Port)
	assert.True(t, alloc.InUse("self", 7777), "port reserved atomically with creation")
	assert.False(t, created.Remote)

	got, err := c.Refresh(p1, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Host, got.Host)
	assert.Equal(t, created.Port, got.Port)
	assert.Equal(t, created.Capacity, got.Capacity)
	assert.Equal(t, created.Title, got.Title)
}

// TestJoinFullScenario covers capacity=2 with three players: the third join
// is rejected and the room keeps exactly 2 members.
func TestJoinFullScenario(t *testing.T) {
	c, _, _ := newTestCoordinator(testLobbyConfig())
	p1 := mustConnect(t, c, "p1")
	p2 := mustConnect(t, c, "p2")
	p3 := mustConnect(t, c, "p3")

	created, err := c.CreateRoom(p1, CreateDescriptor{Kind: KindHosted, Capacity: 2, Visible: true})
	require.NoError(t, err)

	room, err := c.Join(p2, created.ID)
	require.NoError(t, err)
	assert.Len(t, room.Members, 2)

	_, err = c.Join(p3, created.ID)
	assert.ErrorIs(t, err, ErrRoomFull)

	room, err = c.Refresh(p1, created.ID)
	require.NoError(t, err)
	assert.Len(t, room.Members, 2)
}

// TestStartDispatch verifies owner-only start and the launch fan-out: local
// dedicated rooms hit the launcher, hosted rooms do not.
func TestStartDispatch(t *testing.T) {
	c, _, launcher := newTestCoordinator(testLobbyConfig())
	p1 := mustConnect(t, c, "p1")
	p2 := mustConnect(t, c, "p2")

	created, err := c.CreateRoom(p1, CreateDescriptor{Kind: KindDedicated, Capacity: 4})
	require.NoError(t, err)
	_, err = c.Join(p2, created.ID)
	require.NoError(t, err)

	_, err = c.Start(p2, created.ID, "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	room, err := c.Start(p1, created.ID, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, StatePlaying, room.State)
	assert.Equal(t, "hunter2", room.JoinSecret)
	assert.Equal(t, []string{created.ID}, launcher.started)

	// Hosted rooms never launch a process
	hosted, err := c.CreateRoom(p1, CreateDescriptor{Kind: KindHosted, Capacity: 4})
	require.NoError(t, err)
	_, err = c.Start(p1, hosted.ID, "")
	require.NoError(t, err)
	assert.Len(t, launcher.started, 1)
}

// TestQuitReleasesPort verifies the last member leaving deletes the room,
// releases its port and stops its process.
func TestQuitReleasesPort(t *testing.T) {
	c, alloc, launcher := newTestCoordinator(testLobbyConfig())
	p1 := mustConnect(t, c, "p1")

	created, err := c.CreateRoom(p1, CreateDescriptor{Kind: KindDedicated, Capacity: 4})
	require.NoError(t, err)
	require.True(t, alloc.InUse("self", created.Port))

	_, err = c.Quit(p1, created.ID)
	require.NoError(t, err)
	assert.False(t, alloc.InUse("self", created.Port))
	assert.Equal(t, []string{created.ID}, launcher.stopped)
}

// TestPortExhaustion verifies creation fails cleanly once the range is gone
// and recovers after a release.
func TestPortExhaustion(t *testing.T) {
	c, _, _ := newTestCoordinator(testLobbyConfig())
	p1 := mustConnect(t, c, "p1")

	var last *Room
	for i := 0; i < 3; i++ {
		room, err := c.CreateRoom(p1, CreateDescriptor{Kind: KindDedicated, Capacity: 4})
		require.NoError(t, err)
		last = room
	}

	_, err := c.CreateRoom(p1, CreateDescriptor{Kind: KindDedicated, Capacity: 4})
	assert.ErrorIs(t, err, ports.ErrExhausted)

	// Freeing one room frees exactly its port for the next create
	_, err = c.Quit(p1, last.ID)
	require.NoError(t, err)
	room, err := c.CreateRoom(p1, CreateDescriptor{Kind: KindDedicated, Capacity: 4})
	require.NoError(t, err)
	assert.Equal(t, last.Port, room.Port)
}

// TestExpiryScenario verifies an untouched room disappears from the list
// after the inactivity window while keep-alives hold it open.
func TestExpiryScenario(t *testing.T) {
	c, _, _ := newTestCoordinator(testLobbyConfig())
	p1 := mustConnect(t, c, "p1")
	p2 := mustConnect(t, c, "p2")

	kept, err := c.CreateRoom(p1, CreateDescriptor{Kind: KindHosted, Capacity: 4, Visible: true})
	require.NoError(t, err)
	abandoned, err := c.CreateRoom(p2, CreateDescriptor{Kind: KindHosted, Capacity: 4, Visible: true})
	require.NoError(t, err)
	require.Len(t, c.RefreshList(), 2)

	// Advance past the window; p1 keeps itself (and its room) alive
	for i := int64(0); i < testLobbyConfig().TTLTicks+2; i++ {
		assert.True(t, c.Keep(p1))
		c.Sweep()
	}

	list := c.RefreshList()
	require.Len(t, list, 1)
	assert.Equal(t, kept.ID, list[0].ID)
	_, err = c.Refresh(p1, abandoned.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Sweep is idempotent: another pass with fresh keep-alives removes nothing
	assert.True(t, c.Keep(p1))
	c.Sweep()
	assert.Len(t, c.RefreshList(), 1)
}

// TestKeepListScenario verifies the dedicated server keep-alive refreshes
// both the room and the reported users.
func TestKeepListScenario(t *testing.T) {
	c, _, _ := newTestCoordinator(testLobbyConfig())
	p1 := mustConnect(t, c, "p1")

	created, err := c.CreateRoom(p1, CreateDescriptor{Kind: KindDedicated, Capacity: 4, Visible: true})
	require.NoError(t, err)

	for i := int64(0); i < testLobbyConfig().TTLTicks+2; i++ {
		assert.True(t, c.KeepList(created.ID, []string{"p1"}))
		c.Sweep()
	}

	_, err = c.Refresh(p1, created.ID)
	assert.NoError(t, err, "keep_list must hold the room and its users alive")

	assert.False(t, c.KeepList("unknown-room", nil))
}

// TestChat verifies chat lands in the caller's current room.
func TestChat(t *testing.T) {
	c, _, _ := newTestCoordinator(testLobbyConfig())
	p1 := mustConnect(t, c, "alice")

	_, err := c.Chat(p1, "anyone here?")
	assert.ErrorIs(t, err, ErrNotFound, "chat without a room is not found")

	created, err := c.CreateRoom(p1, CreateDescriptor{Kind: KindHosted, Capacity: 4})
	require.NoError(t, err)

	room, err := c.Chat(p1, "hello")
	require.NoError(t, err)
	require.Len(t, room.Chat, 1)
	assert.Equal(t, "hello", room.Chat[0].Text)
	assert.Equal(t, "alice", room.Chat[0].Username)
	assert.Equal(t, created.ID, room.ID)
}

// TestDisconnectEvictsFromRooms verifies disconnect removes membership and
// collects the emptied room.
func TestDisconnectEvictsFromRooms(t *testing.T) {
	c, alloc, _ := newTestCoordinator(testLobbyConfig())
	p1 := mustConnect(t, c, "p1")

	created, err := c.CreateRoom(p1, CreateDescriptor{Kind: KindDedicated, Capacity: 4})
	require.NoError(t, err)

	require.True(t, c.Disconnect(p1))
	_, err = c.Refresh(p1, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, alloc.InUse("self", created.Port))
}

// TestRemoteHandlers verifies the secret gate and the adopt/stop/info
// behavior of the fleet-internal surface.
func TestRemoteHandlers(t *testing.T) {
	c, alloc, launcher := newTestCoordinator(testLobbyConfig())

	info := fleet.RoomInfo{ID: "room-77", Title: "peer game", Host: "self", Port: 7778, Capacity: 8}

	// Wrong secret: rejected, nothing leaks
	assert.False(t, c.RemoteStart("wrong", info))
	assert.Empty(t, c.RemoteInfo("wrong"))
	assert.False(t, c.RemoteStop("wrong", "room-77"))

	// Right secret: adopted, launched, reserved, listed
	require.True(t, c.RemoteStart("fleet-key", info))
	assert.True(t, alloc.InUse("self", 7778))
	assert.Equal(t, []string{"room-77"}, launcher.started)

	inventory := c.RemoteInfo("fleet-key")
	require.Len(t, inventory, 1)
	assert.Equal(t, "room-77", inventory[0].ID)
	assert.Equal(t, 7778, inventory[0].Port)

	// Repeated start RPC is idempotent
	require.True(t, c.RemoteStart("fleet-key", info))
	assert.Len(t, c.RemoteInfo("fleet-key"), 1)

	// Stop tears everything down
	require.True(t, c.RemoteStop("fleet-key", "room-77"))
	assert.False(t, alloc.InUse("self", 7778))
	assert.Equal(t, []string{"room-77"}, launcher.stopped)
	assert.Empty(t, c.RemoteInfo("fleet-key"))
}

// TestNoSecretConfiguredHonorsNothing verifies an instance without a fleet
// secret refuses all fleet RPCs, even with an empty presented secret.
func TestNoSecretConfiguredHonorsNothing(t *testing.T) {
	cfg := testLobbyConfig()
	cfg.FleetSecret = ""
	c, _, _ := newTestCoordinator(cfg)

	assert.False(t, c.RemoteStart("", fleet.RoomInfo{ID: "r", Host: "self", Port: 7778}))
	assert.Empty(t, c.RemoteInfo(""))
}

// TestInventoryReconciliation covers the drift-healing scenario: a peer
// reports a port this instance never reserved; after reconciliation local
// allocation skips it, and ports no longer reported come back.
func TestInventoryReconciliation(t *testing.T) {
	c, alloc, _ := newTestCoordinator(testLobbyConfig())

	// Stale local belief: peer holds 7779
	alloc.Reserve("peer", 7779)

	c.applyInventory("peer", []fleet.RoomInfo{{ID: "r1", Host: "peer", Port: 7777}})

	assert.True(t, alloc.InUse("peer", 7777), "reported port reserved after reconciliation")
	assert.False(t, alloc.InUse("peer", 7779), "unreported port released after reconciliation")

	// Local allocation on that host now skips the live port
	port, err := alloc.AllocateDedicated("peer")
	require.NoError(t, err)
	assert.Equal(t, 7778, port)
}

// TestOnGameExit verifies launcher exit feedback removes the room and frees
// the port through the serialized path.
func TestOnGameExit(t *testing.T) {
	c, alloc, _ := newTestCoordinator(testLobbyConfig())
	p1 := mustConnect(t, c, "p1")

	created, err := c.CreateRoom(p1, CreateDescriptor{Kind: KindDedicated, Capacity: 4})
	require.NoError(t, err)
	_, err = c.Start(p1, created.ID, "")
	require.NoError(t, err)

	c.OnGameExit(created.ID)

	_, err = c.Refresh(p1, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, alloc.InUse("self", created.Port))

	// Player's room reference is cleared
	assert.True(t, c.Keep(p1))
}

// TestMatchmakeViaCoordinator exercises the full matchmaking path including
// port release on cancel.
func TestMatchmakeViaCoordinator(t *testing.T) {
	c, alloc, _ := newTestCoordinator(testLobbyConfig())
	p1 := mustConnect(t, c, "p1")
	p2 := mustConnect(t, c, "p2")

	bucket, err := c.Matchmake(p1, Criteria{Mode: "ffa", MinPlayers: 2, MaxPlayers: 4}, "10.1.1.1")
	require.NoError(t, err)
	assert.True(t, alloc.InUse("self", bucket.Port))

	joined, err := c.Matchmake(p2, Criteria{Mode: "ffa", MinPlayers: 2, MaxPlayers: 4}, "10.1.1.2")
	require.NoError(t, err)
	assert.Equal(t, bucket.ID, joined.ID)

	assert.True(t, c.CancelMatch(p1))
	assert.True(t, c.CancelMatch(p2))
	assert.False(t, alloc.InUse("self", bucket.Port), "emptied bucket returns its port")
	assert.False(t, c.CancelMatch(p1), "nothing left to cancel")
}

// TestRunSweepsAndStops verifies the background loop advances ticks and
// shuts down cleanly.
func TestRunSweepsAndStops(t *testing.T) {
	cfg := testLobbyConfig()
	cfg.SweepInterval = 10 * time.Millisecond
	c, _, _ := newTestCoordinator(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Greater(t, c.Tick(), int64(0))
}
