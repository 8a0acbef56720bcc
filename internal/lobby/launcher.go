package lobby

import (
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"sync"
)

// Launcher starts and stops local dedicated game-server processes. The
// coordinator calls Start when a dedicated room begins play on this host and
// Stop when the room goes away first; the launcher reports the reverse
// direction (process died first) through its exit callback.
type Launcher interface {
	Start(room *Room) error
	Stop(roomID string) error
}

// ExecLauncher runs one game-server process per room via os/exec. The
// spawned binary receives its room id, port, capacity and the lobby's own
// URL so it can publish keep_list keep-alives back to us.
type ExecLauncher struct {
	bin      string
	lobbyURL string

	mu    sync.Mutex
	procs map[string]*exec.Cmd

	// onExit is invoked from the reaper goroutine whenever a process ends,
	// including ends we did not request. The coordinator feeds this back
	// through its own lock.
	onExit func(roomID string)
}

// NewExecLauncher creates a launcher spawning bin. onExit may be nil.
func NewExecLauncher(bin, lobbyURL string, onExit func(roomID string)) *ExecLauncher {
	return &ExecLauncher{
		bin:      bin,
		lobbyURL: lobbyURL,
		procs:    make(map[string]*exec.Cmd),
		onExit:   onExit,
	}
}

// Start spawns the game-server process for room and begins reaping it.
func (l *ExecLauncher) Start(room *Room) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, running := l.procs[room.ID]; running {
		return nil
	}

	cmd := exec.Command(l.bin,
		"-room", room.ID,
		"-port", strconv.Itoa(room.Port),
		"-capacity", strconv.Itoa(room.Capacity),
		"-lobby", l.lobbyURL,
		"-extra", room.Extra,
		"-permanent="+strconv.FormatBool(room.Permanent),
	)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch room %s: %w", room.ID, err)
	}
	l.procs[room.ID] = cmd
	log.Printf("launched game server for room %s on port %d (pid %d)", room.ID, room.Port, cmd.Process.Pid)

	go l.reap(room.ID, cmd)
	return nil
}

func (l *ExecLauncher) reap(roomID string, cmd *exec.Cmd) {
	err := cmd.Wait()

	l.mu.Lock()
	// Only report if this process is still the one on record; Stop may have
	// already replaced or removed it.
	current := l.procs[roomID] == cmd
	if current {
		delete(l.procs, roomID)
	}
	l.mu.Unlock()

	if !current {
		return
	}
	if err != nil {
		log.Printf("game server for room %s exited: %v", roomID, err)
	} else {
		log.Printf("game server for room %s exited", roomID)
	}
	if l.onExit != nil {
		l.onExit(roomID)
	}
}

// Stop terminates the room's process if one is running. The reaper sees the
// entry already removed and stays silent.
func (l *ExecLauncher) Stop(roomID string) error {
	l.mu.Lock()
	cmd, ok := l.procs[roomID]
	if ok {
		delete(l.procs, roomID)
	}
	l.mu.Unlock()

	if !ok {
		return nil
	}
	return cmd.Process.Kill()
}

// NopLauncher is a Launcher for hosted-only instances and tests.
type NopLauncher struct{}

func (NopLauncher) Start(*Room) error { return nil }
func (NopLauncher) Stop(string) error { return nil }

var _ Launcher = (*ExecLauncher)(nil)
var _ Launcher = NopLauncher{}
