// Package main implements gameagent, the dedicated game-server process that
// lobbyd launches for each dedicated room. It stands between the game
// simulation and the lobby:
//
//   - Accepts player connections on the room's assigned port
//   - Publishes keep_list keep-alives to its home lobby so the room and its
//     connected users stay live in the registry
//   - Self-terminates when a non-permanent room has been empty past a grace
//     period, returning the port to the fleet
//
// Flags (provided by the lobby's launcher):
//
//	gameagent -room <id> -port 7777 -capacity 8 \
//	          -lobby http://127.0.0.1:8070 -extra ffa -permanent=false
package main

import (
	"bufio"
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dreamware/lobbyd/internal/fleet"
)

const (
	keepInterval = 10 * time.Second
	gracePeriod  = 60 * time.Second
)

// agent tracks the users currently connected to this game server.
type agent struct {
	roomID   string
	lobbyURL string

	mu    sync.Mutex
	users map[string]net.Conn

	permanent bool
	started   time.Time
}

func main() {
	roomID := flag.String("room", "", "room id this server plays")
	port := flag.Int("port", 0, "game port to listen on")
	capacity := flag.Int("capacity", 8, "maximum simultaneous players")
	lobbyURL := flag.String("lobby", "http://127.0.0.1:8070", "home lobby base URL")
	flag.String("extra", "", "opaque room payload (mode selection)")
	permanent := flag.Bool("permanent", false, "exempt from empty self-shutdown")
	flag.Parse()

	if *roomID == "" || *port == 0 {
		log.Fatal("gameagent: -room and -port are required")
	}

	a := &agent{
		roomID:    *roomID,
		lobbyURL:  *lobbyURL,
		users:     make(map[string]net.Conn),
		permanent: *permanent,
		started:   time.Now(),
	}

	ln, err := net.Listen("tcp", ":"+strconv.Itoa(*port))
	if err != nil {
		log.Fatalf("listen on game port: %v", err)
	}
	log.Printf("game server for room %s listening on port %d (capacity %d)", *roomID, *port, *capacity)

	go a.acceptLoop(ln, *capacity)

	ticker := time.NewTicker(keepInterval)
	defer ticker.Stop()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			a.publishKeepAlive()
			if a.shouldShutdown() {
				log.Printf("room %s empty past grace period, shutting down", *roomID)
				ln.Close()
				return
			}
		case <-stop:
			log.Printf("room %s terminating on signal", *roomID)
			ln.Close()
			return
		}
	}
}

// acceptLoop takes player connections. The handshake is a single line
// carrying the player's user id; the connection then stays open for the
// session. Over-capacity connections are refused outright.
func (a *agent) acceptLoop(ln net.Listener, capacity int) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go a.handle(conn, capacity)
	}
}

func (a *agent) handle(conn net.Conn, capacity int) {
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		conn.Close()
		return
	}
	userID := strings.TrimSpace(line)
	if userID == "" {
		conn.Close()
		return
	}

	a.mu.Lock()
	if len(a.users) >= capacity {
		a.mu.Unlock()
		conn.Close()
		return
	}
	if old, ok := a.users[userID]; ok {
		old.Close() // reconnect replaces the stale session
	}
	a.users[userID] = conn
	a.mu.Unlock()

	log.Printf("user %s joined room %s", userID, a.roomID)
	conn.SetReadDeadline(time.Time{})

	// Block until the client goes away; the game simulation proper is out
	// of the agent's hands.
	buf := make([]byte, 1024)
	for {
		if _, err := conn.Read(buf); err != nil {
			break
		}
	}

	a.mu.Lock()
	if a.users[userID] == conn {
		delete(a.users, userID)
	}
	a.mu.Unlock()
	conn.Close()
	log.Printf("user %s left room %s", userID, a.roomID)
}

func (a *agent) userIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, 0, len(a.users))
	for id := range a.users {
		ids = append(ids, id)
	}
	return ids
}

// publishKeepAlive reports the room and its connected users to the lobby so
// neither expires while play is in progress. Failures are logged only; the
// next tick retries naturally.
func (a *agent) publishKeepAlive() {
	payload := struct {
		RoomID  string   `json:"room_id"`
		UserIDs []string `json:"user_ids"`
	}{
		RoomID:  a.roomID,
		UserIDs: a.userIDs(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()
	if err := fleet.PostJSON(ctx, strings.TrimRight(a.lobbyURL, "/")+"/keep_list", payload, nil); err != nil {
		log.Printf("keep_list publish failed: %v", err)
	}
}

// shouldShutdown applies the empty-server rule: non-permanent, nobody
// connected, and alive long enough that nobody is plausibly still on the way.
func (a *agent) shouldShutdown() bool {
	if a.permanent {
		return false
	}
	a.mu.Lock()
	empty := len(a.users) == 0
	a.mu.Unlock()
	return empty && time.Since(a.started) > gracePeriod
}
