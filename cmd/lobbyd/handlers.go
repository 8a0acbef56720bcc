package main

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/dreamware/lobbyd/internal/fleet"
	"github.com/dreamware/lobbyd/internal/lobby"
)

// server is the HTTP surface over the coordinator. Every request kind maps
// to one typed handler calling one typed coordinator method; there is no
// string-named dispatch to forget a registration in.
type server struct {
	coord   *lobby.Coordinator
	limiter *rateLimiter
}

// roomResponse is the wrapped result every room-returning operation answers
// with: valid distinguishes "not found / rejected" from a transport failure
// without leaking an error channel clients would have to special-case.
type roomResponse struct {
	Valid bool        `json:"valid"`
	Room  *lobby.Room `json:"room,omitempty"`
}

type connectResponse struct {
	Valid    bool   `json:"valid"`
	ClientID int64  `json:"client_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

type ackResponse struct {
	Valid bool `json:"valid"`
}

type listResponse struct {
	Rooms []*lobby.Room `json:"rooms"`
}

func newMux(s *server) *http.ServeMux {
	mux := http.NewServeMux()

	// Public surface, rate limited per client IP
	mux.HandleFunc("/connect", s.limited(s.handleConnect))
	mux.HandleFunc("/disconnect", s.limited(s.handleDisconnect))
	mux.HandleFunc("/rooms", s.limited(s.handleRefreshList))
	mux.HandleFunc("/refresh", s.limited(s.handleRefresh))
	mux.HandleFunc("/create", s.limited(s.handleCreate))
	mux.HandleFunc("/join", s.limited(s.handleJoin))
	mux.HandleFunc("/quit", s.limited(s.handleQuit))
	mux.HandleFunc("/start", s.limited(s.handleStart))
	mux.HandleFunc("/chat", s.limited(s.handleChat))
	mux.HandleFunc("/keep", s.limited(s.handleKeep))
	mux.HandleFunc("/keep_list", s.limited(s.handleKeepList))
	mux.HandleFunc("/matchmaking", s.limited(s.handleMatchmaking))
	mux.HandleFunc("/cancel", s.limited(s.handleCancel))

	// Fleet-internal surface, gated by the shared secret
	mux.HandleFunc("/remote/start", s.handleRemoteStart)
	mux.HandleFunc("/remote/stop", s.handleRemoteStop)
	mux.HandleFunc("/remote/info", s.handleRemoteInfo)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return mux
}

// limited wraps a handler with the per-IP rate limit.
func (s *server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !s.limiter.Allow(ip) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

func (s *server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string `json:"user_id"`
		Username string `json:"username"`
	}
	if !decode(w, r, &req) {
		return
	}

	clientID, err := s.coord.Connect(lobby.Player{UserID: req.UserID, Username: req.Username})
	if err != nil {
		writeJSON(w, connectResponse{Valid: false, Error: err.Error()})
		return
	}
	writeJSON(w, connectResponse{Valid: true, ClientID: clientID})
}

func (s *server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID int64 `json:"client_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, ackResponse{Valid: s.coord.Disconnect(req.ClientID)})
}

func (s *server) handleRefreshList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, listResponse{Rooms: s.coord.RefreshList()})
}

func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID int64  `json:"client_id"`
		RoomID   string `json:"room_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	room, err := s.coord.Refresh(req.ClientID, req.RoomID)
	writeRoom(w, room, err)
}

func (s *server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID int64 `json:"client_id"`
		lobby.CreateDescriptor
	}
	if !decode(w, r, &req) {
		return
	}
	room, err := s.coord.CreateRoom(req.ClientID, req.CreateDescriptor)
	writeRoom(w, room, err)
}

func (s *server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID int64  `json:"client_id"`
		RoomID   string `json:"room_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	room, err := s.coord.Join(req.ClientID, req.RoomID)
	writeRoom(w, room, err)
}

func (s *server) handleQuit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID int64  `json:"client_id"`
		RoomID   string `json:"room_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	room, err := s.coord.Quit(req.ClientID, req.RoomID)
	writeRoom(w, room, err)
}

func (s *server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID   int64  `json:"client_id"`
		RoomID     string `json:"room_id"`
		JoinSecret string `json:"join_secret"`
	}
	if !decode(w, r, &req) {
		return
	}
	room, err := s.coord.Start(req.ClientID, req.RoomID, req.JoinSecret)
	writeRoom(w, room, err)
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID int64  `json:"client_id"`
		Text     string `json:"text"`
	}
	if !decode(w, r, &req) {
		return
	}
	room, err := s.coord.Chat(req.ClientID, req.Text)
	writeRoom(w, room, err)
}

func (s *server) handleKeep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID int64 `json:"client_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, ackResponse{Valid: s.coord.Keep(req.ClientID)})
}

func (s *server) handleKeepList(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID  string   `json:"room_id"`
		UserIDs []string `json:"user_ids"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, ackResponse{Valid: s.coord.KeepList(req.RoomID, req.UserIDs)})
}

func (s *server) handleMatchmaking(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID int64 `json:"client_id"`
		lobby.Criteria
	}
	if !decode(w, r, &req) {
		return
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	room, err := s.coord.Matchmake(req.ClientID, req.Criteria, ip)
	writeRoom(w, room, err)
}

func (s *server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID int64 `json:"client_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, ackResponse{Valid: s.coord.CancelMatch(req.ClientID)})
}

func (s *server) handleRemoteStart(w http.ResponseWriter, r *http.Request) {
	var req fleet.StartRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, fleet.BoolResponse{OK: s.coord.RemoteStart(req.Secret, req.Room)})
}

func (s *server) handleRemoteStop(w http.ResponseWriter, r *http.Request) {
	var req fleet.StopRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, fleet.BoolResponse{OK: s.coord.RemoteStop(req.Secret, req.RoomID)})
}

func (s *server) handleRemoteInfo(w http.ResponseWriter, r *http.Request) {
	var req fleet.InfoRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, fleet.InfoResponse{Rooms: s.coord.RemoteInfo(req.Secret)})
}

// writeRoom applies the wrapped-result contract: expected failures collapse
// to valid=false with no payload, per the lobby error taxonomy.
func writeRoom(w http.ResponseWriter, room *lobby.Room, err error) {
	if err != nil {
		writeJSON(w, roomResponse{Valid: false})
		return
	}
	writeJSON(w, roomResponse{Valid: true, Room: room})
}

func decode(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
