package fleet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestRoomInfoJSON tests RoomInfo wire serialization round-trips and field
// naming.
func TestRoomInfoJSON(t *testing.T) {
	room := RoomInfo{
		ID:         "room-1",
		Title:      "deathmatch",
		Host:       "10.0.0.5",
		Port:       7777,
		Capacity:   8,
		Extra:      "ffa",
		JoinSecret: "s3cret",
	}

	data, err := json.Marshal(room)
	if err != nil {
		t.Fatalf("Failed to marshal RoomInfo: %v", err)
	}

	var jsonMap map[string]interface{}
	if err := json.Unmarshal(data, &jsonMap); err != nil {
		t.Fatalf("Failed to unmarshal JSON: %v", err)
	}
	if jsonMap["id"] != "room-1" {
		t.Errorf("Expected id 'room-1', got %v", jsonMap["id"])
	}
	if jsonMap["port"] != float64(7777) {
		t.Errorf("Expected port 7777, got %v", jsonMap["port"])
	}

	var decoded RoomInfo
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal RoomInfo: %v", err)
	}
	if decoded != room {
		t.Errorf("Round-trip mismatch: got %+v, want %+v", decoded, room)
	}
}

// TestRoomInfoOmitsEmptyOptionalFields verifies optional fields are dropped
// from the wire form when unset, keeping inventory payloads compact.
func TestRoomInfoOmitsEmptyOptionalFields(t *testing.T) {
	data, err := json.Marshal(RoomInfo{ID: "room-1", Host: "h", Port: 7777})
	if err != nil {
		t.Fatalf("Failed to marshal RoomInfo: %v", err)
	}

	var jsonMap map[string]interface{}
	if err := json.Unmarshal(data, &jsonMap); err != nil {
		t.Fatalf("Failed to unmarshal JSON: %v", err)
	}
	for _, field := range []string{"extra", "join_secret", "permanent"} {
		if _, ok := jsonMap[field]; ok {
			t.Errorf("Expected %q to be omitted when empty", field)
		}
	}
}

// TestPostJSON tests the PostJSON helper against an httptest server.
func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected application/json, got %s", ct)
		}
		var req StopRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		if req.RoomID != "room-9" {
			t.Errorf("Expected room-9, got %s", req.RoomID)
		}
		json.NewEncoder(w).Encode(BoolResponse{OK: true})
	}))
	defer srv.Close()

	var resp BoolResponse
	err := PostJSON(context.Background(), srv.URL, StopRequest{Secret: "s", RoomID: "room-9"}, &resp)
	if err != nil {
		t.Fatalf("PostJSON failed: %v", err)
	}
	if !resp.OK {
		t.Error("Expected OK response")
	}
}

// TestPostJSONErrorStatus verifies non-2xx responses surface as errors.
func TestPostJSONErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := PostJSON(context.Background(), srv.URL, struct{}{}, nil)
	if err == nil {
		t.Fatal("Expected error for 400 response")
	}
}

// TestGetJSON tests the GetJSON helper.
func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(InfoResponse{Rooms: []RoomInfo{{ID: "r", Host: "h", Port: 7800}}})
	}))
	defer srv.Close()

	var resp InfoResponse
	if err := GetJSON(context.Background(), srv.URL, &resp); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if len(resp.Rooms) != 1 || resp.Rooms[0].Port != 7800 {
		t.Errorf("Unexpected response: %+v", resp)
	}
}
