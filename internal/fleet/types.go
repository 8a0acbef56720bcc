package fleet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HostInfo identifies one lobby instance in the fleet.
type HostInfo struct {
	// Name is the host identifier used for port bookkeeping, e.g. an IP or
	// DNS name. It must match what peers put in a room's host field.
	Name string `json:"name"`

	// Addr is the base URL of the instance's lobby endpoint,
	// e.g. "http://10.0.0.5:8070".
	Addr string `json:"addr"`
}

// RoomInfo is the wire-level description of a dedicated room exchanged
// between lobby instances. It carries exactly what a peer needs to launch,
// stop, or account for the room's game-server process.
type RoomInfo struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Capacity   int    `json:"capacity"`
	Extra      string `json:"extra,omitempty"`
	JoinSecret string `json:"join_secret,omitempty"`
	Permanent  bool   `json:"permanent,omitempty"`
}

// StartRequest asks a peer to launch the dedicated game-server process for
// Room on its own machine. The requesting instance has already reserved the
// port in its local bookkeeping.
type StartRequest struct {
	Secret string   `json:"secret"`
	Room   RoomInfo `json:"room"`
}

// StopRequest asks a peer to terminate the process for a room it hosts.
type StopRequest struct {
	Secret string `json:"secret"`
	RoomID string `json:"room_id"`
}

// InfoRequest asks a peer for its current live dedicated-room list.
type InfoRequest struct {
	Secret string `json:"secret"`
}

// InfoResponse carries a peer's live inventory. A peer answering an
// unauthorized request returns an empty list, indistinguishable from an
// idle host.
type InfoResponse struct {
	Rooms []RoomInfo `json:"rooms"`
}

// BoolResponse is the ack for start/stop requests. False covers both
// rejection and authorization failure so callers learn nothing about fleet
// topology from a bad secret.
type BoolResponse struct {
	OK bool `json:"ok"`
}

var httpClient = &http.Client{Timeout: 5 * time.Second}

// PostJSON marshals body, POSTs it to url and, when out is non-nil, decodes
// the JSON response into it. Responses with status >= 300 are errors.
func PostJSON(ctx context.Context, url string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetJSON GETs url and decodes the JSON response into out.
func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
