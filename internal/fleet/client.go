package fleet

import (
	"context"
	"strings"
)

// Client issues the fleet-internal RPCs one lobby instance uses to drive
// another: remote start, remote stop, and inventory polling. Every call
// carries the shared fleet secret; peers that do not recognize the secret
// answer with an empty or false result.
//
// The client is synchronous. Fire-and-forget behavior is the caller's
// concern (the lobby coordinator runs these calls on its outbound worker so
// request handling never blocks on a peer).
type Client struct {
	secret string
}

// NewClient creates a fleet client presenting secret on every call.
func NewClient(secret string) *Client {
	return &Client{secret: secret}
}

// StartGame asks the instance at addr to launch the dedicated game-server
// process for room. The returned bool is the peer's ack; false means the
// peer rejected the request (bad secret included).
func (c *Client) StartGame(ctx context.Context, addr string, room RoomInfo) (bool, error) {
	var resp BoolResponse
	err := PostJSON(ctx, joinURL(addr, "/remote/start"), StartRequest{Secret: c.secret, Room: room}, &resp)
	if err != nil {
		return false, err
	}
	return resp.OK, nil
}

// StopGame asks the instance at addr to terminate the process for roomID.
func (c *Client) StopGame(ctx context.Context, addr, roomID string) (bool, error) {
	var resp BoolResponse
	err := PostJSON(ctx, joinURL(addr, "/remote/stop"), StopRequest{Secret: c.secret, RoomID: roomID}, &resp)
	if err != nil {
		return false, err
	}
	return resp.OK, nil
}

// Inventory asks the instance at addr for its live dedicated-room list.
func (c *Client) Inventory(ctx context.Context, addr string) ([]RoomInfo, error) {
	var resp InfoResponse
	err := PostJSON(ctx, joinURL(addr, "/remote/info"), InfoRequest{Secret: c.secret}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Rooms, nil
}

func joinURL(addr, path string) string {
	return strings.TrimRight(addr, "/") + path
}
