package lobby

import "errors"

// Expected, locally recoverable failure conditions. Handlers translate these
// into the wrapped {valid:false} response contract; none of them is ever
// allowed to escalate into a process-level fault.
var (
	// ErrNotFound is returned when a referenced player or room id is unknown.
	ErrNotFound = errors.New("not found")

	// ErrCapacityExceeded is returned when the fleet-wide room count has
	// reached the configured maximum.
	ErrCapacityExceeded = errors.New("room capacity exceeded")

	// ErrRoomFull is returned when joining a room whose member count has
	// reached its capacity.
	ErrRoomFull = errors.New("room is full")

	// ErrRoomEnded is returned when joining a room in the terminal Ended state.
	ErrRoomEnded = errors.New("room has ended")

	// ErrStateConflict is returned when an operation is not legal in the
	// room's current state, e.g. starting an already-started room.
	ErrStateConflict = errors.New("operation not allowed in current room state")

	// ErrUnauthorized is returned when the caller is not allowed to perform
	// the operation: a non-owner starting a room, or a fleet RPC presenting
	// the wrong secret.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConnectionsDisabled is returned by Connect while the instance is not
	// accepting connections. The message is part of the wire contract.
	ErrConnectionsDisabled = errors.New("Connection Disabled!")
)
