// Package ports provides fleet-wide port bookkeeping for dedicated
// game-server processes, enabling collision-free port assignment without a
// central port registry.
//
// # Overview
//
// Every lobby instance in the fleet runs its own Allocator. An instance
// reserves a port at the moment it creates a dedicated room, whether the
// room's process will run locally or on a peer host, and releases it when
// the room dies. Because each instance also periodically re-applies every
// peer's live inventory (see the lobby coordinator's reconciliation sweep),
// the allocators converge on the same view of the fleet even when stop
// notifications are lost.
//
// # Allocation Model
//
//	Host "10.0.0.5"          Host "10.0.0.6"
//	┌──────────────────┐     ┌──────────────────┐
//	│ 7777 ── room A   │     │ 7777 ── room C   │
//	│ 7778 ── room B   │     │ 7778    free     │
//	│ 7779    free     │     │ 7779    free     │
//	└──────────────────┘     └──────────────────┘
//
// AllocateDedicated scans the range linearly from the bottom, so released
// ports are reused eagerly and the occupied set stays dense. Host selection
// (PickLeastLoadedHost) simply favors the host with the fewest reservations.
//
// # Invariant
//
// A port is a member of a host's set exactly while some live dedicated room
// is bound to (host, port). The allocator itself cannot enforce this; the
// coordinator does, by reserving atomically with room creation and releasing
// on room removal. ResetHost plus inventory re-application repairs any
// drift.
//
// # Thread Safety
//
// All methods are safe for concurrent use. The coordinator nevertheless
// serializes allocate-then-create sequences under its own lock so the
// reserve and the room registration are observed atomically.
package ports
