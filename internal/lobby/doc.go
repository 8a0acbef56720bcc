// Package lobby implements the authoritative lobby and matchmaking state for
// one instance of the service: connected players, active rooms, pending
// matchmaking buckets, and the coordination glue that lets a fleet of such
// instances share one pool of dedicated game-server capacity.
//
// # Overview
//
// A single Coordinator owns every sub-component and is the only writer:
//
//	┌───────────────────────────────────────────────┐
//	│                 Coordinator                   │
//	├───────────────────────────────────────────────┤
//	│  PlayerRegistry   players by client/user id   │
//	│  RoomRegistry     rooms, membership, chat     │
//	│  Matchmaker       pending bucket rooms        │
//	│  ports.Allocator  (host, port) bookkeeping    │
//	│  Launcher         local game-server processes │
//	│  fleet.Client     RPCs to peer lobbies        │
//	├───────────────────────────────────────────────┤
//	│  one mutex: dispatch + sweep + feedback       │
//	│  one worker: outbound fire-and-forget RPCs    │
//	└───────────────────────────────────────────────┘
//
// Inbound requests dispatch to typed Coordinator methods; each method takes
// the coordinator lock, mutates the registries, optionally enqueues an
// outbound RPC, and answers synchronously. A background ticker drives the
// sweep on the same lock.
//
// # Logical Time
//
// Expiry never reads the wall clock. The sweep advances a monotonic tick
// once per interval (1s by default) and all last-seen/last-activity math
// compares ticks, so expiry is immune to clock steps. Players and rooms
// idle for 60 ticks are removed; matchmaking buckets expire sooner.
//
// # Room Lifecycle
//
//	Waiting ──start (owner only)──► Playing ──► Ended
//
// Ended is terminal but rarely observed: empty or expired rooms are deleted
// from the registry directly, releasing their port and stopping their
// process (locally, or by a remote-stop RPC to the peer that runs it).
//
// # Fleet Behavior
//
// Dedicated rooms are placed on the least-loaded fleet host. When that host
// is a peer, the room is registered locally (marked remote), the port is
// reserved locally for bookkeeping, and a fire-and-forget start RPC asks the
// peer to run the process. The response to the creating client never waits
// for the peer; clients retry their game connection with backoff. Every few
// sweeps the coordinator polls each configured peer's inventory and resets
// its reservations for that host to exactly what is reported live, healing
// any drift from lost messages. No two-phase commit anywhere: consistency is
// eventual and self-healing.
package lobby
