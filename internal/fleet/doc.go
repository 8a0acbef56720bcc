// Package fleet provides the inter-lobby communication layer that lets a set
// of lobby instances (one per machine) behave as a single pool of dedicated
// game-server capacity.
//
// # Overview
//
// Each lobby instance is authoritative for the rooms it created, but the
// machine a dedicated room runs on is chosen fleet-wide: the least-loaded
// host wins, whether or not that is the instance handling the create
// request. When the chosen host is a peer, the creating instance keeps the
// registry entry (marked remote) and asks the peer to run the process.
//
// # Topology
//
//	┌────────────┐   remote start/stop    ┌────────────┐
//	│  lobby A   │ ─────────────────────► │  lobby B   │
//	│ (registry) │ ◄───────────────────── │ (process)  │
//	└────────────┘    inventory polls     └────────────┘
//
// There is no coordinator above the instances; every instance polls every
// other configured host and reconciles its port bookkeeping against what is
// actually running there.
//
// # Protocol
//
// All RPCs are HTTP POSTs with JSON bodies against the peer's lobby
// endpoint:
//
//   - /remote/start: launch a game-server process for the given room
//   - /remote/stop: terminate the process for a room id
//   - /remote/info: list the dedicated rooms live on that host
//
// Every request carries the shared fleet secret. A peer that does not
// recognize the secret answers with ok=false or an empty room list rather
// than an error, so probing the endpoint reveals nothing about fleet
// topology.
//
// # Consistency
//
// Calls are fire-and-forget from the requesting instance's point of view and
// are never retried synchronously. Drift from lost messages is repaired by
// the inventory poll: the poller clears its cached reservations for the peer
// host and re-reserves exactly the ports the peer reports live.
package fleet
