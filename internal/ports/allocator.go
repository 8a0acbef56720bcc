// Package ports implements game-server port bookkeeping for the lobby fleet.
// See doc.go for complete package documentation.
package ports

import (
	"errors"
	"sync"
)

// ErrExhausted is returned by AllocateDedicated when every port in the
// configured range is already reserved on the requested host.
var ErrExhausted = errors.New("no free port in configured range")

// Allocator tracks which dedicated game-server ports are in use on each host
// of the fleet, serving as the authoritative source for port placement
// decisions made by the lobby coordinator.
//
// The allocator is pure bookkeeping: it never opens sockets. A port is
// reserved here exactly while some live dedicated room is bound to
// (host, port), either because this instance created the room or because a
// peer's inventory reported it during reconciliation.
//
// Allocation scheme:
//   - Ports are scanned linearly from min to max
//   - The first unreserved port wins
//   - Deterministic and auditable; collision-free because reservation
//     happens atomically with room creation under the coordinator
//
// Concurrency Model:
//   - Read operations use RLock for parallel access
//   - Write operations use Lock for exclusive access
//   - Snapshot returns copies to prevent races
type Allocator struct {
	// inUse maps host identifier to the set of reserved port numbers.
	// A host with no reservations may be absent from the map.
	inUse map[string]map[int]bool

	// mu protects concurrent access to the inUse map.
	mu sync.RWMutex

	// min and max bound the allocatable port range, inclusive.
	min int
	max int
}

// NewAllocator creates an allocator managing the inclusive port range
// [min, max] on every host it is asked about.
//
// The range is fixed for the allocator's lifetime. Typical game-server
// deployments use a 100-200 port window above the well-known range, e.g.
// [7777, 7877].
func NewAllocator(min, max int) *Allocator {
	return &Allocator{
		inUse: make(map[string]map[int]bool),
		min:   min,
		max:   max,
	}
}

// Reserve marks port as in use on host. Idempotent: reserving an
// already-reserved port is a no-op.
func (a *Allocator) Reserve(host string, port int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	set, ok := a.inUse[host]
	if !ok {
		set = make(map[int]bool)
		a.inUse[host] = set
	}
	set[port] = true
}

// Release marks port as free on host. Idempotent: releasing an unreserved
// port is a no-op.
func (a *Allocator) Release(host string, port int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	set, ok := a.inUse[host]
	if !ok {
		return
	}
	delete(set, port)
	if len(set) == 0 {
		delete(a.inUse, host)
	}
}

// InUse reports whether port is currently reserved on host.
func (a *Allocator) InUse(host string, port int) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.inUse[host][port]
}

// Count returns the number of ports currently reserved on host.
func (a *Allocator) Count(host string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.inUse[host])
}

// PickLeastLoadedHost returns the candidate host with the fewest reserved
// ports. Ties are broken by iteration order: the first candidate that
// attains the minimum wins. This is an intentional simple load-spreading
// heuristic, not a strict load balancer.
//
// Returns the empty string when candidates is empty.
func (a *Allocator) PickLeastLoadedHost(candidates []string) string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	best := ""
	bestCount := -1
	for _, host := range candidates {
		n := len(a.inUse[host])
		if bestCount < 0 || n < bestCount {
			best = host
			bestCount = n
		}
	}
	return best
}

// AllocateDedicated reserves and returns the lowest free port on host,
// scanning linearly from the bottom of the configured range.
//
// Returns ErrExhausted when every port in [min, max] is reserved. The
// returned port is already reserved on exit; callers that fail afterwards
// must Release it themselves.
func (a *Allocator) AllocateDedicated(host string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	set, ok := a.inUse[host]
	if !ok {
		set = make(map[int]bool)
		a.inUse[host] = set
	}

	for port := a.min; port <= a.max; port++ {
		if !set[port] {
			set[port] = true
			return port, nil
		}
	}
	return 0, ErrExhausted
}

// ResetHost clears every reservation for host. Used when a peer's live
// inventory is about to be re-applied, so stale reservations from missed
// stop notifications do not accumulate.
func (a *Allocator) ResetHost(host string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.inUse, host)
}

// Snapshot returns a copy of the current reservations for host, for
// introspection and tests. The returned map is safe to modify.
func (a *Allocator) Snapshot(host string) map[int]bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make(map[int]bool, len(a.inUse[host]))
	for port := range a.inUse[host] {
		out[port] = true
	}
	return out
}
