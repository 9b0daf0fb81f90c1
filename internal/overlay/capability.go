package overlay

import "dhtsim/internal/idspace"

// Capability is the protocol-agnostic surface that internal/workload drives
// against either a Chord or a Pastry overlay. Each operation returns the
// number of hops the request travelled before it was resolved.
type Capability interface {
	// Join brings a new node with the given label into the overlay via an
	// existing member; the first node of a run joins itself (bootstrap).
	Join(label string) (id idspace.ID, hops int, err error)
	// Leave removes the node gracefully, handing its keys to a successor.
	Leave(id idspace.ID) (hops int, err error)
	// Fail removes the node without handoff, simulating an uncontrolled
	// crash; routing state pointing at it is repaired lazily.
	Fail(id idspace.ID)

	Put(key string, value any) (hops int, err error)
	Get(key string) (value any, hops int, err error)
	Update(key string, value any) (hops int, err error)
	Delete(key string) (hops int, err error)

	// MaintenanceBarrier runs the protocol's stabilization/repair logic to
	// a fixed point. No workload operation runs concurrently with it.
	MaintenanceBarrier()

	// Protocol names the overlay kind ("chord" or "pastry") for reporting.
	Protocol() string
	// Live returns the number of currently joined nodes.
	Live() int
	// LiveIDs returns every currently-joined node identifier, sorted.
	LiveIDs() []idspace.ID
}
