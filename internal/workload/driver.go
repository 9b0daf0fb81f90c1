package workload

import (
	"fmt"
	"math/rand"
	"sync"

	"dhtsim/internal/overlay"
)

// Descriptor is the workload options table from the protocol description:
// how many nodes to bootstrap and how many operations of each class to run.
type Descriptor struct {
	N         int
	Inserts   int
	Lookups   int
	Updates   int
	Deletes   int
	JoinLeave int
	K         int
	Seed      int64
}

// OpResult is one recorded operation outcome, ready for metrics.Aggregator.
type OpResult struct {
	OpClass string
	Hops    int
	Err     error
}

// Driver runs a Descriptor's phases against one overlay.Capability, in the
// fixed order insert -> lookup -> update -> delete -> churn -> kquery.
type Driver struct {
	cap  overlay.Capability
	src  KeySource
	desc Descriptor
	rng  *rand.Rand

	liveKeys []string
	values   map[string]any
}

// New builds a Driver over cap, reading from src.
func New(cap overlay.Capability, src KeySource, desc Descriptor) *Driver {
	return &Driver{
		cap:    cap,
		src:    src,
		desc:   desc,
		rng:    rand.New(rand.NewSource(desc.Seed)),
		values: make(map[string]any),
	}
}

// Bootstrap joins N nodes sequentially through the first as bootstrap, then
// runs a maintenance barrier so routing state is stable before operations
// begin.
func (d *Driver) Bootstrap() error {
	for i := 0; i < d.desc.N; i++ {
		label := fmt.Sprintf("%s-node-%d", d.cap.Protocol(), i)
		if _, _, err := d.cap.Join(label); err != nil {
			return fmt.Errorf("workload: bootstrap join %d failed: %w", i, err)
		}
	}
	d.cap.MaintenanceBarrier()
	return nil
}

// Run executes every phase in order and returns every recorded operation.
func (d *Driver) Run() ([]OpResult, error) {
	if d.cap.Live() == 0 {
		if err := d.Bootstrap(); err != nil {
			return nil, err
		}
	}

	var results []OpResult
	results = append(results, d.runInserts()...)
	results = append(results, d.runLookups()...)
	results = append(results, d.runUpdates()...)
	results = append(results, d.runDeletes()...)
	results = append(results, d.runChurn()...)
	results = append(results, d.runKQuery()...)
	return results, nil
}

func (d *Driver) runInserts() []OpResult {
	out := make([]OpResult, 0, d.desc.Inserts)
	for i := 0; i < d.desc.Inserts; i++ {
		key, value, ok := d.src.Next()
		if !ok {
			break
		}
		hops, err := d.cap.Put(key, value)
		out = append(out, OpResult{OpClass: "insert", Hops: hops, Err: err})
		if err == nil {
			d.liveKeys = append(d.liveKeys, key)
			d.values[key] = value
		}
	}
	return out
}

func (d *Driver) runLookups() []OpResult {
	out := make([]OpResult, 0, d.desc.Lookups)
	for i := 0; i < d.desc.Lookups; i++ {
		key, ok := d.randomLiveKey()
		if !ok {
			break
		}
		_, hops, err := d.cap.Get(key)
		out = append(out, OpResult{OpClass: "lookup", Hops: hops, Err: err})
	}
	return out
}

func (d *Driver) runUpdates() []OpResult {
	out := make([]OpResult, 0, d.desc.Updates)
	for i := 0; i < d.desc.Updates; i++ {
		key, ok := d.randomLiveKey()
		if !ok {
			break
		}
		newValue := fmt.Sprintf("%v-updated-%d", d.values[key], i)
		hops, err := d.cap.Update(key, newValue)
		out = append(out, OpResult{OpClass: "update", Hops: hops, Err: err})
		if err == nil {
			d.values[key] = newValue
		}
	}
	return out
}

func (d *Driver) runDeletes() []OpResult {
	out := make([]OpResult, 0, d.desc.Deletes)
	for i := 0; i < d.desc.Deletes; i++ {
		idx, ok := d.randomLiveKeyIndex()
		if !ok {
			break
		}
		key := d.liveKeys[idx]
		hops, err := d.cap.Delete(key)
		out = append(out, OpResult{OpClass: "delete", Hops: hops, Err: err})
		if err == nil {
			d.removeLiveKey(idx)
			delete(d.values, key)
		}
	}
	return out
}

func (d *Driver) runChurn() []OpResult {
	out := make([]OpResult, 0, d.desc.JoinLeave*2)
	for i := 0; i < d.desc.JoinLeave; i++ {
		label := fmt.Sprintf("%s-churn-%d", d.cap.Protocol(), i)
		_, hops, err := d.cap.Join(label)
		out = append(out, OpResult{OpClass: "join", Hops: hops, Err: err})
		if err != nil {
			continue
		}

		live := d.cap.LiveIDs()
		if len(live) == 0 {
			continue
		}
		victim := live[d.rng.Intn(len(live))]
		hops, err = d.cap.Leave(victim)
		out = append(out, OpResult{OpClass: "leave", Hops: hops, Err: err})
	}
	if d.desc.JoinLeave > 0 {
		d.cap.MaintenanceBarrier()
	}
	return out
}

// runKQuery issues K concurrent lookups, one goroutine per in-flight
// lookup capped at K and synchronized with sync.WaitGroup (the teacher's
// tester.runQueryWave shape). Each worker draws its target key from its
// own child RNG stream (splitmix64(seed XOR splitmix64(taskIndex))) rather than the
// shared driver RNG, so the sample stays reproducible regardless of
// goroutine scheduling order.
func (d *Driver) runKQuery() []OpResult {
	total := len(d.liveKeys)
	if d.desc.K <= 0 || total == 0 {
		return nil
	}
	n := d.desc.K

	out := make([]OpResult, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			rng := childRNG(d.desc.Seed, i)
			key := d.liveKeys[rng.Intn(total)]
			_, hops, err := d.cap.Get(key)
			out[i] = OpResult{OpClass: "kquery", Hops: hops, Err: err}
		}(i)
	}
	wg.Wait()
	return out
}

func (d *Driver) randomLiveKey() (string, bool) {
	idx, ok := d.randomLiveKeyIndex()
	if !ok {
		return "", false
	}
	return d.liveKeys[idx], true
}

func (d *Driver) randomLiveKeyIndex() (int, bool) {
	if len(d.liveKeys) == 0 {
		return 0, false
	}
	return d.rng.Intn(len(d.liveKeys)), true
}

func (d *Driver) removeLiveKey(idx int) {
	last := len(d.liveKeys) - 1
	d.liveKeys[idx] = d.liveKeys[last]
	d.liveKeys = d.liveKeys[:last]
}
