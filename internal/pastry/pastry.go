// Package pastry implements the Pastry prefix-routing overlay: leaf set,
// routing table, join via a traced path, and numeric-proximity key
// responsibility.
//
// There is no Pastry implementation in the retrieved reference corpus, so
// this package is grounded on the protocol description itself plus the
// teacher's arena/ownership idiom (routingtable.go's node-table-owned-by-
// the-overlay pattern, generalized from Chord+de Bruijn to Pastry's own
// leaf-set/routing-table shape) and its storage/logging conventions.
//
// Simplification documented in DESIGN.md: because every node lives in one
// process and the overlay arena already holds full membership (exactly
// like the teacher's Ring held every Vnode), MaintenanceBarrier and Join
// rebuild each node's leaf set and routing table directly from global
// membership instead of simulating per-node gossip messages. The routing
// algorithm itself (Route, rare-case fallback) only ever consults a node's
// own leaf set / routing table snapshot, so the loop-free routing property
// and the prefix/leaf invariants in §8 hold regardless of how those
// snapshots were populated.
package pastry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"dhtsim/internal/bus"
	"dhtsim/internal/config"
	"dhtsim/internal/idspace"
	"dhtsim/internal/logger"
	"dhtsim/internal/overlay"
	"dhtsim/internal/store"
)

const maxRehashAttempts = 8

type node struct {
	id           idspace.ID
	label        string
	leafSet      []idspace.ID   // live neighbors, closest first, both directions mixed
	routingTable [][]idspace.ID // [row][col], nil entry = empty slot
	store        *store.Store
}

// Overlay is a Pastry prefix-routing overlay of in-process nodes.
type Overlay struct {
	sp          idspace.Space
	leafSetSize int
	rows        int
	cols        int
	bus         *bus.Bus
	lgr         logger.Logger

	mu    sync.RWMutex
	nodes map[string]*node
	order []string
}

// New builds an empty Pastry overlay.
func New(sp idspace.Space, leafSetSize int, b *bus.Bus, lgr logger.Logger) *Overlay {
	if lgr == nil {
		lgr = logger.NopLogger{}
	}
	return &Overlay{
		sp:          sp,
		leafSetSize: leafSetSize,
		rows:        sp.Rows(),
		cols:        sp.DigitBase(),
		bus:         b,
		lgr:         lgr,
		nodes:       make(map[string]*node),
	}
}

func (o *Overlay) Protocol() string { return "pastry" }

func (o *Overlay) Live() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.nodes)
}

func (o *Overlay) nodeByID(id idspace.ID) *node {
	if id == nil {
		return nil
	}
	return o.nodes[id.Hex()]
}

func (o *Overlay) newRoutingTable() [][]idspace.ID {
	rt := make([][]idspace.ID, o.rows)
	for r := range rt {
		rt[r] = make([]idspace.ID, o.cols)
	}
	return rt
}

// Join hashes label to an identifier, routes a join message from the
// existing bootstrap node toward it to find the numerically nearest
// existing node, registers the new node, rebuilds every node's tables from
// global membership, and hands off the keys now closer to the new node.
func (o *Overlay) Join(label string) (idspace.ID, int, error) {
	o.mu.Lock()
	id, err := o.freshID(label)
	if err != nil {
		o.mu.Unlock()
		return nil, 0, err
	}

	n := &node{
		id:           id,
		label:        label,
		store:        store.New(o.lgr.Named("store").With(logger.F("node", label))),
		routingTable: o.newRoutingTable(),
	}

	if len(o.nodes) == 0 {
		o.nodes[id.Hex()] = n
		o.order = append(o.order, id.Hex())
		o.mu.Unlock()
		return id, 0, nil
	}

	bootstrap := o.nodes[o.order[0]]
	o.mu.Unlock()

	ctx := context.Background()
	counter := &bus.HopCounter{}
	nearest, err := o.route(ctx, bootstrap, id, "join", counter)
	if err != nil {
		return nil, int(counter.Load()), err
	}

	o.mu.Lock()
	o.nodes[id.Hex()] = n
	o.order = append(o.order, id.Hex())
	o.recomputeAllLocked()
	o.mu.Unlock()

	handoff := nearest.store.All()
	var migrate []store.Entry
	for _, e := range handoff {
		if o.sp.NumericDistance(e.ID, id).Cmp(o.sp.NumericDistance(e.ID, nearest.id)) < 0 {
			migrate = append(migrate, e)
		}
	}
	if len(migrate) > 0 {
		n.store.Absorb(migrate)
		ids := make([]idspace.ID, len(migrate))
		for i, e := range migrate {
			ids[i] = e.ID
		}
		nearest.store.Remove(ids)
	}

	o.bus.Deliver(ctx, "join", n.label, counter)
	return id, int(counter.Load()), nil
}

func (o *Overlay) freshID(label string) (idspace.ID, error) {
	candidate := label
	for i := 0; i < maxRehashAttempts; i++ {
		id := o.sp.Hash([]byte(candidate))
		if _, exists := o.nodes[id.Hex()]; !exists {
			return id, nil
		}
		candidate = fmt.Sprintf("%s#%d", label, i)
	}
	return nil, overlay.New("Join", overlay.DuplicateId)
}

// Leave removes n gracefully: its keys go to the numerically-nearest live
// node, and every other node's tables are rebuilt from the resulting
// membership.
func (o *Overlay) Leave(id idspace.ID) (int, error) {
	o.mu.Lock()
	n := o.nodeByID(id)
	if n == nil {
		o.mu.Unlock()
		return 0, overlay.New("Leave", overlay.OverlayEmpty)
	}
	delete(o.nodes, id.Hex())
	o.removeFromOrder(id.Hex())

	nearest := o.nearestLiveLocked(id)
	o.recomputeAllLocked()
	o.mu.Unlock()

	if nearest != nil {
		nearest.store.Absorb(n.store.All())
	}
	return 0, nil
}

// Fail removes n without handoff or immediate table repair, simulating a
// crash; stale references are discovered at the next MaintenanceBarrier.
func (o *Overlay) Fail(id idspace.ID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.nodes, id.Hex())
	o.removeFromOrder(id.Hex())
}

func (o *Overlay) removeFromOrder(hex string) {
	for i, h := range o.order {
		if h == hex {
			o.order = append(o.order[:i], o.order[i+1:]...)
			return
		}
	}
}

// nearestLiveLocked returns the live node numerically closest to id,
// excluding id itself. Caller must hold o.mu.
func (o *Overlay) nearestLiveLocked(id idspace.ID) *node {
	var best *node
	var bestDist idspace.ID
	for _, n := range o.nodes {
		if n.id.Equal(id) {
			continue
		}
		d := o.sp.NumericDistance(n.id, id)
		if best == nil || d.Cmp(bestDist) < 0 {
			best, bestDist = n, d
		}
	}
	return best
}

// recomputeAllLocked rebuilds every live node's leaf set and routing table
// from current membership. Caller must hold o.mu.
func (o *Overlay) recomputeAllLocked() {
	ids := make([]idspace.ID, 0, len(o.nodes))
	for _, n := range o.nodes {
		ids = append(ids, n.id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Cmp(ids[j]) < 0 })

	for _, n := range o.nodes {
		n.leafSet = o.computeLeafSet(n.id, ids)
		n.routingTable = o.computeRoutingTable(n.id)
	}
}

func (o *Overlay) computeLeafSet(self idspace.ID, sorted []idspace.ID) []idspace.ID {
	if len(sorted) <= 1 {
		return nil
	}
	pos := sort.Search(len(sorted), func(i int) bool { return sorted[i].Cmp(self) >= 0 })
	half := o.leafSetSize / 2

	seen := map[string]bool{self.Hex(): true}
	var out []idspace.ID

	for i := 1; i <= half && len(out) < half; i++ {
		idx := ((pos-i)%len(sorted) + len(sorted)) % len(sorted)
		id := sorted[idx]
		if seen[id.Hex()] {
			continue
		}
		seen[id.Hex()] = true
		out = append(out, id)
	}
	for i := 1; i <= half && len(out) < o.leafSetSize; i++ {
		idx := (pos + i) % len(sorted)
		id := sorted[idx]
		if seen[id.Hex()] {
			continue
		}
		seen[id.Hex()] = true
		out = append(out, id)
	}
	return out
}

func (o *Overlay) computeRoutingTable(self idspace.ID) [][]idspace.ID {
	rt := o.newRoutingTable()
	type cell struct {
		dist idspace.ID
		id   idspace.ID
	}
	best := make(map[[2]int]cell)
	for _, n := range o.nodes {
		if n.id.Equal(self) {
			continue
		}
		r := o.sp.SharedPrefixLen(self, n.id)
		if r >= o.rows {
			continue
		}
		c := o.sp.Digit(n.id, r)
		d := o.sp.NumericDistance(self, n.id)
		key := [2]int{r, c}
		cur, ok := best[key]
		if !ok || d.Cmp(cur.dist) < 0 {
			best[key] = cell{dist: d, id: n.id}
		}
	}
	for k, v := range best {
		rt[k[0]][k[1]] = v.id
	}
	return rt
}

// route resolves target starting from "from", counting one hop per forward.
func (o *Overlay) route(ctx context.Context, from *node, target idspace.ID, opClass string, counter *bus.HopCounter) (*node, error) {
	cur := from
	budget := config.HopBudget("pastry", o.Live(), o.sp.BaseBits)

	for {
		if within, closest := o.closestInLeafRange(cur, target); within {
			if closest.id.Equal(cur.id) {
				return cur, nil
			}
			o.bus.Forward(ctx, opClass, cur.label, closest.label, counter)
			cur = closest
			if int(counter.Load()) > budget {
				return nil, overlay.New(opClass, overlay.RoutingDiverged)
			}
			continue
		}

		l := o.sp.SharedPrefixLen(cur.id, target)
		if l < len(cur.routingTable) {
			col := o.sp.Digit(target, l)
			if entryID := cur.routingTable[l][col]; entryID != nil {
				if n2 := o.nodeByID(entryID); n2 != nil {
					o.bus.Forward(ctx, opClass, cur.label, n2.label, counter)
					cur = n2
					if int(counter.Load()) > budget {
						return nil, overlay.New(opClass, overlay.RoutingDiverged)
					}
					continue
				}
			}
		}

		if candidate := o.rareCaseCandidate(cur, target, l); candidate != nil {
			o.bus.Forward(ctx, opClass, cur.label, candidate.label, counter)
			cur = candidate
			if int(counter.Load()) > budget {
				return nil, overlay.New(opClass, overlay.RoutingDiverged)
			}
			continue
		}

		return cur, nil
	}
}

func (o *Overlay) closestInLeafRange(cur *node, target idspace.ID) (bool, *node) {
	if len(cur.leafSet) == 0 {
		return false, nil
	}
	maxDist := o.sp.NumericDistance(cur.leafSet[0], cur.id)
	for _, lid := range cur.leafSet[1:] {
		d := o.sp.NumericDistance(lid, cur.id)
		if d.Cmp(maxDist) > 0 {
			maxDist = d
		}
	}
	if o.sp.NumericDistance(target, cur.id).Cmp(maxDist) > 0 {
		return false, nil
	}

	best := cur
	bestDist := o.sp.NumericDistance(target, cur.id)
	for _, lid := range cur.leafSet {
		ln := o.nodeByID(lid)
		if ln == nil {
			continue
		}
		d := o.sp.NumericDistance(target, lid)
		if d.Cmp(bestDist) < 0 {
			best, bestDist = ln, d
		}
	}
	return true, best
}

func (o *Overlay) rareCaseCandidate(cur *node, target idspace.ID, l int) *node {
	selfDist := o.sp.NumericDistance(cur.id, target)
	var best *node
	var bestDist idspace.ID

	consider := func(id idspace.ID) {
		if id == nil {
			return
		}
		cn := o.nodeByID(id)
		if cn == nil || cn.id.Equal(cur.id) {
			return
		}
		if o.sp.SharedPrefixLen(cn.id, target) < l {
			return
		}
		d := o.sp.NumericDistance(cn.id, target)
		if d.Cmp(selfDist) >= 0 {
			return
		}
		if best == nil || d.Cmp(bestDist) < 0 {
			best, bestDist = cn, d
		}
	}

	for _, lid := range cur.leafSet {
		consider(lid)
	}
	for _, row := range cur.routingTable {
		for _, id := range row {
			consider(id)
		}
	}
	return best
}

// MaintenanceBarrier rebuilds every live node's leaf set and routing table
// from current membership, repairing any gap left by a prior Fail.
func (o *Overlay) MaintenanceBarrier() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recomputeAllLocked()
}

func (o *Overlay) entryNode() *node {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if len(o.order) == 0 {
		return nil
	}
	return o.nodes[o.order[0]]
}

func (o *Overlay) routeTo(ctx context.Context, key, opClass string) (*node, idspace.ID, int, error) {
	entry := o.entryNode()
	if entry == nil {
		return nil, nil, 0, overlay.New(opClass, overlay.OverlayEmpty)
	}
	id := o.sp.Hash([]byte(key))
	counter := &bus.HopCounter{}
	n, err := o.route(ctx, entry, id, opClass, counter)
	if err != nil {
		return nil, id, int(counter.Load()), err
	}
	o.bus.Deliver(ctx, opClass, n.label, counter)
	return n, id, int(counter.Load()), nil
}

func (o *Overlay) Put(key string, value any) (int, error) {
	n, id, hops, err := o.routeTo(context.Background(), key, "insert")
	if err != nil {
		return hops, err
	}
	n.store.Put(id, key, value)
	return hops, nil
}

func (o *Overlay) Get(key string) (any, int, error) {
	n, id, hops, err := o.routeTo(context.Background(), key, "lookup")
	if err != nil {
		return nil, hops, err
	}
	v, ok := n.store.Get(id)
	if !ok {
		return nil, hops, overlay.New("lookup", overlay.KeyNotFound)
	}
	return v, hops, nil
}

func (o *Overlay) Update(key string, value any) (int, error) {
	n, id, hops, err := o.routeTo(context.Background(), key, "update")
	if err != nil {
		return hops, err
	}
	if _, ok := n.store.Get(id); !ok {
		return hops, overlay.New("update", overlay.KeyNotFound)
	}
	n.store.Put(id, key, value)
	return hops, nil
}

func (o *Overlay) Delete(key string) (int, error) {
	n, id, hops, err := o.routeTo(context.Background(), key, "delete")
	if err != nil {
		return hops, err
	}
	if !n.store.Delete(id) {
		return hops, overlay.New("delete", overlay.KeyNotFound)
	}
	return hops, nil
}

// LeafSet exposes n's current leaf set for invariant tests.
func (o *Overlay) LeafSet(id idspace.ID) ([]idspace.ID, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	n := o.nodeByID(id)
	if n == nil {
		return nil, false
	}
	out := make([]idspace.ID, len(n.leafSet))
	copy(out, n.leafSet)
	return out, true
}

// RoutingEntry exposes routingTable[r][c] for n for invariant tests.
func (o *Overlay) RoutingEntry(id idspace.ID, r, c int) (idspace.ID, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	n := o.nodeByID(id)
	if n == nil || r >= len(n.routingTable) || c >= len(n.routingTable[r]) {
		return nil, false
	}
	return n.routingTable[r][c], n.routingTable[r][c] != nil
}

// LiveIDs returns every currently-joined node identifier, sorted.
func (o *Overlay) LiveIDs() []idspace.ID {
	o.mu.RLock()
	defer o.mu.RUnlock()
	ids := make([]idspace.ID, 0, len(o.nodes))
	for _, n := range o.nodes {
		ids = append(ids, n.id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Cmp(ids[j]) < 0 })
	return ids
}

var _ overlay.Capability = (*Overlay)(nil)
