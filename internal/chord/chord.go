// Package chord implements the Chord ring overlay: successor list,
// predecessor, finger table, stabilize/fix-fingers/check-predecessor
// maintenance, and key responsibility handoff on join/leave.
//
// Node ownership follows the teacher's Ring/routingtable pattern
// generalized to single-process id-keyed resolution: every node is an
// entry in an overlay-owned arena keyed by hex identifier string, and
// nodes reference each other by identifier, never by pointer.
package chord

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
	id             idspace.ID
	label          string
	hasPredecessor bool
	predecessor    idspace.ID

	succMu     sync.Mutex   // guards successors: read/trimmed by concurrent routed lookups
	successors []idspace.ID // ordered, len <= succListSize

	fingers []idspace.ID // len == sp.Bits, may contain nils
	store   *store.Store
}

// Overlay is a Chord ring of in-process nodes.
type Overlay struct {
	sp           idspace.Space
	succListSize int
	bus          *bus.Bus
	lgr          logger.Logger

	mu    sync.RWMutex
	nodes map[string]*node
	order []string // join order; order[0] is the bootstrap node
}

// New builds an empty Chord overlay.
func New(sp idspace.Space, succListSize int, b *bus.Bus, lgr logger.Logger) *Overlay {
	if lgr == nil {
		lgr = logger.NopLogger{}
	}
	return &Overlay{
		sp:           sp,
		succListSize: succListSize,
		bus:          b,
		lgr:          lgr,
		nodes:        make(map[string]*node),
	}
}

func (o *Overlay) Protocol() string { return "chord" }

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

// Join hashes label to an identifier (retrying on collision up to a bounded
// count), wires it into the ring via the existing bootstrap node, and hands
// off the keys it is now responsible for.
func (o *Overlay) Join(label string) (idspace.ID, int, error) {
	o.mu.Lock()
	id, err := o.freshID(label)
	if err != nil {
		o.mu.Unlock()
		return nil, 0, err
	}

	n := &node{
		id:      id,
		label:   label,
		store:   store.New(o.lgr.Named("store").With(logger.F("node", label))),
		fingers: make([]idspace.ID, o.sp.Bits),
	}

	if len(o.nodes) == 0 {
		n.successors = []idspace.ID{id}
		n.hasPredecessor = false
		o.nodes[id.Hex()] = n
		o.order = append(o.order, id.Hex())
		o.mu.Unlock()
		return id, 0, nil
	}

	bootstrapHex := o.order[0]
	bootstrap := o.nodes[bootstrapHex]
	o.nodes[id.Hex()] = n
	o.order = append(o.order, id.Hex())
	o.mu.Unlock()

	ctx := context.Background()
	counter := &bus.HopCounter{}
	succ, err := o.findSuccessor(ctx, bootstrap, id, "join", counter)
	if err != nil {
		return nil, int(counter.Load()), err
	}

	n.successors = []idspace.ID{succ.id}
	n.hasPredecessor = false

	// Pull every key the new node is now responsible for: those in
	// (predecessor_of_succ, new_node.id].
	var predOfSucc idspace.ID
	if succ.hasPredecessor {
		predOfSucc = succ.predecessor
	} else {
		predOfSucc = succ.id
	}
	handoff := succ.store.Between(o.sp, predOfSucc, id)
	if len(handoff) > 0 {
		n.store.Absorb(handoff)
		ids := make([]idspace.ID, len(handoff))
		for i, e := range handoff {
			ids[i] = e.ID
		}
		succ.store.Remove(ids)
	}

	o.bus.Deliver(ctx, "join", n.label, counter)
	return id, int(counter.Load()), nil
}

// freshID hashes label, retrying with a disambiguating suffix on collision.
// Caller must hold o.mu.
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

// Leave removes n gracefully: it transfers its keys to its successor and
// repairs its immediate neighbors' pointers so the ring stays routable
// before the next maintenance barrier.
func (o *Overlay) Leave(id idspace.ID) (int, error) {
	o.mu.Lock()
	n := o.nodeByID(id)
	if n == nil {
		o.mu.Unlock()
		return 0, overlay.New("Leave", overlay.OverlayEmpty)
	}
	delete(o.nodes, id.Hex())
	o.removeFromOrder(id.Hex())

	var succ *node
	if len(n.successors) > 0 {
		succ = o.nodeByID(n.successors[0])
	}
	var pred *node
	if n.hasPredecessor {
		pred = o.nodeByID(n.predecessor)
	}
	o.mu.Unlock()

	if succ != nil {
		succ.store.Absorb(n.store.All())
		if pred != nil {
			succ.hasPredecessor = true
			succ.predecessor = pred.id
		}
	}
	if pred != nil && succ != nil {
		o.replaceSuccessorPointer(pred, id, succ.id)
	}
	return 0, nil
}

// Fail removes n without any handoff, simulating a crash. Stale references
// to it in other nodes' state are repaired lazily at the next maintenance
// barrier.
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

func (o *Overlay) replaceSuccessorPointer(n *node, oldID, newID idspace.ID) {
	n.succMu.Lock()
	defer n.succMu.Unlock()
	for i, s := range n.successors {
		if s.Equal(oldID) {
			n.successors[i] = newID
			return
		}
	}
}

// entryNode returns an arbitrary live node to start routing from.
func (o *Overlay) entryNode() *node {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if len(o.order) == 0 {
		return nil
	}
	return o.nodes[o.order[0]]
}

// findSuccessor resolves id starting from "from", counting one hop per
// forward via the bus. It never mutates the node arena itself (no
// join/leave runs concurrently with routing, see MaintenanceBarrier), but
// liveSuccessor does repair a node's successor list in place as it scans,
// which concurrent K-query lookups can reach on the same node; that
// repair is synchronized per-node via node.succMu rather than o.mu, so it
// never contends with routing on other nodes.
func (o *Overlay) findSuccessor(ctx context.Context, from *node, id idspace.ID, opClass string, counter *bus.HopCounter) (*node, error) {
	cur := from
	// len(o.nodes) rather than o.Live(): fixFingers routes through here
	// while MaintenanceBarrier already holds o.mu.
	budget := config.HopBudget("chord", len(o.nodes), o.sp.BaseBits)

	for {
		succ := o.liveSuccessor(cur)
		if succ == nil {
			return nil, overlay.New(opClass, overlay.RoutingDiverged)
		}
		if cur.id.Equal(succ.id) || o.sp.Between(id, cur.id, succ.id) {
			return succ, nil
		}
		next := o.closestPrecedingFinger(cur, id)
		if next.id.Equal(cur.id) {
			return succ, nil
		}
		o.bus.Forward(ctx, opClass, cur.label, next.label, counter)
		cur = next
		if int(counter.Load()) > budget {
			return nil, overlay.New(opClass, overlay.RoutingDiverged)
		}
	}
}

// liveSuccessor returns the first live entry in n's successor list,
// repairing the list in place by dropping dead entries as it scans.
// Guarded by n.succMu since concurrent K-query lookups can call this on
// the same node from goroutines holding no overlay-wide lock.
func (o *Overlay) liveSuccessor(n *node) *node {
	n.succMu.Lock()
	defer n.succMu.Unlock()
	for len(n.successors) > 0 {
		s := o.nodeByID(n.successors[0])
		if s != nil {
			return s
		}
		n.successors = n.successors[1:]
	}
	return nil
}

func (o *Overlay) closestPrecedingFinger(n *node, id idspace.ID) *node {
	for i := len(n.fingers) - 1; i >= 0; i-- {
		f := n.fingers[i]
		if f == nil {
			continue
		}
		fn := o.nodeByID(f)
		if fn == nil {
			continue
		}
		if o.sp.InInterval(f, n.id, id, true, true) {
			return fn
		}
	}
	return n
}

// MaintenanceBarrier runs stabilize and fix_fingers for every node to a
// fixed point (bounded iteration count, since the ring sizes used in
// practice converge in O(log N) rounds).
func (o *Overlay) MaintenanceBarrier() {
	o.mu.Lock()
	defer o.mu.Unlock()

	rounds := o.sp.Bits
	if rounds > 64 {
		rounds = 64
	}
	for r := 0; r < rounds; r++ {
		changed := false
		for _, hex := range o.order {
			n := o.nodes[hex]
			if o.stabilize(n) {
				changed = true
			}
		}
		if !changed && r > 0 {
			break
		}
	}
	for _, hex := range o.order {
		n := o.nodes[hex]
		o.checkPredecessor(n)
		o.fixFingers(n)
	}
}

// stabilize reports whether it changed n's successor pointer.
func (o *Overlay) stabilize(n *node) bool {
	succ := o.liveSuccessor(n)
	if succ == nil {
		return false
	}
	changed := false
	if succ.hasPredecessor {
		p := o.nodeByID(succ.predecessor)
		if p != nil && !p.id.Equal(succ.id) && o.sp.InInterval(p.id, n.id, succ.id, true, true) {
			n.succMu.Lock()
			n.successors = append([]idspace.ID{p.id}, n.successors...)
			n.succMu.Unlock()
			succ = p
			changed = true
		}
	}
	o.notify(succ, n)
	o.trimSuccessorList(n)
	return changed
}

func (o *Overlay) trimSuccessorList(n *node) {
	n.succMu.Lock()
	defer n.succMu.Unlock()
	if len(n.successors) <= o.succListSize {
		return
	}
	n.successors = n.successors[:o.succListSize]
}

// notify is receiver.Notify(n) from the protocol description: receiver
// accepts n as its predecessor if it has none, or n is strictly between
// its current predecessor and itself.
func (o *Overlay) notify(receiver, n *node) {
	if receiver == nil || n == nil {
		return
	}
	if !receiver.hasPredecessor {
		receiver.hasPredecessor = true
		receiver.predecessor = n.id
		return
	}
	p := o.nodeByID(receiver.predecessor)
	if p == nil || o.sp.InInterval(n.id, receiver.predecessor, receiver.id, true, true) {
		receiver.predecessor = n.id
	}
}

func (o *Overlay) checkPredecessor(n *node) {
	if !n.hasPredecessor {
		return
	}
	if o.nodeByID(n.predecessor) == nil {
		n.hasPredecessor = false
	}
}

func (o *Overlay) fixFingers(n *node) {
	for i := 0; i < o.sp.Bits; i++ {
		target := o.sp.AddPow2(n.id, i)
		succ, err := o.findSuccessor(context.Background(), n, target, "fix_fingers", &bus.HopCounter{})
		if err != nil {
			continue
		}
		n.fingers[i] = succ.id
	}
}

// --- key operations -------------------------------------------------

func (o *Overlay) routeTo(ctx context.Context, key string, opClass string) (*node, idspace.ID, int, error) {
	entry := o.entryNode()
	if entry == nil {
		return nil, nil, 0, overlay.New(opClass, overlay.OverlayEmpty)
	}
	id := o.sp.Hash([]byte(key))
	counter := &bus.HopCounter{}
	n, err := o.findSuccessor(ctx, entry, id, opClass, counter)
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

// Successor exposes n's live successor for testing the consistency
// invariant from the outside.
func (o *Overlay) Successor(id idspace.ID) (idspace.ID, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	n := o.nodeByID(id)
	if n == nil {
		return nil, false
	}
	s := o.liveSuccessor(n)
	if s == nil {
		return nil, false
	}
	return s.id, true
}

// Predecessor exposes n's predecessor for tests.
func (o *Overlay) Predecessor(id idspace.ID) (idspace.ID, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	n := o.nodeByID(id)
	if n == nil || !n.hasPredecessor {
		return nil, false
	}
	return n.predecessor, true
}

// LiveIDs returns every currently-joined node identifier in ring order.
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
