package pastry

import (
	"fmt"
	"testing"

	"dhtsim/internal/bus"
	"dhtsim/internal/idspace"
	"dhtsim/internal/overlay"
)

func newTestOverlay(t *testing.T) *Overlay {
	sp, err := idspace.NewSpace(24, 4)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	return New(sp, 8, bus.New(false), nil)
}

func joinN(t *testing.T, o *Overlay, n int) []idspace.ID {
	ids := make([]idspace.ID, n)
	for i := 0; i < n; i++ {
		id, _, err := o.Join(fmt.Sprintf("node-%d", i))
		if err != nil {
			t.Fatalf("Join(node-%d): %v", i, err)
		}
		ids[i] = id
	}
	o.MaintenanceBarrier()
	return ids
}

func TestSingleNodeAllKeysLocal(t *testing.T) {
	o := newTestOverlay(t)
	joinN(t, o, 1)

	hops, err := o.Put("alpha", "v1")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if hops != 0 {
		t.Fatalf("Put hops = %d, want 0", hops)
	}
	v, hops, err := o.Get("alpha")
	if err != nil || v != "v1" || hops != 0 {
		t.Fatalf("Get = (%v, %d, %v), want (v1, 0, nil)", v, hops, err)
	}
}

func TestInsertLookupRoundTrip(t *testing.T) {
	o := newTestOverlay(t)
	joinN(t, o, 12)

	keys := []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf"}
	for _, k := range keys {
		if _, err := o.Put(k, k+"-value"); err != nil {
			t.Fatalf("Put(%s): %v", k, err)
		}
	}
	for _, k := range keys {
		v, _, err := o.Get(k)
		if err != nil {
			t.Fatalf("Get(%s): %v", k, err)
		}
		if v != k+"-value" {
			t.Fatalf("Get(%s) = %v, want %s-value", k, v, k)
		}
	}
}

func TestUpdateAndDelete(t *testing.T) {
	o := newTestOverlay(t)
	joinN(t, o, 6)

	if _, err := o.Put("k", "v1"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := o.Update("k", "v2"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	v, _, err := o.Get("k")
	if err != nil || v != "v2" {
		t.Fatalf("Get after Update = (%v, %v), want v2", v, err)
	}
	if _, err := o.Delete("k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, err := o.Get("k"); err == nil {
		t.Fatal("Get after Delete should fail")
	}
}

func TestDeleteOnEmptyOverlay(t *testing.T) {
	o := newTestOverlay(t)
	_, err := o.Delete("anything")
	if kind, ok := overlay.KindOf(err); !ok || kind != overlay.OverlayEmpty {
		t.Fatalf("kind = %v, want OverlayEmpty", kind)
	}
}

func TestRoutingTablePrefixProperty(t *testing.T) {
	o := newTestOverlay(t)
	ids := joinN(t, o, 20)

	for _, id := range ids {
		for r := 0; r < o.rows; r++ {
			for c := 0; c < o.cols; c++ {
				entry, ok := o.RoutingEntry(id, r, c)
				if !ok {
					continue
				}
				if got := o.sp.SharedPrefixLen(id, entry); got != r {
					t.Fatalf("node %s routingTable[%d][%d] = %s has sharedPrefixLen %d, want %d", id.Hex(), r, c, entry.Hex(), got, r)
				}
				if got := o.sp.Digit(entry, r); got != c {
					t.Fatalf("node %s routingTable[%d][%d] = %s has digit %d, want %d", id.Hex(), r, c, entry.Hex(), got, c)
				}
			}
		}
	}
}

func TestLeafSetSizeBoundedByAvailability(t *testing.T) {
	o := newTestOverlay(t)
	ids := joinN(t, o, 5)

	for _, id := range ids {
		leaves, ok := o.LeafSet(id)
		if !ok {
			t.Fatalf("no leaf set for %s", id.Hex())
		}
		if len(leaves) > len(ids)-1 {
			t.Fatalf("leaf set for %s has %d entries, more than %d other nodes", id.Hex(), len(leaves), len(ids)-1)
		}
	}
}

func TestLeaveHandsOffKeysAndPreservesResidency(t *testing.T) {
	o := newTestOverlay(t)
	ids := joinN(t, o, 10)

	keys := []string{"a1", "a2", "a3", "a4", "a5", "a6", "a7", "a8"}
	for _, k := range keys {
		if _, err := o.Put(k, k); err != nil {
			t.Fatalf("Put(%s): %v", k, err)
		}
	}

	leaving := ids[len(ids)/2]
	if _, err := o.Leave(leaving); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	o.MaintenanceBarrier()

	for _, k := range keys {
		v, _, err := o.Get(k)
		if err != nil {
			t.Fatalf("Get(%s) after Leave: %v", k, err)
		}
		if v != k {
			t.Fatalf("Get(%s) = %v, want %s", k, v, k)
		}
	}
}
