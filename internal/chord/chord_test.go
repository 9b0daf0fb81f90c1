package chord

import (
	"errors"
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
	return New(sp, 4, bus.New(false), nil)
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
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "v1" || hops != 0 {
		t.Fatalf("Get = (%v, %d), want (v1, 0)", v, hops)
	}
}

func TestInsertLookupRoundTrip(t *testing.T) {
	o := newTestOverlay(t)
	joinN(t, o, 10)

	keys := []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot"}
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
	joinN(t, o, 5)

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
	} else if kind, ok := overlay.KindOf(err); !ok || kind != overlay.KeyNotFound {
		t.Fatalf("Get after Delete kind = %v, want KeyNotFound", kind)
	}
}

func TestUpdateMissingKeyNotFound(t *testing.T) {
	o := newTestOverlay(t)
	joinN(t, o, 3)
	_, err := o.Update("ghost", "v")
	if err == nil {
		t.Fatal("expected KeyNotFound")
	}
	if kind, ok := overlay.KindOf(err); !ok || kind != overlay.KeyNotFound {
		t.Fatalf("kind = %v, want KeyNotFound", kind)
	}
}

func TestDeleteOnEmptyOverlay(t *testing.T) {
	o := newTestOverlay(t)
	_, err := o.Delete("anything")
	if err == nil {
		t.Fatal("expected OverlayEmpty")
	}
	if kind, ok := overlay.KindOf(err); !ok || kind != overlay.OverlayEmpty {
		t.Fatalf("kind = %v, want OverlayEmpty", kind)
	}
}

func TestSuccessorConsistencyAfterMaintenance(t *testing.T) {
	o := newTestOverlay(t)
	ids := joinN(t, o, 15)

	for _, id := range ids {
		succID, ok := o.Successor(id)
		if !ok {
			t.Fatalf("node %s has no live successor", id.Hex())
		}
		predOfSucc, ok := o.Predecessor(succID)
		if !ok {
			t.Fatalf("successor %s of %s has no predecessor", succID.Hex(), id.Hex())
		}
		if !predOfSucc.Equal(id) {
			t.Fatalf("successor(%s).predecessor = %s, want %s", id.Hex(), predOfSucc.Hex(), id.Hex())
		}
	}
}

func TestLeaveHandsOffKeysAndPreservesResidency(t *testing.T) {
	o := newTestOverlay(t)
	ids := joinN(t, o, 8)

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

func TestDuplicateIdRetriesThenSucceeds(t *testing.T) {
	sp, err := idspace.NewSpace(24, 4)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	o := New(sp, 4, bus.New(false), nil)
	if _, _, err := o.Join("same-label"); err != nil {
		t.Fatalf("first Join: %v", err)
	}
	// A second Join with the identical label must rehash rather than collide.
	id2, _, err := o.Join("same-label")
	if err != nil {
		t.Fatalf("second Join with same label: %v", err)
	}
	if o.Live() != 2 {
		t.Fatalf("Live() = %d, want 2", o.Live())
	}
	_ = id2
}

func TestGetKindOfNotOverlayError(t *testing.T) {
	_, ok := overlay.KindOf(errors.New("plain error"))
	if ok {
		t.Fatal("KindOf should report false for a non-overlay error")
	}
}
