package store

import (
	"testing"

	"dhtsim/internal/idspace"
)

func space(t *testing.T) idspace.Space {
	sp, err := idspace.NewSpace(160, 4)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	return sp
}

func TestPutGetDelete(t *testing.T) {
	sp := space(t)
	s := New(nil)
	id := sp.Hash([]byte("k1"))

	if existed := s.Put(id, "k1", "v1"); existed {
		t.Fatal("first Put should not report existed")
	}
	v, ok := s.Get(id)
	if !ok || v != "v1" {
		t.Fatalf("Get = (%v, %v), want (v1, true)", v, ok)
	}
	if existed := s.Put(id, "k1", "v2"); !existed {
		t.Fatal("second Put should report existed")
	}
	v, _ = s.Get(id)
	if v != "v2" {
		t.Fatalf("Get after update = %v, want v2", v)
	}
	if !s.Delete(id) {
		t.Fatal("Delete should report present")
	}
	if _, ok := s.Get(id); ok {
		t.Fatal("Get after Delete should miss")
	}
	if s.Delete(id) {
		t.Fatal("second Delete should report absent")
	}
}

func TestBetweenAndAll(t *testing.T) {
	sp := space(t)
	s := New(nil)
	ids := []string{"alpha", "bravo", "charlie", "delta"}
	for _, k := range ids {
		s.Put(sp.Hash([]byte(k)), k, k)
	}
	if s.Len() != len(ids) {
		t.Fatalf("Len() = %d, want %d", s.Len(), len(ids))
	}
	all := s.All()
	if len(all) != len(ids) {
		t.Fatalf("All() len = %d, want %d", len(all), len(ids))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].ID.Cmp(all[i].ID) > 0 {
			t.Fatal("All() not sorted by identifier")
		}
	}
	full := s.Between(sp, sp.Zero(), sp.Zero())
	if len(full) != len(ids) {
		t.Fatalf("Between(whole ring) len = %d, want %d", len(full), len(ids))
	}
}

func TestAbsorbAndRemove(t *testing.T) {
	sp := space(t)
	s := New(nil)
	id := sp.Hash([]byte("k"))
	s.Absorb([]Entry{{Key: "k", ID: id, Value: 42}})
	v, ok := s.Get(id)
	if !ok || v != 42 {
		t.Fatalf("Get after Absorb = (%v, %v)", v, ok)
	}
	s.Remove([]idspace.ID{id})
	if _, ok := s.Get(id); ok {
		t.Fatal("Get after Remove should miss")
	}
}
