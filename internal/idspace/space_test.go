package idspace

import (
	"math/big"
	"testing"
)

func bigFromUint64(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}

func testSpace(t *testing.T) Space {
	sp, err := NewSpace(16, 4)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	return sp
}

func id(sp Space, v uint64) ID {
	return sp.FromBigInt(bigFromUint64(v))
}

func TestNewSpaceRejectsBadWidths(t *testing.T) {
	if _, err := NewSpace(0, 4); err == nil {
		t.Fatal("expected error for zero bit width")
	}
	if _, err := NewSpace(16, 0); err == nil {
		t.Fatal("expected error for zero digit width")
	}
	if _, err := NewSpace(16, 17); err == nil {
		t.Fatal("expected error for digit width wider than ring")
	}
}

func TestRowsAndDigitBase(t *testing.T) {
	sp := testSpace(t)
	if got := sp.Rows(); got != 4 {
		t.Fatalf("Rows() = %d, want 4", got)
	}
	if got := sp.DigitBase(); got != 16 {
		t.Fatalf("DigitBase() = %d, want 16", got)
	}
}

func TestHashDeterministic(t *testing.T) {
	sp := testSpace(t)
	a := sp.Hash([]byte("node-a"))
	b := sp.Hash([]byte("node-a"))
	if !a.Equal(b) {
		t.Fatalf("Hash not deterministic: %x != %x", a, b)
	}
	c := sp.Hash([]byte("node-b"))
	if a.Equal(c) {
		t.Fatalf("Hash collided for distinct inputs (unlikely but check mask): %x == %x", a, c)
	}
	if !sp.Valid(a) {
		t.Fatalf("hashed id failed Valid: %x", a)
	}
}

func TestAddPow2Wraps(t *testing.T) {
	sp := testSpace(t)
	self := id(sp, 0xFFFF)
	got := sp.AddPow2(self, 0)
	want := id(sp, 0)
	if !got.Equal(want) {
		t.Fatalf("AddPow2 wraparound: got %x want %x", got, want)
	}
}

func TestRingDistance(t *testing.T) {
	sp := testSpace(t)
	a := id(sp, 10)
	b := id(sp, 20)
	if got := sp.RingDistance(a, b); !got.Equal(id(sp, 10)) {
		t.Fatalf("RingDistance(10,20) = %x, want 10", got)
	}
	if got := sp.RingDistance(b, a); !got.Equal(id(sp, 0x10000-10)) {
		t.Fatalf("RingDistance(20,10) = %x, want wraparound", got)
	}
}

func TestNumericDistanceSymmetric(t *testing.T) {
	sp := testSpace(t)
	a, b := id(sp, 10), id(sp, 20)
	if got1, got2 := sp.NumericDistance(a, b), sp.NumericDistance(b, a); !got1.Equal(got2) {
		t.Fatalf("NumericDistance not symmetric: %x != %x", got1, got2)
	}
}

func TestBetweenHalfOpenInterval(t *testing.T) {
	sp := testSpace(t)
	a, b := id(sp, 10), id(sp, 20)
	if sp.Between(a, a, b) {
		t.Fatal("Between should exclude left endpoint")
	}
	if !sp.Between(b, a, b) {
		t.Fatal("Between should include right endpoint")
	}
	if !sp.Between(id(sp, 15), a, b) {
		t.Fatal("Between should include interior point")
	}
	if sp.Between(id(sp, 5), a, b) {
		t.Fatal("Between should exclude point outside interval")
	}
}

func TestInIntervalAllEndpointCombinations(t *testing.T) {
	sp := testSpace(t)
	a, b := id(sp, 10), id(sp, 20)

	if sp.InInterval(a, a, b, true, true) {
		t.Fatal("open-open should exclude left endpoint")
	}
	if !sp.InInterval(a, a, b, false, true) {
		t.Fatal("closed-open should include left endpoint")
	}
	if sp.InInterval(b, a, b, true, true) {
		t.Fatal("open-open should exclude right endpoint")
	}
	if !sp.InInterval(b, a, b, true, false) {
		t.Fatal("open-closed should include right endpoint")
	}
}

func TestInIntervalWholeRingWhenEndpointsEqual(t *testing.T) {
	sp := testSpace(t)
	a := id(sp, 42)
	other := id(sp, 1000)
	if !sp.InInterval(other, a, a, false, false) {
		t.Fatal("a == b with closed endpoints should denote the whole ring")
	}
	if sp.InInterval(a, a, a, true, false) {
		t.Fatal("a == b with left-open should exclude a itself")
	}
}

func TestDigitAndSharedPrefixLen(t *testing.T) {
	sp := testSpace(t)
	// 0xABCD: digits (base 16, MSB first) are A, B, C, D.
	v := id(sp, 0xABCD)
	cases := []struct {
		row  int
		want int
	}{
		{0, 0xA},
		{1, 0xB},
		{2, 0xC},
		{3, 0xD},
	}
	for _, c := range cases {
		if got := sp.Digit(v, c.row); got != c.want {
			t.Fatalf("Digit(row=%d) = %x, want %x", c.row, got, c.want)
		}
	}

	other := id(sp, 0xABFF)
	if got := sp.SharedPrefixLen(v, other); got != 2 {
		t.Fatalf("SharedPrefixLen = %d, want 2", got)
	}
	if got := sp.SharedPrefixLen(v, v); got != sp.Rows() {
		t.Fatalf("SharedPrefixLen(v,v) = %d, want %d", got, sp.Rows())
	}
}

func TestValidRejectsWrongLengthAndMaskedBits(t *testing.T) {
	sp := testSpace(t)
	if sp.Valid(ID{0x01, 0x02, 0x03}) {
		t.Fatal("Valid should reject wrong-length id")
	}
	good := sp.Zero()
	if !sp.Valid(good) {
		t.Fatal("Valid should accept zero id")
	}
}
