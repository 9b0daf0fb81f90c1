// Package idspace implements the fixed-width identifier arithmetic shared by
// the Chord and Pastry overlays: hashing, ring distance, open/closed interval
// containment, and base-2^b digit extraction.
package idspace

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
)

// ErrIDFormat names the failure of an identifier that does not match the
// byte length or bit mask of the Space it is used with. No function in this
// package returns it; Valid performs the check.
var ErrIDFormat = errors.New("idspace: malformed identifier")

// Space defines the identifier ring Z mod 2^Bits and the digit layout used
// to interpret the same identifiers as base-2^BaseBits digits for Pastry.
//
// Bits is the width of the ring (recommended 160, the width of a SHA-1
// digest). BaseBits is Pastry's b: each digit covers BaseBits bits, most
// significant first, and there are ceil(Bits/BaseBits) digit rows.
type Space struct {
	Bits     int
	ByteLen  int
	BaseBits int
}

// NewSpace builds a Space for an m-bit ring interpreted as base-2^b digits.
func NewSpace(bits, baseBits int) (Space, error) {
	if bits <= 0 {
		return Space{}, fmt.Errorf("idspace: invalid bit width %d (must be > 0)", bits)
	}
	if baseBits <= 0 || baseBits > bits {
		return Space{}, fmt.Errorf("idspace: invalid digit width %d (must be in (0, %d])", baseBits, bits)
	}
	return Space{
		Bits:     bits,
		ByteLen:  (bits + 7) / 8,
		BaseBits: baseBits,
	}, nil
}

// Rows returns the number of base-2^BaseBits digit rows in the space,
// i.e. ceil(Bits / BaseBits). This is Pastry's routing-table row count.
func (sp Space) Rows() int {
	return (sp.Bits + sp.BaseBits - 1) / sp.BaseBits
}

// DigitBase returns 2^BaseBits, the number of columns in a Pastry routing
// table row.
func (sp Space) DigitBase() int {
	return 1 << sp.BaseBits
}

// ID is a big-endian, fixed-width identifier in a Space's ring.
type ID []byte

// Zero returns the all-zero identifier.
func (sp Space) Zero() ID {
	return make(ID, sp.ByteLen)
}

// Hash derives a deterministic identifier from arbitrary bytes (a node
// label or a key) by taking the most-significant sp.ByteLen bytes of its
// SHA-1 digest and masking off any bits beyond sp.Bits.
func (sp Space) Hash(data []byte) ID {
	digest := sha1.Sum(data)
	buf := make([]byte, sp.ByteLen)
	copy(buf, digest[:]) // if sp.Bits > 160 the low-order bytes stay zero
	sp.mask(buf)
	return buf
}

// mask clears the unused high-order bits of the most significant byte so
// that every ID produced or accepted by this Space satisfies 0 <= id < 2^Bits.
func (sp Space) mask(buf []byte) {
	extra := sp.ByteLen*8 - sp.Bits
	if extra > 0 {
		buf[0] &= 0xFF >> uint(extra)
	}
}

// Valid reports whether id has the Space's byte length and respects its
// bit mask. The other Space methods do not call it and do not reject a
// malformed id.
func (sp Space) Valid(id ID) bool {
	if len(id) != sp.ByteLen {
		return false
	}
	extra := sp.ByteLen*8 - sp.Bits
	if extra > 0 {
		if id[0]&(0xFF<<uint(8-extra)) != 0 {
			return false
		}
	}
	return true
}

// FromBigInt truncates x modulo 2^Bits and encodes it as an ID.
func (sp Space) FromBigInt(x *big.Int) ID {
	m := new(big.Int).Lsh(big.NewInt(1), uint(sp.Bits))
	x = new(big.Int).Mod(x, m)
	buf := make([]byte, sp.ByteLen)
	b := x.Bytes()
	copy(buf[sp.ByteLen-len(b):], b)
	return buf
}

// ToBigInt interprets the identifier as a non-negative big-endian integer.
func (x ID) ToBigInt() *big.Int {
	return new(big.Int).SetBytes(x)
}

// Cmp compares two identifiers as unsigned big-endian integers.
func (x ID) Cmp(y ID) int { return bytes.Compare(x, y) }

// Equal reports byte-for-byte equality.
func (x ID) Equal(y ID) bool { return bytes.Equal(x, y) }

// Hex returns the lowercase hex encoding of the identifier.
func (x ID) Hex() string {
	if x == nil {
		return "<nil>"
	}
	return hex.EncodeToString(x)
}

func (x ID) String() string { return x.Hex() }

// AddPow2 returns (self + 2^i) mod 2^Bits, the offset used by a Chord
// finger-table entry.
func (sp Space) AddPow2(self ID, i int) ID {
	offset := new(big.Int).Lsh(big.NewInt(1), uint(i))
	sum := new(big.Int).Add(self.ToBigInt(), offset)
	return sp.FromBigInt(sum)
}

// RingDistance returns (b - a) mod 2^Bits: the forward (clockwise) distance
// from a to b on the Chord ring.
func (sp Space) RingDistance(a, b ID) ID {
	diff := new(big.Int).Sub(b.ToBigInt(), a.ToBigInt())
	return sp.FromBigInt(diff)
}

// NumericDistance returns min(RingDistance(a,b), RingDistance(b,a)): Pastry's
// undirected "nearness" between two identifiers.
func (sp Space) NumericDistance(a, b ID) ID {
	fwd := sp.RingDistance(a, b)
	bwd := sp.RingDistance(b, a)
	if fwd.Cmp(bwd) <= 0 {
		return fwd
	}
	return bwd
}

// InInterval reports whether x lies in the ring interval between a and b,
// honoring the requested open/closed endpoints. The usual Chord "(a, b]"
// predicate is leftOpen=true, rightOpen=false; the flags cover all four
// combinations. a == b denotes the whole ring (true unless an endpoint
// exclusion rules x out directly).
func (sp Space) InInterval(x, a, b ID, leftOpen, rightOpen bool) bool {
	if a.Equal(b) {
		if leftOpen && x.Equal(a) {
			return false
		}
		if rightOpen && x.Equal(b) {
			return false
		}
		return true
	}

	// Translate every point by -a so the interval starts at zero; ring
	// order is then a plain integer comparison.
	m := new(big.Int).Lsh(big.NewInt(1), uint(sp.Bits))
	shift := func(v ID) *big.Int {
		d := new(big.Int).Sub(v.ToBigInt(), a.ToBigInt())
		return d.Mod(d, m)
	}
	xs := shift(x)
	bs := shift(b)

	cmp := xs.Cmp(bs)
	lowOK := leftOpen == false || xs.Sign() != 0 // x==a is excluded when left-open (xs==0 there)
	if !lowOK {
		return false
	}
	if rightOpen {
		return cmp < 0
	}
	return cmp <= 0
}

// Between is shorthand for InInterval(x, a, b, true, false): the classic
// Chord "(a, b]" predicate.
func (sp Space) Between(x, a, b ID) bool {
	return sp.InInterval(x, a, b, true, false)
}

// bitAt returns bit index pos (0 = most significant bit of the whole
// identifier) of id, treating any position beyond len(id)*8 as zero.
func bitAt(id ID, pos int) byte {
	byteIdx := pos / 8
	if byteIdx >= len(id) {
		return 0
	}
	bitIdx := 7 - uint(pos%8)
	return (id[byteIdx] >> bitIdx) & 1
}

// Digit extracts row r (0-indexed, most significant first) of id as a
// base-2^BaseBits digit in [0, DigitBase()).
func (sp Space) Digit(id ID, r int) int {
	start := r * sp.BaseBits
	d := 0
	for i := 0; i < sp.BaseBits; i++ {
		d = (d << 1) | int(bitAt(id, start+i))
	}
	return d
}

// SharedPrefixLen returns the number of leading base-2^BaseBits digits that
// a and b have in common.
func (sp Space) SharedPrefixLen(a, b ID) int {
	rows := sp.Rows()
	for r := 0; r < rows; r++ {
		if sp.Digit(a, r) != sp.Digit(b, r) {
			return r
		}
	}
	return rows
}
