package pd

import "math/bits"

// Pocket is a 64-byte packed container for up to 51 (quotient, remainder)
// fingerprints, with quotient in [0,50) and remainder in [0,256).
//
// Layout:
//
//	bytes  0..12   header: a 101-bit unary partition of 51 slots into 50
//	               quotient classes (50 set bits, 51 zero bits). The top 3
//	               bits of byte 12 are unused padding and always read/written
//	               as zero.
//	bytes 13..63   tape: up to 51 remainder bytes, sorted ascending within
//	               each quotient's slot range. Trailing bytes beyond the
//	               current fill are leftover from earlier shifts and must
//	               not be assumed zero.
//
// Reading the header left to right, a zero bit is a slot and a set bit is a
// separator between quotient classes: the zeros before the first separator
// belong to quotient 0, the zeros between the (k-1)th and kth separator
// belong to quotient k.
//
// A Pocket's zero value is NOT a valid empty pocket — callers must call
// Reset (or obtain the pocket from NewPocket) before using it, since the initial header
// 2^50-1 is not all-zero.
type Pocket struct {
	header [13]byte
	tape   [51]byte
}

const (
	quotientCount   = 50
	maxFingerprints = 51
	headerHiMask    = (uint64(1) << 37) - 1 // bits 64..100 of the 101-bit header

	// BucketSize is the on-the-wire and in-memory size of a Pocket in bytes.
	BucketSize = 64
)

// NewPocket returns a freshly initialized, empty Pocket.
func NewPocket() *Pocket {
	p := &Pocket{}
	p.Reset()
	return p
}

// Reset restores a Pocket to its empty initial state: header = 2^50-1 (bits
// 0..49 set), meaning all 51 zero-slots belong to quotient 49.
func (p *Pocket) Reset() {
	for i := range p.header {
		p.header[i] = 0
	}
	for i := range p.tape {
		p.tape[i] = 0
	}
	const lo = (uint64(1) << quotientCount) - 1
	putHeaderLo(&p.header, lo)
}

// Bytes returns the pocket's 64-byte on-the-wire representation: the
// 13-byte header followed by the 51-byte tape, exactly as laid out in
// memory. The returned array is a copy.
func (p *Pocket) Bytes() [BucketSize]byte {
	var out [BucketSize]byte
	copy(out[:13], p.header[:])
	copy(out[13:], p.tape[:])
	return out
}

// SetBytes loads a pocket's state from its 64-byte on-the-wire
// representation, as produced by Bytes. It does not validate header
// invariants (fill count, padding bits) — callers that read pockets back
// from untrusted storage should call Fill and check the padding bits
// themselves if that matters.
func (p *Pocket) SetBytes(b [BucketSize]byte) {
	copy(p.header[:], b[:13])
	copy(p.tape[:], b[13:])
}

func putHeaderLo(h *[13]byte, lo uint64) {
	for i := 0; i < 8; i++ {
		h[i] = byte(lo >> (8 * i))
	}
}

// rawHeader loads the header as a masked 101-bit u128. It reads only the 13
// header bytes (8 into lo, 5 into hi), so the upper 24 bits of hi start out
// zero, and the mask then clears the 3 padding bits at the top of byte 12.
func (p *Pocket) rawHeader() u128 {
	var lo uint64
	for i := 0; i < 8; i++ {
		lo |= uint64(p.header[i]) << (8 * i)
	}
	var hi uint64
	for i := 0; i < 5; i++ {
		hi |= uint64(p.header[8+i]) << (8 * i)
	}
	return u128{lo: lo, hi: hi & headerHiMask}
}

// setRawHeader writes back a header value already known to fit in 101 bits
// (the caller — Add — guarantees this via the fill check before mutating).
func (p *Pocket) setRawHeader(h u128) {
	putHeaderLo(&p.header, h.lo)
	hi := h.hi & headerHiMask
	for i := 0; i < 5; i++ {
		p.header[8+i] = byte(hi >> (8 * i))
	}
}

func fillOf(h u128) int {
	return select128(h, quotientCount-1) - (quotientCount - 1)
}

// Fill reports the pocket's current occupancy (0..51).
func (p *Pocket) Fill() int {
	return fillOf(p.rawHeader())
}

// Touch reads the pocket's first header byte and discards it. Callers use
// this to pull a bucket's cache line into L1 ahead of a real probe, the
// software stand-in for the prefetch hint described in spec §4.3's batched
// lookup path.
func (p *Pocket) Touch() {
	_ = p.header[0]
}

// Full reports whether the pocket has reached its 51-fingerprint capacity.
func (p *Pocket) Full() bool {
	return p.Fill() == maxFingerprints
}

// tapeMask builds a 51-bit mask with bit i set iff tape[i] == r. This stands
// in for the reference implementation's single-instruction 64-byte broadcast
// compare (AVX-512 `vpcmpeqb` against the whole pocket); without that
// intrinsic available, the degraded byte-at-a-time scan the design notes
// sanction is used instead, scoped to the 51 tape bytes the header never
// touches.
func tapeMask(tape *[51]byte, r byte) uint64 {
	var v uint64
	for i, b := range tape {
		if b == r {
			v |= uint64(1) << uint(i)
		}
	}
	return v
}

func spanMask(mask uint64, begin, end int) bool {
	return ((mask & ((uint64(1) << uint(end)) - 1)) >> uint(begin)) != 0
}

// Find reports whether quotient q currently holds remainder r. It dispatches
// to FindV5, the most branch-reduced of the five equivalent lookup variants;
// the others remain exported for benchmarking and for the variant-equivalence
// property tests.
func (p *Pocket) Find(q int, r byte) bool {
	assertf(q >= 0 && q < quotientCount, "pd: Find quotient %d out of range", q)
	return p.FindV5(q, r)
}

// FindV1 computes begin and end as header-select results, reusing a single
// popcount(lo) across both selects — the most direct translation of the
// algebra in the spec, with an explicit branch on q == 0.
func (p *Pocket) FindV1(q int, r byte) bool {
	h := p.rawHeader()
	pop := bits.OnesCount64(h.lo)

	var begin int
	if q > 0 {
		begin = select128WithPop(h, q-1, pop) + 1
	}
	begin -= q

	end := select128WithPop(h, q, pop) - q

	return spanMask(tapeMask(&p.tape, r), begin, end)
}

// FindV2 keeps FindV1's begin computation but finds end via trailing-zero
// count over the header shifted past begin, instead of a second select:
// the next separator after a zero-run is the next set bit, and the gap
// between separators can never exceed the tape length (51), so it's always
// found within the low 64 bits of the shifted header.
func (p *Pocket) FindV2(q int, r byte) bool {
	h := p.rawHeader()

	var beginHeader int
	if q > 0 {
		beginHeader = select128(h, q-1) + 1
	}

	shifted := shrTo64(h, uint(beginHeader))
	endHeader := beginHeader + bits.TrailingZeros64(shifted)

	return spanMask(tapeMask(&p.tape, r), beginHeader-q, endHeader-q)
}

// FindV3 ports the reference implementation's alt formulation directly: it
// decides up front, via a chain of ternaries-as-ifs, which half of the
// 128-bit header begin and end fall into, avoiding select128's internal
// popcount recomputation for each of begin and end separately.
func (p *Pocket) FindV3(q int, r byte) bool {
	h := p.rawHeader()

	var begin, end int
	if q == 0 {
		begin = 0
		end = select64(h.lo, 0)
	} else {
		pop := bits.OnesCount64(h.lo)
		if q-1 >= pop {
			begin = 64 + select64(h.hi, q-1-pop) + 1 - q
			end = 64 + select64(h.hi, q-pop) - q
		} else {
			begin = select64(h.lo, q-1) + 1 - q
			if q >= pop {
				end = 64 + select64(h.hi, q-pop) - q
			} else {
				end = select64(h.lo, q) - q
			}
		}
	}

	return spanMask(tapeMask(&p.tape, r), begin, end)
}

// FindV4 fuses FindV1's shared-popcount begin with FindV2's tzcnt-derived
// end, trading one of the two select128 calls for a trailing-zero count.
func (p *Pocket) FindV4(q int, r byte) bool {
	h := p.rawHeader()
	pop := bits.OnesCount64(h.lo)

	var beginHeader int
	if q > 0 {
		beginHeader = select128WithPop(h, q-1, pop) + 1
	}

	shifted := shrTo64(h, uint(beginHeader))
	endHeader := beginHeader + bits.TrailingZeros64(shifted)

	return spanMask(tapeMask(&p.tape, r), beginHeader-q, endHeader-q)
}

// FindV5 replaces the explicit "q == 0" branch with selectAlt128's sentinel
// convention (j == -1 yields -1, so beginHeader's "+1" collapses straight to
// 0) and masks q with 63 before using it as an offset. For q in [0,50) the
// mask is a no-op; it bounds the offset to [0,63] but does not range-check
// q, so a q of 50 or more still yields a meaningless answer.
func (p *Pocket) FindV5(q int, r byte) bool {
	h := p.rawHeader()
	qMasked := q & 63

	beginHeader := selectAlt128(h, qMasked-1) + 1
	shifted := shrTo64(h, uint(beginHeader))
	endHeader := beginHeader + bits.TrailingZeros64(shifted)

	return spanMask(tapeMask(&p.tape, r), beginHeader-qMasked, endHeader-qMasked)
}

// Add inserts (q, r) into the pocket. It returns false without modifying the
// pocket if the pocket is already at capacity (51 fingerprints).
func (p *Pocket) Add(q int, r byte) bool {
	assertf(q >= 0 && q < quotientCount, "pd: Add quotient %d out of range", q)
	h := p.rawHeader()
	if fillOf(h) == maxFingerprints {
		return false
	}

	var beginHeader int
	if q > 0 {
		beginHeader = select128(h, q-1) + 1
	}
	endHeader := select128(h, q)

	// Shift everything from endHeader onward left by one, inserting a zero
	// bit (a new slot) at endHeader. Bits below endHeader are untouched.
	newHeader := h.and(maskLow128(uint(endHeader))).or(h.shr(uint(endHeader)).shl(uint(endHeader + 1)))
	p.setRawHeader(newHeader)

	beginFP := beginHeader - q
	endFP := endHeader - q

	i := endFP
	for k := beginFP; k < endFP; k++ {
		if r <= p.tape[k] {
			i = k
			break
		}
	}

	for k := maxFingerprints - 1; k > i; k-- {
		p.tape[k] = p.tape[k-1]
	}
	p.tape[i] = r

	return true
}
