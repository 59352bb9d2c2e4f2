// Package pd implements the pocket dictionary: a 64-byte packed container
// that holds up to 51 (quotient, remainder) fingerprints using a unary
// header and a sorted remainder tape. See the package-level design notes in
// pocket.go for the layout.
package pd

import "math/bits"

// u128 is a two-limb stand-in for a 128-bit unsigned integer. The pocket
// dictionary header only ever uses its low 101 bits, but popcount and select
// need to treat it as one value split across a register boundary, the same
// way the reference implementation's intrinsics operate on `unsigned
// __int128`.
type u128 struct {
	lo, hi uint64
}

// maskLow128 returns the value with the low n bits set (0 <= n <= 128) and
// everything above that zero. It stands in for the C expression
// `(unsigned __int128)1 << n) - 1`.
func maskLow128(n uint) u128 {
	switch {
	case n == 0:
		return u128{}
	case n < 64:
		return u128{lo: (uint64(1) << n) - 1}
	case n == 64:
		return u128{lo: ^uint64(0)}
	case n < 128:
		return u128{lo: ^uint64(0), hi: (uint64(1) << (n - 64)) - 1}
	default:
		return u128{lo: ^uint64(0), hi: ^uint64(0)}
	}
}

func (a u128) and(b u128) u128 { return u128{a.lo & b.lo, a.hi & b.hi} }
func (a u128) or(b u128) u128  { return u128{a.lo | b.lo, a.hi | b.hi} }

// shr returns a >> n for 0 <= n <= 128.
func (a u128) shr(n uint) u128 {
	switch {
	case n == 0:
		return a
	case n < 64:
		return u128{lo: (a.lo >> n) | (a.hi << (64 - n)), hi: a.hi >> n}
	case n < 128:
		return u128{lo: a.hi >> (n - 64)}
	default:
		return u128{}
	}
}

// shl returns a << n for 0 <= n <= 128, truncated to 128 bits.
func (a u128) shl(n uint) u128 {
	switch {
	case n == 0:
		return a
	case n < 64:
		return u128{lo: a.lo << n, hi: (a.hi << n) | (a.lo >> (64 - n))}
	case n < 128:
		return u128{hi: a.lo << (n - 64)}
	default:
		return u128{}
	}
}

// shrTo64 returns the low 64 bits of a >> n, without materializing the full
// 128-bit shifted value. Used by the tzcnt-based find variants, which only
// ever need to inspect a 64-bit window after the shift (the gap between two
// consecutive header separators can never exceed the tape length, 51 bits).
func shrTo64(a u128, n uint) uint64 {
	switch {
	case n == 0:
		return a.lo
	case n < 64:
		return (a.lo >> n) | (a.hi << (64 - n))
	case n < 128:
		return a.hi >> (n - 64)
	default:
		return 0
	}
}

// select64 returns the 0-indexed position of the jth set bit of x, for
// 0 <= j < popcount(x). Hardware with a PDEP/TZCNT pair computes this in two
// instructions (deposit a single bit at position j into x's set-bit pattern,
// then count trailing zeros); lacking that here, we emulate it by clearing
// the lowest j set bits and reporting the position of what's left.
func select64(x uint64, j int) int {
	for i := 0; i < j; i++ {
		x &= x - 1
	}
	return bits.TrailingZeros64(x)
}

// select64Alt behaves like select64, except j == -1 is defined to yield 63.
// This lets callers fold a "no preceding separator" case into the same
// expression as the general one, at the cost of a correction step the
// caller must apply (see selectAlt128, which FindV5 calls).
func select64Alt(x uint64, j int) int {
	if j == -1 {
		return 63
	}
	return select64(x, j)
}

// select128 returns the 0-indexed position of the jth set bit of h.
func select128(h u128, j int) int {
	pop := bits.OnesCount64(h.lo)
	if j < pop {
		return select64(h.lo, j)
	}
	return 64 + select64(h.hi, j-pop)
}

// select128WithPop is select128 for callers that already know popcount(h.lo),
// saving a redundant OnesCount64 when the header is interrogated twice.
func select128WithPop(h u128, j, pop int) int {
	if j < pop {
		return select64(h.lo, j)
	}
	return 64 + select64(h.hi, j-pop)
}

// selectAlt128 generalizes select128 with the sentinel convention j == -1 ->
// -1 (not 63 — this variant is tuned so that "+1" downstream collapses
// straight to 0, matching the quotient-zero case without a separate branch).
// It derives that sentinel from select64Alt's 63 by subtracting 64, rather
// than special-casing j < 0 directly, so the two sentinel conventions stay
// expressed as one arithmetic relationship instead of two independent
// constants that could drift apart.
func selectAlt128(h u128, j int) int {
	if j < 0 {
		return select64Alt(h.lo, j) - 64
	}
	pop := bits.OnesCount64(h.lo)
	if j < pop {
		return select64Alt(h.lo, j)
	}
	return 64 + select64(h.hi, j-pop)
}

func popcount128(h u128) int {
	return bits.OnesCount64(h.lo) + bits.OnesCount64(h.hi)
}
