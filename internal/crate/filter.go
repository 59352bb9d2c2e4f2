// Package crate implements a single-level crate dictionary: an
// approximate-membership filter built from an array of pocket dictionaries
// (package pd). It supports insertion and membership queries over 64-bit
// keys with no false negatives and a bounded false-positive rate, at close
// to the information-theoretic space bound.
//
// The filter itself does no hashing — keys are assumed to already be
// well-distributed 64-bit values, the same boundary the reference design
// draws around the core. Callers working with arbitrary byte strings should
// hash them (cmd/crate-check and cmd/crate-server both use xxhash for this)
// before calling Add or Contain.
package crate

import (
	"crate.quotient.dev/internal/crate/pd"
)

// BucketBytes is the size in bytes of a single pocket dictionary / bucket.
const BucketBytes = pd.BucketSize

// loadFactor is the average occupancy (out of 51 fingerprint slots) a bucket
// is sized for. 45/51 leaves headroom against hash skew; a tighter bound
// would risk insertion failure more often. See spec §9 for the open
// question around rederiving this constant analytically.
const loadFactor = 45

// Filter is an array of B pocket dictionaries, addressed by a key-derived
// bucket index. It owns its bucket array exclusively for its lifetime.
//
// Filter has no internal synchronization (see package docs and spec.md
// §5): concurrent mutation, or mutation concurrent with reads, on the same
// bucket is the caller's responsibility. A frozen filter is safe to share
// across readers.
type Filter struct {
	buckets []pd.Pocket
}

// New allocates a filter sized for n insertions: ⌈n/45⌉ buckets, 64 bytes
// each. n == 0 is treated as 1 to avoid a zero-bucket filter.
func New(n uint64) *Filter {
	if n == 0 {
		n = 1
	}
	bucketCount := (n + loadFactor - 1) / loadFactor
	f := &Filter{buckets: make([]pd.Pocket, bucketCount)}
	for i := range f.buckets {
		f.buckets[i].Reset()
	}
	return f
}

// BucketCount returns the number of pocket dictionaries in the filter.
func (f *Filter) BucketCount() uint64 {
	return uint64(len(f.buckets))
}

// SizeInBytes returns the total size of the filter's bucket array.
func (f *Filter) SizeInBytes() uint64 {
	return f.BucketCount() * BucketBytes
}

// NewFromBuckets builds a Filter directly from a slice of already-decoded
// buckets, bypassing New's sizing logic. Used by package snapshot to
// reconstruct a filter loaded from disk.
func NewFromBuckets(buckets []pd.Pocket) *Filter {
	return &Filter{buckets: buckets}
}

// EachBucket calls fn once per bucket, in index order. Used by package
// snapshot to serialize a filter's bucket array.
func (f *Filter) EachBucket(fn func(i int, b *pd.Pocket)) {
	for i := range f.buckets {
		fn(i, &f.buckets[i])
	}
}

// Fill reports the total number of fingerprints currently stored across all
// buckets. Used for CRATE.STATS and crate-check reporting.
func (f *Filter) Fill() uint64 {
	var total uint64
	for i := range f.buckets {
		total += uint64(f.buckets[i].Fill())
	}
	return total
}

// keyParts derives (bucket index, quotient, remainder) from a 64-bit key
// using the canonical decomposition from spec §3.3 — the batched code
// path's scheme, not the earlier `((k&0xffff)*50)>>16` / `k>>16` variant
// found alongside it in original_source/src/crate.h. That earlier form is
// not implemented: the spec names it a likely abandoned variant, and mixing
// the two schemes within one filter would silently break every fingerprint
// computed under the other.
func keyParts(k uint64, bucketCount uint64) (bucket uint64, quot int, rem byte) {
	bucket = uint64((uint64(uint32(k)) * bucketCount) >> 32)
	quot = int(((k >> 40) * 50) >> 24)
	rem = byte(k >> 32)
	return bucket, quot, rem
}

// Add inserts key into the filter. It returns false iff the target bucket
// is already saturated (51 fingerprints); the filter is left unchanged in
// that case. Saturation is not retried, logged, or otherwise handled here —
// per spec §4.3, that's the caller's decision (re-hash, grow, drop).
func (f *Filter) Add(key uint64) bool {
	bucket, quot, rem := keyParts(key, f.BucketCount())
	return f.buckets[bucket].Add(quot, rem)
}

// Contain reports whether key is probably in the filter. It never returns a
// false negative for a key that was successfully Added.
func (f *Filter) Contain(key uint64) bool {
	bucket, quot, rem := keyParts(key, f.BucketCount())
	return f.buckets[bucket].Find(quot, rem)
}

// maxBatch bounds ContainN to the two batch sizes spec §4.3 names.
const maxBatch = 128

// BatchMask holds the up-to-128-bit result of ContainN, split across two
// 64-bit words the same way the pocket dictionary's own header splits its
// 101-bit value across a two-limb u128: Lo answers keys[0:64], Hi answers
// keys[64:128] (Hi is always zero for a 64-key batch).
type BatchMask struct {
	Lo, Hi uint64
}

// Bit reports the answer for keys[i], 0 <= i < 128.
func (m BatchMask) Bit(i int) bool {
	if i < 64 {
		return m.Lo&(uint64(1)<<uint(i)) != 0
	}
	return m.Hi&(uint64(1)<<uint(i-64)) != 0
}

// ContainN evaluates Contain for up to 128 keys at once and returns the
// answers packed into a BatchMask (bit i is the answer for keys[i]).
// len(keys) must be 64 or 128 — a plain uint64 cannot represent a 128-bit
// answer, which is why the 128-key case needs the second word.
//
// The implementation computes every bucket index first, then issues a
// read-only prefetch touch for every bucket before probing any of them, so
// the memory latency of later buckets overlaps the probes of earlier ones —
// the two-loop prefetch variant in spec §4.3. Go has no portable prefetch
// intrinsic, so the touch is emulated by reading one byte of each bucket
// into the cache ahead of the real probe; see prefetch.go.
func (f *Filter) ContainN(keys []uint64) BatchMask {
	n := len(keys)
	if n != 64 && n != 128 {
		panic("crate: ContainN requires exactly 64 or 128 keys")
	}

	var buckets [maxBatch]uint64
	var quots [maxBatch]int
	var rems [maxBatch]byte

	bucketCount := f.BucketCount()
	for i, k := range keys {
		b, q, r := keyParts(k, bucketCount)
		buckets[i] = b
		quots[i] = q
		rems[i] = r
	}

	for i := 0; i < n; i++ {
		touch(&f.buckets[buckets[i]])
	}

	var mask BatchMask
	for i := 0; i < n; i++ {
		if !f.buckets[buckets[i]].Find(quots[i], rems[i]) {
			continue
		}
		if i < 64 {
			mask.Lo |= uint64(1) << uint(i)
		} else {
			mask.Hi |= uint64(1) << uint(i-64)
		}
	}

	return mask
}
