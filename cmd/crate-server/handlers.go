// handlers.go implements the CRATE.* commands. Argument-count validation
// lives in router.go's arity predicates, not here — each handler can assume
// the router already rejected a malformed call.
//
// CRATE.ADD key      - hashes key with xxhash and inserts it into the filter.
// CRATE.CONTAIN key  - reports whether key is probably present.
// CRATE.CONTAINN k...- batched CONTAIN over exactly 64 or 128 keys, answered as a
//                      single decimal bitmask (bit i answers keys[i]).
// CRATE.STATS        - reports bucket count, size, and current fill.
//
// ADD takes the filter's write lock; the others take the read lock, per
// spec.md §5's delegation of synchronization to the caller.
package main

import (
	"io"
	"math/big"
	"math/bits"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"crate.quotient.dev/internal/crate"
)

func (app *application) handleCrateAdd(w io.Writer, args []string) {
	key := xxhash.Sum64String(args[0])

	app.mu.Lock()
	ok := app.filter.Add(key)
	app.mu.Unlock()

	if !ok {
		app.metrics.addsTotal.WithLabelValues("saturated").Inc()
		_ = writeErrorResponse(w, "ERR saturated")
		return
	}
	app.metrics.addsTotal.WithLabelValues("ok").Inc()
	_ = writeOKResponse(w)
}

func (app *application) handleCrateContain(w io.Writer, args []string) {
	key := xxhash.Sum64String(args[0])

	app.mu.RLock()
	present := app.filter.Contain(key)
	app.mu.RUnlock()

	app.metrics.containsTotal.Inc()
	if present {
		app.metrics.containHits.Inc()
	}
	_ = writeIntegerResponse64(w, boolToInt64(present))
}

func (app *application) handleCrateContainN(w io.Writer, args []string) {
	keys := make([]uint64, len(args))
	for i, a := range args {
		keys[i] = xxhash.Sum64String(a)
	}

	app.mu.RLock()
	mask := app.filter.ContainN(keys)
	app.mu.RUnlock()

	app.metrics.batchSize.Observe(float64(len(args)))
	app.metrics.containsTotal.Add(float64(len(args)))
	app.metrics.containHits.Add(float64(bits.OnesCount64(mask.Lo) + bits.OnesCount64(mask.Hi)))

	_ = writeBulkStringResponse(w, maskDecimal(mask))
}

func (app *application) handleCrateStats(w io.Writer, args []string) {
	app.mu.RLock()
	buckets := app.filter.BucketCount()
	size := app.filter.SizeInBytes()
	fill := app.filter.Fill()
	app.mu.RUnlock()

	stats := "buckets:" + strconv.FormatUint(buckets, 10) +
		" size_bytes:" + strconv.FormatUint(size, 10) +
		" fingerprints:" + strconv.FormatUint(fill, 10)
	_ = writeBulkStringResponse(w, stats)
}

func (app *application) handlePing(w io.Writer, args []string) {
	_ = writeOKResponse(w)
}

func boolToInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// maskDecimal renders a crate.BatchMask as a single decimal string, the
// 128-bit value Hi<<64|Lo. A CRATE.CONTAINN reply for a 128-key batch needs
// all 128 bits on the wire, which no fixed-width integer type holds, so
// math/big does the widening that strconv can't.
func maskDecimal(mask crate.BatchMask) string {
	v := new(big.Int).Lsh(new(big.Int).SetUint64(mask.Hi), 64)
	v.Or(v, new(big.Int).SetUint64(mask.Lo))
	return v.String()
}
