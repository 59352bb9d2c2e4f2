// crate-check is a diagnostic tool for crate dictionary snapshots. It either
// validates an on-disk snapshot file (magic, checksum, per-bucket fill
// sanity), or builds a synthetic filter entirely in memory and reports an
// estimated false-positive rate, without ever touching the filesystem.
//
// Usage
//
//	crate-check -file snapshot.crt1
//	crate-check -n 1000000 -sample 200000
//
// Exit codes: 0 the check passed, 1 the snapshot is corrupt or unreadable.
package main

import (
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"

	"crate.quotient.dev/internal/crate"
	"crate.quotient.dev/internal/crate/pd"
	"crate.quotient.dev/internal/crate/snapshot"
)

func main() {
	filePath := flag.String("file", "", "Path to a snapshot file to validate")
	n := flag.Uint64("n", 0, "Number of synthetic keys to insert (synthetic mode)")
	sample := flag.Uint64("sample", 0, "Number of synthetic non-member keys to probe for the FP estimate")
	flag.Parse()

	if *filePath != "" {
		if err := checkFile(*filePath); err != nil {
			fmt.Fprintf(os.Stderr, "[err] %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *n == 0 {
		fmt.Fprintln(os.Stderr, "[err] either -file or -n must be given")
		os.Exit(1)
	}
	if err := checkSynthetic(*n, *sample); err != nil {
		fmt.Fprintf(os.Stderr, "[err] %v\n", err)
		os.Exit(1)
	}
}

func checkFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	start := time.Now()
	filter, err := snapshot.Load(f)
	if err != nil {
		if errors.Is(err, snapshot.ErrBadMagic) {
			return fmt.Errorf("%s: not a crate snapshot", path)
		}
		if errors.Is(err, snapshot.ErrChecksumMismatch) {
			return fmt.Errorf("%s: checksum mismatch, file is corrupt", path)
		}
		return fmt.Errorf("%s: %w", path, err)
	}

	// A pocket holds at most 51 fingerprints; a larger fill means a
	// corrupt header.
	const maxBucketFill = 51
	badBucket, badFill := -1, 0
	filter.EachBucket(func(i int, b *pd.Pocket) {
		if fill := b.Fill(); badBucket < 0 && (fill < 0 || fill > maxBucketFill) {
			badBucket, badFill = i, fill
		}
	})
	if badBucket >= 0 {
		return fmt.Errorf("%s: bucket %d reports fill %d, outside 0..%d", path, badBucket, badFill, maxBucketFill)
	}

	fmt.Printf("Snapshot OK: %s\n", path)
	fmt.Printf("  Buckets:     %d\n", filter.BucketCount())
	fmt.Printf("  Size:        %d bytes\n", filter.SizeInBytes())
	fmt.Printf("  Fingerprints: %d\n", filter.Fill())
	fmt.Printf("  Load time:   %v\n", time.Since(start))
	return nil
}

// checkSynthetic builds a filter sized for n keys, inserts n distinct keys
// derived from a deterministic PRNG, then probes `sample` keys known NOT to
// have been inserted and reports the fraction of those that Contain
// nonetheless answers true — the filter's observed false-positive rate.
func checkSynthetic(n, sample uint64) error {
	if sample == 0 {
		sample = n / 5
	}
	if sample == 0 {
		sample = 1
	}

	f := crate.New(n)
	rng := rand.New(rand.NewPCG(1, 2))

	inserted := uint64(0)
	rejected := uint64(0)
	for i := uint64(0); i < n; i++ {
		key := xxhash.Sum64(fmt.Appendf(nil, "synthetic-%d", rng.Uint64()))
		if f.Add(key) {
			inserted++
		} else {
			rejected++
		}
	}

	falsePositives := uint64(0)
	for i := uint64(0); i < sample; i++ {
		key := xxhash.Sum64(fmt.Appendf(nil, "probe-%d-%d", i, rng.Uint64()))
		if f.Contain(key) {
			falsePositives++
		}
	}

	fmt.Printf("Synthetic filter report\n")
	fmt.Printf("  Buckets:          %d\n", f.BucketCount())
	fmt.Printf("  Size:             %d bytes\n", f.SizeInBytes())
	fmt.Printf("  Inserted:         %d\n", inserted)
	fmt.Printf("  Saturated adds:   %d\n", rejected)
	fmt.Printf("  Fingerprints:     %d\n", f.Fill())
	fmt.Printf("  Probes:           %d\n", sample)
	fmt.Printf("  False positives:  %d (%.4f%%)\n", falsePositives, 100*float64(falsePositives)/float64(sample))
	return nil
}
