// Package snapshot serializes a crate.Filter's bucket array to and from a
// byte stream, in the custom binary format described below. This sits
// outside the core filter's scope entirely: internal/crate never imports
// this package, only the other direction.
//
// The Binary Format (CRT1)
// =========================
//
// File structure:
//
//	+--------+-------------+---------+---------+     +-----------+
//	| Header | BucketCount | Bucket0 | Bucket1 | ... | Checksum  |
//	+--------+-------------+---------+---------+     +-----------+
//	 4 bytes   8 bytes       64 bytes  64 bytes        8 bytes
//
// Header: the 4-byte magic string "CRT1".
// BucketCount: little-endian uint64, the number of 64-byte buckets that
// follow.
// Buckets: each bucket is written verbatim as its 64-byte Pocket
// representation (header + tape), in bucket-index order.
// Checksum: a 64-bit CRC (ISO polynomial) over every preceding byte
// (header, bucket count, and all bucket bytes), used to detect corruption
// from a partial write or a flipped bit on disk.
package snapshot

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc64"
	"io"

	"crate.quotient.dev/internal/crate"
	"crate.quotient.dev/internal/crate/pd"
)

const magic = "CRT1"

var crcTable = crc64.MakeTable(crc64.ISO)

// ErrBadMagic is returned by Load when the stream does not start with the
// expected magic header.
var ErrBadMagic = errors.New("snapshot: bad magic header")

// ErrChecksumMismatch is returned by Load when the trailing CRC64 does not
// match the checksum computed over the bytes actually read.
var ErrChecksumMismatch = errors.New("snapshot: checksum mismatch")

// Save writes f's entire bucket array to w in the CRT1 format. The checksum
// is computed by hashing everything written, via an io.MultiWriter feeding
// both the destination and the CRC64 hasher in the same pass.
func Save(w io.Writer, f *crate.Filter) error {
	hasher := crc64.New(crcTable)
	mw := io.MultiWriter(w, hasher)
	bw := bufio.NewWriter(mw)

	if _, err := bw.WriteString(magic); err != nil {
		return fmt.Errorf("snapshot: write magic: %w", err)
	}

	var countBuf [8]byte
	binary.LittleEndian.PutUint64(countBuf[:], f.BucketCount())
	if _, err := bw.Write(countBuf[:]); err != nil {
		return fmt.Errorf("snapshot: write bucket count: %w", err)
	}

	var writeErr error
	f.EachBucket(func(i int, b *pd.Pocket) {
		if writeErr != nil {
			return
		}
		raw := b.Bytes()
		if _, err := bw.Write(raw[:]); err != nil {
			writeErr = fmt.Errorf("snapshot: write bucket %d: %w", i, err)
		}
	})
	if writeErr != nil {
		return writeErr
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("snapshot: flush: %w", err)
	}

	var sumBuf [8]byte
	binary.LittleEndian.PutUint64(sumBuf[:], hasher.Sum64())
	if _, err := w.Write(sumBuf[:]); err != nil {
		return fmt.Errorf("snapshot: write checksum: %w", err)
	}
	return nil
}

// Load reads a CRT1 stream produced by Save and reconstructs an equivalent
// *crate.Filter. It returns ErrBadMagic if the header doesn't match, and
// ErrChecksumMismatch if the trailing CRC64 doesn't match the bytes read.
func Load(r io.Reader) (*crate.Filter, error) {
	br := bufio.NewReader(r)
	hasher := crc64.New(crcTable)
	tr := io.TeeReader(br, hasher)

	header := make([]byte, len(magic))
	if _, err := io.ReadFull(tr, header); err != nil {
		return nil, fmt.Errorf("snapshot: read magic: %w", err)
	}
	if string(header) != magic {
		return nil, ErrBadMagic
	}

	var countBuf [8]byte
	if _, err := io.ReadFull(tr, countBuf[:]); err != nil {
		return nil, fmt.Errorf("snapshot: read bucket count: %w", err)
	}
	count := binary.LittleEndian.Uint64(countBuf[:])

	buckets := make([]pd.Pocket, count)
	var raw [pd.BucketSize]byte
	for i := uint64(0); i < count; i++ {
		if _, err := io.ReadFull(tr, raw[:]); err != nil {
			return nil, fmt.Errorf("snapshot: read bucket %d: %w", i, err)
		}
		buckets[i].SetBytes(raw)
	}

	computed := hasher.Sum64()

	var sumBuf [8]byte
	if _, err := io.ReadFull(br, sumBuf[:]); err != nil {
		return nil, fmt.Errorf("snapshot: read checksum: %w", err)
	}
	want := binary.LittleEndian.Uint64(sumBuf[:])
	if computed != want {
		return nil, ErrChecksumMismatch
	}

	return crate.NewFromBuckets(buckets), nil
}
