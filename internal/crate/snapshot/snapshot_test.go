package snapshot

import (
	"bytes"
	"testing"

	"crate.quotient.dev/internal/crate"
)

func buildFilter(t *testing.T, n int) (*crate.Filter, []uint64) {
	t.Helper()
	f := crate.New(uint64(n) * 2)
	keys := make([]uint64, n)
	x := uint64(0x2545F4914F6CDD1D)
	for i := range keys {
		x += 0x9E3779B97F4A7C15
		k := x ^ (x >> 29)
		keys[i] = k
		if !f.Add(k) {
			t.Fatalf("Add(%d) failed building test filter", k)
		}
	}
	return f, keys
}

func TestSaveLoadRoundTrip(t *testing.T) {
	original, keys := buildFilter(t, 1000)

	var buf bytes.Buffer
	if err := Save(&buf, original); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.BucketCount() != original.BucketCount() {
		t.Fatalf("BucketCount after round trip = %d, want %d", loaded.BucketCount(), original.BucketCount())
	}
	if loaded.SizeInBytes() != original.SizeInBytes() {
		t.Fatalf("SizeInBytes after round trip = %d, want %d", loaded.SizeInBytes(), original.SizeInBytes())
	}
	if loaded.Fill() != original.Fill() {
		t.Fatalf("Fill after round trip = %d, want %d", loaded.Fill(), original.Fill())
	}

	for _, k := range keys {
		if !loaded.Contain(k) {
			t.Fatalf("Contain(%d) = false after round trip, want true", k)
		}
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("XXXX")
	if _, err := Load(&buf); err != ErrBadMagic {
		t.Fatalf("Load with bad magic = %v, want ErrBadMagic", err)
	}
}

func TestLoadDetectsCorruption(t *testing.T) {
	f, _ := buildFilter(t, 200)

	var buf bytes.Buffer
	if err := Save(&buf, f); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data := buf.Bytes()
	// Flip every bit of one byte well inside the bucket payload, past the
	// header and count.
	data[20] ^= 0xFF

	if _, err := Load(bytes.NewReader(data)); err != ErrChecksumMismatch {
		t.Fatalf("Load with corrupted payload = %v, want ErrChecksumMismatch", err)
	}
}

func TestLoadEmptyFilter(t *testing.T) {
	f := crate.New(1)

	var buf bytes.Buffer
	if err := Save(&buf, f); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.BucketCount() != f.BucketCount() {
		t.Fatalf("BucketCount after round trip = %d, want %d", loaded.BucketCount(), f.BucketCount())
	}
}
