package crate

import "testing"

func TestNewSizing(t *testing.T) {
	f := New(45)
	if f.BucketCount() != 1 {
		t.Errorf("BucketCount() for n=45 = %d, want 1", f.BucketCount())
	}
	f = New(46)
	if f.BucketCount() != 2 {
		t.Errorf("BucketCount() for n=46 = %d, want 2", f.BucketCount())
	}
	f = New(0)
	if f.BucketCount() != 1 {
		t.Errorf("BucketCount() for n=0 = %d, want 1", f.BucketCount())
	}
	if got, want := f.SizeInBytes(), uint64(BucketBytes); got != want {
		t.Errorf("SizeInBytes() for n=0 = %d, want %d", got, want)
	}
}

func TestAddContainRoundTrip(t *testing.T) {
	f := New(10000)
	keys := make([]uint64, 2000)
	for i := range keys {
		keys[i] = splitmix64(uint64(i) + 1)
	}

	for _, k := range keys {
		if !f.Add(k) {
			t.Fatalf("Add(%d) returned false, filter should have ample capacity", k)
		}
	}

	for _, k := range keys {
		if !f.Contain(k) {
			t.Fatalf("Contain(%d) = false after Add, want true (no false negatives)", k)
		}
	}
}

func TestContainNMatchesContain(t *testing.T) {
	f := New(5000)
	present := make([]uint64, 128)
	for i := range present {
		k := splitmix64(uint64(i) + 1000)
		present[i] = k
		f.Add(k)
	}

	mask := f.ContainN(present)
	for i, k := range present {
		want := f.Contain(k)
		got := mask.Bit(i)
		if got != want {
			t.Fatalf("ContainN bit %d = %v, want %v (key %d)", i, got, want, k)
		}
	}
}

// TestContainNFullBatchUpperHalf exercises bits 64-127 specifically: a
// uint64-only mask can never set those bits, so this pins down the earlier
// silent-false-negative failure mode directly.
func TestContainNFullBatchUpperHalf(t *testing.T) {
	f := New(5000)
	present := make([]uint64, 128)
	for i := range present {
		k := splitmix64(uint64(i) + 5000)
		present[i] = k
		if !f.Add(k) {
			t.Fatalf("Add(%d) returned false, filter should have ample capacity", k)
		}
	}

	mask := f.ContainN(present)
	for i := 64; i < 128; i++ {
		if !mask.Bit(i) {
			t.Fatalf("ContainN bit %d = false for a key that was Added, want true", i)
		}
	}
	if mask.Hi == 0 {
		t.Fatalf("ContainN.Hi is zero after adding all 128 probed keys, want at least one bit set")
	}
}

func TestContainNRejectsBadLength(t *testing.T) {
	f := New(100)
	defer func() {
		if recover() == nil {
			t.Fatalf("ContainN with wrong length did not panic")
		}
	}()
	f.ContainN(make([]uint64, 10))
}

func TestSaturationReturnsFalse(t *testing.T) {
	f := New(45)
	added := 0
	for i := uint64(1); ; i++ {
		k := splitmix64(i)
		if f.Add(k) {
			added++
			continue
		}
		break
	}
	if added == 0 {
		t.Fatalf("expected at least one successful Add before saturation")
	}
}

// splitmix64 is a cheap, well-distributed key generator for tests; the
// filter itself never hashes, so tests need their own source of spread-out
// 64-bit values.
func splitmix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	return x ^ (x >> 31)
}
