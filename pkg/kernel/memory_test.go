package kernel

import (
	"bytes"
	"testing"
)

func TestSharedMemoryRoundTrip(t *testing.T) {
	k := newTestKernel()
	a, err := k.Create(nil, "A", true)
	if err != nil {
		t.Fatalf("Create A: %v", err)
	}
	b, err := k.Create(nil, "B", true)
	if err != nil {
		t.Fatalf("Create B: %v", err)
	}

	vaA, status := k.Alloc(a, 8192)
	if status != StatusSuccess {
		t.Fatalf("Alloc: %v", status)
	}

	handle, status := k.GetHandle(a, vaA)
	if status != StatusSuccess {
		t.Fatalf("GetHandle: %v", status)
	}

	vaB, size, status := k.Include(b, handle)
	if status != StatusSuccess {
		t.Fatalf("Include: %v", status)
	}
	if size != 8192 {
		t.Fatalf("Include size = %d, want 8192", size)
	}

	pattern := []byte("shared-memory-round-trip-pattern")
	if _, err := k.MM.IO(a.pdir).CopyOut(vaA, pattern); err != nil {
		t.Fatalf("CopyOut via A: %v", err)
	}

	got := make([]byte, len(pattern))
	if _, err := k.MM.IO(b.pdir).CopyIn(vaB, got); err != nil {
		t.Fatalf("CopyIn via B: %v", err)
	}
	if !bytes.Equal(got, pattern) {
		t.Fatalf("read back %q via B, want %q written via A", got, pattern)
	}
}

func TestFreeWithOutstandingMappingKeepsPagesLive(t *testing.T) {
	k := newTestKernel()
	a, err := k.Create(nil, "A", true)
	if err != nil {
		t.Fatalf("Create A: %v", err)
	}
	b, err := k.Create(nil, "B", true)
	if err != nil {
		t.Fatalf("Create B: %v", err)
	}

	va, status := k.Alloc(a, 4096)
	if status != StatusSuccess {
		t.Fatalf("Alloc: %v", status)
	}

	handle, status := k.GetHandle(a, va)
	if status != StatusSuccess {
		t.Fatalf("GetHandle: %v", status)
	}

	vaB, _, status := k.Include(b, handle)
	if status != StatusSuccess {
		t.Fatalf("Include: %v", status)
	}

	if status := k.Free(a, va); status != StatusSuccess {
		t.Fatalf("Free(a): %v", status)
	}
	if got, want := k.Objects.Count(), 1; got != want {
		t.Fatalf("objects live after freeing A's mapping = %d, want %d (B still maps it)", got, want)
	}

	if status := k.Free(b, vaB); status != StatusSuccess {
		t.Fatalf("Free(b): %v", status)
	}
	if got, want := k.Objects.Count(), 0; got != want {
		t.Fatalf("objects live after freeing B's mapping = %d, want %d", got, want)
	}
}

func TestFreeOfUnmappedAddressFails(t *testing.T) {
	k := newTestKernel()
	a, err := k.Create(nil, "A", true)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if status := k.Free(a, 0xdeadbeef); status != StatusBadAddress {
		t.Fatalf("Free of an unmapped address = %v, want BAD_ADDRESS", status)
	}
}
