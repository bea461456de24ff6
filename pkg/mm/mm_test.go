package mm

import (
	"bytes"
	"testing"
)

func TestCopyOutCopyInRoundTrip(t *testing.T) {
	m := NewSimManager(1 << 20)
	pdir, err := m.CreatePageDirectory()
	if err != nil {
		t.Fatalf("CreatePageDirectory: %v", err)
	}

	r, err := m.Alloc(pdir, 4096, FlagNone)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	io := m.IO(pdir)
	want := []byte("hello, shared memory")
	if _, err := io.CopyOut(r.Base, want); err != nil {
		t.Fatalf("CopyOut: %v", err)
	}

	got := make([]byte, len(want))
	if _, err := io.CopyIn(r.Base, got); err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("CopyIn = %q, want %q", got, want)
	}
}

func TestAllocWithFlagClearZeroesPages(t *testing.T) {
	m := NewSimManager(1 << 20)
	pdir, err := m.CreatePageDirectory()
	if err != nil {
		t.Fatalf("CreatePageDirectory: %v", err)
	}

	r, err := m.Alloc(pdir, PageSize, FlagNone)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	io := m.IO(pdir)
	if _, err := io.CopyOut(r.Base, bytes.Repeat([]byte{0xff}, int(PageSize))); err != nil {
		t.Fatalf("CopyOut: %v", err)
	}
	if err := m.Free(pdir, r); err != nil {
		t.Fatalf("Free: %v", err)
	}

	r2, err := m.Alloc(pdir, PageSize, FlagClear)
	if err != nil {
		t.Fatalf("Alloc FlagClear: %v", err)
	}
	got := make([]byte, PageSize)
	if _, err := m.IO(pdir).CopyIn(r2.Base, got); err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
	if !bytes.Equal(got, make([]byte, PageSize)) {
		t.Fatalf("FlagClear allocation was not zeroed")
	}
}

func TestPhysicalAllocReusesFreedPages(t *testing.T) {
	m := NewSimManager(2 * PageSize)

	a, err := m.PhysicalAlloc(2)
	if err != nil {
		t.Fatalf("PhysicalAlloc: %v", err)
	}
	m.PhysicalFree(a, 2)

	b, err := m.PhysicalAlloc(2)
	if err != nil {
		t.Fatalf("PhysicalAlloc after free: %v", err)
	}
	if a != b {
		t.Fatalf("PhysicalAlloc did not reuse freed pages: got %#x, want %#x", b, a)
	}
}

func TestPhysicalAllocFailsWhenExhausted(t *testing.T) {
	m := NewSimManager(PageSize)
	if _, err := m.PhysicalAlloc(1); err != nil {
		t.Fatalf("PhysicalAlloc: %v", err)
	}
	if _, err := m.PhysicalAlloc(1); err == nil {
		t.Fatalf("expected an error allocating beyond simulated physical memory")
	}
}

func TestDestroyPageDirectoryRefusesKernelDirectory(t *testing.T) {
	m := NewSimManager(1 << 20)
	if err := m.DestroyPageDirectory(m.KernelPageDirectory()); err == nil {
		t.Fatalf("expected an error destroying the kernel page directory")
	}
}
