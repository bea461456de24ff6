// Package mm provides the memory-manager collaborator interfaces consumed
// by the task subsystem: page-directory lifecycle, physical page
// allocation, and virtual mapping. The real implementation of this package
// belongs to the architecture-specific memory manager; this package also
// ships a simulated backend (SimManager) that keeps a flat byte slice as
// "physical memory" so the task subsystem's shared-memory semantics can be
// exercised without real hardware.
package mm

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// PageShift/PageSize mirror the distilled kernel's page granularity.
const (
	PageShift = 12
	PageSize  = 1 << PageShift
)

// Addr is a physical or virtual address. The two spaces are never mixed
// within a single value; callers track which space an Addr belongs to by
// context, same as the C original's plain uintptr_t.
type Addr uintptr

// Range describes a contiguous span of addresses.
type Range struct {
	Base   Addr
	Length uintptr
}

// End returns the address immediately after the range.
func (r Range) End() Addr { return r.Base + Addr(r.Length) }

// PageAlignUp rounds size up to the next page boundary.
func PageAlignUp(size uintptr) uintptr {
	return (size + PageSize - 1) &^ (PageSize - 1)
}

// Flags qualify an allocation or mapping request.
type Flags uint32

const (
	FlagNone  Flags = 0
	FlagUser  Flags = 1 << 0
	FlagClear Flags = 1 << 1
)

// PageDirectory is an opaque per-address-space handle. The task subsystem
// never inspects its contents; it only creates, destroys, switches, and
// passes it back into Manager calls.
type PageDirectory interface {
	// ID distinguishes page directories for logging and equality checks.
	ID() uint64
}

// IO lets a caller move bytes into or out of a mapped virtual range,
// standing in for the architecture layer's user-memory copy routines.
type IO interface {
	CopyOut(addr Addr, b []byte) (int, error)
	CopyIn(addr Addr, b []byte) (int, error)
}

// Manager is the memory-manager collaborator interface. It is intentionally
// narrow: everything the task subsystem's §4.5/§6 operations need, and
// nothing about page-table formats or TLB management, which belong to the
// architecture layer proper.
type Manager interface {
	// KernelPageDirectory returns the single shared page directory used by
	// kernel tasks. It is never destroyed.
	KernelPageDirectory() PageDirectory

	CreatePageDirectory() (PageDirectory, error)
	DestroyPageDirectory(pdir PageDirectory) error
	SwitchPageDirectory(pdir PageDirectory)

	Alloc(pdir PageDirectory, size uintptr, flags Flags) (Range, error)
	Free(pdir PageDirectory, r Range) error
	Map(pdir PageDirectory, r Range, flags Flags) error

	VirtualAlloc(pdir PageDirectory, backing Range, flags Flags) (Range, error)
	VirtualFree(pdir PageDirectory, r Range) error

	PhysicalAlloc(nPages int) (Addr, error)
	PhysicalFree(addr Addr, nPages int)

	// IO returns the copy-in/copy-out interface for the given directory,
	// used by tests and by IPC code that reads or writes shared mappings.
	IO(pdir PageDirectory) IO
}

// SimManager is a software-only Manager for tests and for hosts with no
// privileged access to real page tables. Physical memory is a single flat
// byte slice; each PageDirectory owns a simple virtual-to-physical
// translation table instead of real page tables.
type SimManager struct {
	mu sync.Mutex

	phys     []byte
	physUsed []bool
	kpdir    *simPageDirectory
	nextID   uint64
	nextVirt Addr
}

// NewSimManager allocates a simulated physical memory pool of physBytes,
// rounded up to a whole number of pages.
func NewSimManager(physBytes uintptr) *SimManager {
	n := PageAlignUp(physBytes) / PageSize
	m := &SimManager{
		phys:     make([]byte, n*PageSize),
		physUsed: make([]bool, n),
		nextVirt: Addr(0x4000_0000),
	}
	m.kpdir = m.newPageDirectory()
	return m
}

type translation struct {
	virt Range
	phys Addr
}

type simPageDirectory struct {
	id           uint64
	translations []translation
}

func (p *simPageDirectory) ID() uint64 { return p.id }

func (m *SimManager) newPageDirectory() *simPageDirectory {
	m.nextID++
	return &simPageDirectory{id: m.nextID}
}

func (m *SimManager) KernelPageDirectory() PageDirectory { return m.kpdir }

func (m *SimManager) CreatePageDirectory() (PageDirectory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.newPageDirectory(), nil
}

func (m *SimManager) DestroyPageDirectory(pdir PageDirectory) error {
	p, ok := pdir.(*simPageDirectory)
	if !ok {
		return errors.Errorf("mm: foreign page directory %v", pdir)
	}
	if p == m.kpdir {
		return errors.New("mm: refusing to destroy the kernel page directory")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range p.translations {
		m.freePhysicalLocked(t.phys, int(t.virt.Length/PageSize))
	}
	p.translations = nil
	return nil
}

func (m *SimManager) SwitchPageDirectory(PageDirectory) {
	// No real TLB to flush in simulation; address-space switch is a no-op.
}

func (m *SimManager) Alloc(pdir PageDirectory, size uintptr, flags Flags) (Range, error) {
	size = PageAlignUp(size)
	phys, err := m.PhysicalAlloc(int(size / PageSize))
	if err != nil {
		return Range{}, err
	}
	r := Range{Base: phys, Length: size}
	if err := m.Map(pdir, r, flags); err != nil {
		return Range{}, err
	}
	return r, nil
}

func (m *SimManager) Free(pdir PageDirectory, r Range) error {
	p, ok := pdir.(*simPageDirectory)
	if !ok {
		return errors.Errorf("mm: foreign page directory %v", pdir)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range p.translations {
		if t.phys == r.Base {
			m.freePhysicalLocked(t.phys, int(t.virt.Length/PageSize))
			p.translations = append(p.translations[:i], p.translations[i+1:]...)
			return nil
		}
	}
	return errors.New("mm: free of unmapped range")
}

func (m *SimManager) Map(pdir PageDirectory, r Range, flags Flags) error {
	p, ok := pdir.(*simPageDirectory)
	if !ok {
		return errors.Errorf("mm: foreign page directory %v", pdir)
	}
	if flags&FlagClear != 0 {
		m.mu.Lock()
		off := int(r.Base)
		if off >= 0 && off+int(r.Length) <= len(m.phys) {
			for i := off; i < off+int(r.Length); i++ {
				m.phys[i] = 0
			}
		}
		m.mu.Unlock()
	}
	p.translations = append(p.translations, translation{virt: r, phys: r.Base})
	return nil
}

func (m *SimManager) VirtualAlloc(pdir PageDirectory, backing Range, flags Flags) (Range, error) {
	p, ok := pdir.(*simPageDirectory)
	if !ok {
		return Range{}, errors.Errorf("mm: foreign page directory %v", pdir)
	}
	m.mu.Lock()
	base := m.nextVirt
	m.nextVirt += Addr(PageAlignUp(backing.Length))
	m.mu.Unlock()

	r := Range{Base: base, Length: backing.Length}
	p.translations = append(p.translations, translation{virt: r, phys: backing.Base})
	return r, nil
}

func (m *SimManager) VirtualFree(pdir PageDirectory, r Range) error {
	p, ok := pdir.(*simPageDirectory)
	if !ok {
		return errors.Errorf("mm: foreign page directory %v", pdir)
	}
	for i, t := range p.translations {
		if t.virt.Base == r.Base {
			p.translations = append(p.translations[:i], p.translations[i+1:]...)
			return nil
		}
	}
	return errors.New("mm: free of unmapped virtual range")
}

func (m *SimManager) PhysicalAlloc(nPages int) (Addr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run := 0
	start := -1
	for i, used := range m.physUsed {
		if !used {
			if start == -1 {
				start = i
			}
			run++
			if run == nPages {
				for j := start; j < start+nPages; j++ {
					m.physUsed[j] = true
				}
				return Addr(start * PageSize), nil
			}
		} else {
			start = -1
			run = 0
		}
	}
	return 0, errors.Errorf("mm: out of simulated physical memory (%d pages requested)", nPages)
}

func (m *SimManager) PhysicalFree(addr Addr, nPages int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.freePhysicalLocked(addr, nPages)
}

func (m *SimManager) freePhysicalLocked(addr Addr, nPages int) {
	start := int(addr) / PageSize
	for i := start; i < start+nPages && i < len(m.physUsed); i++ {
		m.physUsed[i] = false
	}
}

func (m *SimManager) IO(pdir PageDirectory) IO {
	return simIO{m: m, pdir: pdir.(*simPageDirectory)}
}

type simIO struct {
	m    *SimManager
	pdir *simPageDirectory
}

func (io simIO) translate(virt Addr) (Addr, uintptr, bool) {
	for _, t := range io.pdir.translations {
		if virt >= t.virt.Base && virt < t.virt.End() {
			off := virt - t.virt.Base
			return t.phys + off, t.virt.Length - uintptr(off), true
		}
	}
	return 0, 0, false
}

func (io simIO) CopyOut(addr Addr, b []byte) (int, error) {
	phys, avail, ok := io.translate(addr)
	if !ok {
		return 0, errors.Errorf("mm: CopyOut of unmapped address %#x", addr)
	}
	n := len(b)
	if uintptr(n) > avail {
		n = int(avail)
	}
	io.m.mu.Lock()
	copy(io.m.phys[phys:phys+Addr(n)], b[:n])
	io.m.mu.Unlock()
	if n < len(b) {
		return n, fmt.Errorf("mm: short copy-out (%d of %d bytes)", n, len(b))
	}
	return n, nil
}

func (io simIO) CopyIn(addr Addr, b []byte) (int, error) {
	phys, avail, ok := io.translate(addr)
	if !ok {
		return 0, errors.Errorf("mm: CopyIn of unmapped address %#x", addr)
	}
	n := len(b)
	if uintptr(n) > avail {
		n = int(avail)
	}
	io.m.mu.Lock()
	copy(b[:n], io.m.phys[phys:phys+Addr(n)])
	io.m.mu.Unlock()
	if n < len(b) {
		return n, fmt.Errorf("mm: short copy-in (%d of %d bytes)", n, len(b))
	}
	return n, nil
}
