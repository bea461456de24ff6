package kernel

import (
	"github.com/pkg/errors"

	"github.com/JakeChampion/skift/pkg/mm"
)

// MemoryMapping binds a MemoryObject into one task's virtual address
// space. It owns one reference to the object; its lifetime is bound to
// the owning task's mapping sequence.
type MemoryMapping struct {
	object  *MemoryObject
	address mm.Addr
	size    uintptr
}

func (m *MemoryMapping) Object() *MemoryObject { return m.object }
func (m *MemoryMapping) Address() mm.Addr      { return m.address }
func (m *MemoryMapping) Size() uintptr         { return m.size }

// createMapping maps o into t's address space, taking its own reference
// on o (the caller retains whatever reference it already held).
func (k *Kernel) createMapping(t *Task, o *MemoryObject) (*MemoryMapping, error) {
	vr, err := k.MM.VirtualAlloc(t.pdir, mm.Range{Base: o.address, Length: o.size}, mm.FlagUser)
	if err != nil {
		return nil, errors.Wrap(err, "kernel: mapping shared pages")
	}

	m := &MemoryMapping{object: k.Objects.Ref(o), address: vr.Base, size: o.size}

	t.mappingsMu.Lock()
	t.mappings = append(t.mappings, m)
	t.mappingsMu.Unlock()

	return m, nil
}

// DestroyMapping unmaps m from t's address space and drops its reference
// on the underlying object, which dies iff no other task still maps it.
func (k *Kernel) DestroyMapping(t *Task, m *MemoryMapping) error {
	if err := k.MM.VirtualFree(t.pdir, mm.Range{Base: m.address, Length: m.size}); err != nil {
		return errors.Wrap(err, "kernel: unmapping shared pages")
	}
	k.Objects.Deref(m.object)

	t.mappingsMu.Lock()
	for i, x := range t.mappings {
		if x == m {
			t.mappings = append(t.mappings[:i], t.mappings[i+1:]...)
			break
		}
	}
	t.mappingsMu.Unlock()

	return nil
}

// mappingByAddress finds t's mapping with the given virtual base, if any.
func (t *Task) mappingByAddress(addr mm.Addr) *MemoryMapping {
	t.mappingsMu.Lock()
	defer t.mappingsMu.Unlock()
	for _, m := range t.mappings {
		if m.address == addr {
			return m
		}
	}
	return nil
}

// Alloc creates a fresh MemoryObject sized to size, maps it into t, and
// returns the mapping's virtual base. The temporary creation-time
// reference is dropped once the mapping holds its own.
func (k *Kernel) Alloc(t *Task, size uintptr) (mm.Addr, Status) {
	o, err := k.Objects.Create(size)
	if err != nil {
		Log.WithError(err).Warn("shared memory allocation failed")
		return 0, StatusBadAddress
	}

	m, err := k.createMapping(t, o)
	k.Objects.Deref(o)
	if err != nil {
		Log.WithError(err).Warn("shared memory mapping failed")
		return 0, StatusBadAddress
	}

	return m.address, StatusSuccess
}

// Free locates t's mapping at addr and destroys it. The underlying object
// dies iff no other task still maps it.
func (k *Kernel) Free(t *Task, addr mm.Addr) Status {
	m := t.mappingByAddress(addr)
	if m == nil {
		return StatusBadAddress
	}
	if err := k.DestroyMapping(t, m); err != nil {
		Log.WithError(err).Warn("freeing shared memory mapping")
		return StatusBadAddress
	}
	return StatusSuccess
}

// Include looks up the object named by id, maps it into t, and returns
// the mapping's virtual base and size. This is how a MemoryObject handle
// received over IPC becomes a usable mapping in the receiving task.
func (k *Kernel) Include(t *Task, id MemoryObjectID) (mm.Addr, uintptr, Status) {
	o := k.Objects.ByID(id)
	if o == nil {
		return 0, 0, StatusBadAddress
	}

	m, err := k.createMapping(t, o)
	k.Objects.Deref(o)
	if err != nil {
		Log.WithError(err).Warn("shared memory include failed")
		return 0, 0, StatusBadAddress
	}

	return m.address, m.size, StatusSuccess
}

// GetHandle reverse-looks-up the MemoryObject id backing t's mapping at
// addr, so it can be handed to another task over IPC.
func (k *Kernel) GetHandle(t *Task, addr mm.Addr) (MemoryObjectID, Status) {
	m := t.mappingByAddress(addr)
	if m == nil {
		return 0, StatusBadAddress
	}
	return m.object.id, StatusSuccess
}
