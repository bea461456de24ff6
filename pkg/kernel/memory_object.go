package kernel

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/JakeChampion/skift/pkg/mm"
)

// MemoryObjectID uniquely identifies a MemoryObject for the lifetime of a
// MemoryObjectRegistry.
type MemoryObjectID int64

// MemoryObject is a refcounted run of physical pages, identified by an
// integer id so that a handle to it can be handed to another task over
// IPC. It is destroyed precisely when its refcount reaches zero.
type MemoryObject struct {
	id       MemoryObjectID
	address  mm.Addr
	size     uintptr
	refcount int32
}

func (o *MemoryObject) ID() MemoryObjectID { return o.id }
func (o *MemoryObject) Size() uintptr      { return o.size }

// Refcount returns the object's current reference count, primarily for
// tests asserting the invariant in §8.
func (o *MemoryObject) Refcount() int32 { return atomic.LoadInt32(&o.refcount) }

// MemoryObjectRegistry is the process-wide store of MemoryObjects. The
// registry lock protects list membership and refcount-to-zero decisions;
// increments elsewhere use atomics without the lock because the caller
// already holds a live reference, exactly as §4.4 specifies.
type MemoryObjectRegistry struct {
	k      *Kernel
	mu     sync.Mutex
	nextID int64
	objs   []*MemoryObject
}

func newMemoryObjectRegistry(k *Kernel) *MemoryObjectRegistry {
	return &MemoryObjectRegistry{k: k}
}

// Create rounds size up to page granularity, allocates contiguous
// physical pages, installs the object with refcount 1, and returns it.
func (r *MemoryObjectRegistry) Create(size uintptr) (*MemoryObject, error) {
	size = mm.PageAlignUp(size)
	addr, err := r.k.MM.PhysicalAlloc(int(size / mm.PageSize))
	if err != nil {
		return nil, errors.Wrap(err, "kernel: allocating shared pages")
	}

	o := &MemoryObject{
		id:       MemoryObjectID(atomic.AddInt64(&r.nextID, 1)),
		address:  addr,
		size:     size,
		refcount: 1,
	}

	r.mu.Lock()
	r.objs = append(r.objs, o)
	r.mu.Unlock()

	Log.WithField("object_id", o.id).WithField("size", size).Info("memory object created")
	return o, nil
}

// Ref atomically increments o's refcount and returns o unchanged.
func (r *MemoryObjectRegistry) Ref(o *MemoryObject) *MemoryObject {
	atomic.AddInt32(&o.refcount, 1)
	return o
}

// Deref atomically decrements o's refcount under the registry lock; when
// the result is zero it removes o from the registry and frees its
// physical pages.
func (r *MemoryObjectRegistry) Deref(o *MemoryObject) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if atomic.AddInt32(&o.refcount, -1) != 0 {
		return
	}

	for i, x := range r.objs {
		if x == o {
			r.objs = append(r.objs[:i], r.objs[i+1:]...)
			break
		}
	}
	r.k.MM.PhysicalFree(o.address, int(o.size/mm.PageSize))
	Log.WithField("object_id", o.id).Info("memory object destroyed")
}

// ByID returns a newly referenced object for id, or nil if none exists.
func (r *MemoryObjectRegistry) ByID(id MemoryObjectID) *MemoryObject {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.objs {
		if o.id == id {
			atomic.AddInt32(&o.refcount, 1)
			return o
		}
	}
	return nil
}

// Count returns the number of live memory objects.
func (r *MemoryObjectRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.objs)
}
