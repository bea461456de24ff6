package kernel

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// AtomicSection is the global critical-section primitive of §5: a
// nestable, interrupts-disabled bracket serializing every mutation of
// kernel-wide shared state (the task registry, a task's state transitions,
// blocker installation, the memory-object registry). Begin/End pairs
// nest; only the outermost End releases the section, mirroring the
// distilled kernel's atomic_begin/atomic_end.
//
// The real kernel's interrupt-disable nests trivially because it runs on
// one CPU: whichever code is running is, by definition, the only holder.
// This simulation stands real goroutines in for the contexts (a task
// body, the timer-interrupt-driven scheduler tick) that would otherwise
// all run on that one CPU, so nesting is tracked per goroutine rather
// than globally.
type AtomicSection struct {
	mu    sync.Mutex
	cond  *sync.Cond
	held  bool
	owner int64
	depth int
}

// NewAtomicSection returns a released section.
func NewAtomicSection() *AtomicSection {
	a := &AtomicSection{}
	a.cond = sync.NewCond(&a.mu)
	return a
}

func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseInt(string(b), 10, 64)
	return id
}

// Begin enters the section, blocking if another goroutine currently holds
// it. Calling Begin again from the same goroutine nests without blocking.
func (a *AtomicSection) Begin() {
	id := goroutineID()
	a.mu.Lock()
	defer a.mu.Unlock()
	for a.held && a.owner != id {
		a.cond.Wait()
	}
	a.owner = id
	a.held = true
	a.depth++
}

// End releases one level of nesting. The section is released to other
// goroutines only when depth returns to zero. Calling End without a
// matching Begin on the same goroutine is a programming bug and panics,
// matching §7's directive to assert on critical-section misuse.
func (a *AtomicSection) End() {
	id := goroutineID()
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.held || a.owner != id {
		panic("kernel: atomic section End without a matching Begin")
	}
	a.depth--
	if a.depth == 0 {
		a.held = false
		a.owner = 0
		a.cond.Signal()
	}
}

// With runs f with the section held for its duration.
func (a *AtomicSection) With(f func()) {
	a.Begin()
	defer a.End()
	f()
}
