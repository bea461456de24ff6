package kernel

import (
	"encoding/binary"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/JakeChampion/skift/pkg/arch"
	"github.com/JakeChampion/skift/pkg/fsnode"
	"github.com/JakeChampion/skift/pkg/mm"
)

// TaskID uniquely and permanently identifies a Task. IDs are assigned in
// strictly increasing order and are never reused within a Kernel's
// lifetime.
type TaskID int64

// EntryPoint is a task body. The Kernel starts it on its own goroutine
// once Go is called; arg is whatever Spawn/SpawnWithArgv was given.
type EntryPoint func(t *Task, arg interface{})

// Task is the task record of §3: identity, state, address space, kernel
// stack, cwd, handle table, current blocker, exit value, and saved
// context. State transitions and registry membership change only under
// the Kernel's AtomicSection; the entry point, argument, argv, user flag
// and stack contents are written by Spawn/SpawnWithArgv/Go before the
// task's body starts, outside that section.
type Task struct {
	id   TaskID
	name string

	state atomic.Int32 // State

	k           *Kernel
	pdir        mm.PageDirectory
	isKernelDir bool

	stack        mm.Range
	stackPointer mm.Addr

	cwdMu   sync.Mutex
	cwdPath *fsnode.Path

	handles *HandleTable

	mappingsMu sync.Mutex
	mappings   []*MemoryMapping

	entry     EntryPoint
	entryArg  interface{}
	entryArgv []string
	user      bool

	blockerMu sync.Mutex
	blocker   Blocker
	resumeCh  chan struct{}

	exitValue atomic.Int64

	ctx arch.Context
}

// ID returns the task's permanent identifier.
func (t *Task) ID() TaskID { return t.id }

// Name returns the task's (possibly truncated) name.
func (t *Task) Name() string { return t.name }

// State returns the task's current lifecycle state.
func (t *Task) State() State { return State(t.state.Load()) }

// User reports whether the task runs in user mode.
func (t *Task) User() bool { return t.user }

// ExitValue is valid once State() == StateCanceled.
func (t *Task) ExitValue() int { return int(t.exitValue.Load()) }

// Argv returns the argument vector SpawnWithArgv marshaled for this task,
// already truncated to the configured cap.
func (t *Task) Argv() []string { return t.entryArgv }

// Context returns the task's saved architecture context.
func (t *Task) Context() arch.Context { return t.ctx }

// pushStack copies data onto the top of the task's descending kernel
// stack and returns the address it was written to, mirroring the
// distilled kernel's task_stack_push.
func (t *Task) pushStack(data []byte) mm.Addr {
	t.stackPointer -= mm.Addr(len(data))
	io := t.k.MM.IO(t.pdir)
	io.CopyOut(t.stackPointer, data)
	return t.stackPointer
}

func (t *Task) pushAddr(a mm.Addr) mm.Addr {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(a))
	return t.pushStack(buf[:])
}

func (t *Task) pushInt(v int) mm.Addr {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(int64(v)))
	return t.pushStack(buf[:])
}

// Create allocates a Task in state NONE: a page directory (new for user
// tasks, the shared kernel directory otherwise), a kernel stack inside
// that directory, a cwd cloned from parent (or "/" for the first task),
// a zeroed handle table, and an initial saved context. It must run, and
// does run, under the Kernel's AtomicSection.
func (k *Kernel) Create(parent *Task, name string, user bool) (*Task, error) {
	k.Atomic.Begin()
	defer k.Atomic.End()

	if len(name) > k.Config.NameSize {
		name = name[:k.Config.NameSize]
	}

	var pdir mm.PageDirectory
	isKernelDir := !user
	if user {
		var err error
		pdir, err = k.MM.CreatePageDirectory()
		if err != nil {
			return nil, errors.Wrap(err, "kernel: creating page directory")
		}
	} else {
		pdir = k.MM.KernelPageDirectory()
	}

	stack, err := k.MM.Alloc(pdir, k.Config.StackSize, mm.FlagClear)
	if err != nil {
		return nil, errors.Wrap(err, "kernel: allocating kernel stack")
	}

	var cwd *fsnode.Path
	if parent != nil {
		parent.cwdMu.Lock()
		cwd = parent.cwdPath.Clone()
		parent.cwdMu.Unlock()
	} else {
		cwd = fsnode.NewPath("/")
	}

	t := &Task{
		id:          TaskID(k.nextTaskID.Add(1)),
		name:        name,
		k:           k,
		pdir:        pdir,
		isKernelDir: isKernelDir,
		user:        user,
		stack:       stack,
		cwdPath:     cwd,
		handles:     newHandleTable(k.Config.HandleCount),
		ctx:         k.Arch.NewContext(),
	}
	t.stackPointer = stack.End()
	t.state.Store(int32(StateNone))
	t.ctx.Save()

	k.Tasks.Insert(t)

	Log.WithFields(taskFields(t)).Info("task created")
	return t, nil
}

// Spawn creates a task and sets its entry point and argument, ready for
// Go.
func (k *Kernel) Spawn(parent *Task, name string, entry EntryPoint, arg interface{}, user bool) (*Task, error) {
	t, err := k.Create(parent, name, user)
	if err != nil {
		return nil, err
	}
	t.entry = entry
	t.entryArg = arg
	return t, nil
}

// SpawnWithArgv is like Spawn but marshals argv onto the new task's stack
// the way a C entrypoint expects: each string copied, a pointer array up
// to the configured cap, then the argv pointer and argc, in that order.
// An argv longer than the cap is silently truncated to it.
func (k *Kernel) SpawnWithArgv(parent *Task, name string, entry EntryPoint, argv []string, user bool) (*Task, error) {
	t, err := k.Create(parent, name, user)
	if err != nil {
		return nil, err
	}
	t.entry = entry
	t.user = user

	if cap := k.Config.ArgvCap; len(argv) > cap {
		argv = argv[:cap]
	}
	t.entryArgv = append([]string(nil), argv...)

	// Each string is copied onto the stack first, highest index first, so
	// that the pointer array built below lists them in argv order.
	ptrs := make([]mm.Addr, k.Config.ArgvCap)
	for i := len(argv) - 1; i >= 0; i-- {
		ptrs[i] = t.pushStack(append([]byte(argv[i]), 0))
	}

	ptrBuf := make([]byte, 8*len(ptrs))
	for i, a := range ptrs {
		binary.LittleEndian.PutUint64(ptrBuf[i*8:], uint64(a))
	}
	argvBase := t.pushStack(ptrBuf)

	t.pushAddr(argvBase)
	t.pushInt(len(argv))

	return t, nil
}

// Go synthesizes an interrupt-return frame for the task's entry point and
// transitions it NONE -> RUNNING. After Go, the scheduler may dispatch
// the task on its next pick.
func (k *Kernel) Go(t *Task) {
	ip := mm.Addr(reflect.ValueOf(t.entry).Pointer())
	frame := arch.NewInterruptFrame(ip, t.stack.End())
	t.pushStack(encodeInterruptFrame(frame))
	t.ctx.SetInstructionPointer(ip)
	t.ctx.SetStackPointer(t.stackPointer)

	k.Atomic.Begin()
	defer k.Atomic.End()
	k.setState(t, StateRunning)
}

func encodeInterruptFrame(f arch.InterruptFrame) []byte {
	buf := make([]byte, 8+8+8+2*5)
	binary.LittleEndian.PutUint64(buf[0:], f.Flags)
	binary.LittleEndian.PutUint64(buf[8:], uint64(f.IP))
	binary.LittleEndian.PutUint64(buf[16:], uint64(f.BP))
	binary.LittleEndian.PutUint16(buf[24:], f.CS)
	binary.LittleEndian.PutUint16(buf[26:], f.DS)
	binary.LittleEndian.PutUint16(buf[28:], f.ES)
	binary.LittleEndian.PutUint16(buf[30:], f.FS)
	binary.LittleEndian.PutUint16(buf[32:], f.GS)
	return buf
}

// setState performs a state transition and notifies the scheduler. The
// caller must already hold the Kernel's AtomicSection.
func (k *Kernel) setState(t *Task, to State) {
	from := State(t.state.Load())
	t.state.Store(int32(to))
	k.Sched.DidChangeTaskState(t, from, to)
	Log.WithFields(taskFields(t)).WithField("from", from.String()).WithField("to", to.String()).Debug("task state changed")
}

// Cancel records exit_value and transitions t to CANCELED regardless of
// its prior state. Any task blocked waiting on t observes the
// cancellation the next time the scheduler evaluates its Wait blocker.
func (k *Kernel) Cancel(t *Task, exitValue int) Status {
	k.Atomic.Begin()
	defer k.Atomic.End()

	t.exitValue.Store(int64(exitValue))
	k.setState(t, StateCanceled)
	return StatusSuccess
}

// Exit cancels the current task with exitValue and yields. It never
// returns: a task resuming after cancellation is a kernel bug.
func (k *Kernel) Exit(t *Task, exitValue int) {
	k.Cancel(t, exitValue)
	k.Sched.Yield()
	panic("kernel: Exit: task resumed after cancellation")
}

// Destroy releases every resource a task owns: memory mappings, file
// handles, cwd, kernel stack, and (for user tasks) the page directory.
// It is only callable when the task is CANCELED or NONE, matching the
// Reaper invariant that a task is never destroyed while runnable.
func (k *Kernel) Destroy(t *Task) {
	k.Atomic.Begin()
	state := State(t.state.Load())
	if state != StateCanceled && state != StateNone {
		k.Atomic.End()
		panic("kernel: Destroy: task not in a terminal state")
	}
	if state != StateNone {
		k.setState(t, StateNone)
	}
	k.Tasks.Remove(t)
	k.Atomic.End()

	t.mappingsMu.Lock()
	mappings := t.mappings
	t.mappings = nil
	t.mappingsMu.Unlock()
	for _, m := range mappings {
		if err := k.DestroyMapping(t, m); err != nil {
			Log.WithFields(taskFields(t)).WithError(err).Warn("destroying memory mapping")
		}
	}

	t.handles.CloseAll()

	t.cwdMu.Lock()
	t.cwdPath = nil
	t.cwdMu.Unlock()

	if err := k.MM.Free(t.pdir, t.stack); err != nil {
		Log.WithFields(taskFields(t)).WithError(err).Warn("freeing kernel stack")
	}

	if !t.isKernelDir {
		if err := k.MM.DestroyPageDirectory(t.pdir); err != nil {
			Log.WithFields(taskFields(t)).WithError(err).Warn("destroying page directory")
		}
	}

	Log.WithFields(taskFields(t)).Info("task destroyed")
}
