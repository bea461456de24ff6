// Package kernel implements the task lifecycle, blocking protocol, and
// shared-memory object registry of a small preemptive kernel. It
// consumes, rather than implements, the scheduler proper, the
// architecture layer, the physical/virtual memory managers, and the
// filesystem: those are collaborator interfaces (Scheduler, arch.Context,
// mm.Manager, fsnode.Resolver) that a real kernel would back with
// hardware-specific code, and that this package backs with simulated
// implementations for testing and demonstration.
package kernel

import (
	"sync/atomic"

	"github.com/JakeChampion/skift/pkg/arch"
	"github.com/JakeChampion/skift/pkg/fsnode"
	"github.com/JakeChampion/skift/pkg/mm"
)

// Kernel aggregates every piece of process-wide state the task subsystem
// needs: the critical-section primitive, configuration, collaborator
// interfaces, and the two global registries.
type Kernel struct {
	Atomic *AtomicSection
	Config Config

	MM    mm.Manager
	FS    fsnode.Resolver
	Arch  arch.Factory
	Sched Scheduler

	Tasks   *TaskRegistry
	Objects *MemoryObjectRegistry

	nextTaskID atomic.Int64

	Idle   *Task
	System *Task
	Reaper *Task
}

// NewKernel wires together a Kernel from its collaborators. Use
// NewSimulatedKernel for a fully self-contained instance suitable for
// tests and the CLI demo.
func NewKernel(cfg Config, m mm.Manager, fs fsnode.Resolver, archFactory arch.Factory, sched Scheduler) *Kernel {
	k := &Kernel{
		Atomic: NewAtomicSection(),
		Config: cfg,
		MM:     m,
		FS:     fs,
		Arch:   archFactory,
		Sched:  sched,
	}
	k.Tasks = newTaskRegistry(k)
	k.Objects = newMemoryObjectRegistry(k)
	return k
}

// NewSimulatedKernel returns a Kernel backed entirely by the simulated
// collaborators in pkg/mm, pkg/arch, and pkg/fsnode, with physBytes of
// simulated physical memory. It is the configuration used by tests and
// cmd/taskdump.
func NewSimulatedKernel(cfg Config, physBytes uintptr) *Kernel {
	return NewKernel(cfg, mm.NewSimManager(physBytes), fsnode.NewMapResolver(), arch.SimFactory{}, NewRoundRobin())
}
