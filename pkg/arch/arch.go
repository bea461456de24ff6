// Package arch provides the architecture collaborator interfaces consumed
// by the task subsystem: saved-register context and the interrupt-return
// frame synthesized by Task.Go. The distilled kernel's design assumes a
// flat frame with flags/ip/bp and segment selectors, matching a 32-bit x86
// ABI; this package keeps that shape but leaves it to the architecture
// implementation to interpret the selector fields.
package arch

import "github.com/JakeChampion/skift/pkg/mm"

// Context is an architecture-defined register snapshot. Task.Create calls
// Save once at creation time; Task.Go sets it through
// SetInstructionPointer/SetStackPointer rather than by reaching into
// architecture-specific fields. The bundled RoundRobin scheduler does not
// touch it.
type Context interface {
	Save()
	InstructionPointer() mm.Addr
	SetInstructionPointer(mm.Addr)
	StackPointer() mm.Addr
	SetStackPointer(mm.Addr)
}

// InterruptFrame is the register layout Task.Go pushes onto a fresh task's
// stack so that the architecture's interrupt-return path can resume it as
// if it had been preempted mid-flight. Flags has interrupts enabled; IP is
// the task's entry point; BP is the top of the newly allocated stack.
type InterruptFrame struct {
	Flags uint64
	IP    mm.Addr
	BP    mm.Addr

	// Segment selectors. 0x08/0x10 below mirror the distilled kernel's
	// flat GDT layout (kernel code/data); user tasks would use different
	// selectors, left to a real architecture implementation.
	CS, DS, ES, FS, GS uint16
}

const (
	flagsInterruptEnable = 0x202
	kernelCodeSelector   = 0x08
	kernelDataSelector   = 0x10
)

// NewInterruptFrame builds the frame Task.Go pushes for a task entering at
// ip with a stack top of bp.
func NewInterruptFrame(ip, bp mm.Addr) InterruptFrame {
	return InterruptFrame{
		Flags: flagsInterruptEnable,
		IP:    ip,
		BP:    bp,
		CS:    kernelCodeSelector,
		DS:    kernelDataSelector,
		ES:    kernelDataSelector,
		FS:    kernelDataSelector,
		GS:    kernelDataSelector,
	}
}

// SimContext is a software-only Context for hosts with no real register
// file to snapshot: a test or simulation "task" is really a goroutine, and
// its saved context is just bookkeeping for the fields the task subsystem
// itself reads and writes (instruction and stack pointers).
type SimContext struct {
	ip, sp mm.Addr
	saved  bool
}

func (c *SimContext) Save()                          { c.saved = true }
func (c *SimContext) InstructionPointer() mm.Addr     { return c.ip }
func (c *SimContext) SetInstructionPointer(a mm.Addr) { c.ip = a }
func (c *SimContext) StackPointer() mm.Addr           { return c.sp }
func (c *SimContext) SetStackPointer(a mm.Addr)       { c.sp = a }

// Factory builds a fresh, architecture-specific Context for a newly
// created task. The task subsystem calls NewContext exactly once per
// task, in Kernel.Create, before the task's interrupt frame exists.
type Factory interface {
	NewContext() Context
}

// SimFactory is the Factory behind NewSimulatedKernel: it hands out
// SimContexts, which is all a goroutine-backed task needs.
type SimFactory struct{}

// NewContext returns a zero-valued SimContext.
func (SimFactory) NewContext() Context { return &SimContext{} }
