package arch

import (
	"testing"

	"github.com/JakeChampion/skift/pkg/mm"
)

func TestSimContextSaveAndMutate(t *testing.T) {
	c := SimFactory{}.NewContext()
	c.SetInstructionPointer(mm.Addr(0x1000))
	c.SetStackPointer(mm.Addr(0x2000))
	c.Save()

	if got, want := c.InstructionPointer(), mm.Addr(0x1000); got != want {
		t.Fatalf("InstructionPointer() = %#x, want %#x", got, want)
	}
	if got, want := c.StackPointer(), mm.Addr(0x2000); got != want {
		t.Fatalf("StackPointer() = %#x, want %#x", got, want)
	}
}

func TestNewInterruptFrameUsesKernelSelectors(t *testing.T) {
	f := NewInterruptFrame(mm.Addr(0x400000), mm.Addr(0x500000))
	if f.Flags&flagsInterruptEnable == 0 {
		t.Fatalf("Flags does not have interrupts enabled: %#x", f.Flags)
	}
	if f.IP != 0x400000 {
		t.Fatalf("IP = %#x, want %#x", f.IP, 0x400000)
	}
	if f.BP != 0x500000 {
		t.Fatalf("BP = %#x, want %#x", f.BP, 0x500000)
	}
	for _, got := range []uint16{f.CS, f.DS, f.ES, f.FS, f.GS} {
		if got != kernelCodeSelector && got != kernelDataSelector {
			t.Fatalf("selector %#x is neither the kernel code nor data selector", got)
		}
	}
}
