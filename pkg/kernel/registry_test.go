package kernel

import "testing"

func newTestKernel() *Kernel {
	return NewSimulatedKernel(DefaultConfig(), 4*1024*1024)
}

func TestCreateAssignsStrictlyIncreasingIDs(t *testing.T) {
	k := newTestKernel()

	var prev TaskID
	for i := 0; i < 10; i++ {
		task, err := k.Create(nil, "t", false)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if i > 0 && task.ID() <= prev {
			t.Fatalf("id %d did not increase past previous id %d", task.ID(), prev)
		}
		prev = task.ID()
	}
}

func TestRegistryCountTracksDestroy(t *testing.T) {
	k := newTestKernel()

	task, err := k.Create(nil, "t", false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got, want := k.Tasks.Count(), 1; got != want {
		t.Fatalf("Count() = %d, want %d", got, want)
	}

	k.Cancel(task, 0)
	k.Destroy(task)

	if got, want := k.Tasks.Count(), 0; got != want {
		t.Fatalf("Count() after Destroy = %d, want %d", got, want)
	}
	if k.Tasks.ByID(task.ID()) != nil {
		t.Fatalf("ByID found a destroyed task")
	}
}

func TestNameIsTruncatedToConfiguredSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NameSize = 4
	k := NewSimulatedKernel(cfg, 1024*1024)

	task, err := k.Create(nil, "longer-than-four", false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got, want := task.Name(), "long"; got != want {
		t.Fatalf("Name() = %q, want %q", got, want)
	}
}
