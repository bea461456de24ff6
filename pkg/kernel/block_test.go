package kernel

import "testing"

// TestBlockedStateImpliesBlockerPresent exercises §8's registry invariant:
// a task is BLOCKED iff it has an installed blocker. Block only reaches
// StateBlocked on the slow path, and always clears the blocker before
// returning, so both directions hold at every observation point below.
// Each observation is made inside the atomic section, since installation
// briefly holds a blocker on a task that is not yet BLOCKED.
func TestBlockedStateImpliesBlockerPresent(t *testing.T) {
	k := newTestKernel()
	if err := Bootstrap(k, func(*Task, interface{}) { select {} }, nil); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	sched := k.Sched.(*RoundRobin)

	done := make(chan struct{})
	a, err := k.Spawn(k.System, "A", func(self *Task, _ interface{}) {
		k.Sleep(self, 5)
		close(done)
	}, nil, false)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	k.Go(a)
	k.Start(a)

	for i := 0; i < 5; i++ {
		sched.Tick(k)
		var blocked, hasBlocker bool
		k.Atomic.With(func() {
			a.blockerMu.Lock()
			hasBlocker = a.blocker != nil
			a.blockerMu.Unlock()
			blocked = a.State() == StateBlocked
		})
		if blocked != hasBlocker {
			t.Fatalf("tick %d: State()==BLOCKED is %v but blocker!=nil is %v", i, blocked, hasBlocker)
		}
	}

	select {
	case <-done:
	default:
		for i := 0; i < 20; i++ {
			sched.Tick(k)
			select {
			case <-done:
				return
			default:
			}
		}
		t.Fatalf("task never finished sleeping")
	}
}
