package kernel

import "golang.org/x/sync/errgroup"

// HangEntry is the idle task's body: it parks forever, doing nothing. The
// scheduler dispatches it only when no RUNNING task exists.
func HangEntry(t *Task, _ interface{}) {
	select {}
}

// Bootstrap performs one-shot kernel initialization: it creates the idle
// task, the first kernel task ("System", running systemEntry), and the
// reaper task, starts all three, and notifies the scheduler of the idle
// and running tasks. The three creations are independent (none depends
// on the others' results) and run concurrently via an errgroup, joined
// before any of them is started or announced to the scheduler.
func Bootstrap(k *Kernel, systemEntry EntryPoint, systemArg interface{}) error {
	var idle, system, reaper *Task

	var g errgroup.Group
	g.Go(func() (err error) {
		idle, err = k.Spawn(nil, "Idle", HangEntry, nil, false)
		return err
	})
	g.Go(func() (err error) {
		system, err = k.Spawn(nil, "System", systemEntry, systemArg, false)
		return err
	})
	g.Go(func() (err error) {
		reaper, err = k.SpawnReaper(nil)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	k.Go(idle)
	k.Atomic.With(func() { k.setState(idle, StateHang) })
	k.Sched.DidCreateIdleTask(idle)
	k.runTaskBody(idle)

	k.Go(system)
	k.Sched.DidCreateRunningTask(system)
	k.runTaskBody(system)

	k.Go(reaper)
	k.runTaskBody(reaper)

	k.Idle, k.System, k.Reaper = idle, system, reaper

	Log.Info("bootstrap complete")
	return nil
}

// Start launches t's entry point on its own goroutine. It is the normal
// way to start any task spawned after Bootstrap; Bootstrap itself calls
// the identical runTaskBody for the idle, system, and reaper tasks before
// any caller could reach them through Start.
func (k *Kernel) Start(t *Task) {
	k.runTaskBody(t)
}

// runTaskBody starts t's entry point on its own goroutine. When the
// Kernel's scheduler is the bundled RoundRobin reference, the goroutine
// also registers itself so Running/RunningID/Yield can find it.
func (k *Kernel) runTaskBody(t *Task) {
	go func() {
		if rr, ok := k.Sched.(*RoundRobin); ok {
			rr.enter(t)
			defer rr.leave()
		}
		t.entry(t, t.entryArg)
	}()
}
