package kernel

import "sync"

// Scheduler is the collaborator interface the task subsystem notifies of
// creation and state changes, and suspends into via Yield. Picking the
// next task to run and quantum accounting are the scheduler's own
// business, explicitly out of this package's scope. RoundRobin below is
// a minimal reference implementation: enough to drive the task subsystem
// end to end in tests and the CLI demo, not a production policy.
type Scheduler interface {
	DidCreateIdleTask(t *Task)
	DidCreateRunningTask(t *Task)
	DidChangeTaskState(t *Task, from, to State)

	// Yield suspends the calling task until something resumes it. It is
	// the only suspension point in the core.
	Yield()

	// Running/RunningID identify "the current task": whichever task's
	// goroutine is executing right now.
	Running() *Task
	RunningID() TaskID

	// Now returns the scheduler's current tick count.
	Now() Tick
}

// RoundRobin drives its clock explicitly via Tick/Run rather than a real
// timer interrupt, which keeps tests deterministic. Enter/Leave bracket a
// task body's execution on its own goroutine so Running/RunningID/Yield
// can find "the current task" by goroutine identity, standing in for the
// hardware notion of "whichever task is on the CPU right now".
type RoundRobin struct {
	mu      sync.Mutex
	tick    Tick
	current map[int64]*Task

	idle    *Task
	running *Task
}

// NewRoundRobin returns a scheduler with its clock at tick zero.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{current: make(map[int64]*Task)}
}

func (s *RoundRobin) enter(t *Task) {
	s.mu.Lock()
	s.current[goroutineID()] = t
	s.mu.Unlock()
}

func (s *RoundRobin) leave() {
	s.mu.Lock()
	delete(s.current, goroutineID())
	s.mu.Unlock()
}

func (s *RoundRobin) DidCreateIdleTask(t *Task) {
	s.mu.Lock()
	s.idle = t
	s.mu.Unlock()
	Log.WithFields(taskFields(t)).Info("idle task registered")
}

func (s *RoundRobin) DidCreateRunningTask(t *Task) {
	s.mu.Lock()
	s.running = t
	s.mu.Unlock()
	Log.WithFields(taskFields(t)).Info("running task registered")
}

func (s *RoundRobin) DidChangeTaskState(t *Task, from, to State) {
	Log.WithFields(taskFields(t)).WithField("from", from.String()).WithField("to", to.String()).
		Debug("scheduler observed task state change")
}

// Yield blocks the calling goroutine until the task it represents is
// resumed, either by a Tick resolving its blocker or by some other party
// closing its resume channel.
func (s *RoundRobin) Yield() {
	t := s.Running()
	if t == nil {
		return
	}

	t.blockerMu.Lock()
	ch := t.resumeCh
	t.blockerMu.Unlock()
	if ch == nil {
		// A canceled task is never resumed, so its goroutine parks forever.
		if t.State() == StateCanceled {
			select {}
		}
		return
	}
	<-ch
}

func (s *RoundRobin) Running() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current[goroutineID()]
}

func (s *RoundRobin) RunningID() TaskID {
	if t := s.Running(); t != nil {
		return t.id
	}
	return 0
}

func (s *RoundRobin) Now() Tick {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// Tick advances the clock by one and resolves every BLOCKED task whose
// blocker now unblocks, exactly as §4.3 describes: on each tick, evaluate
// every blocked task's blocker and perform the wake transition, running
// OnUnblock before clearing the blocker.
func (s *RoundRobin) Tick(k *Kernel) {
	s.mu.Lock()
	s.tick++
	now := s.tick
	s.mu.Unlock()

	k.Tasks.Iterate(func(t *Task) bool {
		if t.State() != StateBlocked {
			return true
		}

		t.blockerMu.Lock()
		b := t.blocker
		t.blockerMu.Unlock()
		if b == nil {
			return true
		}

		switch {
		case b.CanUnblock(now):
			b.OnUnblock()
			b.SetResult(ResultUnblocked)
		case b.Deadline() != NeverTimeout && now >= b.Deadline():
			b.SetResult(ResultTimedOut)
		default:
			return true
		}

		k.Atomic.With(func() { k.setState(t, StateRunning) })

		t.blockerMu.Lock()
		t.blocker = nil
		ch := t.resumeCh
		t.resumeCh = nil
		t.blockerMu.Unlock()
		if ch != nil {
			close(ch)
		}
		return true
	})
}

// Run advances the clock by n ticks, resolving blockers as it goes.
func (s *RoundRobin) Run(k *Kernel, n int) {
	for i := 0; i < n; i++ {
		s.Tick(k)
	}
}
