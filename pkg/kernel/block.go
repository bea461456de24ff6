package kernel

// Timeout is a relative duration in ticks passed to Block. NoTimeout (and
// any negative value, for compatibility) means the blocker never expires
// on its own account — only its own predicate, evaluated every tick, can
// resolve it.
type Timeout int64

const NoTimeout Timeout = -1

// Block is the unifying primitive behind sleep, wait-for-child, and every
// future blocking syscall. It installs b on t, and either resolves it
// immediately (the required fast path that prevents the classic
// lost-wakeup race) or parks t until the scheduler's tick handler
// resolves it.
//
// Installing a second blocker on a task that already has one is a
// programming bug, not a recoverable error: it panics.
func (k *Kernel) Block(t *Task, b Blocker, timeout Timeout) Result {
	t.blockerMu.Lock()
	hasBlocker := t.blocker != nil
	t.blockerMu.Unlock()
	if hasBlocker {
		panic("kernel: Block: task already has an active blocker")
	}

	k.Atomic.Begin()

	t.blockerMu.Lock()
	t.blocker = b
	t.blockerMu.Unlock()

	now := k.Sched.Now()
	if b.CanUnblock(now) {
		b.OnUnblock()
		t.blockerMu.Lock()
		t.blocker = nil
		t.blockerMu.Unlock()
		k.Atomic.End()
		return ResultUnblocked
	}

	if timeout < 0 {
		b.SetDeadline(NeverTimeout)
	} else {
		b.SetDeadline(now + Tick(timeout))
	}

	t.blockerMu.Lock()
	t.resumeCh = make(chan struct{})
	t.blockerMu.Unlock()

	k.setState(t, StateBlocked)
	k.Atomic.End()

	k.Sched.Yield()

	result := b.Result()
	t.blockerMu.Lock()
	t.blocker = nil
	t.blockerMu.Unlock()

	return result
}

// Sleep installs a Time blocker waking at now+millis ticks and always
// reports TIMEOUT, matching the distilled kernel's convention that a
// timed sleep is, from the caller's perspective, always a timeout
// regardless of the blocker machinery's internal result.
func (k *Kernel) Sleep(t *Task, millis int) Status {
	wakeup := k.Sched.Now() + Tick(millis)
	k.Block(t, NewTimeBlocker(wakeup), NoTimeout)
	return StatusTimeout
}

// Wait looks up the target task and, if found, installs a Wait blocker on
// the current task so that it resumes once target has exited, with
// outExit populated by the blocker's hook. It fails NO_SUCH_TASK without
// blocking if the target does not exist.
func (k *Kernel) Wait(current *Task, targetID TaskID, outExit *int) Status {
	target := k.Tasks.ByID(targetID)
	if target == nil {
		return StatusNoSuchTask
	}

	k.Block(current, NewWaitBlocker(target, outExit), NoTimeout)
	return StatusSuccess
}
