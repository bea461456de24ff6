package kernel

// ReaperEntry returns the dedicated kernel task body that periodically
// sweeps the TaskRegistry and destroys every CANCELED task it finds.
// Deferring destruction to a separate context, rather than destroying a
// task the instant it cancels itself, avoids the hazard of a task
// freeing the very kernel stack it is currently executing on.
//
// The reaper excludes itself from its own sweep; since it is always
// RUNNING or BLOCKED-in-Sleep while its loop is live, this is normally
// unreachable, but the exclusion is kept explicit rather than relying on
// that invariant holding forever.
func ReaperEntry(k *Kernel) EntryPoint {
	return func(self *Task, _ interface{}) {
		for {
			k.Sleep(self, int(k.Config.ReaperPeriod))

			k.Atomic.With(func() {
				k.Tasks.Iterate(func(t *Task) bool {
					if t != self && t.State() == StateCanceled {
						k.Destroy(t)
					}
					return true
				})
			})
		}
	}
}

// SpawnReaper creates and returns a not-yet-started reaper task.
func (k *Kernel) SpawnReaper(parent *Task) (*Task, error) {
	return k.Spawn(parent, "Reaper", ReaperEntry(k), nil, false)
}
