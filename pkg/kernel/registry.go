package kernel

// TaskRegistry is the process-wide directory of all live tasks, keyed by
// TaskID. Every method self-brackets the Kernel's AtomicSection, so
// callers that already hold it (as Create does) simply nest.
//
// Lookups are linear: the live-task count in this class of kernel is
// small (dozens), so no rebalancing or hashing is warranted. A hash map
// could replace the slice with no observable semantic change.
type TaskRegistry struct {
	k     *Kernel
	tasks []*Task
}

func newTaskRegistry(k *Kernel) *TaskRegistry {
	return &TaskRegistry{k: k}
}

// Insert appends t to the registry.
func (r *TaskRegistry) Insert(t *Task) {
	r.k.Atomic.Begin()
	defer r.k.Atomic.End()
	r.tasks = append(r.tasks, t)
}

// Remove deletes t from the registry, if present.
func (r *TaskRegistry) Remove(t *Task) {
	r.k.Atomic.Begin()
	defer r.k.Atomic.End()
	for i, x := range r.tasks {
		if x == t {
			r.tasks = append(r.tasks[:i], r.tasks[i+1:]...)
			return
		}
	}
}

// ByID returns the task with the given id, or nil.
func (r *TaskRegistry) ByID(id TaskID) *Task {
	r.k.Atomic.Begin()
	defer r.k.Atomic.End()
	for _, t := range r.tasks {
		if t.id == id {
			return t
		}
	}
	return nil
}

// Count returns the number of tasks currently registered.
func (r *TaskRegistry) Count() int {
	r.k.Atomic.Begin()
	defer r.k.Atomic.End()
	return len(r.tasks)
}

// Iterate calls callback for every registered task, stopping early if
// callback returns false. The iteration runs over a snapshot of the
// registry so that a callback which destroys (and therefore removes) the
// current task does not disturb the walk.
func (r *TaskRegistry) Iterate(callback func(*Task) bool) {
	r.k.Atomic.Begin()
	defer r.k.Atomic.End()
	snapshot := append([]*Task(nil), r.tasks...)
	for _, t := range snapshot {
		if !callback(t) {
			return
		}
	}
}
