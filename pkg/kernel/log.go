package kernel

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the package-level logger for lifecycle-significant events: task
// creation and state changes, blocker resolution, memory-object
// create/destroy, reaper sweeps, and bootstrap milestones. It is never
// consulted for control flow; discarding it (Log.SetOutput(io.Discard))
// must not change any operation's result.
var Log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

func taskFields(t *Task) logrus.Fields {
	return logrus.Fields{"task_id": t.id, "task": t.name}
}
