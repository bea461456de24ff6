// Command taskdump drives a simulated kernel through a scripted boot
// sequence and prints the resulting task registry and the number of live
// memory objects. It
// exists to exercise the kernel package end to end outside of tests.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"github.com/JakeChampion/skift/pkg/kernel"
)

func main() {
	cmdr := subcommands.NewCommander(flag.CommandLine, "taskdump")
	cmdr.Register(cmdr.HelpCommand(), "")
	cmdr.Register(cmdr.FlagsCommand(), "")
	cmdr.Register(&bootCommand{}, "")
	cmdr.Register(&spawnCommand{}, "")

	flag.Parse()
	os.Exit(int(cmdr.Execute(context.Background())))
}

// bootCommand runs Bootstrap against a fresh simulated kernel and prints
// the idle/system/reaper tasks it created.
type bootCommand struct {
	configPath string
	quiet      bool
}

func (*bootCommand) Name() string     { return "boot" }
func (*bootCommand) Synopsis() string { return "bootstrap a simulated kernel and dump its tasks" }
func (*bootCommand) Usage() string {
	return "boot [-config path] [-quiet]\n"
}

func (c *bootCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "path to a TOML boot configuration; defaults to built-in defaults")
	f.BoolVar(&c.quiet, "quiet", false, "suppress the kernel's own logging")
}

func (c *bootCommand) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.quiet {
		kernel.Log.SetLevel(logrus.WarnLevel)
	}

	cfg := kernel.DefaultConfig()
	if c.configPath != "" {
		f, err := os.Open(c.configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "taskdump:", err)
			return subcommands.ExitFailure
		}
		defer f.Close()
		cfg, err = kernel.LoadConfig(f)
		if err != nil {
			fmt.Fprintln(os.Stderr, "taskdump:", err)
			return subcommands.ExitFailure
		}
	}

	k := kernel.NewSimulatedKernel(cfg, 4*1024*1024)
	if err := kernel.Bootstrap(k, systemEntry, nil); err != nil {
		fmt.Fprintln(os.Stderr, "taskdump:", err)
		return subcommands.ExitFailure
	}

	dumpTasks(k)
	return subcommands.ExitSuccess
}

// systemEntry is the first kernel task's body in the demo: it hangs
// forever, the same as a real System task would once every subsystem it
// brings up has started.
func systemEntry(t *kernel.Task, _ interface{}) {
	select {}
}

// spawnCommand boots a kernel, spawns n additional child tasks under the
// system task, runs the scheduler for a number of ticks, and dumps the
// final registry state. It is a smoke test for Spawn/Sleep/Exit/Destroy
// wired together, runnable without `go test`; it does not call Wait.
type spawnCommand struct {
	children int
	ticks    int
	sleepMs  int
}

func (*spawnCommand) Name() string     { return "spawn" }
func (*spawnCommand) Synopsis() string { return "spawn children that sleep, then reap them" }
func (*spawnCommand) Usage() string {
	return "spawn [-children N] [-ticks N] [-sleep-ms N]\n"
}

func (c *spawnCommand) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.children, "children", 3, "number of child tasks to spawn")
	f.IntVar(&c.ticks, "ticks", 250, "number of scheduler ticks to run")
	f.IntVar(&c.sleepMs, "sleep-ms", 50, "ticks each child sleeps before exiting")
}

func (c *spawnCommand) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg := kernel.DefaultConfig()
	cfg.ReaperPeriod = 10
	k := kernel.NewSimulatedKernel(cfg, 4*1024*1024)

	if err := kernel.Bootstrap(k, systemEntry, nil); err != nil {
		fmt.Fprintln(os.Stderr, "taskdump:", err)
		return subcommands.ExitFailure
	}

	sleepMs := c.sleepMs
	for i := 0; i < c.children; i++ {
		child, err := k.Spawn(k.System, "worker", func(self *kernel.Task, _ interface{}) {
			k.Sleep(self, sleepMs)
			k.Exit(self, 0)
		}, nil, false)
		if err != nil {
			fmt.Fprintln(os.Stderr, "taskdump:", err)
			return subcommands.ExitFailure
		}
		k.Go(child)
		k.Start(child)
	}

	sched, ok := k.Sched.(*kernel.RoundRobin)
	if !ok {
		fmt.Fprintln(os.Stderr, "taskdump: spawn demo requires the RoundRobin scheduler")
		return subcommands.ExitFailure
	}
	sched.Run(k, c.ticks)

	dumpTasks(k)
	return subcommands.ExitSuccess
}

func dumpTasks(k *kernel.Kernel) {
	fmt.Printf("%-6s %-10s %-10s %s\n", "ID", "NAME", "STATE", "EXIT")
	k.Tasks.Iterate(func(t *kernel.Task) bool {
		exit := ""
		if t.State().String() == "CANCELED" {
			exit = fmt.Sprintf("%d", t.ExitValue())
		}
		fmt.Printf("%-6d %-10s %-10s %s\n", t.ID(), t.Name(), t.State(), exit)
		return true
	})
	fmt.Printf("memory objects live: %d\n", k.Objects.Count())
}
