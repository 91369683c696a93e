package builtins

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ion-sh/ion/core/interp"
	"github.com/ion-sh/ion/core/jobs"
)

// jobArg resolves an optional job designator: "%1", "1", or nothing
// for the most recent job.
func jobArg(i *interp.Interp, rest []string, stderr func(format string, a ...interface{})) (*jobs.Job, bool) {
	if len(rest) == 0 {
		j, ok := i.Jobs.MostRecent()
		if !ok {
			stderr("no current job\n")
		}
		return j, ok
	}

	spec := strings.TrimPrefix(rest[0], "%")
	id, err := strconv.Atoi(spec)
	if err != nil {
		stderr("%s: invalid job designator\n", rest[0])
		return nil, false
	}
	j, ok := i.Jobs.Get(id)
	if !ok {
		stderr("%%%d: no such job\n", id)
	}
	return j, ok
}

// JobsCmd lists the job table.
func JobsCmd(ctx *interp.Context, args []string) int {
	cmd := &SimpleCommand{
		Use:   "jobs",
		Short: "List background and stopped jobs.",
	}

	return cmd.Run(ctx, args, func() int {
		for _, j := range ctx.Interp.Jobs.Jobs() {
			fmt.Fprintln(ctx.Stdout, ctx.Interp.Jobs.Describe(j))
		}
		return 0
	})
}

// Fg resumes a job in the foreground and waits for it.
func Fg(ctx *interp.Context, args []string) int {
	cmd := &SimpleCommand{
		Use:   "fg [%JOB]",
		Short: "Resume a job in the foreground.",
	}

	return cmd.Run(ctx, args, func() int {
		i := ctx.Interp
		j, ok := jobArg(i, cmd.Flags().Args(), func(format string, a ...interface{}) {
			fmt.Fprintf(ctx.Stderr, "fg: "+format, a...)
		})
		if !ok {
			return 1
		}

		fmt.Fprintln(ctx.Stdout, j.Command)
		jobs.SetForegroundGroup(j.Pgid)
		if err := jobs.ContinueGroup(j.Pgid); err != nil {
			fmt.Fprintf(ctx.Stderr, "fg: %v\n", err)
			jobs.RestoreForegroundGroup()
			return 1
		}
		i.Jobs.MarkRunning(j)

		status, stopped := i.Jobs.WaitForeground(j)
		jobs.RestoreForegroundGroup()
		if stopped {
			fmt.Fprintln(ctx.Stderr, i.Jobs.Describe(j))
		}
		return status
	})
}

// Bg resumes a stopped job in the background.
func Bg(ctx *interp.Context, args []string) int {
	cmd := &SimpleCommand{
		Use:   "bg [%JOB]",
		Short: "Resume a stopped job in the background.",
	}

	return cmd.Run(ctx, args, func() int {
		i := ctx.Interp
		j, ok := jobArg(i, cmd.Flags().Args(), func(format string, a ...interface{}) {
			fmt.Fprintf(ctx.Stderr, "bg: "+format, a...)
		})
		if !ok {
			return 1
		}

		if err := jobs.ContinueGroup(j.Pgid); err != nil {
			fmt.Fprintf(ctx.Stderr, "bg: %v\n", err)
			return 1
		}
		i.Jobs.MarkRunning(j)
		fmt.Fprintln(ctx.Stdout, i.Jobs.Describe(j))
		return 0
	})
}

// Wait blocks until jobs finish: the named job, or all of them.
func Wait(ctx *interp.Context, args []string) int {
	cmd := &SimpleCommand{
		Use:   "wait [%JOB]",
		Short: "Wait for background jobs to finish.",
	}

	return cmd.Run(ctx, args, func() int {
		i := ctx.Interp
		rest := cmd.Flags().Args()
		if len(rest) == 0 {
			i.Jobs.WaitAll()
			return 0
		}

		j, ok := jobArg(i, rest, func(format string, a ...interface{}) {
			fmt.Fprintf(ctx.Stderr, "wait: "+format, a...)
		})
		if !ok {
			return 127
		}
		return i.Jobs.WaitJob(j)
	})
}

// Disown drops a job from the table without waiting for it.
func Disown(ctx *interp.Context, args []string) int {
	cmd := &SimpleCommand{
		Use:   "disown [%JOB]",
		Short: "Remove a job from the job table.",
	}

	return cmd.Run(ctx, args, func() int {
		i := ctx.Interp
		j, ok := jobArg(i, cmd.Flags().Args(), func(format string, a ...interface{}) {
			fmt.Fprintf(ctx.Stderr, "disown: "+format, a...)
		})
		if !ok {
			return 1
		}
		i.Jobs.Disown(j)
		return 0
	})
}

func init() {
	addCmd("jobs", JobsCmd)
	addCmd("fg", Fg)
	addCmd("bg", Bg)
	addCmd("wait", Wait)
	addCmd("disown", Disown)
}
