package jobs

import (
	"os"
	"os/signal"
	"sync"

	"golang.org/x/sys/unix"
)

var monitorOnce sync.Once

// StartMonitor begins reaping children and routing job-control signals
// to the foreground group. It is safe to call more than once; only the
// first call has any effect.
//
// An interrupt with no foreground job is left to the line editor, which
// reports it as an aborted read.
func (t *Table) StartMonitor() {
	monitorOnce.Do(func() {
		signal.Ignore(unix.SIGQUIT, unix.SIGTTIN, unix.SIGTTOU)

		sigq := make(chan os.Signal, 8)
		signal.Notify(sigq, unix.SIGCHLD, unix.SIGINT, unix.SIGTSTP)

		go func() {
			for sig := range sigq {
				switch sig {
				case unix.SIGCHLD:
					t.Reap()

				case unix.SIGINT:
					if fg := t.Foreground(); fg != nil {
						if err := InterruptGroup(fg.Pgid); err != nil {
							t.log.JobControlError("interrupt", err)
						}
					}

				case unix.SIGTSTP:
					if fg := t.Foreground(); fg != nil {
						if err := StopGroup(fg.Pgid); err != nil {
							t.log.JobControlError("stop", err)
						}
					}
				}
			}
		}()
	})
}

// Reap collects every available wait result without blocking and feeds
// it to the table. SIGCHLD delivery coalesces, so one signal may cover
// several children.
func (t *Table) Reap() {
	for {
		var status unix.WaitStatus
		pid, err := unix.Wait4(-1, &status, unix.WNOHANG|unix.WUNTRACED|unix.WCONTINUED, nil)
		if pid <= 0 || err != nil {
			return
		}
		t.Notify(pid, fromWaitStatus(status))
	}
}

// fromWaitStatus translates a platform wait status into a table Status.
// Signal-terminated processes report 128+signal.
func fromWaitStatus(ws unix.WaitStatus) Status {
	switch {
	case ws.Stopped():
		return Status{Stopped: true}
	case ws.Continued():
		return Status{Continued: true}
	case ws.Signaled():
		return Status{Code: 128 + int(ws.Signal())}
	default:
		return Status{Code: ws.ExitStatus()}
	}
}
