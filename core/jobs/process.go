package jobs

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

var (
	shellPid      = unix.Getpid()
	shellGroup, _ = unix.Getpgid(shellPid)
	terminal      = int(os.Stdin.Fd())

	// Terminal handoff only happens for an interactive shell that owns
	// its terminal; scripts leave the foreground group alone.
	monitorTerminal = false

	sigTSTP = int(unix.SIGTSTP)
)

// BecomeForegroundGroup puts the shell in its own process group and
// makes that group the terminal's foreground group. Interactive
// start-up calls this once; afterwards the table hands the terminal to
// foreground jobs and takes it back.
func BecomeForegroundGroup() error {
	for shellGroup != foregroundGroup() {
		if err := unix.Kill(-shellGroup, unix.SIGTTIN); err != nil {
			return err
		}
		g, err := unix.Getpgid(shellPid)
		if err != nil {
			return err
		}
		shellGroup = g
	}

	if shellPid != shellGroup {
		if err := unix.Setpgid(shellPid, shellPid); err != nil {
			return err
		}
		shellGroup = shellPid
	}

	monitorTerminal = true
	SetForegroundGroup(shellGroup)
	return nil
}

func foregroundGroup() int {
	g, err := unix.IoctlGetInt(terminal, unix.TIOCGPGRP)
	if err != nil {
		return 0
	}
	return g
}

// SetForegroundGroup hands the terminal to group g.
func SetForegroundGroup(g int) {
	if !monitorTerminal || g <= 0 {
		return
	}
	_ = unix.IoctlSetPointerInt(terminal, unix.TIOCSPGRP, g)
}

// RestoreForegroundGroup puts the shell's own group back in the
// foreground after a job completes or stops.
func RestoreForegroundGroup() {
	if !monitorTerminal || shellGroup == foregroundGroup() {
		return
	}
	SetForegroundGroup(shellGroup)
}

// SysProcAttr builds the spawn attributes that place a child in the
// pipeline's process group. The first stage passes pgid 0 and founds
// the group; later stages join it. Foreground applies only when the
// shell manages a terminal.
func SysProcAttr(foreground bool, pgid int) *syscall.SysProcAttr {
	sys := &syscall.SysProcAttr{
		Setpgid:    true,
		Foreground: foreground && monitorTerminal && pgid == 0,
	}
	if pgid == 0 {
		if sys.Foreground {
			sys.Ctty = terminal
		}
	} else {
		sys.Pgid = pgid
	}
	return sys
}

// ContinueGroup delivers SIGCONT to every process in the group.
func ContinueGroup(pgid int) error {
	return unix.Kill(-pgid, unix.SIGCONT)
}

// StopGroup delivers SIGTSTP to every process in the group.
func StopGroup(pgid int) error {
	return unix.Kill(-pgid, unix.SIGTSTP)
}

// InterruptGroup delivers SIGINT to every process in the group.
func InterruptGroup(pgid int) error {
	return unix.Kill(-pgid, unix.SIGINT)
}

// TerminateGroup delivers SIGTERM to every process in the group.
func TerminateGroup(pgid int) error {
	return unix.Kill(-pgid, unix.SIGTERM)
}
