package interp

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ion-sh/ion/core/jobs"
)

// ErrNotFound reports that command resolution found no candidate on
// the search path.
var ErrNotFound = errors.New("command not found")

// ProcAttr carries everything a child inherits at spawn time: working
// directory, environment snapshot, descriptor table, and process-group
// placement.
type ProcAttr struct {
	Dir   string
	Env   []string
	Files []*os.File

	// Pgid is the group to join; zero founds a new group. Foreground
	// additionally hands the terminal to that group.
	Pgid       int
	Foreground bool
}

// ProcessLayer resolves and starts external commands. Tests substitute
// a fake to observe spawn requests without creating processes.
type ProcessLayer interface {
	LookPath(name string, path []string, cwd string) (string, error)
	Start(path string, argv []string, attr *ProcAttr) (pid int, err error)
}

// OSProcessLayer spawns real child processes.
type OSProcessLayer struct{}

// LookPath resolves name against the search path. Names containing a
// separator bypass the search and resolve against cwd. A candidate
// that exists but cannot be executed is reported distinctly so the
// caller can use status 126 instead of 127.
func (*OSProcessLayer) LookPath(name string, path []string, cwd string) (string, error) {
	if filepath.IsAbs(name) || containsSep(name) {
		candidate := name
		if !filepath.IsAbs(candidate) {
			candidate = filepath.Join(cwd, candidate)
		}
		return checkExecutable(candidate)
	}

	sawCandidate := false
	for _, dir := range path {
		if dir == "" {
			dir = cwd
		}
		candidate := filepath.Join(dir, name)
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		sawCandidate = true
		if info.Mode()&0111 != 0 {
			return candidate, nil
		}
	}
	if sawCandidate {
		return "", fmt.Errorf("permission denied")
	}
	return "", ErrNotFound
}

func containsSep(name string) bool {
	for i := 0; i < len(name); i++ {
		if os.IsPathSeparator(name[i]) {
			return true
		}
	}
	return false
}

func checkExecutable(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", ErrNotFound
	}
	if info.Mode()&0111 == 0 {
		return "", fmt.Errorf("permission denied")
	}
	return path, nil
}

// Start launches the process in its pipeline's process group. Children
// never share the shell's group, so job-control signals target whole
// pipelines and nothing else.
func (*OSProcessLayer) Start(path string, argv []string, attr *ProcAttr) (int, error) {
	p, err := os.StartProcess(path, argv, &os.ProcAttr{
		Dir:   attr.Dir,
		Env:   attr.Env,
		Files: attr.Files,
		Sys:   jobs.SysProcAttr(attr.Foreground, attr.Pgid),
	})
	if err != nil {
		return 0, err
	}
	// The monitor goroutine reaps through wait4, not this handle.
	pid := p.Pid
	p.Release()
	return pid, nil
}
