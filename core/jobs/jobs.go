// Package jobs tracks pipelines as jobs: foreground/background
// placement, stop/continue control, and reaping of child processes.
//
// The interpreting thread launches jobs and blocks in WaitForeground;
// state updates arrive asynchronously from the signal monitor. Every
// transition happens as a single step under the table lock, so no
// half-applied job state is ever observable.
package jobs

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ion-sh/ion/core/logger"
)

// State is a job's position in its lifecycle.
type State int

const (
	Created State = iota
	Running
	Stopped
	Done
	Reaped
)

func (s State) String() string {
	switch s {
	case Created:
		return "Created"
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	case Done:
		return "Done"
	case Reaped:
		return "Reaped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Status is the outcome of one wait notification for a process,
// decoupled from the platform wait status encoding.
type Status struct {
	Code      int
	Stopped   bool
	Continued bool
}

type proc struct {
	pid     int
	code    int
	done    bool
	stopped bool
}

// Job is a tracked pipeline instance. All fields are guarded by the
// owning table's lock.
type Job struct {
	ID      int // 0 until the job enters the background
	Pgid    int
	Command string

	state State
	procs []*proc
}

// Table is the job table. A single table serves one interpreter.
type Table struct {
	mu   sync.Mutex
	cond *sync.Cond

	jobs  map[int]*Job // numbered (background or stopped) jobs
	byPid map[int]*Job
	// Exit statuses that arrived before the corresponding pid was
	// registered; wait results can race the spawn bookkeeping.
	orphans map[int]Status

	fg  *Job
	log *logger.Logger
}

// NewTable returns an empty job table logging transitions to log.
func NewTable(log *logger.Logger) *Table {
	if log == nil {
		log = logger.Nop()
	}
	t := &Table{
		jobs:    map[int]*Job{},
		byPid:   map[int]*Job{},
		orphans: map[int]Status{},
		log:     log,
	}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Launch registers a just-spawned pipeline. Pids are the external
// stages in order; pgid is their shared process group. Background jobs
// get a number immediately.
func (t *Table) Launch(command string, pgid int, pids []int, background bool) *Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	j := &Job{Pgid: pgid, Command: command, state: Running}
	for _, pid := range pids {
		p := &proc{pid: pid}
		j.procs = append(j.procs, p)
		t.byPid[pid] = j
	}
	if background {
		t.number(j)
	}

	// Apply any wait results that beat us here.
	for _, p := range j.procs {
		if st, ok := t.orphans[p.pid]; ok {
			delete(t.orphans, p.pid)
			t.applyLocked(j, p, st)
		}
	}
	t.refreshLocked(j)
	return j
}

// number assigns the next free job number, one past the highest in use.
func (t *Table) number(j *Job) {
	n := 1
	for id := range t.jobs {
		if id >= n {
			n = id + 1
		}
	}
	j.ID = n
	t.jobs[n] = j
}

// Notify records one wait result. Unknown pids are remembered in case
// their registration is still in flight.
func (t *Table) Notify(pid int, st Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	j, ok := t.byPid[pid]
	if !ok {
		t.orphans[pid] = st
		return
	}
	for _, p := range j.procs {
		if p.pid == pid {
			t.applyLocked(j, p, st)
			break
		}
	}
	t.refreshLocked(j)
}

func (t *Table) applyLocked(j *Job, p *proc, st Status) {
	switch {
	case st.Stopped:
		p.stopped = true
	case st.Continued:
		p.stopped = false
	default:
		p.done = true
		p.code = st.Code
		delete(t.byPid, p.pid)
	}
}

// refreshLocked recomputes the job state from its processes and wakes
// waiters on a transition.
func (t *Table) refreshLocked(j *Job) {
	next := Done
	for _, p := range j.procs {
		if p.done {
			continue
		}
		if p.stopped {
			if next == Done {
				next = Stopped
			}
			continue
		}
		next = Running
		break
	}
	if len(j.procs) == 0 {
		next = Done
	}
	if next == j.state {
		return
	}
	t.log.JobTransition(j.ID, j.Pgid, j.state.String(), next.String())
	j.state = next
	t.cond.Broadcast()
}

// WaitForeground blocks until j finishes or stops. A stopped job is
// numbered and left in the table; a finished one is removed. The
// returned status is the last stage's exit code, and stopped reports
// whether the job was suspended rather than done.
func (t *Table) WaitForeground(j *Job) (status int, stopped bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.fg = j
	for j.state == Running || j.state == Created {
		t.cond.Wait()
	}
	t.fg = nil

	if j.state == Stopped {
		if j.ID == 0 {
			t.number(j)
		}
		return 128 + sigTSTP, true
	}

	t.removeLocked(j)
	return j.lastStatusLocked(), false
}

func (j *Job) lastStatusLocked() int {
	if len(j.procs) == 0 {
		return 0
	}
	return j.procs[len(j.procs)-1].code
}

func (t *Table) removeLocked(j *Job) {
	for _, p := range j.procs {
		delete(t.byPid, p.pid)
	}
	if j.ID != 0 {
		delete(t.jobs, j.ID)
	}
	j.state = Reaped
}

// WaitJob blocks until j stops or finishes, reaping it when done.
// Unlike WaitForeground it does not route signals to j.
func (t *Table) WaitJob(j *Job) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	for j.state == Running || j.state == Created {
		t.cond.Wait()
	}
	if j.state == Stopped {
		return 128 + sigTSTP
	}
	status := j.lastStatusLocked()
	if j.state == Done {
		t.removeLocked(j)
	}
	return status
}

// Foreground returns the job the interpreter is currently waiting on,
// if any. The signal monitor uses it to route interrupts.
func (t *Table) Foreground() *Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fg
}

// Get returns the numbered job.
func (t *Table) Get(id int) (*Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[id]
	return j, ok
}

// MostRecent returns the highest-numbered job.
func (t *Table) MostRecent() (*Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	best := 0
	for id := range t.jobs {
		if id > best {
			best = id
		}
	}
	if best == 0 {
		return nil, false
	}
	return t.jobs[best], true
}

// Jobs returns the numbered jobs in order.
func (t *Table) Jobs() []*Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]int, 0, len(t.jobs))
	for id := range t.jobs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]*Job, len(ids))
	for i, id := range ids {
		out[i] = t.jobs[id]
	}
	return out
}

// State returns the job's current state.
func (t *Table) State(j *Job) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return j.state
}

// MarkRunning flips a stopped job to running after its group was
// continued (the bg builtin).
func (t *Table) MarkRunning(j *Job) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range j.procs {
		p.stopped = false
	}
	t.refreshLocked(j)
}

// Disown drops a job from the table without waiting for it.
func (t *Table) Disown(j *Job) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(j)
}

// WaitAll blocks until every numbered job has finished, then reaps
// them. Stopped jobs are left alone.
func (t *Table) WaitAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for {
		waiting := false
		for _, j := range t.jobs {
			if j.state == Running || j.state == Created {
				waiting = true
			}
		}
		if !waiting {
			break
		}
		t.cond.Wait()
	}
	for _, j := range t.jobs {
		if j.state == Done {
			t.removeLocked(j)
		}
	}
}

// ReapFinished removes finished background jobs and returns them so
// the prompt loop can report their completion.
func (t *Table) ReapFinished() []*Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	var done []*Job
	for _, j := range t.jobs {
		if j.state == Done {
			done = append(done, j)
		}
	}
	sort.Slice(done, func(i, k int) bool { return done[i].ID < done[k].ID })
	for _, j := range done {
		t.removeLocked(j)
	}
	return done
}

// Describe renders one job table line: "[1]+ Running sleep 30 &".
func (t *Table) Describe(j *Job) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	mark := " "
	best := 0
	for id := range t.jobs {
		if id > best {
			best = id
		}
	}
	if j.ID == best {
		mark = "+"
	}
	return fmt.Sprintf("[%d]%s %s\t%s", j.ID, mark, j.state, j.Command)
}
