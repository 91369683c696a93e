package interp

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ion-sh/ion/core/jobs"
	"github.com/ion-sh/ion/core/parser"
)

// redir is a redirection with its target already expanded.
type redir struct {
	fd     int
	mode   parser.RedirMode
	target string
}

// stage is one resolved command of a pipeline.
type stage struct {
	argv   []string
	redirs []redir

	builtin Builtin
	fn      *parser.FunctionDef

	files map[int]*os.File

	// ownedFiles are closed by the stage itself: the goroutine for an
	// in-process stage, the parent after spawn for an external one.
	ownedFiles []*os.File

	statusCh chan int
	pid      int
	spawned  bool
	status   int
}

func (s *stage) inProcess() bool { return s.builtin != nil || s.fn != nil }

// runPipeline expands and executes one pipeline. The aggregate status
// is the last stage's status; failures in earlier stages only surface
// through diagnostics.
func (i *Interp) runPipeline(pl *parser.Pipeline) Result {
	// Expansion happens for every command before anything launches.
	stages := make([]*stage, 0, len(pl.Commands))
	for _, cmd := range pl.Commands {
		st, err := i.expandCommand(cmd)
		if err != nil {
			i.Errorf("%v", err)
			return Result{Ctrl: CtrlAbort, Status: 1}
		}
		if st != nil {
			stages = append(stages, st)
		}
	}
	if len(stages) == 0 {
		return normal(0)
	}

	if len(stages) == 1 && !pl.Background {
		if res, handled := i.runSimple(stages[0]); handled {
			return res
		}
	}

	return i.runStages(pl, stages)
}

// expandCommand resolves one command's words and redirections. A
// command that expands to nothing is dropped.
func (i *Interp) expandCommand(cmd *parser.Command) (*stage, error) {
	e := i.expander()

	words := i.aliasExpand(cmd.Args)
	raw := make([]string, len(words))
	for k, w := range words {
		raw[k] = w.Text
	}
	argv, err := e.Expand(raw)
	if err != nil {
		return nil, err
	}

	st := &stage{argv: argv}
	for _, r := range cmd.Redirects {
		target, err := e.ExpandOne(r.Target.Text)
		if err != nil {
			return nil, err
		}
		st.redirs = append(st.redirs, redir{fd: r.FD, mode: r.Mode, target: target})
	}

	if len(argv) == 0 {
		if len(st.redirs) == 0 {
			return nil, nil
		}
		return st, nil
	}

	if def, ok := i.Funcs[argv[0]]; ok {
		st.fn = def
	} else if b, ok := i.Builtins[argv[0]]; ok {
		st.builtin = b
	}
	return st, nil
}

// runSimple handles a foreground command that needs no pipe wiring:
// control keywords, function calls, and builtins all run on the
// interpreting thread so state mutations apply immediately.
func (i *Interp) runSimple(st *stage) (Result, bool) {
	if len(st.argv) == 0 {
		return i.runRedirectsOnly(st), true
	}

	if res, ok := i.controlKeyword(st.argv); ok {
		return res, true
	}

	if st.fn != nil {
		return i.runFunctionSimple(st), true
	}
	if st.builtin != nil {
		i.Log.CommandDispatch(st.argv[0], st.argv, true)
		return normal(i.runBuiltinSimple(st)), true
	}

	return Result{}, false
}

// controlKeyword implements break, continue, return, and exit as
// tagged control-flow results rather than commands.
func (i *Interp) controlKeyword(argv []string) (Result, bool) {
	status := func(def int) int {
		if len(argv) > 1 {
			if n, err := strconv.Atoi(argv[1]); err == nil {
				return n
			}
		}
		return def
	}

	switch argv[0] {
	case "break":
		return Result{Ctrl: CtrlBreak, Status: i.LastStatus}, true
	case "continue":
		return Result{Ctrl: CtrlContinue, Status: i.LastStatus}, true
	case "return":
		return Result{Ctrl: CtrlReturn, Status: status(i.LastStatus)}, true
	case "exit":
		return Result{Ctrl: CtrlExit, Status: status(i.LastStatus)}, true
	}
	return Result{}, false
}

// runRedirectsOnly performs a command's redirections with no command,
// which creates or truncates the targets.
func (i *Interp) runRedirectsOnly(st *stage) Result {
	for _, r := range st.redirs {
		switch r.mode {
		case parser.RedirWrite, parser.RedirAppend:
			f, err := i.openRedirect(r)
			if err != nil {
				i.Errorf("%v", err)
				return normal(1)
			}
			f.Close()
		}
	}
	return normal(0)
}

// runFunctionSimple calls a function on the interpreting thread with
// its redirections applied to the interpreter streams.
func (i *Interp) runFunctionSimple(st *stage) Result {
	i.Log.CommandDispatch(st.argv[0], st.argv, true)

	restore, err := i.applyRedirectsInProcess(st.redirs)
	if err != nil {
		i.Errorf("%v", err)
		return normal(1)
	}
	defer restore()

	return i.callFunction(st.fn, st.argv[1:])
}

func (i *Interp) runBuiltinSimple(st *stage) int {
	ctx := &Context{Interp: i, Stdin: i.Stdin, Stdout: i.Stdout, Stderr: i.Stderr}

	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	for _, r := range st.redirs {
		if err := checkStreamFd(r); err != nil {
			i.Errorf("%v", err)
			return 1
		}
		switch r.mode {
		case parser.RedirHere:
			ctx.Stdin = strings.NewReader(r.target + "\n")
		case parser.RedirRead:
			f, err := os.Open(i.abs(r.target))
			if err != nil {
				i.Errorf("%v", err)
				return 1
			}
			closers = append(closers, f)
			ctx.Stdin = f
		default:
			f, err := i.openRedirect(r)
			if err != nil {
				i.Errorf("%v", err)
				return 1
			}
			closers = append(closers, f)
			if r.fd == 2 {
				ctx.Stderr = f
			} else {
				ctx.Stdout = f
			}
		}
	}

	return st.builtin(ctx, st.argv)
}

// checkStreamFd rejects redirections an in-process command cannot
// honor: only the three standard streams can be rewired, while an
// external stage gets a full descriptor table.
func checkStreamFd(r redir) error {
	ok := r.fd == 0
	if r.mode == parser.RedirWrite || r.mode == parser.RedirAppend {
		ok = r.fd == 1 || r.fd == 2
	}
	if ok {
		return nil
	}
	return fmt.Errorf("cannot redirect fd %d for an in-process command", r.fd)
}

// applyRedirectsInProcess swaps the interpreter streams according to
// the redirection list and returns a restore function.
func (i *Interp) applyRedirectsInProcess(redirs []redir) (func(), error) {
	savedIn, savedOut, savedErr := i.Stdin, i.Stdout, i.Stderr
	var closers []io.Closer

	restore := func() {
		i.Stdin, i.Stdout, i.Stderr = savedIn, savedOut, savedErr
		for _, c := range closers {
			c.Close()
		}
	}

	for _, r := range redirs {
		if err := checkStreamFd(r); err != nil {
			restore()
			return nil, err
		}
		switch r.mode {
		case parser.RedirHere:
			i.Stdin = strings.NewReader(r.target + "\n")
		case parser.RedirRead:
			f, err := os.Open(i.abs(r.target))
			if err != nil {
				restore()
				return nil, err
			}
			closers = append(closers, f)
			i.Stdin = f
		default:
			f, err := i.openRedirect(r)
			if err != nil {
				restore()
				return nil, err
			}
			closers = append(closers, f)
			if r.fd == 2 {
				i.Stderr = f
			} else {
				i.Stdout = f
			}
		}
	}
	return restore, nil
}

// runStages wires and launches a pipeline. Every connecting pipe is
// created before any stage spawns so no stage can race ahead of its
// reader.
func (i *Interp) runStages(pl *parser.Pipeline, stages []*stage) Result {
	n := len(stages)

	// parentClose collects descriptors the interpreter must close once
	// every stage holds its own copies; drains are completion waits for
	// stream adapter goroutines.
	var parentClose []*os.File
	var drains []func()
	closeParents := func() {
		for _, f := range parentClose {
			f.Close()
		}
		parentClose = nil
	}
	defer func() {
		closeParents()
		for _, d := range drains {
			d()
		}
	}()

	stdinF, inDrain, err := i.inputFile()
	if err != nil {
		i.Errorf("%v", err)
		return normal(1)
	}
	if inDrain != nil {
		drains = append(drains, inDrain)
	}
	stdoutF, outDrain, err := i.outputFile(i.Stdout)
	if err != nil {
		i.Errorf("%v", err)
		return normal(1)
	}
	if outDrain != nil {
		drains = append(drains, outDrain)
	}
	stderrF, errDrain, err := i.outputFile(i.Stderr)
	if err != nil {
		i.Errorf("%v", err)
		return normal(1)
	}
	if errDrain != nil {
		drains = append(drains, errDrain)
	}

	// All connecting pipes exist before any stage starts.
	type pipePair struct{ r, w *os.File }
	pipes := make([]pipePair, n-1)
	for k := range pipes {
		r, w, err := os.Pipe()
		if err != nil {
			i.Errorf("cannot create pipe: %v", err)
			return normal(1)
		}
		pipes[k] = pipePair{r: r, w: w}
	}

	for k, st := range stages {
		st.files = map[int]*os.File{0: stdinF, 1: stdoutF, 2: stderrF}
		if k > 0 {
			st.files[0] = pipes[k-1].r
			st.claim(pipes[k-1].r, &parentClose)
		}
		if k < n-1 {
			st.files[1] = pipes[k].w
			st.claim(pipes[k].w, &parentClose)
		}
	}

	// Redirections override pipe wiring. Every pipe end is already
	// claimed above, so a failure here leaks nothing.
	for _, st := range stages {
		if err := i.applyRedirects(st, &parentClose, &drains); err != nil {
			i.Errorf("%v", err)
			closeOwned(stages)
			return normal(1)
		}
	}

	// Launch left to right; every stage of the pipeline shares one
	// process group founded by the first external stage.
	pgid := 0
	var pids []int
	foreground := !pl.Background && i.Interactive
	for _, st := range stages {
		if len(st.argv) == 0 {
			// Redirections only; the targets were already opened.
			continue
		}
		if st.inProcess() {
			i.startInProcess(st)
			continue
		}
		i.spawnExternal(st, &pgid, foreground)
		if st.spawned {
			pids = append(pids, st.pid)
		}
	}
	closeParents()

	job := i.Jobs.Launch(pl.String(), pgid, pids, pl.Background)

	if pl.Background {
		if i.Interactive {
			fmt.Fprintf(i.Stderr, "[%d] %d\n", job.ID, pgid)
		}
		return normal(0)
	}

	if foreground && pgid != 0 {
		jobs.SetForegroundGroup(pgid)
	}

	jobStatus := 0
	stopped := false
	if len(pids) > 0 {
		jobStatus, stopped = i.Jobs.WaitForeground(job)
	}
	for _, st := range stages {
		if st.statusCh != nil {
			st.status = <-st.statusCh
		}
	}
	jobs.RestoreForegroundGroup()

	if stopped {
		fmt.Fprintln(i.Stderr, i.Jobs.Describe(job))
		return normal(jobStatus)
	}

	last := stages[n-1]
	switch {
	case last.inProcess():
		return normal(last.status)
	case !last.spawned:
		return normal(last.status)
	default:
		return normal(jobStatus)
	}
}

// claim marks a pipe end as owned by an in-process stage; external
// stages inherit a dup and the parent's copy is closed after spawn.
func (s *stage) claim(f *os.File, parentClose *[]*os.File) {
	if s.inProcess() {
		s.ownedFiles = append(s.ownedFiles, f)
	} else {
		*parentClose = append(*parentClose, f)
	}
}

// applyRedirects opens each redirection target and overrides the
// stage's descriptor table, taking precedence over pipe wiring.
func (i *Interp) applyRedirects(st *stage, parentClose *[]*os.File, drains *[]func()) error {
	for _, r := range st.redirs {
		switch r.mode {
		case parser.RedirHere:
			pr, pw, err := os.Pipe()
			if err != nil {
				return err
			}
			body := r.target + "\n"
			done := make(chan struct{})
			go func() {
				io.WriteString(pw, body)
				pw.Close()
				close(done)
			}()
			*drains = append(*drains, func() { <-done })
			st.files[r.fd] = pr
			st.claim(pr, parentClose)
		case parser.RedirRead:
			f, err := os.Open(i.abs(r.target))
			if err != nil {
				return err
			}
			st.files[r.fd] = f
			st.claim(f, parentClose)
		default:
			f, err := i.openRedirect(r)
			if err != nil {
				return err
			}
			st.files[r.fd] = f
			st.claim(f, parentClose)
		}
	}
	return nil
}

func (i *Interp) openRedirect(r redir) (*os.File, error) {
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if r.mode == parser.RedirAppend {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	return os.OpenFile(i.abs(r.target), flags, 0644)
}

func (i *Interp) abs(path string) string {
	if filepath.IsAbs(path) || i.Cwd == "" {
		return path
	}
	return filepath.Join(i.Cwd, path)
}

// startInProcess runs a builtin or function stage on its own
// goroutine over a cloned interpreter, giving it subshell semantics:
// its state changes are invisible to the caller.
func (i *Interp) startInProcess(st *stage) {
	i.Log.CommandDispatch(st.argv[0], st.argv, true)

	sub := i.subshell()
	sub.Stdin = st.files[0]
	sub.Stdout = st.files[1]
	sub.Stderr = st.files[2]

	st.statusCh = make(chan int, 1)
	owned := st.ownedFiles
	go func() {
		var status int
		if st.fn != nil {
			res := sub.callFunction(st.fn, st.argv[1:])
			status = res.Status
		} else {
			ctx := &Context{Interp: sub, Stdin: sub.Stdin, Stdout: sub.Stdout, Stderr: sub.Stderr}
			status = st.builtin(ctx, st.argv)
		}
		for _, f := range owned {
			f.Close()
		}
		st.statusCh <- status
	}()
}

// spawnExternal resolves and starts one external stage. Resolution
// failures yield the conventional statuses without aborting the rest
// of the pipeline.
func (i *Interp) spawnExternal(st *stage, pgid *int, foreground bool) {
	name := st.argv[0]
	path, err := i.Layer.LookPath(name, i.Path(), i.Cwd)
	if err != nil {
		if err == ErrNotFound {
			i.Errorf("command not found: %s", name)
			st.status = StatusNotFound
		} else {
			i.Errorf("%s: %v", name, err)
			st.status = StatusNotExecutable
		}
		return
	}

	i.Log.CommandDispatch(name, st.argv, false)

	maxFd := 2
	for fd := range st.files {
		if fd > maxFd {
			maxFd = fd
		}
	}
	files := make([]*os.File, maxFd+1)
	for fd, f := range st.files {
		files[fd] = f
	}

	pid, err := i.Layer.Start(path, st.argv, &ProcAttr{
		Dir:        i.Cwd,
		Env:        i.Store.Environ(),
		Files:      files,
		Pgid:       *pgid,
		Foreground: foreground,
	})
	if err != nil {
		i.Errorf("%s: %v", name, err)
		st.status = StatusNotExecutable
		return
	}
	st.pid = pid
	st.spawned = true
	if *pgid == 0 {
		*pgid = pid
	}
}

// closeOwned releases the in-process stages' descriptors after a
// wiring failure; the parent's own copies close through the deferred
// cleanup.
func closeOwned(stages []*stage) {
	for _, st := range stages {
		for _, f := range st.ownedFiles {
			f.Close()
		}
	}
}

// subshell clones the interpreter for an in-process pipeline stage.
func (i *Interp) subshell() *Interp {
	clone := *i
	clone.Store = i.Store.Clone()
	aliases := make(map[string]string, len(i.Aliases))
	for k, v := range i.Aliases {
		aliases[k] = v
	}
	clone.Aliases = aliases
	clone.Interactive = false
	return &clone
}

// inputFile returns the interpreter's stdin as a file, adapting a
// plain reader through a pipe when necessary.
func (i *Interp) inputFile() (*os.File, func(), error) {
	if f, ok := i.Stdin.(*os.File); ok {
		return f, nil, nil
	}
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, nil, err
	}
	src := i.Stdin
	done := make(chan struct{})
	go func() {
		if src != nil {
			io.Copy(pw, src)
		}
		pw.Close()
		close(done)
	}()
	return pr, func() { pr.Close(); <-done }, nil
}

// outputFile adapts an output stream to a file for the spawn fd table.
func (i *Interp) outputFile(w io.Writer) (*os.File, func(), error) {
	if f, ok := w.(*os.File); ok {
		return f, nil, nil
	}
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, nil, err
	}
	done := make(chan struct{})
	go func() {
		io.Copy(w, pr)
		pr.Close()
		close(done)
	}()
	return pw, func() { pw.Close(); <-done }, nil
}
