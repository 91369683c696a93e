// Package interp walks statement trees and executes them: it drives
// expansion, dispatches builtins and functions, spawns external
// programs, and coordinates with the job table.
//
// A single interpreting thread runs lex→parse→expand→execute per
// statement; concurrency comes only from child processes.
package interp

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/anmitsu/go-shlex"
	"github.com/spf13/afero"

	"github.com/ion-sh/ion/core/expand"
	"github.com/ion-sh/ion/core/jobs"
	"github.com/ion-sh/ion/core/logger"
	"github.com/ion-sh/ion/core/parser"
	"github.com/ion-sh/ion/core/scope"
)

// Conventional statuses for command resolution failures.
const (
	StatusNotExecutable = 126
	StatusNotFound      = 127
)

// Control tags how a statement finished. Non-local exits travel up the
// interpretation stack as values and are consumed by the nearest
// enclosing loop or function frame.
type Control int

const (
	CtrlNormal Control = iota
	CtrlBreak
	CtrlContinue
	CtrlReturn
	CtrlExit
	// CtrlAbort ends the current statement after a lex, parse, or
	// expansion failure; interactive callers keep reading, scripts stop.
	CtrlAbort
)

// Result is the outcome of interpreting one statement.
type Result struct {
	Ctrl   Control
	Status int
}

func normal(status int) Result { return Result{Status: status} }

// Builtin is an in-process command handler. Handlers for state-mutating
// commands run on the interpreting thread, so their effects are visible
// to the next statement immediately.
type Builtin func(ctx *Context, args []string) int

// Context is what a builtin sees: its standard streams plus handles to
// the interpreter's mutable state.
type Context struct {
	Interp *Interp
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Interp is one shell interpreter instance. All of its state is
// explicit, so independent interpreters can coexist in one process.
type Interp struct {
	Store    *scope.Store
	Jobs     *jobs.Table
	Layer    ProcessLayer
	Builtins map[string]Builtin
	Funcs    map[string]*parser.FunctionDef
	Aliases  map[string]string
	Log      *logger.Logger
	Fs       afero.Fs

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	Cwd        string
	OldCwd     string
	LastStatus int

	// Interactive governs terminal handoff and some diagnostics.
	Interactive bool

	loopDepth int
}

// New builds an interpreter with OS-backed collaborators and standard
// streams.
func New() *Interp {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "/"
	}
	return &Interp{
		Store:    scope.NewStoreFromEnviron(os.Environ()),
		Jobs:     jobs.NewTable(nil),
		Layer:    &OSProcessLayer{},
		Builtins: map[string]Builtin{},
		Funcs:    map[string]*parser.FunctionDef{},
		Aliases:  map[string]string{},
		Log:      logger.Nop(),
		Fs:       afero.NewOsFs(),
		Stdin:    os.Stdin,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
		Cwd:      cwd,
	}
}

// Path returns the command search path.
func (i *Interp) Path() []string {
	v, ok := i.Store.Get("PATH")
	if !ok {
		return nil
	}
	return strings.Split(v.Join(), ":")
}

// Home returns the current home directory.
func (i *Interp) Home() string {
	v, _ := i.Store.Get("HOME")
	return v.Join()
}

// RunSource parses and runs a script. Lex and parse failures abort the
// source with a diagnostic and status 1; they never terminate the
// interpreter.
func (i *Interp) RunSource(src string) Result {
	block, err := parser.Parse(src)
	if err != nil {
		i.Errorf("%v", err)
		return Result{Ctrl: CtrlAbort, Status: 1}
	}
	return i.Run(block)
}

// Run interprets a parsed program.
func (i *Interp) Run(block *parser.Block) Result {
	var res Result
	for _, stmt := range block.Statements {
		res = i.runStatement(stmt)
		i.LastStatus = res.Status
		switch res.Ctrl {
		case CtrlNormal:
			continue
		case CtrlBreak:
			i.Errorf("break: not inside a loop")
			res = normal(1)
		case CtrlContinue:
			i.Errorf("continue: not inside a loop")
			res = normal(1)
		case CtrlReturn:
			i.Errorf("return: not inside a function")
			res = normal(1)
		default:
			return res
		}
	}
	return res
}

// Errorf writes a shell diagnostic to the error stream. Diagnostics are
// never swallowed.
func (i *Interp) Errorf(format string, args ...interface{}) {
	fmt.Fprintf(i.Stderr, "ion: "+format+"\n", args...)
}

func (i *Interp) runStatement(stmt parser.Statement) Result {
	switch s := stmt.(type) {
	case *parser.AndOr:
		return i.runAndOr(s)
	case *parser.Conditional:
		return i.runConditional(s)
	case *parser.WhileLoop:
		return i.runWhile(s)
	case *parser.ForLoop:
		return i.runFor(s)
	case *parser.FunctionDef:
		i.Funcs[s.Name] = s
		return normal(0)
	case *parser.Block:
		i.Store.Push()
		defer i.Store.Pop()
		return i.runBlock(s)
	default:
		i.Errorf("cannot execute %T", stmt)
		return normal(1)
	}
}

// runBlock runs statements in the current scope, propagating non-local
// exits to the caller.
func (i *Interp) runBlock(block *parser.Block) Result {
	res := normal(i.LastStatus)
	for _, stmt := range block.Statements {
		res = i.runStatement(stmt)
		i.LastStatus = res.Status
		if res.Ctrl != CtrlNormal {
			return res
		}
	}
	return res
}

// runAndOr walks a && and || chain, short-circuiting on the preceding
// pipeline's status.
func (i *Interp) runAndOr(chain *parser.AndOr) Result {
	res := i.runPipeline(chain.Pipelines[0])
	i.LastStatus = res.Status
	if res.Ctrl != CtrlNormal {
		return res
	}
	for k, op := range chain.Ops {
		if op == parser.OpAnd && res.Status != 0 {
			continue
		}
		if op == parser.OpOr && res.Status == 0 {
			continue
		}
		res = i.runPipeline(chain.Pipelines[k+1])
		i.LastStatus = res.Status
		if res.Ctrl != CtrlNormal {
			return res
		}
	}
	return res
}

func (i *Interp) runConditional(c *parser.Conditional) Result {
	res := i.runAndOr(c.Cond)
	if res.Ctrl != CtrlNormal {
		return res
	}
	if res.Status == 0 {
		return i.runBlockScoped(c.Then)
	}
	if c.Else != nil {
		return i.runBlockScoped(c.Else)
	}
	return normal(0)
}

// runBlockScoped pairs a scope push/pop around a block body. The defer
// keeps pushes and pops paired even when the block exits via an error.
func (i *Interp) runBlockScoped(block *parser.Block) Result {
	i.Store.Push()
	defer i.Store.Pop()
	return i.runBlock(block)
}

func (i *Interp) runWhile(loop *parser.WhileLoop) Result {
	i.loopDepth++
	defer func() { i.loopDepth-- }()

	for {
		cond := i.runAndOr(loop.Cond)
		if cond.Ctrl != CtrlNormal {
			return cond
		}
		if cond.Status != 0 {
			return normal(0)
		}

		res := i.runBlockScoped(loop.Body)
		switch res.Ctrl {
		case CtrlNormal, CtrlContinue:
		case CtrlBreak:
			return normal(res.Status)
		default:
			return res
		}
	}
}

func (i *Interp) runFor(loop *parser.ForLoop) Result {
	raw := make([]string, len(loop.Words))
	for k, w := range loop.Words {
		raw[k] = w.Text
	}
	items, err := i.expander().Expand(raw)
	if err != nil {
		i.Errorf("%v", err)
		return Result{Ctrl: CtrlAbort, Status: 1}
	}

	i.loopDepth++
	defer func() { i.loopDepth-- }()

	for _, item := range items {
		i.Store.Set(loop.Var, scope.ScalarValue(item))
		res := i.runBlockScoped(loop.Body)
		switch res.Ctrl {
		case CtrlNormal, CtrlContinue:
		case CtrlBreak:
			return normal(res.Status)
		default:
			return res
		}
	}
	return normal(0)
}

// callFunction runs a function body in a fresh scope that inherits
// exported, not local, bindings from the caller.
func (i *Interp) callFunction(def *parser.FunctionDef, args []string) Result {
	i.Store.PushFunction()
	defer i.Store.Pop()

	for k, param := range def.Params {
		if k < len(args) {
			i.Store.Define(param, scope.ScalarValue(args[k]))
		} else {
			i.Store.Define(param, scope.ScalarValue(""))
		}
	}
	i.Store.Define("args", scope.ArrayValue(args...))

	res := i.runBlock(def.Body)
	if res.Ctrl == CtrlReturn {
		return normal(res.Status)
	}
	return res
}

// expander builds the expansion pass for the current state.
func (i *Interp) expander() *expand.Expander {
	return &expand.Expander{
		Vars: varSource{i},
		Eval: captureEvaluator{i},
		Fs:   i.Fs,
		Dir:  i.Cwd,
		Home: i.Home(),
	}
}

type varSource struct{ i *Interp }

func (v varSource) Value(name string) (scope.Value, bool) {
	if name == "?" {
		return scope.ScalarValue(strconv.Itoa(v.i.LastStatus)), true
	}
	return v.i.Store.Get(name)
}

type captureEvaluator struct{ i *Interp }

// CaptureOutput runs a nested script synchronously on the calling
// thread, capturing its standard output. The outer job-control state is
// untouched; only the output stream is swapped.
func (c captureEvaluator) CaptureOutput(script string) (string, error) {
	return c.i.Capture(script)
}

// Capture evaluates script with stdout collected into a buffer. The
// nested script's last status becomes $? for later statements.
func (i *Interp) Capture(script string) (string, error) {
	block, err := parser.Parse(script)
	if err != nil {
		return "", err
	}

	var buf strings.Builder
	savedOut := i.Stdout
	i.Stdout = &buf
	defer func() { i.Stdout = savedOut }()

	res := i.Run(block)
	i.LastStatus = res.Status
	return buf.String(), nil
}

// aliasExpand rewrites the command words when the name has an alias.
// Alias bodies are split with shell-style quoting; expansion is not
// recursive.
func (i *Interp) aliasExpand(args []parser.Word) []parser.Word {
	if len(args) == 0 {
		return args
	}
	body, ok := i.Aliases[args[0].Text]
	if !ok {
		return args
	}
	tokens, err := shlex.Split(body, true)
	if err != nil || len(tokens) == 0 {
		return args
	}
	out := make([]parser.Word, 0, len(tokens)+len(args)-1)
	for _, tok := range tokens {
		out = append(out, parser.Word{Text: tok, Span: args[0].Span})
	}
	return append(out, args[1:]...)
}
