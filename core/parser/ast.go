package parser

import (
	"strconv"
	"strings"

	"github.com/ion-sh/ion/core/token"
)

// Node is any element of the statement tree. String renders canonical
// source text; feeding that text back through the parser yields an
// equivalent tree.
type Node interface {
	String() string
}

// Statement is a top-level or block-level construct.
type Statement interface {
	Node
	stmt()
}

// Word is a raw argument with quoting intact, expanded at execution time.
type Word struct {
	Text string
	Span token.Span
}

func (w Word) String() string { return w.Text }

// RedirMode says what a redirection does with its target.
type RedirMode int

const (
	RedirRead   RedirMode = iota // fd < path
	RedirWrite                   // fd > path
	RedirAppend                  // fd >> path
	RedirHere                    // fd << word, the word becomes input
)

// Redirect rewires one file descriptor of a single command.
type Redirect struct {
	FD     int
	Mode   RedirMode
	Target Word
}

func (r *Redirect) String() string {
	var b strings.Builder
	switch r.Mode {
	case RedirRead:
		if r.FD != 0 {
			b.WriteString(strconv.Itoa(r.FD))
		}
		b.WriteString("< ")
	case RedirWrite:
		if r.FD != 1 {
			b.WriteString(strconv.Itoa(r.FD))
		}
		b.WriteString("> ")
	case RedirAppend:
		if r.FD != 1 {
			b.WriteString(strconv.Itoa(r.FD))
		}
		b.WriteString(">> ")
	case RedirHere:
		if r.FD != 0 {
			b.WriteString(strconv.Itoa(r.FD))
		}
		b.WriteString("<< ")
	}
	b.WriteString(r.Target.Text)
	return b.String()
}

// Command is one simple command: argument words plus redirections.
// Args[0] is the command name; redirections never appear in Args.
type Command struct {
	Args      []Word
	Redirects []*Redirect
}

func (c *Command) String() string {
	parts := make([]string, 0, len(c.Args)+len(c.Redirects))
	for _, a := range c.Args {
		parts = append(parts, a.Text)
	}
	for _, r := range c.Redirects {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, " ")
}

// Pipeline is one or more commands connected by pipes, run as a unit in
// a shared process group.
type Pipeline struct {
	Commands   []*Command
	Background bool
}

func (p *Pipeline) String() string {
	parts := make([]string, len(p.Commands))
	for i, c := range p.Commands {
		parts[i] = c.String()
	}
	s := strings.Join(parts, " | ")
	if p.Background {
		s += " &"
	}
	return s
}

// ChainOp connects two pipelines in an AndOr chain.
type ChainOp int

const (
	OpAnd ChainOp = iota // &&
	OpOr                 // ||
)

// AndOr is a short-circuit chain of pipelines. A bare pipeline is an
// AndOr with a single element and no operators.
type AndOr struct {
	Pipelines []*Pipeline
	Ops       []ChainOp // len(Ops) == len(Pipelines)-1
}

func (a *AndOr) stmt() {}

func (a *AndOr) String() string {
	var b strings.Builder
	for i, p := range a.Pipelines {
		if i > 0 {
			if a.Ops[i-1] == OpAnd {
				b.WriteString(" && ")
			} else {
				b.WriteString(" || ")
			}
		}
		b.WriteString(p.String())
	}
	return b.String()
}

// Block is an ordered statement list.
type Block struct {
	Statements []Statement
}

func (b *Block) stmt() {}

func (b *Block) String() string {
	parts := make([]string, len(b.Statements))
	for i, s := range b.Statements {
		parts[i] = s.String()
	}
	return strings.Join(parts, "\n")
}

// Conditional is if/else/end. Else may be nil.
type Conditional struct {
	Cond *AndOr
	Then *Block
	Else *Block
}

func (c *Conditional) stmt() {}

func (c *Conditional) String() string {
	var b strings.Builder
	b.WriteString("if ")
	b.WriteString(c.Cond.String())
	b.WriteString("\n")
	b.WriteString(c.Then.String())
	if c.Else != nil {
		b.WriteString("\nelse\n")
		b.WriteString(c.Else.String())
	}
	b.WriteString("\nend")
	return b.String()
}

// WhileLoop re-evaluates Cond before each iteration; status 0 continues.
type WhileLoop struct {
	Cond *AndOr
	Body *Block
}

func (w *WhileLoop) stmt() {}

func (w *WhileLoop) String() string {
	return "while " + w.Cond.String() + "\n" + w.Body.String() + "\nend"
}

// ForLoop binds Var to each expanded element of Words in turn.
type ForLoop struct {
	Var   string
	Words []Word
	Body  *Block
}

func (f *ForLoop) stmt() {}

func (f *ForLoop) String() string {
	var b strings.Builder
	b.WriteString("for ")
	b.WriteString(f.Var)
	b.WriteString(" in")
	for _, w := range f.Words {
		b.WriteString(" ")
		b.WriteString(w.Text)
	}
	b.WriteString("\n")
	b.WriteString(f.Body.String())
	b.WriteString("\nend")
	return b.String()
}

// FunctionDef registers a named function; the body runs in a fresh
// scope when called.
type FunctionDef struct {
	Name   string
	Params []string
	Body   *Block
}

func (f *FunctionDef) stmt() {}

func (f *FunctionDef) String() string {
	var b strings.Builder
	b.WriteString("fn ")
	b.WriteString(f.Name)
	for _, p := range f.Params {
		b.WriteString(" ")
		b.WriteString(p)
	}
	b.WriteString("\n")
	b.WriteString(f.Body.String())
	b.WriteString("\nend")
	return b.String()
}
