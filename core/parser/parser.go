// Package parser builds Ion statement trees from the token stream.
//
// Precedence, loosest to tightest: ';' and newlines separate statements,
// '&&'/'||' chain pipelines, '|' connects commands, and a trailing '&'
// backgrounds the pipeline it follows. Block constructs (if, while, for,
// fn) run to a matching "end".
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ion-sh/ion/core/lexer"
	"github.com/ion-sh/ion/core/token"
)

// Error is a syntax error naming the offending token and what was
// expected instead.
type Error struct {
	Token    token.Token
	Expected string
	open     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("syntax error at %s: unexpected %s, expected %s",
		e.Token.Span, e.Token, e.Expected)
}

// Unterminated reports whether the input ended inside an open block, so
// an interactive caller should request a continuation line.
func (e *Error) Unterminated() bool {
	return e.open != ""
}

// Unterminated reports whether err is a lex or parse error caused by an
// unfinished construct at end of input.
func Unterminated(err error) bool {
	type unterminated interface{ Unterminated() bool }
	if u, ok := err.(unterminated); ok {
		return u.Unterminated()
	}
	return false
}

// Parser consumes tokens and produces a statement tree.
type Parser struct {
	lex  *lexer.Lexer
	cur  token.Token
	peek token.Token
	err  error
}

// Parse is the common entry point: source text in, statement tree out.
func Parse(src string) (*Block, error) {
	p := New(lexer.New(src))
	return p.Parse()
}

// New returns a parser reading from l.
func New(l *lexer.Lexer) *Parser {
	p := &Parser{lex: l}
	p.next()
	p.next()
	return p
}

func (p *Parser) next() {
	p.cur = p.peek
	if p.err != nil {
		return
	}
	p.peek, p.err = p.lex.Next()
}

// skipSeparators consumes any run of ';' and newline tokens.
func (p *Parser) skipSeparators() {
	for p.cur.Kind == token.Semi || p.cur.Kind == token.Newline {
		p.next()
	}
}

// skipNewlines consumes newlines only, for after binary operators.
func (p *Parser) skipNewlines() {
	for p.cur.Kind == token.Newline {
		p.next()
	}
}

// Parse consumes the whole input and returns the program block.
func (p *Parser) Parse() (*Block, error) {
	block := &Block{}
	for {
		p.skipSeparators()
		if p.err != nil {
			return nil, p.err
		}
		if p.cur.Kind == token.EOF {
			return block, nil
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		block.Statements = append(block.Statements, stmt)
	}
}

func (p *Parser) parseStatement() (Statement, error) {
	if p.cur.Kind == token.Word {
		switch p.cur.Lexeme {
		case "if":
			return p.parseConditional()
		case "while":
			return p.parseWhile()
		case "for":
			return p.parseFor()
		case "fn":
			return p.parseFunction()
		case "end", "else":
			return nil, &Error{Token: p.cur, Expected: "a command"}
		}
	}
	return p.parseAndOr()
}

func (p *Parser) parseAndOr() (*AndOr, error) {
	pl, err := p.parsePipeline()
	if err != nil {
		return nil, err
	}
	chain := &AndOr{Pipelines: []*Pipeline{pl}}

	for p.cur.Kind == token.AndIf || p.cur.Kind == token.OrIf {
		op := OpAnd
		if p.cur.Kind == token.OrIf {
			op = OpOr
		}
		p.next()
		p.skipNewlines()
		pl, err := p.parsePipeline()
		if err != nil {
			return nil, err
		}
		chain.Ops = append(chain.Ops, op)
		chain.Pipelines = append(chain.Pipelines, pl)
	}

	if p.cur.Kind == token.Amp {
		chain.Pipelines[len(chain.Pipelines)-1].Background = true
		p.next()
	}

	return chain, nil
}

func (p *Parser) parsePipeline() (*Pipeline, error) {
	cmd, err := p.parseCommand()
	if err != nil {
		return nil, err
	}
	pl := &Pipeline{Commands: []*Command{cmd}}

	for p.cur.Kind == token.Pipe {
		p.next()
		p.skipNewlines()
		cmd, err := p.parseCommand()
		if err != nil {
			return nil, err
		}
		pl.Commands = append(pl.Commands, cmd)
	}

	return pl, nil
}

// parseCommand gathers words and redirections until an operator or
// separator. Redirections may sit anywhere in the span; they never
// become arguments.
func (p *Parser) parseCommand() (*Command, error) {
	if p.err != nil {
		return nil, p.err
	}
	cmd := &Command{}
	for {
		switch {
		case p.cur.Kind == token.Word:
			cmd.Args = append(cmd.Args, Word{Text: p.cur.Lexeme, Span: p.cur.Span})
			p.next()
		case p.cur.Kind.IsRedirect():
			r, err := p.parseRedirect()
			if err != nil {
				return nil, err
			}
			cmd.Redirects = append(cmd.Redirects, r)
		default:
			if p.err != nil {
				return nil, p.err
			}
			if len(cmd.Args) == 0 && len(cmd.Redirects) == 0 {
				return nil, &Error{Token: p.cur, Expected: "a command"}
			}
			return cmd, nil
		}
	}
}

func (p *Parser) parseRedirect() (*Redirect, error) {
	op := p.cur
	p.next()
	if p.err != nil {
		return nil, p.err
	}
	if p.cur.Kind != token.Word {
		return nil, &Error{Token: p.cur, Expected: "a redirection target"}
	}
	target := Word{Text: p.cur.Lexeme, Span: p.cur.Span}
	p.next()

	r := &Redirect{Target: target}
	switch op.Kind {
	case token.Less:
		r.Mode, r.FD = RedirRead, 0
	case token.Great:
		r.Mode, r.FD = RedirWrite, 1
	case token.DblGreat:
		r.Mode, r.FD = RedirAppend, 1
	case token.DblLess:
		r.Mode, r.FD = RedirHere, 0
	}
	if fd := strings.TrimRight(op.Lexeme, "<>"); fd != "" {
		n, err := strconv.Atoi(fd)
		if err != nil {
			return nil, &Error{Token: op, Expected: "a file descriptor number"}
		}
		r.FD = n
	}
	return r, nil
}

// parseHeaderSep requires at least one ';' or newline after a block
// header line, then eats the rest.
func (p *Parser) parseHeaderSep(what string) error {
	if p.err != nil {
		return p.err
	}
	if p.cur.Kind != token.Semi && p.cur.Kind != token.Newline {
		err := &Error{Token: p.cur, Expected: "';' or newline after " + what}
		if p.cur.Kind == token.EOF {
			// A bare header is a block waiting for its body.
			err.open = "end"
		}
		return err
	}
	p.skipSeparators()
	return p.err
}

// parseBlock reads statements until one of the stop keywords appears at
// statement position. Hitting EOF first is an unterminated-block error.
func (p *Parser) parseBlock(stops ...string) (*Block, error) {
	block := &Block{}
	for {
		p.skipSeparators()
		if p.err != nil {
			return nil, p.err
		}
		if p.cur.Kind == token.EOF {
			return nil, &Error{Token: p.cur, Expected: quoteList(stops), open: "end"}
		}
		if p.cur.Kind == token.Word {
			for _, stop := range stops {
				if p.cur.Lexeme == stop {
					return block, nil
				}
			}
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		block.Statements = append(block.Statements, stmt)
	}
}

func (p *Parser) parseConditional() (Statement, error) {
	p.next() // if
	cond, err := p.parseAndOr()
	if err != nil {
		return nil, err
	}
	if err := p.parseHeaderSep("the if condition"); err != nil {
		return nil, err
	}
	then, err := p.parseBlock("else", "end")
	if err != nil {
		return nil, err
	}
	c := &Conditional{Cond: cond, Then: then}
	if p.cur.Lexeme == "else" {
		p.next()
		c.Else, err = p.parseBlock("end")
		if err != nil {
			return nil, err
		}
	}
	p.next() // end
	return c, nil
}

func (p *Parser) parseWhile() (Statement, error) {
	p.next() // while
	cond, err := p.parseAndOr()
	if err != nil {
		return nil, err
	}
	if err := p.parseHeaderSep("the while condition"); err != nil {
		return nil, err
	}
	body, err := p.parseBlock("end")
	if err != nil {
		return nil, err
	}
	p.next() // end
	return &WhileLoop{Cond: cond, Body: body}, nil
}

func (p *Parser) parseFor() (Statement, error) {
	p.next() // for
	if p.cur.Kind != token.Word {
		return nil, &Error{Token: p.cur, Expected: "a loop variable name"}
	}
	name := p.cur.Lexeme
	p.next()
	if p.cur.Kind != token.Word || p.cur.Lexeme != "in" {
		return nil, &Error{Token: p.cur, Expected: `"in"`}
	}
	p.next()

	loop := &ForLoop{Var: name}
	for p.cur.Kind == token.Word {
		loop.Words = append(loop.Words, Word{Text: p.cur.Lexeme, Span: p.cur.Span})
		p.next()
	}
	if err := p.parseHeaderSep("the for header"); err != nil {
		return nil, err
	}
	body, err := p.parseBlockInto()
	if err != nil {
		return nil, err
	}
	loop.Body = body
	return loop, nil
}

func (p *Parser) parseFunction() (Statement, error) {
	p.next() // fn
	if p.cur.Kind != token.Word {
		return nil, &Error{Token: p.cur, Expected: "a function name"}
	}
	def := &FunctionDef{Name: p.cur.Lexeme}
	p.next()
	for p.cur.Kind == token.Word {
		def.Params = append(def.Params, p.cur.Lexeme)
		p.next()
	}
	if err := p.parseHeaderSep("the function header"); err != nil {
		return nil, err
	}
	var err error
	def.Body, err = p.parseBlockInto()
	if err != nil {
		return nil, err
	}
	return def, nil
}

// parseBlockInto is parseBlock("end") plus consuming the "end".
func (p *Parser) parseBlockInto() (*Block, error) {
	body, err := p.parseBlock("end")
	if err != nil {
		return nil, err
	}
	p.next() // end
	return body, nil
}

func quoteList(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = `"` + w + `"`
	}
	return strings.Join(quoted, " or ")
}
