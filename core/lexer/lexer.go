// Package lexer turns raw Ion source text into a stream of tokens.
//
// The lexer keeps shell words intact: quoting, variable sigils, brace
// patterns and substitution delimiters all stay inside the word's lexeme
// so the expander can interpret them with scope in hand. Operators and
// redirections are split out here, including fd-prefixed forms like 2>>.
package lexer

import (
	"fmt"
	"strings"

	"github.com/ion-sh/ion/core/token"
)

// Error is a lexical error. Open names the construct left unterminated
// at end of input, if any; interactive callers use that to request a
// continuation line instead of reporting the error.
type Error struct {
	Span token.Span
	Msg  string
	Open string
}

func (e *Error) Error() string {
	return fmt.Sprintf("syntax error at %s: %s", e.Span, e.Msg)
}

// Unterminated reports whether the input ended inside an open construct.
func (e *Error) Unterminated() bool {
	return e.Open != ""
}

// Lexer produces tokens lazily via Next. A Lexer is single-use per
// input; Reset restarts it on new text.
type Lexer struct {
	input   string
	pos     int  // position of ch
	readPos int  // position after ch
	ch      byte // current char, 0 at EOF
	line    int
	col     int
}

// New returns a lexer over input.
func New(input string) *Lexer {
	l := &Lexer{}
	l.Reset(input)
	return l
}

// Reset restarts the lexer on new input.
func (l *Lexer) Reset(input string) {
	l.input = input
	l.pos = 0
	l.readPos = 0
	l.line = 1
	l.col = 0
	l.readChar()
}

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
	if l.ch == '\n' {
		l.line++
		l.col = 0
	} else {
		l.col++
	}
}

func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) span() token.Span {
	return token.Span{Line: l.line, Col: l.col}
}

// Next returns the next token. At end of input it returns an EOF token;
// it never returns tokens past the first error.
func (l *Lexer) Next() (token.Token, error) {
	l.skipBlanksAndComments()

	sp := l.span()

	switch l.ch {
	case 0:
		return token.Token{Kind: token.EOF, Span: sp}, nil
	case '\n':
		l.readChar()
		return token.Token{Kind: token.Newline, Lexeme: "\n", Span: sp}, nil
	case '|':
		if l.peekChar() == '|' {
			l.readChar()
			l.readChar()
			return token.Token{Kind: token.OrIf, Lexeme: "||", Span: sp}, nil
		}
		l.readChar()
		return token.Token{Kind: token.Pipe, Lexeme: "|", Span: sp}, nil
	case '&':
		if l.peekChar() == '&' {
			l.readChar()
			l.readChar()
			return token.Token{Kind: token.AndIf, Lexeme: "&&", Span: sp}, nil
		}
		l.readChar()
		return token.Token{Kind: token.Amp, Lexeme: "&", Span: sp}, nil
	case ';':
		l.readChar()
		return token.Token{Kind: token.Semi, Lexeme: ";", Span: sp}, nil
	case '<', '>':
		return l.lexRedirect(sp, ""), nil
	}

	// An all-digit run glued to a redirection operator is an fd prefix,
	// not a word: 2>err redirects fd 2.
	if isDigit(l.ch) {
		if fd, ok := l.peekFdPrefix(); ok {
			return l.lexRedirect(l.span(), fd), nil
		}
	}

	return l.lexWord(sp)
}

func (l *Lexer) skipBlanksAndComments() {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\r' {
			l.readChar()
		}
		if l.ch == '#' {
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
			continue
		}
		return
	}
}

// peekFdPrefix consumes a digit run if and only if it is immediately
// followed by < or >, returning the digits.
func (l *Lexer) peekFdPrefix() (string, bool) {
	i := l.pos
	for i < len(l.input) && isDigit(l.input[i]) {
		i++
	}
	if i >= len(l.input) || (l.input[i] != '<' && l.input[i] != '>') {
		return "", false
	}
	fd := l.input[l.pos:i]
	for range fd {
		l.readChar()
	}
	return fd, true
}

func (l *Lexer) lexRedirect(sp token.Span, fd string) token.Token {
	op := l.ch
	l.readChar()
	kind := token.Less
	lexeme := fd + string(op)
	if op == '>' {
		kind = token.Great
	}
	if l.ch == op {
		l.readChar()
		lexeme += string(op)
		if op == '>' {
			kind = token.DblGreat
		} else {
			kind = token.DblLess
		}
	}
	return token.Token{Kind: kind, Lexeme: lexeme, Span: sp}
}

// lexWord consumes one shell word, tracking quote and substitution
// nesting so metacharacters inside them stay part of the lexeme.
func (l *Lexer) lexWord(sp token.Span) (token.Token, error) {
	var b strings.Builder

	for {
		switch l.ch {
		case 0, ' ', '\t', '\r', '\n', '|', '&', ';', '<', '>':
			if b.Len() == 0 {
				return token.Token{Kind: token.Illegal, Span: sp},
					&Error{Span: sp, Msg: fmt.Sprintf("unexpected character %q", l.ch)}
			}
			return token.Token{Kind: token.Word, Lexeme: b.String(), Span: sp}, nil

		case '\\':
			b.WriteByte(l.ch)
			l.readChar()
			if l.ch == 0 {
				return token.Token{}, &Error{Span: l.span(), Msg: "incomplete escape at end of input", Open: `\`}
			}
			b.WriteByte(l.ch)
			l.readChar()

		case '\'':
			if err := l.consumeSingle(&b); err != nil {
				return token.Token{}, err
			}

		case '"':
			if err := l.consumeDouble(&b); err != nil {
				return token.Token{}, err
			}

		case '$':
			if l.peekChar() == '(' {
				if err := l.consumeSubstitution(&b); err != nil {
					return token.Token{}, err
				}
				continue
			}
			b.WriteByte(l.ch)
			l.readChar()

		default:
			b.WriteByte(l.ch)
			l.readChar()
		}
	}
}

func (l *Lexer) consumeSingle(b *strings.Builder) error {
	open := l.span()
	b.WriteByte(l.ch)
	l.readChar()
	for l.ch != '\'' {
		if l.ch == 0 {
			return &Error{Span: open, Msg: "unterminated single quote", Open: "'"}
		}
		b.WriteByte(l.ch)
		l.readChar()
	}
	b.WriteByte(l.ch)
	l.readChar()
	return nil
}

func (l *Lexer) consumeDouble(b *strings.Builder) error {
	open := l.span()
	b.WriteByte(l.ch)
	l.readChar()
	for l.ch != '"' {
		switch l.ch {
		case 0:
			return &Error{Span: open, Msg: "unterminated double quote", Open: `"`}
		case '\\':
			b.WriteByte(l.ch)
			l.readChar()
			if l.ch == 0 {
				return &Error{Span: open, Msg: "unterminated double quote", Open: `"`}
			}
			b.WriteByte(l.ch)
			l.readChar()
		case '$':
			if l.peekChar() == '(' {
				if err := l.consumeSubstitution(b); err != nil {
					return err
				}
				continue
			}
			b.WriteByte(l.ch)
			l.readChar()
		default:
			b.WriteByte(l.ch)
			l.readChar()
		}
	}
	b.WriteByte(l.ch)
	l.readChar()
	return nil
}

// consumeSubstitution copies a $( ... ) or $(( ... )) construct,
// balancing parentheses and honoring quotes so a ')' inside either
// stays literal. Called with l.ch on the '$'.
func (l *Lexer) consumeSubstitution(b *strings.Builder) error {
	open := l.span()
	b.WriteByte(l.ch) // $
	l.readChar()
	depth := 0
	for {
		switch l.ch {
		case 0:
			return &Error{Span: open, Msg: "unterminated substitution", Open: "$("}
		case '(':
			depth++
			b.WriteByte(l.ch)
			l.readChar()
		case ')':
			depth--
			b.WriteByte(l.ch)
			l.readChar()
			if depth == 0 {
				return nil
			}
		case '\\':
			b.WriteByte(l.ch)
			l.readChar()
			if l.ch != 0 {
				b.WriteByte(l.ch)
				l.readChar()
			}
		case '\'':
			if err := l.consumeSingle(b); err != nil {
				return err
			}
		case '"':
			if err := l.consumeDouble(b); err != nil {
				return err
			}
		default:
			b.WriteByte(l.ch)
			l.readChar()
		}
	}
}

func isDigit(ch byte) bool { return '0' <= ch && ch <= '9' }
