// Package token defines the lexical tokens of the Ion shell language.
package token

import "fmt"

// Kind classifies a token.
type Kind int

const (
	Illegal Kind = iota
	EOF

	// Word is a shell word with its quoting intact. Quote removal and
	// expansion happen later, in the expander.
	Word

	Pipe   // |
	OrIf   // ||
	AndIf  // &&
	Semi   // ;
	Amp    // &
	Newline

	// Redirection operators. The lexeme includes any fd prefix, so
	// "2>>" lexes as one DblGreat token.
	Less    // <
	Great   // >
	DblGreat // >>
	DblLess  // << (here-string)
)

var kindNames = map[Kind]string{
	Illegal:  "illegal",
	EOF:      "end of input",
	Word:     "word",
	Pipe:     "'|'",
	OrIf:     "'||'",
	AndIf:    "'&&'",
	Semi:     "';'",
	Amp:      "'&'",
	Newline:  "newline",
	Less:     "'<'",
	Great:    "'>'",
	DblGreat: "'>>'",
	DblLess:  "'<<'",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsRedirect reports whether the kind is a redirection operator.
func (k Kind) IsRedirect() bool {
	switch k {
	case Less, Great, DblGreat, DblLess:
		return true
	}
	return false
}

// Span is a position within the input text.
type Span struct {
	Line int
	Col  int
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d", s.Line, s.Col)
}

// Token is a single lexeme. Tokens are immutable once produced.
type Token struct {
	Kind   Kind
	Lexeme string
	Span   Span
}

func (t Token) String() string {
	if t.Kind == Word {
		return fmt.Sprintf("%q", t.Lexeme)
	}
	return t.Kind.String()
}
