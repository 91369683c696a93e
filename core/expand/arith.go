package expand

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ArithError reports a malformed arithmetic expression or division by
// zero.
type ArithError struct {
	Expr string
	Msg  string
}

func (e *ArithError) Error() string {
	return fmt.Sprintf("arithmetic error in %q: %s", e.Expr, e.Msg)
}

// number is an integer until an operation forces it to float.
type number struct {
	i       int64
	f       float64
	isFloat bool
}

func (n number) float() float64 {
	if n.isFloat {
		return n.f
	}
	return float64(n.i)
}

func (n number) render() string {
	if n.isFloat {
		return strconv.FormatFloat(n.f, 'f', -1, 64)
	}
	return strconv.FormatInt(n.i, 10)
}

// EvalArith evaluates an expression over integer and float literals
// with + - * / % ^ and parentheses. ^ is exponentiation and binds
// tightest, right-associatively.
func EvalArith(expr string) (string, error) {
	p := &arithParser{expr: expr, src: expr}
	n, err := p.parseExpr(0)
	if err != nil {
		return "", err
	}
	p.skipSpace()
	if p.src != "" {
		return "", &ArithError{Expr: expr, Msg: fmt.Sprintf("unexpected %q", firstToken(p.src))}
	}
	return n.render(), nil
}

type arithParser struct {
	expr string // whole expression, for errors
	src  string // unconsumed tail
}

func (p *arithParser) errf(format string, args ...interface{}) error {
	return &ArithError{Expr: p.expr, Msg: fmt.Sprintf(format, args...)}
}

func (p *arithParser) skipSpace() {
	p.src = strings.TrimLeft(p.src, " \t\n")
}

// peekOp returns the next binary operator and its precedence, or 0.
func (p *arithParser) peekOp() (byte, int) {
	p.skipSpace()
	if p.src == "" {
		return 0, 0
	}
	switch p.src[0] {
	case '+', '-':
		return p.src[0], 1
	case '*', '/', '%':
		return p.src[0], 2
	case '^':
		return p.src[0], 3
	}
	return 0, 0
}

// parseExpr is a precedence climber: it parses a primary then folds in
// operators of at least minPrec.
func (p *arithParser) parseExpr(minPrec int) (number, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return number{}, err
	}

	for {
		op, prec := p.peekOp()
		if op == 0 || prec < minPrec {
			return left, nil
		}
		p.src = p.src[1:]

		// ^ is right-associative; the rest are left-associative.
		next := prec + 1
		if op == '^' {
			next = prec
		}
		right, err := p.parseExpr(next)
		if err != nil {
			return number{}, err
		}
		left, err = p.apply(op, left, right)
		if err != nil {
			return number{}, err
		}
	}
}

func (p *arithParser) parsePrimary() (number, error) {
	p.skipSpace()
	if p.src == "" {
		return number{}, p.errf("unexpected end of expression")
	}

	switch p.src[0] {
	case '(':
		p.src = p.src[1:]
		n, err := p.parseExpr(0)
		if err != nil {
			return number{}, err
		}
		p.skipSpace()
		if p.src == "" || p.src[0] != ')' {
			return number{}, p.errf("missing closing parenthesis")
		}
		p.src = p.src[1:]
		return n, nil
	case '-':
		p.src = p.src[1:]
		n, err := p.parsePrimary()
		if err != nil {
			return number{}, err
		}
		if n.isFloat {
			n.f = -n.f
		} else {
			n.i = -n.i
		}
		return n, nil
	case '+':
		p.src = p.src[1:]
		return p.parsePrimary()
	}

	return p.parseNumber()
}

func (p *arithParser) parseNumber() (number, error) {
	i := 0
	dot := false
	for i < len(p.src) {
		c := p.src[i]
		if c >= '0' && c <= '9' {
			i++
			continue
		}
		if c == '.' && !dot && !strings.HasPrefix(p.src[i:], "..") {
			dot = true
			i++
			continue
		}
		break
	}
	if i == 0 {
		return number{}, p.errf("unexpected %q", firstToken(p.src))
	}
	lit := p.src[:i]
	p.src = p.src[i:]

	if dot {
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return number{}, p.errf("bad number %q", lit)
		}
		return number{f: f, isFloat: true}, nil
	}
	n, err := strconv.ParseInt(lit, 10, 64)
	if err != nil {
		return number{}, p.errf("bad number %q", lit)
	}
	return number{i: n}, nil
}

func (p *arithParser) apply(op byte, a, b number) (number, error) {
	bothInt := !a.isFloat && !b.isFloat

	switch op {
	case '+':
		if bothInt {
			return number{i: a.i + b.i}, nil
		}
		return number{f: a.float() + b.float(), isFloat: true}, nil
	case '-':
		if bothInt {
			return number{i: a.i - b.i}, nil
		}
		return number{f: a.float() - b.float(), isFloat: true}, nil
	case '*':
		if bothInt {
			return number{i: a.i * b.i}, nil
		}
		return number{f: a.float() * b.float(), isFloat: true}, nil
	case '/':
		if bothInt {
			if b.i == 0 {
				return number{}, p.errf("division by zero")
			}
			if a.i%b.i == 0 {
				return number{i: a.i / b.i}, nil
			}
			return number{f: float64(a.i) / float64(b.i), isFloat: true}, nil
		}
		if b.float() == 0 {
			return number{}, p.errf("division by zero")
		}
		return number{f: a.float() / b.float(), isFloat: true}, nil
	case '%':
		if bothInt {
			if b.i == 0 {
				return number{}, p.errf("division by zero")
			}
			return number{i: a.i % b.i}, nil
		}
		if b.float() == 0 {
			return number{}, p.errf("division by zero")
		}
		return number{f: math.Mod(a.float(), b.float()), isFloat: true}, nil
	case '^':
		if bothInt && b.i >= 0 {
			result := int64(1)
			for k := int64(0); k < b.i; k++ {
				result *= a.i
			}
			return number{i: result}, nil
		}
		return number{f: math.Pow(a.float(), b.float()), isFloat: true}, nil
	}
	return number{}, p.errf("unknown operator %q", op)
}

// firstToken trims a string down to something short enough for an
// error message.
func firstToken(s string) string {
	s = strings.TrimLeft(s, " \t\n")
	if len(s) > 10 {
		return s[:10] + "..."
	}
	return s
}
