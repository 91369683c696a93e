// Package expand turns raw argument words into final argument strings.
//
// Per word, in order: brace expansion, variable/parameter expansion,
// command substitution, arithmetic expansion, glob expansion, and word
// splitting of unquoted results. Double quotes suppress globbing and
// splitting; single quotes suppress everything.
package expand

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/ion-sh/ion/core/scope"
)

// Error is a general expansion failure: a bad reference or a failed
// substitution.
type Error struct {
	Word string
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("cannot expand %q: %s", e.Word, e.Msg)
}

// TypeError reports indexing or slicing a scalar as if it were an array.
type TypeError struct {
	Name string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("$%s is a scalar and cannot be indexed", e.Name)
}

// Vars resolves variable references during expansion. The special name
// "?" resolves to the last aggregate exit status.
type Vars interface {
	Value(name string) (scope.Value, bool)
}

// Evaluator runs a command-substitution script and captures its output.
// The call blocks the expanding thread and must leave the outer
// job-control state untouched.
type Evaluator interface {
	CaptureOutput(script string) (string, error)
}

// Expander holds the collaborators one expansion pass needs.
type Expander struct {
	Vars Vars
	Eval Evaluator
	Fs   afero.Fs // glob target; nil disables glob expansion
	Dir  string   // base for relative glob patterns
	Home string   // tilde target; empty disables tilde expansion
}

// Expand produces the final ordered argument list for a command's raw
// words.
func (e *Expander) Expand(raw []string) ([]string, error) {
	var out []string
	for _, word := range raw {
		fields, err := e.ExpandWord(word)
		if err != nil {
			return nil, err
		}
		out = append(out, fields...)
	}
	return out, nil
}

// ExpandWord expands a single raw word into zero or more fields.
func (e *Expander) ExpandWord(word string) ([]string, error) {
	var out []string
	for _, alt := range braceExpand(word) {
		fields, err := e.expandAlternative(alt)
		if err != nil {
			return nil, err
		}
		out = append(out, fields...)
	}
	return out, nil
}

// ExpandOne expands a word that must yield exactly one field, such as a
// redirection target.
func (e *Expander) ExpandOne(word string) (string, error) {
	fields, err := e.ExpandWord(word)
	if err != nil {
		return "", err
	}
	if len(fields) != 1 {
		return "", &Error{Word: word, Msg: fmt.Sprintf("expected one result, got %d", len(fields))}
	}
	return fields[0], nil
}

// field accumulates one output argument. The pattern mirrors text with
// glob metacharacters escaped wherever they came from quoted input, so
// only unquoted metacharacters trigger globbing.
type field struct {
	text    string
	pattern string
	hasGlob bool
	formed  bool // a quoted segment or any nonempty text makes the field real
}

type fieldBuilder struct {
	fields []field
}

func (fb *fieldBuilder) cur() *field {
	if len(fb.fields) == 0 {
		fb.fields = append(fb.fields, field{})
	}
	return &fb.fields[len(fb.fields)-1]
}

func (fb *fieldBuilder) addQuoted(s string) {
	f := fb.cur()
	f.text += s
	f.pattern += escapeGlob(s)
	f.formed = true
}

func (fb *fieldBuilder) addUnquoted(s string) {
	if s == "" {
		return
	}
	f := fb.cur()
	f.text += s
	f.pattern += s
	f.formed = true
	if strings.ContainsAny(s, "*?[") {
		f.hasGlob = true
	}
}

// split starts a new field unless the current one is still empty.
func (fb *fieldBuilder) split() {
	if f := fb.cur(); f.formed {
		fb.fields = append(fb.fields, field{})
	}
}

// addSplittable adds an unquoted expansion result, splitting it into
// fields on whitespace.
func (fb *fieldBuilder) addSplittable(s string) {
	if s == "" {
		return
	}
	pieces := strings.Fields(s)
	if strings.IndexByte(" \t\n", s[0]) >= 0 {
		fb.split()
	}
	for i, p := range pieces {
		if i > 0 {
			fb.split()
		}
		fb.addUnquoted(p)
	}
	if strings.IndexByte(" \t\n", s[len(s)-1]) >= 0 {
		fb.split()
	}
}

func (e *Expander) expandAlternative(word string) ([]string, error) {
	fb := &fieldBuilder{}

	s := word
	i := 0

	// Tilde expansion applies to a leading unquoted ~ only.
	if e.Home != "" && strings.HasPrefix(s, "~") && (len(s) == 1 || s[1] == '/') {
		fb.addQuoted(e.Home)
		i = 1
	}

	for i < len(s) {
		switch s[i] {
		case '\'':
			j := strings.IndexByte(s[i+1:], '\'')
			if j < 0 {
				return nil, &Error{Word: word, Msg: "unterminated single quote"}
			}
			fb.addQuoted(s[i+1 : i+1+j])
			i += j + 2

		case '"':
			n, err := e.expandDoubleQuoted(word, s[i+1:], fb)
			if err != nil {
				return nil, err
			}
			i += n + 2

		case '\\':
			if i+1 < len(s) {
				fb.addQuoted(string(s[i+1]))
				i += 2
			} else {
				fb.addUnquoted(`\`)
				i++
			}

		case '$':
			n, err := e.expandDollar(word, s[i:], fb, false)
			if err != nil {
				return nil, err
			}
			i += n

		case '@':
			n, err := e.expandAt(word, s[i:], fb, false)
			if err != nil {
				return nil, err
			}
			i += n

		default:
			j := i
			for j < len(s) && !strings.ContainsRune(`'"\$@`, rune(s[j])) {
				j++
			}
			fb.addUnquoted(s[i:j])
			i = j
		}
	}

	return e.finish(fb)
}

// expandDoubleQuoted processes the inside of a double-quoted region.
// rest starts just past the opening quote; the return value is the
// number of inner bytes consumed, excluding both quotes.
func (e *Expander) expandDoubleQuoted(word, rest string, fb *fieldBuilder) (int, error) {
	// An empty pair of quotes still forms a field.
	fb.addQuoted("")

	i := 0
	for i < len(rest) {
		switch rest[i] {
		case '"':
			return i, nil
		case '\\':
			if i+1 < len(rest) {
				c := rest[i+1]
				if c == '"' || c == '\\' || c == '$' || c == '`' {
					fb.addQuoted(string(c))
				} else {
					fb.addQuoted(rest[i : i+2])
				}
				i += 2
			} else {
				fb.addQuoted(`\`)
				i++
			}
		case '$':
			n, err := e.expandDollar(word, rest[i:], fb, true)
			if err != nil {
				return 0, err
			}
			i += n
		case '@':
			n, err := e.expandAt(word, rest[i:], fb, true)
			if err != nil {
				return 0, err
			}
			i += n
		default:
			j := i
			for j < len(rest) && !strings.ContainsRune(`"\$@`, rune(rest[j])) {
				j++
			}
			fb.addQuoted(rest[i:j])
			i = j
		}
	}
	return 0, &Error{Word: word, Msg: "unterminated double quote"}
}

// expandDollar handles every $-introduced form. s starts at the '$';
// the return value is the number of bytes consumed.
func (e *Expander) expandDollar(word, s string, fb *fieldBuilder, quoted bool) (int, error) {
	if len(s) == 1 {
		fb.addUnquoted("$")
		return 1, nil
	}

	switch {
	case strings.HasPrefix(s, "$(("):
		inner, n, ok := balanced(s[1:], '(', ')')
		if !ok {
			return 0, &Error{Word: word, Msg: "unterminated arithmetic expansion"}
		}
		// Strip the second layer of parens.
		expr := strings.TrimSuffix(strings.TrimPrefix(inner, "("), ")")
		expr, err := e.expandArithVars(word, expr)
		if err != nil {
			return 0, err
		}
		result, err := EvalArith(expr)
		if err != nil {
			return 0, err
		}
		e.emit(fb, scope.ScalarValue(result), quoted)
		return 1 + n, nil

	case s[1] == '(':
		inner, n, ok := balanced(s[1:], '(', ')')
		if !ok {
			return 0, &Error{Word: word, Msg: "unterminated command substitution"}
		}
		if e.Eval == nil {
			return 0, &Error{Word: word, Msg: "command substitution is not available here"}
		}
		out, err := e.Eval.CaptureOutput(inner)
		if err != nil {
			return 0, &Error{Word: word, Msg: "command substitution failed: " + err.Error()}
		}
		out = strings.TrimRight(out, "\n")
		e.emit(fb, scope.ScalarValue(out), quoted)
		return 1 + n, nil

	case s[1] == '{':
		end := strings.IndexByte(s, '}')
		if end < 0 {
			return 0, &Error{Word: word, Msg: "unterminated ${ reference"}
		}
		val, err := e.reference(word, s[2:end])
		if err != nil {
			return 0, err
		}
		e.emit(fb, scope.ScalarValue(val.Join()), quoted)
		return end + 1, nil

	case s[1] == '?':
		val, _ := e.lookupVar("?")
		e.emit(fb, val, quoted)
		return 2, nil
	}

	name, n := scanName(s[1:])
	if name == "" {
		fb.addUnquoted("$")
		return 1, nil
	}
	ref := name
	if n+1 < len(s) && s[n+1] == '[' {
		idx, m, ok := balanced(s[n+1:], '[', ']')
		if !ok {
			return 0, &Error{Word: word, Msg: "unterminated index on $" + name}
		}
		ref = name + "[" + idx + "]"
		n += m
	}
	val, err := e.reference(word, ref)
	if err != nil {
		return 0, err
	}
	e.emit(fb, scope.ScalarValue(val.Join()), quoted)
	return 1 + n, nil
}

// expandAt handles @name array references. Unquoted, each element
// becomes its own field; inside quotes the elements join with spaces.
func (e *Expander) expandAt(word, s string, fb *fieldBuilder, quoted bool) (int, error) {
	name, n := scanName(s[1:])
	if name == "" {
		fb.addUnquoted("@")
		return 1, nil
	}
	ref := name
	if n+1 < len(s) && s[n+1] == '[' {
		idx, m, ok := balanced(s[n+1:], '[', ']')
		if !ok {
			return 0, &Error{Word: word, Msg: "unterminated index on @" + name}
		}
		ref = name + "[" + idx + "]"
		n += m
	}
	val, err := e.reference(word, ref)
	if err != nil {
		return 0, err
	}
	if quoted {
		fb.addQuoted(val.Join())
		return 1 + n, nil
	}
	for i, el := range val.Fields() {
		if i > 0 {
			fb.split()
		}
		fb.addUnquoted(el)
	}
	return 1 + n, nil
}

// emit adds an expansion result to the builder, splitting it only when
// it came from outside quotes.
func (e *Expander) emit(fb *fieldBuilder, val scope.Value, quoted bool) {
	if quoted {
		fb.addQuoted(val.Join())
		return
	}
	fb.addSplittable(val.Join())
}

// reference resolves "name" or "name[index]" or "name[a..b]".
func (e *Expander) reference(word, ref string) (scope.Value, error) {
	name := ref
	index := ""
	if br := strings.IndexByte(ref, '['); br >= 0 {
		if !strings.HasSuffix(ref, "]") {
			return scope.Value{}, &Error{Word: word, Msg: "malformed index in " + ref}
		}
		name = ref[:br]
		index = ref[br+1 : len(ref)-1]
	}

	val, ok := e.lookupVar(name)
	if !ok {
		return scope.ScalarValue(""), nil
	}
	if index == "" {
		return val, nil
	}

	if val.Kind != scope.Array {
		return scope.Value{}, &TypeError{Name: name}
	}
	return sliceArray(word, val.List, index)
}

func (e *Expander) lookupVar(name string) (scope.Value, bool) {
	if e.Vars == nil {
		return scope.ScalarValue(""), false
	}
	return e.Vars.Value(name)
}

// sliceArray applies an "N" index or "A..B" inclusive slice.
func sliceArray(word string, list []string, index string) (scope.Value, error) {
	if dots := strings.Index(index, ".."); dots >= 0 {
		lo, err1 := strconv.Atoi(strings.TrimSpace(index[:dots]))
		hi, err2 := strconv.Atoi(strings.TrimSpace(index[dots+2:]))
		if err1 != nil || err2 != nil {
			return scope.Value{}, &Error{Word: word, Msg: fmt.Sprintf("malformed slice [%s]", index)}
		}
		if lo < 0 {
			lo = 0
		}
		if hi >= len(list) {
			hi = len(list) - 1
		}
		if lo > hi {
			return scope.ArrayValue(), nil
		}
		return scope.ArrayValue(list[lo : hi+1]...), nil
	}

	n, err := strconv.Atoi(strings.TrimSpace(index))
	if err != nil {
		return scope.Value{}, &Error{Word: word, Msg: fmt.Sprintf("malformed index [%s]", index)}
	}
	if n < 0 || n >= len(list) {
		return scope.ScalarValue(""), nil
	}
	return scope.ScalarValue(list[n]), nil
}

// expandArithVars substitutes $name references inside an arithmetic
// expression before evaluation; variable expansion precedes arithmetic.
func (e *Expander) expandArithVars(word, expr string) (string, error) {
	var b strings.Builder
	i := 0
	for i < len(expr) {
		if expr[i] != '$' {
			b.WriteByte(expr[i])
			i++
			continue
		}
		name, n := scanName(expr[i+1:])
		if name == "" {
			b.WriteByte('$')
			i++
			continue
		}
		val, _ := e.lookupVar(name)
		if val.Kind == scope.Array {
			return "", &Error{Word: word, Msg: "$" + name + " is an array, not a number"}
		}
		b.WriteString(val.Str)
		i += 1 + n
	}
	return b.String(), nil
}

// finish applies glob expansion and drops fields that never formed.
func (e *Expander) finish(fb *fieldBuilder) ([]string, error) {
	var out []string
	for _, f := range fb.fields {
		if !f.formed {
			continue
		}
		if !f.hasGlob || e.Fs == nil {
			out = append(out, f.text)
			continue
		}
		matches := e.glob(f.pattern)
		if len(matches) == 0 {
			// A pattern matching nothing passes through unchanged.
			out = append(out, f.text)
			continue
		}
		out = append(out, matches...)
	}
	return out, nil
}

func (e *Expander) glob(pattern string) []string {
	full := pattern
	trim := ""
	if !filepath.IsAbs(pattern) && e.Dir != "" {
		trim = strings.TrimSuffix(e.Dir, "/") + "/"
		full = trim + pattern
	}
	matches, err := afero.Glob(e.Fs, full)
	if err != nil {
		// Bad pattern: filepath.Match syntax errors fall back to the
		// literal word upstream.
		return nil
	}
	if trim != "" {
		for i, m := range matches {
			matches[i] = strings.TrimPrefix(m, trim)
		}
	}
	sort.Strings(matches)
	return matches
}

// scanName reads a leading run of variable-name characters.
func scanName(s string) (string, int) {
	i := 0
	for i < len(s) && isNameByte(s[i]) {
		i++
	}
	return s[:i], i
}

func isNameByte(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// balanced extracts the contents of a bracketed region starting at
// s[0] == open, honoring quotes, and returns the inner text and the
// total number of bytes consumed including both brackets.
func balanced(s string, open, close byte) (string, int, bool) {
	depth := 0
	i := 0
	for i < len(s) {
		switch s[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[1:i], i + 1, true
			}
		case '\'':
			j := strings.IndexByte(s[i+1:], '\'')
			if j < 0 {
				return "", 0, false
			}
			i += j + 1
		case '"':
			for i++; i < len(s) && s[i] != '"'; i++ {
				if s[i] == '\\' {
					i++
				}
			}
			if i >= len(s) {
				return "", 0, false
			}
		case '\\':
			i++
		}
		i++
	}
	return "", 0, false
}

func escapeGlob(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(`*?[]\`, s[i]) >= 0 {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
