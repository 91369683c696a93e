// Package scope implements the shell's variable store: a stack of
// binding frames with scalar and array values and export semantics.
//
// Only the interpreting thread mutates a Store, so there is no locking
// on this path. Exported bindings are materialized into an environment
// snapshot at each spawn; children never observe later updates.
package scope

import (
	"sort"
	"strings"
)

// Kind distinguishes scalar and array values.
type Kind int

const (
	Scalar Kind = iota
	Array
)

// Value is a scalar string or an ordered list of strings.
type Value struct {
	Kind Kind
	Str  string
	List []string
}

// ScalarValue wraps s as a scalar Value.
func ScalarValue(s string) Value {
	return Value{Kind: Scalar, Str: s}
}

// ArrayValue wraps elems as an array Value.
func ArrayValue(elems ...string) Value {
	return Value{Kind: Array, List: elems}
}

// Fields returns the value as a list: the list itself for arrays, a
// one-element list for scalars.
func (v Value) Fields() []string {
	if v.Kind == Array {
		return v.List
	}
	return []string{v.Str}
}

// Join returns the value as a single string; array elements are joined
// with single spaces.
func (v Value) Join() string {
	if v.Kind == Array {
		return strings.Join(v.List, " ")
	}
	return v.Str
}

type variable struct {
	value    Value
	exported bool
}

// frame is one binding context. A function frame is a lookup barrier:
// only exported bindings are visible past it.
type frame struct {
	vars    map[string]*variable
	barrier bool
}

func newFrame(barrier bool) *frame {
	return &frame{vars: map[string]*variable{}, barrier: barrier}
}

// Store is the scope stack. The zeroth frame is the global scope and is
// never popped.
type Store struct {
	frames []*frame
}

// NewStore returns a store with an empty global frame.
func NewStore() *Store {
	return &Store{frames: []*frame{newFrame(false)}}
}

// NewStoreFromEnviron seeds the global frame with exported scalars from
// an os.Environ-style "key=value" list.
func NewStoreFromEnviron(environ []string) *Store {
	s := NewStore()
	for _, kv := range environ {
		parts := strings.SplitN(kv, "=", 2)
		value := ""
		if len(parts) > 1 {
			value = parts[1]
		}
		s.frames[0].vars[parts[0]] = &variable{value: ScalarValue(value), exported: true}
	}
	return s
}

// Push opens a plain nested scope (a block or sourced script).
func (s *Store) Push() {
	s.frames = append(s.frames, newFrame(false))
}

// PushFunction opens a function scope. Lookups from inside it see the
// function's own bindings, then exported bindings of outer frames;
// non-exported bindings of callers stay hidden, globals included.
func (s *Store) PushFunction() {
	s.frames = append(s.frames, newFrame(true))
}

// Pop discards the innermost frame and every binding in it. Popping the
// global frame is a programming error.
func (s *Store) Pop() {
	if len(s.frames) == 1 {
		panic("scope: popped the global frame")
	}
	s.frames = s.frames[:len(s.frames)-1]
}

// Depth returns the number of frames, for pairing checks in tests.
func (s *Store) Depth() int {
	return len(s.frames)
}

func (s *Store) lookup(name string) (*variable, bool) {
	barrier := false
	for i := len(s.frames) - 1; i >= 0; i-- {
		f := s.frames[i]
		v, ok := f.vars[name]
		if ok && (!barrier || v.exported) {
			return v, true
		}
		if f.barrier {
			barrier = true
		}
	}
	return nil, false
}

// Get resolves name innermost-first, honoring function barriers.
func (s *Store) Get(name string) (Value, bool) {
	v, ok := s.lookup(name)
	if !ok {
		return Value{}, false
	}
	return v.value, true
}

// Set updates name where it is already visible, or defines it in the
// innermost frame.
func (s *Store) Set(name string, value Value) {
	if v, ok := s.lookup(name); ok {
		v.value = value
		return
	}
	s.Define(name, value)
}

// Define binds name in the innermost frame, shadowing any outer binding
// for the life of the frame.
func (s *Store) Define(name string, value Value) {
	top := s.frames[len(s.frames)-1]
	top.vars[name] = &variable{value: value}
}

// SetGlobal binds name in the global frame.
func (s *Store) SetGlobal(name string, value Value) {
	s.frames[0].vars[name] = &variable{value: value}
}

// Unset removes the innermost visible binding of name.
func (s *Store) Unset(name string) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if _, ok := s.frames[i].vars[name]; ok {
			delete(s.frames[i].vars, name)
			return
		}
	}
}

// Export marks name exported, defining it as an empty scalar if unset.
func (s *Store) Export(name string) {
	if v, ok := s.lookup(name); ok {
		v.exported = true
		return
	}
	top := s.frames[len(s.frames)-1]
	top.vars[name] = &variable{value: ScalarValue(""), exported: true}
}

// ExportValue binds name to value and marks it exported.
func (s *Store) ExportValue(name string, value Value) {
	s.Set(name, value)
	if v, ok := s.lookup(name); ok {
		v.exported = true
	}
}

// Clone deep-copies the store. Pipeline stages that run in-process use
// a clone so their mutations stay subshell-local.
func (s *Store) Clone() *Store {
	out := &Store{frames: make([]*frame, len(s.frames))}
	for i, f := range s.frames {
		nf := newFrame(f.barrier)
		for name, v := range f.vars {
			value := v.value
			if value.Kind == Array {
				value.List = append([]string(nil), value.List...)
			}
			nf.vars[name] = &variable{value: value, exported: v.exported}
		}
		out.frames[i] = nf
	}
	return out
}

// Environ snapshots the exported bindings as a sorted "key=value" list,
// the shape the process layer hands to a child at spawn time. Arrays
// export space-joined.
func (s *Store) Environ() []string {
	seen := map[string]string{}
	for i := len(s.frames) - 1; i >= 0; i-- {
		for name, v := range s.frames[i].vars {
			if !v.exported {
				continue
			}
			if _, ok := seen[name]; !ok {
				seen[name] = v.value.Join()
			}
		}
	}

	out := make([]string, 0, len(seen))
	for name, value := range seen {
		out = append(out, name+"="+value)
	}
	sort.Strings(out)
	return out
}
