package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueShapes(t *testing.T) {
	s := ScalarValue("a b")
	assert.Equal(t, []string{"a b"}, s.Fields())
	assert.Equal(t, "a b", s.Join())

	a := ArrayValue("x", "y")
	assert.Equal(t, []string{"x", "y"}, a.Fields())
	assert.Equal(t, "x y", a.Join())
}

func TestSetUpdatesVisibleBinding(t *testing.T) {
	s := NewStore()
	s.Set("x", ScalarValue("outer"))

	s.Push()
	s.Set("x", ScalarValue("changed"))
	s.Pop()

	v, ok := s.Get("x")
	require.True(t, ok)
	assert.Equal(t, "changed", v.Str)
}

func TestDefineShadows(t *testing.T) {
	s := NewStore()
	s.Set("x", ScalarValue("outer"))

	s.Push()
	s.Define("x", ScalarValue("inner"))
	v, _ := s.Get("x")
	assert.Equal(t, "inner", v.Str)
	s.Pop()

	v, _ = s.Get("x")
	assert.Equal(t, "outer", v.Str)
}

func TestPopDropsBindings(t *testing.T) {
	s := NewStore()
	s.Push()
	s.Set("tmp", ScalarValue("v"))
	s.Pop()

	_, ok := s.Get("tmp")
	assert.False(t, ok)
}

func TestFunctionBarrier(t *testing.T) {
	s := NewStore()
	s.SetGlobal("global", ScalarValue("g"))

	s.Push()
	s.Define("local", ScalarValue("l"))
	s.Define("exported", ScalarValue("e"))
	s.Export("exported")

	s.PushFunction()

	// Only exported bindings cross the barrier; locals do not, and a
	// non-exported global is a local of the global frame.
	_, ok := s.Get("local")
	assert.False(t, ok)
	_, ok = s.Get("global")
	assert.False(t, ok)

	v, ok := s.Get("exported")
	require.True(t, ok)
	assert.Equal(t, "e", v.Str)

	// The function's own frame is fully visible to itself.
	s.Define("param", ScalarValue("p"))
	_, ok = s.Get("param")
	assert.True(t, ok)

	s.Pop()
	s.Pop()
	assert.Equal(t, 1, s.Depth())
}

func TestSetInsideFunctionStaysLocal(t *testing.T) {
	s := NewStore()
	s.Set("x", ScalarValue("outer"))

	s.PushFunction()
	s.Set("x", ScalarValue("inner"))
	v, _ := s.Get("x")
	assert.Equal(t, "inner", v.Str)
	s.Pop()

	v, ok := s.Get("x")
	require.True(t, ok)
	assert.Equal(t, "outer", v.Str)
}

func TestUnset(t *testing.T) {
	s := NewStore()
	s.Set("x", ScalarValue("outer"))
	s.Push()
	s.Define("x", ScalarValue("inner"))

	s.Unset("x")
	v, ok := s.Get("x")
	require.True(t, ok)
	assert.Equal(t, "outer", v.Str)

	s.Unset("x")
	_, ok = s.Get("x")
	assert.False(t, ok)
}

func TestEnviron(t *testing.T) {
	s := NewStoreFromEnviron([]string{"PATH=/bin", "HOME=/root"})
	s.Set("unexported", ScalarValue("hidden"))
	s.ExportValue("LANG", ScalarValue("C"))
	s.ExportValue("LIST", ArrayValue("a", "b"))

	assert.Equal(t, []string{
		"HOME=/root",
		"LANG=C",
		"LIST=a b",
		"PATH=/bin",
	}, s.Environ())
}

func TestEnvironInnermostWins(t *testing.T) {
	s := NewStoreFromEnviron([]string{"PATH=/bin"})
	s.Push()
	s.Define("PATH", ScalarValue("/override"))
	s.Export("PATH")

	assert.Equal(t, []string{"PATH=/override"}, s.Environ())
}

func TestClone(t *testing.T) {
	s := NewStore()
	s.ExportValue("x", ScalarValue("orig"))
	s.Set("arr", ArrayValue("a", "b"))

	c := s.Clone()
	c.Set("x", ScalarValue("changed"))
	c.Set("arr", ArrayValue("c"))

	v, _ := s.Get("x")
	assert.Equal(t, "orig", v.Str)
	v, _ = s.Get("arr")
	assert.Equal(t, []string{"a", "b"}, v.List)

	// Export flags survive the copy.
	assert.Contains(t, c.Environ(), "x=changed")
}
