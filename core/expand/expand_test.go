package expand

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ion-sh/ion/core/scope"
)

type mapVars map[string]scope.Value

func (m mapVars) Value(name string) (scope.Value, bool) {
	v, ok := m[name]
	return v, ok
}

type fakeEval map[string]string

func (f fakeEval) CaptureOutput(script string) (string, error) {
	return f[script], nil
}

func testExpander() *Expander {
	return &Expander{
		Vars: mapVars{
			"name":   scope.ScalarValue("world"),
			"spaced": scope.ScalarValue("a b"),
			"n":      scope.ScalarValue("2"),
			"arr":    scope.ArrayValue("one", "two", "three"),
			"?":      scope.ScalarValue("0"),
		},
		Eval: fakeEval{
			"echo inner": "inner\n",
			"list":       "x y\n",
		},
	}
}

func TestExpandWords(t *testing.T) {
	cases := []struct {
		word string
		want []string
	}{
		{"plain", []string{"plain"}},
		{"$name", []string{"world"}},
		{"pre-$name", []string{"pre-world"}},
		{"${name}s", []string{"worlds"}},
		{`"$name"`, []string{"world"}},
		{`'$name'`, []string{"$name"}},
		{`\$name`, []string{"$name"}},

		// Unquoted expansions split on whitespace; quoted ones do not.
		{"$spaced", []string{"a", "b"}},
		{`"$spaced"`, []string{"a b"}},
		{"x$spaced", []string{"xa", "b"}},

		// Unset variables expand to nothing outside quotes.
		{"$missing", nil},
		{`"$missing"`, []string{""}},
		{"''", []string{""}},

		// Arrays.
		{"@arr", []string{"one", "two", "three"}},
		{`"@arr"`, []string{"one two three"}},
		{"$arr", []string{"one", "two", "three"}},
		{`"$arr"`, []string{"one two three"}},
		{"$arr[1]", []string{"two"}},
		{"@arr[0..1]", []string{"one", "two"}},
		{"$arr[9]", nil},

		// Braces.
		{"a{b,c}d", []string{"abd", "acd"}},
		{"{1..3}", []string{"1", "2", "3"}},
		{"{c..a}", []string{"c", "b", "a"}},
		{"img{1..2}.{png,jpg}", []string{"img1.png", "img1.jpg", "img2.png", "img2.jpg"}},
		{`'{a,b}'`, []string{"{a,b}"}},
		{"{nocomma}", []string{"{nocomma}"}},

		// Command substitution trims trailing newlines and splits
		// outside quotes.
		{"$(echo inner)", []string{"inner"}},
		{"$(list)", []string{"x", "y"}},
		{`"$(list)"`, []string{"x y"}},

		// Arithmetic.
		{"$((2+3*4))", []string{"14"}},
		{"$(( $n + 1 ))", []string{"3"}},
		{"$((7/2))", []string{"3.5"}},

		{"$?", []string{"0"}},
	}

	e := testExpander()
	for _, tc := range cases {
		t.Run(tc.word, func(t *testing.T) {
			got, err := e.ExpandWord(tc.word)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExpandErrors(t *testing.T) {
	e := testExpander()

	cases := []string{
		"$name[0]",  // indexing a scalar
		"$((1/0))",  // division by zero
		"$((2+))",   // malformed arithmetic
		"$arr[x]",   // malformed index
		"${open",    // unterminated reference
	}

	for _, word := range cases {
		t.Run(word, func(t *testing.T) {
			_, err := e.ExpandWord(word)
			require.Error(t, err)
		})
	}

	var typeErr *TypeError
	_, err := e.ExpandWord("$name[0]")
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, "name", typeErr.Name)
}

func TestExpandMultipleWords(t *testing.T) {
	e := testExpander()
	got, err := e.Expand([]string{"cp", "@arr", "$name"})
	require.NoError(t, err)
	assert.Equal(t, []string{"cp", "one", "two", "three", "world"}, got)
}

func TestExpandOne(t *testing.T) {
	e := testExpander()

	got, err := e.ExpandOne("$name.txt")
	require.NoError(t, err)
	assert.Equal(t, "world.txt", got)

	_, err = e.ExpandOne("@arr")
	require.Error(t, err)
}

func TestTilde(t *testing.T) {
	e := &Expander{Home: "/home/u"}

	got, err := e.ExpandWord("~/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"/home/u/notes.txt"}, got)

	got, err = e.ExpandWord("~")
	require.NoError(t, err)
	assert.Equal(t, []string{"/home/u"}, got)

	// Only a leading bare tilde expands.
	got, err = e.ExpandWord("~user/x")
	require.NoError(t, err)
	assert.Equal(t, []string{"~user/x"}, got)
}

func TestGlob(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, name := range []string{"/work/a.txt", "/work/b.txt", "/work/c.log"} {
		require.NoError(t, afero.WriteFile(fs, name, nil, 0644))
	}

	e := &Expander{Fs: fs, Dir: "/work"}

	got, err := e.ExpandWord("*.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, got)

	got, err = e.ExpandWord("/work/*.log")
	require.NoError(t, err)
	assert.Equal(t, []string{"/work/c.log"}, got)

	// No match passes the pattern through unchanged.
	got, err = e.ExpandWord("*.zip")
	require.NoError(t, err)
	assert.Equal(t, []string{"*.zip"}, got)

	// Quoting suppresses globbing.
	got, err = e.ExpandWord(`"*.txt"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"*.txt"}, got)

	got, err = e.ExpandWord(`'*.txt'`)
	require.NoError(t, err)
	assert.Equal(t, []string{"*.txt"}, got)
}

func TestGlobFromExpandedVariable(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/work/a.txt", nil, 0644))

	e := &Expander{
		Fs:   fs,
		Dir:  "/work",
		Vars: mapVars{"pat": scope.ScalarValue("*.txt")},
	}

	got, err := e.ExpandWord("$pat")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, got)

	// The same value inside quotes stays literal.
	got, err = e.ExpandWord(`"$pat"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"*.txt"}, got)
}
