package builtins

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ion-sh/ion/core/interp"
	"github.com/ion-sh/ion/core/scope"
)

func newCtx(t *testing.T) (*interp.Context, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()

	i := interp.New()
	i.Interactive = false
	i.Fs = afero.NewMemMapFs()
	Register(i)

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	i.Stdout = stdout
	i.Stderr = stderr

	return &interp.Context{Interp: i, Stdin: strings.NewReader(""), Stdout: stdout, Stderr: stderr}, stdout, stderr
}

func TestRegisterInstallsAll(t *testing.T) {
	ctx, _, _ := newCtx(t)
	for _, name := range []string{"cd", "pwd", "echo", "let", "export", "alias", "unalias", "source", "jobs", "fg", "bg", "wait", "disown", "which", "exists", "true", "false", "exit"} {
		assert.Contains(t, ctx.Interp.Builtins, name)
	}
}

func TestParseAssignment(t *testing.T) {
	cases := []struct {
		args     []string
		name     string
		value    scope.Value
		hasValue bool
		ok       bool
	}{
		{[]string{"x", "=", "1"}, "x", scope.ScalarValue("1"), true, true},
		{[]string{"x=1"}, "x", scope.ScalarValue("1"), true, true},
		{[]string{"x", "=", "a", "b"}, "x", scope.ScalarValue("a b"), true, true},
		{[]string{"x", "=", "[", "a", "b", "]"}, "x", scope.ArrayValue("a", "b"), true, true},
		{[]string{"x"}, "x", scope.Value{}, false, true},
		{[]string{"x", "y"}, "", scope.Value{}, false, false},
		{nil, "", scope.Value{}, false, false},
	}

	for _, tc := range cases {
		t.Run(strings.Join(tc.args, " "), func(t *testing.T) {
			name, value, hasValue, ok := parseAssignment(tc.args)
			assert.Equal(t, tc.ok, ok)
			if !tc.ok {
				return
			}
			assert.Equal(t, tc.name, name)
			assert.Equal(t, tc.hasValue, hasValue)
			if tc.hasValue {
				assert.Equal(t, tc.value, value)
			}
		})
	}
}

func TestCd(t *testing.T) {
	ctx, stdout, stderr := newCtx(t)
	i := ctx.Interp
	require.NoError(t, i.Fs.MkdirAll("/home/u/project", 0755))
	i.Cwd = "/home/u"
	i.Store.ExportValue("HOME", scope.ScalarValue("/home/u"))

	assert.Equal(t, 0, Cd(ctx, []string{"cd", "project"}))
	assert.Equal(t, "/home/u/project", i.Cwd)
	pwd, _ := i.Store.Get("PWD")
	assert.Equal(t, "/home/u/project", pwd.Join())

	// cd - swaps back and prints the destination.
	assert.Equal(t, 0, Cd(ctx, []string{"cd", "-"}))
	assert.Equal(t, "/home/u", i.Cwd)
	assert.Equal(t, "/home/u\n", stdout.String())

	// No argument goes home.
	i.Cwd = "/home/u/project"
	assert.Equal(t, 0, Cd(ctx, []string{"cd"}))
	assert.Equal(t, "/home/u", i.Cwd)

	assert.Equal(t, 1, Cd(ctx, []string{"cd", "missing"}))
	assert.Contains(t, stderr.String(), "no such directory")
}

func TestPwd(t *testing.T) {
	ctx, stdout, _ := newCtx(t)
	ctx.Interp.Cwd = "/somewhere"

	assert.Equal(t, 0, Pwd(ctx, []string{"pwd"}))
	assert.Equal(t, "/somewhere\n", stdout.String())
}

func TestEcho(t *testing.T) {
	cases := []struct {
		args []string
		want string
	}{
		{[]string{"echo", "a", "b"}, "a b\n"},
		{[]string{"echo"}, "\n"},
		{[]string{"echo", "-n", "a"}, "a"},
		{[]string{"echo", "-e", `a\tb`}, "a\tb\n"},
	}

	for _, tc := range cases {
		t.Run(strings.Join(tc.args, " "), func(t *testing.T) {
			ctx, stdout, _ := newCtx(t)
			assert.Equal(t, 0, Echo(ctx, tc.args))
			assert.Equal(t, tc.want, stdout.String())
		})
	}
}

func TestLet(t *testing.T) {
	ctx, _, _ := newCtx(t)
	i := ctx.Interp

	assert.Equal(t, 0, Let(ctx, []string{"let", "x", "=", "5"}))
	v, ok := i.Store.Get("x")
	require.True(t, ok)
	assert.Equal(t, scope.ScalarValue("5"), v)

	assert.Equal(t, 0, Let(ctx, []string{"let", "arr", "=", "[", "a", "b", "c", "]"}))
	v, _ = i.Store.Get("arr")
	assert.Equal(t, scope.ArrayValue("a", "b", "c"), v)

	assert.Equal(t, 1, Let(ctx, []string{"let", "x"}))
}

func TestLetInsideFunctionStaysLocal(t *testing.T) {
	ctx, _, _ := newCtx(t)
	i := ctx.Interp

	i.RunSource("let x = outer\nfn f\nlet x = inner\nend\nf")

	v, ok := i.Store.Get("x")
	require.True(t, ok)
	assert.Equal(t, "outer", v.Join(), "a let inside a function must not touch the caller's binding")
}

func TestExport(t *testing.T) {
	ctx, stdout, _ := newCtx(t)
	i := ctx.Interp

	i.Store.Set("plain", scope.ScalarValue("v"))
	assert.NotContains(t, i.Store.Environ(), "plain=v")

	assert.Equal(t, 0, Export(ctx, []string{"export", "plain"}))
	assert.Contains(t, i.Store.Environ(), "plain=v")

	assert.Equal(t, 0, Export(ctx, []string{"export", "NEW", "=", "val"}))
	assert.Contains(t, i.Store.Environ(), "NEW=val")

	assert.Equal(t, 0, Export(ctx, []string{"export"}))
	assert.Contains(t, stdout.String(), "NEW=val")
}

func TestAlias(t *testing.T) {
	ctx, stdout, _ := newCtx(t)
	i := ctx.Interp

	assert.Equal(t, 0, Alias(ctx, []string{"alias", "ll", "=", "ls -l"}))
	assert.Equal(t, "ls -l", i.Aliases["ll"])

	stdout.Reset()
	assert.Equal(t, 0, Alias(ctx, []string{"alias"}))
	assert.Equal(t, "alias ll = 'ls -l'\n", stdout.String())

	assert.Equal(t, 0, Unalias(ctx, []string{"unalias", "ll"}))
	assert.Empty(t, i.Aliases)

	assert.Equal(t, 1, Unalias(ctx, []string{"unalias", "ll"}))
}

func TestSource(t *testing.T) {
	ctx, _, _ := newCtx(t)
	i := ctx.Interp
	i.Cwd = "/scripts"
	require.NoError(t, afero.WriteFile(i.Fs, "/scripts/env.ion", []byte("let FROM_SCRIPT = yes\n"), 0644))

	assert.Equal(t, 0, Source(ctx, []string{"source", "env.ion"}))

	// Sourced bindings persist in the calling shell.
	v, ok := i.Store.Get("FROM_SCRIPT")
	require.True(t, ok)
	assert.Equal(t, "yes", v.Join())

	assert.Equal(t, 1, Source(ctx, []string{"source", "missing.ion"}))
}

func TestExists(t *testing.T) {
	ctx, _, _ := newCtx(t)
	i := ctx.Interp
	require.NoError(t, afero.WriteFile(i.Fs, "/data/file.txt", nil, 0644))
	i.Store.Set("set", scope.ScalarValue("v"))
	i.Store.Set("empty", scope.ScalarValue(""))

	cases := []struct {
		args []string
		want int
	}{
		{[]string{"exists", "-s", "set"}, 0},
		{[]string{"exists", "-s", "empty"}, 1},
		{[]string{"exists", "-s", "unset"}, 1},
		{[]string{"exists", "-f", "/data/file.txt"}, 0},
		{[]string{"exists", "-f", "/data/other.txt"}, 1},
		{[]string{"exists", "-d", "/data"}, 0},
		{[]string{"exists", "-d", "/nope"}, 1},
		{[]string{"exists", "--fn", "nofn"}, 1},
		{[]string{"exists", "literal"}, 0},
		{[]string{"exists", ""}, 1},
	}

	for _, tc := range cases {
		t.Run(strings.Join(tc.args, " "), func(t *testing.T) {
			assert.Equal(t, tc.want, Exists(ctx, tc.args))
		})
	}
}

func TestJobsEmpty(t *testing.T) {
	ctx, stdout, _ := newCtx(t)
	assert.Equal(t, 0, JobsCmd(ctx, []string{"jobs"}))
	assert.Equal(t, "", stdout.String())
}

func TestFgNoJob(t *testing.T) {
	ctx, _, stderr := newCtx(t)
	assert.Equal(t, 1, Fg(ctx, []string{"fg"}))
	assert.Contains(t, stderr.String(), "no current job")
}

func TestUnescapeEscapes(t *testing.T) {
	cases := []struct {
		escaped  string
		expected string
	}{
		{"not escaped", "not escaped"},
		{`newline\n`, "newline\n"},
		{`double-escape\\n`, `double-escape\n`},
		{`\011`, "\t"},
		{`\x4A`, "J"},
	}

	for _, tc := range cases {
		t.Run(tc.escaped, func(t *testing.T) {
			assert.Equal(t, tc.expected, unescape(tc.escaped))
		})
	}
}
