package builtins

import (
	"fmt"
	"strconv"

	"github.com/spf13/afero"

	"github.com/ion-sh/ion/core/interp"
)

// Exit as a simple command is a control keyword handled by the
// executor; this fallback covers exit inside a pipeline stage, where
// it only ends that stage.
func Exit(ctx *interp.Context, args []string) int {
	if len(args) > 1 {
		if n, err := strconv.Atoi(args[1]); err == nil {
			return n
		}
	}
	return ctx.Interp.LastStatus
}

// True succeeds.
func True(ctx *interp.Context, args []string) int {
	return 0
}

// False fails.
func False(ctx *interp.Context, args []string) int {
	return 1
}

// Which reports how each name would be resolved: function, builtin, or
// a path on the search path.
func Which(ctx *interp.Context, args []string) int {
	cmd := &SimpleCommand{
		Use:   "which NAME ...",
		Short: "Locate a command.",
	}

	return cmd.Run(ctx, args, func() int {
		i := ctx.Interp
		status := 0
		for _, name := range cmd.Flags().Args() {
			switch {
			case i.Funcs[name] != nil:
				fmt.Fprintf(ctx.Stdout, "%s: function\n", name)
			case i.Builtins[name] != nil:
				fmt.Fprintf(ctx.Stdout, "%s: built-in command\n", name)
			default:
				path, err := i.Layer.LookPath(name, i.Path(), i.Cwd)
				if err != nil {
					fmt.Fprintf(ctx.Stderr, "which: %s: not found\n", name)
					status = 1
					continue
				}
				fmt.Fprintln(ctx.Stdout, path)
			}
		}
		return status
	})
}

// Exists tests shell facts: variables, files, directories, commands,
// and functions. It prints nothing; the status is the answer.
func Exists(ctx *interp.Context, args []string) int {
	cmd := &SimpleCommand{
		Use:   "exists [-bdfs] [--fn] ARG",
		Short: "Test whether a variable, file, command, or function exists.",
	}

	opt := cmd.Flags()
	binary := opt.Bool('b', "test for a binary on the search path")
	dir := opt.Bool('d', "test for a directory")
	file := opt.Bool('f', "test for a file")
	varSet := opt.Bool('s', "test for a non-empty variable")
	fn := opt.BoolLong("fn", rune(0), "test for a function")

	return cmd.Run(ctx, args, func() int {
		i := ctx.Interp
		rest := opt.Args()
		if len(rest) != 1 {
			fmt.Fprintln(ctx.Stderr, "exists: expected exactly one argument")
			return 1
		}
		arg := rest[0]

		holds := false
		switch {
		case *binary:
			_, err := i.Layer.LookPath(arg, i.Path(), i.Cwd)
			holds = err == nil || i.Builtins[arg] != nil
		case *dir:
			ok, err := afero.DirExists(i.Fs, arg)
			holds = err == nil && ok
		case *file:
			ok, err := afero.Exists(i.Fs, arg)
			holds = err == nil && ok
		case *varSet:
			v, ok := i.Store.Get(arg)
			holds = ok && v.Join() != ""
		case *fn:
			holds = i.Funcs[arg] != nil
		default:
			holds = arg != ""
		}

		if holds {
			return 0
		}
		return 1
	})
}

func init() {
	addCmd("exit", Exit)
	addCmd("true", True)
	addCmd("false", False)
	addCmd("which", Which)
	addCmd("exists", Exists)
}
