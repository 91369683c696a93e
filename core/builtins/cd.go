package builtins

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/ion-sh/ion/core/interp"
	"github.com/ion-sh/ion/core/scope"
)

// Cd changes the working directory. With no argument it goes home;
// "cd -" swaps back to the previous directory and prints it.
func Cd(ctx *interp.Context, args []string) int {
	cmd := &SimpleCommand{
		Use:   "cd [DIR]",
		Short: "Change the working directory.",
	}

	return cmd.Run(ctx, args, func() int {
		i := ctx.Interp
		rest := cmd.Flags().Args()

		var target string
		switch {
		case len(rest) == 0:
			target = i.Home()
			if target == "" {
				fmt.Fprintln(ctx.Stderr, "cd: HOME not set")
				return 1
			}
		case rest[0] == "-":
			if i.OldCwd == "" {
				fmt.Fprintln(ctx.Stderr, "cd: OLDPWD not set")
				return 1
			}
			target = i.OldCwd
			fmt.Fprintln(ctx.Stdout, target)
		default:
			target = rest[0]
		}

		if !filepath.IsAbs(target) {
			target = filepath.Join(i.Cwd, target)
		}
		target = filepath.Clean(target)

		ok, err := afero.DirExists(i.Fs, target)
		if err != nil || !ok {
			fmt.Fprintf(ctx.Stderr, "cd: %s: no such directory\n", target)
			return 1
		}

		i.OldCwd = i.Cwd
		i.Cwd = target
		i.Store.ExportValue("OLDPWD", scope.ScalarValue(i.OldCwd))
		i.Store.ExportValue("PWD", scope.ScalarValue(target))
		return 0
	})
}

// Pwd prints the working directory.
func Pwd(ctx *interp.Context, args []string) int {
	cmd := &SimpleCommand{
		Use:   "pwd",
		Short: "Print the working directory.",
	}

	return cmd.Run(ctx, args, func() int {
		fmt.Fprintln(ctx.Stdout, ctx.Interp.Cwd)
		return 0
	})
}

func init() {
	addCmd("cd", Cd)
	addCmd("pwd", Pwd)
}
