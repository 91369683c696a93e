package builtins

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/ion-sh/ion/core/interp"
	"github.com/ion-sh/ion/core/scope"
)

// parseAssignment accepts both spaced and glued assignment forms:
// "name = value...", "name=value", and bare "name". Array values are
// bracketed: name = [ a b c ].
func parseAssignment(args []string) (name string, value scope.Value, hasValue bool, ok bool) {
	if len(args) == 0 {
		return "", scope.Value{}, false, false
	}

	if eq := strings.Index(args[0], "="); eq > 0 {
		name = args[0][:eq]
		rest := append([]string{args[0][eq+1:]}, args[1:]...)
		value, ok = assignmentValue(rest)
		return name, value, true, ok
	}

	name = args[0]
	if len(args) == 1 {
		return name, scope.Value{}, false, true
	}
	if args[1] != "=" {
		return "", scope.Value{}, false, false
	}
	value, ok = assignmentValue(args[2:])
	return name, value, true, ok
}

func assignmentValue(words []string) (scope.Value, bool) {
	if len(words) >= 2 && words[0] == "[" && words[len(words)-1] == "]" {
		elems := append([]string(nil), words[1:len(words)-1]...)
		return scope.ArrayValue(elems...), true
	}
	return scope.ScalarValue(strings.Join(words, " ")), true
}

// Let binds a variable in the current scope.
func Let(ctx *interp.Context, args []string) int {
	cmd := &SimpleCommand{
		Use:   "let NAME = VALUE | let NAME = [ VALUE ... ]",
		Short: "Bind a scalar or array variable in the current scope.",
	}

	return cmd.Run(ctx, args, func() int {
		rest := cmd.Flags().Args()
		name, value, hasValue, ok := parseAssignment(rest)
		if !ok || !hasValue {
			fmt.Fprintln(ctx.Stderr, "let: expected NAME = VALUE")
			return 1
		}
		ctx.Interp.Store.Set(name, value)
		return 0
	})
}

// Export marks a variable for child environments, optionally binding
// it at the same time. With no arguments it lists the environment.
func Export(ctx *interp.Context, args []string) int {
	cmd := &SimpleCommand{
		Use:   "export [NAME [= VALUE]]",
		Short: "Mark a variable exported to child processes.",
	}

	return cmd.Run(ctx, args, func() int {
		i := ctx.Interp
		rest := cmd.Flags().Args()
		if len(rest) == 0 {
			for _, kv := range i.Store.Environ() {
				fmt.Fprintln(ctx.Stdout, kv)
			}
			return 0
		}

		name, value, hasValue, ok := parseAssignment(rest)
		if !ok {
			fmt.Fprintln(ctx.Stderr, "export: expected NAME or NAME = VALUE")
			return 1
		}
		if hasValue {
			i.Store.ExportValue(name, value)
		} else {
			i.Store.Export(name)
		}
		return 0
	})
}

// Alias defines a command alias, or lists them all with no arguments.
func Alias(ctx *interp.Context, args []string) int {
	cmd := &SimpleCommand{
		Use:   "alias [NAME [= BODY]]",
		Short: "Define or list command aliases.",
	}

	return cmd.Run(ctx, args, func() int {
		i := ctx.Interp
		rest := cmd.Flags().Args()
		if len(rest) == 0 {
			names := make([]string, 0, len(i.Aliases))
			for name := range i.Aliases {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(ctx.Stdout, "alias %s = '%s'\n", name, i.Aliases[name])
			}
			return 0
		}

		name, value, hasValue, ok := parseAssignment(rest)
		if !ok {
			fmt.Fprintln(ctx.Stderr, "alias: expected NAME = BODY")
			return 1
		}
		if !hasValue {
			body, found := i.Aliases[name]
			if !found {
				fmt.Fprintf(ctx.Stderr, "alias: %s: not found\n", name)
				return 1
			}
			fmt.Fprintf(ctx.Stdout, "alias %s = '%s'\n", name, body)
			return 0
		}
		i.Aliases[name] = value.Join()
		return 0
	})
}

// Unalias removes aliases.
func Unalias(ctx *interp.Context, args []string) int {
	cmd := &SimpleCommand{
		Use:   "unalias NAME ...",
		Short: "Remove command aliases.",
	}

	return cmd.Run(ctx, args, func() int {
		status := 0
		for _, name := range cmd.Flags().Args() {
			if _, ok := ctx.Interp.Aliases[name]; !ok {
				fmt.Fprintf(ctx.Stderr, "unalias: %s: not found\n", name)
				status = 1
				continue
			}
			delete(ctx.Interp.Aliases, name)
		}
		return status
	})
}

// Source runs a script file in the current interpreter, so its
// bindings and function definitions persist.
func Source(ctx *interp.Context, args []string) int {
	cmd := &SimpleCommand{
		Use:   "source FILE",
		Short: "Run a script in the current shell environment.",
	}

	return cmd.Run(ctx, args, func() int {
		i := ctx.Interp
		rest := cmd.Flags().Args()
		if len(rest) != 1 {
			fmt.Fprintln(ctx.Stderr, "source: expected exactly one file")
			return 1
		}

		path := rest[0]
		if !filepath.IsAbs(path) {
			path = filepath.Join(i.Cwd, path)
		}
		raw, err := afero.ReadFile(i.Fs, path)
		if err != nil {
			fmt.Fprintf(ctx.Stderr, "source: %v\n", err)
			return 1
		}

		res := i.RunSource(string(raw))
		return res.Status
	})
}

func init() {
	addCmd("let", Let)
	addCmd("export", Export)
	addCmd("alias", Alias)
	addCmd("unalias", Unalias)
	addCmd("source", Source)
}
