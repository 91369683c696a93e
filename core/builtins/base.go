// Package builtins holds the shell's built-in commands. Builtins run
// in-process; the ones that mutate interpreter state execute on the
// interpreting thread so the next statement sees their effects.
package builtins

import (
	"fmt"
	"io"

	getopt "github.com/pborman/getopt/v2"

	"github.com/ion-sh/ion/core/interp"
)

// All holds every registered builtin keyed by name.
var All = make(map[string]interp.Builtin)

func addCmd(name string, cmd interp.Builtin) {
	All[name] = cmd
}

// Register installs every builtin into the interpreter.
func Register(i *interp.Interp) {
	for name, cmd := range All {
		i.Builtins[name] = cmd
	}
}

type SimpleCommand struct {
	// Use holds a one line usage string
	Use string
	// Short holds a one line description of the command.
	Short string
	// ShowHelp sets whether help is displayed or not.
	// If this is non-nil when Run() is called, then the default help
	// flag isn't added.
	ShowHelp *bool

	flags *getopt.Set
}

// Flags gets the command's flag set.
func (s *SimpleCommand) Flags() *getopt.Set {
	if s.flags == nil {
		s.flags = getopt.New()
	}

	return s.flags
}

// PrintHelp writes help for the command to the given writer.
func (s *SimpleCommand) PrintHelp(w io.Writer) {
	fmt.Fprint(w, "usage: ")
	fmt.Fprintln(w, s.Use)
	fmt.Fprintln(w, s.Short)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	s.Flags().PrintOptions(w)
}

// Run the command, if flag parsing was successful call the callback.
func (s *SimpleCommand) Run(ctx *interp.Context, args []string, callback func() int) int {
	opts := s.Flags()

	// Add help flag if not overridden.
	if s.ShowHelp == nil {
		s.ShowHelp = opts.BoolLong("help", 'h', "show this help and exit")
	}

	if err := opts.Getopt(args, nil); err != nil {
		fmt.Fprintf(ctx.Stderr, "error: %s\n\n", err)
		s.PrintHelp(ctx.Stderr)
		return 1
	}

	if *s.ShowHelp {
		s.PrintHelp(ctx.Stdout)
		return 0
	}

	return callback()
}
