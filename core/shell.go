// Package core wires the interpreter, job control, and line editor
// into a runnable shell.
package core

import (
	"fmt"
	"io"
	"os"
	"os/user"
	"strings"

	"github.com/abiosoft/readline"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/ion-sh/ion/core/builtins"
	"github.com/ion-sh/ion/core/config"
	"github.com/ion-sh/ion/core/interp"
	"github.com/ion-sh/ion/core/jobs"
	"github.com/ion-sh/ion/core/logger"
	"github.com/ion-sh/ion/core/parser"
	"github.com/ion-sh/ion/core/scope"
)

const (
	EnvHome     = "HOME"
	EnvPWD      = "PWD"
	EnvPath     = "PATH"
	EnvPrompt   = "PS1"
	EnvHostname = "HOSTNAME"
	EnvUser     = "USER"
)

var promptUserHost = color.New(color.FgGreen, color.Bold)

type Shell struct {
	Interp   *interp.Interp
	Config   *config.Configuration
	Readline *readline.Instance

	toClose []io.Closer
}

// NewShell builds a shell over the real OS with the given
// configuration.
func NewShell(cfg *config.Configuration) (*Shell, error) {
	i := interp.New()
	i.Interactive = isatty.IsTerminal(os.Stdin.Fd())
	builtins.Register(i)

	s := &Shell{Interp: i, Config: cfg}
	s.initEnv()

	for name, body := range cfg.Aliases {
		i.Aliases[name] = body
	}

	if cfg.LogFile != "" {
		fd, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			return nil, err
		}
		s.toClose = append(s.toClose, fd)
		i.Log = logger.NewJSONLines(fd)
	}

	rlCfg := &readline.Config{
		Stdin:       readline.NewCancelableStdin(os.Stdin),
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		HistoryFile: cfg.HistoryPath(i.Home()),
		FuncIsTerminal: func() bool {
			return i.Interactive
		},
	}
	if err := rlCfg.Init(); err != nil {
		return nil, err
	}
	rl, err := readline.NewEx(rlCfg)
	if err != nil {
		return nil, err
	}
	s.Readline = rl
	s.toClose = append(s.toClose, rl)

	return s, nil
}

// initEnv fills the environment gaps a login shell expects.
func (s *Shell) initEnv() {
	i := s.Interp
	store := i.Store

	if _, ok := store.Get(EnvPath); !ok {
		store.ExportValue(EnvPath, scope.ScalarValue(s.Config.DefaultPath))
	}
	if _, ok := store.Get(EnvHome); !ok {
		if u, err := user.Current(); err == nil {
			store.ExportValue(EnvHome, scope.ScalarValue(u.HomeDir))
		}
	}
	if _, ok := store.Get(EnvUser); !ok {
		if u, err := user.Current(); err == nil {
			store.ExportValue(EnvUser, scope.ScalarValue(u.Username))
		}
	}
	if _, ok := store.Get(EnvHostname); !ok {
		if host, err := os.Hostname(); err == nil {
			store.ExportValue(EnvHostname, scope.ScalarValue(host))
		}
	}
	if _, ok := store.Get(EnvPrompt); !ok {
		store.Set(EnvPrompt, scope.ScalarValue(s.Config.Prompt))
	}
	store.ExportValue(EnvPWD, scope.ScalarValue(i.Cwd))
}

func (s *Shell) getenv(name string) string {
	v, _ := s.Interp.Store.Get(name)
	return v.Join()
}

// Prompt renders PS1. Escapes: \u user, \h host, \w working directory
// with the home prefix collapsed to ~, \$ prompt character.
func (s *Shell) Prompt() string {
	prompt := s.getenv(EnvPrompt)
	if prompt == "" {
		prompt = s.Config.Prompt
	}

	userHost := s.getenv(EnvUser) + "@" + s.getenv(EnvHostname)
	if strings.Contains(prompt, `\u@\h`) {
		prompt = strings.ReplaceAll(prompt, `\u@\h`, promptUserHost.Sprint(userHost))
	} else {
		prompt = strings.ReplaceAll(prompt, `\u`, s.getenv(EnvUser))
		prompt = strings.ReplaceAll(prompt, `\h`, s.getenv(EnvHostname))
	}

	pwd := s.Interp.Cwd
	if home := s.Interp.Home(); home != "" && strings.HasPrefix(pwd, home) {
		pwd = "~" + strings.TrimPrefix(pwd, home)
	}
	prompt = strings.ReplaceAll(prompt, `\w`, pwd)

	if os.Getuid() == 0 {
		prompt = strings.ReplaceAll(prompt, `\$`, "#")
	} else {
		prompt = strings.ReplaceAll(prompt, `\$`, "$")
	}

	return prompt
}

// Run is the interactive loop. It returns the exit status.
func (s *Shell) Run() int {
	if s.Interp.Interactive {
		if err := jobs.BecomeForegroundGroup(); err != nil {
			fmt.Fprintf(os.Stderr, "ion: cannot take terminal control: %v\n", err)
		}
	}
	s.Interp.Jobs.StartMonitor()

	for {
		for _, j := range s.Interp.Jobs.ReapFinished() {
			fmt.Fprintln(s.Readline, s.Interp.Jobs.Describe(j))
		}

		s.Readline.SetPrompt(s.Prompt())
		line, err := s.Readline.Readline()
		switch {
		case err == io.EOF:
			return s.Interp.LastStatus

		case err == readline.ErrInterrupt:
			continue

		case err != nil:
			fmt.Fprintf(os.Stderr, "ion: read: %v\n", err)
			return 1

		case strings.TrimSpace(line) == "":
			continue
		}

		src, ok := s.readContinuation(line)
		if !ok {
			continue
		}

		res := s.Interp.RunSource(src)
		if res.Ctrl == interp.CtrlExit {
			return res.Status
		}
	}
}

// readContinuation keeps reading lines while the input parses as an
// unterminated block, the way a terminal "if" prompts for its body.
func (s *Shell) readContinuation(first string) (string, bool) {
	src := first
	for {
		_, err := parser.Parse(src)
		if err == nil || !parser.Unterminated(err) {
			return src, true
		}

		s.Readline.SetPrompt("> ")
		line, rerr := s.Readline.Readline()
		switch {
		case rerr == io.EOF:
			fmt.Fprintf(os.Stderr, "ion: %v\n", err)
			return "", false
		case rerr == readline.ErrInterrupt:
			return "", false
		case rerr != nil:
			fmt.Fprintf(os.Stderr, "ion: read: %v\n", rerr)
			return "", false
		}
		src += "\n" + line
	}
}

// RunScript runs a script file non-interactively.
func (s *Shell) RunScript(path string) int {
	raw, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ion: %v\n", err)
		return 1
	}
	return s.RunCommand(string(raw))
}

// RunCommand runs one script string non-interactively and waits for
// its background jobs.
func (s *Shell) RunCommand(src string) int {
	s.Interp.Interactive = false
	s.Interp.Jobs.StartMonitor()

	res := s.Interp.RunSource(src)
	if res.Ctrl != interp.CtrlExit {
		s.Interp.Jobs.WaitAll()
	}
	return res.Status
}

func (s *Shell) Close() error {
	var lastErr error
	for _, c := range s.toClose {
		if err := c.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
