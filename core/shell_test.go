package core

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ion-sh/ion/core/config"
	"github.com/ion-sh/ion/core/interp"
	"github.com/ion-sh/ion/core/scope"
)

func promptShell(ps1 string) *Shell {
	i := interp.New()
	i.Store.Set(EnvPrompt, scope.ScalarValue(ps1))
	i.Store.ExportValue(EnvHome, scope.ScalarValue("/home/u"))
	i.Cwd = "/home/u/src"
	return &Shell{Interp: i, Config: config.Default()}
}

func TestPromptCollapsesHome(t *testing.T) {
	s := promptShell(`\w `)
	assert.Equal(t, "~/src ", s.Prompt())

	s.Interp.Cwd = "/tmp"
	assert.Equal(t, "/tmp ", s.Prompt())
}

func TestPromptCharacter(t *testing.T) {
	s := promptShell(`\$`)
	assert.Contains(t, []string{"$", "#"}, s.Prompt())
}

func TestPromptFallsBackToConfig(t *testing.T) {
	s := promptShell("")
	assert.NotEmpty(t, s.Prompt())
}
