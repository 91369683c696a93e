// Package config loads the shell's configuration: prompt, history,
// default search path, and startup aliases.
package config

import (
	_ "embed"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

//go:embed default/config.yaml
var defaultConfigData []byte

const ConfigurationName = "config.yaml"

type Configuration struct {
	// Prompt is a PS1-style template. Escapes: \u user, \h host,
	// \w working directory, \$ prompt character.
	Prompt string `json:"prompt" validate:"required"`

	// HistoryFile is where the line editor persists history, relative
	// to the home directory unless absolute.
	HistoryFile string `json:"history_file"`

	// DefaultPath seeds PATH when the environment has none.
	DefaultPath string `json:"default_path" validate:"required"`

	// Aliases are installed before any input is read.
	Aliases map[string]string `json:"aliases"`

	// LogFile receives interpreter events as JSON lines; empty
	// disables event logging.
	LogFile string `json:"log_file"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})

	return validate.Struct(c)
}

// HistoryPath resolves the history file against home.
func (c *Configuration) HistoryPath(home string) string {
	if c.HistoryFile == "" {
		return ""
	}
	if filepath.IsAbs(c.HistoryFile) {
		return c.HistoryFile
	}
	return filepath.Join(home, c.HistoryFile)
}

// Default returns the embedded configuration.
func Default() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}

// Load reads a configuration file, filling unset fields from the
// defaults. Given a directory, it looks for config.yaml inside it.
func Load(fs afero.Fs, path string) (*Configuration, error) {
	if ok, err := afero.IsDir(fs, path); err == nil && ok {
		path = filepath.Join(path, ConfigurationName)
	}

	contents, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}

	out := Default()
	if err := yaml.UnmarshalStrict(contents, out); err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadDefault looks for the user's configuration in the conventional
// location, falling back to the embedded defaults when absent.
func LoadDefault(fs afero.Fs, home string) (*Configuration, error) {
	path := filepath.Join(home, ".config", "ion", ConfigurationName)
	cfg, err := Load(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}
