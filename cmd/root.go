package cmd

import (
	"errors"
	"io/fs"
	"log"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/ion-sh/ion/core"
	"github.com/ion-sh/ion/core/config"
	"github.com/ion-sh/ion/core/scope"
)

var (
	cfgPath string
	logPath string
	command string
)

func loadConfig() (*config.Configuration, error) {
	osFs := afero.NewOsFs()
	if cfgPath != "" {
		configuration, err := config.Load(osFs, cfgPath)
		if errors.Is(err, fs.ErrNotExist) {
			log.Printf("couldn't load config %q", cfgPath)
		}
		return configuration, err
	}

	home, _ := os.UserHomeDir()
	return config.LoadDefault(osFs, home)
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ion [SCRIPT [ARG ...]]",
	Short: "The ion command shell",
	Long:  `An interactive and scriptable command shell with job control.`,
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		configuration, err := loadConfig()
		if err != nil {
			return err
		}
		if logPath != "" {
			configuration.LogFile = logPath
		}

		shell, err := core.NewShell(configuration)
		if err != nil {
			return err
		}

		var status int
		switch {
		case command != "":
			status = shell.RunCommand(command)
		case len(args) > 0:
			shell.Interp.Store.Define("args", scope.ArrayValue(args[1:]...))
			status = shell.RunScript(args[0])
		default:
			status = shell.Run()
		}

		shell.Close()
		os.Exit(status)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config path")
	rootCmd.PersistentFlags().StringVar(&logPath, "log", "", "write interpreter events to this file as JSON lines")
	rootCmd.Flags().StringVarP(&command, "command", "c", "", "run this command string and exit")
}
