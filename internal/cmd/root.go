// Package cmd implements the CLI (Command Line Interface) of the application.
//
// analyze - Parse a combat log once and print per combat statistics
// follow  - Watch a combat log and re-render statistics as it grows
// export  - Write the raw log lines of a single combat to a file
package cmd

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"

	"github.com/wolfsblu/stoca/internal/config"
	"github.com/wolfsblu/stoca/pkg/log"
)

// BuildVersion is set at link time.
var BuildVersion = "master"

var cfgFile string

var ErrNoCombatLog = errors.New("no combat log file configured, set analysis.combatlog_file or pass --log")

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "stoca",
	Short: "Incremental combat log analyzer",
	Long:  ``,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	setupCLI()

	if errExecute := rootCmd.Execute(); errExecute != nil {
		os.Exit(1)
	}
}

func setupCLI() {
	rootCmd.Version = BuildVersion
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(followCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/stoca.yml)")
}

// setup loads the configuration and installs the logger. The returned
// closer flushes sentry and the debug log file.
func setup(ctx context.Context) (config.Config, func(), error) {
	conf, errConf := config.Read(cfgFile)
	if errConf != nil {
		return config.Config{}, nil, errConf
	}

	useSentry := false
	if conf.Sentry.Enabled && conf.Sentry.DSN != "" {
		if _, errSentry := log.NewSentryClient(conf.Sentry.DSN, conf.Sentry.Tracing,
			conf.Sentry.SampleRate, BuildVersion, conf.Sentry.Environment); errSentry == nil {
			useSentry = true
		}
	}

	closeLogger := log.MustCreateLogger(ctx, conf.Log.File, conf.Log.Level, useSentry, BuildVersion)

	closer := func() {
		if useSentry {
			sentry.Flush(2 * time.Second)
		}

		closeLogger()
	}

	return conf, closer, nil
}
