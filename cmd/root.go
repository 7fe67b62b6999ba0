// Package cmd holds the pestalert command line.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pestalert/pestalert-go/cmd/analyze"
	"github.com/pestalert/pestalert-go/cmd/check"
	"github.com/pestalert/pestalert-go/cmd/config"
	"github.com/pestalert/pestalert-go/cmd/serve"
	"github.com/pestalert/pestalert-go/internal/buildinfo"
	"github.com/pestalert/pestalert-go/internal/conf"
	"github.com/pestalert/pestalert-go/internal/errors"
	"github.com/pestalert/pestalert-go/internal/logger"
)

// RootCommand creates and returns the root command
func RootCommand(info *buildinfo.Context) *cobra.Command {
	settings := &conf.Settings{}
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "pestalert",
		Short:         "PestAlert crop-health advisory service",
		Version:       info.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	if err := setupFlags(rootCmd, &configFile); err != nil {
		fmt.Fprintf(os.Stderr, "error setting up flags: %v\n", err)
		os.Exit(1)
	}

	configCmd := config.Command()

	rootCmd.AddCommand(
		serve.Command(settings, info),
		analyze.Command(settings),
		check.Command(settings),
		configCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// config subcommands must work without a valid config
		if cmd.Parent() == configCmd {
			return nil
		}
		return initialize(settings, configFile, info)
	}
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		errors.FlushTelemetry(2 * time.Second)
		if err := logger.Global().Flush(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "failed to flush logs: %v\n", err)
		}
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	rootCmd.PersistentFlags().StringVarP(configFile, "config", "c", "", "Path to config.yaml (default: search ., ~/.config/pestalert, /etc/pestalert)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}

// initialize loads settings, sets up logging and optional error telemetry.
func initialize(settings *conf.Settings, configFile string, info *buildinfo.Context) error {
	loaded, err := conf.Load(configFile)
	if err != nil {
		return err
	}
	*settings = *loaded

	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}

	cl, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(cl)

	if settings.Sentry.Enabled {
		if err := errors.InitSentry(settings.Sentry.DSN, settings.Sentry.Environment, info.GetVersion()); err != nil {
			return err
		}
	}
	return nil
}
