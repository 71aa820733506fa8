// translateit serves a card-by-card editor for translating flat YAML
// language files, with progress kept in a local SQLite database.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/yaml-translator/internal/apperr"
	"github.com/MimeLyc/yaml-translator/internal/config"
	"github.com/MimeLyc/yaml-translator/pkg/log"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "translateit",
		Short: "Translate YAML language files one key at a time",
		Long: `translateit serves a browser editor that walks through every key of the
source language file, keeps progress in local storage and delivers the
finished <lang>.yml as a download or to a Telegram chat.

Commands:
  serve     Run the HTTP API and browser UI
  refresh   Mirror every published language file into LANGS_DIR
  export    Write the saved progress of a language to <lang>.yml
  cache     List or clear saved progress`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(),
		newRefreshCmd(),
		newExportCmd(),
		newCacheCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		apperr.Handle(err)
		stop()
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "translateit version %s\n", version)
			fmt.Fprintf(out, "  commit:    %s\n", commit)
			fmt.Fprintf(out, "  built:     %s\n", date)
		},
	}
}

// loadConfig reads the environment, overlays the runtime settings file when
// one exists and installs the global logger.
func loadConfig() (*config.Config, error) {
	var opts []config.Option
	settingsPath := config.RuntimeSettingsFilePath()
	settings, err := config.LoadRuntimeSettingsFile(settingsPath)
	switch {
	case err == nil:
		opts = append(opts, config.WithRuntimeSettings(settings))
	case !os.IsNotExist(err):
		return nil, apperr.NewWithCause(apperr.ErrConfig, "read settings file", err).WithContext("path", settingsPath)
	}

	cfg, err := config.NewFromEnv(opts...)
	if err != nil {
		return nil, apperr.WrapError(err, apperr.ErrConfig, "load configuration")
	}

	level := log.ParseLevel(cfg.System.LogLevel)
	if cfg.System.LogFile == "" {
		log.InitLogger(level)
		return cfg, nil
	}
	fl, err := log.NewFileLogger(cfg.System.LogFile, level)
	if err != nil {
		return nil, apperr.WrapError(err, apperr.ErrConfig, "open log file").WithContext("path", cfg.System.LogFile)
	}
	log.SetGlobal(fl.Logger)
	return cfg, nil
}
