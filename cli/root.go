package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"gamesync/internal/config"
	"gamesync/internal/logging"
	"gamesync/internal/tools"
)

// app carries what every command needs once flags are parsed.
type app struct {
	configFile string
	stateDir   string
	logLevel   string
	logFile    string

	cfg    *config.Config
	logger *logrus.Logger
	closer io.Closer
	runner tools.Runner

	stdout io.Writer
	stderr io.Writer
}

// execute runs the CLI and returns the process exit code: 0 when the
// requested run completed, 1 on configuration errors.
func execute(args []string, stdout, stderr io.Writer, runner tools.Runner) int {
	a := &app{runner: runner, stdout: stdout, stderr: stderr}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gms",
		Short: "Sync game screenshots and clips to Immich",
		Long: `gms discovers screenshots and clips from Steam, PS5 and Nintendo Switch 2,
embeds capture time, device and game name into each file, and uploads the
result to an Immich server. Only media newer than the last run is processed.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return a.setup() },
	}

	f := root.PersistentFlags()
	f.StringVar(&a.configFile, "config", "", "config file (default: gms.yaml in . or ~/.config/gms)")
	f.StringVar(&a.stateDir, "state-dir", "", "directory for tracking files and the game name cache")
	f.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	f.StringVar(&a.logFile, "log-file", "", "also write logs to this file, rotated")

	for _, name := range platformOrder {
		root.AddCommand(a.syncCmd(platforms[name]))
	}
	root.AddCommand(a.watchCmd(), a.statusCmd(), a.resolveCmd())
	return root
}

// setup loads configuration, applies global flag overrides and builds the
// logger.
func (a *app) setup() error {
	cfg, err := config.Load(config.Options{ConfigFile: a.configFile})
	if err != nil {
		return err
	}
	if a.stateDir != "" {
		cfg.StateDir = a.stateDir
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFile != "" {
		cfg.Log.File = a.logFile
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closer, err := logging.New(cfg.Log, a.stderr)
	if err != nil {
		return err
	}
	a.cfg, a.logger, a.closer = cfg, logger, closer
	return nil
}

func (a *app) close() {
	if a.closer != nil {
		a.closer.Close()
	}
}
