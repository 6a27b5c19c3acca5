package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sciansa/pdb-repair/repairsvc/config"
	"github.com/sciansa/pdb-repair/repairsvc/pipeline"
	"github.com/sciansa/pdb-repair/repairsvc/server"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "pdb-repaird",
	Short: "HTTP service that repairs PDB files with FoldX",
	Long: `pdb-repaird exposes a single POST endpoint that prepares a protein
structure file for FoldX, runs the external RepairPDB command on it and
uploads the repaired result back to the artifact store.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func run(ctx context.Context) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger, err := buildLogger(cfg.Telemetry)
	if err != nil {
		return err
	}

	factory := pipeline.NewFactory(cfg, logger)
	orch, cleanup, err := factory.CreateOrchestrator(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := cleanup(); err != nil {
			logger.Warn().Err(err).Msg("pipeline cleanup failed")
		}
	}()

	srv, err := server.New(orch, cfg.Service, logger)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

func buildLogger(cfg config.TelemetryConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("telemetry.log_level: %w", err)
	}
	if verbose {
		level = zerolog.DebugLevel
	}

	var logger zerolog.Logger
	if cfg.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Str("service", "pdb-repaird").Logger(), nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
