package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JonMunkholm/bulkimport/internal/config"
	"github.com/JonMunkholm/bulkimport/internal/importer"
	"github.com/JonMunkholm/bulkimport/internal/logging"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "bulkimport",
		Short:         "Bulk customer and screw import from CSV and spreadsheets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newImportCmd())
	return cmd
}

// Execute runs the root command and exits with the mapped code on failure.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(exitCode(err))
	}
}

// bootstrap loads .env and the environment configuration and builds the
// process logger. Without needDatabase, DATABASE_URL may be unset.
func bootstrap(needDatabase bool) (*config.Config, *zap.Logger, error) {
	// Overload lets a local .env win over the shell environment.
	envErr := godotenv.Overload()

	load := config.Load
	if !needDatabase {
		load = config.LoadWithoutDatabase
	}
	cfg, err := load()
	if err != nil {
		return nil, nil, withCode(exitUsage, err)
	}

	logger, err := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, withCode(exitUsage, errors.Wrap(err, "logger setup"))
	}

	if envErr != nil {
		logger.Debug("no .env file found, using environment variables")
	} else {
		logger.Debug("loaded .env file (overwriting existing env vars)")
	}
	return cfg, logger, nil
}

// engineDefaults carries the configured import defaults into the engine.
func engineDefaults(cfg *config.Config) importer.Defaults {
	return importer.Defaults{
		BatchSize: cfg.Import.BatchSize,
		MatchMode: importer.MatchMode(cfg.Import.MatchMode),
		DayFirst:  cfg.Import.DateDayFirst,
		Timeout:   cfg.Import.Timeout,
	}
}
