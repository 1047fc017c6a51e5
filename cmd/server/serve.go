package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JonMunkholm/bulkimport/internal/importer"
	"github.com/JonMunkholm/bulkimport/internal/store/postgres"
	"github.com/JonMunkholm/bulkimport/internal/web"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP import API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, logger, err := bootstrap(true)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Server.Port),
		zap.Int("db_max_conns", cfg.Database.MaxConns),
		zap.Int("import_max_concurrent", cfg.Import.MaxConcurrent),
		zap.Int("import_batch_size", cfg.Import.BatchSize),
	)

	pool, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		return withCode(exitDB, err)
	}
	defer pool.Close()
	logger.Info("connected to database", zap.String("name", postgres.DatabaseName(cfg.Database.URL)))

	limiter := importer.NewLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime)
	engine := importer.NewEngine(postgres.New(pool),
		importer.WithLogger(logger),
		importer.WithLimiter(limiter),
		importer.WithDefaults(engineDefaults(cfg)),
	)
	server := web.NewServer(cfg, engine, limiter, logger)

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		gracefulStop(shutdownCtx, server, limiter, logger)
	}()

	if err := server.Start(); !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-done
	logger.Info("server stopped")
	return nil
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// gracefulStop stops accepting requests first, then lets running imports
// commit.
func gracefulStop(ctx context.Context, srv shutdowner, limiter *importer.Limiter, logger *zap.Logger) {
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	drainImports(ctx, limiter, logger)
}

// drainImports waits for imports still holding a transaction.
func drainImports(ctx context.Context, limiter *importer.Limiter, logger *zap.Logger) {
	st := limiter.Status()
	if st.Active == 0 {
		return
	}
	logger.Info("waiting for imports to complete", zap.Int("active", st.Active))
	if err := limiter.WaitForDrain(ctx); err != nil {
		logger.Warn("imports did not complete in time", zap.Error(err))
		return
	}
	logger.Info("all imports completed")
}
