package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/georgepadayatti/signflow/config"
	"github.com/georgepadayatti/signflow/server"
	"github.com/georgepadayatti/signflow/store"
)

const shutdownTimeout = 30 * time.Second

// ServeCommand implements the 'serve' command.
func ServeCommand(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Configuration file")
	fs.Usage = func() {
		fmt.Printf("Usage: %s serve [options]\n\n", os.Args[0])
		fmt.Println("Run the HTTP API. DATABASE_URL selects Postgres, otherwise documents are kept in memory.")
		fmt.Println("")
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		osExit(1)
		return
	}

	cfg, logger, err := loadSettings(*cfgPath)
	if exitOnError(err) {
		return
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	exitOnError(serve(ctx, cfg, logger))
}

// stores opens the configured persistence. The returned func releases it.
func stores(ctx context.Context, cfg *config.AppConfig, logger logrus.FieldLogger) (store.Repository, store.AuditLog, func(), error) {
	if cfg.Database.URL == "" {
		logger.Warn("no database configured, documents are kept in memory")
		return store.NewMemory(), store.NewMemoryAudit(), func() {}, nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid database url: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if cfg.Database.Migrate {
		if err := store.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
	}
	logger.Info("database connection established")
	return store.NewPostgres(pool), store.NewPostgresAuditSink(pool), pool.Close, nil
}

func serve(ctx context.Context, cfg *config.AppConfig, logger *logrus.Logger) error {
	gin.SetMode(cfg.Server.Mode)

	repo, trail, closeStores, err := stores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	exporter, err := newExporter(cfg, logger)
	if err != nil {
		return err
	}
	s, err := server.New(
		server.Deps{Repo: repo, Audit: trail, Exporter: exporter},
		server.WithLogger(logger),
		server.WithDirectory(cfg.Directory()),
	)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      s.Router(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.Server.Addr).Info("signflow listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("signflow stopped")
	return nil
}
