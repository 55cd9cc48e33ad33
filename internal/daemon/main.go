package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jsherman999/fixihub/internal/api"
	"github.com/jsherman999/fixihub/internal/config"
	"github.com/jsherman999/fixihub/internal/db"
	"github.com/jsherman999/fixihub/internal/feed"
	"github.com/jsherman999/fixihub/internal/logging"
	"github.com/jsherman999/fixihub/internal/push"
	"github.com/jsherman999/fixihub/internal/store"
)

func Main() {
	var cfgPath string

	root := &cobra.Command{Use: "fixihubd", Short: "fixihub daemon (pages + live update streams)"}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (yaml)")

	root.AddCommand(migrateCmd(&cfgPath))
	root.AddCommand(serveCmd(&cfgPath))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup(cfgPath string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func migrateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*cfgPath)
			if err != nil {
				return err
			}
			if err := cfg.RequireDB(); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			dbConn, err := db.Open(ctx, cfg.DB.DSN)
			if err != nil {
				return err
			}
			defer dbConn.Close()
			if err := db.ApplyMigrations(ctx, dbConn); err != nil {
				return err
			}
			logger.Info("migrations applied")
			return nil
		},
	}
}

// openStore returns the Postgres store when a DSN is configured and the
// in-memory one otherwise. closeFn is never nil.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, func(), error) {
	if cfg.DB.DSN == "" {
		logger.Info("store: in-memory (state is lost on restart)")
		return store.NewMemory(cfg.Events.MaxLog), func() {}, nil
	}
	dbConn, err := db.Open(ctx, cfg.DB.DSN)
	if err != nil {
		return nil, nil, err
	}
	if err := db.ApplyMigrations(ctx, dbConn); err != nil {
		dbConn.Close()
		return nil, nil, err
	}
	logger.Info("store: postgres")
	return store.NewPostgres(dbConn, logger), dbConn.Close, nil
}

func hubOptions(cfg *config.Config, logger *slog.Logger) []push.Option {
	return []push.Option{
		push.WithLogger(logger),
		push.WithWriteTimeout(cfg.Stream.WriteTimeout),
		push.WithHeartbeat(cfg.Stream.HeartbeatInterval),
		push.WithMaxSubscribers(cfg.Stream.MaxSubscribers),
	}
}

func serveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*cfgPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			st, closeStore, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			// Two independent hubs: one per live region of the page.
			counterHub := push.NewHub("counter", hubOptions(cfg, logger)...)
			timelineHub := push.NewHub("timeline", hubOptions(cfg, logger)...)

			bgCtx, bgCancel := context.WithCancel(context.Background())
			defer bgCancel()
			feedDone := feed.New(st, timelineHub, logger).Start(bgCtx)

			h := api.New(cfg, logger, st, counterHub, timelineHub)
			srv := &http.Server{
				Addr:              cfg.HTTP.Listen,
				Handler:           h.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errc := make(chan error, 1)
			go func() {
				logger.Info("fixihubd listening", "addr", cfg.HTTP.Listen)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errc <- err
				}
			}()

			select {
			case <-ctx.Done():
				logger.Info("shutting down")
			case err := <-errc:
				return fmt.Errorf("listen: %w", err)
			}

			// streams never finish on their own; release them before Shutdown waits
			counterHub.Close()
			timelineHub.Close()
			bgCancel()
			<-feedDone

			shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return nil
		},
	}
}
