package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/warewise/rule-engine/analysis"
	"github.com/warewise/rule-engine/api"
	"github.com/warewise/rule-engine/config"
	"github.com/warewise/rule-engine/engine"
	"github.com/warewise/rule-engine/factory"
	"github.com/warewise/rule-engine/logging"
	"github.com/warewise/rule-engine/notify"
	"github.com/warewise/rule-engine/store/sqlite"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API.

Opens the SQLite database (seeding the default rules on first start),
connects to Redis when enabled, and serves until SIGINT/SIGTERM.`,
		Example: `  $ warewise serve
  $ warewise serve --config ./warewise.yaml
  $ WAREWISE_SERVER_PORT=9000 warewise serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(cfg.App.LogLevel, cfg.App.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	// Initialize store
	if dir := filepath.Dir(cfg.Database.Path); cfg.Database.Path != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	if err := seedRules(ctx, store, logger); err != nil {
		return err
	}

	eng := engine.New(
		engine.WithLogger(logger.Named("engine")),
		engine.WithPrecedence(cfg.Engine.PrecedenceEnabled),
	)
	opts := []analysis.Option{
		analysis.WithLogger(logger.Named("analysis")),
		analysis.WithBudget(cfg.Engine.AnalysisTimeout),
	}
	if cfg.Redis.Enabled {
		pub, err := notify.NewRedisPublisher(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Channel)
		if err != nil {
			return err
		}
		defer pub.Close()
		opts = append(opts, analysis.WithPublisher(pub))
		logger.Info("publishing analysis notifications", zap.String("channel", pub.Channel()))
	}

	handler := api.NewHandler(store, analysis.NewService(store, eng, opts...))
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("env", cfg.App.Env),
			zap.Bool("precedence", cfg.Engine.PrecedenceEnabled))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// seedRules stores the default catalogue when the rules table is empty.
func seedRules(ctx context.Context, store *sqlite.Store, logger *zap.Logger) error {
	existing, err := store.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to list rules: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}
	for _, r := range factory.DefaultRuleSet() {
		if err := store.SaveRule(ctx, factory.ToDefinition(r)); err != nil {
			return fmt.Errorf("failed to seed rule %s: %w", r.ID, err)
		}
	}
	logger.Info("seeded default rules", zap.Int("count", len(factory.DefaultRuleSet())))
	return nil
}
