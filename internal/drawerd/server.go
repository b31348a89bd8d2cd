package drawerd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/cashdrawer/internal/httpapi"
	"github.com/MarkoPoloResearchLab/cashdrawer/internal/oplog"
	"github.com/MarkoPoloResearchLab/cashdrawer/internal/store/migrations"
	"github.com/MarkoPoloResearchLab/cashdrawer/pkg/drawer"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// Serve runs the HTTP surface and the background sweeper until ctx is cancelled.
func Serve(ctx context.Context, cfg Config, log *zap.Logger) error {
	store, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = store.close() }()

	service, err := newService(store, cfg, log)
	if err != nil {
		return err
	}
	verifier, err := httpapi.NewTokenVerifier(cfg.JWTSigningKey, cfg.JWTIssuer)
	if err != nil {
		return fmt.Errorf("token verifier: %w", err)
	}

	sweeper := drawer.NewSweeper(service, cfg.SweepInterval)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	router := httpapi.NewRouter(httpapi.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		RequestTimeout: cfg.RequestTimeout,
	}, service, verifier, log)
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: cfg.RequestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("drawerd listening",
			zap.String("addr", cfg.ListenAddr),
			zap.String("store_driver", cfg.StoreDriver),
			zap.Duration("sweep_interval", cfg.SweepInterval),
		)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// SweepOnce auto-closes every stale session and returns what was closed.
func SweepOnce(ctx context.Context, cfg Config, log *zap.Logger) (drawer.SweepResult, error) {
	store, err := openBackend(ctx, cfg, log)
	if err != nil {
		return drawer.SweepResult{}, err
	}
	defer func() { _ = store.close() }()

	service, err := newService(store, cfg, log)
	if err != nil {
		return drawer.SweepResult{}, err
	}
	return service.Sweep(ctx)
}

// Migrate prepares the schema of the configured database.
func Migrate(ctx context.Context, cfg Config, log *zap.Logger) error {
	if isPostgresURL(cfg.DatabaseURL) {
		result, err := migrations.Up(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		log.Info("migrations applied", zap.Bool("changed", result.Applied), zap.Uint("version", result.Version))
		return nil
	}
	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = cleanup() }()
	if err := prepareSchema(gormDB, driver, cfg.DatabaseURL); err != nil {
		return err
	}
	log.Info("schema auto-migrated", zap.String("database", driver))
	return nil
}

func newService(store backend, cfg Config, log *zap.Logger) (*drawer.Service, error) {
	service, err := drawer.NewService(store.store, store.sales, store.activity, func() time.Time { return time.Now().UTC() },
		drawer.WithOperationLogger(oplog.New(log)),
		drawer.WithLocation(cfg.Location()),
		drawer.WithSessionRequiredForMovements(cfg.RequireSession),
	)
	if err != nil {
		return nil, fmt.Errorf("drawer service init: %w", err)
	}
	return service, nil
}
