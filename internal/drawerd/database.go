package drawerd

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/MarkoPoloResearchLab/cashdrawer/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/cashdrawer/internal/store/migrations"
	"github.com/MarkoPoloResearchLab/cashdrawer/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/cashdrawer/pkg/drawer"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite"
)

// backend bundles the collaborators drawer.NewService needs.
type backend struct {
	store    drawer.Store
	sales    drawer.SalesTotals
	activity drawer.ActivitySink
	close    func() error
}

func openBackend(ctx context.Context, cfg Config, log *zap.Logger) (backend, error) {
	if cfg.StoreDriver == StoreDriverPgx {
		if _, err := migrations.Up(cfg.DatabaseURL); err != nil {
			return backend{}, err
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return backend{}, fmt.Errorf("pgx pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return backend{}, fmt.Errorf("pgx ping: %w", err)
		}
		store := pgstore.New(pool, pgstore.WithLocation(cfg.Location()))
		log.Info("store ready", zap.String("driver", StoreDriverPgx))
		return backend{store: store, sales: store, activity: store, close: func() error { pool.Close(); return nil }}, nil
	}

	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return backend{}, fmt.Errorf("database open: %w", err)
	}
	if err := prepareSchema(gormDB, driver, cfg.DatabaseURL); err != nil {
		_ = cleanup()
		return backend{}, err
	}
	store := gormstore.New(gormDB, gormstore.WithLocation(cfg.Location()))
	log.Info("store ready", zap.String("driver", StoreDriverGorm), zap.String("database", driver))
	return backend{store: store, sales: store, activity: store, close: cleanup}, nil
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, string, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	var db *gorm.DB
	switch driver {
	case driverPostgres:
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	case driverSQLite:
		db, err = gorm.Open(sqlite.Open(sqlitePath), cfg)
	default:
		return nil, nil, "", fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, "", err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, "", err
	}
	if driver == driverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, driver, nil
}

func isPostgresURL(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func resolveDriver(dsn string) (string, string, error) {
	if isPostgresURL(dsn) {
		return driverPostgres, "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "cashdrawer.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return driverSQLite, sqlitePath, err
	}
	sqlitePath, err := normalizeSQLitePath(dsn)
	return driverSQLite, sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

// prepareSchema auto-migrates SQLite and applies versioned migrations to PostgreSQL.
func prepareSchema(db *gorm.DB, driver string, dsn string) error {
	if driver == driverSQLite {
		if err := gormstore.AutoMigrate(db); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}
	if _, err := migrations.Up(dsn); err != nil {
		return err
	}
	return nil
}
