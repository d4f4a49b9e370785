package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
)

// Connect opens and pings a PostgreSQL connection pool.
func Connect(ctx context.Context, databaseURL string, logger *zap.Logger) (*sql.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is not set")
	}
	if !strings.HasPrefix(databaseURL, "postgres://") && !strings.HasPrefix(databaseURL, "postgresql://") {
		return nil, fmt.Errorf("database URL must be a PostgreSQL connection string starting with 'postgres://' or 'postgresql://'")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	logger.Info("database connected", zap.String("url", strings.Split(databaseURL, "@")[0]+"@[HIDDEN]"))
	return db, nil
}

// Open connects and runs migrations.
func Open(ctx context.Context, databaseURL string, logger *zap.Logger) (*sql.DB, error) {
	db, err := Connect(ctx, databaseURL, logger)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
