package database

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

const createOpenAPISpecsTable = `
CREATE TABLE IF NOT EXISTS openapi_specs (
	id SERIAL PRIMARY KEY,
	name VARCHAR(255) UNIQUE NOT NULL,
	title VARCHAR(500),
	version VARCHAR(100),
	spec_content TEXT NOT NULL,
	file_format VARCHAR(10) DEFAULT 'yaml',
	api_key_token VARCHAR(500),
	is_active BOOLEAN DEFAULT true,
	created_at TIMESTAMP(6) DEFAULT NOW(),
	updated_at TIMESTAMP(6) DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_openapi_specs_is_active ON openapi_specs(is_active);
`

// RunMigrations creates the openapi_specs table and its indexes when missing.
func RunMigrations(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := db.ExecContext(ctx, createOpenAPISpecsTable); err != nil {
		return fmt.Errorf("migration failed: create openapi_specs table: %w", err)
	}
	logger.Debug("migrations applied", zap.String("table", "openapi_specs"))
	return nil
}
