package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/models"
)

// ErrSpecNotFound is returned when no row matches.
var ErrSpecNotFound = errors.New("openapi spec not found")

const specColumns = `id, name, title, version, spec_content, file_format, api_key_token, is_active, created_at, updated_at`

// OpenAPISpecRepository handles database operations for OpenAPI specs
type OpenAPISpecRepository struct {
	db *sql.DB
}

// NewOpenAPISpecRepository creates a new repository instance
func NewOpenAPISpecRepository(db *sql.DB) *OpenAPISpecRepository {
	return &OpenAPISpecRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSpec(row rowScanner) (*models.OpenAPISpec, error) {
	spec := &models.OpenAPISpec{}
	err := row.Scan(
		&spec.ID,
		&spec.Name,
		&spec.Title,
		&spec.Version,
		&spec.SpecContent,
		&spec.FileFormat,
		&spec.ApiKeyToken,
		&spec.IsActive,
		&spec.CreatedAt,
		&spec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return spec, nil
}

// Create inserts a new OpenAPI spec into the database
func (r *OpenAPISpecRepository) Create(ctx context.Context, spec *models.OpenAPISpec) (*models.OpenAPISpec, error) {
	query := `
		INSERT INTO openapi_specs (name, title, version, spec_content, file_format, api_key_token, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		spec.Name,
		spec.Title,
		spec.Version,
		spec.SpecContent,
		spec.FileFormat,
		spec.ApiKeyToken,
		spec.IsActive,
	).Scan(&spec.ID, &spec.CreatedAt, &spec.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create openapi spec: %w", err)
	}

	return spec, nil
}

// GetByID retrieves an OpenAPI spec by its ID
func (r *OpenAPISpecRepository) GetByID(ctx context.Context, id int) (*models.OpenAPISpec, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+specColumns+` FROM openapi_specs WHERE id = $1`, id)
	spec, err := scanSpec(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("openapi spec with id %d: %w", id, ErrSpecNotFound)
		}
		return nil, fmt.Errorf("failed to get openapi spec: %w", err)
	}
	return spec, nil
}

// GetByName retrieves an OpenAPI spec by its name
func (r *OpenAPISpecRepository) GetByName(ctx context.Context, name string) (*models.OpenAPISpec, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+specColumns+` FROM openapi_specs WHERE name = $1`, name)
	spec, err := scanSpec(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("openapi spec with name %s: %w", name, ErrSpecNotFound)
		}
		return nil, fmt.Errorf("failed to get openapi spec: %w", err)
	}
	return spec, nil
}

// GetAll retrieves all OpenAPI specs, newest first
func (r *OpenAPISpecRepository) GetAll(ctx context.Context) ([]*models.OpenAPISpec, error) {
	return r.list(ctx, `SELECT `+specColumns+` FROM openapi_specs ORDER BY created_at DESC`)
}

// GetActive retrieves all active OpenAPI specs
func (r *OpenAPISpecRepository) GetActive(ctx context.Context) ([]*models.OpenAPISpec, error) {
	return r.list(ctx, `SELECT `+specColumns+` FROM openapi_specs WHERE is_active = true ORDER BY created_at DESC`)
}

func (r *OpenAPISpecRepository) list(ctx context.Context, query string) ([]*models.OpenAPISpec, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list openapi specs: %w", err)
	}
	defer rows.Close()

	var specs []*models.OpenAPISpec
	for rows.Next() {
		spec, err := scanSpec(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan openapi spec: %w", err)
		}
		specs = append(specs, spec)
	}
	return specs, rows.Err()
}

// SetActive sets the is_active status of an OpenAPI spec
func (r *OpenAPISpecRepository) SetActive(ctx context.Context, id int, active bool) error {
	return r.execOne(ctx, id, `UPDATE openapi_specs SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
}

// UpdateApiKeyToken updates the API key token for an OpenAPI spec
func (r *OpenAPISpecRepository) UpdateApiKeyToken(ctx context.Context, id int, apiKeyToken *string) error {
	return r.execOne(ctx, id, `UPDATE openapi_specs SET api_key_token = $2, updated_at = NOW() WHERE id = $1`, id, apiKeyToken)
}

// Delete removes an OpenAPI spec from the database
func (r *OpenAPISpecRepository) Delete(ctx context.Context, id int) error {
	return r.execOne(ctx, id, `DELETE FROM openapi_specs WHERE id = $1`, id)
}

func (r *OpenAPISpecRepository) execOne(ctx context.Context, id int, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update openapi spec: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("openapi spec with id %d: %w", id, ErrSpecNotFound)
	}
	return nil
}
