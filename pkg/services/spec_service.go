package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/models"
	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/spec"
)

// SpecRepository is the storage SpecService works against.
type SpecRepository interface {
	Create(ctx context.Context, spec *models.OpenAPISpec) (*models.OpenAPISpec, error)
	GetByName(ctx context.Context, name string) (*models.OpenAPISpec, error)
	GetAll(ctx context.Context) ([]*models.OpenAPISpec, error)
	GetActive(ctx context.Context) ([]*models.OpenAPISpec, error)
	SetActive(ctx context.Context, id int, active bool) error
	UpdateApiKeyToken(ctx context.Context, id int, apiKeyToken *string) error
	Delete(ctx context.Context, id int) error
}

// SpecService manages OpenAPI documents kept in the database
type SpecService struct {
	repo SpecRepository
}

// NewSpecService creates a new spec service
func NewSpecService(repo SpecRepository) *SpecService {
	return &SpecService{repo: repo}
}

// Fetch returns the active spec stored under name.
func (s *SpecService) Fetch(ctx context.Context, name string) (*models.OpenAPISpec, error) {
	stored, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if !stored.Active() {
		return nil, fmt.Errorf("spec '%s' is not active", name)
	}
	return stored, nil
}

// ImportFile reads a spec file and stores it under name.
func (s *SpecService) ImportFile(ctx context.Context, path, name string, apiKeyToken *string) (*models.OpenAPISpec, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec file: %w", err)
	}
	if name == "" {
		name = NameFromPath(path)
	}
	return s.Import(ctx, name, content, DetectFormat(path, content), apiKeyToken)
}

// Import parses content to make sure it is a usable document and stores it.
func (s *SpecService) Import(ctx context.Context, name string, content []byte, format string, apiKeyToken *string) (*models.OpenAPISpec, error) {
	root, err := spec.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse OpenAPI spec: %w", err)
	}
	if root.Kind != spec.KindObject {
		return nil, fmt.Errorf("failed to parse OpenAPI spec: document root is a %s, not a mapping", root.Kind)
	}

	stored := models.NewOpenAPISpec(name, string(content), format)
	if title := root.Path("info", "title").StringOr(""); title != "" {
		stored.Title = &title
	}
	if version := root.Path("info", "version").StringOr(""); version != "" {
		stored.Version = &version
	}
	stored.ApiKeyToken = apiKeyToken

	created, err := s.repo.Create(ctx, stored)
	if err != nil {
		return nil, fmt.Errorf("failed to save spec to database: %w", err)
	}
	return created, nil
}

// List returns all specs, or only the active ones.
func (s *SpecService) List(ctx context.Context, activeOnly bool) ([]*models.OpenAPISpec, error) {
	if activeOnly {
		return s.repo.GetActive(ctx)
	}
	return s.repo.GetAll(ctx)
}

// SetActive activates or deactivates a spec by ID
func (s *SpecService) SetActive(ctx context.Context, id int, active bool) error {
	return s.repo.SetActive(ctx, id, active)
}

// SetToken updates the API key token for a spec by ID; an empty token clears it.
func (s *SpecService) SetToken(ctx context.Context, id int, token string) error {
	if token == "" {
		return s.repo.UpdateApiKeyToken(ctx, id, nil)
	}
	return s.repo.UpdateApiKeyToken(ctx, id, &token)
}

// Delete deletes a spec by ID
func (s *SpecService) Delete(ctx context.Context, id int) error {
	return s.repo.Delete(ctx, id)
}

// DetectFormat guesses "json" or "yaml" from the file extension, then content.
func DetectFormat(path string, content []byte) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	}
	if trimmed := strings.TrimSpace(string(content)); strings.HasPrefix(trimmed, "{") {
		return "json"
	}
	return "yaml"
}

// NameFromPath derives a spec name from a file name.
func NameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}
