package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/database"
	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/models"
	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/repository"
	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/services"
)

// SpecConfig defines how each spec should be imported
type SpecConfig struct {
	File   string `json:"file" yaml:"file"`
	Name   string `json:"name" yaml:"name"`
	Token  string `json:"token,omitempty" yaml:"token,omitempty"`
	Active *bool  `json:"active,omitempty" yaml:"active,omitempty"`
}

// SeedConfig defines the seeding configuration
type SeedConfig struct {
	Specs []SpecConfig `json:"specs" yaml:"specs"`
}

type importer interface {
	ImportFile(ctx context.Context, path, name string, apiKeyToken *string) (*models.OpenAPISpec, error)
	SetActive(ctx context.Context, id int, active bool) error
}

func loadSeedConfig(path string) (*SeedConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var config SeedConfig
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		err = json.Unmarshal(data, &config)
	} else {
		err = yaml.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &config, nil
}

// seed imports every entry. Spec files are resolved relative to baseDir. Failures are reported
// and skipped; the number of imported specs is returned.
func seed(ctx context.Context, svc importer, config *SeedConfig, baseDir string, out io.Writer) int {
	imported := 0
	for _, entry := range config.Specs {
		file := entry.File
		if !filepath.IsAbs(file) {
			file = filepath.Join(baseDir, file)
		}
		var token *string
		if entry.Token != "" {
			t := os.ExpandEnv(entry.Token)
			token = &t
		}

		stored, err := svc.ImportFile(ctx, file, entry.Name, token)
		if err != nil {
			fmt.Fprintf(out, "Warning: failed to import %s: %v\n", entry.File, err)
			continue
		}

		status := "active"
		if entry.Active != nil && !*entry.Active {
			if err := svc.SetActive(ctx, stored.ID, false); err != nil {
				fmt.Fprintf(out, "Warning: failed to deactivate %s: %v\n", stored.Name, err)
			} else {
				status = "inactive"
			}
		}
		fmt.Fprintf(out, "✓ Imported %s as '%s' (%s)\n", entry.File, stored.Name, status)
		imported++
	}
	return imported
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: seed-database <seed.yaml>")
		os.Exit(2)
	}
	configFile := os.Args[1]

	config, err := loadSeedConfig(configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	ctx := context.Background()
	db, err := database.Open(ctx, os.Getenv("DATABASE_URL"), logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	svc := services.NewSpecService(repository.NewOpenAPISpecRepository(db))
	fmt.Printf("Seeding database with %d specs from %s...\n", len(config.Specs), configFile)
	imported := seed(ctx, svc, config, filepath.Dir(configFile), os.Stdout)
	fmt.Printf("\nSeeding completed: %d of %d specs imported\n", imported, len(config.Specs))
	if imported < len(config.Specs) {
		os.Exit(1)
	}
}
