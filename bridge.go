package main

import (
	"context"
	"database/sql"
	"fmt"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/database"
	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/executor"
	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/loader"
	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/openapi2mcp"
	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/repository"
	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/resources"
	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/server"
	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/services"
)

const serviceName = "openapi-mcp-bridge"

// bridge is everything derived from one loaded document. It is immutable after newBridge
// returns and shared by every session.
type bridge struct {
	cfg       *server.Config
	logger    *zap.Logger
	metrics   *server.Metrics
	doc       *loader.Document
	tools     []openapi2mcp.ToolDefinition
	resources []openapi2mcp.ResourceDescriptor
	engine    *executor.Engine
	mapper    *resources.Mapper
	db        *sql.DB
}

func newBridge(ctx context.Context, cfg *server.Config, logger *zap.Logger) (*bridge, error) {
	b := &bridge{cfg: cfg, logger: logger, metrics: server.NewMetrics()}

	opts := []loader.Option{
		loader.WithRetryPolicy(loader.RetryPolicy{Attempts: cfg.Retry.Attempts, Delay: cfg.Retry.Delay.Duration}),
		loader.WithLogger(logger),
	}
	if cfg.DatabaseURL != "" {
		db, err := database.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open spec database: %w", err)
		}
		b.db = db
		opts = append(opts, loader.WithSpecSource(services.NewSpecService(repository.NewOpenAPISpecRepository(db))))
	}

	doc, err := loader.NewLoader(opts...).Load(ctx, cfg.SpecLocation)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.doc = doc

	policy, err := executor.ParsePolicy(cfg.Validation)
	if err != nil {
		b.Close()
		return nil, err
	}

	credential := cfg.APICredential
	if credential == "" {
		credential = doc.Credential
	}

	b.tools, b.resources = openapi2mcp.Generate(doc.Root)
	b.engine = executor.NewEngine(cfg.APIBaseAddress, b.tools,
		executor.WithCredential(credential),
		executor.WithValidation(policy),
		executor.WithMetrics(b.metrics),
		executor.WithLogger(logger))
	b.mapper = resources.NewMapper(cfg.APIBaseAddress, doc.Root, b.resources,
		resources.WithCredential(credential),
		resources.WithMetrics(b.metrics),
		resources.WithLogger(logger))

	logger.Info("tools generated",
		zap.String("spec", doc.Title),
		zap.Int("tools", len(b.tools)),
		zap.Int("resources", len(b.resources)),
		zap.String("validation", string(policy)))
	return b, nil
}

func (b *bridge) name() string {
	if b.doc.Title != "" {
		return b.doc.Title
	}
	return serviceName
}

// newServer builds one MCP server over the shared engine and mapper.
func (b *bridge) newServer() *mcpserver.MCPServer {
	return openapi2mcp.NewServer(b.name(), b.doc.Version, b.tools, b.resources, b.engine, b.mapper)
}

func (b *bridge) Close() {
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			b.logger.Warn("failed to close database", zap.Error(err))
		}
	}
}
