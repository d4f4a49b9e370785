package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/chat"
	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/openapi2mcp"
	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/server"
)

var version = "dev"

var (
	configPath string
	verbose    bool
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "openapi-mcp-bridge",
	Short: "Expose an OpenAPI-described REST API as MCP tools",
	Long: `openapi-mcp-bridge loads an OpenAPI document, turns its operations into MCP tools and
read-only resources, and executes tool calls as HTTP requests against the API.

Without a subcommand it behaves like "serve".`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve MCP over stdio or streamable HTTP",
	RunE:  runServe,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the API through an LLM that calls the generated tools",
	RunE:  runChat,
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Print the tools and resources generated from the document",
	RunE:  runTools,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	server.RegisterFlags(rootCmd.PersistentFlags())

	chatCmd.Flags().BoolVar(&jsonOutput, "json", false, "print raw model output instead of the cleaned reply")

	rootCmd.AddCommand(serveCmd, chatCmd, toolsCmd)
}

// setup loads configuration and builds the logger. quiet raises the default level to warn.
func setup(cmd *cobra.Command, quiet bool) (*server.Config, *zap.Logger, error) {
	cfg, err := server.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	cfg.ApplyFlags(cmd.Flags())
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level := cfg.Log.Level
	switch {
	case verbose:
		level = "debug"
	case quiet && !cmd.Flags().Changed("log-level"):
		level = "warn"
	}
	logger, err := server.NewLogger(level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd, false)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	cfg.LogConfiguration(logger)

	ctx, stop := signalContext()
	defer stop()

	b, err := newBridge(ctx, cfg, logger)
	if err != nil {
		server.LogError(logger, err)
		return err
	}
	defer b.Close()

	if cfg.TransportMode == server.TransportHTTP {
		return serveHTTP(ctx, b)
	}
	logger.Info("serving MCP over stdio", zap.String("spec", b.name()))
	return openapi2mcp.ServeStdio(b.newServer())
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd, true)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	if cfg.Chat.APIKey == "" {
		return fmt.Errorf("GROQ_API_KEY (or chat.api_key) is required for chat")
	}

	ctx, stop := signalContext()
	defer stop()

	b, err := newBridge(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	client := chat.NewOpenAIClient(chat.ClientConfig{
		APIKey:      cfg.Chat.APIKey,
		BaseURL:     cfg.Chat.BaseURL,
		Model:       cfg.Chat.Model,
		Temperature: cfg.Chat.Temperature,
		MaxTokens:   cfg.Chat.MaxTokens,
		TopP:        cfg.Chat.TopP,
	}, logger)
	sess := chat.NewSession(client, b.engine,
		chat.WithSystemPrompt(cfg.Chat.SystemPrompt),
		chat.WithRawOutput(jsonOutput || cfg.Chat.JSONOutput),
		chat.WithSessionLogger(logger))

	repl, err := chat.NewREPL(sess, os.Stdout)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Connected to %s with %d tools. Type \"exit\" to quit.\n", b.name(), len(b.tools))
	return repl.Run(ctx)
}

func runTools(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd, true)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	b, err := newBridge(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	openapi2mcp.PrintToolSummary(os.Stdout, b.tools, b.resources)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
