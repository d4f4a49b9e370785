package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/server"
	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/session"
)

const shutdownTimeout = 25 * time.Second

// newSessionRouter picks the session store from configuration.
func newSessionRouter(ctx context.Context, b *bridge) (*session.Router, func(), error) {
	factory := func(context.Context, string) (*mcpserver.MCPServer, error) {
		return b.newServer(), nil
	}

	var (
		store   session.Store
		cleanup = func() {}
	)
	switch b.cfg.Session.Store {
	case "redis":
		client, err := session.OpenRedis(ctx, b.cfg.Session.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		store = session.NewRedisStore(client, factory, b.cfg.Session.TTL.Duration, b.logger)
		cleanup = func() { client.Close() }
		b.logger.Info("using redis session store", zap.String("url", server.MaskSensitive(b.cfg.Session.RedisURL)))
	default:
		store = session.NewMemoryStore()
	}

	router := session.NewRouter(store, factory,
		session.WithAllowedOrigins(b.cfg.AllowedOrigins),
		session.WithHeartbeatInterval(b.cfg.Session.Heartbeat.Duration),
		session.WithMetrics(b.metrics),
		session.WithLogger(b.logger))
	return router, cleanup, nil
}

// requestIDContext hands chi's request id to the error constructors.
func requestIDContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(server.WithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// newHTTPHandler mounts health, metrics and the MCP endpoint.
func newHTTPHandler(b *bridge, sessions *session.Router) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDContext)

	r.Get("/health", server.HandleHealth(server.HealthInfo{
		Service:   serviceName,
		Spec:      b.name(),
		Version:   b.doc.Version,
		Tools:     len(b.tools),
		Resources: len(b.resources),
		Sessions:  sessions.Count,
	}, b.logger))
	r.Method(http.MethodGet, "/metrics", b.metrics.Handler())
	r.Handle(b.cfg.Endpoint, sessions)
	return r
}

// serveHTTP runs until ctx is cancelled, then drains connections for up to shutdownTimeout.
func serveHTTP(ctx context.Context, b *bridge) error {
	sessions, cleanup, err := newSessionRouter(ctx, b)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", b.cfg.Port),
		Handler:           newHTTPHandler(b, sessions),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(sessions.Shutdown)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b.logger.Info("HTTP server listening",
			zap.String("addr", srv.Addr),
			zap.String("endpoint", b.cfg.Endpoint))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		b.logger.Info("shutting down HTTP server", zap.Duration("timeout", shutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		b.logger.Info("HTTP server shut down gracefully")
		return nil
	})
	return g.Wait()
}
