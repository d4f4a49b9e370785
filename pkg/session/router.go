package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/server"
)

const closeTimeout = 5 * time.Second

// Option configures a Router.
type Option func(*Router)

// WithAllowedOrigins restricts browser origins. Empty allows any origin; "*" allows all.
func WithAllowedOrigins(origins []string) Option {
	return func(r *Router) {
		r.allowedOrigins = map[string]bool{}
		for _, o := range origins {
			if o = strings.TrimSpace(o); o != "" {
				r.allowedOrigins[o] = true
			}
		}
	}
}

// WithHeartbeatInterval sends a ping on open GET streams at the given interval. Zero disables it.
func WithHeartbeatInterval(interval time.Duration) Option {
	return func(r *Router) { r.heartbeat = interval }
}

// WithMetrics keeps the session gauge current.
func WithMetrics(m *server.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

// Router implements the streamable HTTP transport on one endpoint. POST carries JSON-RPC
// messages, GET opens the notification stream of a session and DELETE closes a session.
//
// Usage:
//
//	router := session.NewRouter(session.NewMemoryStore(), factory)
//	mux.Handle("/mcp", router)
type Router struct {
	store          Store
	factory        Factory
	allowedOrigins map[string]bool
	heartbeat      time.Duration
	metrics        *server.Metrics
	logger         *zap.Logger

	done     chan struct{}
	stopOnce sync.Once
}

// NewRouter creates a router that builds one MCP server per session through factory.
func NewRouter(store Store, factory Factory, opts ...Option) *Router {
	r := &Router{
		store:   store,
		factory: factory,
		logger:  zap.NewNop(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	r.logger = r.logger.With(zap.String("component", "session_router"))
	return r
}

// ServeHTTP implements the http.Handler interface.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if origin := r.Header.Get("Origin"); origin != "" && !rt.originAllowed(origin) {
		rt.writeError(w, r, server.NewError(server.ErrorTypeForbiddenOrigin, "origin not allowed", origin))
		return
	}

	switch r.Method {
	case http.MethodPost:
		rt.handlePost(w, r)
	case http.MethodGet:
		rt.handleGet(w, r)
	case http.MethodDelete:
		rt.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (rt *Router) originAllowed(origin string) bool {
	if len(rt.allowedOrigins) == 0 || rt.allowedOrigins["*"] {
		return true
	}
	return rt.allowedOrigins[origin]
}

// Count returns the number of live sessions.
func (rt *Router) Count() int {
	n, err := rt.store.Count(context.Background())
	if err != nil {
		rt.logger.Warn("failed to count sessions", zap.Error(err))
		return 0
	}
	return n
}

// Shutdown ends every open GET stream. Pass it to http.Server.RegisterOnShutdown.
func (rt *Router) Shutdown() {
	rt.stopOnce.Do(func() { close(rt.done) })
}

// Close removes a session and releases its server.
func (rt *Router) Close(ctx context.Context, id string) error {
	sess, err := rt.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := rt.store.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	sess.release(ctx)
	rt.metrics.SetSessions(rt.Count())
	rt.logger.Info("session closed", zap.String("session_id", id))
	return nil
}

func protocolVersion(r *http.Request) string {
	if v := r.Header.Get(mcpserver.HeaderKeyProtocolVersion); v != "" {
		return v
	}
	return DefaultProtocolVersion
}

func (rt *Router) handlePost(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		rt.writeJSONRPCError(w, nil, mcp.PARSE_ERROR, fmt.Sprintf("read request body error: %v", err))
		return
	}
	var base struct {
		Method mcp.MCPMethod `json:"method"`
	}
	if err := json.Unmarshal(raw, &base); err != nil {
		rt.writeJSONRPCError(w, nil, mcp.PARSE_ERROR, "request body is not valid json")
		return
	}

	id := r.Header.Get(mcpserver.HeaderKeySessionID)
	if id == "" {
		if base.Method != mcp.MethodInitialize {
			rt.writeError(w, r, server.NewError(server.ErrorTypeSessionRequired,
				"missing "+mcpserver.HeaderKeySessionID+" header", "only initialize may open a session"))
			return
		}
		rt.initialize(w, r, raw)
		return
	}

	sess, err := rt.lookup(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if err := rt.store.Touch(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			rt.writeError(w, r, server.NewErrorWithContext(r.Context(), server.ErrorTypeSessionNotFound, "session closed", id))
			return
		}
		rt.logger.Warn("failed to refresh session", zap.String("session_id", id), zap.Error(err))
	}

	response := sess.Server.HandleMessage(sess.Context(r.Context()), raw)
	if response == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	rt.writeJSON(w, http.StatusOK, response)
}

// initialize opens a new session with a freshly built server. The session is stored only when
// the server accepts the initialize request.
func (rt *Router) initialize(w http.ResponseWriter, r *http.Request, raw []byte) {
	ctx := r.Context()
	id := NewID()

	srv, err := rt.factory(ctx, id)
	if err != nil {
		rt.writeError(w, r, server.WrapWithContext(ctx, err, server.ErrorTypeInternal, "failed to create session server"))
		return
	}
	sess, err := New(ctx, Record{ID: id, ProtocolVersion: protocolVersion(r)}, srv)
	if err != nil {
		rt.writeError(w, r, server.WrapWithContext(ctx, err, server.ErrorTypeInternal, "failed to create session"))
		return
	}

	response := srv.HandleMessage(sess.Context(ctx), raw)
	if _, failed := response.(mcp.JSONRPCError); failed || response == nil {
		sess.release(ctx)
		if response == nil {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		rt.writeJSON(w, http.StatusOK, response)
		return
	}

	if err := rt.store.Set(ctx, sess); err != nil {
		sess.release(ctx)
		rt.writeError(w, r, server.WrapWithContext(ctx, err, server.ErrorTypeInternal, "failed to store session"))
		return
	}
	rt.metrics.SetSessions(rt.Count())
	rt.logger.Info("session opened",
		zap.String("session_id", id),
		zap.String("protocol_version", sess.ProtocolVersion))

	w.Header().Set(mcpserver.HeaderKeySessionID, id)
	rt.writeJSON(w, http.StatusOK, response)
}

func (rt *Router) lookup(ctx context.Context, id string) (*Session, error) {
	sess, err := rt.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, server.NewErrorWithContext(ctx, server.ErrorTypeSessionNotFound, "unknown session", id)
	}
	if err != nil {
		return nil, server.WrapWithContext(ctx, err, server.ErrorTypeInternal, "failed to load session")
	}
	return sess, nil
}

func (rt *Router) requireSession(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	id := r.Header.Get(mcpserver.HeaderKeySessionID)
	if id == "" {
		rt.writeError(w, r, server.NewError(server.ErrorTypeSessionRequired, "missing "+mcpserver.HeaderKeySessionID+" header", ""))
		return nil, false
	}
	sess, err := rt.lookup(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, err)
		return nil, false
	}
	return sess, true
}

// handleGet streams server notifications until the client disconnects or the session is closed,
// then closes the session.
func (rt *Router) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := rt.requireSession(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := rt.Close(ctx, sess.ID); err != nil && !errors.Is(err, ErrNotFound) {
			rt.logger.Warn("failed to close session after stream ended", zap.String("session_id", sess.ID), zap.Error(err))
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(mcpserver.HeaderKeySessionID, sess.ID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var ticks <-chan time.Time
	if rt.heartbeat > 0 {
		ticker := time.NewTicker(rt.heartbeat)
		defer ticker.Stop()
		ticks = ticker.C
	}
	ping := mcp.JSONRPCNotification{
		JSONRPC:      mcp.JSONRPC_VERSION,
		Notification: mcp.Notification{Method: "ping"},
	}

	for {
		select {
		case nt := <-sess.Notifications():
			if err := writeSSEEvent(w, nt); err != nil {
				rt.logger.Debug("SSE write failed", zap.String("session_id", sess.ID), zap.Error(err))
				return
			}
			flusher.Flush()
		case <-ticks:
			if err := writeSSEEvent(w, ping); err != nil {
				return
			}
			flusher.Flush()
		case <-sess.Done():
			return
		case <-r.Context().Done():
			return
		case <-rt.done:
			return
		}
	}
}

func (rt *Router) handleDelete(w http.ResponseWriter, r *http.Request) {
	sess, ok := rt.requireSession(w, r)
	if !ok {
		return
	}
	if err := rt.Close(r.Context(), sess.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			err = server.NewError(server.ErrorTypeSessionNotFound, "unknown session", sess.ID)
		}
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func writeSSEEvent(w io.Writer, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", jsonData); err != nil {
		return fmt.Errorf("failed to write SSE event: %w", err)
	}
	return nil
}

type errorBody struct {
	Error struct {
		Kind    server.ErrorType `json:"kind"`
		Message string           `json:"message"`
	} `json:"error"`
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var se *server.ServerError
	if !errors.As(err, &se) {
		se = server.Wrap(err, server.ErrorTypeInternal, "internal error")
	}
	if se.HTTPStatus() >= http.StatusInternalServerError {
		server.LogError(rt.logger, err)
	} else {
		rt.logger.Debug("request rejected",
			zap.String("kind", string(se.Type)),
			zap.String("method", r.Method),
			zap.String("remote", r.RemoteAddr))
	}

	var body errorBody
	body.Error.Kind = se.Type
	body.Error.Message = se.Message
	if se.Details != "" {
		body.Error.Message += ": " + se.Details
	}
	rt.writeJSON(w, se.HTTPStatus(), body)
}

func (rt *Router) writeJSONRPCError(w http.ResponseWriter, id any, code int, message string) {
	rt.writeJSON(w, http.StatusBadRequest, mcp.JSONRPCError{
		JSONRPC: mcp.JSONRPC_VERSION,
		ID:      mcp.NewRequestId(id),
		Error:   mcp.NewJSONRPCErrorDetails(code, message, nil),
	})
}

func (rt *Router) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		rt.logger.Debug("failed to write response", zap.Error(err))
	}
}
