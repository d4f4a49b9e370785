// Package session multiplexes MCP sessions over one streamable HTTP endpoint. Each session owns
// its own MCP server instance, so nothing leaks between concurrent clients.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// IDPrefix starts every session id.
const IDPrefix = "mcp-session-"

// DefaultProtocolVersion applies when a client sends no Mcp-Protocol-Version header.
const DefaultProtocolVersion = "2025-03-26"

// ErrNotFound is returned by stores for unknown or expired ids.
var ErrNotFound = errors.New("session not found")

// NewID returns a fresh session id.
func NewID() string {
	return IDPrefix + uuid.NewString()
}

// Factory builds the MCP server backing a session.
type Factory func(ctx context.Context, sessionID string) (*mcpserver.MCPServer, error)

// Record is the serializable part of a session.
type Record struct {
	ID              string    `json:"id"`
	ProtocolVersion string    `json:"protocol_version"`
	CreatedAt       time.Time `json:"created_at"`
	LastSeen        time.Time `json:"last_seen"`
}

// Session is one client's execution context. It implements mcp-go's ClientSession so server
// notifications reach the client's GET stream.
type Session struct {
	Record
	Server *mcpserver.MCPServer

	mu            sync.Mutex
	notifications chan mcp.JSONRPCNotification
	initialized   atomic.Bool
	closeOnce     sync.Once
	done          chan struct{}
}

// New binds a server to a session record and registers the session with it.
func New(ctx context.Context, rec Record, srv *mcpserver.MCPServer) (*Session, error) {
	if srv == nil {
		return nil, fmt.Errorf("session %s: nil server", rec.ID)
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.LastSeen.IsZero() {
		rec.LastSeen = now
	}
	if rec.ProtocolVersion == "" {
		rec.ProtocolVersion = DefaultProtocolVersion
	}
	s := &Session{
		Record:        rec,
		Server:        srv,
		notifications: make(chan mcp.JSONRPCNotification, 64),
		done:          make(chan struct{}),
	}
	if err := srv.RegisterSession(ctx, s); err != nil {
		return nil, fmt.Errorf("register session %s: %w", rec.ID, err)
	}
	return s, nil
}

// Snapshot returns a copy of the record under the session lock.
func (s *Session) Snapshot() Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Record
}

// Touch marks the session as used now.
func (s *Session) Touch() {
	s.mu.Lock()
	s.LastSeen = time.Now().UTC()
	s.mu.Unlock()
}

// Context attaches the session to ctx for its server's request handling.
func (s *Session) Context(ctx context.Context) context.Context {
	return s.Server.WithContext(ctx, s)
}

// Notifications delivers server-initiated messages.
func (s *Session) Notifications() <-chan mcp.JSONRPCNotification {
	return s.notifications
}

// Done is closed once the session has been released.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// release unregisters the session from its server and ends its open streams. Safe to call more
// than once.
func (s *Session) release(ctx context.Context) {
	s.closeOnce.Do(func() {
		s.Server.UnregisterSession(ctx, s.ID)
		close(s.done)
	})
}

// SessionID implements server.ClientSession.
func (s *Session) SessionID() string { return s.ID }

// NotificationChannel implements server.ClientSession.
func (s *Session) NotificationChannel() chan<- mcp.JSONRPCNotification { return s.notifications }

// Initialize implements server.ClientSession.
func (s *Session) Initialize() { s.initialized.Store(true) }

// Initialized implements server.ClientSession.
func (s *Session) Initialized() bool { return s.initialized.Load() }

var _ mcpserver.ClientSession = (*Session)(nil)
