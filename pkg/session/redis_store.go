package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultSessionTTL bounds how long an idle session record survives in Redis.
const DefaultSessionTTL = 30 * time.Minute

// OpenRedis parses a redis:// URL and checks the connection.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisStore shares session records between processes through Redis. Records expire after the
// TTL unless touched. The live MCP server of a session cannot be serialized, so each process
// rebuilds it through the factory the first time it sees a session id and caches it locally.
type RedisStore struct {
	client    *redis.Client
	factory   Factory
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger

	mu   sync.Mutex
	live map[string]*Session
}

// NewRedisStore wraps client. A zero ttl means DefaultSessionTTL.
func NewRedisStore(client *redis.Client, factory Factory, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client:    client,
		factory:   factory,
		keyPrefix: "openapi-mcp:session:",
		ttl:       ttl,
		logger:    logger.With(zap.String("component", "redis_session_store")),
		live:      map[string]*Session{},
	}
}

func (s *RedisStore) key(id string) string {
	return s.keyPrefix + id
}

// Get implements Store. The record's TTL is renewed on every hit.
func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		s.forget(ctx, id)
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	if err := s.client.Expire(ctx, s.key(id), s.ttl).Err(); err != nil {
		s.logger.Warn("failed to renew session TTL", zap.String("session_id", id), zap.Error(err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.live[id]; ok {
		return sess, nil
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("corrupt session record %s: %w", id, err)
	}
	if s.factory == nil {
		return nil, fmt.Errorf("session %s exists but no server factory is configured", id)
	}
	srv, err := s.factory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild session %s: %w", id, err)
	}
	sess, err := New(ctx, rec, srv)
	if err != nil {
		return nil, err
	}
	// the client completed initialize against whichever process created the record
	sess.Initialize()
	s.live[id] = sess
	s.logger.Debug("session rebuilt from record", zap.String("session_id", id))
	return sess, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess.Snapshot())
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sess.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session %s: %w", sess.ID, err)
	}
	s.mu.Lock()
	s.live[sess.ID] = sess
	s.mu.Unlock()
	return nil
}

// Touch implements Store. The record is only rewritten while its key still exists, so a session
// deleted by another request or process stays deleted.
func (s *RedisStore) Touch(ctx context.Context, id string) error {
	s.mu.Lock()
	sess, ok := s.live[id]
	s.mu.Unlock()
	if !ok {
		// owned by another process; only the TTL is ours to renew
		renewed, err := s.client.Expire(ctx, s.key(id), s.ttl).Result()
		if err != nil {
			return fmt.Errorf("failed to refresh session %s: %w", id, err)
		}
		if !renewed {
			return ErrNotFound
		}
		return nil
	}
	sess.Touch()
	data, err := json.Marshal(sess.Snapshot())
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	updated, err := s.client.SetXX(ctx, s.key(id), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to refresh session %s: %w", id, err)
	}
	if !updated {
		s.forget(ctx, id)
		return ErrNotFound
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, s.key(id)).Result()
	s.forget(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Count implements Store by scanning the key prefix.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.keyPrefix+"*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to count sessions: %w", err)
		}
		total += len(keys)
		cursor = next
		if cursor == 0 {
			return total, nil
		}
	}
}

// forget drops the local execution context of an expired or deleted session.
func (s *RedisStore) forget(ctx context.Context, id string) {
	s.mu.Lock()
	sess, ok := s.live[id]
	delete(s.live, id)
	s.mu.Unlock()
	if ok {
		sess.release(ctx)
	}
}
