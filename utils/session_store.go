package utils

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/petos/forum/models"
)

// SessionStore keeps one SessionIdentity per active session id.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*models.SessionIdentity, error)
	Put(ctx context.Context, sessionID string, ident models.SessionIdentity, ttl time.Duration) error
	Invalidate(ctx context.Context, sessionID string) error
}

const sessionKeyPrefix = "session:"

// RedisSessionStore stores identities as JSON with a TTL.
type RedisSessionStore struct {
	client *redis.Client
}

func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func (s *RedisSessionStore) Get(ctx context.Context, sessionID string) (*models.SessionIdentity, error) {
	raw, err := s.client.Get(ctx, sessionKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ident models.SessionIdentity
	if err := json.Unmarshal(raw, &ident); err != nil {
		return nil, err
	}
	return &ident, nil
}

func (s *RedisSessionStore) Put(ctx context.Context, sessionID string, ident models.SessionIdentity, ttl time.Duration) error {
	raw, err := json.Marshal(ident)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKeyPrefix+sessionID, raw, ttl).Err()
}

func (s *RedisSessionStore) Invalidate(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, sessionKeyPrefix+sessionID).Err()
}

type memorySession struct {
	ident     models.SessionIdentity
	expiresAt time.Time
}

// MemorySessionStore is the single-process fallback when Redis is unreachable.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]memorySession
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: map[string]memorySession{}}
}

func (s *MemorySessionStore) Get(_ context.Context, sessionID string) (*models.SessionIdentity, error) {
	s.mu.RLock()
	entry, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.sessions, sessionID)
		s.mu.Unlock()
		return nil, nil
	}
	ident := entry.ident
	return &ident, nil
}

func (s *MemorySessionStore) Put(_ context.Context, sessionID string, ident models.SessionIdentity, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked()
	s.sessions[sessionID] = memorySession{ident: ident, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemorySessionStore) Invalidate(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) cleanupLocked() {
	now := time.Now()
	for id, entry := range s.sessions {
		if now.After(entry.expiresAt) {
			delete(s.sessions, id)
		}
	}
}

// NewSessionStore prefers Redis and falls back to process memory.
func NewSessionStore(client *redis.Client) SessionStore {
	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := client.Ping(ctx).Err()
		if err == nil {
			return NewRedisSessionStore(client)
		}
		L().Warn("redis unreachable, sessions kept in memory", zap.Error(err))
	}
	return NewMemorySessionStore()
}
