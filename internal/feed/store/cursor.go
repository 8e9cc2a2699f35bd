package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/feedpulse/feedpulse/internal/platform/config"
)

// CursorStore remembers the last-seen stream event id per subscription so a
// reconnect can resume via the Last-Event-ID header. An empty id means no
// cursor; all implementations treat a missing cursor as "start fresh".
type CursorStore interface {
	Save(ctx context.Context, subscription, eventID string) error
	Load(ctx context.Context, subscription string) (string, error)
}

// MemoryCursorStore keeps cursors in process memory. Default when no Redis is
// configured; cursors then only survive reconnects, not restarts.
type MemoryCursorStore struct {
	mu      sync.RWMutex
	cursors map[string]string
}

// NewMemoryCursorStore creates an empty in-memory cursor store.
func NewMemoryCursorStore() *MemoryCursorStore {
	return &MemoryCursorStore{cursors: make(map[string]string)}
}

func (s *MemoryCursorStore) Save(_ context.Context, subscription, eventID string) error {
	s.mu.Lock()
	s.cursors[subscription] = eventID
	s.mu.Unlock()
	return nil
}

func (s *MemoryCursorStore) Load(_ context.Context, subscription string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursors[subscription], nil
}

// RedisCursorStore persists cursors in Redis so a restarted daemon resumes
// where it left off.
type RedisCursorStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisCursorStore connects to Redis and verifies the connection.
func NewRedisCursorStore(cfg config.RedisConfig) (*RedisCursorStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCursorStore{
		client:    client,
		keyPrefix: "feed:cursor",
		ttl:       24 * time.Hour,
	}, nil
}

func (s *RedisCursorStore) Save(ctx context.Context, subscription, eventID string) error {
	key := s.buildKey(subscription)
	if err := s.client.Set(ctx, key, eventID, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

func (s *RedisCursorStore) Load(ctx context.Context, subscription string) (string, error) {
	key := s.buildKey(subscription)
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", fmt.Errorf("failed to load cursor: %w", err)
	}
	return val, nil
}

// Close releases the Redis connection.
func (s *RedisCursorStore) Close() error {
	return s.client.Close()
}

func (s *RedisCursorStore) buildKey(subscription string) string {
	return fmt.Sprintf("%s:%s", s.keyPrefix, subscription)
}
