package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/printshop/backend/internal/domain/accounting"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "icount:session:"

// ErrNilSession is returned when storing a nil session.
var ErrNilSession = errors.New("session: session is nil")

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// RedisStore keeps sessions in Redis with native key expiry, so a
// restarted process can reuse a live session instead of logging in again.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

type storedSession struct {
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreWithClient(client, defaultKeyPrefix), nil
}

// NewRedisStoreWithClient creates a store on an existing client.
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Get returns the live session for key, or nil.
func (s *RedisStore) Get(ctx context.Context, key string) (*accounting.Session, error) {
	raw, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var stored storedSession
	if err := json.Unmarshal(raw, &stored); err != nil {
		_ = s.Delete(ctx, key)
		return nil, nil
	}

	sess := &accounting.Session{Token: stored.Token, IssuedAt: stored.IssuedAt, ExpiresAt: stored.ExpiresAt}
	if !sess.IsValid(time.Now()) {
		_ = s.Delete(ctx, key)
		return nil, nil
	}
	return sess, nil
}

// Set stores the session with an expiry matching its lifetime.
func (s *RedisStore) Set(ctx context.Context, key string, sess *accounting.Session) error {
	if sess == nil {
		return ErrNilSession
	}
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return s.Delete(ctx, key)
	}

	raw, err := json.Marshal(storedSession{Token: sess.Token, IssuedAt: sess.IssuedAt, ExpiresAt: sess.ExpiresAt})
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.client.Set(ctx, s.keyPrefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Delete removes the session for key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Size counts live session keys under the store prefix.
func (s *RedisStore) Size(ctx context.Context) (int, error) {
	count := 0
	iter := s.client.Scan(ctx, 0, s.keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

// Close closes the Redis client
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ accounting.SessionStore = (*RedisStore)(nil)
