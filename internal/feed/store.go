package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryStore: один слот в памяти процесса
type MemoryStore struct {
	mu      sync.Mutex
	key     string
	value   []byte
	expires time.Time
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.value == nil || m.key != key || !m.now().Before(m.expires) {
		return nil, false, nil
	}
	return m.value, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.key = key
	m.value = value
	m.expires = m.now().Add(ttl)
	return nil
}

// RedisStore: общий кэш для нескольких инстансов
type RedisStore struct {
	Redis     redis.UniversalClient
	Namespace string
}

func NewRedisStore(namespace string, rc redis.UniversalClient) *RedisStore {
	return &RedisStore{Redis: rc, Namespace: namespace}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.Redis.Get(ctx, s.Namespace+":"+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.Redis.Set(ctx, s.Namespace+":"+key, value, ttl).Err()
}
