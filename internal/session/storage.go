// Package session persists the authentication token, the user profile and,
// optionally, the local cart in durable client-side storage.
package session

import (
	"context"
	"sync"

	"github.com/fairyhunter13/storefront-client/internal/config"
	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// Storage is a string key/value store with browser-storage semantics: a
// missing key is not an error.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// MemoryStorage keeps values in process memory. It is the test fake and the
// backend for throwaway sessions.
type MemoryStorage struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{m: make(map[string]string)}
}

func (s *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok, nil
}

func (s *MemoryStorage) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func (s *MemoryStorage) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.m, k)
	}
	return nil
}

// Len returns the number of stored keys.
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// OpenStorage builds the backend selected by cfg.SessionBackend. The returned
// close function releases backend resources and is never nil.
func OpenStorage(cfg config.Config) (Storage, func() error, error) {
	noop := func() error { return nil }
	switch cfg.SessionBackend {
	case config.SessionMemory:
		return NewMemoryStorage(), noop, nil
	case config.SessionFile, "":
		return NewFileStorage(cfg.SessionPath), noop, nil
	case config.SessionRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		return NewRedisStorage(rdb, cfg.RedisPrefix), rdb.Close, nil
	default:
		return nil, noop, errors.Errorf("unknown session backend %q", cfg.SessionBackend)
	}
}
