// README: Durable key-value tiers backing the location cache (Redis primary, file fallback).
package geoloc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrKeyNotFound is returned by KV.Get for absent keys.
var ErrKeyNotFound = errors.New("key not found")

// KV is the durable string storage consumed by the location cache.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// RedisKV is the primary storage tier.
type RedisKV struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisKV wraps a Redis client. ttl bounds how long persisted blobs
// outlive the process; zero means no expiry.
func NewRedisKV(client *redis.Client, ttl time.Duration) *RedisKV {
	return &RedisKV{client: client, ttl: ttl}
}

func (s *RedisKV) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return v, nil
}

func (s *RedisKV) Put(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

func (s *RedisKV) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// FileKV is the plain synchronous fallback tier: one file per key under dir.
type FileKV struct {
	dir string
}

func NewFileKV(dir string) (*FileKV, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return &FileKV{dir: dir}, nil
}

// path flattens the key into a filename; cache keys only use [a-z:_-].
func (s *FileKV) path(key string) string {
	return filepath.Join(s.dir, strings.ReplaceAll(key, ":", "_"))
}

func (s *FileKV) Get(_ context.Context, key string) (string, error) {
	b, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return string(b), nil
}

func (s *FileKV) Put(_ context.Context, key, value string) error {
	tmp := s.path(key) + ".tmp"
	if err := os.WriteFile(tmp, []byte(value), 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	if err := os.Rename(tmp, s.path(key)); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

func (s *FileKV) Delete(_ context.Context, key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// TieredKV prefers the primary tier and demotes to the fallback when the
// primary errors. The primary is re-probed after probeAfter so a recovered
// Redis takes writes again without a restart.
type TieredKV struct {
	primary    KV
	fallback   KV
	probeAfter time.Duration

	mu       sync.Mutex
	demoted  bool
	downedAt time.Time
}

func NewTieredKV(primary, fallback KV, probeAfter time.Duration) *TieredKV {
	if probeAfter <= 0 {
		probeAfter = 30 * time.Second
	}
	return &TieredKV{primary: primary, fallback: fallback, probeAfter: probeAfter}
}

// active picks the tier for this operation.
func (s *TieredKV) active() KV {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.demoted && time.Since(s.downedAt) >= s.probeAfter {
		s.demoted = false
	}
	if s.demoted {
		return s.fallback
	}
	return s.primary
}

func (s *TieredKV) demote(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.demoted {
		log.Printf("geoloc: primary storage tier failed, demoting to fallback: %v", err)
	}
	s.demoted = true
	s.downedAt = time.Now()
}

func (s *TieredKV) Get(ctx context.Context, key string) (string, error) {
	tier := s.active()
	v, err := tier.Get(ctx, key)
	if tier == s.primary && errors.Is(err, ErrCacheUnavailable) {
		s.demote(err)
		return s.fallback.Get(ctx, key)
	}
	return v, err
}

func (s *TieredKV) Put(ctx context.Context, key, value string) error {
	tier := s.active()
	err := tier.Put(ctx, key, value)
	if tier == s.primary && errors.Is(err, ErrCacheUnavailable) {
		s.demote(err)
		return s.fallback.Put(ctx, key, value)
	}
	return err
}

func (s *TieredKV) Delete(ctx context.Context, key string) error {
	tier := s.active()
	err := tier.Delete(ctx, key)
	if tier == s.primary && errors.Is(err, ErrCacheUnavailable) {
		s.demote(err)
		return s.fallback.Delete(ctx, key)
	}
	return err
}
