// Package redis mirrors cold-cache snapshots in Redis so multiple client
// instances can share one warmed directory instead of each hitting the
// metadata API on startup.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/perplexfi/perplex-go/internal/cache"
	"github.com/perplexfi/perplex-go/internal/domain"
)

// Config holds Redis connection parameters.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// SnapshotStore stores serialized directory snapshots under a namespaced
// key with a TTL.
//
// Key schema:
//
//	perplex:snapshot:{namespace} - JSON cold-cache snapshot
type SnapshotStore struct {
	rdb       *redis.Client
	namespace string
	ttl       time.Duration
}

// NewSnapshotStore connects to Redis and returns a store for the given
// namespace (e.g. "mainnet").
func NewSnapshotStore(ctx context.Context, cfg Config, namespace string, ttl time.Duration) (*SnapshotStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &SnapshotStore{rdb: rdb, namespace: namespace, ttl: ttl}, nil
}

func (s *SnapshotStore) key() string {
	return "perplex:snapshot:" + s.namespace
}

// Save serializes and stores the snapshot.
func (s *SnapshotStore) Save(ctx context.Context, snap cache.Snapshot) error {
	data, err := cache.EncodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis: save snapshot: %w", err)
	}
	return nil
}

// Load fetches and parses the stored snapshot. It returns domain.ErrNotFound
// when no snapshot exists for the namespace.
func (s *SnapshotStore) Load(ctx context.Context) (cache.Snapshot, error) {
	data, err := s.rdb.Get(ctx, s.key()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return cache.Snapshot{}, domain.ErrNotFound
		}
		return cache.Snapshot{}, fmt.Errorf("redis: load snapshot: %w", err)
	}
	snap, err := cache.DecodeSnapshot(data)
	if err != nil {
		return cache.Snapshot{}, fmt.Errorf("redis: %w", err)
	}
	return snap, nil
}

// Close releases the underlying connection.
func (s *SnapshotStore) Close() error {
	return s.rdb.Close()
}
