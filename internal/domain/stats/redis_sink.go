package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/clinicops/clinic/internal/platform/apperr"
)

// ErrNotCached is returned by RedisSink.Load when no snapshot is stored
// for the date.
var ErrNotCached = apperr.New(apperr.NotFound, "no cached stats for date")

// RedisSink caches snapshots so other instances and tools can read the
// dashboard without querying the database.
type RedisSink struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSink(client *redis.Client, ttl time.Duration) *RedisSink {
	return &RedisSink{client: client, ttl: ttl}
}

// Key is the cache key for a clinic day.
func Key(date string) string {
	return "clinic:stats:" + date
}

func (s *RedisSink) Store(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	if err := s.client.Set(ctx, Key(snap.Date), data, s.ttl).Err(); err != nil {
		return apperr.Wrap(err, apperr.TransientIO, "stats.store", "stats cache unavailable")
	}
	return nil
}

func (s *RedisSink) Load(ctx context.Context, date string) (Snapshot, error) {
	data, err := s.client.Get(ctx, Key(date)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, ErrNotCached
	}
	if err != nil {
		return Snapshot{}, apperr.Wrap(err, apperr.TransientIO, "stats.load", "stats cache unavailable")
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode stats: %w", err)
	}
	return snap, nil
}
