package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	platformRedis "peoplefinder/internal/platform/redis"
	"peoplefinder/internal/session"
)

// Redis persists one snapshot per user under a namespaced key. The key
// carries the TTL so Redis itself evicts stale sessions; SavedAt is still
// checked on read to guard against clock drift between writers.
type Redis struct {
	client *platformRedis.Client
	key    string
	ttl    time.Duration
}

// NewRedis creates a Redis-backed snapshot store scoped to one user.
func NewRedis(client *platformRedis.Client, userID string, ttl time.Duration) *Redis {
	return &Redis{
		client: client,
		key:    fmt.Sprintf("session:snapshot:%s", userID),
		ttl:    ttl,
	}
}

func (r *Redis) Save(ctx context.Context, snap session.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal session snapshot: %w", err)
	}
	if err := r.client.Set(ctx, r.key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("save session snapshot: %w", err)
	}
	return nil
}

func (r *Redis) Load(ctx context.Context) (*session.Snapshot, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session snapshot: %w", err)
	}

	var snap session.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		// A corrupt snapshot is unrecoverable; drop it rather than wedge
		// every restore.
		_ = r.client.Del(ctx, r.key).Err()
		return nil, nil
	}
	if time.Since(snap.SavedAt) > r.ttl {
		_ = r.client.Del(ctx, r.key).Err()
		return nil, nil
	}
	return &snap, nil
}

func (r *Redis) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("clear session snapshot: %w", err)
	}
	return nil
}
