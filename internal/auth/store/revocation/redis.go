package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	platformRedis "peoplefinder/internal/platform/redis"
)

// Redis is a shared revocation list. Keys expire with the token, so the list
// never needs sweeping.
type Redis struct {
	client *platformRedis.Client
}

// NewRedis creates a Redis-backed revocation list.
func NewRedis(client *platformRedis.Client) *Redis {
	return &Redis{client: client}
}

func key(tokenID string) string {
	return "auth:revoked:" + tokenID
}

func (r *Redis) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if tokenID == "" || ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, key(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (r *Redis) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	err := r.client.Get(ctx, key(tokenID)).Err()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check token revocation: %w", err)
	}
	return true, nil
}
