package submission

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "subport:submission:"

// RedisGuard claims tokens with SET NX so the guard holds across replicas.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisGuard{client: client, ttl: ttl}
}

// Claim reports whether this call was the first to present the token within
// the TTL window. SET NX is atomic, so concurrent claims of the same token
// resolve to exactly one winner.
func (g *RedisGuard) Claim(ctx context.Context, token string) (bool, error) {
	ok, err := g.client.SetNX(ctx, keyPrefix+token, 1, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim submission token: %w", err)
	}
	return ok, nil
}
