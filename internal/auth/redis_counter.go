package auth

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisCounter issues nonces with INCR on a shared key, so several processes using the
// same credential draw from one monotonic sequence that also survives restarts.
type RedisCounter struct {
	Client redis.Cmdable
	Key    string
	// Seed initializes the key when it does not exist yet, typically the current
	// millisecond clock so the sequence starts above values used before Redis was adopted.
	Seed func() int64

	seeded bool
}

func (r *RedisCounter) Next(ctx context.Context, last int64) (int64, error) {
	if !r.seeded {
		var seed int64
		if r.Seed != nil {
			seed = r.Seed()
		}
		if err := r.Client.SetNX(ctx, r.Key, seed, 0).Err(); err != nil {
			return 0, fmt.Errorf("seed nonce key %s: %w", r.Key, err)
		}
		r.seeded = true
	}
	n, err := r.Client.Incr(ctx, r.Key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr nonce key %s: %w", r.Key, err)
	}
	if n <= last {
		n, err = r.Client.IncrBy(ctx, r.Key, last-n+1).Result()
		if err != nil {
			return 0, fmt.Errorf("incrby nonce key %s: %w", r.Key, err)
		}
	}
	return n, nil
}
