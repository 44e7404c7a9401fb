package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"coinbridge/internal/core"
)

// Redis shares account snapshots between processes. The key expires after TTL on the
// server and the stored fetch time is checked again on read.
type Redis struct {
	Client redis.Cmdable
	Prefix string
	TTL    time.Duration
	Now    func() time.Time
}

func NewRedis(client redis.Cmdable, prefix string, ttl time.Duration) *Redis {
	return &Redis{Client: client, Prefix: prefix, TTL: ttl, Now: time.Now}
}

func (r *Redis) key(key string) string {
	return r.Prefix + "account:" + key
}

func (r *Redis) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r *Redis) Get(ctx context.Context, key string) (core.AccountInfo, bool, error) {
	data, err := r.Client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.AccountInfo{}, false, nil
		}
		return core.AccountInfo{}, false, fmt.Errorf("redis get %s: %w", r.key(key), err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return core.AccountInfo{}, false, fmt.Errorf("decode cached account %s: %w", r.key(key), err)
	}
	if !e.Fresh(r.now(), r.TTL) {
		return core.AccountInfo{}, false, nil
	}
	return e.Info, true, nil
}

func (r *Redis) Put(ctx context.Context, key string, info core.AccountInfo) error {
	if r.TTL <= 0 {
		return nil
	}
	data, err := json.Marshal(Entry{Info: info, FetchedAt: r.now().UTC()})
	if err != nil {
		return err
	}
	if err := r.Client.Set(ctx, r.key(key), data, r.TTL).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key(key), err)
	}
	return nil
}
