package lockstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// cadScript deletes the key only when the stored value matches the caller's
// "owner:token" pair, either exactly (legacy two-field values) or as the
// prefix of a three-field value.
var cadScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if not v then
    return 0
end
if v == ARGV[1] or string.sub(v, 1, string.len(ARGV[1]) + 1) == ARGV[1] .. ":" then
    return redis.call("DEL", KEYS[1])
end
return -1
`)

// Redis implements Store using a Redis backend.
type Redis struct {
	client *redis.Client
}

// NewRedis returns a new Redis store using the provided client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// wrap maps transport failures to ErrUnavailable so callers can branch on a
// single sentinel. Context cancellation passes through untouched.
func wrap(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// SetIfAbsent implements Store.SetIfAbsent.
func (r *Redis) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	ok, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, wrap(err)
	}
	return ok, nil
}

// Persist implements Store.Persist.
func (r *Redis) Persist(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.Persist(ctx, key).Result()
	if err != nil {
		return false, wrap(err)
	}
	return ok, nil
}

// Exists implements Store.Exists.
func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, wrap(err)
	}
	return n > 0, nil
}

// Get implements Store.Get.
func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap(err)
	}
	return v, true, nil
}

// Delete implements Store.Delete.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return wrap(err)
	}
	return nil
}

// CompareAndDelete implements Store.CompareAndDelete.
func (r *Redis) CompareAndDelete(ctx context.Context, key, match string) (bool, error) {
	res, err := cadScript.Run(ctx, r.client, []string{key}, match).Int64()
	if err != nil && err != redis.Nil {
		return false, wrap(err)
	}
	return res >= 0, nil
}

// ScanPrefix implements Store.ScanPrefix.
func (r *Redis) ScanPrefix(ctx context.Context, prefix string, cursor uint64, count int64) ([]string, uint64, error) {
	keys, next, err := r.client.Scan(ctx, cursor, prefix+"*", count).Result()
	if err != nil {
		return nil, 0, wrap(err)
	}
	return keys, next, nil
}
