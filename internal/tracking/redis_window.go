package tracking

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/careride/internal/models"
)

// RedisWindow keeps the rolling window in Redis so the web tier stays
// stateless. Entries expire with the ride.
type RedisWindow struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisWindow(addr, password string) *RedisWindow {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisWindow{client: c, ttl: 6 * time.Hour}
}

// NewRedisWindowFromClient wraps an existing client, used by the
// tracker consumer which shares one connection.
func NewRedisWindowFromClient(c *redis.Client) *RedisWindow {
	return &RedisWindow{client: c, ttl: 6 * time.Hour}
}

func windowKey(rideID string) string { return "ride:fixes:" + rideID }

func (r *RedisWindow) Append(ctx context.Context, rideID string, fix models.LocationFix) error {
	b, err := json.Marshal(fix)
	if err != nil {
		return err
	}
	key := windowKey(rideID)
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key, b)
	pipe.LTrim(ctx, key, 0, WindowSize-1)
	pipe.Expire(ctx, key, r.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisWindow) Window(ctx context.Context, rideID string) ([]models.LocationFix, error) {
	raw, err := r.client.LRange(ctx, windowKey(rideID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	// stored newest first
	out := make([]models.LocationFix, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var f models.LocationFix
		if err := json.Unmarshal([]byte(raw[i]), &f); err != nil {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func (r *RedisWindow) Clear(ctx context.Context, rideID string) error {
	return r.client.Del(ctx, windowKey(rideID)).Err()
}

func (r *RedisWindow) Close() error { return r.client.Close() }
