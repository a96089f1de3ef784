package form

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/machmate/machmate-web/internal/logging"
)

const busyPrefix = "machmate:busy:"

// Guard is the per-form busy flag. It lives in Redis so that double submits
// are caught across server instances; the TTL bounds a crashed holder.
type Guard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewGuard(client *redis.Client, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Guard{client: client, ttl: ttl}
}

func Key(sid, flow string) string { return sid + ":" + flow }

func (g *Guard) Run(ctx context.Context, key string, fn func(context.Context) error) error {
	ok, err := g.client.SetNX(ctx, busyPrefix+key, time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire busy flag: %w", err)
	}
	if !ok {
		return ErrBusy
	}
	defer func() {
		if err := g.client.Del(context.WithoutCancel(ctx), busyPrefix+key).Err(); err != nil {
			logging.FromContext(ctx).Error("busy_release_failed", "key", key, "error", err)
		}
	}()
	return fn(ctx)
}

func (g *Guard) Busy(ctx context.Context, key string) (bool, error) {
	n, err := g.client.Exists(ctx, busyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("check busy flag: %w", err)
	}
	return n > 0, nil
}
