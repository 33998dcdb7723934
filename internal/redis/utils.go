package redis

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const defaultPingTimeout = 3 * time.Second

// Ping checks connectivity, bounded by ctx and a short default timeout.
func Ping(ctx context.Context, client *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return errors.Wrapf(err, "ping redis at %s", client.Options().Addr)
	}
	return nil
}
