// Package notify carries the view-invalidation signal: after a write
// the orchestrator announces which views are stale so any subscriber
// (UI process, cache warmer) re-reads fresh data.
package notify

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Notifier publishes view-invalidation signals. Implementations are
// best-effort: a failed publish is logged, never surfaced.
type Notifier interface {
	Invalidate(paths ...string)
}

// NopNotifier discards every signal. Used when no redis is configured.
type NopNotifier struct{}

func (NopNotifier) Invalidate(...string) {}

// Channel is the redis pub/sub channel invalidation paths go to.
const Channel = "qeek:invalidate"

// RedisNotifier publishes invalidated paths on a redis channel.
type RedisNotifier struct {
	client *redis.Client
}

// NewRedisNotifier builds a redis-backed notifier.
func NewRedisNotifier(addr, password string) *RedisNotifier {
	return &RedisNotifier{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
	}
}

// Invalidate publishes each path as one message. Failures are logged
// and dropped; invalidation must never block or fail a turn.
func (n *RedisNotifier) Invalidate(paths ...string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if err := n.client.Publish(ctx, Channel, path).Err(); err != nil {
			slog.Warn("invalidation publish failed", "path", path, "err", err)
		}
	}
}
