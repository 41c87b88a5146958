package sink

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/flemzord/wirebot/pkg/bot"
)

// Redis publishes records on a pub/sub channel.
type Redis struct {
	client  *redis.Client
	channel string
}

// NewRedis creates a Redis sink from a redis:// or rediss:// URL. The
// connection is established lazily on the first publish.
func NewRedis(url, channel string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("sink: redis url: %w", err)
	}
	return &Redis{client: redis.NewClient(opts), channel: channel}, nil
}

// Name implements Sink.
func (r *Redis) Name() string { return "redis:" + r.channel }

// Publish implements Sink.
func (r *Redis) Publish(ctx context.Context, msg bot.Message) error {
	body, err := Encode(msg)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, body).Err(); err != nil {
		return fmt.Errorf("sink: redis publish: %w", err)
	}
	return nil
}

// Close implements Sink.
func (r *Redis) Close() error { return r.client.Close() }
