package events

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Publisher delivers committed events to subscribers outside the core.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// LogPublisher writes events to the structured log.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, e Event) error {
	p.logger.InfoContext(ctx, "market event",
		"seq", e.Seq,
		"id", e.ID,
		"kind", e.Kind,
		"market", e.MarketID,
		"actor", e.Actor.Hex(),
		"payload", string(e.Payload),
	)
	return nil
}

// RedisConfig holds connection parameters for the Redis publisher.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	TLSEnabled bool
	// Channel prefix; events go to "<prefix>:<kind>".
	Channel string
}

// RedisPublisher fans events out over Redis Pub/Sub.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

// NewRedisPublisher connects and pings Redis.
func NewRedisPublisher(ctx context.Context, cfg RedisConfig) (*RedisPublisher, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	channel := cfg.Channel
	if channel == "" {
		channel = "lynora"
	}
	return &RedisPublisher{rdb: rdb, channel: channel}, nil
}

// ChannelFor returns the channel an event kind is published on.
func (p *RedisPublisher) ChannelFor(kind Kind) string {
	return p.channel + ":" + string(kind)
}

func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("redis: encode event %s: %w", e.ID, err)
	}
	ch := p.ChannelFor(e.Kind)
	if err := p.rdb.Publish(ctx, ch, data).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", ch, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}

// Discard drops every event. Used when publishing is disabled.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }

// Compile-time interface checks.
var (
	_ Publisher = (*LogPublisher)(nil)
	_ Publisher = (*RedisPublisher)(nil)
	_ Publisher = Discard{}
)
