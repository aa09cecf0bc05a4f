// internal/events/redis.go
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisConfig configures the Redis forwarder
type RedisConfig struct {
	Addr          string `yaml:"addr"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	ChannelPrefix string `yaml:"channel_prefix"`
}

// RedisPublisher is the subset of *redis.Client the forwarder uses
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisForwarder republishes bus events on per-session Redis channels
type RedisForwarder struct {
	client RedisPublisher
	prefix string
	logger *zap.Logger
}

// NewRedisForwarder connects to Redis and verifies the connection
func NewRedisForwarder(cfg RedisConfig, logger *zap.Logger) (*RedisForwarder, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("events: redis connection failed: %w", err)
	}

	return NewForwarder(client, cfg.ChannelPrefix, logger), client, nil
}

// NewForwarder wraps an existing publisher
func NewForwarder(client RedisPublisher, prefix string, logger *zap.Logger) *RedisForwarder {
	if prefix == "" {
		prefix = "intellinspect"
	}
	return &RedisForwarder{client: client, prefix: prefix, logger: logger}
}

// Channel returns the channel a session's events are published on
func (f *RedisForwarder) Channel(sessionID string) string {
	return f.prefix + ":" + sessionID
}

// Handle is a bus Handler
func (f *RedisForwarder) Handle(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: encode event: %w", err)
	}
	if err := f.client.Publish(ctx, f.Channel(event.SessionID), data).Err(); err != nil {
		return fmt.Errorf("events: redis PUBLISH failed: %w", err)
	}
	return nil
}
