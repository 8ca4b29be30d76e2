// Package redis delivers renderer payloads over Redis pub/sub.
//
// Overlays subscribe to one channel and receive every payload as a JSON
// message. With RequireSubscriber, a PUBLISH that reached nobody means the
// overlay has exited.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/juicer/adapter"
)

// Delivery defaults.
const (
	DefaultChannel = "juicer:overlay"
	DefaultTimeout = 2 * time.Second
	DefaultRetries = 2
)

// Config configures the Redis publisher.
type Config struct {
	// URL locates the server, e.g. redis://localhost:6379/0.
	URL string
	// Channel overlays subscribe to. Empty means DefaultChannel.
	Channel string
	// Timeout bounds one PUBLISH. Zero means DefaultTimeout.
	Timeout time.Duration
	// Retries is how many times a failed PUBLISH is retried.
	Retries int
	// RequireSubscriber treats a publish nobody received as the renderer
	// having gone away.
	RequireSubscriber bool
}

// Publisher publishes payloads on a Redis channel.
type Publisher struct {
	config Config
	client *goredis.Client
}

// New validates cfg and connects lazily on first publish.
func New(cfg Config) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis publisher requires a URL")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis publisher: invalid URL: %w", err)
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Publisher{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

// Publish sends one payload. Failed publishes are retried with
// adapter.WaitRetry; zero receivers is only an error with RequireSubscriber.
func (p *Publisher) Publish(ctx context.Context, payload *adapter.Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("redis: marshal %s payload: %w", payload.Kind, err)
	}

	var lastErr error
	tries := p.config.Retries + 1
	for i := range tries {
		if i > 0 {
			if err := adapter.WaitRetry(ctx, i); err != nil {
				return fmt.Errorf("redis: %s payload abandoned: %w", payload.Kind, err)
			}
		} else if err := ctx.Err(); err != nil {
			return fmt.Errorf("redis: %s payload abandoned: %w", payload.Kind, err)
		}

		receivers, err := p.publishOnce(ctx, body)
		if err != nil {
			lastErr = err
			continue
		}
		if receivers == 0 && p.config.RequireSubscriber {
			return fmt.Errorf("redis: no subscriber on %s: %w", p.config.Channel, adapter.ErrRendererGone)
		}
		return nil
	}
	return fmt.Errorf("redis: %s payload undelivered after %d tries: %w", payload.Kind, tries, lastErr)
}

func (p *Publisher) publishOnce(ctx context.Context, body []byte) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()
	return p.client.Publish(ctx, p.config.Channel, body).Result()
}

// Close disconnects from Redis.
func (p *Publisher) Close() error {
	return p.client.Close()
}

var _ adapter.Publisher = (*Publisher)(nil)
