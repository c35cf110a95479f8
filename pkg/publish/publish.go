// Package publish pushes alert events and the latest status to Redis so
// other services can react without polling the dashboard.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/teslashibe/go-intent/pkg/alert"
	"github.com/teslashibe/go-intent/pkg/pipeline"
)

// ErrDropped is returned when the breaker is open and the message was not sent.
var ErrDropped = errors.New("publish: redis unavailable, message dropped")

// Config holds the Redis connection and key layout.
type Config struct {
	Enabled   bool          `koanf:"enabled"`
	Addr      string        `koanf:"addr" validate:"required_if=Enabled true"`
	Password  string        `koanf:"password"`
	DB        int           `koanf:"db" validate:"gte=0"`
	Channel   string        `koanf:"channel" validate:"required_if=Enabled true"`
	KeyPrefix string        `koanf:"key_prefix"`
	TTL       time.Duration `koanf:"ttl" validate:"gte=0"`

	// Breaker trips after this many consecutive failures and probes again
	// after BreakerTimeout.
	BreakerFailures uint32        `koanf:"breaker_failures" validate:"gte=1"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
}

// DefaultConfig is disabled and points at a local Redis.
func DefaultConfig() Config {
	return Config{
		Enabled:         false,
		Addr:            "localhost:6379",
		Channel:         "intent:events",
		KeyPrefix:       "intent:",
		TTL:             10 * time.Minute,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

// Message is the envelope sent on the channel.
type Message struct {
	Type   string           `json:"type"`
	Source string           `json:"source"`
	Time   time.Time        `json:"time"`
	Alert  *alert.Event     `json:"alert,omitempty"`
	Status *pipeline.Result `json:"status,omitempty"`
}

// Publisher writes to Redis through a circuit breaker.
type Publisher struct {
	config Config
	source string
	client *redis.Client
	logger *slog.Logger
	cb     *gobreaker.CircuitBreaker[struct{}]
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config, source string, logger *slog.Logger) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 1,
		MaxRetries:   2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("publish: connect to redis at %s: %w", cfg.Addr, err)
	}

	return NewWithClient(client, cfg, source, logger), nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *redis.Client, cfg Config, source string, logger *slog.Logger) *Publisher {
	p := &Publisher{
		config: cfg,
		source: source,
		client: client,
		logger: logger,
	}
	p.cb = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "redis-publish",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("publisher breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return p
}

// StatusKey is where the latest status is stored.
func (p *Publisher) StatusKey() string {
	return p.config.KeyPrefix + "status"
}

// AlertKey is where an alert event is stored.
func (p *Publisher) AlertKey(id string) string {
	return p.config.KeyPrefix + "alert:" + id
}

// PublishAlert announces an alert transition and stores it under its id.
func (p *Publisher) PublishAlert(ctx context.Context, ev alert.Event) error {
	msg := Message{Type: "alert." + ev.Kind.String(), Source: p.source, Time: time.Now(), Alert: &ev}
	return p.send(ctx, p.AlertKey(ev.ID), msg)
}

// PublishStatus stores the latest cycle result.
func (p *Publisher) PublishStatus(ctx context.Context, r pipeline.Result) error {
	msg := Message{Type: "status", Source: p.source, Time: time.Now(), Status: &r}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("publish: marshal status: %w", err)
	}
	return p.execute(func() error {
		return p.client.Set(ctx, p.StatusKey(), payload, p.config.TTL).Err()
	})
}

func (p *Publisher) send(ctx context.Context, key string, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("publish: marshal %s: %w", msg.Type, err)
	}
	return p.execute(func() error {
		pipe := p.client.TxPipeline()
		pipe.Publish(ctx, p.config.Channel, payload)
		pipe.Set(ctx, key, payload, p.config.TTL)
		_, err := pipe.Exec(ctx)
		return err
	})
}

func (p *Publisher) execute(fn func() error) error {
	_, err := p.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrDropped
	}
	return err
}

// State returns the breaker state.
func (p *Publisher) State() gobreaker.State {
	return p.cb.State()
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
