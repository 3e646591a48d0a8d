package events

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spherical/paper-extractor/internal/domain"
	"github.com/spherical/paper-extractor/internal/observability"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
	Buffer   int
}

// RedisBroker is a Bus backed by Redis pub/sub, so several server processes
// can share one event stream.
type RedisBroker struct {
	client  *redis.Client
	channel string
	buffer  int
	logger  *observability.Logger
}

// NewRedisBroker connects to Redis and verifies the connection.
func NewRedisBroker(ctx context.Context, cfg RedisConfig, logger *observability.Logger) (*RedisBroker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, domain.IOError("redis ping failed", err)
	}

	return newRedisBroker(client, cfg, logger), nil
}

func newRedisBroker(client *redis.Client, cfg RedisConfig, logger *observability.Logger) *RedisBroker {
	if cfg.Channel == "" {
		cfg.Channel = "paper-extractor:events"
	}
	if cfg.Buffer < 1 {
		cfg.Buffer = 64
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &RedisBroker{
		client:  client,
		channel: cfg.Channel,
		buffer:  cfg.Buffer,
		logger:  logger.WithOperation("events"),
	}
}

// Publish marshals the event as JSON onto the channel.
func (r *RedisBroker) Publish(ctx context.Context, event domain.StreamEvent) error {
	data, err := EncodeEvent(Stamp(event))
	if err != nil {
		return domain.IOError("marshal event", err)
	}

	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return domain.IOError("redis publish", err)
	}
	return nil
}

// Subscribe listens on the channel until cancel is called or ctx is done.
func (r *RedisBroker) Subscribe(ctx context.Context) (<-chan domain.StreamEvent, func(), error) {
	sub := r.client.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, domain.IOError("redis subscribe", err)
	}

	out := make(chan domain.StreamEvent, r.buffer)
	done := make(chan struct{})
	msgs := sub.Channel()

	go func() {
		defer close(out)
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				event, err := DecodeEvent([]byte(msg.Payload))
				if err != nil {
					r.logger.Warn().Err(err).Msg("discarding malformed event")
					continue
				}
				select {
				case out <- event:
				default:
					r.logger.Warn().Str("event_type", string(event.Type)).Msg("subscriber channel full, event dropped")
				}
			}
		}
	}()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			close(done)
			_ = sub.Close()
		})
	}

	return out, unsubscribe, nil
}

// Close closes the Redis connection.
func (r *RedisBroker) Close() error {
	return r.client.Close()
}
