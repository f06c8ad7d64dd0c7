package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/conduit-lang/taskprovider/internal/uri"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the pub/sub channel used when none is configured
const DefaultChannel = "taskprovider:changes"

// ChangeMessage is the pub/sub payload for a change
type ChangeMessage struct {
	Origin string `json:"origin"`
	URI    string `json:"uri"`
}

// NewOrigin returns a fresh process identifier for the redis bridge
func NewOrigin() string {
	return uuid.NewString()
}

// RedisPublisher is an observer that publishes local changes to a redis channel
type RedisPublisher struct {
	client  *redis.Client
	channel string
	origin  string
}

// NewRedisPublisher creates a publisher tagging messages with origin
func NewRedisPublisher(client *redis.Client, channel, origin string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel, origin: origin}
}

// OnChange publishes id unless the change was itself relayed from redis
func (p *RedisPublisher) OnChange(ctx context.Context, id uri.Identifier) error {
	if OriginFrom(ctx) != "" {
		return nil
	}

	payload, err := json.Marshal(ChangeMessage{Origin: p.origin, URI: id.String()})
	if err != nil {
		return err
	}

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish change for %s: %w", id, err)
	}
	return nil
}

// RelayTarget receives changes read from redis
type RelayTarget interface {
	NotifyRelayed(id uri.Identifier, origin string)
}

// RedisRelay subscribes to the change channel and re-notifies a local resolver
// for changes published by other processes
type RedisRelay struct {
	client  *redis.Client
	channel string
	origin  string
	target  RelayTarget
	logger  *zap.Logger
}

// NewRedisRelay creates a relay that ignores messages from origin
func NewRedisRelay(client *redis.Client, channel, origin string, target RelayTarget, logger *zap.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRelay{
		client:  client,
		channel: channel,
		origin:  origin,
		target:  target,
		logger:  logger,
	}
}

// Start subscribes and returns once the subscription is confirmed. Messages
// are relayed until ctx is cancelled or stop is called.
func (r *RedisRelay) Start(ctx context.Context) (stop func() error, err error) {
	sub := r.client.Subscribe(ctx, r.channel)

	// Wait for the subscription confirmation so no publish is missed
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}

	ch := sub.Channel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				r.handle(msg.Payload)
			}
		}
	}()

	return func() error {
		err := sub.Close()
		<-done
		return err
	}, nil
}

func (r *RedisRelay) handle(payload string) {
	var msg ChangeMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		r.logger.Warn("discarding malformed change message", zap.Error(err))
		return
	}

	if msg.Origin == r.origin {
		return
	}
	if msg.Origin == "" {
		msg.Origin = "unknown"
	}

	id, err := uri.Parse(msg.URI)
	if err != nil {
		r.logger.Warn("discarding change with bad uri", zap.String("uri", msg.URI), zap.Error(err))
		return
	}

	r.target.NotifyRelayed(id, msg.Origin)
}
