package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/afrifutures/marketd/internal/domain"
)

// subscriberBuffer is the per-subscription backlog before go-redis starts
// dropping messages for a slow reader.
const subscriberBuffer = 128

// SignalBus carries market events over Redis Pub/Sub so that an event
// published by any marketd process reaches every websocket hub and the
// notification relay.
type SignalBus struct {
	rdb *redis.Client
}

var _ domain.SignalBus = (*SignalBus)(nil)

func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.rdb}
}

func busChannel(channel string) string { return key(channel) }

// hasPattern reports whether channel needs PSUBSCRIBE.
func hasPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, busChannel(channel), payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe delivers payloads published on channel, which may be a glob such
// as "market.*". The returned channel closes when ctx ends.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	subscribe := sb.rdb.Subscribe
	if hasPattern(channel) {
		subscribe = sb.rdb.PSubscribe
	}
	ps := subscribe(ctx, busChannel(channel))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	in := ps.Channel(redis.WithChannelSize(subscriberBuffer))
	out := make(chan []byte)
	go func() {
		defer close(out)
		defer ps.Close()
		for {
			var msg *redis.Message
			select {
			case <-ctx.Done():
				return
			case m, ok := <-in:
				if !ok {
					return
				}
				msg = m
			}
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
