package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisPublisher forwards envelopes to a redis channel so other instances
// can replay them to their own websocket clients.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	origin  string
}

func NewRedisPublisher(client *redis.Client, channel, origin string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel, origin: origin}
}

func (p *RedisPublisher) Publish(ctx context.Context, topic, event string, payload Payload) error {
	msg := NewMessage(topic, event, payload, time.Now())
	msg.Origin = p.origin
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", p.channel, err)
	}
	return nil
}

// RedisRelay replays envelopes published by other instances into a local
// publisher. Envelopes carrying this instance's origin are skipped.
type RedisRelay struct {
	client  *redis.Client
	channel string
	origin  string
	local   Publisher
	log     *zap.Logger
}

func NewRedisRelay(client *redis.Client, channel, origin string, local Publisher, log *zap.Logger) *RedisRelay {
	return &RedisRelay{client: client, channel: channel, origin: origin, local: local, log: log}
}

// Run blocks until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.log.Info("redis relay subscribed", zap.String("channel", r.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(ctx, m.Payload)
		}
	}
}

func (r *RedisRelay) handle(ctx context.Context, raw string) {
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		r.log.Warn("redis relay dropped malformed message", zap.Error(err))
		return
	}
	if msg.Origin == r.origin {
		return
	}
	p := Payload{Type: msg.Type, Action: msg.Action, Data: msg.Data}
	if err := r.local.Publish(ctx, msg.Topic, msg.Event, p); err != nil {
		r.log.Warn("redis relay local publish failed", zap.String("event", msg.Event), zap.Error(err))
	}
}
