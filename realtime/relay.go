package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// RedisRelay publishes through redis pub/sub so every instance delivers the
// event to its own subscribers. Local delivery happens on receipt.
type RedisRelay struct {
	client *redis.Client
	hub    *Hub
	prefix string
	logger *slog.Logger
}

func NewRedisRelay(client *redis.Client, hub *Hub, prefix string, logger *slog.Logger) *RedisRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRelay{client: client, hub: hub, prefix: prefix, logger: logger}
}

func (r *RedisRelay) Publish(ctx context.Context, channel string, eventType EventType, payload interface{}) error {
	data, err := encodeMessage(channel, eventType, payload)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.prefix+channel, data).Err(); err != nil {
		return fmt.Errorf("publishing %s to redis: %w", eventType, err)
	}
	publishedEvents.WithLabelValues(string(eventType)).Inc()
	return nil
}

// Run forwards relayed events to the hub until ctx is done. ready is closed
// once the subscription is active.
func (r *RedisRelay) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := r.client.PSubscribe(ctx, r.prefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to redis relay: %w", err)
	}
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			channel := strings.TrimPrefix(msg.Channel, r.prefix)
			r.hub.BroadcastToChannel(channel, []byte(msg.Payload))
		}
	}
}

// NATSRelay publishes on <prefix>.<tenant> subjects.
type NATSRelay struct {
	conn   *nats.Conn
	hub    *Hub
	prefix string
	logger *slog.Logger
	sub    *nats.Subscription
}

func NewNATSRelay(conn *nats.Conn, hub *Hub, prefix string, logger *slog.Logger) *NATSRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSRelay{conn: conn, hub: hub, prefix: prefix, logger: logger}
}

func (r *NATSRelay) Publish(_ context.Context, channel string, eventType EventType, payload interface{}) error {
	data, err := encodeMessage(channel, eventType, payload)
	if err != nil {
		return err
	}
	if err := r.conn.Publish(r.prefix+"."+channel, data); err != nil {
		return fmt.Errorf("publishing %s to nats: %w", eventType, err)
	}
	publishedEvents.WithLabelValues(string(eventType)).Inc()
	return nil
}

// Start subscribes to every tenant subject.
func (r *NATSRelay) Start() error {
	sub, err := r.conn.Subscribe(r.prefix+".*", func(msg *nats.Msg) {
		var envelope Message
		if err := json.Unmarshal(msg.Data, &envelope); err != nil {
			r.logger.Warn("dropping malformed relayed event", "subject", msg.Subject, "error", err)
			return
		}
		r.hub.BroadcastToChannel(strings.TrimPrefix(msg.Subject, r.prefix+"."), msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribing to nats relay: %w", err)
	}
	if err := r.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("flushing nats subscription: %w", err)
	}
	r.sub = sub
	return nil
}

func (r *NATSRelay) Stop() error {
	if r.sub == nil {
		return nil
	}
	return r.sub.Unsubscribe()
}
