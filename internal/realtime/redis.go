package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"campuschat/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisFeed fans events out over Redis Pub/Sub so every server instance sees
// writes made by the others. Delivery is at-most-once.
type RedisFeed struct {
	rdb    *redis.Client
	prefix string
	buf    int
}

// NewRedisFeed creates a feed publishing on channels named prefix:topic.
func NewRedisFeed(rdb *redis.Client, prefix string) *RedisFeed {
	if prefix == "" {
		prefix = "campuschat"
	}
	return &RedisFeed{rdb: rdb, prefix: prefix, buf: DefaultBuffer}
}

func (f *RedisFeed) channel(topic string) string {
	return f.prefix + ":" + topic
}

// Publish encodes evt as JSON and publishes it on the topic channel.
func (f *RedisFeed) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := f.rdb.Publish(ctx, f.channel(evt.Topic), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event on %s: %w", evt.Topic, err)
	}
	return nil
}

// Subscribe pattern-subscribes to each topic and its subtopics. The
// subscription is confirmed by Redis before Subscribe returns.
func (f *RedisFeed) Subscribe(ctx context.Context, topics ...string) (*Subscription, error) {
	patterns := make([]string, 0, 2*len(topics))
	for _, t := range topics {
		patterns = append(patterns, f.channel(t), f.channel(t)+":*")
	}
	if len(patterns) == 0 {
		patterns = append(patterns, f.prefix+":*")
	}

	pubsub := f.rdb.PSubscribe(ctx, patterns...)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	events := make(chan Event, f.buf)
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(events)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var evt Event
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					logger.WithError(err).WithField("channel", msg.Channel).Warn("Dropping malformed realtime event")
					continue
				}

				select {
				case events <- evt:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{events: events, cancel: cancel}, nil
}

// Close closes the underlying Redis client.
func (f *RedisFeed) Close() error {
	return f.rdb.Close()
}
