// Package realtime carries document change events from writers to
// subscribers. A Subscription is a stream of snapshots with an explicit
// unsubscribe tied to the subscriber's context.
package realtime

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Kind describes what happened to the document.
type Kind string

const (
	Created Kind = "created"
	Updated Kind = "updated"
	Deleted Kind = "deleted"
)

// Event is one document change. Snapshot holds the document as written.
type Event struct {
	Topic     string          `json:"topic"`
	Kind      Kind            `json:"kind"`
	ID        string          `json:"id"`
	Snapshot  json.RawMessage `json:"snapshot,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent builds an event with the JSON encoding of snapshot.
func NewEvent(topic string, kind Kind, id string, snapshot interface{}) Event {
	evt := Event{Topic: topic, Kind: kind, ID: id, Timestamp: time.Now()}
	if snapshot != nil {
		if raw, err := json.Marshal(snapshot); err == nil {
			evt.Snapshot = raw
		}
	}
	return evt
}

// Topics.
const UsersTopic = "users"

func ChatTopic(chatID string) string         { return "chat:" + chatID }
func ChatMessagesTopic(chatID string) string { return "chat:" + chatID + ":messages" }
func CallTopic(callID string) string         { return "call:" + callID }
func UserTopic(userID string) string         { return "user:" + userID }
func UserChatsTopic(userID string) string    { return "user:" + userID + ":chats" }
func UserCallsTopic(userID string) string    { return "user:" + userID + ":calls" }

// Matches reports whether an event on topic is delivered to a subscriber of
// pattern. A pattern matches itself and its ":"-separated subtopics; an
// empty pattern matches everything.
func Matches(pattern, topic string) bool {
	if pattern == "" || pattern == topic {
		return true
	}
	return strings.HasPrefix(topic, pattern+":")
}

// Publisher emits change events.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Feed is a Publisher that can also be subscribed to.
type Feed interface {
	Publisher
	Subscribe(ctx context.Context, topics ...string) (*Subscription, error)
	Close() error
}

// Subscription is an active subscription to one or more topics.
// Events is closed once the subscription is closed or its context ends.
type Subscription struct {
	events <-chan Event
	cancel func()
	once   sync.Once
}

// Events returns the channel of events.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close stops the subscription. Safe to call more than once.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
