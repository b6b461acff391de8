package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case evt, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return evt
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
	return Event{}
}

func expectNone(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case evt := <-sub.Events():
		t.Fatalf("unexpected event %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func expectClosed(t *testing.T, sub *Subscription) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-sub.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("timeout waiting for channel close")
		}
	}
}

func TestMatches(t *testing.T) {
	assert.True(t, Matches("chat:1", "chat:1"))
	assert.True(t, Matches("chat:1", "chat:1:messages"))
	assert.False(t, Matches("chat:1", "chat:10"))
	assert.False(t, Matches("chat:1:messages", "chat:1"))
	assert.True(t, Matches("", "users"))
}

func TestNewEventEncodesSnapshot(t *testing.T) {
	evt := NewEvent(ChatTopic("c1"), Updated, "c1", map[string]int{"unread": 2})
	assert.JSONEq(t, `{"unread":2}`, string(evt.Snapshot))
	assert.Equal(t, "chat:c1", evt.Topic)
}

func TestBusDeliversByTopic(t *testing.T) {
	bus := NewBus(8)
	ctx := context.Background()

	chatSub, err := bus.Subscribe(ctx, ChatTopic("c1"))
	require.NoError(t, err)
	defer chatSub.Close()

	callSub, err := bus.Subscribe(ctx, CallTopic("k1"))
	require.NoError(t, err)
	defer callSub.Close()

	require.NoError(t, bus.Publish(ctx, NewEvent(ChatMessagesTopic("c1"), Created, "m1", nil)))

	evt := receive(t, chatSub)
	assert.Equal(t, "m1", evt.ID)
	assert.Equal(t, Created, evt.Kind)
	expectNone(t, callSub)
}

func TestBusDropsWhenFull(t *testing.T) {
	bus := NewBus(1)
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Publish(ctx, NewEvent(UsersTopic, Updated, "u", nil)))
	}
	assert.Equal(t, uint64(2), bus.dropped.Load())
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus(4)

	t.Run("close", func(t *testing.T) {
		sub, err := bus.Subscribe(context.Background(), UsersTopic)
		require.NoError(t, err)
		assert.NoError(t, sub.Close())
		assert.NoError(t, sub.Close())
		expectClosed(t, sub)
	})

	t.Run("context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		sub, err := bus.Subscribe(ctx, UsersTopic)
		require.NoError(t, err)
		cancel()
		expectClosed(t, sub)
		assert.Eventually(t, func() bool { return bus.subscribers() == 0 }, time.Second, 10*time.Millisecond)
	})
}

func setupRedisFeed(t *testing.T) *RedisFeed {
	t.Helper()
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	feed := NewRedisFeed(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test")
	t.Cleanup(func() { feed.Close() })
	return feed
}

func TestRedisFeed(t *testing.T) {
	feed := setupRedisFeed(t)
	ctx := context.Background()

	t.Run("receives subtopic events", func(t *testing.T) {
		sub, err := feed.Subscribe(ctx, ChatTopic("c1"))
		require.NoError(t, err)
		defer sub.Close()

		require.NoError(t, feed.Publish(ctx, NewEvent(ChatMessagesTopic("c1"), Created, "m1", map[string]string{"content": "hi"})))

		evt := receive(t, sub)
		assert.Equal(t, "m1", evt.ID)
		assert.Equal(t, ChatMessagesTopic("c1"), evt.Topic)
		assert.JSONEq(t, `{"content":"hi"}`, string(evt.Snapshot))
	})

	t.Run("ignores other topics", func(t *testing.T) {
		sub, err := feed.Subscribe(ctx, CallTopic("k1"))
		require.NoError(t, err)
		defer sub.Close()

		require.NoError(t, feed.Publish(ctx, NewEvent(CallTopic("k10"), Updated, "k10", nil)))
		expectNone(t, sub)
	})

	t.Run("cleanup on context cancellation", func(t *testing.T) {
		cancelCtx, cancel := context.WithCancel(ctx)
		sub, err := feed.Subscribe(cancelCtx, UsersTopic)
		require.NoError(t, err)
		cancel()
		expectClosed(t, sub)
	})
}
