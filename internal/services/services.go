package services

import (
	"context"
	"fmt"
	"time"

	"campuschat/internal/models"
	"campuschat/internal/realtime"
	"campuschat/internal/store"
	"campuschat/pkg/logger"
)

// publish emits a change event. Delivery failures are logged and never fail
// the write that produced them.
func publish(ctx context.Context, pub realtime.Publisher, topic string, kind realtime.Kind, id string, snapshot interface{}) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, realtime.NewEvent(topic, kind, id, snapshot)); err != nil {
		logger.LogError(err, "Failed to publish change event", map[string]interface{}{
			"topic": topic,
			"id":    id,
		})
	}
}

func publishUser(ctx context.Context, pub realtime.Publisher, u *models.User) {
	publish(ctx, pub, realtime.UserTopic(u.ID), realtime.Updated, u.ID, u)
	publish(ctx, pub, realtime.UsersTopic, realtime.Updated, u.ID, u)
}

func publishChat(ctx context.Context, pub realtime.Publisher, kind realtime.Kind, c *models.Chat) {
	publish(ctx, pub, realtime.ChatTopic(c.ID), kind, c.ID, c)
	for _, m := range c.Members {
		publish(ctx, pub, realtime.UserChatsTopic(m), kind, c.ID, c)
	}
}

func publishMessage(ctx context.Context, pub realtime.Publisher, kind realtime.Kind, m *models.Message) {
	publish(ctx, pub, realtime.ChatMessagesTopic(m.ChatID), kind, m.ID, m)
}

// dayOf formats t as a presence day.
func dayOf(t time.Time) string {
	return t.Format(models.DayFormat)
}

// loadActor fetches the acting user.
func loadActor(ctx context.Context, users store.Users, actorID string) (*models.User, error) {
	actor, err := users.Get(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load acting user: %w", err)
	}
	return actor, nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", models.ErrInvalidInput, fmt.Sprintf(format, args...))
}

func forbidden(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", models.ErrForbidden, fmt.Sprintf(format, args...))
}
