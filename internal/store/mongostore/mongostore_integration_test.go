//go:build integration && mongo

package mongostore

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"campuschat/internal/models"
	"campuschat/internal/store"
	"campuschat/pkg/database"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	_ = godotenv.Load()
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set; skipping MongoDB integration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	db := client.Database("campuschat_test_" + models.NewID())
	require.NoError(t, database.CreateIndexes(ctx, db))

	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return New(db)
}

func TestMongoIncrementUnreadIsAtomic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	chat := &models.Chat{
		ID:      models.NewID(),
		Type:    models.ChatGroup,
		Members: []string{"a", "b"},
		Unread:  map[string]int{"b": models.UnreadMarked},
	}
	require.NoError(t, s.Chats.Create(ctx, chat))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Chats.IncrementUnread(ctx, chat.ID, []string{"b"}))
		}()
	}
	wg.Wait()

	got, err := s.Chats.Get(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, got.Unread["b"])
}

func TestMongoUsersPhoneConflict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Users.Create(ctx, &models.User{ID: models.NewID(), Name: "Ada", Phone: "+1 555 0100"}))
	err := s.Users.Create(ctx, &models.User{ID: models.NewID(), Name: "Bob", Phone: "+15550100"})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestMongoCallTransition(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	call := &models.Call{ID: models.NewID(), CallerID: "a", ReceiverID: "b", Status: models.CallDialing, CreatedAt: time.Now()}
	require.NoError(t, s.Calls.Create(ctx, call))

	updated, err := s.Calls.Transition(ctx, call.ID, models.CallDialing, store.CallUpdate{
		Status: models.CallOutgoing,
		Offer:  &models.SessionDescription{Type: "offer", SDP: "v=0"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.CallOutgoing, updated.Status)

	_, err = s.Calls.Transition(ctx, call.ID, models.CallDialing, store.CallUpdate{Status: models.CallEnded})
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = s.Calls.Transition(ctx, "missing", models.CallDialing, store.CallUpdate{Status: models.CallEnded})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMongoMessageWindow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"m1", "m2", "m3"} {
		require.NoError(t, s.Messages.Create(ctx, &models.Message{ID: id, ChatID: "c1", Timestamp: base.Add(time.Duration(i) * time.Minute)}))
	}

	msgs, err := s.Messages.List(ctx, "c1", store.MessageQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m2", msgs[0].ID)
	assert.Equal(t, "m3", msgs[1].ID)
}
