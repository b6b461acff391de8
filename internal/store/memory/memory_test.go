package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"campuschat/internal/models"
	"campuschat/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsersPhoneIsUnique(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Users.Create(ctx, &models.User{ID: "u1", Name: "Ada", Phone: "+1 555 0100"}))
	err := s.Users.Create(ctx, &models.User{ID: "u2", Name: "Bob", Phone: "+15550100"})
	assert.ErrorIs(t, err, models.ErrConflict)

	u, err := s.Users.GetByPhone(ctx, "+1-555-0100")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
}

func TestUsersReturnCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Users.Create(ctx, &models.User{ID: "u1", Name: "Ada", Phone: "1"}))

	u, err := s.Users.Get(ctx, "u1")
	require.NoError(t, err)
	u.Name = "changed"

	again, err := s.Users.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", again.Name)
}

func TestIncrementUnreadTreatsMarkedAsZero(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Chats.Create(ctx, &models.Chat{
		ID:      "c1",
		Type:    models.ChatGroup,
		Members: []string{"a", "b", "c"},
		Unread:  map[string]int{"b": models.UnreadMarked, "c": 3},
	}))

	require.NoError(t, s.Chats.IncrementUnread(ctx, "c1", []string{"b", "c"}))

	c, err := s.Chats.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Unread["b"])
	assert.Equal(t, 4, c.Unread["c"])
	assert.Equal(t, 0, c.Unread["a"])
}

func TestIncrementUnreadConcurrent(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Chats.Create(ctx, &models.Chat{ID: "c1", Type: models.ChatGroup, Members: []string{"a", "b"}}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Chats.IncrementUnread(ctx, "c1", []string{"b"})
		}()
	}
	wg.Wait()

	c, err := s.Chats.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 50, c.Unread["b"])
}

func TestMessageListWindow(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"m1", "m2", "m3", "m4"} {
		m := &models.Message{ID: id, ChatID: "c1", Timestamp: base.Add(time.Duration(i) * time.Minute)}
		if id == "m2" {
			m.DeletedFor = []string{"a"}
		}
		require.NoError(t, s.Messages.Create(ctx, m))
	}
	require.NoError(t, s.Messages.Create(ctx, &models.Message{ID: "other", ChatID: "c2", Timestamp: base}))

	all, err := s.Messages.List(ctx, "c1", store.MessageQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2", "m3", "m4"}, ids(all))

	visible, err := s.Messages.List(ctx, "c1", store.MessageQuery{VisibleTo: "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m3", "m4"}, ids(visible))

	before := base.Add(3 * time.Minute)
	window, err := s.Messages.List(ctx, "c1", store.MessageQuery{Before: &before, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "m3"}, ids(window))
}

func TestCallTransitionIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Calls.Create(ctx, &models.Call{ID: "k1", CallerID: "a", ReceiverID: "b", Status: models.CallDialing}))

	_, err := s.Calls.Transition(ctx, "k1", models.CallDialing, store.CallUpdate{Status: models.CallOutgoing})
	require.NoError(t, err)

	_, err = s.Calls.Transition(ctx, "k1", models.CallDialing, store.CallUpdate{Status: models.CallEnded})
	assert.ErrorIs(t, err, models.ErrConflict)

	open, err := s.Calls.Open(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestPresenceHistoryBounds(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, day := range []string{"2024-03-01", "2024-03-02", "2024-03-03"} {
		require.NoError(t, s.Presence.Upsert(ctx, &models.PresenceRecord{UserID: "a", Day: day, Status: models.PresencePresent}))
	}

	recs, err := s.Presence.History(ctx, "a", "2024-03-02", "")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "2024-03-02", recs[0].Day)

	require.NoError(t, s.Presence.Delete(ctx, "a", "2024-03-02"))
	_, err = s.Presence.Get(ctx, "a", "2024-03-02")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCatalogSinglesAreSeparated(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Catalog.SaveArtist(ctx, &models.Artist{ID: "ar1", Name: "Band"}))
	require.NoError(t, s.Catalog.SaveAlbums(ctx, []models.Album{
		{ID: "al1", ArtistID: "ar1", AlbumType: "album"},
		{ID: "sg1", ArtistID: "ar1", AlbumType: "single"},
	}))

	lib, err := s.Catalog.Library(ctx, "ar1")
	require.NoError(t, err)
	assert.Len(t, lib.Albums, 1)
	assert.Len(t, lib.Singles, 1)
	assert.Equal(t, "sg1", lib.Singles[0].ID)
}

func ids(ms []*models.Message) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}
