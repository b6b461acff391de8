package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"campuschat/internal/catalog"
	"campuschat/internal/config"
	"campuschat/internal/models"
	"campuschat/internal/realtime"
	"campuschat/internal/services"
	"campuschat/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRejectsBadScheduleAndDuplicates(t *testing.T) {
	s := New(time.Second)
	noop := func(context.Context) (int64, error) { return 0, nil }

	require.NoError(t, s.Add("a", "@every 1m", noop))
	assert.Error(t, s.Add("a", "@every 1m", noop))
	assert.Error(t, s.Add("b", "not a schedule", noop))
	assert.ElementsMatch(t, []string{"a"}, s.Jobs())
}

func TestRunOnDemand(t *testing.T) {
	s := New(time.Second)
	boom := errors.New("boom")
	require.NoError(t, s.Add("count", "", func(context.Context) (int64, error) { return 3, nil }))
	require.NoError(t, s.Add("fail", "", func(context.Context) (int64, error) { return 0, boom }))

	n, err := s.Run(context.Background(), "count")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	_, err = s.Run(context.Background(), "fail")
	assert.ErrorIs(t, err, boom)

	_, err = s.Run(context.Background(), "missing")
	assert.Error(t, err)
}

func TestRunAppliesTimeout(t *testing.T) {
	s := New(20 * time.Millisecond)
	require.NoError(t, s.Add("slow", "", func(ctx context.Context) (int64, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}))

	_, err := s.Run(context.Background(), "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScheduledJobFires(t *testing.T) {
	s := New(time.Second)
	var runs int32
	require.NoError(t, s.Add("tick", "@every 1s", func(context.Context) (int64, error) {
		atomic.AddInt32(&runs, 1)
		return 1, nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) > 0 }, 3*time.Second, 50*time.Millisecond)
}

func TestRegisterMaintenanceSweepsCalls(t *testing.T) {
	cfg := config.Load()
	cfg.Calls.RingTimeout = time.Minute
	cfg.Calls.TypingTTL = 10 * time.Second

	st := memory.New()
	bus := realtime.NewBus(realtime.DefaultBuffer)
	calls := services.NewCallService(st, bus, cfg.Calls)
	chats := services.NewChatService(st, bus, nil)
	cat := catalog.NewService(nil, st, cfg.Spotify)

	s := New(time.Second)
	require.NoError(t, RegisterMaintenance(s, cfg, calls, chats, cat))
	assert.ElementsMatch(t, []string{JobSweepCalls, JobClearTyping, JobPurgeCatalog}, s.Jobs())

	ctx := context.Background()
	for _, u := range []*models.User{{ID: "a", Name: "Ada", Phone: "+15550100001"}, {ID: "b", Name: "Bo", Phone: "+15550100002"}} {
		require.NoError(t, st.Users.Create(ctx, u))
	}
	fresh, err := calls.Start(ctx, "a", services.StartCallRequest{ReceiverID: "b", Type: models.CallVoice})
	require.NoError(t, err)

	stale := &models.Call{
		ID:         "stale",
		CallerID:   "b",
		ReceiverID: "a",
		Type:       models.CallVoice,
		Status:     models.CallDialing,
		CreatedAt:  time.Now().Add(-2 * time.Minute),
	}
	require.NoError(t, st.Calls.Create(ctx, stale))

	n, err := s.Run(ctx, JobSweepCalls)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	view, err := calls.Get(ctx, "a", stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CallMissed, view.Status)

	view, err = calls.Get(ctx, "a", fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CallDialing, view.Status)
}

func TestRegisterMaintenanceSkipsDisabledJobs(t *testing.T) {
	cfg := config.Load()
	cfg.Calls.RingTimeout = 0
	cfg.Calls.TypingTTL = 0

	s := New(time.Second)
	require.NoError(t, RegisterMaintenance(s, cfg, nil, nil, nil))
	assert.Empty(t, s.Jobs())
}
