package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"campuschat/internal/models"
	"campuschat/internal/realtime"
	"campuschat/internal/store"
	"campuschat/internal/store/memory"

	"github.com/stretchr/testify/require"
)

// clock advances by step on every reading so writes get distinct times.
type clock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func newClock() *clock {
	return &clock{t: time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC), step: time.Millisecond}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.t
	c.t = c.t.Add(c.step)
	return t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	ctx   context.Context
	st    *store.Store
	bus   *realtime.Bus
	clock *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &fixture{ctx: ctx, st: memory.New(), bus: realtime.NewBus(256), clock: newClock()}
}

func (f *fixture) user(t *testing.T, id, name, class, phone string, admin bool) *models.User {
	t.Helper()
	now := f.clock.Now()
	u := &models.User{
		ID:        id,
		Name:      name,
		Class:     class,
		Phone:     phone,
		IsAdmin:   admin,
		Settings:  models.DefaultSettings(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.st.Users.Create(f.ctx, u))
	return u
}

// subscribe collects events for topics until the test ends.
func (f *fixture) subscribe(t *testing.T, topics ...string) func() []realtime.Event {
	t.Helper()
	sub, err := f.bus.Subscribe(f.ctx, topics...)
	require.NoError(t, err)
	return func() []realtime.Event {
		var out []realtime.Event
		for {
			select {
			case evt := <-sub.Events():
				out = append(out, evt)
			case <-time.After(20 * time.Millisecond):
				return out
			}
		}
	}
}
