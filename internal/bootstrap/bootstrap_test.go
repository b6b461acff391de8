package bootstrap

import (
	"context"
	"testing"
	"time"

	"campuschat/internal/config"
	"campuschat/internal/realtime"
	"campuschat/internal/services"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.Load()
	cfg.Store.Driver = "memory"
	cfg.Security.JWT.Secret = "test-secret"
	return cfg
}

func TestNewWithMemoryStore(t *testing.T) {
	app, err := New(context.Background(), testConfig())
	require.NoError(t, err)
	defer app.Close()

	assert.Nil(t, app.Health)
	assert.IsType(t, &realtime.Bus{}, app.Feed)

	ctx := context.Background()
	user, err := app.Auth.Register(ctx, services.RegisterRequest{Name: "Ada", Class: "CS1", Phone: "+15550100001"})
	require.NoError(t, err)

	session, err := app.Auth.Login(ctx, services.LoginRequest{Name: "Ada", Class: "CS1", Phone: "+15550100001"})
	require.NoError(t, err)

	got, err := app.Auth.ValidateSession(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestNewWithRedisFeed(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Database.Redis.Enabled = true
	cfg.Database.Redis.Addr = mr.Addr()

	app, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()
	require.IsType(t, &realtime.RedisFeed{}, app.Feed)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sub, err := app.Feed.Subscribe(ctx, realtime.UsersTopic)
	require.NoError(t, err)
	defer sub.Close()

	_, err = app.Auth.Register(ctx, services.RegisterRequest{Name: "Ada", Class: "CS1", Phone: "+15550100001"})
	require.NoError(t, err)

	select {
	case evt := <-sub.Events():
		assert.Equal(t, realtime.UsersTopic, evt.Topic)
	case <-ctx.Done():
		t.Fatal("no user event received over redis")
	}
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Driver = "sqlite"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewFailsWhenRedisIsDown(t *testing.T) {
	cfg := testConfig()
	cfg.Database.Redis.Enabled = true
	cfg.Database.Redis.Addr = "127.0.0.1:1"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}
