package commands

import (
	"bytes"
	"context"
	"net/url"
	"testing"

	"campuschat/internal/bootstrap"
	"campuschat/internal/catalog"
	"campuschat/internal/config"
	"campuschat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	disableColor()
}

type stubFetcher map[string]string

func (f stubFetcher) Fetch(_ context.Context, path string, _ url.Values) ([]byte, error) {
	body, ok := f[path]
	if !ok {
		return nil, models.ErrNotFound
	}
	return []byte(body), nil
}

// useMemoryApp makes every command share one in-memory app.
func useMemoryApp(t *testing.T) *bootstrap.App {
	t.Helper()
	cfg := config.Load()
	cfg.Store.Driver = "memory"
	cfg.Database.Redis.Enabled = false

	app, err := bootstrap.New(context.Background(), cfg)
	require.NoError(t, err)
	app.Catalog = catalog.NewService(stubFetcher{
		"/artists/ar1":            `{"id":"ar1","name":"The Band","genres":["indie"]}`,
		"/artists/ar1/albums":     `{"items":[{"id":"al1","name":"First","album_type":"album"},{"id":"s1","name":"Single","album_type":"single"}]}`,
		"/artists/ar1/top-tracks": `{"tracks":[{"id":"t1","name":"Hit","album":{"id":"al1"}}]}`,
	}, app.Store, cfg.Spotify)

	previous := newApp
	newApp = func(context.Context, *config.Config) (*bootstrap.App, error) { return app, nil }
	t.Cleanup(func() { newApp = previous })
	return app
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--env-file", "testdata/missing.env"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestRootShowsHelp(t *testing.T) {
	out, err := run(t)
	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "seed-admin")
}

func TestSeedAdminCreatesThenPromotes(t *testing.T) {
	app := useMemoryApp(t)
	ctx := context.Background()

	out, err := run(t, "seed-admin", "--name", "Grace Hopper", "--phone", "+15550100009")
	require.NoError(t, err)
	assert.Contains(t, out, "Created administrator Grace Hopper")

	user, err := app.Store.Users.GetByPhone(ctx, "+15550100009")
	require.NoError(t, err)
	assert.True(t, user.IsAdmin)
	assert.Equal(t, "Staff", user.Class)

	out, err = run(t, "seed-admin", "--name", "Grace Hopper", "--phone", "+15550100009")
	require.NoError(t, err)
	assert.Contains(t, out, "Promoted Grace Hopper")

	_, err = run(t, "seed-admin", "--name", "No Phone")
	assert.Error(t, err)
}

func TestUsersAndMagicLink(t *testing.T) {
	useMemoryApp(t)

	_, err := run(t, "seed-admin", "--name", "Grace Hopper", "--class", "CS1", "--phone", "+15550100009")
	require.NoError(t, err)

	out, err := run(t, "users", "cs1")
	require.NoError(t, err)
	assert.Contains(t, out, "Grace Hopper")
	assert.Contains(t, out, "1 users")

	out, err = run(t, "magic-link", "+15550100009")
	require.NoError(t, err)
	assert.Contains(t, out, "https://wa.me/15550100009?")
	assert.Contains(t, out, "/magic-login?")

	_, err = run(t, "magic-link", "+15550100000")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCatalogSync(t *testing.T) {
	app := useMemoryApp(t)

	out, err := run(t, "catalog", "sync", "ar1")
	require.NoError(t, err)
	assert.Contains(t, out, "Synced The Band")

	lib, err := app.Catalog.Library(context.Background(), "ar1")
	require.NoError(t, err)
	assert.Len(t, lib.Albums, 1)
	assert.Len(t, lib.Singles, 1)
	assert.Len(t, lib.Tracks, 1)

	_, err = run(t, "catalog", "sync", "unknown")
	assert.Error(t, err)

	out, err = run(t, "catalog", "purge-cache")
	require.NoError(t, err)
	assert.Contains(t, out, "Purged 0 cache entries")
}

func TestMigrateAndSweepOnMemoryStore(t *testing.T) {
	useMemoryApp(t)

	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to migrate")

	out, err = run(t, "calls", "sweep", "--timeout", "30s")
	require.NoError(t, err)
	assert.Contains(t, out, "Marked 0 calls as missed")
}
