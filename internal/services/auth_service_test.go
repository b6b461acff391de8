package services

import (
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"campuschat/internal/config"
	"campuschat/internal/models"
	"campuschat/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuth(f *fixture) *AuthService {
	cfg := &config.Config{
		App: config.AppConfig{BaseURL: "https://chat.campus.test"},
		Session: config.SessionConfig{
			SingleDevice:    true,
			MagicLinkTTL:    15 * time.Minute,
			RedirectTimeout: 3 * time.Second,
			MessengerURL:    "https://wa.me/",
		},
	}
	svc := NewAuthService(f.st, utils.NewTokenIssuer("test-secret", "campuschat", time.Hour), f.bus, cfg)
	svc.now = f.clock.Now
	return svc
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	auth := newAuth(f)

	user, err := auth.Register(f.ctx, RegisterRequest{Name: " Ada Lovelace ", Class: "CS1", Phone: "+1 (555) 010-0001"})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", user.Name)
	assert.Equal(t, "+15550100001", user.Phone)
	assert.Equal(t, models.DefaultSettings(), user.Settings)

	_, err = auth.Register(f.ctx, RegisterRequest{Name: "Someone Else", Class: "CS2", Phone: "+15550100001"})
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = auth.Register(f.ctx, RegisterRequest{Name: "Bad Phone", Class: "CS2", Phone: "12"})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestLoginMatchesIdentity(t *testing.T) {
	f := newFixture(t)
	auth := newAuth(f)
	_, err := auth.Register(f.ctx, RegisterRequest{Name: "Ada Lovelace", Class: "CS1", Phone: "+15550100001"})
	require.NoError(t, err)

	tests := []struct {
		name string
		req  LoginRequest
		err  error
	}{
		{"exact", LoginRequest{Name: "Ada Lovelace", Class: "CS1", Phone: "+15550100001"}, nil},
		{"case and spacing", LoginRequest{Name: " ada lovelace", Class: "cs1 ", Phone: "+1 555 010 0001"}, nil},
		{"wrong class", LoginRequest{Name: "Ada Lovelace", Class: "CS2", Phone: "+15550100001"}, models.ErrInvalidCredentials},
		{"wrong name", LoginRequest{Name: "Ada", Class: "CS1", Phone: "+15550100001"}, models.ErrInvalidCredentials},
		{"unknown phone", LoginRequest{Name: "Ada Lovelace", Class: "CS1", Phone: "+15550109999"}, models.ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, err := auth.Login(f.ctx, tt.req)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				assert.Nil(t, session)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, session.Token)
			assert.True(t, session.User.IsOnline)
		})
	}
}

func TestSingleDeviceSessions(t *testing.T) {
	f := newFixture(t)
	auth := newAuth(f)
	_, err := auth.Register(f.ctx, RegisterRequest{Name: "Ada Lovelace", Class: "CS1", Phone: "+15550100001"})
	require.NoError(t, err)
	login := LoginRequest{Name: "Ada Lovelace", Class: "CS1", Phone: "+15550100001"}

	first, err := auth.Login(f.ctx, login)
	require.NoError(t, err)
	user, err := auth.ValidateSession(f.ctx, first.Token)
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, user.ID)

	second, err := auth.Login(f.ctx, login)
	require.NoError(t, err)
	assert.NotEqual(t, first.DeviceID, second.DeviceID)

	_, err = auth.ValidateSession(f.ctx, first.Token)
	assert.ErrorIs(t, err, models.ErrSessionRevoked)
	_, err = auth.ValidateSession(f.ctx, second.Token)
	assert.NoError(t, err)

	require.NoError(t, auth.Logout(f.ctx, second.User.ID))
	_, err = auth.ValidateSession(f.ctx, second.Token)
	assert.ErrorIs(t, err, models.ErrSessionRevoked)

	stored, err := f.st.Users.Get(f.ctx, second.User.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsOnline)

	_, err = auth.ValidateSession(f.ctx, "not-a-token")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func magicParams(t *testing.T, loginURL string) MagicLinkParams {
	t.Helper()
	u, err := url.Parse(loginURL)
	require.NoError(t, err)
	q := u.Query()
	return MagicLinkParams{
		UID:   q.Get("uid"),
		Name:  q.Get("name"),
		Class: q.Get("class"),
		Phone: q.Get("phone"),
		TS:    q.Get("ts"),
	}
}

func TestMagicLink(t *testing.T) {
	f := newFixture(t)
	auth := newAuth(f)
	user, err := auth.Register(f.ctx, RegisterRequest{Name: "Ada Lovelace", Class: "CS1", Phone: "+15550100001"})
	require.NoError(t, err)
	f.user(t, "admin", "Admin", "Staff", "+15550100002", true)
	f.user(t, "peer", "Peer", "CS1", "+15550100003", false)

	link, err := auth.BuildMagicLink(f.ctx, user.ID, user.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link.URL, "https://wa.me/15550100001?text="))
	assert.True(t, strings.HasPrefix(link.LoginURL, "https://chat.campus.test/magic-login?"))

	session, err := auth.MagicLogin(f.ctx, magicParams(t, link.LoginURL))
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.User.ID)

	_, err = auth.BuildMagicLink(f.ctx, "peer", user.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = auth.BuildMagicLink(f.ctx, "admin", user.ID)
	assert.NoError(t, err)

	t.Run("identity mismatch", func(t *testing.T) {
		p := magicParams(t, link.LoginURL)
		p.Name = "Mallory"
		_, err := auth.MagicLogin(f.ctx, p)
		var linkErr *MagicLinkError
		require.True(t, errors.As(err, &linkErr))
		assert.ErrorIs(t, err, models.ErrLinkInvalid)
		assert.Equal(t, "/login", linkErr.RedirectTo)
		assert.Equal(t, 3*time.Second, linkErr.RedirectAfter)
	})

	t.Run("missing fields", func(t *testing.T) {
		_, err := auth.MagicLogin(f.ctx, MagicLinkParams{UID: user.ID})
		assert.ErrorIs(t, err, models.ErrLinkInvalid)
	})

	t.Run("unknown user", func(t *testing.T) {
		p := magicParams(t, link.LoginURL)
		p.UID = "ghost"
		_, err := auth.MagicLogin(f.ctx, p)
		assert.ErrorIs(t, err, models.ErrLinkInvalid)
	})

	t.Run("expired", func(t *testing.T) {
		f.clock.Advance(16 * time.Minute)
		_, err := auth.MagicLogin(f.ctx, magicParams(t, link.LoginURL))
		assert.ErrorIs(t, err, models.ErrLinkInvalid)
	})
}
