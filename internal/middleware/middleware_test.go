package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"campuschat/internal/config"
	"campuschat/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSessions map[string]*models.User

func (f fakeSessions) ValidateSession(_ context.Context, token string) (*models.User, error) {
	switch token {
	case "revoked":
		return nil, models.ErrSessionRevoked
	case "broken":
		return nil, context.DeadlineExceeded
	}
	if u, ok := f[token]; ok {
		return u, nil
	}
	return nil, models.ErrInvalidCredentials
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/me", func(c *gin.Context) {
		id := UserID(c)
		if u := CurrentUser(c); u != nil {
			id = u.ID
		}
		c.String(http.StatusOK, id)
	})
	return r
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

func TestSessionAuth(t *testing.T) {
	sessions := fakeSessions{
		"good":  {ID: "u1"},
		"admin": {ID: "root", IsAdmin: true},
	}
	r := newRouter(SessionAuth(sessions))

	tests := []struct {
		name   string
		header string
		query  string
		status int
		body   string
	}{
		{"bearer header", "Bearer good", "", http.StatusOK, "u1"},
		{"query token", "", "?session_token=good", http.StatusOK, "u1"},
		{"missing", "", "", http.StatusUnauthorized, ""},
		{"not bearer", "Basic good", "", http.StatusUnauthorized, ""},
		{"unknown token", "Bearer nope", "", http.StatusUnauthorized, ""},
		{"revoked", "Bearer revoked", "", http.StatusUnauthorized, ""},
		{"backend failure", "Bearer broken", "", http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	sessions := fakeSessions{
		"good":  {ID: "u1"},
		"admin": {ID: "root", IsAdmin: true},
	}
	r := newRouter(SessionAuth(sessions), RequireAdmin())

	for token, status := range map[string]int{"good": http.StatusForbidden, "admin": http.StatusOK} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, status, w.Code, token)
	}

	w := httptest.NewRecorder()
	newRouter(RequireAdmin()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCORS(t *testing.T) {
	r := newRouter(CORS(config.CORSConfig{AllowedOrigins: []string{"https://campus.test"}, AllowCredentials: true}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Origin", "https://campus.test")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "https://campus.test", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Origin", "https://evil.test")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/me", nil)
	req.Header.Set("Origin", "https://campus.test")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	wildcard := newRouter(CORS(config.CORSConfig{AllowedOrigins: []string{"*"}}))
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Origin", "https://anywhere.test")
	w = httptest.NewRecorder()
	wildcard.ServeHTTP(w, req)
	assert.Equal(t, "https://anywhere.test", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRateLimit(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	now := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	r := newRouter(RateLimit(rl, "Slow down"))

	do := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, do("1.1.1.1").Code)
	assert.Equal(t, http.StatusOK, do("1.1.1.1").Code)
	limited := do("1.1.1.1")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errorCode(t, limited))
	assert.Equal(t, "0", limited.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, do("2.2.2.2").Code)

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, do("1.1.1.1").Code)
	assert.Equal(t, 2, rl.Len())

	now = now.Add(5 * time.Minute)
	assert.Equal(t, 2, rl.Cleanup(3*time.Minute))
	assert.Zero(t, rl.Len())
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger(), Recovery())
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errorCode(t, w))
}
