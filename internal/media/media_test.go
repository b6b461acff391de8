package media

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"campuschat/internal/config"
	"campuschat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUploader(url string) *Uploader {
	return NewUploader(config.MediaConfig{
		UploadURL:    url,
		UploadPreset: "unsigned",
		Folder:       "campuschat",
		MaxSize:      16,
		AllowedTypes: []string{"image/png", "image/jpeg"},
		Timeout:      time.Second,
	})
}

func TestUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "unsigned", r.FormValue("upload_preset"))
		assert.Equal(t, "campuschat/avatars", r.FormValue("folder"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "me.png", header.Filename)
		assert.Equal(t, "png-bytes", string(data))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"secure_url":"https://cdn.example/me.png","url":"http://cdn.example/me.png"}`)
	}))
	defer srv.Close()

	url, err := newUploader(srv.URL).Upload(context.Background(), File{
		Name:        "me.png",
		ContentType: "image/png",
		Size:        9,
		Body:        strings.NewReader("png-bytes"),
	}, "avatars")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/me.png", url)
}

func TestUploadRejects(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"bad preset"}}`)
	}))
	defer srv.Close()
	u := newUploader(srv.URL)
	ctx := context.Background()

	t.Run("too large by header", func(t *testing.T) {
		_, err := u.Upload(ctx, File{Name: "a.png", ContentType: "image/png", Size: 100, Body: strings.NewReader("x")}, "avatars")
		assert.True(t, errors.Is(err, models.ErrInvalidInput))
	})

	t.Run("too large by body", func(t *testing.T) {
		body := strings.NewReader(strings.Repeat("x", 64))
		_, err := u.Upload(ctx, File{Name: "a.png", ContentType: "image/png", Size: 1, Body: body}, "avatars")
		assert.True(t, errors.Is(err, models.ErrInvalidInput))
	})

	t.Run("not an image", func(t *testing.T) {
		_, err := u.Upload(ctx, File{Name: "a.pdf", ContentType: "application/pdf", Size: 1, Body: strings.NewReader("x")}, "avatars")
		assert.True(t, errors.Is(err, models.ErrInvalidInput))
	})

	t.Run("image type not allowed", func(t *testing.T) {
		_, err := u.Upload(ctx, File{Name: "a.gif", ContentType: "image/gif", Size: 1, Body: strings.NewReader("x")}, "avatars")
		assert.True(t, errors.Is(err, models.ErrInvalidInput))
	})

	assert.Equal(t, 0, calls)

	t.Run("cdn error", func(t *testing.T) {
		_, err := u.Upload(ctx, File{Name: "a.png", ContentType: "image/png", Size: 1, Body: strings.NewReader("x")}, "avatars")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad preset")
		assert.Equal(t, 1, calls)
	})
}
