// Package media uploads user images to the CDN's unsigned upload endpoint.
package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"

	"campuschat/internal/config"
	"campuschat/internal/models"
	"campuschat/pkg/logger"

	"github.com/tidwall/gjson"
)

// File is an upload as received from a client.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

type Uploader struct {
	cfg    config.MediaConfig
	client *http.Client
}

func NewUploader(cfg config.MediaConfig) *Uploader {
	return &Uploader{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Upload posts f as multipart form data with the configured preset and
// returns the secure URL reported by the CDN.
func (u *Uploader) Upload(ctx context.Context, f File, folder string) (string, error) {
	if u.cfg.UploadURL == "" {
		return "", fmt.Errorf("media upload URL is not configured")
	}
	if err := u.check(f); err != nil {
		return "", err
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	part, err := form.CreateFormFile("file", path.Base(f.Name))
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	n, err := io.Copy(part, io.LimitReader(f.Body, u.cfg.MaxSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	if n > u.cfg.MaxSize {
		return "", fmt.Errorf("%w: file exceeds %d bytes", models.ErrInvalidInput, u.cfg.MaxSize)
	}

	_ = form.WriteField("upload_preset", u.cfg.UploadPreset)
	target := strings.Trim(u.cfg.Folder+"/"+folder, "/")
	if target != "" {
		_ = form.WriteField("folder", target)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("failed to finish form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.cfg.UploadURL, &body)
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload media: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read upload response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		msg := gjson.GetBytes(raw, "error.message").String()
		logger.WithField("status", resp.StatusCode).Warnf("Media upload rejected: %s", msg)
		return "", fmt.Errorf("media upload failed with status %d: %s", resp.StatusCode, msg)
	}

	url := gjson.GetBytes(raw, "secure_url").String()
	if url == "" {
		url = gjson.GetBytes(raw, "url").String()
	}
	if url == "" {
		return "", fmt.Errorf("media upload response has no url")
	}
	return url, nil
}

func (u *Uploader) check(f File) error {
	if f.Body == nil {
		return fmt.Errorf("%w: empty upload", models.ErrInvalidInput)
	}
	if f.Size > u.cfg.MaxSize {
		return fmt.Errorf("%w: file exceeds %d bytes", models.ErrInvalidInput, u.cfg.MaxSize)
	}
	contentType := strings.ToLower(strings.TrimSpace(strings.SplitN(f.ContentType, ";", 2)[0]))
	if !strings.HasPrefix(contentType, "image/") {
		return fmt.Errorf("%w: content type %q is not an image", models.ErrInvalidInput, f.ContentType)
	}
	if len(u.cfg.AllowedTypes) == 0 {
		return nil
	}
	for _, t := range u.cfg.AllowedTypes {
		if strings.EqualFold(t, contentType) {
			return nil
		}
	}
	return fmt.Errorf("%w: content type %q is not allowed", models.ErrInvalidInput, f.ContentType)
}
