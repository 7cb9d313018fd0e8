// Package media uploads clip audio to durable storage and returns the
// remote URL recorded on the key moment.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Uploader copies a local clip file to remote media storage.
//
// Implementations must be safe for concurrent use.
type Uploader interface {
	// Upload stores the file at localPath under remotePath and returns the
	// URL the stored object is readable at.
	Upload(ctx context.Context, localPath, remotePath string) (string, error)
}

// Compile-time interface check.
var _ Uploader = (*HTTPUploader)(nil)

// HTTPOption is a functional option for configuring an [HTTPUploader].
type HTTPOption func(*HTTPUploader)

// WithAuthToken sets a static Bearer token sent with every upload.
func WithAuthToken(token string) HTTPOption {
	return func(u *HTTPUploader) {
		u.authToken = token
	}
}

// WithTimeout sets the per-upload HTTP timeout. Default: 60 seconds.
func WithTimeout(d time.Duration) HTTPOption {
	return func(u *HTTPUploader) {
		if d > 0 {
			u.client.Timeout = d
		}
	}
}

// HTTPUploader PUTs clip files to a media storage service. The object's URL
// is baseURL joined with the remote path; the service is expected to answer
// 200 or 201 on success.
type HTTPUploader struct {
	baseURL   string
	authToken string
	client    *http.Client
}

// NewHTTPUploader creates an uploader targeting the media service at
// baseURL (e.g. "https://media.example.com/clips").
func NewHTTPUploader(baseURL string, opts ...HTTPOption) (*HTTPUploader, error) {
	if baseURL == "" {
		return nil, errors.New("media: baseURL must not be empty")
	}
	u := &HTTPUploader{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(u)
	}
	return u, nil
}

// Upload implements [Uploader].
func (u *HTTPUploader) Upload(ctx context.Context, localPath, remotePath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("media: open %q: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("media: stat %q: %w", localPath, err)
	}

	target := u.baseURL + "/" + strings.TrimLeft(remotePath, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, f)
	if err != nil {
		return "", fmt.Errorf("media: build request: %w", err)
	}
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", "audio/wav")
	if u.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+u.authToken)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("media: upload %q: %w", remotePath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("media: upload %q: unexpected status %d: %s",
			remotePath, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return target, nil
}
