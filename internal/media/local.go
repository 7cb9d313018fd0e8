package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Compile-time interface check.
var _ Uploader = (*DirUploader)(nil)

// DirUploader is an [Uploader] that copies clips into a local directory and
// returns file:// URLs. Used in development and tests, where no media
// service is running.
type DirUploader struct {
	root string
}

// NewDirUploader creates the root directory if needed and returns an
// uploader writing beneath it.
func NewDirUploader(root string) (*DirUploader, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("media: create upload dir %q: %w", root, err)
	}
	return &DirUploader{root: root}, nil
}

// Upload implements [Uploader].
func (u *DirUploader) Upload(_ context.Context, localPath, remotePath string) (string, error) {
	dst := filepath.Join(u.root, filepath.FromSlash(strings.TrimLeft(remotePath, "/")))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("media: create dir for %q: %w", remotePath, err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("media: open %q: %w", localPath, err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("media: create %q: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return "", fmt.Errorf("media: copy %q: %w", remotePath, err)
	}
	return "file://" + dst, nil
}
