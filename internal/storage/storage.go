// Package storage keeps fragment thumbnails.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
)

// ThumbnailStore stores one PNG per fragment ID.
type ThumbnailStore interface {
	// Put stores png and returns the public URL it is served under.
	Put(ctx context.Context, id string, png []byte) (string, error)
	// Delete removes the thumbnail. A missing thumbnail is not an error.
	Delete(ctx context.Context, id string) error
}

var validID = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// FileStore keeps thumbnails as <dir>/<id>.png, served under urlPrefix.
type FileStore struct {
	dir       string
	urlPrefix string
}

var _ ThumbnailStore = (*FileStore)(nil)

// NewFileStore creates dir if needed.
func NewFileStore(dir, urlPrefix string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating %s: %w", dir, err)
	}
	return &FileStore{dir: dir, urlPrefix: urlPrefix}, nil
}

// Dir is the directory the HTTP server serves thumbnails from.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) file(id string) (string, error) {
	if !validID.MatchString(id) {
		return "", fmt.Errorf("storage: invalid thumbnail id %q", id)
	}
	return filepath.Join(s.dir, id+".png"), nil
}

// Put writes through a temporary file and a rename, so readers never see a
// partial image.
func (s *FileStore) Put(ctx context.Context, id string, png []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name, err := s.file(id)
	if err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(s.dir, id+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("storage: creating temp file: %w", err)
	}
	if _, err := tmp.Write(png); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("storage: writing thumbnail %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("storage: closing thumbnail %s: %w", id, err)
	}
	if err := os.Rename(tmp.Name(), name); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("storage: renaming thumbnail %s: %w", id, err)
	}
	return path.Join(s.urlPrefix, id+".png"), nil
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, err := s.file(id)
	if err != nil {
		return err
	}
	if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: deleting thumbnail %s: %w", id, err)
	}
	return nil
}
