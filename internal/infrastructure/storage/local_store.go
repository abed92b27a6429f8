package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"schoolchat/internal/domain/service"
	"schoolchat/pkg/errors"
)

// LocalStore writes attachments under a directory on disk.
type LocalStore struct {
	root string
}

var _ service.BlobStore = (*LocalStore)(nil)

func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", errors.BadRequest("Invalid attachment key", nil)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *LocalStore) Put(_ context.Context, file io.Reader, _, folder, filename string) (string, error) {
	key := objectName(folder, filename)
	full, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", errors.Internal("Failed to store attachment", err)
	}

	f, err := os.Create(full)
	if err != nil {
		return "", errors.Internal("Failed to store attachment", err)
	}
	if _, err := io.Copy(f, file); err != nil {
		f.Close()
		os.Remove(full)
		return "", errors.Internal("Failed to store attachment", err)
	}
	if err := f.Close(); err != nil {
		return "", errors.Internal("Failed to store attachment", err)
	}
	return key, nil
}

func (s *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	full, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound("Attachment", err)
		}
		return nil, errors.Internal("Failed to read attachment", err)
	}
	return f, nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	full, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return errors.Internal("Failed to delete attachment", err)
	}
	return nil
}

func (s *LocalStore) URL(string) string {
	return ""
}

func (s *LocalStore) Close() error {
	return nil
}
