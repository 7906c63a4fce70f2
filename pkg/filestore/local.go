package filestore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// LocalStore implements Store on the local filesystem. Used for development
// and tests; production deployments use the Cloudinary backend.
type LocalStore struct {
	root   string
	logger zerolog.Logger
}

// NewLocalStore creates the root directory if needed and returns the store.
func NewLocalStore(root string, logger zerolog.Logger) (*LocalStore, error) {
	if root == "" {
		return nil, fmt.Errorf("filestore root must not be empty")
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create filestore root: %w", err)
	}

	return &LocalStore{
		root:   root,
		logger: logger.With().Str("component", "local_store").Logger(),
	}, nil
}

// Save writes the file under the root and returns its relative reference.
func (s *LocalStore) Save(_ context.Context, name string, reader io.Reader) (string, error) {
	objectName := buildObjectName(name)
	path := filepath.Join(s.root, objectName)

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}

	if _, err := io.Copy(file, reader); err != nil {
		file.Close()
		os.Remove(path)
		return "", fmt.Errorf("write file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close file: %w", err)
	}

	s.logger.Debug().Str("ref", objectName).Msg("file stored")

	return objectName, nil
}

// Read returns the stored bytes for the given reference.
func (s *LocalStore) Read(_ context.Context, ref string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.root, filepath.Base(ref)))
}

// Exists reports whether the reference resolves to a stored file.
func (s *LocalStore) Exists(_ context.Context, ref string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.root, filepath.Base(ref)))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
