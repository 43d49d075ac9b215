package receipts

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
)

// LocalStore writes receipts below a directory on the local filesystem.
type LocalStore struct {
	root string
}

// NewLocalStore creates a store rooted at root (UPLOAD_DIR).
func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

// Backend implements Store.
func (s *LocalStore) Backend() string { return "local" }

// Store writes r to root/key and returns key as the reference.
func (s *LocalStore) Store(ctx context.Context, r io.Reader, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}

	dst, err := s.Path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("%w: create directory: %v", ErrStorage, err)
	}

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("%w: create file: %v", ErrStorage, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(dst)
		return "", fmt.Errorf("%w: write file: %v", ErrStorage, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("%w: close file: %v", ErrStorage, err)
	}

	return key, nil
}

// Path resolves a key to its location on disk. The key is cleaned as a
// rooted path so it cannot escape the root.
func (s *LocalStore) Path(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("%w: invalid key %q", ErrStorage, key)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}
