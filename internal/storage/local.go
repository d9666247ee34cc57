package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Local stores blobs as files under a root directory.
type Local struct {
	path string
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(path string) (*Local, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewLocalStore: failed to make path %q absolute: %w", path, err)
	}
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("storage.NewLocalStore: failed to create path %q: %w", path, err)
	}
	return &Local{path: path}, nil
}

func (s *Local) pathForID(id string) (string, error) {
	full := filepath.Join(s.path, strings.TrimPrefix(id, "/"))
	if full == s.path || !strings.HasPrefix(full, s.path+string(filepath.Separator)) {
		return "", fmt.Errorf("storage.Local: invalid id %q", id)
	}
	return full, nil
}

// Put writes data to a file named name.
func (s *Local) Put(_ context.Context, name string, data []byte, _ string) (string, error) {
	full, err := s.pathForID(name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(full, data, 0o600); err != nil {
		os.Remove(full)
		return "", fmt.Errorf("storage.Local: write %q: %w", name, err)
	}
	return name, nil
}

// Get reads the file stored under id.
func (s *Local) Get(_ context.Context, id string) ([]byte, error) {
	full, err := s.pathForID(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoObject
	}
	return data, err
}

// Delete removes the file stored under id.
func (s *Local) Delete(_ context.Context, id string) error {
	full, err := s.pathForID(id)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNoObject
		}
		return err
	}
	return nil
}
