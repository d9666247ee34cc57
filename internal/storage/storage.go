// Package storage keeps voice recordings outside the database.
package storage

import (
	"context"
	"errors"
)

// ErrNoObject is returned when a blob does not exist.
var ErrNoObject = errors.New("storage: object not found")

// Store saves and loads blobs by id.
type Store interface {
	// Put stores data under name and returns the id to load it with.
	Put(ctx context.Context, name string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
}
