// Package store provides durable key-value blob backends for local client state.
package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("blob not found")

// BlobStore persists opaque values under fixed names.
type BlobStore interface {
	// Get returns ErrNotFound when nothing is stored under key.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Ping(ctx context.Context) error
}
