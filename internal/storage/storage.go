package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrObjectNotFound = errors.New("stored object not found")
	ErrInvalidKey     = errors.New("invalid storage key")
)

// FileStore keeps uploaded bytes under opaque keys.
type FileStore interface {
	// Save writes data under key, replacing any existing object.
	Save(ctx context.Context, key string, data io.Reader, size int64) error
	Exists(ctx context.Context, key string) (bool, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete is a no-op when the object is absent.
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// validateKey accepts only flat object names.
func validateKey(key string) error {
	if key == "" || key == "." || key == ".." ||
		strings.ContainsAny(key, `/\`) || strings.ContainsRune(key, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
