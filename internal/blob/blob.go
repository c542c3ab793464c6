// Package blob is the key/value object storage that personas are persisted in.
package blob

import (
	"context"
	stderrors "errors"
	"time"
)

var (
	// ErrNotFound reports a missing key.
	ErrNotFound = stderrors.New("blob: object not found")
	// ErrAlreadyExists reports a non-overwriting upload onto an existing key.
	ErrAlreadyExists = stderrors.New("blob: object already exists")
)

// ContentTypeJSON is the content type persona objects are stored with.
const ContentTypeJSON = "application/json"

// UploadOptions controls a single upload.
type UploadOptions struct {
	ContentType string
	// Overwrite replaces an existing object. When false an existing key
	// fails with ErrAlreadyExists and is left untouched.
	Overwrite bool
}

// ObjectInfo describes a stored object without its data.
type ObjectInfo struct {
	Key       string
	Size      int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is the object storage capability. Each method is atomic for a single
// key; nothing spans keys.
type Store interface {
	Upload(ctx context.Context, key string, data []byte, opts UploadOptions) error
	// Download fails with ErrNotFound for a missing key.
	Download(ctx context.Context, key string) ([]byte, error)
	// List returns objects whose key starts with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// Remove deletes keys. Missing keys are ignored.
	Remove(ctx context.Context, keys ...string) error
}
