package blob

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSOptions configures a GCSStore.
type GCSOptions struct {
	Bucket string
	// Prefix is prepended to every key, e.g. "personas/".
	Prefix string
	// CredentialsFile is a service account key path or inline JSON.
	// Empty uses application default credentials.
	CredentialsFile string
}

// GCSStore keeps objects in a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
}

var _ Store = (*GCSStore)(nil)

// NewGCS creates a storage client for opts.Bucket.
func NewGCS(ctx context.Context, opts GCSOptions) (*GCSStore, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}

	clientOpts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if creds := strings.TrimSpace(opts.CredentialsFile); creds != "" {
		if strings.HasPrefix(creds, "{") {
			clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(creds)))
		} else {
			clientOpts = append(clientOpts, option.WithCredentialsFile(creds))
		}
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &GCSStore{
		client: client,
		bucket: client.Bucket(opts.Bucket),
		prefix: opts.Prefix,
	}, nil
}

// Close releases the storage client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) Upload(ctx context.Context, key string, data []byte, opts UploadOptions) error {
	obj := s.bucket.Object(s.prefix + key)
	if !opts.Overwrite {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	}

	w := obj.NewWriter(ctx)
	w.ContentType = opts.ContentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write %s to GCS: %w", key, err)
	}
	if err := w.Close(); err != nil {
		if isPreconditionFailed(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to close GCS writer for %s: %w", key, err)
	}
	return nil
}

func (s *GCSStore) Download(ctx context.Context, key string) ([]byte, error) {
	r, err := s.bucket.Object(s.prefix + key).NewReader(ctx)
	if stderrors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open GCS reader for %s: %w", key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from GCS: %w", key, err)
	}
	return data, nil
}

func (s *GCSStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: s.prefix + prefix})

	var out []ObjectInfo
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list GCS objects: %w", err)
		}
		out = append(out, ObjectInfo{
			Key:       strings.TrimPrefix(attrs.Name, s.prefix),
			Size:      attrs.Size,
			CreatedAt: attrs.Created.UTC(),
			UpdatedAt: updatedOrCreated(attrs).UTC(),
		})
	}
	return out, nil
}

func (s *GCSStore) Remove(ctx context.Context, keys ...string) error {
	var errs []error
	for _, key := range keys {
		err := s.bucket.Object(s.prefix + key).Delete(ctx)
		if err != nil && !stderrors.Is(err, storage.ErrObjectNotExist) {
			errs = append(errs, fmt.Errorf("failed to delete GCS object %s: %w", key, err))
		}
	}
	return stderrors.Join(errs...)
}

func updatedOrCreated(attrs *storage.ObjectAttrs) time.Time {
	if attrs.Updated.IsZero() {
		return attrs.Created
	}
	return attrs.Updated
}

func isPreconditionFailed(err error) bool {
	var gErr *googleapi.Error
	return stderrors.As(err, &gErr) && gErr.Code == http.StatusPreconditionFailed
}
