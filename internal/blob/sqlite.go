package blob

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/hpungsan/facet/internal/db"
)

// SQLiteStore keeps objects in a local SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating and migrating) the database at path.
// maxOpenConns > 0 caps the connection pool.
func OpenSQLite(path string, maxOpenConns int) (*SQLiteStore, error) {
	conn, err := db.Init(path)
	if err != nil {
		return nil, err
	}
	db.ConfigurePool(conn, maxOpenConns)
	return NewSQLite(conn), nil
}

// NewSQLite wraps an initialized database.
func NewSQLite(conn *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: conn, now: time.Now}
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Upload(ctx context.Context, key string, data []byte, opts UploadOptions) error {
	if data == nil {
		data = []byte{}
	}
	now := s.now().UnixMilli()
	obj := &db.Object{
		Key:         key,
		ContentType: opts.ContentType,
		Data:        data,
		Size:        int64(len(data)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if opts.Overwrite {
		return db.UpsertObject(ctx, s.db, obj)
	}

	err := db.InsertObject(ctx, s.db, obj)
	if stderrors.Is(err, db.ErrUniqueConstraint) {
		return ErrAlreadyExists
	}
	return err
}

func (s *SQLiteStore) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := db.GetObject(ctx, s.db, key)
	if stderrors.Is(err, db.ErrNoObject) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return obj.Data, nil
}

func (s *SQLiteStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	objs, err := db.ListObjects(ctx, s.db, prefix)
	if err != nil {
		return nil, err
	}

	out := make([]ObjectInfo, len(objs))
	for i, o := range objs {
		out[i] = ObjectInfo{
			Key:       o.Key,
			Size:      o.Size,
			CreatedAt: time.UnixMilli(o.CreatedAt).UTC(),
			UpdatedAt: time.UnixMilli(o.UpdatedAt).UTC(),
		}
	}
	return out, nil
}

func (s *SQLiteStore) Remove(ctx context.Context, keys ...string) error {
	return db.DeleteObjects(ctx, s.db, keys...)
}
