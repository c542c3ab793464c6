package blob

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Store for tests and ephemeral runs.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	now     func() time.Time
}

type memoryObject struct {
	data        []byte
	contentType string
	createdAt   time.Time
	updatedAt   time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		objects: make(map[string]memoryObject),
		now:     time.Now,
	}
}

func (m *Memory) Upload(ctx context.Context, key string, data []byte, opts UploadOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	existing, exists := m.objects[key]
	if exists && !opts.Overwrite {
		return ErrAlreadyExists
	}

	obj := memoryObject{
		data:        slices.Clone(data),
		contentType: opts.ContentType,
		createdAt:   now,
		updatedAt:   now,
	}
	if exists {
		obj.createdAt = existing.createdAt
	}
	m.objects[key] = obj
	return nil
}

func (m *Memory) Download(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(obj.data), nil
}

func (m *Memory) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ObjectInfo
	for key, obj := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, ObjectInfo{
				Key:       key,
				Size:      int64(len(obj.data)),
				CreatedAt: obj.createdAt,
				UpdatedAt: obj.updatedAt,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Memory) Remove(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.objects, key)
	}
	return nil
}
