package ops

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hpungsan/facet/internal/blob"
	"github.com/hpungsan/facet/internal/errors"
	"github.com/hpungsan/facet/internal/persona"
)

// faultStore wraps a store and fails selected calls.
type faultStore struct {
	blob.Store

	mu           sync.Mutex
	uploadErr    func(key string) error
	downloadErr  func(key string) error
	removeErr    func(key string) error
	listErr      error
	removedKeys  []string
	uploadedKeys []string
}

func (f *faultStore) Upload(ctx context.Context, key string, data []byte, opts blob.UploadOptions) error {
	f.mu.Lock()
	fail := f.uploadErr
	f.uploadedKeys = append(f.uploadedKeys, key)
	f.mu.Unlock()
	if fail != nil {
		if err := fail(key); err != nil {
			return err
		}
	}
	return f.Store.Upload(ctx, key, data, opts)
}

func (f *faultStore) Download(ctx context.Context, key string) ([]byte, error) {
	if f.downloadErr != nil {
		if err := f.downloadErr(key); err != nil {
			return nil, err
		}
	}
	return f.Store.Download(ctx, key)
}

func (f *faultStore) List(ctx context.Context, prefix string) ([]blob.ObjectInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.Store.List(ctx, prefix)
}

func (f *faultStore) Remove(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		f.mu.Lock()
		f.removedKeys = append(f.removedKeys, key)
		fail := f.removeErr
		f.mu.Unlock()
		if fail != nil {
			if err := fail(key); err != nil {
				return err
			}
		}
		if err := f.Store.Remove(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func failSuffix(suffix string, err error) func(string) error {
	return func(key string) error {
		if strings.HasSuffix(key, suffix) {
			return err
		}
		return nil
	}
}

// sequentialIDs yields p1, p2, ...
func sequentialIDs() func() (string, error) {
	var mu sync.Mutex
	n := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("p%d", n), nil
	}
}

// fixedClock returns a clock that advances by one second per call.
func fixedClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newTestCoordinator(t *testing.T, store blob.Store, opts ...Option) *Coordinator {
	t.Helper()
	return New(store, zap.NewNop(), opts...)
}

func observed(store blob.Store, level zap.AtomicLevel, opts ...Option) (*Coordinator, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return New(store, zap.New(core), opts...), logs
}

func intPtr(n int) *int          { return &n }
func stringPtr(s string) *string { return &s }

func janeDoe() *persona.Persona {
	return &persona.Persona{
		Name:       "Jane Doe",
		Age:        intPtr(34),
		Occupation: stringPtr("Software Engineer"),
		Background: "Builds distributed systems.",
		Traits:     []string{"analytical"},
		Interests:  []string{"hiking"},
		Skills:     []string{"Go"},
		Values:     []string{"honesty"},
		Goals:      []string{},
		Metadata: persona.Origin{
			SourceTextBlocks: 1,
			CreatedAt:        time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		},
		RawData: &persona.RawData{
			TextBlocks: []string{"Jane Doe is a 34-year-old software engineer who loves hiking."},
			Links:      []string{},
		},
	}
}

func TestValidateID(t *testing.T) {
	valid := []string{"01HZX3J5Q2W8N1", "jane-doe", strings.Repeat("a", MaxIDLen)}
	for _, id := range valid {
		assert.NoError(t, ValidateID(id), id)
	}

	invalid := []string{"", "   ", strings.Repeat("a", MaxIDLen+1), "a/b", `a\b`, "../x", "x.meta"}
	for _, id := range invalid {
		err := ValidateID(id)
		assert.True(t, errors.Is(err, errors.ErrValidation), "id %q: %v", id, err)
	}
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "abc.json", PayloadKey("abc"))
	assert.Equal(t, "abc.meta.json", MetadataKey("abc"))
}

func TestChecksum(t *testing.T) {
	// sha256 of the empty string
	assert.Equal(t, "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", checksum(nil))
	assert.NotEqual(t, checksum([]byte("a")), checksum([]byte("b")))
}

func TestGenerateULID(t *testing.T) {
	id, err := generateULID()
	require.NoError(t, err)
	assert.Len(t, id, 26)
	assert.NoError(t, ValidateID(id))

	other, err := generateULID()
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
}
