package ops

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hpungsan/facet/internal/blob"
	"github.com/hpungsan/facet/internal/errors"
	"github.com/hpungsan/facet/internal/persona"
)

func TestSave_HappyPath(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	c := newTestCoordinator(t, store)

	out, err := c.Save(ctx, janeDoe())
	require.NoError(t, err)
	assert.Len(t, out.PersonaID, 26, "ULID")

	meta := out.Metadata
	assert.Equal(t, out.PersonaID, meta.PersonaID)
	assert.Equal(t, 1, meta.SourceTextBlocks)
	assert.Equal(t, 0, meta.SourceLinks)
	assert.Equal(t, meta.CreatedAt, meta.UpdatedAt)

	payload, err := store.Download(ctx, PayloadKey(out.PersonaID))
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), meta.FileSize)
	assert.Equal(t, checksum(payload), meta.Checksum)

	var stored persona.Metadata
	raw, err := store.Download(ctx, MetadataKey(out.PersonaID))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Equal(t, meta, stored)
}

func TestSave_ThenGetIsEqual(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(t, blob.NewMemory())

	in := janeDoe()
	out, err := c.Save(ctx, in)
	require.NoError(t, err)

	got, err := c.Get(ctx, out.PersonaID)
	require.NoError(t, err)

	want := in.Clone()
	want.ID = out.PersonaID
	assert.Equal(t, want, got)
	assert.Empty(t, in.ID, "caller's persona is not modified")
}

func TestSave_CallerSuppliedID(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(t, blob.NewMemory())

	p := janeDoe()
	p.ID = "jane"
	out, err := c.Save(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "jane", out.PersonaID)

	// same id again collides and leaves the stored payload untouched
	other := janeDoe()
	other.ID = "jane"
	other.Name = "Someone Else"
	_, err = c.Save(ctx, other)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAlreadyExists))

	got, err := c.Get(ctx, "jane")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", got.Name)
}

func TestSave_InvalidID(t *testing.T) {
	p := janeDoe()
	p.ID = "../etc/passwd"
	_, err := newTestCoordinator(t, blob.NewMemory()).Save(context.Background(), p)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestSave_Validation(t *testing.T) {
	c := newTestCoordinator(t, blob.NewMemory())

	_, err := c.Save(context.Background(), nil)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	p := janeDoe()
	p.Age = intPtr(200)
	_, err = c.Save(context.Background(), p)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	p = janeDoe()
	p.Goals = make([]string, 21)
	for i := range p.Goals {
		p.Goals[i] = "goal"
	}
	_, err = c.Save(context.Background(), p)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestSave_FillsDefaults(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(t, blob.NewMemory())

	out, err := c.Save(ctx, &persona.Persona{})
	require.NoError(t, err)

	got, err := c.Get(ctx, out.PersonaID)
	require.NoError(t, err)
	assert.Equal(t, persona.DefaultName, got.Name)
	assert.NotNil(t, got.Traits)
}

func TestSave_CompensatesWhenMetadataFails(t *testing.T) {
	ctx := context.Background()
	boom := stderrors.New("disk full")
	store := &faultStore{Store: blob.NewMemory(), uploadErr: failSuffix(metadataSuffix, boom)}
	c, logs := observed(store, zap.NewAtomicLevelAt(zap.WarnLevel), WithIDGenerator(sequentialIDs()))

	_, err := c.Save(ctx, janeDoe())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStorage))
	assert.ErrorIs(t, err, boom, "original failure is surfaced")

	assert.Equal(t, []string{"p1.json"}, store.removedKeys)
	_, err = store.Download(ctx, "p1.json")
	assert.ErrorIs(t, err, blob.ErrNotFound, "payload must be removed")

	objects, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, objects)

	assert.Equal(t, 1, logs.FilterMessage("metadata write failed; removing payload").Len())
}

func TestSave_OrphanedPayloadReported(t *testing.T) {
	ctx := context.Background()
	store := &faultStore{
		Store:     blob.NewMemory(),
		uploadErr: failSuffix(metadataSuffix, stderrors.New("metadata write failed")),
		removeErr: failSuffix(payloadSuffix, stderrors.New("remove failed")),
	}
	c, logs := observed(store, zap.NewAtomicLevelAt(zap.WarnLevel), WithIDGenerator(sequentialIDs()))

	_, err := c.Save(ctx, janeDoe())
	require.Error(t, err)
	fErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrStorage, fErr.Code)
	assert.Equal(t, "p1.json", fErr.Details["orphaned_key"])

	entries := logs.FilterMessage("compensating delete failed; payload is orphaned").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "p1.json", entries[0].ContextMap()["orphaned_key"])
}

func TestSave_CompensationIgnoresCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := &faultStore{
		Store: blob.NewMemory(),
		uploadErr: func(key string) error {
			if key == "p1.meta.json" {
				cancel()
				return context.Canceled
			}
			return nil
		},
	}
	c := newTestCoordinator(t, store, WithIDGenerator(sequentialIDs()))

	_, err := c.Save(ctx, janeDoe())
	require.Error(t, err)

	_, err = store.Download(context.Background(), "p1.json")
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func TestSave_PayloadFailure(t *testing.T) {
	store := &faultStore{Store: blob.NewMemory(), uploadErr: failSuffix(payloadSuffix, stderrors.New("io"))}
	c := newTestCoordinator(t, store, WithIDGenerator(sequentialIDs()))

	_, err := c.Save(context.Background(), janeDoe())
	assert.True(t, errors.Is(err, errors.ErrStorage))
	assert.Empty(t, store.removedKeys, "nothing to compensate")
}

func TestSave_IDGeneratorFailure(t *testing.T) {
	c := newTestCoordinator(t, blob.NewMemory(), WithIDGenerator(func() (string, error) {
		return "", stderrors.New("entropy exhausted")
	}))
	_, err := c.Save(context.Background(), janeDoe())
	assert.True(t, errors.Is(err, errors.ErrInternal))
}

func TestSave_ConcurrentSavesGetDistinctIDs(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(t, blob.NewMemory())

	const n = 20
	ids := make(chan string, n)
	errs := make(chan error, n)
	for range n {
		go func() {
			out, err := c.Save(ctx, janeDoe())
			if err != nil {
				errs <- err
				return
			}
			ids <- out.PersonaID
		}()
	}

	seen := map[string]bool{}
	for range n {
		select {
		case err := <-errs:
			t.Fatalf("Save failed: %v", err)
		case id := <-ids:
			assert.False(t, seen[id], "duplicate id %s", id)
			seen[id] = true
		}
	}
}
