package ops

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/facet/internal/blob"
	"github.com/hpungsan/facet/internal/errors"
)

func TestUpdate_PreservesCreatedAt(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	c := newTestCoordinator(t, store, WithClock(fixedClock()))

	saved, err := c.Save(ctx, janeDoe())
	require.NoError(t, err)
	id := saved.PersonaID

	changed := janeDoe()
	changed.Background = "Now leads a platform team and mentors new engineers."
	changed.Metadata.SourceLinks = 2

	out, err := c.Update(ctx, id, changed)
	require.NoError(t, err)
	assert.Equal(t, id, out.PersonaID)
	assert.Equal(t, saved.Metadata.CreatedAt, out.Metadata.CreatedAt)
	assert.True(t, out.Metadata.UpdatedAt.After(saved.Metadata.UpdatedAt))
	assert.Equal(t, 2, out.Metadata.SourceLinks)
	assert.NotEqual(t, saved.Metadata.Checksum, out.Metadata.Checksum)

	payload, err := store.Download(ctx, PayloadKey(id))
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), out.Metadata.FileSize)
	assert.Equal(t, checksum(payload), out.Metadata.Checksum)

	got, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, changed.Background, got.Background)
	assert.Equal(t, id, got.ID)
}

func TestUpdate_RequiresExistingMetadata(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	c := newTestCoordinator(t, store)

	_, err := c.Update(ctx, "missing", janeDoe())
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	_, err = store.Download(ctx, "missing.json")
	assert.ErrorIs(t, err, blob.ErrNotFound, "nothing is written for unknown ids")
}

func TestUpdate_MismatchedID(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(t, blob.NewMemory())
	saved, err := c.Save(ctx, janeDoe())
	require.NoError(t, err)

	p := janeDoe()
	p.ID = "someone-else"
	_, err = c.Update(ctx, saved.PersonaID, p)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestUpdate_Validation(t *testing.T) {
	c := newTestCoordinator(t, blob.NewMemory())

	_, err := c.Update(context.Background(), "x", nil)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	p := janeDoe()
	p.Age = intPtr(-1)
	_, err = c.Update(context.Background(), "x", p)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestUpdate_RestoresPayloadWhenMetadataFails(t *testing.T) {
	ctx := context.Background()
	store := &faultStore{Store: blob.NewMemory()}
	c := newTestCoordinator(t, store, WithIDGenerator(sequentialIDs()))

	_, err := c.Save(ctx, janeDoe())
	require.NoError(t, err)
	before, err := store.Download(ctx, "p1.json")
	require.NoError(t, err)

	store.uploadErr = failSuffix(metadataSuffix, stderrors.New("quota exceeded"))

	changed := janeDoe()
	changed.Name = "Jane Smith"
	_, err = c.Update(ctx, "p1", changed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStorage))

	after, err := store.Download(ctx, "p1.json")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	got, err := c.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", got.Name)
}

func TestUpdate_RestoreFailureReported(t *testing.T) {
	ctx := context.Background()
	store := &faultStore{Store: blob.NewMemory()}
	c := newTestCoordinator(t, store, WithIDGenerator(sequentialIDs()))

	_, err := c.Save(ctx, janeDoe())
	require.NoError(t, err)

	writes := 0
	store.uploadErr = func(key string) error {
		if key == "p1.meta.json" {
			return stderrors.New("quota exceeded")
		}
		writes++
		if writes > 1 {
			return stderrors.New("restore failed")
		}
		return nil
	}

	_, err = c.Update(ctx, "p1", janeDoe())
	require.Error(t, err)
	fErr, _ := errors.As(err)
	assert.Equal(t, errors.ErrStorage, fErr.Code)
	assert.Equal(t, "p1.json", fErr.Details["inconsistent_key"])
}
