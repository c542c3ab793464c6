package ops

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hpungsan/facet/internal/blob"
	"github.com/hpungsan/facet/internal/errors"
)

func saveNamed(t *testing.T, c *Coordinator, names ...string) []string {
	t.Helper()
	ids := make([]string, 0, len(names))
	for _, name := range names {
		p := janeDoe()
		p.Name = name
		out, err := c.Save(context.Background(), p)
		require.NoError(t, err)
		ids = append(ids, out.PersonaID)
	}
	return ids
}

func TestList_Empty(t *testing.T) {
	out, err := newTestCoordinator(t, blob.NewMemory()).List(context.Background(), ListInput{})
	require.NoError(t, err)
	assert.NotNil(t, out.Items)
	assert.Empty(t, out.Items)
	assert.Equal(t, Pagination{Limit: DefaultListLimit}, out.Pagination)
	assert.Equal(t, "created_at_desc", out.Sort)
}

func TestList_LimitTwoOfThree(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(t, blob.NewMemory(), WithIDGenerator(sequentialIDs()))
	saveNamed(t, c, "Ann", "Bob", "Cy")

	out, err := c.List(ctx, ListInput{Limit: 2})
	require.NoError(t, err)
	require.Len(t, out.Items, 2)
	assert.Equal(t, "Cy", out.Items[0].Name, "newest first")
	assert.Equal(t, "Bob", out.Items[1].Name)
	assert.Equal(t, Pagination{Limit: 2, Offset: 0, HasMore: true, Total: 3}, out.Pagination)

	next, err := c.List(ctx, ListInput{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, next.Items, 1)
	assert.Equal(t, "Ann", next.Items[0].Name)
	assert.Equal(t, "p1", next.Items[0].ID)
	assert.False(t, next.Pagination.HasMore)
}

func TestList_Bounds(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(t, blob.NewMemory())
	saveNamed(t, c, "Ann")

	out, err := c.List(ctx, ListInput{Limit: 1000, Offset: -5})
	require.NoError(t, err)
	assert.Equal(t, MaxListLimit, out.Pagination.Limit)
	assert.Equal(t, 0, out.Pagination.Offset)
	assert.Len(t, out.Items, 1)

	out, err = c.List(ctx, ListInput{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, out.Items)
	assert.Equal(t, 1, out.Pagination.Total)
	assert.False(t, out.Pagination.HasMore)
}

func TestList_SkipsUnreadablePayload(t *testing.T) {
	ctx := context.Background()
	store := &faultStore{Store: blob.NewMemory()}
	c, logs := observed(store, zap.NewAtomicLevelAt(zap.WarnLevel), WithIDGenerator(sequentialIDs()))
	saveNamed(t, c, "Ann", "Bob")

	store.downloadErr = func(key string) error {
		if key == "p1.json" {
			return stderrors.New("corrupt block")
		}
		return nil
	}

	out, err := c.List(ctx, ListInput{})
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	assert.Equal(t, "Bob", out.Items[0].Name)
	assert.Equal(t, 2, out.Pagination.Total, "total counts metadata objects")

	entries := logs.FilterMessage("skipping persona that failed to load").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "p1", entries[0].ContextMap()["persona_id"])
}

func TestList_IgnoresPayloadOnlyObjects(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	require.NoError(t, store.Upload(ctx, "stray.json", []byte(`{"name":"Stray"}`), blob.UploadOptions{}))
	c := newTestCoordinator(t, store)
	saveNamed(t, c, "Ann")

	out, err := c.List(ctx, ListInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Pagination.Total)
	require.Len(t, out.Items, 1)
	assert.Equal(t, "Ann", out.Items[0].Name)
}

func TestList_StorageFailure(t *testing.T) {
	store := &faultStore{Store: blob.NewMemory(), listErr: stderrors.New("unreachable")}
	_, err := newTestCoordinator(t, store).List(context.Background(), ListInput{})
	assert.True(t, errors.Is(err, errors.ErrStorage))
}
