package ops

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/facet/internal/blob"
	"github.com/hpungsan/facet/internal/errors"
)

// TestFullWorkflow exercises the complete persona lifecycle on each store:
// save → get → metadata → update → list → delete → get (not found)
func TestFullWorkflow(t *testing.T) {
	stores := map[string]func(t *testing.T) blob.Store{
		"memory": func(*testing.T) blob.Store { return blob.NewMemory() },
		"sqlite": func(t *testing.T) blob.Store {
			s, err := blob.OpenSQLite(filepath.Join(t.TempDir(), "facet.db"), 0)
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}

	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := newTestCoordinator(t, open(t))

			// 1. Save
			saved, err := c.Save(ctx, janeDoe())
			require.NoError(t, err)
			id := saved.PersonaID

			// 2. Get
			got, err := c.Get(ctx, id)
			require.NoError(t, err)
			require.Equal(t, "Jane Doe", got.Name)

			// 3. Metadata
			meta, err := c.GetMetadata(ctx, id)
			require.NoError(t, err)
			require.Equal(t, saved.Metadata.Checksum, meta.Checksum)

			// 4. Update
			got.Occupation = stringPtr("Staff Engineer")
			updated, err := c.Update(ctx, id, got)
			require.NoError(t, err)
			require.True(t, updated.Metadata.CreatedAt.Equal(meta.CreatedAt))

			// 5. List
			list, err := c.List(ctx, ListInput{})
			require.NoError(t, err)
			require.Len(t, list.Items, 1)
			require.Equal(t, id, list.Items[0].ID)

			// 6. Delete
			_, err = c.Delete(ctx, id)
			require.NoError(t, err)

			// 7. Get (not found)
			_, err = c.Get(ctx, id)
			require.True(t, errors.Is(err, errors.ErrNotFound))
		})
	}
}
