package ops

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/facet/internal/blob"
	"github.com/hpungsan/facet/internal/errors"
	"github.com/hpungsan/facet/internal/persona"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	Limit  int // default: 20, max: 100
	Offset int // default: 0
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items      []persona.Summary `json:"items"`
	Pagination Pagination        `json:"pagination"`
	Sort       string            `json:"sort"`
}

// List returns saved personas, newest first. Only metadata objects are
// enumerated; payloads are read for the requested page to obtain names, and a
// payload that cannot be read is left out of the page.
func (c *Coordinator) List(ctx context.Context, input ListInput) (*ListOutput, error) {
	// Apply limit defaults and bounds
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	// Ensure offset is non-negative
	offset := max(input.Offset, 0)

	objects, err := c.store.List(ctx, "")
	if err != nil {
		return nil, errors.NewStorage("failed to list personas", err)
	}

	metas := make([]blob.ObjectInfo, 0, len(objects))
	for _, obj := range objects {
		if strings.HasSuffix(obj.Key, metadataSuffix) {
			metas = append(metas, obj)
		}
	}
	sort.SliceStable(metas, func(i, j int) bool {
		if !metas[i].CreatedAt.Equal(metas[j].CreatedAt) {
			return metas[i].CreatedAt.After(metas[j].CreatedAt)
		}
		return metas[i].Key > metas[j].Key
	})

	total := len(metas)
	start := min(offset, total)
	end := min(offset+limit, total)

	items := []persona.Summary{}
	for _, obj := range metas[start:end] {
		id := strings.TrimSuffix(obj.Key, metadataSuffix)
		p, err := load[persona.Persona](ctx, c.store, PayloadKey(id), "persona", id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("skipping persona that failed to load",
				zap.String("persona_id", id), zap.Error(err))
			continue
		}
		items = append(items, persona.Summary{
			ID:        id,
			Name:      p.Name,
			CreatedAt: obj.CreatedAt,
		})
	}

	return &ListOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: end < total,
			Total:   total,
		},
		Sort: "created_at_desc",
	}, nil
}
