package ops

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/hpungsan/facet/internal/blob"
	"github.com/hpungsan/facet/internal/errors"
	"github.com/hpungsan/facet/internal/persona"
)

// Get loads a saved persona.
func (c *Coordinator) Get(ctx context.Context, id string) (*persona.Persona, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	p, err := load[persona.Persona](ctx, c.store, PayloadKey(id), "persona", id)
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		p.ID = id
	}
	return p, nil
}

// GetMetadata loads the metadata record of a saved persona.
func (c *Coordinator) GetMetadata(ctx context.Context, id string) (*persona.Metadata, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	return load[persona.Metadata](ctx, c.store, MetadataKey(id), "persona metadata", id)
}

// load downloads key and decodes it. A missing object is NOT_FOUND; any other
// failure, including undecodable content, is STORAGE_ERROR.
func load[T any](ctx context.Context, store blob.Store, key, what, id string) (*T, error) {
	data, err := store.Download(ctx, key)
	if err != nil {
		if stderrors.Is(err, blob.ErrNotFound) {
			return nil, errors.NewNotFound(what, id)
		}
		return nil, errors.NewStorage("failed to read "+what, err)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, errors.NewStorage("stored "+what+" is not valid JSON", err).
			WithDetail("key", key)
	}
	return &v, nil
}
