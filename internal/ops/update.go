package ops

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/hpungsan/facet/internal/blob"
	"github.com/hpungsan/facet/internal/errors"
	"github.com/hpungsan/facet/internal/persona"
)

// UpdateOutput contains the result of the Update operation.
type UpdateOutput struct {
	PersonaID string           `json:"persona_id"`
	Metadata  persona.Metadata `json:"metadata"`
}

// Update replaces the payload of an existing persona and refreshes its
// metadata. created_at is preserved. If the metadata rewrite fails the
// previous payload is put back.
func (c *Coordinator) Update(ctx context.Context, id string, p *persona.Persona) (*UpdateOutput, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, persona.ValidatePersona(nil)
	}
	p = p.Clone()
	p.FillDefaults()
	if err := persona.ValidatePersona(p); err != nil {
		return nil, err
	}
	if p.ID != "" && p.ID != id {
		return nil, errors.NewValidation("persona id does not match the addressed id",
			errors.FieldError{Field: "id", Message: "must match " + id})
	}
	p.ID = id

	meta, err := c.GetMetadata(ctx, id)
	if err != nil {
		return nil, err
	}

	payloadKey := PayloadKey(id)
	previous, err := c.store.Download(ctx, payloadKey)
	if err != nil && !stderrors.Is(err, blob.ErrNotFound) {
		return nil, errors.NewStorage("failed to read persona", err)
	}

	data, err := json.Marshal(p)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := c.upload(ctx, payloadKey, data, true); err != nil {
		return nil, errors.NewStorage("failed to write persona", err)
	}

	updated := *meta
	updated.UpdatedAt = c.now().UTC()
	updated.SourceTextBlocks = p.Metadata.SourceTextBlocks
	updated.SourceLinks = p.Metadata.SourceLinks
	updated.FileSize = int64(len(data))
	updated.Checksum = checksum(data)

	if err := c.writeMetadata(ctx, updated, true); err != nil {
		return nil, c.restore(ctx, payloadKey, previous, err)
	}

	c.logger.Info("persona updated", zap.String("persona_id", id), zap.Int64("file_size", updated.FileSize))
	return &UpdateOutput{PersonaID: id, Metadata: updated}, nil
}

// restore puts back the payload that was in place before a failed update.
func (c *Coordinator) restore(ctx context.Context, payloadKey string, previous []byte, cause error) error {
	c.logger.Warn("metadata rewrite failed; restoring previous payload",
		zap.String("key", payloadKey), zap.Error(cause))

	ctx = context.WithoutCancel(ctx)
	var err error
	if previous == nil {
		err = c.store.Remove(ctx, payloadKey)
	} else {
		err = c.upload(ctx, payloadKey, previous, true)
	}
	if err != nil {
		c.logger.Error("restoring payload failed",
			zap.String("key", payloadKey), zap.Error(err))
		return errors.NewStorage("failed to write persona metadata and to restore its payload",
			stderrors.Join(cause, err)).
			WithDetail("inconsistent_key", payloadKey)
	}
	return errors.NewStorage("failed to write persona metadata", cause)
}
