package ops

import (
	"context"
	stderrors "errors"
	"slices"

	"go.uber.org/zap"

	"github.com/hpungsan/facet/internal/blob"
	"github.com/hpungsan/facet/internal/errors"
)

// DeleteOutput contains the result of the Delete operation.
type DeleteOutput struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// Delete removes both objects of a persona. It is NOT_FOUND only when neither
// object exists. Both removals are attempted even if the first fails.
func (c *Coordinator) Delete(ctx context.Context, id string) (*DeleteOutput, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	keys := []string{PayloadKey(id), MetadataKey(id)}

	objects, err := c.store.List(ctx, id)
	if err != nil {
		return nil, errors.NewStorage("failed to look up persona", err)
	}
	found := slices.ContainsFunc(objects, func(obj blob.ObjectInfo) bool {
		return slices.Contains(keys, obj.Key)
	})
	if !found {
		return nil, errors.NewNotFound("persona", id)
	}

	var failed []string
	var errs []error
	for _, key := range keys {
		if err := c.store.Remove(ctx, key); err != nil {
			failed = append(failed, key)
			errs = append(errs, err)
		}
	}
	if len(failed) > 0 {
		c.logger.Error("persona delete incomplete",
			zap.String("persona_id", id), zap.Strings("failed_keys", failed))
		return nil, errors.NewStorage("failed to delete persona", stderrors.Join(errs...)).
			WithDetail("failed_keys", failed)
	}

	c.logger.Info("persona deleted", zap.String("persona_id", id))
	return &DeleteOutput{Deleted: true, ID: id}, nil
}
