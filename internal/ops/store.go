package ops

import (
	"context"
	"crypto/rand"
	"encoding/json"
	stderrors "errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/hpungsan/facet/internal/blob"
	"github.com/hpungsan/facet/internal/errors"
	"github.com/hpungsan/facet/internal/persona"
)

// SaveOutput contains the result of the Save operation.
type SaveOutput struct {
	PersonaID string           `json:"persona_id"`
	Metadata  persona.Metadata `json:"metadata"`
}

// Save persists p as a new persona. An empty id is replaced by a fresh ULID;
// an id that is already taken fails with ALREADY_EXISTS.
//
// The payload is written first. If the metadata write then fails the payload
// is removed again, so a persona is either fully saved or absent.
func (c *Coordinator) Save(ctx context.Context, p *persona.Persona) (*SaveOutput, error) {
	if p == nil {
		return nil, persona.ValidatePersona(nil)
	}
	p = p.Clone()
	p.FillDefaults()
	if err := persona.ValidatePersona(p); err != nil {
		return nil, err
	}

	id := strings.TrimSpace(p.ID)
	if id == "" {
		var err error
		if id, err = c.newID(); err != nil {
			return nil, errors.NewInternal(err)
		}
	} else if err := ValidateID(id); err != nil {
		return nil, err
	}
	p.ID = id

	data, err := json.Marshal(p)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	payloadKey := PayloadKey(id)
	if err := c.upload(ctx, payloadKey, data, false); err != nil {
		if stderrors.Is(err, blob.ErrAlreadyExists) {
			return nil, errors.NewAlreadyExists(id)
		}
		return nil, errors.NewStorage("failed to write persona", err)
	}

	now := c.now().UTC()
	meta := persona.Metadata{
		PersonaID:        id,
		CreatedAt:        now,
		UpdatedAt:        now,
		SourceTextBlocks: p.Metadata.SourceTextBlocks,
		SourceLinks:      p.Metadata.SourceLinks,
		FileSize:         int64(len(data)),
		Checksum:         checksum(data),
	}
	if err := c.writeMetadata(ctx, meta, false); err != nil {
		return nil, c.compensate(ctx, payloadKey, err)
	}

	c.logger.Info("persona saved",
		zap.String("persona_id", id),
		zap.String("name", p.Name),
		zap.Int64("file_size", meta.FileSize))

	return &SaveOutput{PersonaID: id, Metadata: meta}, nil
}

// compensate removes a payload whose metadata could not be written and
// returns the error the caller should see.
func (c *Coordinator) compensate(ctx context.Context, payloadKey string, cause error) error {
	c.logger.Warn("metadata write failed; removing payload",
		zap.String("key", payloadKey), zap.Error(cause))

	// The payload must go even when the caller has given up.
	if err := c.store.Remove(context.WithoutCancel(ctx), payloadKey); err != nil {
		c.logger.Error("compensating delete failed; payload is orphaned",
			zap.String("orphaned_key", payloadKey), zap.Error(err))
		return errors.NewStorage("failed to write persona metadata and to remove its payload",
			stderrors.Join(cause, err)).
			WithDetail("orphaned_key", payloadKey)
	}
	return errors.NewStorage("failed to write persona metadata", cause)
}

func (c *Coordinator) upload(ctx context.Context, key string, data []byte, overwrite bool) error {
	return c.store.Upload(ctx, key, data, blob.UploadOptions{
		ContentType: blob.ContentTypeJSON,
		Overwrite:   overwrite,
	})
}

func (c *Coordinator) writeMetadata(ctx context.Context, meta persona.Metadata, overwrite bool) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return c.upload(ctx, MetadataKey(meta.PersonaID), data, overwrite)
}

// generateULID generates a new ULID.
func generateULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
