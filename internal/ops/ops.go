// Package ops persists personas as a payload object plus a metadata object
// and keeps the two consistent.
package ops

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/facet/internal/blob"
	"github.com/hpungsan/facet/internal/errors"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// MaxIDLen bounds caller-supplied persona ids.
const MaxIDLen = 100

const (
	payloadSuffix  = ".json"
	metadataSuffix = ".meta.json"
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// Coordinator owns the two-object layout of saved personas.
type Coordinator struct {
	store  blob.Store
	logger *zap.Logger
	now    func() time.Time
	newID  func() (string, error)
	paths  PathPolicy
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithIDGenerator replaces ULID generation.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(c *Coordinator) { c.newID = gen }
}

// WithPathPolicy sets where exports may be written and imports read.
func WithPathPolicy(p PathPolicy) Option {
	return func(c *Coordinator) { c.paths = p }
}

// New creates a Coordinator over store.
func New(store blob.Store, logger *zap.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  store,
		logger: logger.Named("ops"),
		now:    time.Now,
		newID:  generateULID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ValidateID checks that id is usable as an object key.
func ValidateID(id string) error {
	field := func(msg string) error {
		return errors.NewValidation("invalid persona id", errors.FieldError{Field: "id", Message: msg})
	}
	switch {
	case strings.TrimSpace(id) == "":
		return field("is required")
	case len(id) > MaxIDLen:
		return field("must be at most 100 characters")
	case strings.ContainsAny(id, `/\`):
		return field("must not contain path separators")
	case strings.HasSuffix(id, ".meta"):
		return field("must not end in .meta")
	}
	return nil
}

// PayloadKey is the object key of a persona payload.
func PayloadKey(id string) string { return id + payloadSuffix }

// MetadataKey is the object key of a persona's metadata.
func MetadataKey(id string) string { return id + metadataSuffix }

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}
