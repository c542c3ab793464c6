// Package cache memoizes extracted personas by input content.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"time"

	"github.com/hpungsan/facet/internal/persona"
)

// DefaultTTL is how long an extraction result stays reusable.
const DefaultTTL = 24 * time.Hour

// KeyPrefix starts every fingerprint.
const KeyPrefix = "persona_"

// Cache stores persona snapshots keyed by the fingerprint of their input.
// Implementations copy personas on the way in and out.
type Cache interface {
	// Lookup returns the cached persona for in, if present and fresh.
	Lookup(ctx context.Context, in persona.Input) (*persona.Persona, bool, error)
	// Store records p as the result for in.
	Store(ctx context.Context, in persona.Input, p *persona.Persona) error
	// Stats reports live entries.
	Stats(ctx context.Context) (Stats, error)
	// Clear drops every entry.
	Clear(ctx context.Context) error
}

// Stats describes cache contents.
type Stats struct {
	Size int      `json:"size"`
	Keys []string `json:"keys"`
}

// Fingerprint derives the cache key for an input. Blocks and links are
// hashed in order, each with a length prefix, so neither reordering nor
// moving characters across block boundaries maps to the same key.
func Fingerprint(in persona.Input) string {
	h := sha256.New()
	writeList(h, in.TextBlocks)
	writeList(h, in.Links)
	return KeyPrefix + hex.EncodeToString(h.Sum(nil))
}

func writeList(h hash.Hash, items []string) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(len(items)))
	h.Write(buf[:])
	for _, s := range items {
		binary.BigEndian.PutUint64(buf[:], uint64(len(s)))
		h.Write(buf[:])
		h.Write([]byte(s))
	}
}
