package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hpungsan/facet/internal/persona"
)

// MemoryOptions configures a Memory cache.
type MemoryOptions struct {
	// TTL defaults to DefaultTTL when zero.
	TTL time.Duration
	// MaxEntries evicts the oldest entry on insert once reached. 0 is unbounded.
	MaxEntries int
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Memory is a process-local Cache. Expired entries are evicted lazily, when
// read or when Stats is called.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

type memoryEntry struct {
	persona  *persona.Persona
	storedAt time.Time
}

var _ Cache = (*Memory)(nil)

// NewMemory creates an empty memory cache.
func NewMemory(opts MemoryOptions) *Memory {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Memory{
		entries:    make(map[string]memoryEntry),
		ttl:        opts.TTL,
		maxEntries: opts.MaxEntries,
		now:        opts.Now,
	}
}

// Lookup returns a copy of the fresh entry for in.
func (m *Memory) Lookup(_ context.Context, in persona.Input) (*persona.Persona, bool, error) {
	key := Fingerprint(in)

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !m.fresh(e) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return e.persona.Clone(), true, nil
}

// Store saves a copy of p, replacing any previous entry for in.
func (m *Memory) Store(_ context.Context, in persona.Input, p *persona.Persona) error {
	key := Fingerprint(in)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists && m.maxEntries > 0 && len(m.entries) >= m.maxEntries {
		m.evictOldest()
	}
	m.entries[key] = memoryEntry{persona: p.Clone(), storedAt: m.now()}
	return nil
}

// Stats drops expired entries and reports the rest, keys sorted.
func (m *Memory) Stats(_ context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.entries))
	for k, e := range m.entries {
		if !m.fresh(e) {
			delete(m.entries, k)
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return Stats{Size: len(keys), Keys: keys}, nil
}

// Clear drops every entry.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.entries)
	return nil
}

func (m *Memory) fresh(e memoryEntry) bool {
	return m.now().Sub(e.storedAt) < m.ttl
}

// evictOldest must be called with mu held.
func (m *Memory) evictOldest() {
	var (
		oldestKey string
		oldest    time.Time
	)
	for k, e := range m.entries {
		if oldestKey == "" || e.storedAt.Before(oldest) {
			oldestKey, oldest = k, e.storedAt
		}
	}
	if oldestKey != "" {
		delete(m.entries, oldestKey)
	}
}
