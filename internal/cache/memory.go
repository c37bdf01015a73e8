package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory is the in-process TTL store.
type Memory struct {
	records *gocache.Cache
}

// NewMemory creates an in-memory store whose entries expire after ttl.
func NewMemory(ttl time.Duration) *Memory {
	// The janitor sweeps expired entries so long-lived processes do not
	// accumulate stale records between resolutions.
	return &Memory{records: gocache.New(ttl, ttl)}
}

func (m *Memory) Get(key Key) (Entry, bool) {
	value, ok := m.records.Get(key.String())
	if !ok {
		return Entry{}, false
	}
	entry, ok := value.(Entry)
	return entry, ok
}

func (m *Memory) Put(key Key, entry Entry) {
	m.records.Set(key.String(), entry, gocache.DefaultExpiration)
}

func (m *Memory) Invalidate(key Key) {
	m.records.Delete(key.String())
}

func (m *Memory) Clear() error {
	m.records.Flush()
	return nil
}

// Disabled is the pass-through store: every read is a miss and writes are
// discarded.
type Disabled struct{}

func (Disabled) Get(Key) (Entry, bool) { return Entry{}, false }
func (Disabled) Put(Key, Entry)        {}
func (Disabled) Invalidate(Key)        {}
func (Disabled) Clear() error          { return nil }
