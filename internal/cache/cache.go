// Package cache memoizes per-principal directory lookups so repeated
// resolutions stay affordable. The cache is strictly an optimization: with
// the disabled store every lookup falls through to the directory client and
// the engine behaves identically, just slower.
package cache

import (
	"fmt"
	"time"

	"github.com/permscope/permscope/internal/models"
)

// RecordKind distinguishes the cached record families. Entries are keyed by
// (principal object ID, record kind).
type RecordKind string

const (
	RecordMemberships     RecordKind = "memberships"
	RecordRoleAssignments RecordKind = "role_assignments"
	RecordPermissions     RecordKind = "permissions"
	RecordIdentity        RecordKind = "identity"
)

// Key identifies one cache entry.
type Key struct {
	PrincipalID string
	Kind        RecordKind
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s", k.Kind, k.PrincipalID)
}

// Entry is one cached record. Writes replace the whole entry; entries are
// never patched in place, so readers can never observe a half-merged view.
type Entry struct {
	Memberships     []string                `json:"memberships,omitempty"`
	RoleAssignments []models.RoleAssignment `json:"role_assignments,omitempty"`
	Permissions     []models.ApiPermission  `json:"permissions,omitempty"`
	Identity        *models.Identity        `json:"identity,omitempty"`

	// Freshness marker; entries past the store's TTL read as misses.
	StoredAt time.Time `json:"stored_at"`
}

// Store is the cache contract. Implementations tolerate concurrent readers
// and writers with per-key granularity; concurrent writers for the same key
// race freely and the last write wins.
type Store interface {
	// Get returns the entry for key, or false on a miss or expiry.
	Get(key Key) (Entry, bool)

	// Put atomically replaces the whole entry for key.
	Put(key Key, entry Entry)

	// Invalidate drops the entry for key.
	Invalidate(key Key)

	// Clear drops every entry.
	Clear() error
}

// Config holds the bind-at-startup cache settings.
type Config struct {
	Enabled bool `mapstructure:"enabled"`

	// Location is the bbolt file path for the persistent store. Empty
	// selects the in-memory store.
	Location string `mapstructure:"location"`

	TTLMinutes int `mapstructure:"ttl_minutes"`
}

func (c Config) TTL() time.Duration {
	if c.TTLMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.TTLMinutes) * time.Minute
}

// New constructs the store selected by the configuration.
func New(cfg Config) (Store, error) {
	if !cfg.Enabled {
		return Disabled{}, nil
	}
	if len(cfg.Location) > 0 {
		return NewBolt(cfg.Location, cfg.TTL())
	}
	return NewMemory(cfg.TTL()), nil
}
