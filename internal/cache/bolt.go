package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

var recordsBucket = []byte("records")

// Bolt is the file-backed store, used when a cache storage location is
// configured so entries survive process restarts.
type Bolt struct {
	db  *bolt.DB
	ttl time.Duration
}

// NewBolt opens (or creates) the cache file at path.
func NewBolt(path string, ttl time.Duration) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache file %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(recordsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache bucket: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"path": path,
		"ttl":  ttl,
	}).Debug("Opened file-backed cache")

	return &Bolt{db: db, ttl: ttl}, nil
}

func (b *Bolt) Get(key Key) (Entry, bool) {
	var entry Entry
	found := false

	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(recordsBucket).Get([]byte(key.String()))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &entry); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		logrus.WithError(err).WithField("key", key.String()).Warn("Cache read failed")
		return Entry{}, false
	}

	// Expiry is checked lazily on read; stale entries read as misses.
	if !found || time.Since(entry.StoredAt) > b.ttl {
		return Entry{}, false
	}
	return entry, true
}

func (b *Bolt) Put(key Key, entry Entry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		logrus.WithError(err).WithField("key", key.String()).Warn("Cache encode failed")
		return
	}

	err = b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket).Put([]byte(key.String()), raw)
	})
	if err != nil {
		// A failed write just means the next read is a miss.
		logrus.WithError(err).WithField("key", key.String()).Warn("Cache write failed")
	}
}

func (b *Bolt) Invalidate(key Key) {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket).Delete([]byte(key.String()))
	})
	if err != nil {
		logrus.WithError(err).WithField("key", key.String()).Warn("Cache invalidate failed")
	}
}

func (b *Bolt) Clear() error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(recordsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(recordsBucket)
		return err
	})
}

// Close releases the underlying cache file.
func (b *Bolt) Close() error {
	return b.db.Close()
}
