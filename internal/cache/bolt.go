package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var boltBucket = []byte("entries")

// BoltMirror persists cache entries in a single-file bbolt database. It is
// the default mirror: no external service, survives restarts, and one open
// handle owns the file for the process lifetime.
type BoltMirror struct {
	db *bolt.DB
}

// NewBoltMirror opens (or creates) the database at path, creating parent
// directories as needed.
func NewBoltMirror(path string) (*BoltMirror, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache db %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache bucket: %w", err)
	}
	return &BoltMirror{db: db}, nil
}

// Get returns the persisted entry for key, or ErrNotFound.
func (m *BoltMirror) Get(ctx context.Context, key string) (*Entry, error) {
	var e *Entry
	err := m.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(boltBucket).Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		var decoded Entry
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return fmt.Errorf("decode entry %s: %w", key, err)
		}
		e = &decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Put writes the entry under its key.
func (m *BoltMirror) Put(ctx context.Context, e *Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry %s: %w", e.Key, err)
	}
	return m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put([]byte(e.Key), raw)
	})
}

// Delete removes key. Deleting an absent key is not an error.
func (m *BoltMirror) Delete(ctx context.Context, key string) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Delete([]byte(key))
	})
}

// Load streams every persisted entry to fn. Entries that no longer decode
// are skipped rather than failing the whole scan.
func (m *BoltMirror) Load(ctx context.Context, fn func(*Entry) error) error {
	return m.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return nil
			}
			return fn(&e)
		})
	})
}

// Clear drops every persisted entry.
func (m *BoltMirror) Clear(ctx context.Context) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(boltBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(boltBucket)
		return err
	})
}

// Ping verifies the database handle is usable.
func (m *BoltMirror) Ping(ctx context.Context) error {
	return m.db.View(func(tx *bolt.Tx) error { return nil })
}

// Close releases the database file.
func (m *BoltMirror) Close() error {
	return m.db.Close()
}
