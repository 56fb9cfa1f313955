package store

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
)

const (
	sessionBucket = "session"
	// recordVersion guards the persisted layout. A record written by a
	// different layout version is treated as absent, not migrated.
	recordVersion = 1
)

// record is the on-disk layout: a version field wrapping the snapshot so
// the layout can evolve without readers misparsing old data.
type record struct {
	Version int      `json:"version"`
	State   Snapshot `json:"state"`
}

// BoltStore is a bbolt-backed Store. The record key is the backend origin,
// so sessions against different backends never collide.
type BoltStore struct {
	db     *bbolt.DB
	origin string
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore wraps an already-open bbolt database.
func NewBoltStore(db *bbolt.DB, origin string) *BoltStore {
	return &BoltStore{db: db, origin: origin}
}

// NewBoltStoreFromFile opens a bbolt database at the given path and returns
// a store scoped to the given backend origin.
func NewBoltStoreFromFile(path, origin string, options *bbolt.Options) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening session db: %w", err)
	}
	return NewBoltStore(db, origin), nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Load() (Snapshot, bool, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(sessionBucket))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(s.origin)); v != nil {
			data = append(data, v...)
		}
		return nil
	})
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("loading session record: %w", err)
	}
	if data == nil {
		return Snapshot{}, false, nil
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		// Corrupt record — no usable session, not a failure.
		return Snapshot{}, false, nil
	}
	if rec.Version != recordVersion {
		return Snapshot{}, false, nil
	}
	return rec.State, true, nil
}

func (s *BoltStore) Save(snap Snapshot) error {
	data, err := json.Marshal(record{Version: recordVersion, State: snap})
	if err != nil {
		return fmt.Errorf("marshaling session record: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(sessionBucket))
		if err != nil {
			return err
		}
		return b.Put([]byte(s.origin), data)
	})
}

func (s *BoltStore) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(sessionBucket))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(s.origin))
	})
}
