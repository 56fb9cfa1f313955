// Package store persists the session snapshot across process restarts.
//
// The store holds exactly one record per backend origin: a whole-record,
// last-write-wins replacement of the persisted subset of the session state.
// The session container is the only writer; guards may read the record
// directly as a short-circuit, which is why every reader must tolerate a
// missing, malformed, or partially populated record.
package store

import (
	"time"

	"github.com/jobdeck/jobdeck/identity"
)

// Snapshot is the persisted subset of the session state. Volatile fields
// (hydration progress, in-flight flags) never appear here.
type Snapshot struct {
	Token           string         `json:"token,omitempty"`
	User            *identity.User `json:"user,omitempty"`
	IsAuthenticated bool           `json:"isAuthenticated"`
	// LastAuthCheck is the unix-millisecond instant of the last successful
	// verification, or 0 if the session has never been verified.
	LastAuthCheck int64 `json:"lastAuthCheckTimestamp,omitempty"`
}

// Complete reports whether the snapshot holds a usable cached session:
// token, user, and the authenticated flag all present and consistent.
func (s Snapshot) Complete() bool {
	return s.Token != "" && s.User != nil && s.IsAuthenticated
}

// CheckedWithin reports whether the last verification happened within ttl
// of now.
func (s Snapshot) CheckedWithin(ttl time.Duration, now time.Time) bool {
	if s.LastAuthCheck == 0 {
		return false
	}
	return now.Sub(time.UnixMilli(s.LastAuthCheck)) < ttl
}

// Store defines how the session snapshot is persisted and restored.
type Store interface {
	// Load returns the persisted snapshot. ok is false when no usable
	// record exists — missing, corrupt, or partial records are all "no
	// cached session", not errors.
	Load() (snap Snapshot, ok bool, err error)
	// Save replaces the record with the given snapshot.
	Save(snap Snapshot) error
	// Clear removes the record.
	Clear() error
}

// ReadCached is the single short-circuit read helper used by navigation
// guards. It returns a snapshot only when the record is complete; every
// failure mode collapses to ok=false so a guard can never be broken by a
// corrupt record.
func ReadCached(s Store) (Snapshot, bool) {
	snap, ok, err := s.Load()
	if err != nil || !ok || !snap.Complete() {
		return Snapshot{}, false
	}
	return snap, true
}
