// Package snapshot tracks the last known-saved ordering of a list's entry
// identities. The snapshot is what lets a client recognise its own change
// when it echoes back over the push channel.
package snapshot

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/magnusoverli/sushe-online-sub002/internal/identity"
	"github.com/magnusoverli/sushe-online-sub002/internal/model"
)

var bucketSnapshots = []byte("snapshots")

// Tracker persists per-list snapshots to a local bbolt file and keeps the
// one-shot "just saved" marks in memory. Marks are deliberately not
// persisted: after a restart there is no optimistic state left to protect.
type Tracker struct {
	db *bolt.DB

	mu    sync.Mutex
	mem   map[string][]string // memory-only mode when db is nil
	saved map[string]bool
}

// New opens (or creates) the snapshot store under dir. An empty dir selects
// memory-only mode with no persistence across restarts.
func New(dir string) (*Tracker, error) {
	t := &Tracker{
		mem:   make(map[string][]string),
		saved: make(map[string]bool),
	}
	if dir == "" {
		return t, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(filepath.Join(dir, "snapshots.db"), 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSnapshots)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	t.db = db
	return t, nil
}

func (t *Tracker) Close() error {
	if t.db == nil {
		return nil
	}
	return t.db.Close()
}

// Take maps entries to their identities, skipping any entry that fails to
// yield a non-empty identity so one malformed entry cannot poison the
// whole snapshot.
func Take(entries []model.Entry) []string {
	snap := make([]string, 0, len(entries))
	for _, e := range entries {
		if id := identity.Of(e); id != "" {
			snap = append(snap, id)
		}
	}
	return snap
}

// Save replaces the stored snapshot for listID. An empty listID is a
// silent no-op; the UI layer may call with a transient empty state.
func (t *Tracker) Save(listID string, snap []string) error {
	if listID == "" {
		return nil
	}
	if t.db == nil {
		t.mu.Lock()
		t.mem[listID] = append([]string(nil), snap...)
		t.mu.Unlock()
		return nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return t.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Put([]byte(listID), data)
	})
}

// Load returns the stored snapshot for listID, or nil when none exists.
func (t *Tracker) Load(listID string) []string {
	if listID == "" {
		return nil
	}
	if t.db == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		if snap, ok := t.mem[listID]; ok {
			return append([]string(nil), snap...)
		}
		return nil
	}
	var snap []string
	err := t.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSnapshots).Get([]byte(listID))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &snap)
	})
	if err != nil {
		log.Printf("snapshot: load %s: %v", listID, err)
		return nil
	}
	return snap
}

// Clear drops the snapshot for listID, typically because the list was
// deleted.
func (t *Tracker) Clear(listID string) {
	if listID == "" {
		return
	}
	t.mu.Lock()
	delete(t.saved, listID)
	delete(t.mem, listID)
	t.mu.Unlock()
	if t.db == nil {
		return
	}
	err := t.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Delete([]byte(listID))
	})
	if err != nil {
		log.Printf("snapshot: clear %s: %v", listID, err)
	}
}

// MarkLocalSave records that this client just wrote listID to the server.
// The mark is one-shot: the first ConsumeLocalSave after it returns true,
// every later call returns false until the next mark. The mark alone never
// decides suppression; the push channel spends it only when the inbound
// content matches what was saved, so real external updates are never muted.
func (t *Tracker) MarkLocalSave(listID string) {
	if listID == "" {
		return
	}
	t.mu.Lock()
	t.saved[listID] = true
	t.mu.Unlock()
}

// ConsumeLocalSave reports and clears the one-shot mark for listID.
func (t *Tracker) ConsumeLocalSave(listID string) bool {
	if listID == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.saved[listID] {
		delete(t.saved, listID)
		return true
	}
	return false
}
