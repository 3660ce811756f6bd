// Package liststore is the client-side cache of every list the user has
// loaded. It is mutated only by the mutation pipeline and by push-channel
// reconciliation; everything else reads through accessors.
package liststore

import (
	"strings"
	"sync"

	"github.com/magnusoverli/sushe-online-sub002/internal/model"
)

type record struct {
	list   model.List
	items  []model.Entry
	loaded bool
}

// Store caches lists keyed by list id. A list whose item data has not been
// fetched yet is kept distinct from a list with zero items: retry logic and
// empty-state UI decide differently on each.
type Store struct {
	mu    sync.RWMutex
	lists map[string]*record
}

func New() *Store {
	return &Store{lists: make(map[string]*record)}
}

// Reset drops everything, e.g. on logout.
func (s *Store) Reset() {
	s.mu.Lock()
	s.lists = make(map[string]*record)
	s.mu.Unlock()
}

// Put registers (or refreshes) list metadata without touching item data.
func (s *Store) Put(list model.List) {
	if list.ID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.lists[list.ID]; ok {
		rec.list = list
		return
	}
	s.lists[list.ID] = &record{list: list}
}

// Get returns the cached list metadata.
func (s *Store) Get(listID string) (model.List, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.lists[listID]
	if !ok {
		return model.List{}, false
	}
	return rec.list, true
}

// Items returns a copy of the entry array. ok is false when the list is
// unknown or its items have not been fetched yet.
func (s *Store) Items(listID string) ([]model.Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.lists[listID]
	if !ok || !rec.loaded {
		return nil, false
	}
	return append([]model.Entry(nil), rec.items...), true
}

// SetItems replaces the entry array and marks the list loaded. A nil slice
// is normalised to empty: loaded items are never nil.
func (s *Store) SetItems(listID string, items []model.Entry) {
	if listID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.lists[listID]
	if !ok {
		rec = &record{list: model.List{ID: listID}}
		s.lists[listID] = rec
	}
	if items == nil {
		items = []model.Entry{}
	}
	rec.items = append([]model.Entry(nil), items...)
	rec.loaded = true
}

// IsLoaded reports whether item data for listID has been fetched. "Not yet
// fetched" and "empty" are different answers.
func (s *Store) IsLoaded(listID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.lists[listID]
	return ok && rec.loaded
}

// UpdateMeta applies a metadata patch to the cached list.
func (s *Store) UpdateMeta(listID string, patch model.ListPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.lists[listID]
	if !ok {
		return
	}
	if patch.Name != nil {
		rec.list.Name = *patch.Name
	}
	if patch.Year != nil {
		y := *patch.Year
		rec.list.Year = &y
	}
	if patch.GroupID != nil {
		// Empty string removes the list from its group, per the service.
		if *patch.GroupID == "" {
			rec.list.GroupID = nil
		} else {
			g := *patch.GroupID
			rec.list.GroupID = &g
		}
	}
	if patch.IsMain != nil {
		rec.list.IsMain = *patch.IsMain
	}
}

// FindByName returns the first list matching name (case-insensitive) and,
// when groupID is non-empty, the same group.
func (s *Store) FindByName(name, groupID string) (model.List, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.lists {
		if !strings.EqualFold(rec.list.Name, name) {
			continue
		}
		if groupID != "" {
			if rec.list.GroupID == nil || *rec.list.GroupID != groupID {
				continue
			}
		}
		return rec.list, true
	}
	return model.List{}, false
}

// Delete forgets a list entirely.
func (s *Store) Delete(listID string) {
	s.mu.Lock()
	delete(s.lists, listID)
	s.mu.Unlock()
}

// All returns the cached list metadata in no particular order.
func (s *Store) All() []model.List {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.List, 0, len(s.lists))
	for _, rec := range s.lists {
		out = append(out, rec.list)
	}
	return out
}
