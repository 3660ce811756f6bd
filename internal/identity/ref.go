package identity

import "github.com/magnusoverli/sushe-online-sub002/internal/model"

// Ref remembers which entry the user is interacting with (context menu,
// drag handle). The index is captured at menu-open time and can go stale
// before it is used, so it is only a hint; the identity is ground truth.
type Ref struct {
	ListID   string
	Index    int
	Identity string
}

// Capture builds a Ref for the entry at index i.
func Capture(listID string, entries []model.Entry, i int) (Ref, bool) {
	if i < 0 || i >= len(entries) {
		return Ref{}, false
	}
	id := Of(entries[i])
	if id == "" {
		return Ref{}, false
	}
	return Ref{ListID: listID, Index: i, Identity: id}, true
}

// Resolve re-validates the Ref against the current entries. If the cached
// index still points at the same identity it is used as-is, otherwise the
// entry is re-found by identity.
func (r Ref) Resolve(entries []model.Entry) (int, bool) {
	if r.Index >= 0 && r.Index < len(entries) && Of(entries[r.Index]) == r.Identity {
		return r.Index, true
	}
	_, i, ok := Find(entries, r.Identity)
	return i, ok
}
