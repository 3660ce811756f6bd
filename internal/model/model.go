package model

import (
	"encoding/json"
	"time"
)

// List is a ranked album list. Entries are modelled separately and ordered
// by Position (0-based).
type List struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Name      string    `json:"name"`
	Year      *int      `json:"year,omitempty"`
	GroupID   *string   `json:"groupId,omitempty"`
	IsMain    bool      `json:"isMain"`
	CreatedAt time.Time `json:"createdAt"`
}

// Entry is one ranked album in a list. It carries no client-visible row id;
// an entry is addressed by its derived identity (see the identity package)
// and its position.
type Entry struct {
	Artist      string `json:"artist"`
	Title       string `json:"title"`
	ReleaseDate string `json:"releaseDate,omitempty"`
	Country     string `json:"country,omitempty"`
	Genres      string `json:"genres,omitempty"`
	Comment     string `json:"comment,omitempty"`
	TrackPick   string `json:"trackPick,omitempty"`
	CoverURL    string `json:"coverUrl,omitempty"`
}

// Group is a named folder of lists. ListCount is computed on read.
type Group struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	ListCount int       `json:"listCount"`
}

// FieldUpdate patches named fields of the entry matching Identity.
type FieldUpdate struct {
	Identity string            `json:"identity"`
	Patch    map[string]string `json:"patch"`
}

// IncrementalUpdate is a diff-shaped write: each class of change is applied
// independently inside one transaction, as opposed to a full replace.
type IncrementalUpdate struct {
	Added   []Entry       `json:"added,omitempty"`
	Removed []string      `json:"removed,omitempty"`
	Updated []FieldUpdate `json:"updated,omitempty"`
}

// UpdateResult reports what an incremental update actually did. Added
// entries whose identity already existed in the list are listed in
// Duplicates and were not inserted.
type UpdateResult struct {
	Added      int      `json:"added"`
	Removed    int      `json:"removed"`
	Updated    int      `json:"updated"`
	Duplicates []string `json:"duplicates,omitempty"`
}

// ListPatch updates list metadata. Nil fields are left untouched.
type ListPatch struct {
	Name    *string `json:"name,omitempty"`
	Year    *int    `json:"year,omitempty"`
	GroupID *string `json:"groupId,omitempty"`
	IsMain  *bool   `json:"isMain,omitempty"`
}

// Change event types published to the broadcast channel.
const (
	EventReordered = "list.reordered"
	EventUpdated   = "list.updated"
	EventReplaced  = "list.replaced"
	EventMeta      = "list.meta"
	EventDeleted   = "list.deleted"
)

// Event is the envelope carried over redis and the websocket push channel.
// OriginSocketID identifies the connection whose write caused the event so
// the broadcast router can exclude it from delivery; empty means a
// server-initiated change that goes to every subscriber.
type Event struct {
	Type           string          `json:"type"`
	ListID         string          `json:"listId"`
	OriginSocketID string          `json:"originSocketId,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// EntriesPayload is the payload of reordered/updated/replaced events: the
// authoritative entry array after the write.
type EntriesPayload struct {
	Entries []Entry `json:"entries"`
}

// ListPayload is the payload of list.meta events.
type ListPayload struct {
	List List `json:"list"`
}
