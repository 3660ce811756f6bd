// Package identity derives stable, content-based keys for list entries so
// an entry can be found again after the list has been reordered or partly
// edited underneath the caller.
package identity

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/magnusoverli/sushe-online-sub002/internal/model"
)

// Of returns the natural key for an entry: folded artist and title joined
// with the release date. It is deterministic, case-insensitive and
// tolerant of a missing release date. Entries that yield an empty key
// (no artist and no title) return "".
func Of(e model.Entry) string {
	artist := normalize(e.Artist)
	title := normalize(e.Title)
	if artist == "" && title == "" {
		return ""
	}
	return artist + "::" + title + "::" + strings.TrimSpace(e.ReleaseDate)
}

// OfParts is Of for callers that hold the raw columns instead of an Entry.
func OfParts(artist, title, releaseDate string) string {
	return Of(model.Entry{Artist: artist, Title: title, ReleaseDate: releaseDate})
}

// normalize collapses inner whitespace and case-folds, so "  Led  Zeppelin "
// and "led zeppelin" produce the same key.
func normalize(s string) string {
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}

// Find scans entries for the first one whose identity matches id. Ties on
// identical identities are a known ambiguity; first match wins.
func Find(entries []model.Entry, id string) (model.Entry, int, bool) {
	if id == "" {
		return model.Entry{}, -1, false
	}
	for i, e := range entries {
		if Of(e) == id {
			return e, i, true
		}
	}
	return model.Entry{}, -1, false
}
