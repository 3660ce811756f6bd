package model

import "fmt"

// ApplyField sets one named entry field. The names match the JSON wire
// form; incremental-update patches use the same set.
func ApplyField(e *Entry, field, value string) error {
	switch field {
	case "artist":
		e.Artist = value
	case "title":
		e.Title = value
	case "releaseDate":
		e.ReleaseDate = value
	case "country":
		e.Country = value
	case "genres":
		e.Genres = value
	case "comment":
		e.Comment = value
	case "trackPick":
		e.TrackPick = value
	case "coverUrl":
		e.CoverURL = value
	default:
		return fmt.Errorf("unknown entry field %q", field)
	}
	return nil
}
