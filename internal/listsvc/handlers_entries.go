package listsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/magnusoverli/sushe-online-sub002/internal/identity"
	"github.com/magnusoverli/sushe-online-sub002/internal/model"
)

// entryRow is an entry as held inside a write transaction.
type entryRow struct {
	id       string
	position int
	identity string
	entry    model.Entry
}

func (s *Server) loadEntries(ctx context.Context, listID string) ([]model.Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+entryColumns+`
		FROM entries
		WHERE list_id = $1
		ORDER BY position ASC
	`, listID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []model.Entry{}
	for rows.Next() {
		var e model.Entry
		if err := rows.Scan(&e.Artist, &e.Title, &e.ReleaseDate, &e.Country, &e.Genres, &e.Comment, &e.TrackPick, &e.CoverURL); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// lockEntries reads and row-locks every entry of the list in order.
func lockEntries(ctx context.Context, tx pgx.Tx, listID string) ([]entryRow, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, position, identity, `+entryColumns+`
		FROM entries
		WHERE list_id = $1
		ORDER BY position ASC
		FOR UPDATE
	`, listID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []entryRow{}
	for rows.Next() {
		var er entryRow
		e := &er.entry
		if err := rows.Scan(&er.id, &er.position, &er.identity,
			&e.Artist, &e.Title, &e.ReleaseDate, &e.Country, &e.Genres, &e.Comment, &e.TrackPick, &e.CoverURL); err != nil {
			return nil, err
		}
		out = append(out, er)
	}
	return out, rows.Err()
}

// beginListWrite opens a transaction, locks the list row and runs the
// owner and locked-year checks shared by every structural write. On error
// it has already written the response.
func (s *Server) beginListWrite(w http.ResponseWriter, r *http.Request, op string) (pgx.Tx, listAccess, string, bool) {
	ctx := r.Context()
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return nil, listAccess{}, "", false
	}
	listID := chi.URLParam(r, "id")
	if listID == "" {
		writeError(w, http.StatusBadRequest, "missing list id")
		return nil, listAccess{}, "", false
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		log.Printf("list-service: %s begin tx: %v", op, err)
		writeError(w, http.StatusInternalServerError, "database error")
		return nil, listAccess{}, "", false
	}

	access, err := getListAccess(ctx, tx, listID, true)
	if errors.Is(err, pgx.ErrNoRows) {
		tx.Rollback(ctx)
		writeError(w, http.StatusNotFound, "list not found")
		return nil, listAccess{}, "", false
	}
	if err != nil {
		tx.Rollback(ctx)
		log.Printf("list-service: %s fetch list: %v", op, err)
		writeError(w, http.StatusInternalServerError, "database error")
		return nil, listAccess{}, "", false
	}
	if access.OwnerID != userID {
		tx.Rollback(ctx)
		writeError(w, http.StatusForbidden, "forbidden")
		return nil, listAccess{}, "", false
	}

	locked, err := yearLocked(ctx, tx, userID, access.Year)
	if err != nil {
		tx.Rollback(ctx)
		log.Printf("list-service: %s lock check: %v", op, err)
		writeError(w, http.StatusInternalServerError, "database error")
		return nil, listAccess{}, "", false
	}
	if locked {
		tx.Rollback(ctx)
		writeError(w, http.StatusConflict, "year is locked")
		return nil, listAccess{}, "", false
	}

	return tx, access, listID, true
}

// finishListWrite invalidates the read view, publishes the change and
// schedules the year aggregate before the response goes out.
func (s *Server) finishListWrite(ctx context.Context, evType, listID, socketID string, access listAccess, entries []model.Entry) {
	s.invalidateView(ctx, listID)
	s.publishEntries(ctx, evType, listID, socketID, entries)
	if access.IsMain && access.Year != nil {
		s.scheduleYearStats(access.OwnerID, *access.Year)
	}
}

// handleReorderEntries updates only positions; entry content is untouched.
// The new order arrives as the full sequence of entry identities.
func (s *Server) handleReorderEntries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	socketID := r.Header.Get("X-Socket-Id")

	var body struct {
		Order []string `json:"order"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	tx, access, listID, ok := s.beginListWrite(w, r, "reorder")
	if !ok {
		return
	}
	defer tx.Rollback(ctx)

	current, err := lockEntries(ctx, tx, listID)
	if err != nil {
		log.Printf("list-service: reorder lock entries: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if len(body.Order) != len(current) {
		writeError(w, http.StatusConflict,
			fmt.Sprintf("order lists %d entries, list has %d", len(body.Order), len(current)))
		return
	}

	// Duplicate identities are consumed in stored order, first match first.
	queues := make(map[string][]int, len(current))
	for i, er := range current {
		queues[er.identity] = append(queues[er.identity], i)
	}

	reordered := make([]entryRow, 0, len(current))
	for _, id := range body.Order {
		q := queues[id]
		if len(q) == 0 {
			writeError(w, http.StatusNotFound, fmt.Sprintf("no entry with identity %q", id))
			return
		}
		reordered = append(reordered, current[q[0]])
		queues[id] = q[1:]
	}

	moved := 0
	for i, er := range reordered {
		if er.position == i {
			continue
		}
		if _, err := tx.Exec(ctx, `
			UPDATE entries
			SET position = $2
			WHERE id = $1
		`, er.id, i); err != nil {
			log.Printf("list-service: reorder set position: %v", err)
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		moved++
	}

	if err := tx.Commit(ctx); err != nil {
		log.Printf("list-service: reorder commit: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	if moved > 0 {
		entries := make([]model.Entry, len(reordered))
		for i, er := range reordered {
			entries[i] = er.entry
		}
		s.finishListWrite(ctx, model.EventReordered, listID, socketID, access, entries)
	}

	writeJSON(w, http.StatusOK, map[string]any{"moved": moved})
}

// handleUpdateEntries applies a diff-shaped write. Removed and updated
// identities that no longer exist are tolerated (a concurrent client may
// have won that race); added entries whose identity already exists are
// reported as duplicates, not inserted twice.
func (s *Server) handleUpdateEntries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	socketID := r.Header.Get("X-Socket-Id")

	var upd model.IncrementalUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(upd.Added) == 0 && len(upd.Removed) == 0 && len(upd.Updated) == 0 {
		writeJSON(w, http.StatusOK, model.UpdateResult{})
		return
	}
	for _, e := range upd.Added {
		if identity.Of(e) == "" {
			writeError(w, http.StatusBadRequest, "added entry has neither artist nor title")
			return
		}
	}

	tx, access, listID, ok := s.beginListWrite(w, r, "update entries")
	if !ok {
		return
	}
	defer tx.Rollback(ctx)

	current, err := lockEntries(ctx, tx, listID)
	if err != nil {
		log.Printf("list-service: update lock entries: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	var result model.UpdateResult

	removed := make(map[int]bool)
	for _, id := range upd.Removed {
		for i, er := range current {
			if removed[i] || er.identity != id {
				continue
			}
			if _, err := tx.Exec(ctx, `DELETE FROM entries WHERE id = $1`, er.id); err != nil {
				log.Printf("list-service: update delete entry: %v", err)
				writeError(w, http.StatusInternalServerError, "database error")
				return
			}
			removed[i] = true
			result.Removed++
			break
		}
	}

	for _, fu := range upd.Updated {
		for i := range current {
			er := &current[i]
			if removed[i] || er.identity != fu.Identity {
				continue
			}
			e := er.entry
			badField := false
			for field, value := range fu.Patch {
				if err := model.ApplyField(&e, field, value); err != nil {
					writeError(w, http.StatusBadRequest, err.Error())
					badField = true
					break
				}
			}
			if badField {
				return
			}
			newID := identity.Of(e)
			if newID == "" {
				writeError(w, http.StatusBadRequest, "update would leave entry without artist and title")
				return
			}
			if _, err := tx.Exec(ctx, `
				UPDATE entries
				SET identity = $2, artist = $3, title = $4, release_date = $5,
					country = $6, genres = $7, comment = $8, track_pick = $9, cover_url = $10
				WHERE id = $1
			`, er.id, newID, e.Artist, e.Title, e.ReleaseDate, e.Country, e.Genres, e.Comment, e.TrackPick, e.CoverURL); err != nil {
				log.Printf("list-service: update entry: %v", err)
				writeError(w, http.StatusInternalServerError, "database error")
				return
			}
			er.entry = e
			er.identity = newID
			result.Updated++
			break
		}
	}

	// Survivors keep their relative order and compact positions.
	final := make([]entryRow, 0, len(current))
	seen := make(map[string]bool)
	for i, er := range current {
		if removed[i] {
			continue
		}
		final = append(final, er)
		seen[er.identity] = true
	}
	for i, er := range final {
		if er.position == i {
			continue
		}
		if _, err := tx.Exec(ctx, `
			UPDATE entries
			SET position = $2
			WHERE id = $1
		`, er.id, i); err != nil {
			log.Printf("list-service: update compact positions: %v", err)
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
	}

	entries := make([]model.Entry, len(final))
	for i, er := range final {
		entries[i] = er.entry
	}
	pos := len(final)
	for _, e := range upd.Added {
		id := identity.Of(e)
		if seen[id] {
			result.Duplicates = append(result.Duplicates, id)
			continue
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO entries (list_id, position, identity, `+entryColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, listID, pos, id, e.Artist, e.Title, e.ReleaseDate, e.Country, e.Genres, e.Comment, e.TrackPick, e.CoverURL); err != nil {
			log.Printf("list-service: update insert entry: %v", err)
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		seen[id] = true
		entries = append(entries, e)
		pos++
		result.Added++
	}

	if err := tx.Commit(ctx); err != nil {
		log.Printf("list-service: update commit: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	if result.Added > 0 || result.Removed > 0 || result.Updated > 0 {
		s.finishListWrite(ctx, model.EventUpdated, listID, socketID, access, entries)
	}

	writeJSON(w, http.StatusOK, result)
}

// handleReplaceEntries swaps the entire entry array in one transaction:
// delete all, insert N. This path is last-writer-wins against concurrent
// edits and is meant for bulk import/merge only.
func (s *Server) handleReplaceEntries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	socketID := r.Header.Get("X-Socket-Id")

	var body struct {
		Entries []model.Entry `json:"entries"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	for _, e := range body.Entries {
		if identity.Of(e) == "" {
			writeError(w, http.StatusBadRequest, "entry has neither artist nor title")
			return
		}
	}

	tx, access, listID, ok := s.beginListWrite(w, r, "replace entries")
	if !ok {
		return
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM entries WHERE list_id = $1`, listID); err != nil {
		log.Printf("list-service: replace delete: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	var result model.UpdateResult
	kept := []model.Entry{}
	seen := make(map[string]bool)
	for _, e := range body.Entries {
		id := identity.Of(e)
		if seen[id] {
			// Two entries with identical identity in one list are
			// duplicates by definition; merge keeps the first.
			result.Duplicates = append(result.Duplicates, id)
			continue
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO entries (list_id, position, identity, `+entryColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, listID, len(kept), id, e.Artist, e.Title, e.ReleaseDate, e.Country, e.Genres, e.Comment, e.TrackPick, e.CoverURL); err != nil {
			log.Printf("list-service: replace insert: %v", err)
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		seen[id] = true
		kept = append(kept, e)
		result.Added++
	}

	if err := tx.Commit(ctx); err != nil {
		log.Printf("list-service: replace commit: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	s.finishListWrite(ctx, model.EventReplaced, listID, socketID, access, kept)

	writeJSON(w, http.StatusOK, result)
}
