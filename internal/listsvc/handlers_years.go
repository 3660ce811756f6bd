package listsvc

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
)

// A locked year freezes every list of that year for its owner: structural
// writes, metadata changes and deletes all fail with 409 until the lock is
// removed. Reads are unaffected.

func yearParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year < 1000 || year > 9999 {
		writeError(w, http.StatusBadRequest, "year must be a four-digit number")
		return 0, false
	}
	return year, true
}

func (s *Server) handleLockYear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}
	year, ok := yearParam(w, r)
	if !ok {
		return
	}

	if _, err := s.db.Exec(ctx, `
		INSERT INTO locked_years (owner_id, year)
		VALUES ($1, $2)
		ON CONFLICT (owner_id, year) DO NOTHING
	`, userID, year); err != nil {
		log.Printf("list-service: lock year %d: %v", year, err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"year": year, "locked": true})
}

func (s *Server) handleUnlockYear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}
	year, ok := yearParam(w, r)
	if !ok {
		return
	}

	if _, err := s.db.Exec(ctx, `
		DELETE FROM locked_years
		WHERE owner_id = $1 AND year = $2
	`, userID, year); err != nil {
		log.Printf("list-service: unlock year %d: %v", year, err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"year": year, "locked": false})
}

// handleYearStats returns the precomputed aggregate for the caller's main
// list of that year. 404 until a main list exists and its stats have been
// computed.
func (s *Server) handleYearStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}
	year, ok := yearParam(w, r)
	if !ok {
		return
	}

	var (
		entryCount  int
		artistCount int
		computedAt  time.Time
	)
	err := s.db.QueryRow(ctx, `
		SELECT entry_count, artist_count, computed_at
		FROM year_stats
		WHERE owner_id = $1 AND year = $2
	`, userID, year).Scan(&entryCount, &artistCount, &computedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "no stats for that year")
		return
	}
	if err != nil {
		log.Printf("list-service: year stats %d: %v", year, err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"year":        year,
		"entryCount":  entryCount,
		"artistCount": artistCount,
		"computedAt":  computedAt,
	})
}
