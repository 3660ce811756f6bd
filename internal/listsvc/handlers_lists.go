package listsvc

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/magnusoverli/sushe-online-sub002/internal/model"
)

func (s *Server) handleListLists(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+listColumns+`
		FROM lists
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT 500
	`, userID)
	if err != nil {
		log.Printf("list-service: list lists: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	defer rows.Close()

	lists := []model.List{}
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			log.Printf("list-service: list lists scan: %v", err)
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		lists = append(lists, l)
	}
	if err := rows.Err(); err != nil {
		log.Printf("list-service: list lists rows: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, lists)
}

func (s *Server) handleCreateList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	var body struct {
		Name    string  `json:"name"`
		Year    *int    `json:"year"`
		GroupID *string `json:"groupId"`
		IsMain  bool    `json:"isMain"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	body.Name = strings.TrimSpace(body.Name)
	if body.Name == "" || len(body.Name) > 200 {
		writeError(w, http.StatusBadRequest, "name must be between 1 and 200 characters")
		return
	}
	if body.Year != nil && (*body.Year < 1000 || *body.Year > 9999) {
		writeError(w, http.StatusBadRequest, "year must be a four-digit year")
		return
	}
	if body.IsMain && body.Year == nil {
		writeError(w, http.StatusBadRequest, "a main list requires a year")
		return
	}

	if body.GroupID != nil {
		var one int
		err := s.db.QueryRow(ctx, `
			SELECT 1 FROM groups WHERE id = $1 AND owner_id = $2
		`, *body.GroupID, userID).Scan(&one)
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusBadRequest, "unknown group")
			return
		}
		if err != nil {
			log.Printf("list-service: create list group check: %v", err)
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO lists (owner_id, name, year, group_id, is_main)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+listColumns+`
	`, userID, body.Name, body.Year, body.GroupID, body.IsMain)
	l, err := scanList(row)
	if isUniqueViolation(err, "idx_lists_owner_group_name") {
		writeError(w, http.StatusConflict, "a list with that name already exists in the group")
		return
	}
	if isUniqueViolation(err, "idx_lists_owner_year_main") {
		writeError(w, http.StatusConflict, "a main list already exists for that year")
		return
	}
	if err != nil {
		log.Printf("list-service: create list: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	if l.IsMain && l.Year != nil {
		s.scheduleYearStats(l.OwnerID, *l.Year)
	}

	writeJSON(w, http.StatusCreated, l)
}

func (s *Server) handleGetList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}
	listID := chi.URLParam(r, "id")
	if listID == "" {
		writeError(w, http.StatusBadRequest, "missing list id")
		return
	}

	l, err := scanList(s.db.QueryRow(ctx, `
		SELECT `+listColumns+`
		FROM lists
		WHERE id = $1
	`, listID))
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "list not found")
		return
	}
	if err != nil {
		log.Printf("list-service: get list: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if l.OwnerID != userID {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	entries, ok := s.cachedEntries(ctx, listID)
	if !ok {
		entries, err = s.loadEntries(ctx, listID)
		if err != nil {
			log.Printf("list-service: get list entries: %v", err)
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		s.storeEntriesView(ctx, listID, entries)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"list":    l,
		"entries": entries,
	})
}

func (s *Server) handlePatchList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.Header.Get("X-User-Id")
	socketID := r.Header.Get("X-Socket-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}
	listID := chi.URLParam(r, "id")
	if listID == "" {
		writeError(w, http.StatusBadRequest, "missing list id")
		return
	}

	var body model.ListPatch
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		log.Printf("list-service: patch list begin tx: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	defer tx.Rollback(ctx)

	existing, err := scanList(tx.QueryRow(ctx, `
		SELECT `+listColumns+`
		FROM lists
		WHERE id = $1
		FOR UPDATE
	`, listID))
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "list not found")
		return
	}
	if err != nil {
		log.Printf("list-service: patch list fetch: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if existing.OwnerID != userID {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	locked, err := yearLocked(ctx, tx, userID, existing.Year)
	if err != nil {
		log.Printf("list-service: patch list lock check: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if locked {
		writeError(w, http.StatusConflict, "year is locked")
		return
	}

	wasMain := existing.IsMain
	oldYear := existing.Year

	if body.Name != nil {
		name := strings.TrimSpace(*body.Name)
		if name == "" || len(name) > 200 {
			writeError(w, http.StatusBadRequest, "name must be between 1 and 200 characters")
			return
		}
		existing.Name = name
	}
	if body.Year != nil {
		if *body.Year < 1000 || *body.Year > 9999 {
			writeError(w, http.StatusBadRequest, "year must be a four-digit year")
			return
		}
		y := *body.Year
		// Moving into a locked year is refused just like editing one.
		movedLocked, err := yearLocked(ctx, tx, userID, &y)
		if err != nil {
			log.Printf("list-service: patch list target lock check: %v", err)
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		if movedLocked {
			writeError(w, http.StatusConflict, "target year is locked")
			return
		}
		existing.Year = &y
	}
	if body.GroupID != nil {
		gid := *body.GroupID
		if gid == "" {
			existing.GroupID = nil
		} else {
			var one int
			err := tx.QueryRow(ctx, `
				SELECT 1 FROM groups WHERE id = $1 AND owner_id = $2
			`, gid, userID).Scan(&one)
			if errors.Is(err, pgx.ErrNoRows) {
				writeError(w, http.StatusBadRequest, "unknown group")
				return
			}
			if err != nil {
				log.Printf("list-service: patch list group check: %v", err)
				writeError(w, http.StatusInternalServerError, "database error")
				return
			}
			existing.GroupID = &gid
		}
	}
	if body.IsMain != nil {
		if *body.IsMain && existing.Year == nil {
			writeError(w, http.StatusBadRequest, "a main list requires a year")
			return
		}
		existing.IsMain = *body.IsMain
	}

	_, err = tx.Exec(ctx, `
		UPDATE lists
		SET name = $2,
			year = $3,
			group_id = $4,
			is_main = $5
		WHERE id = $1
	`, existing.ID, existing.Name, existing.Year, existing.GroupID, existing.IsMain)
	if isUniqueViolation(err, "idx_lists_owner_group_name") {
		writeError(w, http.StatusConflict, "a list with that name already exists in the group")
		return
	}
	if isUniqueViolation(err, "idx_lists_owner_year_main") {
		writeError(w, http.StatusConflict, "a main list already exists for that year")
		return
	}
	if err != nil {
		log.Printf("list-service: patch list update: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	if err := tx.Commit(ctx); err != nil {
		log.Printf("list-service: patch list commit: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	s.invalidateView(ctx, listID)

	payload, _ := json.Marshal(model.ListPayload{List: existing})
	s.publishEvent(ctx, model.Event{
		Type:           model.EventMeta,
		ListID:         listID,
		OriginSocketID: socketID,
		Payload:        payload,
	})

	// Main-list membership may have changed on either side of a year move.
	if wasMain && oldYear != nil {
		s.scheduleYearStats(userID, *oldYear)
	}
	if existing.IsMain && existing.Year != nil && (oldYear == nil || *existing.Year != *oldYear || !wasMain) {
		s.scheduleYearStats(userID, *existing.Year)
	}

	writeJSON(w, http.StatusOK, existing)
}

func (s *Server) handleDeleteList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.Header.Get("X-User-Id")
	socketID := r.Header.Get("X-Socket-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}
	listID := chi.URLParam(r, "id")
	if listID == "" {
		writeError(w, http.StatusBadRequest, "missing list id")
		return
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		log.Printf("list-service: delete list begin tx: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	defer tx.Rollback(ctx)

	access, err := getListAccess(ctx, tx, listID, true)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "list not found")
		return
	}
	if err != nil {
		log.Printf("list-service: delete list fetch: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if access.OwnerID != userID {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	locked, err := yearLocked(ctx, tx, userID, access.Year)
	if err != nil {
		log.Printf("list-service: delete list lock check: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if locked {
		writeError(w, http.StatusConflict, "year is locked")
		return
	}

	if _, err := tx.Exec(ctx, `DELETE FROM lists WHERE id = $1`, listID); err != nil {
		log.Printf("list-service: delete list exec: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	if err := tx.Commit(ctx); err != nil {
		log.Printf("list-service: delete list commit: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	s.invalidateView(ctx, listID)
	s.publishEvent(ctx, model.Event{
		Type:           model.EventDeleted,
		ListID:         listID,
		OriginSocketID: socketID,
	})
	if access.IsMain && access.Year != nil {
		s.scheduleYearStats(userID, *access.Year)
	}

	w.WriteHeader(http.StatusNoContent)
}
