package listsvc

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/magnusoverli/sushe-online-sub002/internal/model"
)

// handleListGroups returns the caller's groups with the number of lists
// filed under each.
func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	rows, err := s.db.Query(ctx, `
		SELECT g.id, g.owner_id, g.name, g.created_at, COUNT(l.id)
		FROM groups g
		LEFT JOIN lists l ON l.group_id = g.id
		WHERE g.owner_id = $1
		GROUP BY g.id, g.owner_id, g.name, g.created_at
		ORDER BY g.name ASC
	`, userID)
	if err != nil {
		log.Printf("list-service: list groups: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	defer rows.Close()

	groups := []model.Group{}
	for rows.Next() {
		var g model.Group
		if err := rows.Scan(&g.ID, &g.OwnerID, &g.Name, &g.CreatedAt, &g.ListCount); err != nil {
			log.Printf("list-service: scan group: %v", err)
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		log.Printf("list-service: list groups rows: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	body.Name = strings.TrimSpace(body.Name)
	if body.Name == "" || len(body.Name) > 100 {
		writeError(w, http.StatusBadRequest, "group name must be 1-100 characters")
		return
	}

	var g model.Group
	err := s.db.QueryRow(ctx, `
		INSERT INTO groups (owner_id, name)
		VALUES ($1, $2)
		RETURNING id, owner_id, name, created_at
	`, userID, body.Name).Scan(&g.ID, &g.OwnerID, &g.Name, &g.CreatedAt)
	if isUniqueViolation(err, "groups_owner_id_name_key") {
		writeError(w, http.StatusConflict, "a group with that name already exists")
		return
	}
	if err != nil {
		log.Printf("list-service: create group: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusCreated, g)
}
