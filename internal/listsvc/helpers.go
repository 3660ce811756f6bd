package listsvc

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/magnusoverli/sushe-online-sub002/internal/model"
)

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// rowQuerier is satisfied by both the pool and a transaction.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// listAccess is the slice of a list row needed for ownership and
// year-lock checks.
type listAccess struct {
	OwnerID string
	Year    *int
	IsMain  bool
}

func getListAccess(ctx context.Context, q rowQuerier, listID string, forUpdate bool) (listAccess, error) {
	sql := `
		SELECT owner_id, year, is_main
		FROM lists
		WHERE id = $1
	`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	var a listAccess
	err := q.QueryRow(ctx, sql, listID).Scan(&a.OwnerID, &a.Year, &a.IsMain)
	return a, err
}

// yearLocked reports whether the owner has locked the given year. Lists
// without a year are never locked.
func yearLocked(ctx context.Context, q rowQuerier, ownerID string, year *int) (bool, error) {
	if year == nil {
		return false, nil
	}
	var one int
	err := q.QueryRow(ctx, `
		SELECT 1
		FROM locked_years
		WHERE owner_id = $1 AND year = $2
	`, ownerID, *year).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// isUniqueViolation reports whether err is a violation of the named
// constraint or index.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && (constraint == "" || pgErr.ConstraintName == constraint)
}

// publishEvent fans the change out through redis to the broadcast router.
// Best effort: a publish failure is logged, the write stands.
func (s *Server) publishEvent(ctx context.Context, ev model.Event) {
	if s.rdb == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("list-service: marshal event: %v", err)
		return
	}
	if err := s.rdb.Publish(ctx, "broadcast", string(data)).Err(); err != nil {
		log.Printf("list-service: publish event: %v", err)
	}
}

// publishEntries publishes an entries-bearing change event for listID.
func (s *Server) publishEntries(ctx context.Context, evType, listID, originSocketID string, entries []model.Entry) {
	payload, err := json.Marshal(model.EntriesPayload{Entries: entries})
	if err != nil {
		log.Printf("list-service: marshal entries payload: %v", err)
		return
	}
	s.publishEvent(ctx, model.Event{
		Type:           evType,
		ListID:         listID,
		OriginSocketID: originSocketID,
		Payload:        payload,
	})
}

func scanList(row pgx.Row) (model.List, error) {
	var l model.List
	err := row.Scan(&l.ID, &l.OwnerID, &l.Name, &l.Year, &l.GroupID, &l.IsMain, &l.CreatedAt)
	return l, err
}

const listColumns = `id, owner_id, name, year, group_id, is_main, created_at`
const entryColumns = `artist, title, release_date, country, genres, comment, track_pick, cover_url`
