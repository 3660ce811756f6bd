package listsvc

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

// DB is the slice of pgxpool.Pool the handlers use; tests substitute mocks.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type Server struct {
	db      DB
	rdb     *redis.Client
	viewTTL time.Duration
}

func NewServer(db DB, rdb *redis.Client) *Server {
	return &Server{
		db:      db,
		rdb:     rdb,
		viewTTL: 5 * time.Minute,
	}
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Get("/lists", s.handleListLists)
		r.Post("/lists", s.handleCreateList)
		r.Get("/lists/{id}", s.handleGetList)
		r.Patch("/lists/{id}", s.handlePatchList)
		r.Delete("/lists/{id}", s.handleDeleteList)

		r.Put("/lists/{id}/entries", s.handleReplaceEntries)
		r.Patch("/lists/{id}/entries", s.handleUpdateEntries)
		r.Patch("/lists/{id}/order", s.handleReorderEntries)

		r.Get("/groups", s.handleListGroups)
		r.Post("/groups", s.handleCreateGroup)

		r.Post("/years/{year}/lock", s.handleLockYear)
		r.Delete("/years/{year}/lock", s.handleUnlockYear)
		r.Get("/years/{year}/stats", s.handleYearStats)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "list-service",
	})
}
