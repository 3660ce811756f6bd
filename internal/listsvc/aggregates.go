package listsvc

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
)

// Year statistics are computed over the owner's main list for that year.
// They are recomputed off the request path after any write that can change
// them; readers see the last committed row.

func (s *Server) recomputeYearStats(ctx context.Context, ownerID string, year int) error {
	var listID string
	err := s.db.QueryRow(ctx, `
		SELECT id
		FROM lists
		WHERE owner_id = $1 AND year = $2 AND is_main
	`, ownerID, year).Scan(&listID)
	if errors.Is(err, pgx.ErrNoRows) {
		// No main list for the year means no stats row.
		_, err = s.db.Exec(ctx, `
			DELETE FROM year_stats
			WHERE owner_id = $1 AND year = $2
		`, ownerID, year)
		return err
	}
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO year_stats (owner_id, year, entry_count, artist_count, computed_at)
		SELECT $1, $2, COUNT(*), COUNT(DISTINCT lower(artist)), now()
		FROM entries
		WHERE list_id = $3
		ON CONFLICT (owner_id, year) DO UPDATE
		SET entry_count = EXCLUDED.entry_count,
			artist_count = EXCLUDED.artist_count,
			computed_at = EXCLUDED.computed_at
	`, ownerID, year, listID)
	return err
}

func (s *Server) scheduleYearStats(ownerID string, year int) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.recomputeYearStats(ctx, ownerID, year); err != nil {
			log.Printf("list-service: recompute stats %s/%d: %v", ownerID, year, err)
		}
	}()
}
