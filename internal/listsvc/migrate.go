package listsvc

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
)

func AutoMigrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS pgcrypto`); err != nil {
		log.Printf("list-service: migrate pgcrypto: %v", err)
		return err
	}

	if _, err := pool.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS groups (
          id         uuid PRIMARY KEY DEFAULT gen_random_uuid(),
          owner_id   TEXT NOT NULL,
          name       TEXT NOT NULL,
          created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
          UNIQUE (owner_id, name)
      )
    `); err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS lists (
          id         uuid PRIMARY KEY DEFAULT gen_random_uuid(),
          owner_id   TEXT NOT NULL,
          name       TEXT NOT NULL,
          year       INT,
          group_id   uuid REFERENCES groups(id) ON DELETE SET NULL,
          is_main    BOOLEAN NOT NULL DEFAULT FALSE,
          created_at TIMESTAMPTZ NOT NULL DEFAULT now()
      )
    `); err != nil {
		return err
	}

	// Name must be unique per owner within a group (NULL group counts as
	// its own bucket).
	if _, err := pool.Exec(ctx, `
      CREATE UNIQUE INDEX IF NOT EXISTS idx_lists_owner_group_name
      ON lists(owner_id, COALESCE(group_id::text, ''), name)
    `); err != nil {
		return err
	}

	// At most one main list per (owner, year).
	if _, err := pool.Exec(ctx, `
      CREATE UNIQUE INDEX IF NOT EXISTS idx_lists_owner_year_main
      ON lists(owner_id, year) WHERE is_main AND year IS NOT NULL
    `); err != nil {
		return err
	}

	// The position constraint is deferrable so in-transaction shuffles can
	// pass through transient collisions.
	if _, err := pool.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS entries (
          id           uuid PRIMARY KEY DEFAULT gen_random_uuid(),
          list_id      uuid NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
          position     INT NOT NULL,
          identity     TEXT NOT NULL,
          artist       TEXT NOT NULL,
          title        TEXT NOT NULL,
          release_date TEXT NOT NULL DEFAULT '',
          country      TEXT NOT NULL DEFAULT '',
          genres       TEXT NOT NULL DEFAULT '',
          comment      TEXT NOT NULL DEFAULT '',
          track_pick   TEXT NOT NULL DEFAULT '',
          cover_url    TEXT NOT NULL DEFAULT '',
          created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
          CONSTRAINT entries_list_position UNIQUE (list_id, position) DEFERRABLE INITIALLY DEFERRED
      )
    `); err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, `
      CREATE INDEX IF NOT EXISTS idx_entries_list_identity
      ON entries(list_id, identity)
    `); err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS locked_years (
          owner_id   TEXT NOT NULL,
          year       INT NOT NULL,
          created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
          PRIMARY KEY (owner_id, year)
      )
    `); err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS year_stats (
          owner_id     TEXT NOT NULL,
          year         INT NOT NULL,
          entry_count  INT NOT NULL DEFAULT 0,
          artist_count INT NOT NULL DEFAULT 0,
          computed_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
          PRIMARY KEY (owner_id, year)
      )
    `); err != nil {
		return err
	}

	return nil
}
