package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// DB wraps the Postgres connection pool that backs the job store.
type DB struct {
	*sql.DB
}

func New(databaseURL string) (*DB, error) {
	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: sqlDB}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id                 UUID PRIMARY KEY,
	owner_id           TEXT NOT NULL,
	type               TEXT NOT NULL,
	source             TEXT NOT NULL,
	status             TEXT NOT NULL DEFAULT 'pending',
	stage              TEXT NOT NULL DEFAULT 'queued',
	progress           INTEGER NOT NULL DEFAULT 0 CHECK (progress BETWEEN 0 AND 100),
	aspect             TEXT NOT NULL,
	clip_duration_sec  INTEGER NOT NULL,
	max_clips          INTEGER NOT NULL,
	captions_enabled   BOOLEAN NOT NULL,
	caption_style      TEXT NOT NULL,
	job_goal           TEXT NOT NULL,
	summary_target_sec INTEGER NOT NULL,
	clips              TEXT[] NOT NULL DEFAULT '{}',
	captioned_clips    TEXT[] NOT NULL DEFAULT '{}',
	captioned_thumbs   TEXT[] NOT NULL DEFAULT '{}',
	error_message      TEXT,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS jobs_owner_created_idx ON jobs (owner_id, created_at DESC);
`

// EnsureSchema creates the jobs table when it does not exist yet.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
