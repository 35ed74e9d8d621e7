package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type migration struct {
	version     int
	description string
	up          string
}

// migrations are applied in order; append only.
var migrations = []migration{
	{
		version:     1,
		description: "create events table",
		up: `
			CREATE TABLE events (
				id            TEXT PRIMARY KEY,
				timestamp     TEXT NOT NULL,
				type          TEXT NOT NULL,
				entity_type   TEXT NOT NULL,
				entity_id     TEXT NOT NULL,
				payload_json  TEXT,
				metadata_json TEXT
			);
			CREATE INDEX idx_events_timestamp ON events(timestamp, id);
			CREATE INDEX idx_events_type ON events(type);
			CREATE INDEX idx_events_entity ON events(entity_type, entity_id);
		`,
	},
}

// SchemaVersion returns the highest applied migration, or 0.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	if err := db.ensureVersionTable(ctx); err != nil {
		return 0, err
	}
	var version sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return int(version.Int64), nil
}

// MigrateUp applies pending migrations and returns how many ran.
func (db *DB) MigrateUp(ctx context.Context) (int, error) {
	current, err := db.SchemaVersion(ctx)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		err := db.Transaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.up); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_version (version, description, applied_at) VALUES (?, ?, ?)`,
				m.version, m.description, time.Now().UTC().Format(time.RFC3339))
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("migration %d (%s): %w", m.version, m.description, err)
		}
		db.logger.Info().Int("version", m.version).Str("description", m.description).Msg("migration applied")
		applied++
	}
	return applied, nil
}

func (db *DB) ensureVersionTable(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}
	return nil
}
