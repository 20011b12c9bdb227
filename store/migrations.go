package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// migration represents a single schema migration.
type migration struct {
	version     int
	description string
	apply       func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// New migrations are appended at the end; never modify existing entries.
var migrations = []migration{
	{
		version:     1,
		description: "initial schema (applied via schemaSQL)",
		apply:       func(tx *sql.Tx) error { return nil }, // base schema applied separately
	},
	{
		version:     2,
		description: "add caption fields to document_assets",
		apply: func(tx *sql.Tx) error {
			// These columns exist in the base schema for fresh databases;
			// use a safe idempotent approach for older ones.
			for _, col := range []string{
				"ALTER TABLE document_assets ADD COLUMN caption_text TEXT",
				"ALTER TABLE document_assets ADD COLUMN caption_model TEXT",
				"ALTER TABLE document_assets ADD COLUMN table_content TEXT",
				"ALTER TABLE document_assets ADD COLUMN table_model TEXT",
				"ALTER TABLE document_assets ADD COLUMN caption_status TEXT NOT NULL DEFAULT 'pending'",
				"ALTER TABLE document_assets ADD COLUMN caption_error TEXT",
				"ALTER TABLE document_assets ADD COLUMN captioned_at DATETIME",
			} {
				if _, err := tx.Exec(col); err != nil {
					// Column likely already exists — that's fine.
					slog.Debug("migration 2: column may already exist", "sql", col, "error", err)
				}
			}
			return nil
		},
	},
}

// Migrate runs all pending schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	// Ensure the schema_version table exists.
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	// Get current version.
	var current int
	row := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		err := s.inTx(ctx, func(tx *sql.Tx) error {
			if err := m.apply(tx); err != nil {
				return err
			}
			_, err := tx.Exec(
				"INSERT INTO schema_version (version, description) VALUES (?, ?)",
				m.version, m.description)
			return err
		})
		if err != nil {
			return fmt.Errorf("applying migration %d (%s): %w", m.version, m.description, err)
		}
		slog.Info("applied schema migration", "version", m.version, "description", m.description)
	}
	return nil
}
