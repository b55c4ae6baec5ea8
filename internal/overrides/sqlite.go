package overrides

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pipe-qc-server/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite override store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	// sqlite allows one writer at a time; a single pooled connection
	// keeps concurrent saves from hitting busy errors.
	db.SetMaxOpenConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOverride(s scanner) (*Override, error) {
	o := &Override{}
	var recommended, final string

	err := s.Scan(
		&o.ID, &o.LadleID,
		&recommended, &final, &o.Agreed,
		&o.EngineerName, &o.Reason, &o.Notes,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.RecommendedDecision = domain.Decision(recommended)
	o.FinalDecision = domain.Decision(final)
	return o, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS overrides (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ladle_id TEXT NOT NULL,
		recommended_decision TEXT NOT NULL,
		final_decision TEXT NOT NULL,
		agreed INTEGER NOT NULL DEFAULT 0,
		engineer_name TEXT DEFAULT '',
		reason TEXT DEFAULT '',
		notes TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(ladle_id)
	);

	CREATE INDEX IF NOT EXISTS idx_overrides_ladle_id ON overrides(ladle_id);
	CREATE INDEX IF NOT EXISTS idx_overrides_created_at ON overrides(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

// Save stores or updates the override for a ladle. The write is a
// single atomic upsert: concurrent saves for the same ladle cannot trip
// the unique constraint, the loser becomes the update. The row keeps
// its original created_at on conflict.
func (s *SQLiteStore) Save(ctx context.Context, override *Override) error {
	now := time.Now()
	if override.CreatedAt.IsZero() {
		override.CreatedAt = now
	}
	override.UpdatedAt = now

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO overrides (
			ladle_id, recommended_decision, final_decision, agreed,
			engineer_name, reason, notes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ladle_id) DO UPDATE SET
			recommended_decision = excluded.recommended_decision,
			final_decision = excluded.final_decision,
			agreed = excluded.agreed,
			engineer_name = excluded.engineer_name,
			reason = excluded.reason,
			notes = excluded.notes,
			updated_at = excluded.updated_at
		RETURNING id
	`,
		override.LadleID,
		string(override.RecommendedDecision),
		string(override.FinalDecision),
		override.Agreed,
		override.EngineerName,
		override.Reason,
		override.Notes,
		override.CreatedAt,
		now,
	).Scan(&override.ID)
	if err != nil {
		return fmt.Errorf("failed to save: %w", err)
	}
	return nil
}

// Get retrieves the override for a ladle. Returns nil when there is none.
func (s *SQLiteStore) Get(ctx context.Context, ladleID string) (*Override, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, ladle_id,
			recommended_decision, final_decision, agreed,
			engineer_name, reason, notes, created_at, updated_at
		FROM overrides
		WHERE ladle_id = ?
		LIMIT 1
	`, ladleID)

	o, err := scanOverride(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return o, nil
}

// List returns override entries with pagination, newest first.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*Override, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ladle_id,
			recommended_decision, final_decision, agreed,
			engineer_name, reason, notes, created_at, updated_at
		FROM overrides
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var result []*Override
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

// Count returns the total number of override entries.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM overrides").Scan(&count)
	return count, err
}

// Delete removes an override entry by ID.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM overrides WHERE id = ?", id)
	return err
}

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000

// ExportJSON exports all overrides to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list overrides: %w", err)
	}

	export := &Export{
		Version:    "1.0",
		ExportedAt: time.Now(),
		Count:      len(all),
		Overrides:  all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// ImportJSON imports overrides from a JSON reader. Ladles that already
// have an override are skipped rather than replaced.
func (s *SQLiteStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	var export Export
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, o := range export.Overrides {
		existing, err := s.Get(ctx, o.LadleID)
		if err != nil {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
		}

		if existing != nil {
			skipped++
			continue
		}

		if err := s.Save(ctx, o); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}

	return imported, skipped, nil
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
