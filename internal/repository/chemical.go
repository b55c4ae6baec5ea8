// Package repository persists analysis and test records in PostgreSQL.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/pipe-qc-server/internal/domain"
)

const uniqueViolation = "23505"

const chemicalColumns = `
	id, test_date, furnace, ladle_no, ladle_id,
	carbon, silicon, magnesium, copper, chromium,
	sulfur, manganese, phosphorus, lead, aluminum,
	carbon_equivalent, manganese_equivalent, magnesium_equivalent,
	decision, reason, has_defect, engineer_notes, notes,
	created_at, updated_at`

// ChemicalFilter narrows List queries. Zero-value fields are ignored.
type ChemicalFilter struct {
	DateFrom *time.Time
	DateTo   *time.Time
	Furnace  string
	Decision domain.Decision
	Limit    int
	Offset   int
}

// ChemicalRepository handles chemical analysis persistence
type ChemicalRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewChemicalRepository creates a new chemical analysis repository
func NewChemicalRepository(db *pgxpool.Pool, logger *logrus.Logger) *ChemicalRepository {
	return &ChemicalRepository{
		db:  db,
		log: logger,
	}
}

// Create inserts a new analysis record. Duplicate ladle identifiers and
// duplicate (test_date, ladle_no) pairs map to domain.ErrAlreadyExists.
func (r *ChemicalRepository) Create(ctx context.Context, analysis *domain.ChemicalAnalysis) error {
	query := `
		INSERT INTO chemical_analyses (
			id, test_date, furnace, ladle_no, ladle_id,
			carbon, silicon, magnesium, copper, chromium,
			sulfur, manganese, phosphorus, lead, aluminum,
			carbon_equivalent, manganese_equivalent, magnesium_equivalent,
			decision, reason, has_defect, engineer_notes, notes
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23
		)`

	_, err := r.db.Exec(ctx, query,
		analysis.ID,
		analysis.TestDate,
		analysis.Furnace,
		analysis.LadleNo,
		analysis.LadleID,
		analysis.Carbon,
		analysis.Silicon,
		analysis.Magnesium,
		analysis.Copper,
		analysis.Chromium,
		analysis.Sulfur,
		analysis.Manganese,
		analysis.Phosphorus,
		analysis.Lead,
		analysis.Aluminum,
		analysis.CarbonEquivalent,
		analysis.ManganeseEquivalent,
		analysis.MagnesiumEquivalent,
		nullableDecision(analysis.Decision),
		analysis.Reason,
		analysis.HasDefect,
		analysis.EngineerNotes,
		analysis.Notes,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("ladle %s on %s: %w",
				analysis.LadleID, analysis.TestDate.Format("2006-01-02"), domain.ErrAlreadyExists)
		}
		r.log.WithFields(logrus.Fields{
			"analysis_id": analysis.ID,
			"ladle_id":    analysis.LadleID,
			"error":       err,
		}).Error("Failed to create chemical analysis")
		return fmt.Errorf("creating chemical analysis: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"analysis_id": analysis.ID,
		"ladle_id":    analysis.LadleID,
		"furnace":     analysis.Furnace,
	}).Info("Chemical analysis created")

	return nil
}

// GetByID retrieves an analysis by its ID
func (r *ChemicalRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ChemicalAnalysis, error) {
	query := `SELECT ` + chemicalColumns + ` FROM chemical_analyses WHERE id = $1`

	analysis, err := r.scanOne(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("chemical analysis not found: %w", domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"analysis_id": id,
			"error":       err,
		}).Error("Failed to get chemical analysis by ID")
		return nil, fmt.Errorf("getting chemical analysis: %w", err)
	}

	return analysis, nil
}

// GetByLadleID retrieves an analysis by its ladle identifier
func (r *ChemicalRepository) GetByLadleID(ctx context.Context, ladleID string) (*domain.ChemicalAnalysis, error) {
	query := `SELECT ` + chemicalColumns + ` FROM chemical_analyses WHERE ladle_id = $1`

	analysis, err := r.scanOne(r.db.QueryRow(ctx, query, ladleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("ladle %s not found: %w", ladleID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting chemical analysis by ladle: %w", err)
	}

	return analysis, nil
}

// List retrieves analyses matching the filter, newest first.
func (r *ChemicalRepository) List(ctx context.Context, filter ChemicalFilter) ([]*domain.ChemicalAnalysis, error) {
	query := `SELECT ` + chemicalColumns + ` FROM chemical_analyses WHERE 1=1`
	args := []any{}
	arg := 0

	next := func(v any) string {
		arg++
		args = append(args, v)
		return fmt.Sprintf("$%d", arg)
	}

	if filter.DateFrom != nil {
		query += ` AND test_date >= ` + next(*filter.DateFrom)
	}
	if filter.DateTo != nil {
		query += ` AND test_date <= ` + next(*filter.DateTo)
	}
	if filter.Furnace != "" {
		query += ` AND furnace = ` + next(filter.Furnace)
	}
	if filter.Decision != "" {
		query += ` AND decision = ` + next(string(filter.Decision))
	}

	query += ` ORDER BY test_date DESC, ladle_no DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ` + next(filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ` + next(filter.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.WithError(err).Error("Failed to list chemical analyses")
		return nil, fmt.Errorf("listing chemical analyses: %w", err)
	}
	defer rows.Close()

	analyses := []*domain.ChemicalAnalysis{}
	for rows.Next() {
		analysis, err := r.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning chemical analysis: %w", err)
		}
		analyses = append(analyses, analysis)
	}

	return analyses, rows.Err()
}

// MaxLadleNoForDate returns the highest ladle number recorded on the
// given date, or nil when no ladles were recorded that day. Drives the
// daily ladle sequence.
func (r *ChemicalRepository) MaxLadleNoForDate(ctx context.Context, date time.Time) (*int, error) {
	query := `SELECT MAX(ladle_no) FROM chemical_analyses WHERE test_date = $1`

	var max *int
	if err := r.db.QueryRow(ctx, query, date).Scan(&max); err != nil {
		r.log.WithFields(logrus.Fields{
			"test_date": date.Format("2006-01-02"),
			"error":     err,
		}).Error("Failed to get max ladle number")
		return nil, fmt.Errorf("getting max ladle number: %w", err)
	}

	return max, nil
}

// Update replaces the mutable fields of an existing analysis.
func (r *ChemicalRepository) Update(ctx context.Context, analysis *domain.ChemicalAnalysis) error {
	query := `
		UPDATE chemical_analyses SET
			test_date = $2, furnace = $3, ladle_no = $4, ladle_id = $5,
			carbon = $6, silicon = $7, magnesium = $8, copper = $9, chromium = $10,
			sulfur = $11, manganese = $12, phosphorus = $13, lead = $14, aluminum = $15,
			carbon_equivalent = $16, manganese_equivalent = $17, magnesium_equivalent = $18,
			decision = $19, reason = $20, has_defect = $21, engineer_notes = $22, notes = $23,
			updated_at = NOW()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		analysis.ID,
		analysis.TestDate,
		analysis.Furnace,
		analysis.LadleNo,
		analysis.LadleID,
		analysis.Carbon,
		analysis.Silicon,
		analysis.Magnesium,
		analysis.Copper,
		analysis.Chromium,
		analysis.Sulfur,
		analysis.Manganese,
		analysis.Phosphorus,
		analysis.Lead,
		analysis.Aluminum,
		analysis.CarbonEquivalent,
		analysis.ManganeseEquivalent,
		analysis.MagnesiumEquivalent,
		nullableDecision(analysis.Decision),
		analysis.Reason,
		analysis.HasDefect,
		analysis.EngineerNotes,
		analysis.Notes,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("ladle %s: %w", analysis.LadleID, domain.ErrAlreadyExists)
		}
		r.log.WithFields(logrus.Fields{
			"analysis_id": analysis.ID,
			"error":       err,
		}).Error("Failed to update chemical analysis")
		return fmt.Errorf("updating chemical analysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chemical analysis %s: %w", analysis.ID, domain.ErrNotFound)
	}

	r.log.WithField("analysis_id", analysis.ID).Info("Chemical analysis updated")
	return nil
}

// Delete removes an analysis record.
func (r *ChemicalRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM chemical_analyses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting chemical analysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chemical analysis %s: %w", id, domain.ErrNotFound)
	}

	r.log.WithField("analysis_id", id).Info("Chemical analysis deleted")
	return nil
}

func (r *ChemicalRepository) scanOne(row pgx.Row) (*domain.ChemicalAnalysis, error) {
	var analysis domain.ChemicalAnalysis
	var decision *string

	err := row.Scan(
		&analysis.ID,
		&analysis.TestDate,
		&analysis.Furnace,
		&analysis.LadleNo,
		&analysis.LadleID,
		&analysis.Carbon,
		&analysis.Silicon,
		&analysis.Magnesium,
		&analysis.Copper,
		&analysis.Chromium,
		&analysis.Sulfur,
		&analysis.Manganese,
		&analysis.Phosphorus,
		&analysis.Lead,
		&analysis.Aluminum,
		&analysis.CarbonEquivalent,
		&analysis.ManganeseEquivalent,
		&analysis.MagnesiumEquivalent,
		&decision,
		&analysis.Reason,
		&analysis.HasDefect,
		&analysis.EngineerNotes,
		&analysis.Notes,
		&analysis.CreatedAt,
		&analysis.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if decision != nil {
		analysis.Decision = domain.Decision(*decision)
	}
	return &analysis, nil
}

func nullableDecision(d domain.Decision) *string {
	if d == "" {
		return nil
	}
	s := string(d)
	return &s
}
