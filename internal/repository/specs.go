package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/pipe-qc-server/internal/domain"
)

// SpecRepository handles element specification persistence
type SpecRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewSpecRepository creates a new element specification repository
func NewSpecRepository(db *pgxpool.Pool, logger *logrus.Logger) *SpecRepository {
	return &SpecRepository{
		db:  db,
		log: logger,
	}
}

// GetByCode retrieves one element specification
func (r *SpecRepository) GetByCode(ctx context.Context, code string) (*domain.ElementSpecification, error) {
	query := `SELECT code, name, min_value, max_value, unit FROM element_specifications WHERE code = $1`

	var spec domain.ElementSpecification
	err := r.db.QueryRow(ctx, query, code).Scan(
		&spec.Code,
		&spec.Name,
		&spec.MinValue,
		&spec.MaxValue,
		&spec.Unit,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("element specification %s: %w", code, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting element specification: %w", err)
	}

	return &spec, nil
}

// List retrieves all element specifications ordered by code
func (r *SpecRepository) List(ctx context.Context) ([]*domain.ElementSpecification, error) {
	query := `SELECT code, name, min_value, max_value, unit FROM element_specifications ORDER BY code`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.log.WithError(err).Error("Failed to list element specifications")
		return nil, fmt.Errorf("listing element specifications: %w", err)
	}
	defer rows.Close()

	specs := []*domain.ElementSpecification{}
	for rows.Next() {
		var spec domain.ElementSpecification
		if err := rows.Scan(&spec.Code, &spec.Name, &spec.MinValue, &spec.MaxValue, &spec.Unit); err != nil {
			return nil, fmt.Errorf("scanning element specification: %w", err)
		}
		specs = append(specs, &spec)
	}

	return specs, rows.Err()
}

// Upsert creates or replaces an element specification
func (r *SpecRepository) Upsert(ctx context.Context, spec *domain.ElementSpecification) error {
	query := `
		INSERT INTO element_specifications (code, name, min_value, max_value, unit, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			min_value = EXCLUDED.min_value,
			max_value = EXCLUDED.max_value,
			unit = EXCLUDED.unit,
			updated_at = NOW()`

	unit := spec.Unit
	if unit == "" {
		unit = "%"
	}

	_, err := r.db.Exec(ctx, query, spec.Code, spec.Name, spec.MinValue, spec.MaxValue, unit)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"code":  spec.Code,
			"error": err,
		}).Error("Failed to upsert element specification")
		return fmt.Errorf("upserting element specification: %w", err)
	}

	r.log.WithField("code", spec.Code).Info("Element specification saved")
	return nil
}

// Delete removes an element specification
func (r *SpecRepository) Delete(ctx context.Context, code string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM element_specifications WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("deleting element specification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("element specification %s: %w", code, domain.ErrNotFound)
	}

	r.log.WithField("code", code).Info("Element specification deleted")
	return nil
}
