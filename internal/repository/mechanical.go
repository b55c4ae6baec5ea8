package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/pipe-qc-server/internal/domain"
)

const mechanicalColumns = `
	id, test_date, test_number, diameter, code, pipe_no, ladle_id,
	sample_thickness, d1, d2, d3, avg_dimension,
	original_length, final_length, area_d_squared,
	force_kgf, tensile_strength, elongation,
	microstructure, nodularity_percent, nodule_count, ferrite, hardness, carbides,
	shift, tester_name, verdict, reason, comments,
	created_at, updated_at`

// MechanicalFilter narrows List queries. Zero-value fields are ignored.
type MechanicalFilter struct {
	DateFrom *time.Time
	DateTo   *time.Time
	LadleID  string
	Verdict  domain.Verdict
	Limit    int
	Offset   int
}

// MechanicalRepository handles mechanical test persistence
type MechanicalRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewMechanicalRepository creates a new mechanical test repository
func NewMechanicalRepository(db *pgxpool.Pool, logger *logrus.Logger) *MechanicalRepository {
	return &MechanicalRepository{
		db:  db,
		log: logger,
	}
}

// Create inserts a new mechanical test record
func (r *MechanicalRepository) Create(ctx context.Context, test *domain.MechanicalTest) error {
	query := `
		INSERT INTO mechanical_tests (
			id, test_date, test_number, diameter, code, pipe_no, ladle_id,
			sample_thickness, d1, d2, d3, avg_dimension,
			original_length, final_length, area_d_squared,
			force_kgf, tensile_strength, elongation,
			microstructure, nodularity_percent, nodule_count, ferrite, hardness, carbides,
			shift, tester_name, verdict, reason, comments
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29
		)`

	_, err := r.db.Exec(ctx, query,
		test.ID,
		test.TestDate,
		test.TestNumber,
		test.Diameter,
		test.Code,
		test.PipeNo,
		test.LadleID,
		test.SampleThickness,
		test.D1,
		test.D2,
		test.D3,
		test.AvgDimension,
		test.OriginalLength,
		test.FinalLength,
		test.AreaDSquared,
		test.ForceKgf,
		test.TensileStrength,
		test.Elongation,
		test.Microstructure,
		test.NodularityPercent,
		test.NoduleCount,
		test.Ferrite,
		test.Hardness,
		test.Carbides,
		test.Shift,
		test.TesterName,
		nullableVerdict(test.Verdict),
		test.Reason,
		test.Comments,
	)

	if err != nil {
		r.log.WithFields(logrus.Fields{
			"test_id":  test.ID,
			"ladle_id": test.LadleID,
			"error":    err,
		}).Error("Failed to create mechanical test")
		return fmt.Errorf("creating mechanical test: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"test_id":     test.ID,
		"test_number": test.TestNumber,
		"ladle_id":    test.LadleID,
	}).Info("Mechanical test created")

	return nil
}

// GetByID retrieves a mechanical test by its ID
func (r *MechanicalRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.MechanicalTest, error) {
	query := `SELECT ` + mechanicalColumns + ` FROM mechanical_tests WHERE id = $1`

	test, err := r.scanOne(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("mechanical test not found: %w", domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"test_id": id,
			"error":   err,
		}).Error("Failed to get mechanical test by ID")
		return nil, fmt.Errorf("getting mechanical test: %w", err)
	}

	return test, nil
}

// List retrieves mechanical tests matching the filter, newest first.
func (r *MechanicalRepository) List(ctx context.Context, filter MechanicalFilter) ([]*domain.MechanicalTest, error) {
	query := `SELECT ` + mechanicalColumns + ` FROM mechanical_tests WHERE 1=1`
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
	if filter.LadleID != "" {
		query += ` AND ladle_id = ` + next(filter.LadleID)
	}
	if filter.Verdict != "" {
		query += ` AND verdict = ` + next(string(filter.Verdict))
	}

	query += ` ORDER BY test_date DESC, test_number DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ` + next(filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ` + next(filter.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.WithError(err).Error("Failed to list mechanical tests")
		return nil, fmt.Errorf("listing mechanical tests: %w", err)
	}
	defer rows.Close()

	tests := []*domain.MechanicalTest{}
	for rows.Next() {
		test, err := r.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning mechanical test: %w", err)
		}
		tests = append(tests, test)
	}

	return tests, rows.Err()
}

// MaxTestNumberForDate returns the highest test number recorded on the
// given date, or nil when no tests were recorded that day.
func (r *MechanicalRepository) MaxTestNumberForDate(ctx context.Context, date time.Time) (*int, error) {
	query := `SELECT MAX(test_number) FROM mechanical_tests WHERE test_date = $1`

	var max *int
	if err := r.db.QueryRow(ctx, query, date).Scan(&max); err != nil {
		return nil, fmt.Errorf("getting max test number: %w", err)
	}

	return max, nil
}

// Update replaces the mutable fields of an existing test.
func (r *MechanicalRepository) Update(ctx context.Context, test *domain.MechanicalTest) error {
	query := `
		UPDATE mechanical_tests SET
			test_date = $2, test_number = $3, diameter = $4, code = $5, pipe_no = $6, ladle_id = $7,
			sample_thickness = $8, d1 = $9, d2 = $10, d3 = $11, avg_dimension = $12,
			original_length = $13, final_length = $14, area_d_squared = $15,
			force_kgf = $16, tensile_strength = $17, elongation = $18,
			microstructure = $19, nodularity_percent = $20, nodule_count = $21,
			ferrite = $22, hardness = $23, carbides = $24,
			shift = $25, tester_name = $26, verdict = $27, reason = $28, comments = $29,
			updated_at = NOW()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		test.ID,
		test.TestDate,
		test.TestNumber,
		test.Diameter,
		test.Code,
		test.PipeNo,
		test.LadleID,
		test.SampleThickness,
		test.D1,
		test.D2,
		test.D3,
		test.AvgDimension,
		test.OriginalLength,
		test.FinalLength,
		test.AreaDSquared,
		test.ForceKgf,
		test.TensileStrength,
		test.Elongation,
		test.Microstructure,
		test.NodularityPercent,
		test.NoduleCount,
		test.Ferrite,
		test.Hardness,
		test.Carbides,
		test.Shift,
		test.TesterName,
		nullableVerdict(test.Verdict),
		test.Reason,
		test.Comments,
	)

	if err != nil {
		r.log.WithFields(logrus.Fields{
			"test_id": test.ID,
			"error":   err,
		}).Error("Failed to update mechanical test")
		return fmt.Errorf("updating mechanical test: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mechanical test %s: %w", test.ID, domain.ErrNotFound)
	}

	r.log.WithField("test_id", test.ID).Info("Mechanical test updated")
	return nil
}

// Delete removes a mechanical test record.
func (r *MechanicalRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM mechanical_tests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting mechanical test: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mechanical test %s: %w", id, domain.ErrNotFound)
	}

	r.log.WithField("test_id", id).Info("Mechanical test deleted")
	return nil
}

func (r *MechanicalRepository) scanOne(row pgx.Row) (*domain.MechanicalTest, error) {
	var test domain.MechanicalTest
	var verdict *string

	err := row.Scan(
		&test.ID,
		&test.TestDate,
		&test.TestNumber,
		&test.Diameter,
		&test.Code,
		&test.PipeNo,
		&test.LadleID,
		&test.SampleThickness,
		&test.D1,
		&test.D2,
		&test.D3,
		&test.AvgDimension,
		&test.OriginalLength,
		&test.FinalLength,
		&test.AreaDSquared,
		&test.ForceKgf,
		&test.TensileStrength,
		&test.Elongation,
		&test.Microstructure,
		&test.NodularityPercent,
		&test.NoduleCount,
		&test.Ferrite,
		&test.Hardness,
		&test.Carbides,
		&test.Shift,
		&test.TesterName,
		&verdict,
		&test.Reason,
		&test.Comments,
		&test.CreatedAt,
		&test.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if verdict != nil {
		test.Verdict = domain.Verdict(*verdict)
	}
	return &test, nil
}

func nullableVerdict(v domain.Verdict) *string {
	if v == "" {
		return nil
	}
	s := string(v)
	return &s
}
