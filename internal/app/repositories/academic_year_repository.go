package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/osis-edu/osis/internal/app/models"
	"github.com/osis-edu/osis/internal/pkg/logger"
)

// ErrAcademicYearExists is returned when the year is already seeded.
var ErrAcademicYearExists = errors.New("academic year already exists")

// AcademicYearRepository handles academic-year database operations.
type AcademicYearRepository struct {
	db DBTX
	sb squirrel.StatementBuilderType
}

// NewAcademicYearRepository creates a new AcademicYearRepository.
func NewAcademicYearRepository(db DBTX) *AcademicYearRepository {
	return &AcademicYearRepository{
		db: db,
		sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var academicYearColumns = []string{"id", "year", "start_date", "end_date"}

func scanAcademicYear(row pgx.Row) (*models.AcademicYear, error) {
	y := &models.AcademicYear{}
	if err := row.Scan(&y.ID, &y.Year, &y.StartDate, &y.EndDate); err != nil {
		return nil, err
	}
	return y, nil
}

// ByYear retrieves one academic year by its integer value.
func (r *AcademicYearRepository) ByYear(ctx context.Context, year int) (*models.AcademicYear, error) {
	sql, args, err := r.sb.Select(academicYearColumns...).
		From("academic_years").
		Where(squirrel.Eq{"year": year}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build academic year query: %w", err)
	}

	y, err := scanAcademicYear(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		logger.Error().Err(err).Int("year", year).Msg("Error scanning academic year row")
		return nil, fmt.Errorf("error getting academic year: %w", err)
	}
	return y, nil
}

// Containing retrieves the academic years whose date range covers the given
// date, ordered by year. At most two rows match.
func (r *AcademicYearRepository) Containing(ctx context.Context, date time.Time) ([]*models.AcademicYear, error) {
	sql, args, err := r.sb.Select(academicYearColumns...).
		From("academic_years").
		Where(squirrel.LtOrEq{"start_date": date}).
		Where(squirrel.GtOrEq{"end_date": date}).
		OrderBy("year ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build containing years query: %w", err)
	}
	return r.queryYears(ctx, sql, args)
}

// Range retrieves the academic years in [from, to], ordered by year.
func (r *AcademicYearRepository) Range(ctx context.Context, from, to int) ([]*models.AcademicYear, error) {
	sql, args, err := r.sb.Select(academicYearColumns...).
		From("academic_years").
		Where(squirrel.GtOrEq{"year": from}).
		Where(squirrel.LtOrEq{"year": to}).
		OrderBy("year ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build year range query: %w", err)
	}
	return r.queryYears(ctx, sql, args)
}

func (r *AcademicYearRepository) queryYears(ctx context.Context, sql string, args []interface{}) ([]*models.AcademicYear, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		logger.Error().Err(err).Msg("Error querying academic years")
		return nil, fmt.Errorf("error querying academic years: %w", err)
	}
	defer rows.Close()

	years := []*models.AcademicYear{}
	for rows.Next() {
		y, err := scanAcademicYear(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning academic year row: %w", err)
		}
		years = append(years, y)
	}
	return years, rows.Err()
}

// Create seeds a new academic year.
func (r *AcademicYearRepository) Create(ctx context.Context, year *models.AcademicYear) (int64, error) {
	sql, args, err := r.sb.Insert("academic_years").
		Columns("year", "start_date", "end_date").
		Values(year.Year, year.StartDate, year.EndDate).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build create academic year query: %w", err)
	}

	var id int64
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		if isDuplicateKeyError(err) {
			return 0, ErrAcademicYearExists
		}
		logger.Error().Err(err).Int("year", year.Year).Msg("Error creating academic year")
		return 0, fmt.Errorf("error creating academic year: %w", err)
	}
	year.ID = id
	return id, nil
}
