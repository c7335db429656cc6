package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/osis-edu/osis/internal/app/models"
	"github.com/osis-edu/osis/internal/pkg/apperrors"
	"github.com/osis-edu/osis/internal/pkg/dberrors"
	"github.com/osis-edu/osis/internal/pkg/logger"
)

// ErrSnapshotExists is returned when a snapshot already exists for the
// (learning unit, year) pair. ErrAcronymTaken is returned when another
// learning unit already carries the acronym for that year.
var (
	ErrSnapshotExists = errors.New("snapshot already exists for this learning unit and year")
	ErrAcronymTaken   = errors.New("acronym is already used by another learning unit this year")
)

func snapshotConstraintError(err error) error {
	switch {
	case dberrors.IsDuplicateConstraintError(err, "uq_snapshot_unit_year"):
		return ErrSnapshotExists
	case dberrors.IsDuplicateConstraintError(err, "uq_snapshot_acronym_year"):
		return ErrAcronymTaken
	default:
		return nil
	}
}

// SnapshotRepository handles learning-unit-year database operations.
type SnapshotRepository struct {
	db DBTX
	sb squirrel.StatementBuilderType
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(db DBTX) *SnapshotRepository {
	return &SnapshotRepository{
		db: db,
		sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var snapshotColumns = []string{
	"id", "learning_unit_id", "learning_container_year_id", "academic_year",
	"acronym", "specific_title_fr", "specific_title_en", "subtype", "credits",
	"status", "language", "campus", "periodicity", "quadrimester", "session",
	"internship_subtype", "attribution_procedure", "professional_integration",
	"faculty_remark", "other_remark", "changed",
}

func scanSnapshot(row pgx.Row) (*models.LearningUnitYear, error) {
	s := &models.LearningUnitYear{}
	err := row.Scan(&s.ID, &s.LearningUnitID, &s.LearningContainerYearID, &s.AcademicYear,
		&s.Acronym, &s.SpecificTitleFr, &s.SpecificTitleEn, &s.Subtype, &s.Credits,
		&s.Status, &s.Language, &s.Campus, &s.Periodicity, &s.Quadrimester, &s.Session,
		&s.InternshipSubtype, &s.AttributionProcedure, &s.ProfessionalIntegration,
		&s.FacultyRemark, &s.OtherRemark, &s.Changed)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ByID retrieves a snapshot by ID.
func (r *SnapshotRepository) ByID(ctx context.Context, id int64) (*models.LearningUnitYear, error) {
	return r.one(ctx, squirrel.Eq{"id": id})
}

// ByAcronymAndYear retrieves a snapshot by its acronym and year.
func (r *SnapshotRepository) ByAcronymAndYear(ctx context.Context, acronym string, year int) (*models.LearningUnitYear, error) {
	return r.one(ctx, squirrel.Eq{"acronym": acronym, "academic_year": year})
}

// ByUnitAndYear retrieves the snapshot of a learning unit for one year.
func (r *SnapshotRepository) ByUnitAndYear(ctx context.Context, learningUnitID int64, year int) (*models.LearningUnitYear, error) {
	return r.one(ctx, squirrel.Eq{"learning_unit_id": learningUnitID, "academic_year": year})
}

func (r *SnapshotRepository) one(ctx context.Context, pred squirrel.Eq) (*models.LearningUnitYear, error) {
	sql, args, err := r.sb.Select(snapshotColumns...).
		From("learning_unit_years").
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot query: %w", err)
	}

	s, err := scanSnapshot(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		logger.Error().Err(err).Msg("Error scanning snapshot row")
		return nil, fmt.Errorf("error getting snapshot: %w", err)
	}
	return s, nil
}

// ByUnit retrieves all snapshots of a learning unit in ascending year order.
func (r *SnapshotRepository) ByUnit(ctx context.Context, learningUnitID int64) ([]*models.LearningUnitYear, error) {
	return r.many(ctx, squirrel.Eq{"learning_unit_id": learningUnitID})
}

// ByContainerYear retrieves the sibling snapshots sharing one container year.
func (r *SnapshotRepository) ByContainerYear(ctx context.Context, containerYearID int64) ([]*models.LearningUnitYear, error) {
	return r.many(ctx, squirrel.Eq{"learning_container_year_id": containerYearID})
}

func (r *SnapshotRepository) many(ctx context.Context, pred squirrel.Eq) ([]*models.LearningUnitYear, error) {
	sql, args, err := r.sb.Select(snapshotColumns...).
		From("learning_unit_years").
		Where(pred).
		OrderBy("academic_year ASC", "acronym ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshots query: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		logger.Error().Err(err).Msg("Error querying snapshots")
		return nil, fmt.Errorf("error querying snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []*models.LearningUnitYear{}
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning snapshot row: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

// Create inserts a new snapshot and stamps its modification timestamp.
func (r *SnapshotRepository) Create(ctx context.Context, s *models.LearningUnitYear) (int64, error) {
	s.Changed = time.Now().UTC()
	sql, args, err := r.sb.Insert("learning_unit_years").
		Columns(snapshotColumns[1:]...).
		Values(s.LearningUnitID, s.LearningContainerYearID, s.AcademicYear,
			s.Acronym, s.SpecificTitleFr, s.SpecificTitleEn, s.Subtype, s.Credits,
			s.Status, s.Language, s.Campus, s.Periodicity, s.Quadrimester, s.Session,
			s.InternshipSubtype, s.AttributionProcedure, s.ProfessionalIntegration,
			s.FacultyRemark, s.OtherRemark, s.Changed).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build create snapshot query: %w", err)
	}

	var id int64
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		if dupErr := snapshotConstraintError(err); dupErr != nil {
			return 0, dupErr
		}
		logger.Error().Err(err).Str("acronym", s.Acronym).Int("year", s.AcademicYear).
			Msg("Error creating snapshot")
		return 0, fmt.Errorf("error creating snapshot: %w", err)
	}
	s.ID = id
	return id, nil
}

// Update persists the snapshot's scalar fields with an optimistic check on
// the modification timestamp the caller read.
func (r *SnapshotRepository) Update(ctx context.Context, s *models.LearningUnitYear, expectedChanged time.Time) error {
	now := time.Now().UTC()
	sql, args, err := r.sb.Update("learning_unit_years").
		Set("acronym", s.Acronym).
		Set("specific_title_fr", s.SpecificTitleFr).
		Set("specific_title_en", s.SpecificTitleEn).
		Set("credits", s.Credits).
		Set("status", s.Status).
		Set("language", s.Language).
		Set("campus", s.Campus).
		Set("periodicity", s.Periodicity).
		Set("quadrimester", s.Quadrimester).
		Set("session", s.Session).
		Set("internship_subtype", s.InternshipSubtype).
		Set("attribution_procedure", s.AttributionProcedure).
		Set("professional_integration", s.ProfessionalIntegration).
		Set("faculty_remark", s.FacultyRemark).
		Set("other_remark", s.OtherRemark).
		Set("changed", now).
		Where(squirrel.Eq{"id": s.ID, "changed": expectedChanged}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update snapshot query: %w", err)
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		if dupErr := snapshotConstraintError(err); dupErr != nil {
			return dupErr
		}
		logger.Error().Err(err).Int64("snapshotID", s.ID).Msg("Error updating snapshot")
		return fmt.Errorf("error updating snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a stale timestamp from a missing row.
		if _, err := r.ByID(ctx, s.ID); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return apperrors.ErrConcurrentUpdate
	}
	s.Changed = now
	return nil
}

// Delete removes a snapshot; components, classes, pedagogy rows and usage
// rows cascade at the schema level.
func (r *SnapshotRepository) Delete(ctx context.Context, id int64) error {
	sql, args, err := r.sb.Delete("learning_unit_years").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete snapshot query: %w", err)
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		logger.Error().Err(err).Int64("snapshotID", id).Msg("Error deleting snapshot")
		return fmt.Errorf("error deleting snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
