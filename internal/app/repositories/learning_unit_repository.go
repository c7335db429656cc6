package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/osis-edu/osis/internal/app/models"
	"github.com/osis-edu/osis/internal/pkg/logger"
)

// LearningUnitRepository handles learning-unit identity rows.
type LearningUnitRepository struct {
	db DBTX
	sb squirrel.StatementBuilderType
}

// NewLearningUnitRepository creates a new LearningUnitRepository.
func NewLearningUnitRepository(db DBTX) *LearningUnitRepository {
	return &LearningUnitRepository{
		db: db,
		sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// ByID retrieves a learning unit by ID.
func (r *LearningUnitRepository) ByID(ctx context.Context, id int64) (*models.LearningUnit, error) {
	sql, args, err := r.sb.Select("id", "uuid", "start_year", "end_year").
		From("learning_units").
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build learning unit query: %w", err)
	}

	unit := &models.LearningUnit{}
	err = r.db.QueryRow(ctx, sql, args...).Scan(&unit.ID, &unit.UUID, &unit.StartYear, &unit.EndYear)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		logger.Error().Err(err).Int64("learningUnitID", id).Msg("Error scanning learning unit row")
		return nil, fmt.Errorf("error getting learning unit: %w", err)
	}
	return unit, nil
}

// Create creates a new learning unit.
func (r *LearningUnitRepository) Create(ctx context.Context, unit *models.LearningUnit) (int64, error) {
	sql, args, err := r.sb.Insert("learning_units").
		Columns("uuid", "start_year", "end_year").
		Values(unit.UUID, unit.StartYear, unit.EndYear).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build create learning unit query: %w", err)
	}

	var id int64
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		logger.Error().Err(err).Msg("Error creating learning unit")
		return 0, fmt.Errorf("error creating learning unit: %w", err)
	}
	unit.ID = id
	return id, nil
}

// SetEndYear persists a new closure year; nil reopens the unit.
func (r *LearningUnitRepository) SetEndYear(ctx context.Context, id int64, endYear *int) error {
	sql, args, err := r.sb.Update("learning_units").
		Set("end_year", endYear).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build set end year query: %w", err)
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		logger.Error().Err(err).Int64("learningUnitID", id).Msg("Error setting end year")
		return fmt.Errorf("error setting end year: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a learning unit. Callers must have removed every snapshot
// first.
func (r *LearningUnitRepository) Delete(ctx context.Context, id int64) error {
	sql, args, err := r.sb.Delete("learning_units").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete learning unit query: %w", err)
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		logger.Error().Err(err).Int64("learningUnitID", id).Msg("Error deleting learning unit")
		return fmt.Errorf("error deleting learning unit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
