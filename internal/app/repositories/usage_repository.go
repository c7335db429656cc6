package repositories

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/osis-edu/osis/internal/app/models"
	"github.com/osis-edu/osis/internal/pkg/logger"
)

// UsageRepository counts the external references of a snapshot: enrollments,
// attributions and education-group memberships.
type UsageRepository struct {
	db DBTX
	sb squirrel.StatementBuilderType
}

// NewUsageRepository creates a new UsageRepository.
func NewUsageRepository(db DBTX) *UsageRepository {
	return &UsageRepository{
		db: db,
		sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Usage counts all blocking references of a snapshot.
func (r *UsageRepository) Usage(ctx context.Context, snapshotID int64) (models.SnapshotUsage, error) {
	var usage models.SnapshotUsage
	query := `
		SELECT
			(SELECT COUNT(*) FROM learning_unit_enrollments WHERE learning_unit_year_id = $1),
			(SELECT COUNT(*) FROM attributions WHERE learning_unit_year_id = $1),
			(SELECT COUNT(*) FROM group_element_years WHERE learning_unit_year_id = $1)`
	err := r.db.QueryRow(ctx, query, snapshotID).
		Scan(&usage.Enrollments, &usage.Attributions, &usage.GroupMemberships)
	if err != nil {
		logger.Error().Err(err).Int64("snapshotID", snapshotID).Msg("Error counting snapshot usage")
		return models.SnapshotUsage{}, fmt.Errorf("error counting snapshot usage: %w", err)
	}
	return usage, nil
}

// AddEnrollment records a student enrollment on a snapshot.
func (r *UsageRepository) AddEnrollment(ctx context.Context, snapshotID, studentID int64) error {
	return r.insert(ctx, "learning_unit_enrollments", "student_id", snapshotID, studentID)
}

// AddAttribution records a tutor attribution on a snapshot.
func (r *UsageRepository) AddAttribution(ctx context.Context, snapshotID, tutorID int64) error {
	return r.insert(ctx, "attributions", "tutor_id", snapshotID, tutorID)
}

// AddGroupMembership records a group membership of a snapshot.
func (r *UsageRepository) AddGroupMembership(ctx context.Context, snapshotID, groupID int64) error {
	return r.insert(ctx, "group_element_years", "group_id", snapshotID, groupID)
}

func (r *UsageRepository) insert(ctx context.Context, table, refColumn string, snapshotID, refID int64) error {
	sql, args, err := r.sb.Insert(table).
		Columns("learning_unit_year_id", refColumn).
		Values(snapshotID, refID).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build %s insert: %w", table, err)
	}
	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		logger.Error().Err(err).Str("table", table).Int64("snapshotID", snapshotID).
			Msg("Error recording snapshot usage")
		return fmt.Errorf("error recording snapshot usage: %w", err)
	}
	return nil
}
