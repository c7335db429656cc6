package repositories

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/osis-edu/osis/internal/app/models"
	"github.com/osis-edu/osis/internal/pkg/logger"
)

// ComponentRepository handles volume components and their classes.
type ComponentRepository struct {
	db DBTX
	sb squirrel.StatementBuilderType
}

// NewComponentRepository creates a new ComponentRepository.
func NewComponentRepository(db DBTX) *ComponentRepository {
	return &ComponentRepository{
		db: db,
		sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var componentColumns = []string{
	"id", "learning_unit_year_id", "type", "acronym", "vol_q1", "vol_q2",
	"vol_total_annual", "planned_classes", "repartition_volume_requirement",
	"repartition_volume_additional_1", "repartition_volume_additional_2",
}

func scanComponent(row pgx.Row) (*models.LearningComponentYear, error) {
	c := &models.LearningComponentYear{}
	err := row.Scan(&c.ID, &c.LearningUnitYearID, &c.Type, &c.Acronym, &c.VolQ1, &c.VolQ2,
		&c.VolTotalAnnual, &c.PlannedClasses, &c.RepartitionRequirement,
		&c.RepartitionAdditional1, &c.RepartitionAdditional2)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// BySnapshot retrieves the components of a snapshot ordered by type.
func (r *ComponentRepository) BySnapshot(ctx context.Context, snapshotID int64) ([]*models.LearningComponentYear, error) {
	sql, args, err := r.sb.Select(componentColumns...).
		From("learning_component_years").
		Where(squirrel.Eq{"learning_unit_year_id": snapshotID}).
		OrderBy("type ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build components query: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		logger.Error().Err(err).Msg("Error querying components")
		return nil, fmt.Errorf("error querying components: %w", err)
	}
	defer rows.Close()

	components := []*models.LearningComponentYear{}
	for rows.Next() {
		c, err := scanComponent(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning component row: %w", err)
		}
		components = append(components, c)
	}
	return components, rows.Err()
}

// Create inserts a new component.
func (r *ComponentRepository) Create(ctx context.Context, c *models.LearningComponentYear) (int64, error) {
	sql, args, err := r.sb.Insert("learning_component_years").
		Columns(componentColumns[1:]...).
		Values(c.LearningUnitYearID, c.Type, c.Acronym, c.VolQ1, c.VolQ2,
			c.VolTotalAnnual, c.PlannedClasses, c.RepartitionRequirement,
			c.RepartitionAdditional1, c.RepartitionAdditional2).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build create component query: %w", err)
	}

	var id int64
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		logger.Error().Err(err).Int64("snapshotID", c.LearningUnitYearID).Msg("Error creating component")
		return 0, fmt.Errorf("error creating component: %w", err)
	}
	c.ID = id
	return id, nil
}

// Update persists the component's volumes.
func (r *ComponentRepository) Update(ctx context.Context, c *models.LearningComponentYear) error {
	sql, args, err := r.sb.Update("learning_component_years").
		Set("vol_q1", c.VolQ1).
		Set("vol_q2", c.VolQ2).
		Set("vol_total_annual", c.VolTotalAnnual).
		Set("planned_classes", c.PlannedClasses).
		Set("repartition_volume_requirement", c.RepartitionRequirement).
		Set("repartition_volume_additional_1", c.RepartitionAdditional1).
		Set("repartition_volume_additional_2", c.RepartitionAdditional2).
		Where(squirrel.Eq{"id": c.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update component query: %w", err)
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		logger.Error().Err(err).Int64("componentID", c.ID).Msg("Error updating component")
		return fmt.Errorf("error updating component: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a component and its classes.
func (r *ComponentRepository) Delete(ctx context.Context, id int64) error {
	sql, args, err := r.sb.Delete("learning_component_years").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete component query: %w", err)
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		logger.Error().Err(err).Int64("componentID", id).Msg("Error deleting component")
		return fmt.Errorf("error deleting component: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Classes retrieves the class subdivisions of a component.
func (r *ComponentRepository) Classes(ctx context.Context, componentID int64) ([]*models.LearningClassYear, error) {
	sql, args, err := r.sb.Select("id", "learning_component_year_id", "acronym_letter").
		From("learning_class_years").
		Where(squirrel.Eq{"learning_component_year_id": componentID}).
		OrderBy("acronym_letter ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build classes query: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		logger.Error().Err(err).Msg("Error querying classes")
		return nil, fmt.Errorf("error querying classes: %w", err)
	}
	defer rows.Close()

	classes := []*models.LearningClassYear{}
	for rows.Next() {
		cls := &models.LearningClassYear{}
		if err := rows.Scan(&cls.ID, &cls.LearningComponentYearID, &cls.AcronymLetter); err != nil {
			return nil, fmt.Errorf("error scanning class row: %w", err)
		}
		classes = append(classes, cls)
	}
	return classes, rows.Err()
}

// CreateClass inserts a new class subdivision.
func (r *ComponentRepository) CreateClass(ctx context.Context, cls *models.LearningClassYear) (int64, error) {
	sql, args, err := r.sb.Insert("learning_class_years").
		Columns("learning_component_year_id", "acronym_letter").
		Values(cls.LearningComponentYearID, cls.AcronymLetter).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build create class query: %w", err)
	}

	var id int64
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		logger.Error().Err(err).Int64("componentID", cls.LearningComponentYearID).Msg("Error creating class")
		return 0, fmt.Errorf("error creating class: %w", err)
	}
	cls.ID = id
	return id, nil
}
