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

// ErrContainerYearExists is returned when a container year already exists for
// the (container, year) pair.
var ErrContainerYearExists = errors.New("container year already exists for this container and year")

// ContainerRepository handles learning-container database operations.
type ContainerRepository struct {
	db DBTX
	sb squirrel.StatementBuilderType
}

// NewContainerRepository creates a new ContainerRepository.
func NewContainerRepository(db DBTX) *ContainerRepository {
	return &ContainerRepository{
		db: db,
		sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var containerYearColumns = []string{
	"id", "learning_container_id", "academic_year", "acronym", "container_type",
	"common_title_fr", "common_title_en", "team", "is_vacant",
	"type_declaration_vacant", "changed",
}

func scanContainerYear(row pgx.Row) (*models.LearningContainerYear, error) {
	cy := &models.LearningContainerYear{}
	err := row.Scan(&cy.ID, &cy.LearningContainerID, &cy.AcademicYear, &cy.Acronym,
		&cy.ContainerType, &cy.CommonTitleFr, &cy.CommonTitleEn, &cy.Team,
		&cy.IsVacant, &cy.TypeDeclarationVacant, &cy.Changed)
	if err != nil {
		return nil, err
	}
	return cy, nil
}

// CreateContainer creates a container identity row and returns its id.
func (r *ContainerRepository) CreateContainer(ctx context.Context) (int64, error) {
	var id int64
	if err := r.db.QueryRow(ctx, `INSERT INTO learning_containers DEFAULT VALUES RETURNING id`).Scan(&id); err != nil {
		logger.Error().Err(err).Msg("Error creating learning container")
		return 0, fmt.Errorf("error creating learning container: %w", err)
	}
	return id, nil
}

// ByID retrieves a container year by ID.
func (r *ContainerRepository) ByID(ctx context.Context, id int64) (*models.LearningContainerYear, error) {
	return r.one(ctx, squirrel.Eq{"id": id})
}

// ByContainerAndYear retrieves the container year of a container for one year.
func (r *ContainerRepository) ByContainerAndYear(ctx context.Context, containerID int64, year int) (*models.LearningContainerYear, error) {
	return r.one(ctx, squirrel.Eq{"learning_container_id": containerID, "academic_year": year})
}

func (r *ContainerRepository) one(ctx context.Context, pred squirrel.Eq) (*models.LearningContainerYear, error) {
	sql, args, err := r.sb.Select(containerYearColumns...).
		From("learning_container_years").
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build container year query: %w", err)
	}

	cy, err := scanContainerYear(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		logger.Error().Err(err).Msg("Error scanning container year row")
		return nil, fmt.Errorf("error getting container year: %w", err)
	}
	return cy, nil
}

// Create inserts a new container year.
func (r *ContainerRepository) Create(ctx context.Context, cy *models.LearningContainerYear) (int64, error) {
	cy.Changed = time.Now().UTC()
	sql, args, err := r.sb.Insert("learning_container_years").
		Columns(containerYearColumns[1:]...).
		Values(cy.LearningContainerID, cy.AcademicYear, cy.Acronym, cy.ContainerType,
			cy.CommonTitleFr, cy.CommonTitleEn, cy.Team, cy.IsVacant,
			cy.TypeDeclarationVacant, cy.Changed).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build create container year query: %w", err)
	}

	var id int64
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		if isDuplicateKeyError(err) {
			return 0, ErrContainerYearExists
		}
		logger.Error().Err(err).Str("acronym", cy.Acronym).Int("year", cy.AcademicYear).
			Msg("Error creating container year")
		return 0, fmt.Errorf("error creating container year: %w", err)
	}
	cy.ID = id
	return id, nil
}

// Update persists the container year's shared fields.
func (r *ContainerRepository) Update(ctx context.Context, cy *models.LearningContainerYear) error {
	now := time.Now().UTC()
	sql, args, err := r.sb.Update("learning_container_years").
		Set("acronym", cy.Acronym).
		Set("container_type", cy.ContainerType).
		Set("common_title_fr", cy.CommonTitleFr).
		Set("common_title_en", cy.CommonTitleEn).
		Set("team", cy.Team).
		Set("is_vacant", cy.IsVacant).
		Set("type_declaration_vacant", cy.TypeDeclarationVacant).
		Set("changed", now).
		Where(squirrel.Eq{"id": cy.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update container year query: %w", err)
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		logger.Error().Err(err).Int64("containerYearID", cy.ID).Msg("Error updating container year")
		return fmt.Errorf("error updating container year: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	cy.Changed = now
	return nil
}

// Delete removes a container year and its entity links.
func (r *ContainerRepository) Delete(ctx context.Context, id int64) error {
	sql, args, err := r.sb.Delete("learning_container_years").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete container year query: %w", err)
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		logger.Error().Err(err).Int64("containerYearID", id).Msg("Error deleting container year")
		return fmt.Errorf("error deleting container year: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Entities retrieves the entity links of a container year by role.
func (r *ContainerRepository) Entities(ctx context.Context, containerYearID int64) (map[models.EntityLink]int64, error) {
	sql, args, err := r.sb.Select("link", "entity_id").
		From("entity_container_years").
		Where(squirrel.Eq{"learning_container_year_id": containerYearID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build container entities query: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		logger.Error().Err(err).Msg("Error querying container entities")
		return nil, fmt.Errorf("error querying container entities: %w", err)
	}
	defer rows.Close()

	entities := map[models.EntityLink]int64{}
	for rows.Next() {
		var link models.EntityLink
		var entityID int64
		if err := rows.Scan(&link, &entityID); err != nil {
			return nil, fmt.Errorf("error scanning container entity row: %w", err)
		}
		entities[link] = entityID
	}
	return entities, rows.Err()
}

// SetEntity links an entity to the container year under the given role,
// replacing any previous link for that role.
func (r *ContainerRepository) SetEntity(ctx context.Context, containerYearID int64, link models.EntityLink, entityID int64) error {
	sql := `
		INSERT INTO entity_container_years (learning_container_year_id, link, entity_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (learning_container_year_id, link)
		DO UPDATE SET entity_id = EXCLUDED.entity_id`
	if _, err := r.db.Exec(ctx, sql, containerYearID, link, entityID); err != nil {
		logger.Error().Err(err).Int64("containerYearID", containerYearID).Str("link", string(link)).
			Msg("Error setting container entity")
		return fmt.Errorf("error setting container entity: %w", err)
	}
	return nil
}
