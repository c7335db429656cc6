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

// EntityRepository handles entity and entity-version database operations.
type EntityRepository struct {
	db DBTX
	sb squirrel.StatementBuilderType
}

// NewEntityRepository creates a new EntityRepository.
func NewEntityRepository(db DBTX) *EntityRepository {
	return &EntityRepository{
		db: db,
		sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var entityVersionColumns = []string{
	"id", "entity_id", "parent_entity_id", "acronym", "title", "entity_type",
	"start_date", "end_date",
}

func scanEntityVersion(row pgx.Row) (*models.EntityVersion, error) {
	v := &models.EntityVersion{}
	err := row.Scan(&v.ID, &v.EntityID, &v.ParentEntityID, &v.Acronym, &v.Title,
		&v.EntityType, &v.StartDate, &v.EndDate)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// CreateEntity creates a bare entity row.
func (r *EntityRepository) CreateEntity(ctx context.Context, entity *models.Entity) (int64, error) {
	sql, args, err := r.sb.Insert("entities").
		Columns("website").
		Values(entity.Website).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build create entity query: %w", err)
	}

	var id int64
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		logger.Error().Err(err).Msg("Error creating entity")
		return 0, fmt.Errorf("error creating entity: %w", err)
	}
	entity.ID = id
	return id, nil
}

// CreateVersion creates a new entity version.
func (r *EntityRepository) CreateVersion(ctx context.Context, version *models.EntityVersion) (int64, error) {
	sql, args, err := r.sb.Insert("entity_versions").
		Columns("entity_id", "parent_entity_id", "acronym", "title", "entity_type",
			"start_date", "end_date").
		Values(version.EntityID, version.ParentEntityID, version.Acronym, version.Title,
			version.EntityType, version.StartDate, version.EndDate).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build create entity version query: %w", err)
	}

	var id int64
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		logger.Error().Err(err).Str("acronym", version.Acronym).Msg("Error creating entity version")
		return 0, fmt.Errorf("error creating entity version: %w", err)
	}
	version.ID = id
	return id, nil
}

// ActiveVersion retrieves the version of the entity covering the given date.
func (r *EntityRepository) ActiveVersion(ctx context.Context, entityID int64, date time.Time) (*models.EntityVersion, error) {
	sql, args, err := r.sb.Select(entityVersionColumns...).
		From("entity_versions").
		Where(squirrel.Eq{"entity_id": entityID}).
		Where(squirrel.LtOrEq{"start_date": date}).
		Where(squirrel.Or{
			squirrel.Eq{"end_date": nil},
			squirrel.Gt{"end_date": date},
		}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build active version query: %w", err)
	}

	v, err := scanEntityVersion(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		logger.Error().Err(err).Int64("entityID", entityID).Msg("Error scanning active entity version")
		return nil, fmt.Errorf("error getting active entity version: %w", err)
	}
	return v, nil
}

// Versions retrieves all versions of an entity ordered by start date.
func (r *EntityRepository) Versions(ctx context.Context, entityID int64) ([]*models.EntityVersion, error) {
	sql, args, err := r.sb.Select(entityVersionColumns...).
		From("entity_versions").
		Where(squirrel.Eq{"entity_id": entityID}).
		OrderBy("start_date ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build versions query: %w", err)
	}
	return r.queryVersions(ctx, sql, args)
}

// ChildrenOn retrieves the versions active on the given date whose parent is
// the given entity.
func (r *EntityRepository) ChildrenOn(ctx context.Context, entityID int64, date time.Time) ([]*models.EntityVersion, error) {
	sql, args, err := r.sb.Select(entityVersionColumns...).
		From("entity_versions").
		Where(squirrel.Eq{"parent_entity_id": entityID}).
		Where(squirrel.LtOrEq{"start_date": date}).
		Where(squirrel.Or{
			squirrel.Eq{"end_date": nil},
			squirrel.Gt{"end_date": date},
		}).
		OrderBy("acronym ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build children query: %w", err)
	}
	return r.queryVersions(ctx, sql, args)
}

func (r *EntityRepository) queryVersions(ctx context.Context, sql string, args []interface{}) ([]*models.EntityVersion, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		logger.Error().Err(err).Msg("Error querying entity versions")
		return nil, fmt.Errorf("error querying entity versions: %w", err)
	}
	defer rows.Close()

	versions := []*models.EntityVersion{}
	for rows.Next() {
		v, err := scanEntityVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning entity version row: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}
