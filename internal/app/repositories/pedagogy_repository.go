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

// PedagogyRepository handles CMS texts, teaching materials and external
// learning-unit records.
type PedagogyRepository struct {
	db DBTX
	sb squirrel.StatementBuilderType
}

// NewPedagogyRepository creates a new PedagogyRepository.
func NewPedagogyRepository(db DBTX) *PedagogyRepository {
	return &PedagogyRepository{
		db: db,
		sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Texts retrieves the translated texts of a snapshot.
func (r *PedagogyRepository) Texts(ctx context.Context, snapshotID int64) ([]*models.TranslatedText, error) {
	sql, args, err := r.sb.Select("id", "reference", "text_label", "language", "text").
		From("translated_texts").
		Where(squirrel.Eq{"reference": snapshotID}).
		OrderBy("text_label ASC", "language ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build texts query: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		logger.Error().Err(err).Msg("Error querying translated texts")
		return nil, fmt.Errorf("error querying translated texts: %w", err)
	}
	defer rows.Close()

	texts := []*models.TranslatedText{}
	for rows.Next() {
		t := &models.TranslatedText{}
		if err := rows.Scan(&t.ID, &t.Reference, &t.TextLabel, &t.Language, &t.Text); err != nil {
			return nil, fmt.Errorf("error scanning translated text row: %w", err)
		}
		texts = append(texts, t)
	}
	return texts, rows.Err()
}

// CreateText inserts a translated text.
func (r *PedagogyRepository) CreateText(ctx context.Context, t *models.TranslatedText) (int64, error) {
	sql, args, err := r.sb.Insert("translated_texts").
		Columns("reference", "text_label", "language", "text").
		Values(t.Reference, t.TextLabel, t.Language, t.Text).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build create text query: %w", err)
	}

	var id int64
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		logger.Error().Err(err).Int64("reference", t.Reference).Msg("Error creating translated text")
		return 0, fmt.Errorf("error creating translated text: %w", err)
	}
	t.ID = id
	return id, nil
}

// UpdateText replaces the body of a translated text.
func (r *PedagogyRepository) UpdateText(ctx context.Context, t *models.TranslatedText) error {
	sql, args, err := r.sb.Update("translated_texts").
		Set("text", t.Text).
		Where(squirrel.Eq{"id": t.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update text query: %w", err)
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		logger.Error().Err(err).Int64("textID", t.ID).Msg("Error updating translated text")
		return fmt.Errorf("error updating translated text: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Materials retrieves the teaching materials of a snapshot.
func (r *PedagogyRepository) Materials(ctx context.Context, snapshotID int64) ([]*models.TeachingMaterial, error) {
	sql, args, err := r.sb.Select("id", "learning_unit_year_id", "title", "mandatory").
		From("teaching_materials").
		Where(squirrel.Eq{"learning_unit_year_id": snapshotID}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build materials query: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		logger.Error().Err(err).Msg("Error querying teaching materials")
		return nil, fmt.Errorf("error querying teaching materials: %w", err)
	}
	defer rows.Close()

	materials := []*models.TeachingMaterial{}
	for rows.Next() {
		m := &models.TeachingMaterial{}
		if err := rows.Scan(&m.ID, &m.LearningUnitYearID, &m.Title, &m.Mandatory); err != nil {
			return nil, fmt.Errorf("error scanning teaching material row: %w", err)
		}
		materials = append(materials, m)
	}
	return materials, rows.Err()
}

// CreateMaterial inserts a teaching material.
func (r *PedagogyRepository) CreateMaterial(ctx context.Context, m *models.TeachingMaterial) (int64, error) {
	sql, args, err := r.sb.Insert("teaching_materials").
		Columns("learning_unit_year_id", "title", "mandatory").
		Values(m.LearningUnitYearID, m.Title, m.Mandatory).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build create material query: %w", err)
	}

	var id int64
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		logger.Error().Err(err).Int64("snapshotID", m.LearningUnitYearID).Msg("Error creating teaching material")
		return 0, fmt.Errorf("error creating teaching material: %w", err)
	}
	m.ID = id
	return id, nil
}

// External retrieves the external record of a snapshot, or ErrNotFound when
// the snapshot is not external.
func (r *PedagogyRepository) External(ctx context.Context, snapshotID int64) (*models.ExternalLearningUnitYear, error) {
	sql, args, err := r.sb.Select("id", "learning_unit_year_id", "external_acronym", "external_credits", "url").
		From("external_learning_unit_years").
		Where(squirrel.Eq{"learning_unit_year_id": snapshotID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build external query: %w", err)
	}

	e := &models.ExternalLearningUnitYear{}
	err = r.db.QueryRow(ctx, sql, args...).
		Scan(&e.ID, &e.LearningUnitYearID, &e.ExternalAcronym, &e.ExternalCredits, &e.URL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		logger.Error().Err(err).Int64("snapshotID", snapshotID).Msg("Error scanning external row")
		return nil, fmt.Errorf("error getting external record: %w", err)
	}
	return e, nil
}

// CreateExternal inserts an external record.
func (r *PedagogyRepository) CreateExternal(ctx context.Context, e *models.ExternalLearningUnitYear) (int64, error) {
	sql, args, err := r.sb.Insert("external_learning_unit_years").
		Columns("learning_unit_year_id", "external_acronym", "external_credits", "url").
		Values(e.LearningUnitYearID, e.ExternalAcronym, e.ExternalCredits, e.URL).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build create external query: %w", err)
	}

	var id int64
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		logger.Error().Err(err).Int64("snapshotID", e.LearningUnitYearID).Msg("Error creating external record")
		return 0, fmt.Errorf("error creating external record: %w", err)
	}
	e.ID = id
	return id, nil
}
