package seed

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	appModels "github.com/osis-edu/osis/internal/app/models"
	appRepos "github.com/osis-edu/osis/internal/app/repositories"
	"github.com/osis-edu/osis/internal/config"
)

// CreateDefaultData creates the academic-year calendar and a minimal entity
// tree if they don't exist.
func CreateDefaultData(ctx context.Context, dbPool *pgxpool.Pool, cfg *config.Config, lgr zerolog.Logger) error {
	store := appRepos.NewRepositories(dbPool)

	lgr.Info().
		Int("from", cfg.Academic.SeedFromYear).
		Int("to", cfg.Academic.SeedToYear).
		Msg("Checking/Creating default data (academic years, entities)...")
	var finalErr error // To collect potential errors without stopping the process

	// --- Academic years --- //
	// Each academic year runs from September 15th to September 14th of the
	// following calendar year.
	created := false
	for year := cfg.Academic.SeedFromYear; year <= cfg.Academic.SeedToYear; year++ {
		y := &appModels.AcademicYear{
			Year:      year,
			StartDate: time.Date(year, time.September, 15, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(year+1, time.September, 14, 0, 0, 0, 0, time.UTC),
		}
		_, err := store.AcademicYears().Create(ctx, y)
		if err != nil && !errors.Is(err, appRepos.ErrAcademicYearExists) {
			lgr.Error().Err(err).Int("year", year).Msg("Error creating academic year")
			finalErr = errors.Join(finalErr, err)
			continue
		}
		if err == nil {
			created = true
		}
	}

	// --- Entity tree --- //
	// Only seeded on a fresh calendar so reruns stay idempotent.
	if created {
		start := time.Date(cfg.Academic.SeedFromYear, time.September, 15, 0, 0, 0, 0, time.UTC)

		sectorID, err := createEntityWithVersion(ctx, store, nil, "SSH", "Secteur des sciences humaines", appModels.EntitySector, start)
		if err != nil {
			lgr.Error().Err(err).Msg("Error creating sector entity")
			finalErr = errors.Join(finalErr, err)
		}

		if sectorID > 0 {
			faculties := []struct {
				acronym string
				title   string
			}{
				{"DRT", "Faculté de droit et de criminologie"},
				{"LSM", "Louvain School of Management"},
				{"EPL", "École polytechnique"},
			}
			for _, f := range faculties {
				if _, err := createEntityWithVersion(ctx, store, &sectorID, f.acronym, f.title, appModels.EntityFaculty, start); err != nil {
					lgr.Error().Err(err).Str("acronym", f.acronym).Msg("Error creating faculty entity")
					finalErr = errors.Join(finalErr, err)
				}
			}
		}
	}

	if finalErr != nil {
		lgr.Warn().Err(finalErr).Msg("Default data creation finished with errors")
	} else {
		lgr.Info().Msg("Default data check/creation finished.")
	}
	return finalErr
}

func createEntityWithVersion(ctx context.Context, store appRepos.Store, parentID *int64, acronym, title string, entityType appModels.EntityType, start time.Time) (int64, error) {
	entityID, err := store.Entities().CreateEntity(ctx, &appModels.Entity{})
	if err != nil {
		return 0, err
	}
	_, err = store.Entities().CreateVersion(ctx, &appModels.EntityVersion{
		EntityID:       entityID,
		ParentEntityID: parentID,
		Acronym:        acronym,
		Title:          title,
		EntityType:     entityType,
		StartDate:      start,
	})
	if err != nil {
		return 0, err
	}
	return entityID, nil
}
