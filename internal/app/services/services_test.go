package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/osis-edu/osis/internal/app/models"
	"github.com/osis-edu/osis/internal/app/repositories"
	"github.com/osis-edu/osis/internal/app/repositories/inmem"
	"github.com/osis-edu/osis/internal/pkg/notify"
)

// Tests run against a fixed clock inside the 2025-26 academic year.
var testDate = time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC)

func testNow() time.Time { return testDate }

type allowAll struct{}

func (allowAll) Check(_ context.Context, perm string, _ *models.Person, _ Target) (Decision, error) {
	return Decision{Perm: perm, Allowed: true}, nil
}

// denyPerm refuses one named permission and allows everything else.
type denyPerm struct{ perm string }

func (d denyPerm) Check(_ context.Context, perm string, _ *models.Person, _ Target) (Decision, error) {
	return Decision{Perm: perm, Allowed: perm != d.perm}, nil
}

type recordingSink struct {
	reports []notify.ProposalReport
}

func (s *recordingSink) SendProposalReport(report notify.ProposalReport) error {
	s.reports = append(s.reports, report)
	return nil
}

type harness struct {
	store        *inmem.Store
	years        *AcademicYearService
	entities     *EntityService
	consistency  *ConsistencyService
	units        *LearningUnitService
	postponement *PostponementService
	proposals    *ProposalService
	sink         *recordingSink
	entityID     int64
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithChecker(t, allowAll{})
}

func newHarnessWithChecker(t *testing.T, checker PermissionChecker) *harness {
	t.Helper()
	ctx := context.Background()
	store := inmem.NewStore()

	for year := 2023; year <= 2031; year++ {
		_, err := store.AcademicYears().Create(ctx, &models.AcademicYear{
			Year:      year,
			StartDate: time.Date(year, time.September, 15, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(year+1, time.September, 14, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}

	entityID, err := store.Entities().CreateEntity(ctx, &models.Entity{})
	require.NoError(t, err)
	_, err = store.Entities().CreateVersion(ctx, &models.EntityVersion{
		EntityID:   entityID,
		Acronym:    "DRT",
		Title:      "Faculté de droit",
		EntityType: models.EntityFaculty,
		StartDate:  time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	years := NewAcademicYearService(store, 6, testNow)
	consistency := NewConsistencyService(store)
	postponement := NewPostponementService(store, years, consistency, checker)
	sink := &recordingSink{}

	return &harness{
		store:        store,
		years:        years,
		entities:     NewEntityService(store),
		consistency:  consistency,
		units:        NewLearningUnitService(store, years, consistency, checker),
		postponement: postponement,
		proposals:    NewProposalService(store, years, postponement, checker, sink),
		sink:         sink,
		entityID:     entityID,
	}
}

func centralManager() *models.Person {
	return &models.Person{
		ID:        1,
		FirstName: "Anne",
		LastName:  "Verstraete",
		Email:     "anne.verstraete@example.org",
		Roles:     []models.RoleType{models.RoleCentralManager},
	}
}

func facultyManager(entityIDs ...int64) *models.Person {
	return &models.Person{
		ID:              2,
		FirstName:       "Marc",
		LastName:        "Lefebvre",
		Email:           "marc.lefebvre@example.org",
		Roles:           []models.RoleType{models.RoleFacultyManager},
		LinkedEntityIDs: entityIDs,
	}
}

// creationInput builds a valid payload with one coherent lecturing component.
func (h *harness) creationInput(acronym string, year int, endYear *int) *CreateSnapshotInput {
	vol := func(f float64) *float64 { return &f }
	classes := 1
	return &CreateSnapshotInput{
		AcademicYear:  year,
		Acronym:       acronym,
		CommonTitleFr: "Droit des obligations",
		ContainerType: models.ContainerCourse,
		Subtype:       models.SubtypeFull,
		Credits:       5,
		Status:        true,
		Language:      "FR",
		Campus:        "Louvain-la-Neuve",
		Periodicity:   models.PeriodicityAnnual,
		EndYear:       endYear,
		Entities: map[models.EntityLink]int64{
			models.EntityRequirement: h.entityID,
			models.EntityAllocation:  h.entityID,
		},
		Volumes: map[models.ComponentType]*models.VolumeDelta{
			models.ComponentLecturing: {
				VolQ1:                  vol(15),
				VolQ2:                  vol(15),
				VolTotalAnnual:         vol(30),
				PlannedClasses:         &classes,
				RepartitionRequirement: vol(30),
			},
		},
	}
}

// createUnit creates a unit through the postponement flow and returns its
// first snapshot.
func (h *harness) createUnit(t *testing.T, acronym string, year int, endYear *int) *models.LearningUnitYear {
	t.Helper()
	snapshot, _, err := h.postponement.CreateWithReport(context.Background(), centralManager(), h.creationInput(acronym, year, endYear))
	require.NoError(t, err)
	return snapshot
}

// addPartim attaches a partim snapshot to the full snapshot's container year,
// under its own open-ended unit.
func (h *harness) addPartim(t *testing.T, full *models.LearningUnitYear, letter string) *models.LearningUnitYear {
	t.Helper()
	ctx := context.Background()
	var snapshot *models.LearningUnitYear
	err := h.store.Atomic(ctx, func(tx repositories.Store) error {
		unitID, err := tx.LearningUnits().Create(ctx, &models.LearningUnit{StartYear: full.AcademicYear})
		if err != nil {
			return err
		}
		snapshot = &models.LearningUnitYear{
			LearningUnitID:          unitID,
			LearningContainerYearID: full.LearningContainerYearID,
			AcademicYear:            full.AcademicYear,
			Acronym:                 full.Acronym + letter,
			Subtype:                 models.SubtypePartim,
			Credits:                 2,
			Status:                  true,
			Language:                "FR",
			Periodicity:             models.PeriodicityAnnual,
		}
		_, err = tx.Snapshots().Create(ctx, snapshot)
		return err
	})
	require.NoError(t, err)
	return snapshot
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }
