package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osis-edu/osis/internal/app/models"
	"github.com/osis-edu/osis/internal/app/repositories/inmem"
)

func testYearData(year int) *YearData {
	q := models.QuadrimesterQ1and2
	return &YearData{
		Snapshot: &models.LearningUnitYear{
			AcademicYear:    year,
			Acronym:         "LDROI1001",
			SpecificTitleFr: "Introduction",
			Subtype:         models.SubtypeFull,
			Credits:         5,
			Status:          true,
			Language:        "FR",
			Campus:          "Louvain-la-Neuve",
			Periodicity:     models.PeriodicityAnnual,
			Quadrimester:    &q,
		},
		Container: &models.LearningContainerYear{
			Acronym:       "LDROI1001",
			ContainerType: models.ContainerCourse,
			CommonTitleFr: "Droit des obligations",
		},
		Entities: map[models.EntityLink]int64{models.EntityRequirement: 1},
		Components: []*models.LearningComponentYear{
			{
				Type:                   models.ComponentLecturing,
				VolQ1:                  15,
				VolQ2:                  15,
				VolTotalAnnual:         30,
				PlannedClasses:         1,
				RepartitionRequirement: 30,
			},
		},
	}
}

func TestCompareYears_Identical(t *testing.T) {
	svc := NewConsistencyService(inmem.NewStore())

	diffs := svc.CompareYears(testYearData(2025), testYearData(2026))
	assert.Empty(t, diffs)
}

func TestCompareYears_TracksChangedFields(t *testing.T) {
	svc := NewConsistencyService(inmem.NewStore())

	prev := testYearData(2025)
	next := testYearData(2026)
	next.Snapshot.Credits = 6
	next.Container.CommonTitleFr = "Droit des contrats"
	next.Entities[models.EntityRequirement] = 2

	diffs := svc.CompareYears(prev, next)
	require.Len(t, diffs, 3)
	fields := []string{}
	for _, d := range diffs {
		fields = append(fields, d.Field)
		assert.Equal(t, 2026, d.Year)
	}
	assert.ElementsMatch(t, []string{"credits", "common_title_fr", string(models.EntityRequirement)}, fields)
}

func TestCompareYears_MissingComponent(t *testing.T) {
	svc := NewConsistencyService(inmem.NewStore())

	prev := testYearData(2025)
	prev.Components = nil
	next := testYearData(2026)

	diffs := svc.CompareYears(prev, next)
	require.Len(t, diffs, 1)
	assert.Equal(t, "component_LECTURING", diffs[0].Field)
	assert.Equal(t, "present", diffs[0].NextValue)
}

// A broken annual total yields a single warning: the repartition rule is
// checked against the effective Q1+Q2 total, not the broken annual value.
func TestSnapshotWarnings_BrokenAnnualTotal(t *testing.T) {
	svc := NewConsistencyService(inmem.NewStore())

	data := testYearData(2025)
	data.Components = []*models.LearningComponentYear{
		{
			Type:                   models.ComponentLecturing,
			VolQ1:                  10,
			VolQ2:                  10,
			VolTotalAnnual:         30,
			PlannedClasses:         1,
			RepartitionRequirement: 20,
		},
	}

	warnings := svc.SnapshotWarnings(data, nil, nil)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "annual total must equal Q1+Q2")
}

func TestSnapshotWarnings_PlannedClasses(t *testing.T) {
	svc := NewConsistencyService(inmem.NewStore())

	data := testYearData(2025)
	data.Components[0].PlannedClasses = 0
	data.Components[0].RepartitionRequirement = 0

	warnings := svc.SnapshotWarnings(data, nil, nil)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "planned classes cannot be zero")
}

func TestSnapshotWarnings_QuadrimesterCoherence(t *testing.T) {
	svc := NewConsistencyService(inmem.NewStore())

	// Q1 declared but volume present in both quadrimesters.
	data := testYearData(2025)
	q := models.QuadrimesterQ1
	data.Snapshot.Quadrimester = &q

	warnings := svc.SnapshotWarnings(data, nil, nil)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "inconsistent with quadrimester Q1")

	// Q1or2 accepts exactly one quadrimester with volume.
	data = testYearData(2025)
	q = models.QuadrimesterQ1or2
	data.Snapshot.Quadrimester = &q
	data.Components[0].VolQ2 = 0
	data.Components[0].VolTotalAnnual = 15
	data.Components[0].RepartitionRequirement = 15

	warnings = svc.SnapshotWarnings(data, nil, nil)
	assert.Empty(t, warnings)
}

func TestSnapshotWarnings_NonIntegerCredits(t *testing.T) {
	svc := NewConsistencyService(inmem.NewStore())

	data := testYearData(2025)
	data.Snapshot.Credits = 5.5

	warnings := svc.SnapshotWarnings(data, nil, nil)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "not integer")
}

func TestSnapshotWarnings_PartimExceedsFull(t *testing.T) {
	svc := NewConsistencyService(inmem.NewStore())

	full := testYearData(2025)
	partim := testYearData(2025)
	partim.Snapshot.Subtype = models.SubtypePartim
	partim.Snapshot.Acronym = "LDROI1001A"
	partim.Components[0].VolQ1 = 20
	partim.Components[0].VolTotalAnnual = 35
	partim.Components[0].RepartitionRequirement = 35

	warnings := svc.SnapshotWarnings(partim, full, nil)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "exceeds the volumes of the full unit")
}

func TestSnapshotWarnings_PartimSumExceedsFull(t *testing.T) {
	svc := NewConsistencyService(inmem.NewStore())

	full := testYearData(2025)
	partimA := testYearData(2025)
	partimA.Snapshot.Subtype = models.SubtypePartim
	partimB := testYearData(2025)
	partimB.Snapshot.Subtype = models.SubtypePartim

	// Each partim alone fits, but together they exceed the full volumes.
	warnings := svc.SnapshotWarnings(full, nil, []*YearData{partimA, partimB})
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "sum of partim volumes exceeds the full unit")
}

func TestSnapshotWarnings_Periodicity(t *testing.T) {
	svc := NewConsistencyService(inmem.NewStore())

	full := testYearData(2025)
	full.Snapshot.Periodicity = models.PeriodicityBiennialOdd
	partim := testYearData(2025)
	partim.Snapshot.Subtype = models.SubtypePartim
	partim.Snapshot.Periodicity = models.PeriodicityBiennialEven

	warnings := svc.SnapshotWarnings(partim, full, nil)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "incompatible")

	// An annual partim fits any biennial full.
	partim.Snapshot.Periodicity = models.PeriodicityAnnual
	assert.Empty(t, svc.SnapshotWarnings(partim, full, nil))

	// An annual full accepts any partim.
	full.Snapshot.Periodicity = models.PeriodicityAnnual
	partim.Snapshot.Periodicity = models.PeriodicityBiennialEven
	assert.Empty(t, svc.SnapshotWarnings(partim, full, nil))
}
