package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osis-edu/osis/internal/app/models"
	"github.com/osis-edu/osis/internal/pkg/apperrors"
)

func TestCreateWithReport_OpenEndedReachesHorizon(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	snapshot, report, err := h.postponement.CreateWithReport(ctx, centralManager(), h.creationInput("LDROI1001", 2025, nil))
	require.NoError(t, err)
	assert.Equal(t, 2025, snapshot.AcademicYear)
	assert.Equal(t, []int{2026, 2027, 2028, 2029, 2030, 2031}, report.Created)

	snapshots, err := h.units.SnapshotsOf(ctx, snapshot.LearningUnitID)
	require.NoError(t, err)
	require.Len(t, snapshots, 7)

	// Every copy carries the source's components and entity links.
	last := snapshots[6]
	assert.Equal(t, 2031, last.AcademicYear)
	components, err := h.store.Components().BySnapshot(ctx, last.ID)
	require.NoError(t, err)
	require.Len(t, components, 1)
	assert.Equal(t, 30.0, components[0].VolTotalAnnual)

	entities, err := h.store.Containers().Entities(ctx, last.LearningContainerYearID)
	require.NoError(t, err)
	assert.Equal(t, h.entityID, entities[models.EntityRequirement])
}

func TestCreateWithReport_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Malformed acronym.
	input := h.creationInput("droit1001", 2025, nil)
	_, _, err := h.postponement.CreateWithReport(ctx, centralManager(), input)
	assert.ErrorIs(t, err, apperrors.ErrIntegrityFailure)

	// Year before the current one.
	_, _, err = h.postponement.CreateWithReport(ctx, centralManager(), h.creationInput("LDROI1001", 2024, nil))
	assert.ErrorIs(t, err, apperrors.ErrInvalidYear)

	// Year past the horizon.
	_, _, err = h.postponement.CreateWithReport(ctx, centralManager(), h.creationInput("LDROI1001", 2032, nil))
	assert.ErrorIs(t, err, apperrors.ErrInvalidYear)

	// Duplicate acronym in the same year.
	h.createUnit(t, "LDROI1001", 2025, intPtr(2025))
	_, _, err = h.postponement.CreateWithReport(ctx, centralManager(), h.creationInput("LDROI1001", 2025, nil))
	assert.ErrorIs(t, err, apperrors.ErrIntegrityFailure)
}

func TestChangeEndYear_Shorten(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snapshot := h.createUnit(t, "LDROI1001", 2025, nil)

	report, err := h.postponement.ChangeEndYear(ctx, centralManager(), snapshot.LearningUnitID, intPtr(2027))
	require.NoError(t, err)
	assert.Equal(t, []int{2031, 2030, 2029, 2028}, report.Deleted)

	snapshots, err := h.units.SnapshotsOf(ctx, snapshot.LearningUnitID)
	require.NoError(t, err)
	require.Len(t, snapshots, 3)
	assert.Equal(t, 2027, snapshots[2].AcademicYear)

	unit, err := h.store.LearningUnits().ByID(ctx, snapshot.LearningUnitID)
	require.NoError(t, err)
	require.NotNil(t, unit.EndYear)
	assert.Equal(t, 2027, *unit.EndYear)
}

func TestChangeEndYear_ExtendSkipsExistingYears(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snapshot := h.createUnit(t, "LDROI1001", 2025, intPtr(2026))

	// Pull the recorded end back below an existing snapshot year.
	require.NoError(t, h.store.LearningUnits().SetEndYear(ctx, snapshot.LearningUnitID, intPtr(2025)))

	report, err := h.postponement.ChangeEndYear(ctx, centralManager(), snapshot.LearningUnitID, intPtr(2027))
	require.NoError(t, err)
	assert.Equal(t, []int{2026}, report.Skipped)
	assert.Equal(t, []int{2027}, report.Created)
}

func TestChangeEndYear_Bounds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snapshot := h.createUnit(t, "LDROI1001", 2025, intPtr(2026))

	_, err := h.postponement.ChangeEndYear(ctx, centralManager(), snapshot.LearningUnitID, intPtr(2032))
	assert.ErrorIs(t, err, apperrors.ErrInvalidYear)

	_, err = h.postponement.ChangeEndYear(ctx, centralManager(), snapshot.LearningUnitID, intPtr(2024))
	assert.ErrorIs(t, err, apperrors.ErrInvalidYear)
}

func TestChangeEndYear_ShortenBlockedByUsage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snapshot := h.createUnit(t, "LDROI1001", 2025, nil)

	blocked, err := h.store.Snapshots().ByUnitAndYear(ctx, snapshot.LearningUnitID, 2029)
	require.NoError(t, err)
	require.NoError(t, h.store.Usage().AddEnrollment(ctx, blocked.ID, 42))

	_, err = h.postponement.ChangeEndYear(ctx, centralManager(), snapshot.LearningUnitID, intPtr(2027))
	assert.ErrorIs(t, err, apperrors.ErrIntegrityFailure)

	// The failed change rolled back entirely: nothing was deleted.
	snapshots, err := h.units.SnapshotsOf(ctx, snapshot.LearningUnitID)
	require.NoError(t, err)
	assert.Len(t, snapshots, 7)
}

func TestChangeEndYear_PartimBounds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	full := h.createUnit(t, "LDROI1001", 2025, intPtr(2027))
	partim := h.addPartim(t, full, "A")
	require.NoError(t, h.store.LearningUnits().SetEndYear(ctx, partim.LearningUnitID, intPtr(2025)))

	// A partim cannot outlive its full unit.
	_, err := h.postponement.ChangeEndYear(ctx, centralManager(), partim.LearningUnitID, intPtr(2029))
	assert.ErrorIs(t, err, apperrors.ErrIntegrityFailure)

	// Within the full unit's range it extends normally.
	report, err := h.postponement.ChangeEndYear(ctx, centralManager(), partim.LearningUnitID, intPtr(2027))
	require.NoError(t, err)
	assert.Equal(t, []int{2026, 2027}, report.Created)

	// And the full unit cannot stop before one of its partims.
	_, err = h.postponement.ChangeEndYear(ctx, centralManager(), full.LearningUnitID, intPtr(2026))
	assert.ErrorIs(t, err, apperrors.ErrIntegrityFailure)
}

func TestUpdateWithReport_PropagatesThroughIdenticalYears(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snapshot := h.createUnit(t, "LDROI1001", 2025, intPtr(2028))

	report, err := h.postponement.UpdateWithReport(ctx, centralManager(), snapshot.ID, &models.SnapshotDelta{
		SpecificTitleFr: strPtr("Nouvelle matière"),
	}, snapshot.Changed, false)
	require.NoError(t, err)
	assert.Equal(t, []int{2025, 2026, 2027, 2028}, report.AppliedYears)

	for year := 2025; year <= 2028; year++ {
		s, err := h.store.Snapshots().ByUnitAndYear(ctx, snapshot.LearningUnitID, year)
		require.NoError(t, err)
		assert.Equal(t, "Nouvelle matière", s.SpecificTitleFr, "year %d", year)
	}
}

func TestUpdateWithReport_StopsAtDivergence(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snapshot := h.createUnit(t, "LDROI1001", 2025, intPtr(2028))

	// 2027 diverged: its credits differ from the preceding years.
	diverged, err := h.store.Snapshots().ByUnitAndYear(ctx, snapshot.LearningUnitID, 2027)
	require.NoError(t, err)
	diverged.Credits = 9
	require.NoError(t, h.store.Snapshots().Update(ctx, diverged, diverged.Changed))

	report, err := h.postponement.UpdateWithReport(ctx, centralManager(), snapshot.ID, &models.SnapshotDelta{
		SpecificTitleFr: strPtr("Nouvelle matière"),
	}, snapshot.Changed, false)

	var conflict *apperrors.ConsistencyError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 2026, conflict.LastApplied)
	require.Len(t, conflict.Diffs, 1)
	assert.Equal(t, "credits", conflict.Diffs[0].Field)
	assert.Equal(t, 2027, conflict.Diffs[0].Year)

	// The years before the stop stay committed.
	require.NotNil(t, report)
	assert.Equal(t, []int{2025, 2026}, report.AppliedYears)
	for year := 2025; year <= 2026; year++ {
		s, err := h.store.Snapshots().ByUnitAndYear(ctx, snapshot.LearningUnitID, year)
		require.NoError(t, err)
		assert.Equal(t, "Nouvelle matière", s.SpecificTitleFr, "year %d", year)
	}

	// The divergent year and its successor were left alone.
	s, err := h.store.Snapshots().ByUnitAndYear(ctx, snapshot.LearningUnitID, 2027)
	require.NoError(t, err)
	assert.Empty(t, s.SpecificTitleFr)
}

func TestUpdateWithReport_OverrideIgnoresDivergence(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snapshot := h.createUnit(t, "LDROI1001", 2025, intPtr(2028))

	diverged, err := h.store.Snapshots().ByUnitAndYear(ctx, snapshot.LearningUnitID, 2027)
	require.NoError(t, err)
	diverged.Credits = 9
	require.NoError(t, h.store.Snapshots().Update(ctx, diverged, diverged.Changed))

	report, err := h.postponement.UpdateWithReport(ctx, centralManager(), snapshot.ID, &models.SnapshotDelta{
		SpecificTitleFr: strPtr("Nouvelle matière"),
	}, snapshot.Changed, true)
	require.NoError(t, err)
	assert.Equal(t, []int{2025, 2026, 2027, 2028}, report.AppliedYears)

	// The override propagates the delta but leaves the divergent field alone.
	s, err := h.store.Snapshots().ByUnitAndYear(ctx, snapshot.LearningUnitID, 2027)
	require.NoError(t, err)
	assert.Equal(t, "Nouvelle matière", s.SpecificTitleFr)
	assert.Equal(t, 9.0, s.Credits)
}

func TestDuplicateSnapshot_ClearsYearBoundFields(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snapshot := h.createUnit(t, "LDROI1001", 2025, intPtr(2025))

	procedure := "INTERNAL_TEAM"
	source, err := h.store.Snapshots().ByID(ctx, snapshot.ID)
	require.NoError(t, err)
	source.AttributionProcedure = &procedure
	require.NoError(t, h.store.Snapshots().Update(ctx, source, source.Changed))

	_, err = h.postponement.ChangeEndYear(ctx, centralManager(), snapshot.LearningUnitID, intPtr(2026))
	require.NoError(t, err)

	copied, err := h.store.Snapshots().ByUnitAndYear(ctx, snapshot.LearningUnitID, 2026)
	require.NoError(t, err)
	assert.Nil(t, copied.AttributionProcedure)
}
