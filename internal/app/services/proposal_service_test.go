package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osis-edu/osis/internal/app/models"
	"github.com/osis-edu/osis/internal/app/repositories"
	"github.com/osis-edu/osis/internal/pkg/apperrors"
)

func TestProposeCreation_SingleYearSnapshot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	proposal, err := h.proposals.ProposeCreation(ctx, centralManager(), h.creationInput("LDROI1001", 2026, nil), h.entityID, 12)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalCreation, proposal.Type)
	assert.Equal(t, models.StateCentral, proposal.State)
	assert.Equal(t, int64(1), proposal.AuthorID)
	assert.Equal(t, 12, proposal.FolderID)

	// Unlike a direct creation, the unit stays limited to its first year
	// until the proposal is consolidated.
	loaded, err := h.proposals.ByID(ctx, proposal.ID)
	require.NoError(t, err)
	snapshots, err := h.units.SnapshotsOf(ctx, loaded.LearningUnitYear.LearningUnitID)
	require.NoError(t, err)
	assert.Len(t, snapshots, 1)
}

func TestProposeCreation_StateFollowsAuthorRole(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	proposal, err := h.proposals.ProposeCreation(ctx, facultyManager(h.entityID), h.creationInput("LDROI1001", 2026, nil), h.entityID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StateFaculty, proposal.State)
}

func TestProposeModification_CapturesInitialData(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snapshot := h.createUnit(t, "LDROI1001", 2025, intPtr(2026))

	proposal, err := h.proposals.ProposeModification(ctx, centralManager(), snapshot.ID, h.entityID, 3)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalModification, proposal.Type)
	assert.Equal(t, "LDROI1001", proposal.InitialData.Snapshot.Acronym)
	assert.Equal(t, 5.0, proposal.InitialData.Snapshot.Credits)
	require.NotNil(t, proposal.InitialData.LearningUnit.EndYear)
	assert.Equal(t, 2026, *proposal.InitialData.LearningUnit.EndYear)
	require.Len(t, proposal.InitialData.Components, 1)
	assert.Equal(t, 30.0, proposal.InitialData.Components[0].VolTotalAnnual)

	// One proposal per snapshot.
	_, err = h.proposals.ProposeModification(ctx, centralManager(), snapshot.ID, h.entityID, 3)
	assert.ErrorIs(t, err, apperrors.ErrIntegrityFailure)
}

func TestProposeSuppression_StoresEndYearWithoutDeleting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snapshot := h.createUnit(t, "LDROI1001", 2025, nil)

	proposal, err := h.proposals.ProposeSuppression(ctx, centralManager(), snapshot.ID, intPtr(2027), h.entityID, 5)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalSuppression, proposal.Type)

	unit, err := h.store.LearningUnits().ByID(ctx, snapshot.LearningUnitID)
	require.NoError(t, err)
	require.NotNil(t, unit.EndYear)
	assert.Equal(t, 2027, *unit.EndYear)

	// The future snapshots survive until consolidation.
	snapshots, err := h.units.SnapshotsOf(ctx, snapshot.LearningUnitID)
	require.NoError(t, err)
	assert.Len(t, snapshots, 7)
}

func TestProposeSuppression_EndYearBeforeSnapshot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snapshot := h.createUnit(t, "LDROI1001", 2025, nil)

	later, err := h.store.Snapshots().ByUnitAndYear(ctx, snapshot.LearningUnitID, 2027)
	require.NoError(t, err)
	_, err = h.proposals.ProposeSuppression(ctx, centralManager(), later.ID, intPtr(2026), h.entityID, 5)
	assert.ErrorIs(t, err, apperrors.ErrInvalidYear)
}

func TestEditSnapshot_RederivesProposalType(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snapshot := h.createUnit(t, "LDROI1001", 2025, intPtr(2025))
	created, err := h.proposals.ProposeModification(ctx, centralManager(), snapshot.ID, h.entityID, 3)
	require.NoError(t, err)

	// A rename alone turns the proposal into a transformation.
	proposal, err := h.proposals.ByID(ctx, created.ID)
	require.NoError(t, err)
	err = h.proposals.EditSnapshot(ctx, centralManager(), created.ID, &models.SnapshotDelta{
		Acronym: strPtr("LDROI1201"),
	}, proposal.LearningUnitYear.Changed)
	require.NoError(t, err)
	proposal, err = h.proposals.ByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalTransformation, proposal.Type)
	assert.Equal(t, "LDROI1201", proposal.LearningUnitYear.Acronym)

	// Adding a credits change on top combines both types.
	err = h.proposals.EditSnapshot(ctx, centralManager(), created.ID, &models.SnapshotDelta{
		Credits: floatPtr(7),
	}, proposal.LearningUnitYear.Changed)
	require.NoError(t, err)
	proposal, err = h.proposals.ByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalTransformationAndModification, proposal.Type)

	// Renaming back leaves a plain modification.
	err = h.proposals.EditSnapshot(ctx, centralManager(), created.ID, &models.SnapshotDelta{
		Acronym: strPtr("LDROI1001"),
	}, proposal.LearningUnitYear.Changed)
	require.NoError(t, err)
	proposal, err = h.proposals.ByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalModification, proposal.Type)

	// A rename combined with a container title change also counts as both:
	// the shared container fields belong to the captured state too.
	err = h.proposals.EditSnapshot(ctx, centralManager(), created.ID, &models.SnapshotDelta{
		Acronym:       strPtr("LDROI1201"),
		Credits:       floatPtr(5),
		CommonTitleFr: strPtr("Droit des contrats"),
	}, proposal.LearningUnitYear.Changed)
	require.NoError(t, err)
	proposal, err = h.proposals.ByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalTransformationAndModification, proposal.Type)
}

func TestEditSnapshot_CreationKeepsItsType(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created, err := h.proposals.ProposeCreation(ctx, centralManager(), h.creationInput("LDROI1001", 2026, nil), h.entityID, 1)
	require.NoError(t, err)

	proposal, err := h.proposals.ByID(ctx, created.ID)
	require.NoError(t, err)
	err = h.proposals.EditSnapshot(ctx, centralManager(), created.ID, &models.SnapshotDelta{
		Acronym: strPtr("LDROI1201"),
		Credits: floatPtr(8),
	}, proposal.LearningUnitYear.Changed)
	require.NoError(t, err)

	proposal, err = h.proposals.ByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalCreation, proposal.Type)
}

func TestWorkflowTransitions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snapshot := h.createUnit(t, "LDROI1001", 2025, intPtr(2025))
	created, err := h.proposals.ProposeModification(ctx, facultyManager(h.entityID), snapshot.ID, h.entityID, 3)
	require.NoError(t, err)

	// A faculty proposal cannot be accepted before reaching the central state.
	err = h.proposals.Accept(ctx, centralManager(), created.ID)
	assert.ErrorIs(t, err, apperrors.ErrIntegrityFailure)

	require.NoError(t, h.proposals.SubmitToCentral(ctx, facultyManager(h.entityID), created.ID))
	proposal, err := h.proposals.ByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateCentral, proposal.State)

	// A central proposal cannot be submitted again.
	err = h.proposals.SubmitToCentral(ctx, centralManager(), created.ID)
	assert.ErrorIs(t, err, apperrors.ErrIntegrityFailure)

	require.NoError(t, h.proposals.Accept(ctx, centralManager(), created.ID))
	proposal, err = h.proposals.ByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateAccepted, proposal.State)

	// Accepted proposals are out of the workflow and cannot be edited.
	err = h.proposals.EditSnapshot(ctx, centralManager(), created.ID, &models.SnapshotDelta{
		Credits: floatPtr(7),
	}, proposal.LearningUnitYear.Changed)
	assert.ErrorIs(t, err, apperrors.ErrIntegrityFailure)
}

func TestSuspendAndResume(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snapshot := h.createUnit(t, "LDROI1001", 2025, intPtr(2025))
	created, err := h.proposals.ProposeModification(ctx, centralManager(), snapshot.ID, h.entityID, 3)
	require.NoError(t, err)

	require.NoError(t, h.proposals.Suspend(ctx, centralManager(), created.ID))
	proposal, err := h.proposals.ByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateSuspended, proposal.State)
	require.NotNil(t, proposal.PreviousState)
	assert.Equal(t, models.StateCentral, *proposal.PreviousState)

	// Suspending twice is rejected.
	err = h.proposals.Suspend(ctx, centralManager(), created.ID)
	assert.ErrorIs(t, err, apperrors.ErrIntegrityFailure)

	require.NoError(t, h.proposals.Resume(ctx, centralManager(), created.ID))
	proposal, err = h.proposals.ByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateCentral, proposal.State)
	assert.Nil(t, proposal.PreviousState)

	// Resuming a proposal that is not suspended is rejected.
	err = h.proposals.Resume(ctx, centralManager(), created.ID)
	assert.ErrorIs(t, err, apperrors.ErrIntegrityFailure)
}

func TestForceState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snapshot := h.createUnit(t, "LDROI1001", 2025, intPtr(2025))
	created, err := h.proposals.ProposeModification(ctx, facultyManager(h.entityID), snapshot.ID, h.entityID, 3)
	require.NoError(t, err)

	require.NoError(t, h.proposals.ForceState(ctx, centralManager(), created.ID, models.StateAccepted))
	proposal, err := h.proposals.ByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateAccepted, proposal.State)
}

func TestCancel_ModificationRestoresInitialData(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snapshot := h.createUnit(t, "LDROI1001", 2025, intPtr(2026))
	created, err := h.proposals.ProposeModification(ctx, centralManager(), snapshot.ID, h.entityID, 3)
	require.NoError(t, err)

	proposal, err := h.proposals.ByID(ctx, created.ID)
	require.NoError(t, err)
	err = h.proposals.EditSnapshot(ctx, centralManager(), created.ID, &models.SnapshotDelta{
		Credits:       floatPtr(9),
		CommonTitleFr: strPtr("Autre titre"),
	}, proposal.LearningUnitYear.Changed)
	require.NoError(t, err)

	require.NoError(t, h.proposals.Cancel(ctx, centralManager(), created.ID))

	restored, err := h.store.Snapshots().ByID(ctx, snapshot.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.0, restored.Credits)
	container, err := h.store.Containers().ByID(ctx, restored.LearningContainerYearID)
	require.NoError(t, err)
	assert.Equal(t, "Droit des obligations", container.CommonTitleFr)

	_, err = h.proposals.ByID(ctx, created.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCancel_SuppressionRestoresEndYear(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snapshot := h.createUnit(t, "LDROI1001", 2025, nil)
	created, err := h.proposals.ProposeSuppression(ctx, centralManager(), snapshot.ID, intPtr(2027), h.entityID, 5)
	require.NoError(t, err)

	require.NoError(t, h.proposals.Cancel(ctx, centralManager(), created.ID))

	unit, err := h.store.LearningUnits().ByID(ctx, snapshot.LearningUnitID)
	require.NoError(t, err)
	assert.Nil(t, unit.EndYear)
}

func TestCancel_CreationDeletesTheUnit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created, err := h.proposals.ProposeCreation(ctx, centralManager(), h.creationInput("LDROI1001", 2026, nil), h.entityID, 1)
	require.NoError(t, err)
	proposal, err := h.proposals.ByID(ctx, created.ID)
	require.NoError(t, err)
	unitID := proposal.LearningUnitYear.LearningUnitID

	require.NoError(t, h.proposals.Cancel(ctx, centralManager(), created.ID))

	_, err = h.store.LearningUnits().ByID(ctx, unitID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	_, err = h.store.Snapshots().ByAcronymAndYear(ctx, "LDROI1001", 2026)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestCancel_CreationBlockedByUsage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created, err := h.proposals.ProposeCreation(ctx, centralManager(), h.creationInput("LDROI1001", 2026, nil), h.entityID, 1)
	require.NoError(t, err)
	proposal, err := h.proposals.ByID(ctx, created.ID)
	require.NoError(t, err)
	require.NoError(t, h.store.Usage().AddEnrollment(ctx, proposal.LearningUnitYearID, 42))

	err = h.proposals.Cancel(ctx, centralManager(), created.ID)
	assert.ErrorIs(t, err, apperrors.ErrIntegrityFailure)

	// Both the proposal and its snapshot survive the refused cancellation.
	_, err = h.proposals.ByID(ctx, created.ID)
	require.NoError(t, err)
	_, err = h.store.Snapshots().ByAcronymAndYear(ctx, "LDROI1001", 2026)
	require.NoError(t, err)
}

func TestCancel_AcceptedProposalRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snapshot := h.createUnit(t, "LDROI1001", 2025, intPtr(2025))
	created, err := h.proposals.ProposeModification(ctx, centralManager(), snapshot.ID, h.entityID, 3)
	require.NoError(t, err)
	require.NoError(t, h.proposals.Accept(ctx, centralManager(), created.ID))

	err = h.proposals.Cancel(ctx, centralManager(), created.ID)
	assert.ErrorIs(t, err, apperrors.ErrIntegrityFailure)
}

func TestConsolidate_AcceptedCreationExtendsToHorizon(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created, err := h.proposals.ProposeCreation(ctx, centralManager(), h.creationInput("LDROI1001", 2025, nil), h.entityID, 1)
	require.NoError(t, err)
	proposal, err := h.proposals.ByID(ctx, created.ID)
	require.NoError(t, err)
	unitID := proposal.LearningUnitYear.LearningUnitID

	require.NoError(t, h.proposals.Accept(ctx, centralManager(), created.ID))
	require.NoError(t, h.proposals.Consolidate(ctx, centralManager(), created.ID))

	snapshots, err := h.units.SnapshotsOf(ctx, unitID)
	require.NoError(t, err)
	require.Len(t, snapshots, 7)
	assert.Equal(t, 2025, snapshots[0].AcademicYear)
	assert.Equal(t, 2031, snapshots[6].AcademicYear)

	_, err = h.proposals.ByID(ctx, created.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestConsolidate_AcceptedCreationStopsAtEndYear(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created, err := h.proposals.ProposeCreation(ctx, centralManager(), h.creationInput("LDROI1001", 2025, intPtr(2027)), h.entityID, 1)
	require.NoError(t, err)
	proposal, err := h.proposals.ByID(ctx, created.ID)
	require.NoError(t, err)

	require.NoError(t, h.proposals.Accept(ctx, centralManager(), created.ID))
	require.NoError(t, h.proposals.Consolidate(ctx, centralManager(), created.ID))

	snapshots, err := h.units.SnapshotsOf(ctx, proposal.LearningUnitYear.LearningUnitID)
	require.NoError(t, err)
	assert.Len(t, snapshots, 3)
}

func TestConsolidate_AcceptedSuppressionDeletesPastEndYear(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snapshot := h.createUnit(t, "LDROI1001", 2025, nil)
	created, err := h.proposals.ProposeSuppression(ctx, centralManager(), snapshot.ID, intPtr(2027), h.entityID, 5)
	require.NoError(t, err)

	require.NoError(t, h.proposals.Accept(ctx, centralManager(), created.ID))
	require.NoError(t, h.proposals.Consolidate(ctx, centralManager(), created.ID))

	snapshots, err := h.units.SnapshotsOf(ctx, snapshot.LearningUnitID)
	require.NoError(t, err)
	require.Len(t, snapshots, 3)
	assert.Equal(t, 2027, snapshots[2].AcademicYear)
}

func TestConsolidate_AcceptedModificationPropagates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snapshot := h.createUnit(t, "LDROI1001", 2025, intPtr(2028))
	created, err := h.proposals.ProposeModification(ctx, centralManager(), snapshot.ID, h.entityID, 3)
	require.NoError(t, err)

	proposal, err := h.proposals.ByID(ctx, created.ID)
	require.NoError(t, err)
	err = h.proposals.EditSnapshot(ctx, centralManager(), created.ID, &models.SnapshotDelta{
		Credits: floatPtr(7),
	}, proposal.LearningUnitYear.Changed)
	require.NoError(t, err)

	require.NoError(t, h.proposals.Accept(ctx, centralManager(), created.ID))
	require.NoError(t, h.proposals.Consolidate(ctx, centralManager(), created.ID))

	for year := 2025; year <= 2028; year++ {
		s, err := h.store.Snapshots().ByUnitAndYear(ctx, snapshot.LearningUnitID, year)
		require.NoError(t, err)
		assert.Equal(t, 7.0, s.Credits, "year %d", year)
	}
}

func TestConsolidate_RefusedModificationRollsBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snapshot := h.createUnit(t, "LDROI1001", 2025, intPtr(2025))
	created, err := h.proposals.ProposeModification(ctx, centralManager(), snapshot.ID, h.entityID, 3)
	require.NoError(t, err)

	proposal, err := h.proposals.ByID(ctx, created.ID)
	require.NoError(t, err)
	err = h.proposals.EditSnapshot(ctx, centralManager(), created.ID, &models.SnapshotDelta{
		Credits: floatPtr(9),
	}, proposal.LearningUnitYear.Changed)
	require.NoError(t, err)

	require.NoError(t, h.proposals.Refuse(ctx, centralManager(), created.ID))
	require.NoError(t, h.proposals.Consolidate(ctx, centralManager(), created.ID))

	restored, err := h.store.Snapshots().ByID(ctx, snapshot.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.0, restored.Credits)
	_, err = h.proposals.ByID(ctx, created.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestConsolidate_RefusedCreationBlockedByUsage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created, err := h.proposals.ProposeCreation(ctx, centralManager(), h.creationInput("LDROI1001", 2026, nil), h.entityID, 1)
	require.NoError(t, err)
	require.NoError(t, h.proposals.Refuse(ctx, centralManager(), created.ID))
	proposal, err := h.proposals.ByID(ctx, created.ID)
	require.NoError(t, err)
	require.NoError(t, h.store.Usage().AddAttribution(ctx, proposal.LearningUnitYearID, 7))

	err = h.proposals.Consolidate(ctx, centralManager(), created.ID)
	assert.ErrorIs(t, err, apperrors.ErrIntegrityFailure)

	// The snapshot with an attribution cannot be discarded.
	_, err = h.store.Snapshots().ByAcronymAndYear(ctx, "LDROI1001", 2026)
	require.NoError(t, err)
}

func TestConsolidate_PendingNotEligible(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snapshot := h.createUnit(t, "LDROI1001", 2025, intPtr(2025))
	created, err := h.proposals.ProposeModification(ctx, centralManager(), snapshot.ID, h.entityID, 3)
	require.NoError(t, err)

	err = h.proposals.Consolidate(ctx, centralManager(), created.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotEligibleForConsolidation)
}

func TestApplyAction_MixedBatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	person := centralManager()

	first := h.createUnit(t, "LDROI1001", 2025, intPtr(2025))
	second := h.createUnit(t, "LDROI1002", 2025, intPtr(2025))
	third := h.createUnit(t, "LDROI1003", 2025, intPtr(2025))

	acceptedA, err := h.proposals.ProposeModification(ctx, person, first.ID, h.entityID, 1)
	require.NoError(t, err)
	require.NoError(t, h.proposals.Accept(ctx, person, acceptedA.ID))
	acceptedB, err := h.proposals.ProposeModification(ctx, person, second.ID, h.entityID, 1)
	require.NoError(t, err)
	require.NoError(t, h.proposals.Accept(ctx, person, acceptedB.ID))
	pending, err := h.proposals.ProposeModification(ctx, person, third.ID, h.entityID, 1)
	require.NoError(t, err)

	ids := []int64{acceptedA.ID, acceptedB.ID, pending.ID, 999}
	results, err := h.proposals.ApplyAction(ctx, person, ids, h.proposals.ConsolidateAction())
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Outcomes are grouped by level, one entry per proposal under SUCCESS and
	// ERROR, with the sent report recorded once under INFO.
	require.Len(t, results[LevelSuccess], 2)
	assert.Contains(t, results[LevelSuccess][0], fmt.Sprintf("proposal %d", acceptedA.ID))
	assert.Contains(t, results[LevelSuccess][1], fmt.Sprintf("proposal %d", acceptedB.ID))
	require.Len(t, results[LevelError], 2)
	assert.Contains(t, results[LevelError][0], "not eligible")
	assert.Contains(t, results[LevelError][1], "proposal 999: not found")
	require.Len(t, results[LevelInfo], 1)
	assert.Equal(t, "report sent to anne.verstraete@example.org", results[LevelInfo][0])

	// The successful items were committed independently of the failures.
	_, err = h.proposals.ByID(ctx, acceptedA.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = h.proposals.ByID(ctx, acceptedB.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	still, err := h.proposals.ByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateCentral, still.State)

	require.Len(t, h.sink.reports, 1)
	report := h.sink.reports[0]
	assert.Equal(t, "anne.verstraete@example.org", report.ToEmail)
	assert.Equal(t, "Anne Verstraete", report.ToName)
	assert.Equal(t, "consolidate", report.Action)
	assert.Len(t, report.Lines, 4)
}
