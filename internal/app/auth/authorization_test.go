package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osis-edu/osis/internal/app/models"
	"github.com/osis-edu/osis/internal/app/services"
)

func central() *models.Person {
	return &models.Person{ID: 1, Roles: []models.RoleType{models.RoleCentralManager}}
}

func faculty(entityIDs ...int64) *models.Person {
	return &models.Person{ID: 2, Roles: []models.RoleType{models.RoleFacultyManager}, LinkedEntityIDs: entityIDs}
}

func TestPolicy_NilPersonDenied(t *testing.T) {
	decision, err := NewPolicy().Check(context.Background(), services.PermEditLearningUnit, nil, services.Target{})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, services.PermEditLearningUnit, decision.Perm)
}

func TestPolicy_CentralManagerAllowedEverything(t *testing.T) {
	policy := NewPolicy()
	for _, perm := range []string{
		services.PermEditLearningUnit,
		services.PermConsolidateProposal,
		services.PermForceState,
	} {
		decision, err := policy.Check(context.Background(), perm, central(), services.Target{EntityID: 7})
		require.NoError(t, err)
		assert.True(t, decision.Allowed, perm)
	}
}

func TestPolicy_FacultyManagerDeniedCentralOnlyPerms(t *testing.T) {
	policy := NewPolicy()
	person := faculty(7)
	for _, perm := range []string{services.PermConsolidateProposal, services.PermForceState} {
		decision, err := policy.Check(context.Background(), perm, person, services.Target{EntityID: 7})
		require.NoError(t, err)
		assert.False(t, decision.Allowed, perm)
	}
}

func TestPolicy_FacultyManagerEntityScope(t *testing.T) {
	policy := NewPolicy()

	decision, err := policy.Check(context.Background(), services.PermEditLearningUnit, faculty(7), services.Target{EntityID: 7})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	decision, err = policy.Check(context.Background(), services.PermEditLearningUnit, faculty(7), services.Target{EntityID: 8})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	// A target without an entity does not restrict the scope.
	decision, err = policy.Check(context.Background(), services.PermEditLearningUnit, faculty(7), services.Target{})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestPolicy_FacultyManagerLosesHandPastFacultyState(t *testing.T) {
	policy := NewPolicy()
	person := faculty(7)

	proposal := &models.Proposal{ID: 1, State: models.StateFaculty}
	decision, err := policy.Check(context.Background(), services.PermEditProposal, person, services.Target{Proposal: proposal, EntityID: 7})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	for _, state := range []models.ProposalState{
		models.StateCentral, models.StateAccepted, models.StateRefused, models.StateSuspended,
	} {
		proposal := &models.Proposal{ID: 1, State: state}
		decision, err := policy.Check(context.Background(), services.PermEditProposal, person, services.Target{Proposal: proposal, EntityID: 7})
		require.NoError(t, err)
		assert.False(t, decision.Allowed, state)
	}
}

func TestPolicy_PersonWithoutRolesDenied(t *testing.T) {
	person := &models.Person{ID: 3}
	decision, err := NewPolicy().Check(context.Background(), services.PermEditLearningUnit, person, services.Target{})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

// countingChecker counts how often the wrapped policy is actually consulted.
type countingChecker struct {
	calls int
}

func (c *countingChecker) Check(_ context.Context, perm string, _ *models.Person, _ services.Target) (services.Decision, error) {
	c.calls++
	return services.Decision{Perm: perm, Allowed: true}, nil
}

func TestCachedChecker_MemoizesPerTarget(t *testing.T) {
	inner := &countingChecker{}
	cached := NewCachedChecker(inner)
	ctx := context.Background()
	person := central()
	snapshot := &models.LearningUnitYear{ID: 10}

	for i := 0; i < 3; i++ {
		decision, err := cached.Check(ctx, services.PermEditLearningUnit, person, services.Target{Snapshot: snapshot})
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
	}
	assert.Equal(t, 1, inner.calls)

	// A different snapshot is a different key.
	_, err := cached.Check(ctx, services.PermEditLearningUnit, person, services.Target{Snapshot: &models.LearningUnitYear{ID: 11}})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)

	// So is a different permission on the same snapshot.
	_, err = cached.Check(ctx, services.PermEditProposal, person, services.Target{Snapshot: snapshot})
	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls)
}

func TestCachedChecker_ProposalKeyWinsOverSnapshot(t *testing.T) {
	inner := &countingChecker{}
	cached := NewCachedChecker(inner)
	ctx := context.Background()
	person := central()

	// Same proposal under two different snapshot pointers caches once.
	proposal := &models.Proposal{ID: 5, State: models.StateCentral}
	_, err := cached.Check(ctx, services.PermEditProposal, person, services.Target{Proposal: proposal, Snapshot: &models.LearningUnitYear{ID: 10}})
	require.NoError(t, err)
	_, err = cached.Check(ctx, services.PermEditProposal, person, services.Target{Proposal: proposal, Snapshot: &models.LearningUnitYear{ID: 11}})
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
}
