package inmem

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osis-edu/osis/internal/app/models"
	"github.com/osis-edu/osis/internal/app/repositories"
	"github.com/osis-edu/osis/internal/pkg/apperrors"
)

func seedSnapshot(t *testing.T, store *Store) *models.LearningUnitYear {
	t.Helper()
	ctx := context.Background()

	containerID, err := store.Containers().CreateContainer(ctx)
	require.NoError(t, err)
	containerYearID, err := store.Containers().Create(ctx, &models.LearningContainerYear{
		LearningContainerID: containerID,
		AcademicYear:        2025,
		Acronym:             "LDROI1001",
		ContainerType:       models.ContainerCourse,
	})
	require.NoError(t, err)
	unitID, err := store.LearningUnits().Create(ctx, &models.LearningUnit{StartYear: 2025})
	require.NoError(t, err)

	snapshot := &models.LearningUnitYear{
		LearningUnitID:          unitID,
		LearningContainerYearID: containerYearID,
		AcademicYear:            2025,
		Acronym:                 "LDROI1001",
		Subtype:                 models.SubtypeFull,
		Credits:                 5,
	}
	_, err = store.Snapshots().Create(ctx, snapshot)
	require.NoError(t, err)
	return snapshot
}

func TestAtomic_RollsBackOnError(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	snapshot := seedSnapshot(t, store)

	sentinel := errors.New("boom")
	err := store.Atomic(ctx, func(tx repositories.Store) error {
		loaded, err := tx.Snapshots().ByID(ctx, snapshot.ID)
		require.NoError(t, err)
		loaded.Credits = 9
		require.NoError(t, tx.Snapshots().Update(ctx, loaded, loaded.Changed))

		if _, err := tx.LearningUnits().Create(ctx, &models.LearningUnit{StartYear: 2026}); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	loaded, err := store.Snapshots().ByID(ctx, snapshot.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.0, loaded.Credits)
}

func TestSnapshotUpdate_StaleTimestamp(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	snapshot := seedSnapshot(t, store)

	loaded, err := store.Snapshots().ByID(ctx, snapshot.ID)
	require.NoError(t, err)
	err = store.Snapshots().Update(ctx, loaded, loaded.Changed.Add(-time.Second))
	assert.ErrorIs(t, err, apperrors.ErrConcurrentUpdate)
}

func TestSnapshotUpdate_PreservesIdentityColumns(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	snapshot := seedSnapshot(t, store)

	loaded, err := store.Snapshots().ByID(ctx, snapshot.ID)
	require.NoError(t, err)
	loaded.AcademicYear = 2030
	loaded.Subtype = models.SubtypePartim
	loaded.Credits = 7
	require.NoError(t, store.Snapshots().Update(ctx, loaded, loaded.Changed))

	stored, err := store.Snapshots().ByID(ctx, snapshot.ID)
	require.NoError(t, err)
	assert.Equal(t, 2025, stored.AcademicYear)
	assert.Equal(t, models.SubtypeFull, stored.Subtype)
	assert.Equal(t, 7.0, stored.Credits)
}

func TestReads_ReturnIsolatedCopies(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	snapshot := seedSnapshot(t, store)

	first, err := store.Snapshots().ByID(ctx, snapshot.ID)
	require.NoError(t, err)
	first.Credits = 42

	second, err := store.Snapshots().ByID(ctx, snapshot.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.0, second.Credits)
}

func TestSnapshotCreate_UniquePerUnitAndYear(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	snapshot := seedSnapshot(t, store)

	dup := &models.LearningUnitYear{
		LearningUnitID:          snapshot.LearningUnitID,
		LearningContainerYearID: snapshot.LearningContainerYearID,
		AcademicYear:            2025,
		Acronym:                 "LDROI1002",
		Subtype:                 models.SubtypeFull,
	}
	_, err := store.Snapshots().Create(ctx, dup)
	assert.ErrorIs(t, err, repositories.ErrSnapshotExists)

	clash := &models.LearningUnitYear{
		LearningUnitID:          snapshot.LearningUnitID + 1000,
		LearningContainerYearID: snapshot.LearningContainerYearID,
		AcademicYear:            2025,
		Acronym:                 "LDROI1001",
		Subtype:                 models.SubtypeFull,
	}
	_, err = store.Snapshots().Create(ctx, clash)
	assert.ErrorIs(t, err, repositories.ErrAcronymTaken)
}
