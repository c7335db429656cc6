package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osis-edu/osis/internal/app/models"
	"github.com/osis-edu/osis/internal/pkg/apperrors"
)

func date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// newEntity creates an entity with one version under the given parent.
// parentID zero means no parent.
func (h *harness) newEntity(t *testing.T, acronym string, parentID int64, start time.Time, end *time.Time) int64 {
	t.Helper()
	ctx := context.Background()
	entityID, err := h.store.Entities().CreateEntity(ctx, &models.Entity{})
	require.NoError(t, err)
	version := &models.EntityVersion{
		EntityID:   entityID,
		Acronym:    acronym,
		Title:      acronym,
		EntityType: models.EntitySchool,
		StartDate:  start,
		EndDate:    end,
	}
	if parentID != 0 {
		version.ParentEntityID = &parentID
	}
	_, err = h.entities.CreateVersion(ctx, version)
	require.NoError(t, err)
	return entityID
}

func TestActiveVersion_DateBounds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	end := date(2020, 1, 1)
	id := h.newEntity(t, "EPL", 0, date(2010, 1, 1), &end)

	v, err := h.entities.ActiveVersion(ctx, id, date(2015, 6, 1))
	require.NoError(t, err)
	assert.Equal(t, "EPL", v.Acronym)

	// The interval is [start, end): the end date itself is out.
	_, err = h.entities.ActiveVersion(ctx, id, end)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = h.entities.ActiveVersion(ctx, id, date(2009, 12, 31))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCreateVersion_RejectsOverlap(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	end := date(2020, 1, 1)
	id := h.newEntity(t, "EPL", 0, date(2010, 1, 1), &end)

	_, err := h.entities.CreateVersion(ctx, &models.EntityVersion{
		EntityID:  id,
		Acronym:   "EPL2",
		StartDate: date(2015, 1, 1),
	})
	assert.ErrorIs(t, err, apperrors.ErrIntegrityFailure)

	// A version starting exactly at the previous end is fine.
	_, err = h.entities.CreateVersion(ctx, &models.EntityVersion{
		EntityID:  id,
		Acronym:   "EPL2",
		StartDate: end,
	})
	assert.NoError(t, err)
}

func TestCreateVersion_RejectsParentCycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	start := date(2010, 1, 1)
	aEnd := date(2030, 1, 1)
	a := h.newEntity(t, "AAA", 0, start, &aEnd)
	b := h.newEntity(t, "BBB", a, start, nil)
	c := h.newEntity(t, "CCC", b, start, nil)

	// Re-rooting A under C would close A -> B -> C -> A.
	_, err := h.entities.CreateVersion(ctx, &models.EntityVersion{
		EntityID:       a,
		ParentEntityID: &c,
		Acronym:        "AAA",
		StartDate:      aEnd,
	})
	assert.ErrorIs(t, err, apperrors.ErrIntegrityFailure)
}

func TestDescendants(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	start := date(2010, 1, 1)
	root := h.newEntity(t, "SST", 0, start, nil)
	child1 := h.newEntity(t, "EPL", root, start, nil)
	child2 := h.newEntity(t, "SC", root, start, nil)
	grandchild := h.newEntity(t, "INGI", child1, start, nil)

	// A child that expired before the query date is excluded.
	expiredEnd := date(2012, 1, 1)
	h.newEntity(t, "OLD", root, start, &expiredEnd)

	ids, err := h.entities.DescendantIDs(ctx, root, date(2020, 6, 1))
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{root, child1, child2, grandchild}, ids)
}

func TestAcronymOn(t *testing.T) {
	h := newHarness(t)

	acronym, err := h.entities.AcronymOn(context.Background(), h.entityID, testDate)
	require.NoError(t, err)
	assert.Equal(t, "DRT", acronym)
}
