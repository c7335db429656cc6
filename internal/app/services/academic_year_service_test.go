package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osis-edu/osis/internal/app/models"
	"github.com/osis-edu/osis/internal/app/repositories/inmem"
	"github.com/osis-edu/osis/internal/pkg/apperrors"
)

func TestCurrentYear(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	current, err := h.years.CurrentYear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2025, current.Year)

	starting, err := h.years.StartingYear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2025, starting.Year)
}

// During the overlap window two years contain today: the lower one is current,
// the greater one is the starting year.
func TestCurrentAndStartingYear_OverlapWindow(t *testing.T) {
	ctx := context.Background()
	store := inmem.NewStore()

	_, err := store.AcademicYears().Create(ctx, &models.AcademicYear{
		Year:      2024,
		StartDate: time.Date(2024, time.September, 15, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, time.October, 15, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	_, err = store.AcademicYears().Create(ctx, &models.AcademicYear{
		Year:      2025,
		StartDate: time.Date(2025, time.September, 15, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, time.September, 14, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	years := NewAcademicYearService(store, 6, testNow)

	current, err := years.CurrentYear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2024, current.Year)

	starting, err := years.StartingYear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2025, starting.Year)
}

func TestCurrentYear_EmptyCatalog(t *testing.T) {
	years := NewAcademicYearService(inmem.NewStore(), 6, testNow)

	_, err := years.CurrentYear(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMaxAdjournment(t *testing.T) {
	h := newHarness(t)

	horizon, err := h.years.MaxAdjournment(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2031, horizon)
}

func TestYearByValue_OutsideCatalog(t *testing.T) {
	h := newHarness(t)

	_, err := h.years.YearByValue(context.Background(), 2050)
	assert.ErrorIs(t, err, apperrors.ErrInvalidYear)
}

func TestYearsRange(t *testing.T) {
	h := newHarness(t)

	years, err := h.years.YearsRange(context.Background(), 2024, 2026)
	require.NoError(t, err)
	require.Len(t, years, 3)
	assert.Equal(t, 2024, years[0].Year)
	assert.Equal(t, 2026, years[2].Year)
}

func TestAcademicYearName(t *testing.T) {
	y := &models.AcademicYear{Year: 2025}
	assert.Equal(t, "2025-26", y.Name())

	y = &models.AcademicYear{Year: 1999}
	assert.Equal(t, "1999-00", y.Name())
}
