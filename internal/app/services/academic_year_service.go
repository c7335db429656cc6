package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/osis-edu/osis/internal/app/models"
	"github.com/osis-edu/osis/internal/app/repositories"
	"github.com/osis-edu/osis/internal/pkg/apperrors"
)

// AcademicYearService is the temporal registry: it resolves the current and
// starting years against the seeded catalog and bounds the editable horizon.
type AcademicYearService struct {
	store repositories.Store
	span  int
	now   func() time.Time
}

// NewAcademicYearService creates a new AcademicYearService. span is the
// postponement span bounding the editable future horizon.
func NewAcademicYearService(store repositories.Store, span int, now func() time.Time) *AcademicYearService {
	if span <= 0 {
		span = models.PostponementSpan
	}
	if now == nil {
		now = time.Now
	}
	return &AcademicYearService{store: store, span: span, now: now}
}

// CurrentYear returns the academic year whose date range contains today.
// During the overlap window two years qualify; the lower one is current.
func (s *AcademicYearService) CurrentYear(ctx context.Context) (*models.AcademicYear, error) {
	years, err := s.store.AcademicYears().Containing(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("error resolving current year: %w", err)
	}
	if len(years) == 0 {
		return nil, apperrors.NewNotFound("no academic year contains today")
	}
	return years[0], nil
}

// StartingYear returns the greater of the years containing today: the year
// students are starting during the overlap window. Outside the window it
// equals the current year.
func (s *AcademicYearService) StartingYear(ctx context.Context) (*models.AcademicYear, error) {
	years, err := s.store.AcademicYears().Containing(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("error resolving starting year: %w", err)
	}
	if len(years) == 0 {
		return nil, apperrors.NewNotFound("no academic year contains today")
	}
	return years[len(years)-1], nil
}

// YearByValue fetches one year from the catalog.
func (s *AcademicYearService) YearByValue(ctx context.Context, year int) (*models.AcademicYear, error) {
	y, err := s.store.AcademicYears().ByYear(ctx, year)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperrors.NewInvalidYear(year)
		}
		return nil, fmt.Errorf("error getting academic year: %w", err)
	}
	return y, nil
}

// YearsRange returns the seeded years in [from, to].
func (s *AcademicYearService) YearsRange(ctx context.Context, from, to int) ([]*models.AcademicYear, error) {
	years, err := s.store.AcademicYears().Range(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("error getting year range: %w", err)
	}
	return years, nil
}

// MaxAdjournment returns the greatest year any snapshot may reach: the
// starting year plus the postponement span.
func (s *AcademicYearService) MaxAdjournment(ctx context.Context) (int, error) {
	starting, err := s.StartingYear(ctx)
	if err != nil {
		return 0, err
	}
	return starting.Year + s.span, nil
}
