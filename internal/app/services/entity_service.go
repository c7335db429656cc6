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

// EntityService answers temporal queries over the organizational entity tree
// and guards its structural invariants on write.
type EntityService struct {
	store repositories.Store
}

// NewEntityService creates a new EntityService.
func NewEntityService(store repositories.Store) *EntityService {
	return &EntityService{store: store}
}

// ActiveVersion returns the version of the entity covering the given date.
func (s *EntityService) ActiveVersion(ctx context.Context, entityID int64, date time.Time) (*models.EntityVersion, error) {
	v, err := s.store.Entities().ActiveVersion(ctx, entityID, date)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperrors.NewNotFound("entity %d has no active version on %s", entityID, date.Format("2006-01-02"))
		}
		return nil, fmt.Errorf("error getting active entity version: %w", err)
	}
	return v, nil
}

// AcronymOn returns the acronym of the entity on the given date.
func (s *EntityService) AcronymOn(ctx context.Context, entityID int64, date time.Time) (string, error) {
	v, err := s.ActiveVersion(ctx, entityID, date)
	if err != nil {
		return "", err
	}
	return v.Acronym, nil
}

// CreateVersion creates a new entity version after checking that it overlaps
// no existing version of the same entity and introduces no parent cycle.
func (s *EntityService) CreateVersion(ctx context.Context, version *models.EntityVersion) (int64, error) {
	existing, err := s.store.Entities().Versions(ctx, version.EntityID)
	if err != nil {
		return 0, fmt.Errorf("error loading entity versions: %w", err)
	}
	for _, v := range existing {
		if overlaps(version, v) {
			return 0, apperrors.NewIntegrityFailure(
				"entity %d already has a version active in the requested interval", version.EntityID)
		}
	}

	if version.ParentEntityID != nil {
		if err := s.checkNoCycle(ctx, version.EntityID, *version.ParentEntityID, version.StartDate); err != nil {
			return 0, err
		}
	}

	return s.store.Entities().CreateVersion(ctx, version)
}

// overlaps reports whether two validity intervals [start, end) intersect.
func overlaps(a, b *models.EntityVersion) bool {
	aOpen := a.EndDate == nil
	bOpen := b.EndDate == nil
	if !aOpen && !a.EndDate.After(b.StartDate) {
		return false
	}
	if !bOpen && !b.EndDate.After(a.StartDate) {
		return false
	}
	return true
}

// checkNoCycle walks up from the proposed parent; reaching the entity itself
// would close a cycle.
func (s *EntityService) checkNoCycle(ctx context.Context, entityID, parentID int64, date time.Time) error {
	seen := map[int64]bool{entityID: true}
	current := parentID
	for {
		if seen[current] {
			return apperrors.NewIntegrityFailure("entity %d cannot be its own ancestor", entityID)
		}
		seen[current] = true

		v, err := s.store.Entities().ActiveVersion(ctx, current, date)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("error walking entity ancestors: %w", err)
		}
		if v.ParentEntityID == nil {
			return nil
		}
		current = *v.ParentEntityID
	}
}

// Descendants returns every entity version below the given entity on the
// given date. Traversal is guarded against cycles already present in the
// data: a version visited twice is skipped.
func (s *EntityService) Descendants(ctx context.Context, entityID int64, date time.Time) ([]*models.EntityVersion, error) {
	visited := map[int64]bool{entityID: true}
	result := []*models.EntityVersion{}
	queue := []int64{entityID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		children, err := s.store.Entities().ChildrenOn(ctx, current, date)
		if err != nil {
			return nil, fmt.Errorf("error loading entity children: %w", err)
		}
		for _, child := range children {
			if visited[child.EntityID] {
				continue
			}
			visited[child.EntityID] = true
			result = append(result, child)
			queue = append(queue, child.EntityID)
		}
	}
	return result, nil
}

// DescendantIDs returns the entity ids of the subtree rooted at the entity,
// the root included. Role policies use it to resolve a manager's scope.
func (s *EntityService) DescendantIDs(ctx context.Context, entityID int64, date time.Time) ([]int64, error) {
	descendants, err := s.Descendants(ctx, entityID, date)
	if err != nil {
		return nil, err
	}
	ids := []int64{entityID}
	for _, d := range descendants {
		ids = append(ids, d.EntityID)
	}
	return ids, nil
}
