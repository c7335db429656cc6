package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/osis-edu/osis/internal/app/models"
	"github.com/osis-edu/osis/internal/app/repositories"
	"github.com/osis-edu/osis/internal/pkg/apperrors"
	"github.com/osis-edu/osis/internal/pkg/logger"
	"github.com/osis-edu/osis/internal/pkg/validation"
)

// PostponementReport lists, per year, what an end-year change did.
type PostponementReport struct {
	Created []int `json:"created"`
	Deleted []int `json:"deleted"`
	Skipped []int `json:"skipped"`
}

// UpdateReport lists the years an edit was propagated to.
type UpdateReport struct {
	AppliedYears []int `json:"appliedYears"`
}

// PostponementService extends, shortens and propagates snapshots over the
// year axis.
type PostponementService struct {
	store       repositories.Store
	years       *AcademicYearService
	consistency *ConsistencyService
	checker     PermissionChecker
}

// NewPostponementService creates a new PostponementService.
func NewPostponementService(store repositories.Store, years *AcademicYearService, consistency *ConsistencyService, checker PermissionChecker) *PostponementService {
	return &PostponementService{
		store:       store,
		years:       years,
		consistency: consistency,
		checker:     checker,
	}
}

// ChangeEndYear moves the closure year of a unit. Extending duplicates the
// last snapshot year by year up to the new end; shortening deletes snapshots
// from the old end down to it. A nil end year extends to the adjournment
// horizon and stores the unit as open-ended.
func (s *PostponementService) ChangeEndYear(ctx context.Context, person *models.Person, learningUnitID int64, endYear *int) (*PostponementReport, error) {
	unit, err := s.store.LearningUnits().ByID(ctx, learningUnitID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperrors.NewNotFound("learning unit %d not found", learningUnitID)
		}
		return nil, fmt.Errorf("error getting unit %d: %w", learningUnitID, err)
	}

	horizon, err := s.years.MaxAdjournment(ctx)
	if err != nil {
		return nil, err
	}
	if endYear != nil {
		if *endYear > horizon {
			return nil, apperrors.NewInvalidYear(*endYear)
		}
		if *endYear < unit.StartYear {
			return nil, apperrors.NewInvalidYear(*endYear)
		}
	}

	snapshots, err := s.store.Snapshots().ByUnit(ctx, learningUnitID)
	if err != nil {
		return nil, fmt.Errorf("error listing snapshots of unit %d: %w", learningUnitID, err)
	}
	if len(snapshots) == 0 {
		return nil, apperrors.NewIntegrityFailure("learning unit %d has no snapshot", learningUnitID)
	}
	last := snapshots[len(snapshots)-1]

	entities, err := s.store.Containers().Entities(ctx, last.LearningContainerYearID)
	if err != nil {
		return nil, fmt.Errorf("error loading container entities: %w", err)
	}
	decision, err := s.checker.Check(ctx, PermEditLearningUnit, person, Target{
		Snapshot: last,
		EntityID: entities[models.EntityRequirement],
	})
	if err != nil {
		return nil, fmt.Errorf("error evaluating permission: %w", err)
	}
	if !decision.Allowed {
		return nil, apperrors.NewPermissionDenied(decision.Perm)
	}

	currentEnd := unit.EndYearOr(horizon)
	newEnd := horizon
	if endYear != nil {
		newEnd = *endYear
	}

	if err := s.checkPartimBounds(ctx, last, newEnd, horizon); err != nil {
		return nil, err
	}

	report := &PostponementReport{Created: []int{}, Deleted: []int{}, Skipped: []int{}}
	err = s.store.Atomic(ctx, func(tx repositories.Store) error {
		switch {
		case newEnd > currentEnd:
			if err := s.extend(ctx, tx, last, currentEnd, newEnd, report); err != nil {
				return err
			}
		case newEnd < currentEnd:
			if err := s.shorten(ctx, tx, snapshots, newEnd, report); err != nil {
				return err
			}
		}
		if err := tx.LearningUnits().SetEndYear(ctx, learningUnitID, endYear); err != nil {
			return fmt.Errorf("error setting end year of unit %d: %w", learningUnitID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Int64("learning_unit_id", learningUnitID).
		Ints("created", report.Created).
		Ints("deleted", report.Deleted).
		Msg("Changed learning unit end year")
	return report, nil
}

// checkPartimBounds keeps partim and full year ranges consistent: a partim
// cannot outlive its full unit, and a full unit cannot stop before one of its
// partims.
func (s *PostponementService) checkPartimBounds(ctx context.Context, last *models.LearningUnitYear, newEnd, horizon int) error {
	siblings, err := s.store.Snapshots().ByContainerYear(ctx, last.LearningContainerYearID)
	if err != nil {
		return fmt.Errorf("error listing siblings of snapshot %d: %w", last.ID, err)
	}

	if last.IsPartim() {
		for _, sib := range siblings {
			if sib.IsPartim() {
				continue
			}
			fullUnit, err := s.store.LearningUnits().ByID(ctx, sib.LearningUnitID)
			if err != nil {
				return fmt.Errorf("error getting unit %d: %w", sib.LearningUnitID, err)
			}
			if newEnd > fullUnit.EndYearOr(horizon) {
				return apperrors.NewIntegrityFailure(
					"partim %s cannot end after its full unit %s", last.Acronym, sib.Acronym)
			}
		}
		return nil
	}

	for _, sib := range siblings {
		if !sib.IsPartim() {
			continue
		}
		partimUnit, err := s.store.LearningUnits().ByID(ctx, sib.LearningUnitID)
		if err != nil {
			return fmt.Errorf("error getting unit %d: %w", sib.LearningUnitID, err)
		}
		if partimUnit.EndYearOr(horizon) > newEnd {
			return apperrors.NewIntegrityFailure(
				"%s cannot end in %d: partim %s lasts until %d",
				last.Acronym, newEnd, sib.Acronym, partimUnit.EndYearOr(horizon))
		}
	}
	return nil
}

// extend duplicates the last snapshot year by year up to newEnd. Years that
// already carry a snapshot are kept as they are and become the source for the
// following year.
func (s *PostponementService) extend(ctx context.Context, tx repositories.Store, last *models.LearningUnitYear, currentEnd, newEnd int, report *PostponementReport) error {
	source := last
	for year := currentEnd + 1; year <= newEnd; year++ {
		existing, err := tx.Snapshots().ByUnitAndYear(ctx, source.LearningUnitID, year)
		if err == nil {
			report.Skipped = append(report.Skipped, year)
			source = existing
			continue
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("error checking snapshot for %d: %w", year, err)
		}

		target, err := s.years.YearByValue(ctx, year)
		if err != nil {
			return err
		}
		created, err := duplicateSnapshot(ctx, tx, source, target)
		if err != nil {
			return err
		}
		report.Created = append(report.Created, year)
		source = created
	}
	return nil
}

// shorten deletes snapshots from the latest year down to newEnd+1. Used or
// proposal-bound snapshots block the whole change.
func (s *PostponementService) shorten(ctx context.Context, tx repositories.Store, snapshots []*models.LearningUnitYear, newEnd int, report *PostponementReport) error {
	for i := len(snapshots) - 1; i >= 0; i-- {
		snapshot := snapshots[i]
		if snapshot.AcademicYear <= newEnd {
			break
		}

		usage, err := tx.Usage().Usage(ctx, snapshot.ID)
		if err != nil {
			return fmt.Errorf("error counting usage of snapshot %d: %w", snapshot.ID, err)
		}
		if usage.Blocked() {
			return apperrors.NewIntegrityFailure(
				"%s in %d is used and cannot be removed", snapshot.Acronym, snapshot.AcademicYear)
		}
		proposal, err := tx.Proposals().BySnapshot(ctx, snapshot.ID)
		if err == nil && !proposal.Cancelable() {
			return apperrors.NewIntegrityFailure(
				"%s in %d carries a %s proposal", snapshot.Acronym, snapshot.AcademicYear, proposal.State)
		}
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("error checking proposal of snapshot %d: %w", snapshot.ID, err)
		}

		if err := deleteSnapshotCascading(ctx, tx, snapshot); err != nil {
			return err
		}
		report.Deleted = append(report.Deleted, snapshot.AcademicYear)
	}
	return nil
}

// duplicateSnapshot copies a snapshot into the target year: the container
// year is reused when a sibling already created it, otherwise duplicated with
// its entity links; components, classes, pedagogy texts, materials and the
// external record follow. Vacancy flags and the attribution procedure do not
// carry over.
func duplicateSnapshot(ctx context.Context, tx repositories.Store, source *models.LearningUnitYear, target *models.AcademicYear) (*models.LearningUnitYear, error) {
	sourceContainer, err := tx.Containers().ByID(ctx, source.LearningContainerYearID)
	if err != nil {
		return nil, fmt.Errorf("error getting container year %d: %w", source.LearningContainerYearID, err)
	}

	targetContainer, err := tx.Containers().ByContainerAndYear(ctx, sourceContainer.LearningContainerID, target.Year)
	if errors.Is(err, repositories.ErrNotFound) {
		entities, err := tx.Containers().Entities(ctx, sourceContainer.ID)
		if err != nil {
			return nil, fmt.Errorf("error loading container entities: %w", err)
		}
		if err := checkEntitiesActive(ctx, tx, entities, target); err != nil {
			return nil, err
		}

		targetContainer = &models.LearningContainerYear{
			LearningContainerID: sourceContainer.LearningContainerID,
			AcademicYear:        target.Year,
			Acronym:             sourceContainer.Acronym,
			ContainerType:       sourceContainer.ContainerType,
			CommonTitleFr:       sourceContainer.CommonTitleFr,
			CommonTitleEn:       sourceContainer.CommonTitleEn,
			Team:                sourceContainer.Team,
		}
		id, err := tx.Containers().Create(ctx, targetContainer)
		if err != nil {
			return nil, fmt.Errorf("error creating container year for %d: %w", target.Year, err)
		}
		targetContainer.ID = id
		for link, entityID := range entities {
			if err := tx.Containers().SetEntity(ctx, id, link, entityID); err != nil {
				return nil, fmt.Errorf("error linking entity %d as %s: %w", entityID, link, err)
			}
		}
	} else if err != nil {
		return nil, fmt.Errorf("error getting container year for %d: %w", target.Year, err)
	}

	copy := *source
	copy.ID = 0
	copy.LearningContainerYearID = targetContainer.ID
	copy.AcademicYear = target.Year
	copy.AttributionProcedure = nil
	copy.LearningUnit, copy.ContainerYear, copy.Components = nil, nil, nil
	id, err := tx.Snapshots().Create(ctx, &copy)
	if err != nil {
		return nil, fmt.Errorf("error creating snapshot for %d: %w", target.Year, err)
	}
	copy.ID = id

	if err := duplicateComponents(ctx, tx, source.ID, id); err != nil {
		return nil, err
	}
	if err := duplicatePedagogy(ctx, tx, source.ID, id); err != nil {
		return nil, err
	}
	return &copy, nil
}

func duplicateComponents(ctx context.Context, tx repositories.Store, sourceID, targetID int64) error {
	components, err := tx.Components().BySnapshot(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("error loading components: %w", err)
	}
	for _, c := range components {
		classes, err := tx.Components().Classes(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("error loading classes of component %d: %w", c.ID, err)
		}
		copy := *c
		copy.ID = 0
		copy.LearningUnitYearID = targetID
		copy.Classes = nil
		newID, err := tx.Components().Create(ctx, &copy)
		if err != nil {
			return fmt.Errorf("error copying component %s: %w", c.Type, err)
		}
		for _, class := range classes {
			if _, err := tx.Components().CreateClass(ctx, &models.LearningClassYear{
				LearningComponentYearID: newID,
				AcronymLetter:           class.AcronymLetter,
			}); err != nil {
				return fmt.Errorf("error copying class %s: %w", class.AcronymLetter, err)
			}
		}
	}
	return nil
}

func duplicatePedagogy(ctx context.Context, tx repositories.Store, sourceID, targetID int64) error {
	texts, err := tx.Pedagogy().Texts(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("error loading texts: %w", err)
	}
	for _, t := range texts {
		copy := *t
		copy.ID = 0
		copy.Reference = targetID
		if _, err := tx.Pedagogy().CreateText(ctx, &copy); err != nil {
			return fmt.Errorf("error copying text %s: %w", t.TextLabel, err)
		}
	}

	materials, err := tx.Pedagogy().Materials(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("error loading materials: %w", err)
	}
	for _, m := range materials {
		copy := *m
		copy.ID = 0
		copy.LearningUnitYearID = targetID
		if _, err := tx.Pedagogy().CreateMaterial(ctx, &copy); err != nil {
			return fmt.Errorf("error copying material %s: %w", m.Title, err)
		}
	}

	external, err := tx.Pedagogy().External(ctx, sourceID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("error loading external record: %w", err)
	}
	copy := *external
	copy.ID = 0
	copy.LearningUnitYearID = targetID
	if _, err := tx.Pedagogy().CreateExternal(ctx, &copy); err != nil {
		return fmt.Errorf("error copying external record: %w", err)
	}
	return nil
}

// checkEntitiesActive verifies each linked entity has an active version on
// the target year's start date.
func checkEntitiesActive(ctx context.Context, tx repositories.Store, entities map[models.EntityLink]int64, year *models.AcademicYear) error {
	for link, entityID := range entities {
		if _, err := tx.Entities().ActiveVersion(ctx, entityID, year.StartDate); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return apperrors.NewIntegrityFailure(
					"entity %d (%s) is not active in %d", entityID, link, year.Year)
			}
			return fmt.Errorf("error checking entity %d: %w", entityID, err)
		}
	}
	return nil
}

// UpdateWithReport edits a snapshot and propagates the same delta to the
// following years. Propagation stops at the first year whose state had
// diverged from the edited year before the edit, unless override is set. The
// years updated before the stop stay committed; the divergence is returned as
// a ConsistencyError next to the report.
func (s *PostponementService) UpdateWithReport(ctx context.Context, person *models.Person, snapshotID int64, delta *models.SnapshotDelta, expectedChanged time.Time, override bool) (*UpdateReport, error) {
	snapshot, err := s.store.Snapshots().ByID(ctx, snapshotID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperrors.NewNotFound("learning unit year %d not found", snapshotID)
		}
		return nil, fmt.Errorf("error getting snapshot %d: %w", snapshotID, err)
	}

	entities, err := s.store.Containers().Entities(ctx, snapshot.LearningContainerYearID)
	if err != nil {
		return nil, fmt.Errorf("error loading container entities: %w", err)
	}
	decision, err := s.checker.Check(ctx, PermEditLearningUnit, person, Target{
		Snapshot: snapshot,
		EntityID: entities[models.EntityRequirement],
	})
	if err != nil {
		return nil, fmt.Errorf("error evaluating permission: %w", err)
	}
	if !decision.Allowed {
		return nil, apperrors.NewPermissionDenied(decision.Perm)
	}

	if err := validateDelta(snapshot, delta); err != nil {
		return nil, err
	}

	report := &UpdateReport{AppliedYears: []int{}}
	var conflict *apperrors.ConsistencyError

	err = s.store.Atomic(ctx, func(tx repositories.Store) error {
		// The pre-edit state of the first year is the baseline future years
		// are compared against.
		baseline, err := loadYearData(ctx, tx, snapshotCopy(snapshot))
		if err != nil {
			return err
		}

		if err := applySnapshotUpdate(ctx, tx, snapshot, delta, expectedChanged); err != nil {
			return err
		}
		report.AppliedYears = append(report.AppliedYears, snapshot.AcademicYear)

		current := snapshot
		for {
			next, err := tx.Snapshots().ByUnitAndYear(ctx, current.LearningUnitID, current.AcademicYear+1)
			if errors.Is(err, repositories.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("error getting snapshot for %d: %w", current.AcademicYear+1, err)
			}

			nextData, err := loadYearData(ctx, tx, next)
			if err != nil {
				return err
			}
			if diffs := s.consistency.CompareYears(baseline, nextData); len(diffs) > 0 && !override {
				conflict = &apperrors.ConsistencyError{
					LastApplied: current.AcademicYear,
					Diffs:       diffs,
				}
				return nil
			}

			// The next year's own pre-edit state becomes the baseline before
			// the delta lands on it.
			baseline, err = loadYearData(ctx, tx, snapshotCopy(next))
			if err != nil {
				return err
			}

			propagated := propagatedDelta(delta)
			if err := applySnapshotUpdate(ctx, tx, next, propagated, next.Changed); err != nil {
				return err
			}
			report.AppliedYears = append(report.AppliedYears, next.AcademicYear)
			current = next
		}
	})
	if err != nil {
		return nil, err
	}
	if conflict != nil {
		return report, conflict
	}
	return report, nil
}

// propagatedDelta strips the year-bound fields a propagation never carries.
func propagatedDelta(delta *models.SnapshotDelta) *models.SnapshotDelta {
	copy := *delta
	copy.AttributionProcedure = nil
	return &copy
}

func snapshotCopy(s *models.LearningUnitYear) *models.LearningUnitYear {
	copy := *s
	return &copy
}

// CreateSnapshotInput is the payload of a snapshot creation.
type CreateSnapshotInput struct {
	AcademicYear    int                                          `json:"academicYear" validate:"required"`
	Acronym         string                                       `json:"acronym" validate:"required,lu_acronym"`
	CommonTitleFr   string                                       `json:"commonTitleFr" validate:"required"`
	SpecificTitleFr string                                       `json:"specificTitleFr"`
	ContainerType   models.ContainerType                         `json:"containerType" validate:"required"`
	Subtype         models.Subtype                               `json:"subtype" validate:"required"`
	Credits         float64                                      `json:"credits" validate:"gte=0,lte=60"`
	Status          bool                                         `json:"status"`
	Language        string                                       `json:"language" validate:"required"`
	Campus          string                                       `json:"campus"`
	Periodicity     models.Periodicity                           `json:"periodicity" validate:"required"`
	Quadrimester    *models.Quadrimester                         `json:"quadrimester,omitempty"`
	Session         *models.SessionDerogation                    `json:"session,omitempty"`
	EndYear         *int                                         `json:"endYear,omitempty"`
	Entities        map[models.EntityLink]int64                  `json:"entities" validate:"required"`
	Volumes         map[models.ComponentType]*models.VolumeDelta `json:"volumes,omitempty"`
}

// CreateWithReport creates a unit and its first snapshot, then postpones it
// forward to its end year or the adjournment horizon. The returned report
// lists the duplicated years.
func (s *PostponementService) CreateWithReport(ctx context.Context, person *models.Person, input *CreateSnapshotInput) (*models.LearningUnitYear, *PostponementReport, error) {
	requirementEntity := input.Entities[models.EntityRequirement]
	decision, err := s.checker.Check(ctx, PermCreateLearningUnit, person, Target{EntityID: requirementEntity})
	if err != nil {
		return nil, nil, fmt.Errorf("error evaluating permission: %w", err)
	}
	if !decision.Allowed {
		return nil, nil, apperrors.NewPermissionDenied(decision.Perm)
	}

	if err := validation.Struct(input); err != nil {
		return nil, nil, apperrors.NewIntegrityFailure("invalid payload: %v", err)
	}

	current, err := s.years.CurrentYear(ctx)
	if err != nil {
		return nil, nil, err
	}
	horizon, err := s.years.MaxAdjournment(ctx)
	if err != nil {
		return nil, nil, err
	}
	if input.AcademicYear < current.Year || input.AcademicYear > horizon {
		return nil, nil, apperrors.NewInvalidYear(input.AcademicYear)
	}
	if input.EndYear != nil && (*input.EndYear < input.AcademicYear || *input.EndYear > horizon) {
		return nil, nil, apperrors.NewInvalidYear(*input.EndYear)
	}

	if _, err := s.store.Snapshots().ByAcronymAndYear(ctx, input.Acronym, input.AcademicYear); err == nil {
		return nil, nil, apperrors.NewIntegrityFailure("%s already exists in %d", input.Acronym, input.AcademicYear)
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, nil, fmt.Errorf("error checking acronym %s: %w", input.Acronym, err)
	}

	firstYear, err := s.years.YearByValue(ctx, input.AcademicYear)
	if err != nil {
		return nil, nil, err
	}

	var snapshot *models.LearningUnitYear
	report := &PostponementReport{Created: []int{}, Deleted: []int{}, Skipped: []int{}}
	err = s.store.Atomic(ctx, func(tx repositories.Store) error {
		var err error
		snapshot, err = createUnitWithSnapshot(ctx, tx, input, firstYear)
		if err != nil {
			return err
		}

		end := horizon
		if input.EndYear != nil {
			end = *input.EndYear
		}
		return s.extend(ctx, tx, snapshot, input.AcademicYear, end, report)
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Info().
		Str("acronym", input.Acronym).
		Int("year", input.AcademicYear).
		Ints("postponed", report.Created).
		Msg("Created learning unit")
	return snapshot, report, nil
}

// createUnitWithSnapshot writes the container, container year, entity links,
// unit row, first snapshot and its components inside the ambient transaction.
func createUnitWithSnapshot(ctx context.Context, tx repositories.Store, input *CreateSnapshotInput, firstYear *models.AcademicYear) (*models.LearningUnitYear, error) {
	if err := checkEntitiesActive(ctx, tx, input.Entities, firstYear); err != nil {
		return nil, err
	}

	containerID, err := tx.Containers().CreateContainer(ctx)
	if err != nil {
		return nil, fmt.Errorf("error creating container: %w", err)
	}
	containerYear := &models.LearningContainerYear{
		LearningContainerID: containerID,
		AcademicYear:        input.AcademicYear,
		Acronym:             input.Acronym,
		ContainerType:       input.ContainerType,
		CommonTitleFr:       input.CommonTitleFr,
	}
	containerYearID, err := tx.Containers().Create(ctx, containerYear)
	if err != nil {
		return nil, fmt.Errorf("error creating container year: %w", err)
	}
	for link, entityID := range input.Entities {
		if err := tx.Containers().SetEntity(ctx, containerYearID, link, entityID); err != nil {
			return nil, fmt.Errorf("error linking entity %d as %s: %w", entityID, link, err)
		}
	}

	unit := &models.LearningUnit{StartYear: input.AcademicYear, EndYear: input.EndYear}
	unitID, err := tx.LearningUnits().Create(ctx, unit)
	if err != nil {
		return nil, fmt.Errorf("error creating unit: %w", err)
	}

	snapshot := &models.LearningUnitYear{
		LearningUnitID:          unitID,
		LearningContainerYearID: containerYearID,
		AcademicYear:            input.AcademicYear,
		Acronym:                 input.Acronym,
		SpecificTitleFr:         input.SpecificTitleFr,
		Subtype:                 input.Subtype,
		Credits:                 input.Credits,
		Status:                  input.Status,
		Language:                input.Language,
		Campus:                  input.Campus,
		Periodicity:             input.Periodicity,
		Quadrimester:            input.Quadrimester,
		Session:                 input.Session,
	}
	snapshotID, err := tx.Snapshots().Create(ctx, snapshot)
	if err != nil {
		return nil, fmt.Errorf("error creating snapshot: %w", err)
	}
	snapshot.ID = snapshotID

	for compType, vd := range input.Volumes {
		component := &models.LearningComponentYear{
			LearningUnitYearID: snapshotID,
			Type:               compType,
			Acronym:            componentAcronym(compType),
		}
		applyVolumeDelta(component, vd)
		if _, err := tx.Components().Create(ctx, component); err != nil {
			return nil, fmt.Errorf("error creating component %s: %w", compType, err)
		}
	}
	return snapshot, nil
}
