package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/osis-edu/osis/internal/app/models"
	"github.com/osis-edu/osis/internal/app/repositories"
	"github.com/osis-edu/osis/internal/pkg/apperrors"
	"github.com/osis-edu/osis/internal/pkg/logger"
	"github.com/osis-edu/osis/internal/pkg/validation"
)

// LearningUnitService reads and edits year-snapshots of learning units.
type LearningUnitService struct {
	store       repositories.Store
	years       *AcademicYearService
	consistency *ConsistencyService
	checker     PermissionChecker
}

// NewLearningUnitService creates a new LearningUnitService.
func NewLearningUnitService(store repositories.Store, years *AcademicYearService, consistency *ConsistencyService, checker PermissionChecker) *LearningUnitService {
	return &LearningUnitService{
		store:       store,
		years:       years,
		consistency: consistency,
		checker:     checker,
	}
}

// SnapshotByID returns one snapshot with its unit and container loaded.
func (s *LearningUnitService) SnapshotByID(ctx context.Context, id int64) (*models.LearningUnitYear, error) {
	snapshot, err := s.store.Snapshots().ByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperrors.NewNotFound("learning unit year %d not found", id)
		}
		return nil, fmt.Errorf("error getting snapshot %d: %w", id, err)
	}
	if err := s.attachRelations(ctx, snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// SnapshotByAcronym resolves a snapshot by acronym within one academic year.
func (s *LearningUnitService) SnapshotByAcronym(ctx context.Context, acronym string, year int) (*models.LearningUnitYear, error) {
	snapshot, err := s.store.Snapshots().ByAcronymAndYear(ctx, acronym, year)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperrors.NewNotFound("learning unit %s not found in %d", acronym, year)
		}
		return nil, fmt.Errorf("error getting snapshot %s/%d: %w", acronym, year, err)
	}
	if err := s.attachRelations(ctx, snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// SnapshotsOf lists every snapshot of a unit, ordered by year.
func (s *LearningUnitService) SnapshotsOf(ctx context.Context, learningUnitID int64) ([]*models.LearningUnitYear, error) {
	snapshots, err := s.store.Snapshots().ByUnit(ctx, learningUnitID)
	if err != nil {
		return nil, fmt.Errorf("error listing snapshots of unit %d: %w", learningUnitID, err)
	}
	return snapshots, nil
}

// Partims lists the partim siblings of a snapshot for its year.
func (s *LearningUnitService) Partims(ctx context.Context, snapshot *models.LearningUnitYear) ([]*models.LearningUnitYear, error) {
	siblings, err := s.store.Snapshots().ByContainerYear(ctx, snapshot.LearningContainerYearID)
	if err != nil {
		return nil, fmt.Errorf("error listing siblings of snapshot %d: %w", snapshot.ID, err)
	}
	partims := []*models.LearningUnitYear{}
	for _, sib := range siblings {
		if sib.IsPartim() && sib.ID != snapshot.ID {
			partims = append(partims, sib)
		}
	}
	return partims, nil
}

// FullSibling returns the full snapshot sharing a partim's container year, or
// nil when the snapshot is itself the full one.
func (s *LearningUnitService) FullSibling(ctx context.Context, snapshot *models.LearningUnitYear) (*models.LearningUnitYear, error) {
	if !snapshot.IsPartim() {
		return nil, nil
	}
	siblings, err := s.store.Snapshots().ByContainerYear(ctx, snapshot.LearningContainerYearID)
	if err != nil {
		return nil, fmt.Errorf("error listing siblings of snapshot %d: %w", snapshot.ID, err)
	}
	for _, sib := range siblings {
		if !sib.IsPartim() {
			return sib, nil
		}
	}
	return nil, nil
}

// NextYearSnapshot returns the same unit's snapshot for the following year, or
// ErrNotFound when the unit stops there.
func (s *LearningUnitService) NextYearSnapshot(ctx context.Context, snapshot *models.LearningUnitYear) (*models.LearningUnitYear, error) {
	next, err := s.store.Snapshots().ByUnitAndYear(ctx, snapshot.LearningUnitID, snapshot.AcademicYear+1)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperrors.NewNotFound("unit %d has no snapshot in %d", snapshot.LearningUnitID, snapshot.AcademicYear+1)
		}
		return nil, fmt.Errorf("error getting next-year snapshot: %w", err)
	}
	return next, nil
}

// Warnings collects the non-blocking warnings of a snapshot: volume and
// quadrimester coherence, partim bounds, periodicity compatibility,
// non-integer credits and existence past the unit's end year.
func (s *LearningUnitService) Warnings(ctx context.Context, snapshot *models.LearningUnitYear) ([]string, error) {
	data, err := loadYearData(ctx, s.store, snapshot)
	if err != nil {
		return nil, err
	}

	var full *YearData
	var siblings []*YearData
	if snapshot.IsPartim() {
		fullSnap, err := s.FullSibling(ctx, snapshot)
		if err != nil {
			return nil, err
		}
		if fullSnap != nil {
			if full, err = loadYearData(ctx, s.store, fullSnap); err != nil {
				return nil, err
			}
		}
	} else {
		partims, err := s.Partims(ctx, snapshot)
		if err != nil {
			return nil, err
		}
		for _, p := range partims {
			pd, err := loadYearData(ctx, s.store, p)
			if err != nil {
				return nil, err
			}
			siblings = append(siblings, pd)
		}
	}

	warnings := s.consistency.SnapshotWarnings(data, full, siblings)

	unit, err := s.store.LearningUnits().ByID(ctx, snapshot.LearningUnitID)
	if err != nil {
		return nil, fmt.Errorf("error getting unit %d: %w", snapshot.LearningUnitID, err)
	}
	if unit.EndYear != nil && snapshot.AcademicYear > *unit.EndYear {
		warnings = append(warnings, fmt.Sprintf(
			"%s exists in %d although the unit ends in %d", snapshot.Acronym, snapshot.AcademicYear, *unit.EndYear))
	}

	return warnings, nil
}

// UpdateSnapshot applies a field delta to one snapshot under the edit
// permission. Container-level fields are rejected on partims; renaming a full
// snapshot renames its partim siblings to the new prefix. The update fails
// with ErrConcurrentUpdate when the snapshot changed since expectedChanged.
func (s *LearningUnitService) UpdateSnapshot(ctx context.Context, person *models.Person, snapshotID int64, delta *models.SnapshotDelta, expectedChanged time.Time) error {
	snapshot, err := s.store.Snapshots().ByID(ctx, snapshotID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperrors.NewNotFound("learning unit year %d not found", snapshotID)
		}
		return fmt.Errorf("error getting snapshot %d: %w", snapshotID, err)
	}

	entities, err := s.store.Containers().Entities(ctx, snapshot.LearningContainerYearID)
	if err != nil {
		return fmt.Errorf("error loading container entities: %w", err)
	}
	decision, err := s.checker.Check(ctx, PermEditLearningUnit, person, Target{
		Snapshot: snapshot,
		EntityID: entities[models.EntityRequirement],
	})
	if err != nil {
		return fmt.Errorf("error evaluating permission: %w", err)
	}
	if !decision.Allowed {
		return apperrors.NewPermissionDenied(decision.Perm)
	}

	if err := validateDelta(snapshot, delta); err != nil {
		return err
	}

	return s.store.Atomic(ctx, func(tx repositories.Store) error {
		return applySnapshotUpdate(ctx, tx, snapshot, delta, expectedChanged)
	})
}

// SetContainerEntities relinks entities on a snapshot's container year. Only
// the full snapshot may change them, and every entity must be active on the
// year's start date.
func (s *LearningUnitService) SetContainerEntities(ctx context.Context, person *models.Person, snapshotID int64, links map[models.EntityLink]int64) error {
	snapshot, err := s.store.Snapshots().ByID(ctx, snapshotID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperrors.NewNotFound("learning unit year %d not found", snapshotID)
		}
		return fmt.Errorf("error getting snapshot %d: %w", snapshotID, err)
	}
	if snapshot.IsPartim() {
		return apperrors.NewIntegrityFailure("entities of %s are managed on the full unit", snapshot.Acronym)
	}

	current, err := s.store.Containers().Entities(ctx, snapshot.LearningContainerYearID)
	if err != nil {
		return fmt.Errorf("error loading container entities: %w", err)
	}
	decision, err := s.checker.Check(ctx, PermEditLearningUnit, person, Target{
		Snapshot: snapshot,
		EntityID: current[models.EntityRequirement],
	})
	if err != nil {
		return fmt.Errorf("error evaluating permission: %w", err)
	}
	if !decision.Allowed {
		return apperrors.NewPermissionDenied(decision.Perm)
	}

	year, err := s.years.YearByValue(ctx, snapshot.AcademicYear)
	if err != nil {
		return err
	}

	return s.store.Atomic(ctx, func(tx repositories.Store) error {
		for link, entityID := range links {
			if _, err := tx.Entities().ActiveVersion(ctx, entityID, year.StartDate); err != nil {
				if errors.Is(err, repositories.ErrNotFound) {
					return apperrors.NewIntegrityFailure(
						"entity %d has no active version on %s", entityID, year.StartDate.Format("2006-01-02"))
				}
				return fmt.Errorf("error checking entity %d: %w", entityID, err)
			}
			if err := tx.Containers().SetEntity(ctx, snapshot.LearningContainerYearID, link, entityID); err != nil {
				return fmt.Errorf("error linking entity %d as %s: %w", entityID, link, err)
			}
		}
		return nil
	})
}

// DeleteSnapshot removes one year-snapshot. The snapshot must carry no
// enrollments, attributions, group memberships or proposal, and a full
// snapshot cannot go while partim siblings remain. Emptied container years and
// units are removed with it.
func (s *LearningUnitService) DeleteSnapshot(ctx context.Context, person *models.Person, snapshotID int64) error {
	snapshot, err := s.store.Snapshots().ByID(ctx, snapshotID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperrors.NewNotFound("learning unit year %d not found", snapshotID)
		}
		return fmt.Errorf("error getting snapshot %d: %w", snapshotID, err)
	}

	entities, err := s.store.Containers().Entities(ctx, snapshot.LearningContainerYearID)
	if err != nil {
		return fmt.Errorf("error loading container entities: %w", err)
	}
	decision, err := s.checker.Check(ctx, PermDeleteLearningUnit, person, Target{
		Snapshot: snapshot,
		EntityID: entities[models.EntityRequirement],
	})
	if err != nil {
		return fmt.Errorf("error evaluating permission: %w", err)
	}
	if !decision.Allowed {
		return apperrors.NewPermissionDenied(decision.Perm)
	}

	return s.store.Atomic(ctx, func(tx repositories.Store) error {
		if err := checkDeletable(ctx, tx, snapshot); err != nil {
			return err
		}
		return deleteSnapshotCascading(ctx, tx, snapshot)
	})
}

// ReplaceVolumes applies volume deltas to the snapshot's components, creating
// a component when the delta names a type the snapshot lacks.
func (s *LearningUnitService) ReplaceVolumes(ctx context.Context, person *models.Person, snapshotID int64, volumes map[models.ComponentType]*models.VolumeDelta) error {
	delta := &models.SnapshotDelta{Volumes: volumes}
	snapshot, err := s.store.Snapshots().ByID(ctx, snapshotID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperrors.NewNotFound("learning unit year %d not found", snapshotID)
		}
		return fmt.Errorf("error getting snapshot %d: %w", snapshotID, err)
	}
	return s.UpdateSnapshot(ctx, person, snapshotID, delta, snapshot.Changed)
}

func (s *LearningUnitService) attachRelations(ctx context.Context, snapshot *models.LearningUnitYear) error {
	unit, err := s.store.LearningUnits().ByID(ctx, snapshot.LearningUnitID)
	if err != nil {
		return fmt.Errorf("error getting unit %d: %w", snapshot.LearningUnitID, err)
	}
	container, err := s.store.Containers().ByID(ctx, snapshot.LearningContainerYearID)
	if err != nil {
		return fmt.Errorf("error getting container year %d: %w", snapshot.LearningContainerYearID, err)
	}
	entities, err := s.store.Containers().Entities(ctx, container.ID)
	if err != nil {
		return fmt.Errorf("error loading container entities: %w", err)
	}
	container.Entities = entities
	components, err := s.store.Components().BySnapshot(ctx, snapshot.ID)
	if err != nil {
		return fmt.Errorf("error loading components: %w", err)
	}
	snapshot.LearningUnit = unit
	snapshot.ContainerYear = container
	snapshot.Components = components
	return nil
}

// validateDelta enforces the field rules of an update before anything is
// written: credit bounds, container fields on full snapshots only, and the
// partim acronym rule (full prefix plus one letter).
func validateDelta(snapshot *models.LearningUnitYear, delta *models.SnapshotDelta) error {
	if delta.Credits != nil && (*delta.Credits < models.MinCredits || *delta.Credits > models.MaxCredits) {
		return apperrors.NewIntegrityFailure(
			"credits must be between %d and %d, got %s", models.MinCredits, models.MaxCredits, formatFloat(*delta.Credits))
	}

	if snapshot.IsPartim() {
		if delta.CommonTitleFr != nil || delta.CommonTitleEn != nil || delta.ContainerType != nil || delta.Team != nil || len(delta.Entities) > 0 {
			return apperrors.NewIntegrityFailure(
				"shared fields of %s are managed on the full unit", snapshot.Acronym)
		}
		if delta.Acronym != nil {
			fullAcronym := snapshot.Acronym[:len(snapshot.Acronym)-1]
			if len(*delta.Acronym) != len(fullAcronym)+1 {
				return apperrors.NewIntegrityFailure(
					"partim acronym %q must be %s plus one letter", *delta.Acronym, fullAcronym)
			}
			letter := (*delta.Acronym)[len(*delta.Acronym)-1:]
			prefix := (*delta.Acronym)[:len(*delta.Acronym)-1]
			if !strings.EqualFold(prefix, fullAcronym) {
				return apperrors.NewIntegrityFailure(
					"partim acronym %s must keep the prefix %s", *delta.Acronym, fullAcronym)
			}
			if !validation.IsPartimLetter(letter) {
				return apperrors.NewIntegrityFailure("partim letter %q must be an uppercase letter", letter)
			}
		}
	}
	return nil
}

// applySnapshotUpdate writes a delta onto a snapshot, its container year and
// its components inside the ambient transaction. Renaming a full snapshot
// renames the container year and every partim sibling.
func applySnapshotUpdate(ctx context.Context, tx repositories.Store, snapshot *models.LearningUnitYear, delta *models.SnapshotDelta, expectedChanged time.Time) error {
	oldAcronym := snapshot.Acronym
	applySnapshotDelta(snapshot, delta)

	if err := tx.Snapshots().Update(ctx, snapshot, expectedChanged); err != nil {
		if errors.Is(err, apperrors.ErrConcurrentUpdate) {
			return err
		}
		return fmt.Errorf("error updating snapshot %d: %w", snapshot.ID, err)
	}

	if deltaTouchesContainer(delta) {
		container, err := tx.Containers().ByID(ctx, snapshot.LearningContainerYearID)
		if err != nil {
			return fmt.Errorf("error getting container year %d: %w", snapshot.LearningContainerYearID, err)
		}
		applyContainerDelta(container, delta)
		if !snapshot.IsPartim() && delta.Acronym != nil {
			container.Acronym = *delta.Acronym
		}
		if err := tx.Containers().Update(ctx, container); err != nil {
			return fmt.Errorf("error updating container year %d: %w", container.ID, err)
		}
	}

	for link, entityID := range delta.Entities {
		if err := tx.Containers().SetEntity(ctx, snapshot.LearningContainerYearID, link, entityID); err != nil {
			return fmt.Errorf("error linking entity %d as %s: %w", entityID, link, err)
		}
	}

	if len(delta.Volumes) > 0 {
		if err := applyVolumeDeltas(ctx, tx, snapshot, delta.Volumes); err != nil {
			return err
		}
	}

	if !snapshot.IsPartim() && delta.TouchesAcronym(oldAcronym) {
		if err := renamePartimSiblings(ctx, tx, snapshot, oldAcronym, *delta.Acronym); err != nil {
			return err
		}
	}
	return nil
}

func deltaTouchesContainer(delta *models.SnapshotDelta) bool {
	return delta.CommonTitleFr != nil || delta.CommonTitleEn != nil ||
		delta.ContainerType != nil || delta.Team != nil || delta.Acronym != nil
}

// applySnapshotDelta copies the non-nil scalar fields of a delta onto a
// snapshot in memory.
func applySnapshotDelta(snapshot *models.LearningUnitYear, delta *models.SnapshotDelta) {
	if delta.Acronym != nil {
		snapshot.Acronym = *delta.Acronym
	}
	if delta.SpecificTitleFr != nil {
		snapshot.SpecificTitleFr = *delta.SpecificTitleFr
	}
	if delta.SpecificTitleEn != nil {
		snapshot.SpecificTitleEn = *delta.SpecificTitleEn
	}
	if delta.Credits != nil {
		snapshot.Credits = *delta.Credits
	}
	if delta.Status != nil {
		snapshot.Status = *delta.Status
	}
	if delta.Language != nil {
		snapshot.Language = *delta.Language
	}
	if delta.Campus != nil {
		snapshot.Campus = *delta.Campus
	}
	if delta.Periodicity != nil {
		snapshot.Periodicity = *delta.Periodicity
	}
	if delta.Quadrimester != nil {
		snapshot.Quadrimester = delta.Quadrimester
	}
	if delta.Session != nil {
		snapshot.Session = delta.Session
	}
	if delta.InternshipSubtype != nil {
		snapshot.InternshipSubtype = delta.InternshipSubtype
	}
	if delta.AttributionProcedure != nil {
		snapshot.AttributionProcedure = delta.AttributionProcedure
	}
	if delta.ProfessionalIntegration != nil {
		snapshot.ProfessionalIntegration = *delta.ProfessionalIntegration
	}
	if delta.FacultyRemark != nil {
		snapshot.FacultyRemark = *delta.FacultyRemark
	}
	if delta.OtherRemark != nil {
		snapshot.OtherRemark = *delta.OtherRemark
	}
}

// applyContainerDelta copies the shared fields of a delta onto a container
// year in memory.
func applyContainerDelta(container *models.LearningContainerYear, delta *models.SnapshotDelta) {
	if delta.CommonTitleFr != nil {
		container.CommonTitleFr = *delta.CommonTitleFr
	}
	if delta.CommonTitleEn != nil {
		container.CommonTitleEn = *delta.CommonTitleEn
	}
	if delta.ContainerType != nil {
		container.ContainerType = *delta.ContainerType
	}
	if delta.Team != nil {
		container.Team = *delta.Team
	}
}

// applyVolumeDeltas writes volume deltas onto the snapshot's components,
// creating missing component types on the fly.
func applyVolumeDeltas(ctx context.Context, tx repositories.Store, snapshot *models.LearningUnitYear, volumes map[models.ComponentType]*models.VolumeDelta) error {
	components, err := tx.Components().BySnapshot(ctx, snapshot.ID)
	if err != nil {
		return fmt.Errorf("error loading components: %w", err)
	}
	byType := componentsByType(components)

	for compType, vd := range volumes {
		component, ok := byType[compType]
		if !ok {
			component = &models.LearningComponentYear{
				LearningUnitYearID: snapshot.ID,
				Type:               compType,
				Acronym:            componentAcronym(compType),
			}
			applyVolumeDelta(component, vd)
			if _, err := tx.Components().Create(ctx, component); err != nil {
				return fmt.Errorf("error creating component %s: %w", compType, err)
			}
			continue
		}
		applyVolumeDelta(component, vd)
		if err := tx.Components().Update(ctx, component); err != nil {
			return fmt.Errorf("error updating component %d: %w", component.ID, err)
		}
	}
	return nil
}

func applyVolumeDelta(component *models.LearningComponentYear, vd *models.VolumeDelta) {
	if vd.VolQ1 != nil {
		component.VolQ1 = *vd.VolQ1
	}
	if vd.VolQ2 != nil {
		component.VolQ2 = *vd.VolQ2
	}
	if vd.VolTotalAnnual != nil {
		component.VolTotalAnnual = *vd.VolTotalAnnual
	}
	if vd.PlannedClasses != nil {
		component.PlannedClasses = *vd.PlannedClasses
	}
	if vd.RepartitionRequirement != nil {
		component.RepartitionRequirement = *vd.RepartitionRequirement
	}
	if vd.RepartitionAdditional1 != nil {
		component.RepartitionAdditional1 = *vd.RepartitionAdditional1
	}
	if vd.RepartitionAdditional2 != nil {
		component.RepartitionAdditional2 = *vd.RepartitionAdditional2
	}
}

func componentAcronym(t models.ComponentType) string {
	if t == models.ComponentPracticalExercises {
		return "TP"
	}
	return "CM"
}

// renamePartimSiblings propagates a full-snapshot rename to every partim of
// the same container year, keeping each partim's letter.
func renamePartimSiblings(ctx context.Context, tx repositories.Store, full *models.LearningUnitYear, oldAcronym, newAcronym string) error {
	siblings, err := tx.Snapshots().ByContainerYear(ctx, full.LearningContainerYearID)
	if err != nil {
		return fmt.Errorf("error listing siblings of snapshot %d: %w", full.ID, err)
	}
	for _, sib := range siblings {
		if !sib.IsPartim() {
			continue
		}
		letter := sib.PartimLetter()
		sib.Acronym = newAcronym + letter
		if err := tx.Snapshots().Update(ctx, sib, sib.Changed); err != nil {
			return fmt.Errorf("error renaming partim %d: %w", sib.ID, err)
		}
		logger.Debug().Str("from", oldAcronym+letter).Str("to", sib.Acronym).Msg("Renamed partim after full rename")
	}
	return nil
}

// checkUsageFree blocks deletion of a snapshot that carries enrollments,
// attributions or group memberships.
func checkUsageFree(ctx context.Context, tx repositories.Store, snapshot *models.LearningUnitYear) error {
	usage, err := tx.Usage().Usage(ctx, snapshot.ID)
	if err != nil {
		return fmt.Errorf("error counting usage of snapshot %d: %w", snapshot.ID, err)
	}
	if usage.Blocked() {
		return apperrors.NewIntegrityFailure(
			"%s in %d is used: %d enrollments, %d attributions, %d group memberships",
			snapshot.Acronym, snapshot.AcademicYear, usage.Enrollments, usage.Attributions, usage.GroupMemberships)
	}
	return nil
}

// checkDeletable enforces every guard that blocks snapshot deletion.
func checkDeletable(ctx context.Context, tx repositories.Store, snapshot *models.LearningUnitYear) error {
	if err := checkUsageFree(ctx, tx, snapshot); err != nil {
		return err
	}

	if _, err := tx.Proposals().BySnapshot(ctx, snapshot.ID); err == nil {
		return apperrors.NewIntegrityFailure(
			"%s in %d is attached to a proposal", snapshot.Acronym, snapshot.AcademicYear)
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("error checking proposal of snapshot %d: %w", snapshot.ID, err)
	}

	if !snapshot.IsPartim() {
		siblings, err := tx.Snapshots().ByContainerYear(ctx, snapshot.LearningContainerYearID)
		if err != nil {
			return fmt.Errorf("error listing siblings of snapshot %d: %w", snapshot.ID, err)
		}
		for _, sib := range siblings {
			if sib.IsPartim() {
				return apperrors.NewIntegrityFailure(
					"%s in %d still has partim %s", snapshot.Acronym, snapshot.AcademicYear, sib.Acronym)
			}
		}
	}
	return nil
}

// deleteSnapshotCascading removes the snapshot and cleans up the container
// year and the unit when they become empty.
func deleteSnapshotCascading(ctx context.Context, tx repositories.Store, snapshot *models.LearningUnitYear) error {
	if err := tx.Snapshots().Delete(ctx, snapshot.ID); err != nil {
		return fmt.Errorf("error deleting snapshot %d: %w", snapshot.ID, err)
	}

	siblings, err := tx.Snapshots().ByContainerYear(ctx, snapshot.LearningContainerYearID)
	if err != nil {
		return fmt.Errorf("error listing siblings of snapshot %d: %w", snapshot.ID, err)
	}
	if len(siblings) == 0 {
		if err := tx.Containers().Delete(ctx, snapshot.LearningContainerYearID); err != nil {
			return fmt.Errorf("error deleting container year %d: %w", snapshot.LearningContainerYearID, err)
		}
	}

	remaining, err := tx.Snapshots().ByUnit(ctx, snapshot.LearningUnitID)
	if err != nil {
		return fmt.Errorf("error listing snapshots of unit %d: %w", snapshot.LearningUnitID, err)
	}
	if len(remaining) == 0 {
		if err := tx.LearningUnits().Delete(ctx, snapshot.LearningUnitID); err != nil {
			return fmt.Errorf("error deleting unit %d: %w", snapshot.LearningUnitID, err)
		}
	}
	return nil
}
