package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/osis-edu/osis/internal/app/models"
	"github.com/osis-edu/osis/internal/app/repositories"
	"github.com/osis-edu/osis/internal/pkg/apperrors"
	"github.com/osis-edu/osis/internal/pkg/logger"
	"github.com/osis-edu/osis/internal/pkg/notify"
	"github.com/osis-edu/osis/internal/pkg/validation"
)

// Result levels of a batch action, per proposal.
const (
	LevelSuccess = "SUCCESS"
	LevelError   = "ERROR"
	LevelInfo    = "INFO"
)

// BatchAction is one workflow operation applied to a set of proposals. Run is
// executed per proposal inside its own transaction.
type BatchAction struct {
	Name string
	Run  func(ctx context.Context, person *models.Person, proposal *models.Proposal) error
}

// ProposalService drives the proposal workflow: creation, edition under
// proposal, state transitions, cancellation and consolidation.
type ProposalService struct {
	store        repositories.Store
	years        *AcademicYearService
	postponement *PostponementService
	checker      PermissionChecker
	sink         notify.Sink
}

// NewProposalService creates a new ProposalService.
func NewProposalService(store repositories.Store, years *AcademicYearService, postponement *PostponementService, checker PermissionChecker, sink notify.Sink) *ProposalService {
	return &ProposalService{
		store:        store,
		years:        years,
		postponement: postponement,
		checker:      checker,
		sink:         sink,
	}
}

// ByID returns one proposal with its snapshot loaded.
func (s *ProposalService) ByID(ctx context.Context, id int64) (*models.Proposal, error) {
	proposal, err := s.store.Proposals().ByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperrors.NewNotFound("proposal %d not found", id)
		}
		return nil, fmt.Errorf("error getting proposal %d: %w", id, err)
	}
	snapshot, err := s.store.Snapshots().ByID(ctx, proposal.LearningUnitYearID)
	if err != nil {
		return nil, fmt.Errorf("error getting snapshot %d: %w", proposal.LearningUnitYearID, err)
	}
	proposal.LearningUnitYear = snapshot
	return proposal, nil
}

// ProposeCreation creates a new unit limited to one year and attaches a
// CREATION proposal to it. The unit's intended end year is stored on the unit
// row; consolidation extends the snapshots to it.
func (s *ProposalService) ProposeCreation(ctx context.Context, person *models.Person, input *CreateSnapshotInput, entityID int64, folderID int) (*models.Proposal, error) {
	decision, err := s.checker.Check(ctx, PermProposeLearningUnit, person, Target{EntityID: entityID})
	if err != nil {
		return nil, fmt.Errorf("error evaluating permission: %w", err)
	}
	if !decision.Allowed {
		return nil, apperrors.NewPermissionDenied(decision.Perm)
	}

	if err := validation.Struct(input); err != nil {
		return nil, apperrors.NewIntegrityFailure("invalid payload: %v", err)
	}

	current, err := s.years.CurrentYear(ctx)
	if err != nil {
		return nil, err
	}
	horizon, err := s.years.MaxAdjournment(ctx)
	if err != nil {
		return nil, err
	}
	if input.AcademicYear < current.Year || input.AcademicYear > horizon {
		return nil, apperrors.NewInvalidYear(input.AcademicYear)
	}
	if _, err := s.store.Snapshots().ByAcronymAndYear(ctx, input.Acronym, input.AcademicYear); err == nil {
		return nil, apperrors.NewIntegrityFailure("%s already exists in %d", input.Acronym, input.AcademicYear)
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("error checking acronym %s: %w", input.Acronym, err)
	}

	firstYear, err := s.years.YearByValue(ctx, input.AcademicYear)
	if err != nil {
		return nil, err
	}

	var proposal *models.Proposal
	err = s.store.Atomic(ctx, func(tx repositories.Store) error {
		snapshot, err := createUnitWithSnapshot(ctx, tx, input, firstYear)
		if err != nil {
			return err
		}
		proposal, err = s.createProposal(ctx, tx, person, snapshot, models.ProposalCreation, entityID, folderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return proposal, nil
}

// ProposeModification attaches a MODIFICATION proposal to an existing
// snapshot, capturing its state for a later rollback. The concrete type is
// rederived from the edits made afterwards.
func (s *ProposalService) ProposeModification(ctx context.Context, person *models.Person, snapshotID int64, entityID int64, folderID int) (*models.Proposal, error) {
	return s.proposeOnExisting(ctx, person, snapshotID, models.ProposalModification, PermModifyByProposal, entityID, folderID, nil)
}

// ProposeSuppression attaches a SUPPRESSION proposal and stores the requested
// end year on the unit row. Future snapshots stay until consolidation.
func (s *ProposalService) ProposeSuppression(ctx context.Context, person *models.Person, snapshotID int64, endYear *int, entityID int64, folderID int) (*models.Proposal, error) {
	horizon, err := s.years.MaxAdjournment(ctx)
	if err != nil {
		return nil, err
	}
	if endYear != nil && *endYear > horizon {
		return nil, apperrors.NewInvalidYear(*endYear)
	}
	return s.proposeOnExisting(ctx, person, snapshotID, models.ProposalSuppression, PermModifyEndYearProposal, entityID, folderID, func(ctx context.Context, tx repositories.Store, snapshot *models.LearningUnitYear) error {
		if endYear != nil && *endYear < snapshot.AcademicYear {
			return apperrors.NewInvalidYear(*endYear)
		}
		return tx.LearningUnits().SetEndYear(ctx, snapshot.LearningUnitID, endYear)
	})
}

func (s *ProposalService) proposeOnExisting(ctx context.Context, person *models.Person, snapshotID int64, proposalType models.ProposalType, perm string, entityID int64, folderID int, extra func(context.Context, repositories.Store, *models.LearningUnitYear) error) (*models.Proposal, error) {
	snapshot, err := s.store.Snapshots().ByID(ctx, snapshotID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperrors.NewNotFound("learning unit year %d not found", snapshotID)
		}
		return nil, fmt.Errorf("error getting snapshot %d: %w", snapshotID, err)
	}

	decision, err := s.checker.Check(ctx, perm, person, Target{Snapshot: snapshot, EntityID: entityID})
	if err != nil {
		return nil, fmt.Errorf("error evaluating permission: %w", err)
	}
	if !decision.Allowed {
		return nil, apperrors.NewPermissionDenied(decision.Perm)
	}

	if _, err := s.store.Proposals().BySnapshot(ctx, snapshotID); err == nil {
		return nil, apperrors.NewIntegrityFailure("%s in %d already carries a proposal", snapshot.Acronym, snapshot.AcademicYear)
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("error checking proposal of snapshot %d: %w", snapshotID, err)
	}

	var proposal *models.Proposal
	err = s.store.Atomic(ctx, func(tx repositories.Store) error {
		var err error
		proposal, err = s.createProposal(ctx, tx, person, snapshot, proposalType, entityID, folderID)
		if err != nil {
			return err
		}
		if extra != nil {
			return extra(ctx, tx, snapshot)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return proposal, nil
}

// createProposal captures the initial data and writes the proposal row. The
// initial state follows the author's role.
func (s *ProposalService) createProposal(ctx context.Context, tx repositories.Store, person *models.Person, snapshot *models.LearningUnitYear, proposalType models.ProposalType, entityID int64, folderID int) (*models.Proposal, error) {
	initial, err := captureInitialData(ctx, tx, snapshot)
	if err != nil {
		return nil, err
	}

	state := models.StateFaculty
	if person.IsCentralManager() {
		state = models.StateCentral
	}

	proposal := &models.Proposal{
		UUID:               uuid.New(),
		LearningUnitYearID: snapshot.ID,
		Type:               proposalType,
		State:              state,
		InitialData:        *initial,
		AuthorID:           person.ID,
		EntityID:           entityID,
		FolderID:           folderID,
	}
	id, err := tx.Proposals().Create(ctx, proposal)
	if err != nil {
		if errors.Is(err, repositories.ErrProposalExists) {
			return nil, apperrors.NewIntegrityFailure("%s in %d already carries a proposal", snapshot.Acronym, snapshot.AcademicYear)
		}
		return nil, fmt.Errorf("error creating proposal: %w", err)
	}
	proposal.ID = id

	logger.Info().
		Str("acronym", snapshot.Acronym).
		Int("year", snapshot.AcademicYear).
		Str("type", string(proposalType)).
		Str("state", string(state)).
		Msg("Created proposal")
	return proposal, nil
}

// captureInitialData freezes the complete state of a snapshot into the
// self-contained blob a cancellation restores from.
func captureInitialData(ctx context.Context, tx repositories.Store, snapshot *models.LearningUnitYear) (*models.InitialData, error) {
	unit, err := tx.LearningUnits().ByID(ctx, snapshot.LearningUnitID)
	if err != nil {
		return nil, fmt.Errorf("error getting unit %d: %w", snapshot.LearningUnitID, err)
	}
	container, err := tx.Containers().ByID(ctx, snapshot.LearningContainerYearID)
	if err != nil {
		return nil, fmt.Errorf("error getting container year %d: %w", snapshot.LearningContainerYearID, err)
	}
	entities, err := tx.Containers().Entities(ctx, container.ID)
	if err != nil {
		return nil, fmt.Errorf("error loading container entities: %w", err)
	}
	components, err := tx.Components().BySnapshot(ctx, snapshot.ID)
	if err != nil {
		return nil, fmt.Errorf("error loading components: %w", err)
	}

	initial := &models.InitialData{
		LearningUnit: models.InitialLearningUnit{
			ID:        unit.ID,
			StartYear: unit.StartYear,
			EndYear:   unit.EndYear,
		},
		Snapshot: models.InitialSnapshot{
			ID:                      snapshot.ID,
			AcademicYear:            snapshot.AcademicYear,
			Acronym:                 snapshot.Acronym,
			SpecificTitleFr:         snapshot.SpecificTitleFr,
			SpecificTitleEn:         snapshot.SpecificTitleEn,
			Subtype:                 snapshot.Subtype,
			Credits:                 snapshot.Credits,
			Status:                  snapshot.Status,
			Language:                snapshot.Language,
			Campus:                  snapshot.Campus,
			Periodicity:             snapshot.Periodicity,
			Quadrimester:            snapshot.Quadrimester,
			Session:                 snapshot.Session,
			InternshipSubtype:       snapshot.InternshipSubtype,
			AttributionProcedure:    snapshot.AttributionProcedure,
			ProfessionalIntegration: snapshot.ProfessionalIntegration,
		},
		ContainerYear: models.InitialContainerYear{
			ID:                    container.ID,
			Acronym:               container.Acronym,
			ContainerType:         container.ContainerType,
			CommonTitleFr:         container.CommonTitleFr,
			CommonTitleEn:         container.CommonTitleEn,
			Team:                  container.Team,
			IsVacant:              container.IsVacant,
			TypeDeclarationVacant: container.TypeDeclarationVacant,
		},
		Entities:         entities,
		VolumesByAcronym: map[string]float64{},
	}
	for _, c := range components {
		initial.Components = append(initial.Components, models.InitialComponent{
			ID:                     c.ID,
			Type:                   c.Type,
			Acronym:                c.Acronym,
			VolQ1:                  c.VolQ1,
			VolQ2:                  c.VolQ2,
			VolTotalAnnual:         c.VolTotalAnnual,
			PlannedClasses:         c.PlannedClasses,
			RepartitionRequirement: c.RepartitionRequirement,
			RepartitionAdditional1: c.RepartitionAdditional1,
			RepartitionAdditional2: c.RepartitionAdditional2,
		})
		initial.VolumesByAcronym[c.Acronym] = c.VolGlobal()
	}
	return initial, nil
}

// EditSnapshot edits a snapshot under proposal and rederives the proposal
// type from the accumulated drift against the captured initial data. CREATION
// and SUPPRESSION proposals keep their type.
func (s *ProposalService) EditSnapshot(ctx context.Context, person *models.Person, proposalID int64, delta *models.SnapshotDelta, expectedChanged time.Time) error {
	proposal, err := s.ByID(ctx, proposalID)
	if err != nil {
		return err
	}
	snapshot := proposal.LearningUnitYear

	decision, err := s.checker.Check(ctx, PermEditProposal, person, Target{
		Snapshot: snapshot,
		Proposal: proposal,
		EntityID: proposal.EntityID,
	})
	if err != nil {
		return fmt.Errorf("error evaluating permission: %w", err)
	}
	if !decision.Allowed {
		return apperrors.NewPermissionDenied(decision.Perm)
	}
	if !proposal.InWorkflow() {
		return apperrors.NewIntegrityFailure("proposal %d is %s and cannot be edited", proposal.ID, proposal.State)
	}

	if err := validateDelta(snapshot, delta); err != nil {
		return err
	}

	return s.store.Atomic(ctx, func(tx repositories.Store) error {
		if err := applySnapshotUpdate(ctx, tx, snapshot, delta, expectedChanged); err != nil {
			return err
		}
		if proposal.Type == models.ProposalCreation || proposal.Type == models.ProposalSuppression {
			return nil
		}
		container, err := tx.Containers().ByID(ctx, snapshot.LearningContainerYearID)
		if err != nil {
			return fmt.Errorf("error getting container year %d: %w", snapshot.LearningContainerYearID, err)
		}
		entities, err := tx.Containers().Entities(ctx, container.ID)
		if err != nil {
			return fmt.Errorf("error loading container entities: %w", err)
		}
		components, err := tx.Components().BySnapshot(ctx, snapshot.ID)
		if err != nil {
			return fmt.Errorf("error loading components: %w", err)
		}
		derived := deriveType(&proposal.InitialData, snapshot, container, entities, components)
		if derived != proposal.Type {
			proposal.Type = derived
			if err := tx.Proposals().Update(ctx, proposal); err != nil {
				return fmt.Errorf("error updating proposal %d: %w", proposal.ID, err)
			}
		}
		return nil
	})
}

// deriveType classifies the drift of a snapshot against its initial data: a
// rename alone is a TRANSFORMATION, a rename plus other changes combines
// both, anything else is a MODIFICATION.
func deriveType(initial *models.InitialData, snapshot *models.LearningUnitYear,
	container *models.LearningContainerYear, entities map[models.EntityLink]int64,
	components []*models.LearningComponentYear) models.ProposalType {
	renamed := !strings.EqualFold(initial.Snapshot.Acronym, snapshot.Acronym)
	other := initial.Snapshot.SpecificTitleFr != snapshot.SpecificTitleFr ||
		initial.Snapshot.SpecificTitleEn != snapshot.SpecificTitleEn ||
		initial.Snapshot.Credits != snapshot.Credits ||
		initial.Snapshot.Status != snapshot.Status ||
		initial.Snapshot.Language != snapshot.Language ||
		initial.Snapshot.Campus != snapshot.Campus ||
		initial.Snapshot.Periodicity != snapshot.Periodicity ||
		!equalPtr(initial.Snapshot.Quadrimester, snapshot.Quadrimester) ||
		!equalPtr(initial.Snapshot.Session, snapshot.Session) ||
		!equalPtr(initial.Snapshot.InternshipSubtype, snapshot.InternshipSubtype) ||
		containerDrifted(&initial.ContainerYear, container) ||
		entitiesDrifted(initial.Entities, entities) ||
		componentsDrifted(initial.Components, components)

	switch {
	case renamed && other:
		return models.ProposalTransformationAndModification
	case renamed:
		return models.ProposalTransformation
	default:
		return models.ProposalModification
	}
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// containerDrifted compares the shared container fields against the captured
// state. The container acronym is left out: a rename of a FULL snapshot moves
// the container acronym along with it and is already counted as the rename.
func containerDrifted(initial *models.InitialContainerYear, container *models.LearningContainerYear) bool {
	return initial.ContainerType != container.ContainerType ||
		initial.CommonTitleFr != container.CommonTitleFr ||
		initial.CommonTitleEn != container.CommonTitleEn ||
		initial.Team != container.Team ||
		initial.IsVacant != container.IsVacant ||
		!equalPtr(initial.TypeDeclarationVacant, container.TypeDeclarationVacant)
}

func entitiesDrifted(initial, current map[models.EntityLink]int64) bool {
	if len(initial) != len(current) {
		return true
	}
	for link, id := range initial {
		if current[link] != id {
			return true
		}
	}
	return false
}

func componentsDrifted(initial []models.InitialComponent, components []*models.LearningComponentYear) bool {
	if len(initial) != len(components) {
		return true
	}
	byType := make(map[models.ComponentType]models.InitialComponent, len(initial))
	for _, c := range initial {
		byType[c.Type] = c
	}
	for _, c := range components {
		before, ok := byType[c.Type]
		if !ok {
			return true
		}
		if before.VolQ1 != c.VolQ1 ||
			before.VolQ2 != c.VolQ2 ||
			before.VolTotalAnnual != c.VolTotalAnnual ||
			before.PlannedClasses != c.PlannedClasses ||
			before.RepartitionRequirement != c.RepartitionRequirement ||
			before.RepartitionAdditional1 != c.RepartitionAdditional1 ||
			before.RepartitionAdditional2 != c.RepartitionAdditional2 {
			return true
		}
	}
	return false
}

// SubmitToCentral moves a faculty proposal to the central state.
func (s *ProposalService) SubmitToCentral(ctx context.Context, person *models.Person, proposalID int64) error {
	return s.transition(ctx, person, proposalID, models.StateCentral, func(p *models.Proposal) error {
		if p.State != models.StateFaculty {
			return apperrors.NewIntegrityFailure("proposal %d is %s, only FACULTY proposals can be submitted", p.ID, p.State)
		}
		return nil
	})
}

// Accept marks a central proposal accepted.
func (s *ProposalService) Accept(ctx context.Context, person *models.Person, proposalID int64) error {
	return s.transition(ctx, person, proposalID, models.StateAccepted, func(p *models.Proposal) error {
		if p.State != models.StateCentral {
			return apperrors.NewIntegrityFailure("proposal %d is %s, only CENTRAL proposals can be accepted", p.ID, p.State)
		}
		return nil
	})
}

// Refuse marks a central proposal refused.
func (s *ProposalService) Refuse(ctx context.Context, person *models.Person, proposalID int64) error {
	return s.transition(ctx, person, proposalID, models.StateRefused, func(p *models.Proposal) error {
		if p.State != models.StateCentral {
			return apperrors.NewIntegrityFailure("proposal %d is %s, only CENTRAL proposals can be refused", p.ID, p.State)
		}
		return nil
	})
}

// Suspend parks a pending proposal, remembering the state to resume to.
func (s *ProposalService) Suspend(ctx context.Context, person *models.Person, proposalID int64) error {
	return s.transition(ctx, person, proposalID, models.StateSuspended, func(p *models.Proposal) error {
		if p.State != models.StateFaculty && p.State != models.StateCentral {
			return apperrors.NewIntegrityFailure("proposal %d is %s and cannot be suspended", p.ID, p.State)
		}
		previous := p.State
		p.PreviousState = &previous
		return nil
	})
}

// Resume restores a suspended proposal to the state it was suspended from.
func (s *ProposalService) Resume(ctx context.Context, person *models.Person, proposalID int64) error {
	proposal, err := s.ByID(ctx, proposalID)
	if err != nil {
		return err
	}
	if proposal.State != models.StateSuspended || proposal.PreviousState == nil {
		return apperrors.NewIntegrityFailure("proposal %d is not suspended", proposalID)
	}
	return s.transition(ctx, person, proposalID, *proposal.PreviousState, func(p *models.Proposal) error {
		p.PreviousState = nil
		return nil
	})
}

// ForceState sets the workflow state directly, bypassing the transition
// rules. Guarded by its own permission.
func (s *ProposalService) ForceState(ctx context.Context, person *models.Person, proposalID int64, state models.ProposalState) error {
	proposal, err := s.ByID(ctx, proposalID)
	if err != nil {
		return err
	}

	decision, err := s.checker.Check(ctx, PermForceState, person, Target{
		Snapshot: proposal.LearningUnitYear,
		Proposal: proposal,
		EntityID: proposal.EntityID,
	})
	if err != nil {
		return fmt.Errorf("error evaluating permission: %w", err)
	}
	if !decision.Allowed {
		return apperrors.NewPermissionDenied(decision.Perm)
	}

	proposal.State = state
	if state != models.StateSuspended {
		proposal.PreviousState = nil
	}
	if err := s.store.Proposals().Update(ctx, proposal); err != nil {
		return fmt.Errorf("error updating proposal %d: %w", proposalID, err)
	}
	logger.Warn().Int64("proposal_id", proposalID).Str("state", string(state)).Msg("Forced proposal state")
	return nil
}

func (s *ProposalService) transition(ctx context.Context, person *models.Person, proposalID int64, to models.ProposalState, guard func(*models.Proposal) error) error {
	proposal, err := s.ByID(ctx, proposalID)
	if err != nil {
		return err
	}

	decision, err := s.checker.Check(ctx, PermEditProposal, person, Target{
		Snapshot: proposal.LearningUnitYear,
		Proposal: proposal,
		EntityID: proposal.EntityID,
	})
	if err != nil {
		return fmt.Errorf("error evaluating permission: %w", err)
	}
	if !decision.Allowed {
		return apperrors.NewPermissionDenied(decision.Perm)
	}

	if err := guard(proposal); err != nil {
		return err
	}
	proposal.State = to
	if err := s.store.Proposals().Update(ctx, proposal); err != nil {
		return fmt.Errorf("error updating proposal %d: %w", proposalID, err)
	}
	return nil
}

// Cancel discards a pending or refused proposal. A CREATION proposal deletes
// the unit it created; the others restore the captured initial data.
func (s *ProposalService) Cancel(ctx context.Context, person *models.Person, proposalID int64) error {
	proposal, err := s.ByID(ctx, proposalID)
	if err != nil {
		return err
	}

	decision, err := s.checker.Check(ctx, PermCancelProposal, person, Target{
		Snapshot: proposal.LearningUnitYear,
		Proposal: proposal,
		EntityID: proposal.EntityID,
	})
	if err != nil {
		return fmt.Errorf("error evaluating permission: %w", err)
	}
	if !decision.Allowed {
		return apperrors.NewPermissionDenied(decision.Perm)
	}
	if !proposal.Cancelable() {
		return apperrors.NewIntegrityFailure("proposal %d is %s and cannot be canceled", proposal.ID, proposal.State)
	}

	err = s.store.Atomic(ctx, func(tx repositories.Store) error {
		if err := tx.Proposals().Delete(ctx, proposal.ID); err != nil {
			return fmt.Errorf("error deleting proposal %d: %w", proposal.ID, err)
		}
		if proposal.Type == models.ProposalCreation {
			if err := checkUsageFree(ctx, tx, proposal.LearningUnitYear); err != nil {
				return err
			}
			return deleteSnapshotCascading(ctx, tx, proposal.LearningUnitYear)
		}
		return restoreInitialData(ctx, tx, proposal)
	})
	if err != nil {
		return err
	}

	logger.Info().
		Int64("proposal_id", proposal.ID).
		Str("type", string(proposal.Type)).
		Msg("Canceled proposal")
	return nil
}

// restoreInitialData writes the captured initial data back over the snapshot,
// its container year, entity links, components and the unit's end year.
func restoreInitialData(ctx context.Context, tx repositories.Store, proposal *models.Proposal) error {
	initial := &proposal.InitialData

	snapshot, err := tx.Snapshots().ByID(ctx, proposal.LearningUnitYearID)
	if err != nil {
		return fmt.Errorf("error getting snapshot %d: %w", proposal.LearningUnitYearID, err)
	}
	snapshot.Acronym = initial.Snapshot.Acronym
	snapshot.SpecificTitleFr = initial.Snapshot.SpecificTitleFr
	snapshot.SpecificTitleEn = initial.Snapshot.SpecificTitleEn
	snapshot.Credits = initial.Snapshot.Credits
	snapshot.Status = initial.Snapshot.Status
	snapshot.Language = initial.Snapshot.Language
	snapshot.Campus = initial.Snapshot.Campus
	snapshot.Periodicity = initial.Snapshot.Periodicity
	snapshot.Quadrimester = initial.Snapshot.Quadrimester
	snapshot.Session = initial.Snapshot.Session
	snapshot.InternshipSubtype = initial.Snapshot.InternshipSubtype
	snapshot.AttributionProcedure = initial.Snapshot.AttributionProcedure
	snapshot.ProfessionalIntegration = initial.Snapshot.ProfessionalIntegration
	if err := tx.Snapshots().Update(ctx, snapshot, snapshot.Changed); err != nil {
		return fmt.Errorf("error restoring snapshot %d: %w", snapshot.ID, err)
	}

	container, err := tx.Containers().ByID(ctx, snapshot.LearningContainerYearID)
	if err != nil {
		return fmt.Errorf("error getting container year %d: %w", snapshot.LearningContainerYearID, err)
	}
	container.Acronym = initial.ContainerYear.Acronym
	container.ContainerType = initial.ContainerYear.ContainerType
	container.CommonTitleFr = initial.ContainerYear.CommonTitleFr
	container.CommonTitleEn = initial.ContainerYear.CommonTitleEn
	container.Team = initial.ContainerYear.Team
	container.IsVacant = initial.ContainerYear.IsVacant
	container.TypeDeclarationVacant = initial.ContainerYear.TypeDeclarationVacant
	if err := tx.Containers().Update(ctx, container); err != nil {
		return fmt.Errorf("error restoring container year %d: %w", container.ID, err)
	}

	for link, entityID := range initial.Entities {
		if err := tx.Containers().SetEntity(ctx, container.ID, link, entityID); err != nil {
			return fmt.Errorf("error restoring entity %d as %s: %w", entityID, link, err)
		}
	}

	components, err := tx.Components().BySnapshot(ctx, snapshot.ID)
	if err != nil {
		return fmt.Errorf("error loading components: %w", err)
	}
	byType := componentsByType(components)
	for _, ic := range initial.Components {
		c, ok := byType[ic.Type]
		if !ok {
			continue
		}
		c.Acronym = ic.Acronym
		c.VolQ1 = ic.VolQ1
		c.VolQ2 = ic.VolQ2
		c.VolTotalAnnual = ic.VolTotalAnnual
		c.PlannedClasses = ic.PlannedClasses
		c.RepartitionRequirement = ic.RepartitionRequirement
		c.RepartitionAdditional1 = ic.RepartitionAdditional1
		c.RepartitionAdditional2 = ic.RepartitionAdditional2
		if err := tx.Components().Update(ctx, c); err != nil {
			return fmt.Errorf("error restoring component %d: %w", c.ID, err)
		}
	}

	if err := tx.LearningUnits().SetEndYear(ctx, snapshot.LearningUnitID, initial.LearningUnit.EndYear); err != nil {
		return fmt.Errorf("error restoring end year of unit %d: %w", snapshot.LearningUnitID, err)
	}
	return nil
}

// Consolidate makes the decision on a proposal definitive. Accepted CREATION
// proposals extend the unit to its end year; accepted SUPPRESSION proposals
// remove the snapshots past it; accepted modifications propagate the current
// values to the following year. Refused proposals roll back like a
// cancellation. Pending proposals are not eligible.
func (s *ProposalService) Consolidate(ctx context.Context, person *models.Person, proposalID int64) error {
	proposal, err := s.ByID(ctx, proposalID)
	if err != nil {
		return err
	}

	decision, err := s.checker.Check(ctx, PermConsolidateProposal, person, Target{
		Snapshot: proposal.LearningUnitYear,
		Proposal: proposal,
		EntityID: proposal.EntityID,
	})
	if err != nil {
		return fmt.Errorf("error evaluating permission: %w", err)
	}
	if !decision.Allowed {
		return apperrors.NewPermissionDenied(decision.Perm)
	}

	if proposal.State != models.StateAccepted && proposal.State != models.StateRefused {
		return fmt.Errorf("proposal %d is %s: %w", proposal.ID, proposal.State, apperrors.ErrNotEligibleForConsolidation)
	}

	err = s.store.Atomic(ctx, func(tx repositories.Store) error {
		if err := tx.Proposals().Delete(ctx, proposal.ID); err != nil {
			return fmt.Errorf("error deleting proposal %d: %w", proposal.ID, err)
		}

		if proposal.State == models.StateRefused {
			if proposal.Type == models.ProposalCreation {
				if err := checkUsageFree(ctx, tx, proposal.LearningUnitYear); err != nil {
					return err
				}
				return deleteSnapshotCascading(ctx, tx, proposal.LearningUnitYear)
			}
			return restoreInitialData(ctx, tx, proposal)
		}

		switch proposal.Type {
		case models.ProposalCreation:
			return s.consolidateCreation(ctx, tx, proposal)
		case models.ProposalSuppression:
			return s.consolidateSuppression(ctx, tx, proposal)
		default:
			return s.consolidateModification(ctx, tx, proposal)
		}
	})
	if err != nil {
		return err
	}

	logger.Info().
		Int64("proposal_id", proposal.ID).
		Str("type", string(proposal.Type)).
		Str("state", string(proposal.State)).
		Msg("Consolidated proposal")
	return nil
}

// consolidateCreation extends the created unit from its single snapshot up to
// its end year, or the adjournment horizon when open-ended.
func (s *ProposalService) consolidateCreation(ctx context.Context, tx repositories.Store, proposal *models.Proposal) error {
	snapshot := proposal.LearningUnitYear
	unit, err := tx.LearningUnits().ByID(ctx, snapshot.LearningUnitID)
	if err != nil {
		return fmt.Errorf("error getting unit %d: %w", snapshot.LearningUnitID, err)
	}
	horizon, err := s.years.MaxAdjournment(ctx)
	if err != nil {
		return err
	}
	return s.postponement.extend(ctx, tx, snapshot, snapshot.AcademicYear, unit.EndYearOr(horizon),
		&PostponementReport{Created: []int{}, Deleted: []int{}, Skipped: []int{}})
}

// consolidateSuppression deletes the snapshots past the end year the proposal
// stored on the unit.
func (s *ProposalService) consolidateSuppression(ctx context.Context, tx repositories.Store, proposal *models.Proposal) error {
	snapshot := proposal.LearningUnitYear
	unit, err := tx.LearningUnits().ByID(ctx, snapshot.LearningUnitID)
	if err != nil {
		return fmt.Errorf("error getting unit %d: %w", snapshot.LearningUnitID, err)
	}
	if unit.EndYear == nil {
		return nil
	}
	snapshots, err := tx.Snapshots().ByUnit(ctx, unit.ID)
	if err != nil {
		return fmt.Errorf("error listing snapshots of unit %d: %w", unit.ID, err)
	}
	return s.postponement.shorten(ctx, tx, snapshots, *unit.EndYear,
		&PostponementReport{Created: []int{}, Deleted: []int{}, Skipped: []int{}})
}

// consolidateModification pushes the consolidated values into every following
// year unconditionally.
func (s *ProposalService) consolidateModification(ctx context.Context, tx repositories.Store, proposal *models.Proposal) error {
	snapshot, err := tx.Snapshots().ByID(ctx, proposal.LearningUnitYearID)
	if err != nil {
		return fmt.Errorf("error getting snapshot %d: %w", proposal.LearningUnitYearID, err)
	}
	container, err := tx.Containers().ByID(ctx, snapshot.LearningContainerYearID)
	if err != nil {
		return fmt.Errorf("error getting container year %d: %w", snapshot.LearningContainerYearID, err)
	}
	entities, err := tx.Containers().Entities(ctx, container.ID)
	if err != nil {
		return fmt.Errorf("error loading container entities: %w", err)
	}
	components, err := tx.Components().BySnapshot(ctx, snapshot.ID)
	if err != nil {
		return fmt.Errorf("error loading components: %w", err)
	}

	delta := deltaFromState(snapshot, container, entities, components)
	current := snapshot
	for {
		next, err := tx.Snapshots().ByUnitAndYear(ctx, current.LearningUnitID, current.AcademicYear+1)
		if errors.Is(err, repositories.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error getting snapshot for %d: %w", current.AcademicYear+1, err)
		}
		if err := applySnapshotUpdate(ctx, tx, next, delta, next.Changed); err != nil {
			return err
		}
		current = next
	}
}

// deltaFromState turns a concrete snapshot state into a full delta, so the
// propagation helpers can replay it on other years.
func deltaFromState(snapshot *models.LearningUnitYear, container *models.LearningContainerYear, entities map[models.EntityLink]int64, components []*models.LearningComponentYear) *models.SnapshotDelta {
	delta := &models.SnapshotDelta{
		Acronym:                 &snapshot.Acronym,
		SpecificTitleFr:         &snapshot.SpecificTitleFr,
		SpecificTitleEn:         &snapshot.SpecificTitleEn,
		Credits:                 &snapshot.Credits,
		Status:                  &snapshot.Status,
		Language:                &snapshot.Language,
		Campus:                  &snapshot.Campus,
		Periodicity:             &snapshot.Periodicity,
		Quadrimester:            snapshot.Quadrimester,
		Session:                 snapshot.Session,
		InternshipSubtype:       snapshot.InternshipSubtype,
		ProfessionalIntegration: &snapshot.ProfessionalIntegration,
		CommonTitleFr:           &container.CommonTitleFr,
		CommonTitleEn:           &container.CommonTitleEn,
		ContainerType:           &container.ContainerType,
		Team:                    &container.Team,
		Entities:                entities,
		Volumes:                 map[models.ComponentType]*models.VolumeDelta{},
	}
	for _, c := range components {
		delta.Volumes[c.Type] = &models.VolumeDelta{
			VolQ1:                  &c.VolQ1,
			VolQ2:                  &c.VolQ2,
			VolTotalAnnual:         &c.VolTotalAnnual,
			PlannedClasses:         &c.PlannedClasses,
			RepartitionRequirement: &c.RepartitionRequirement,
			RepartitionAdditional1: &c.RepartitionAdditional1,
			RepartitionAdditional2: &c.RepartitionAdditional2,
		}
	}
	return delta
}

// ApplyAction runs one workflow action over a set of proposals, each in its
// own transaction, and reports the outcomes grouped by level: SUCCESS and
// ERROR carry one entry per proposal, INFO records the report sent to the
// acting person through the notification sink after the batch finishes.
func (s *ProposalService) ApplyAction(ctx context.Context, person *models.Person, ids []int64, action BatchAction) (map[string][]string, error) {
	proposals, err := s.store.Proposals().ByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("error loading proposals: %w", err)
	}
	byID := map[int64]*models.Proposal{}
	for _, p := range proposals {
		byID[p.ID] = p
	}

	results := map[string][]string{
		LevelSuccess: {},
		LevelError:   {},
		LevelInfo:    {},
	}
	lines := []string{}
	for _, id := range ids {
		proposal, ok := byID[id]
		if !ok {
			entry := fmt.Sprintf("proposal %d: not found", id)
			results[LevelError] = append(results[LevelError], entry)
			lines = append(lines, entry)
			continue
		}
		if err := action.Run(ctx, person, proposal); err != nil {
			entry := fmt.Sprintf("proposal %d: %s failed (%s)", id, action.Name, err.Error())
			results[LevelError] = append(results[LevelError], entry)
			lines = append(lines, entry)
			logger.Warn().Err(err).Int64("proposal_id", id).Str("action", action.Name).Msg("Batch action item failed")
			continue
		}
		entry := fmt.Sprintf("proposal %d: %s succeeded", id, action.Name)
		results[LevelSuccess] = append(results[LevelSuccess], entry)
		lines = append(lines, entry)
	}

	if s.sink != nil && len(lines) > 0 {
		report := notify.ProposalReport{
			ToEmail: person.Email,
			ToName:  person.FirstName + " " + person.LastName,
			Action:  action.Name,
			Lines:   lines,
		}
		if err := s.sink.SendProposalReport(report); err != nil {
			logger.Error().Err(err).Str("action", action.Name).Msg("Failed to send proposal report")
		} else {
			results[LevelInfo] = append(results[LevelInfo], "report sent to "+person.Email)
		}
	}
	return results, nil
}

// CancelAction is the batch form of Cancel.
func (s *ProposalService) CancelAction() BatchAction {
	return BatchAction{
		Name: "cancel",
		Run: func(ctx context.Context, person *models.Person, proposal *models.Proposal) error {
			return s.Cancel(ctx, person, proposal.ID)
		},
	}
}

// ConsolidateAction is the batch form of Consolidate.
func (s *ProposalService) ConsolidateAction() BatchAction {
	return BatchAction{
		Name: "consolidate",
		Run: func(ctx context.Context, person *models.Person, proposal *models.Proposal) error {
			return s.Consolidate(ctx, person, proposal.ID)
		},
	}
}
