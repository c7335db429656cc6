package models

import (
	"time"

	"github.com/google/uuid"
)

// Proposal is the workflow record requesting a change to one snapshot. A
// snapshot carries at most one proposal at a time; the row disappears on
// cancellation or consolidation.
type Proposal struct {
	ID                 int64         `json:"id" db:"id"`
	UUID               uuid.UUID     `json:"uuid" db:"uuid"`
	LearningUnitYearID int64         `json:"learningUnitYearId" db:"learning_unit_year_id"`
	Type               ProposalType  `json:"type" db:"type"`
	State              ProposalState `json:"state" db:"state"`
	// PreviousState is only set while the proposal is SUSPENDED, so that a
	// resume can restore it.
	PreviousState *ProposalState `json:"previousState,omitempty" db:"previous_state"`
	InitialData   InitialData    `json:"initialData" db:"initial_data"`
	AuthorID      int64          `json:"authorId" db:"author_id"`
	EntityID      int64          `json:"entityId" db:"entity_id"`
	FolderID      int            `json:"folderId" db:"folder_id"`
	Changed       time.Time      `json:"changed" db:"changed"`

	// Relations (populated when needed)
	LearningUnitYear *LearningUnitYear `json:"learningUnitYear,omitempty"`
}

// InitialData is the immutable snapshot captured when a proposal is created.
// It is self-contained: cancellation restores every field below without
// consulting any other row. Stored as a JSON blob on the proposal row.
type InitialData struct {
	LearningUnit     InitialLearningUnit  `json:"learningUnit"`
	Snapshot         InitialSnapshot      `json:"learningUnitYear"`
	ContainerYear    InitialContainerYear `json:"learningContainerYear"`
	Components       []InitialComponent   `json:"components"`
	Entities         map[EntityLink]int64 `json:"entities"`
	VolumesByAcronym map[string]float64   `json:"volumesByAcronym"`
}

// InitialLearningUnit captures the unit-level fields a proposal may revert.
type InitialLearningUnit struct {
	ID        int64 `json:"id"`
	StartYear int   `json:"startYear"`
	EndYear   *int  `json:"endYear,omitempty"`
}

// InitialSnapshot captures the scalar fields of the snapshot under proposal.
type InitialSnapshot struct {
	ID                      int64              `json:"id"`
	AcademicYear            int                `json:"academicYear"`
	Acronym                 string             `json:"acronym"`
	SpecificTitleFr         string             `json:"specificTitleFr"`
	SpecificTitleEn         string             `json:"specificTitleEn"`
	Subtype                 Subtype            `json:"subtype"`
	Credits                 float64            `json:"credits"`
	Status                  bool               `json:"status"`
	Language                string             `json:"language"`
	Campus                  string             `json:"campus"`
	Periodicity             Periodicity        `json:"periodicity"`
	Quadrimester            *Quadrimester      `json:"quadrimester,omitempty"`
	Session                 *SessionDerogation `json:"session,omitempty"`
	InternshipSubtype       *InternshipSubtype `json:"internshipSubtype,omitempty"`
	AttributionProcedure    *string            `json:"attributionProcedure,omitempty"`
	ProfessionalIntegration bool               `json:"professionalIntegration"`
}

// InitialContainerYear captures the shared container fields.
type InitialContainerYear struct {
	ID                    int64         `json:"id"`
	Acronym               string        `json:"acronym"`
	ContainerType         ContainerType `json:"containerType"`
	CommonTitleFr         string        `json:"commonTitleFr"`
	CommonTitleEn         string        `json:"commonTitleEn"`
	Team                  bool          `json:"team"`
	IsVacant              bool          `json:"isVacant"`
	TypeDeclarationVacant *string       `json:"typeDeclarationVacant,omitempty"`
}

// InitialComponent captures the volumes of one component.
type InitialComponent struct {
	ID                     int64         `json:"id"`
	Type                   ComponentType `json:"type"`
	Acronym                string        `json:"acronym"`
	VolQ1                  float64       `json:"volQ1"`
	VolQ2                  float64       `json:"volQ2"`
	VolTotalAnnual         float64       `json:"volTotalAnnual"`
	PlannedClasses         int           `json:"plannedClasses"`
	RepartitionRequirement float64       `json:"repartitionRequirement"`
	RepartitionAdditional1 float64       `json:"repartitionAdditional1"`
	RepartitionAdditional2 float64       `json:"repartitionAdditional2"`
}

// InWorkflow reports whether the proposal still awaits a decision.
func (p *Proposal) InWorkflow() bool {
	return p.State == StateFaculty || p.State == StateCentral || p.State == StateSuspended
}

// Cancelable reports whether the proposal may be canceled directly; accepted
// proposals must go through consolidation instead.
func (p *Proposal) Cancelable() bool {
	return p.State == StateFaculty || p.State == StateCentral || p.State == StateRefused
}
