package models

import (
	"math"
	"strings"
	"time"
)

// Credit bounds enforced on every snapshot write.
const (
	MinCredits = 0
	MaxCredits = 60
)

// LearningUnitYear is the year-snapshot of a learning unit: the state of the
// course for one academic year. Snapshots of the same unit are keyed uniquely
// by (learning_unit_id, academic_year).
type LearningUnitYear struct {
	ID                      int64              `json:"id" db:"id"`
	LearningUnitID          int64              `json:"learningUnitId" db:"learning_unit_id"`
	LearningContainerYearID int64              `json:"learningContainerYearId" db:"learning_container_year_id"`
	AcademicYear            int                `json:"academicYear" db:"academic_year"`
	Acronym                 string             `json:"acronym" db:"acronym"`
	SpecificTitleFr         string             `json:"specificTitleFr" db:"specific_title_fr"`
	SpecificTitleEn         string             `json:"specificTitleEn" db:"specific_title_en"`
	Subtype                 Subtype            `json:"subtype" db:"subtype"`
	Credits                 float64            `json:"credits" db:"credits"`
	Status                  bool               `json:"status" db:"status"`
	Language                string             `json:"language" db:"language"`
	Campus                  string             `json:"campus" db:"campus"`
	Periodicity             Periodicity        `json:"periodicity" db:"periodicity"`
	Quadrimester            *Quadrimester      `json:"quadrimester,omitempty" db:"quadrimester"`
	Session                 *SessionDerogation `json:"session,omitempty" db:"session"`
	InternshipSubtype       *InternshipSubtype `json:"internshipSubtype,omitempty" db:"internship_subtype"`
	AttributionProcedure    *string            `json:"attributionProcedure,omitempty" db:"attribution_procedure"`
	ProfessionalIntegration bool               `json:"professionalIntegration" db:"professional_integration"`
	FacultyRemark           string             `json:"facultyRemark" db:"faculty_remark"`
	OtherRemark             string             `json:"otherRemark" db:"other_remark"`
	Changed                 time.Time          `json:"changed" db:"changed"`

	// Relations (populated when needed)
	LearningUnit  *LearningUnit            `json:"learningUnit,omitempty"`
	ContainerYear *LearningContainerYear   `json:"containerYear,omitempty"`
	Components    []*LearningComponentYear `json:"components,omitempty"`
}

// IsPartim reports whether the snapshot is a partim of a full unit.
func (s *LearningUnitYear) IsPartim() bool {
	return s.Subtype == SubtypePartim
}

// PartimLetter returns the single-letter suffix of a partim acronym, or ""
// for a full snapshot.
func (s *LearningUnitYear) PartimLetter() string {
	if !s.IsPartim() || s.Acronym == "" {
		return ""
	}
	return s.Acronym[len(s.Acronym)-1:]
}

// CompleteTitleFr combines the container's common title with the snapshot's
// specific title.
func (s *LearningUnitYear) CompleteTitleFr() string {
	if s.ContainerYear == nil || s.ContainerYear.CommonTitleFr == "" {
		return s.SpecificTitleFr
	}
	if s.SpecificTitleFr == "" {
		return s.ContainerYear.CommonTitleFr
	}
	return s.ContainerYear.CommonTitleFr + " - " + s.SpecificTitleFr
}

// HasIntegerCredits reports whether the credit value carries no fractional
// part. Non-integer credits are surfaced as a warning on reads.
func (s *LearningUnitYear) HasIntegerCredits() bool {
	return s.Credits == math.Trunc(s.Credits)
}

// SnapshotDelta carries the scalar fields an update may change. Nil fields
// are left untouched.
type SnapshotDelta struct {
	Acronym                 *string            `json:"acronym,omitempty"`
	SpecificTitleFr         *string            `json:"specificTitleFr,omitempty"`
	SpecificTitleEn         *string            `json:"specificTitleEn,omitempty"`
	Credits                 *float64           `json:"credits,omitempty"`
	Status                  *bool              `json:"status,omitempty"`
	Language                *string            `json:"language,omitempty"`
	Campus                  *string            `json:"campus,omitempty"`
	Periodicity             *Periodicity       `json:"periodicity,omitempty"`
	Quadrimester            *Quadrimester      `json:"quadrimester,omitempty"`
	Session                 *SessionDerogation `json:"session,omitempty"`
	InternshipSubtype       *InternshipSubtype `json:"internshipSubtype,omitempty"`
	AttributionProcedure    *string            `json:"attributionProcedure,omitempty"`
	ProfessionalIntegration *bool              `json:"professionalIntegration,omitempty"`
	FacultyRemark           *string            `json:"facultyRemark,omitempty"`
	OtherRemark             *string            `json:"otherRemark,omitempty"`

	CommonTitleFr *string        `json:"commonTitleFr,omitempty"`
	CommonTitleEn *string        `json:"commonTitleEn,omitempty"`
	ContainerType *ContainerType `json:"containerType,omitempty"`
	Team          *bool          `json:"team,omitempty"`

	Entities map[EntityLink]int64 `json:"entities,omitempty"`

	Volumes map[ComponentType]*VolumeDelta `json:"volumes,omitempty"`
}

// TouchesAcronym reports whether the delta renames the snapshot.
func (d *SnapshotDelta) TouchesAcronym(current string) bool {
	return d.Acronym != nil && !strings.EqualFold(*d.Acronym, current)
}

// VolumeDelta carries the volume fields of one component.
type VolumeDelta struct {
	VolQ1                  *float64 `json:"volQ1,omitempty"`
	VolQ2                  *float64 `json:"volQ2,omitempty"`
	VolTotalAnnual         *float64 `json:"volTotalAnnual,omitempty"`
	PlannedClasses         *int     `json:"plannedClasses,omitempty"`
	RepartitionRequirement *float64 `json:"repartitionRequirement,omitempty"`
	RepartitionAdditional1 *float64 `json:"repartitionAdditional1,omitempty"`
	RepartitionAdditional2 *float64 `json:"repartitionAdditional2,omitempty"`
}
