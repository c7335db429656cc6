package models

// LearningComponentYear is a volume bucket attached to a snapshot: the hours
// taught for one component type (lecturing or practical exercises) in one
// year, and their repartition over the responsible entities.
type LearningComponentYear struct {
	ID                     int64         `json:"id" db:"id"`
	LearningUnitYearID     int64         `json:"learningUnitYearId" db:"learning_unit_year_id"`
	Type                   ComponentType `json:"type" db:"type"`
	Acronym                string        `json:"acronym" db:"acronym"`
	VolQ1                  float64       `json:"volQ1" db:"vol_q1"`
	VolQ2                  float64       `json:"volQ2" db:"vol_q2"`
	VolTotalAnnual         float64       `json:"volTotalAnnual" db:"vol_total_annual"`
	PlannedClasses         int           `json:"plannedClasses" db:"planned_classes"`
	RepartitionRequirement float64       `json:"repartitionRequirement" db:"repartition_volume_requirement"`
	RepartitionAdditional1 float64       `json:"repartitionAdditional1" db:"repartition_volume_additional_1"`
	RepartitionAdditional2 float64       `json:"repartitionAdditional2" db:"repartition_volume_additional_2"`

	// Relations (populated when needed)
	Classes []*LearningClassYear `json:"classes,omitempty"`
}

// VolGlobal is the yearly charge of the component: total volume times the
// number of planned classes.
func (c *LearningComponentYear) VolGlobal() float64 {
	return c.VolTotalAnnual * float64(c.PlannedClasses)
}

// RepartitionSum is the total volume distributed over the requirement and
// additional entities.
func (c *LearningComponentYear) RepartitionSum() float64 {
	return c.RepartitionRequirement + c.RepartitionAdditional1 + c.RepartitionAdditional2
}

// LearningClassYear is a class subdivision of a component for one year.
type LearningClassYear struct {
	ID                      int64  `json:"id" db:"id"`
	LearningComponentYearID int64  `json:"learningComponentYearId" db:"learning_component_year_id"`
	AcronymLetter           string `json:"acronymLetter" db:"acronym_letter"`
}
