package models

import "github.com/google/uuid"

// LearningUnit is the identity of a course across years. Year-specific data
// lives on LearningUnitYear snapshots; the unit row only pins the year range.
// A nil EndYear means the unit is open-ended and its snapshots reach the
// adjournment horizon.
type LearningUnit struct {
	ID        int64     `json:"id" db:"id"`
	UUID      uuid.UUID `json:"uuid" db:"uuid"`
	StartYear int       `json:"startYear" db:"start_year"`
	EndYear   *int      `json:"endYear,omitempty" db:"end_year"`
}

// EndYearOr resolves the closure year, falling back to the given horizon when
// the unit is open-ended.
func (u *LearningUnit) EndYearOr(horizon int) int {
	if u.EndYear == nil {
		return horizon
	}
	return *u.EndYear
}
