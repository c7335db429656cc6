package models

import (
	"fmt"
	"time"
)

// PostponementSpan is the default number of years beyond the starting year
// that snapshots may be postponed to.
const PostponementSpan = 6

// AcademicYear represents one year of the academic calendar, spanning two
// calendar years (e.g. 2020-21).
type AcademicYear struct {
	ID        int64     `json:"id" db:"id"`
	Year      int       `json:"year" db:"year"`
	StartDate time.Time `json:"startDate" db:"start_date"`
	EndDate   time.Time `json:"endDate" db:"end_date"`
}

// Name returns the display form of the year, e.g. "2020-21".
func (y *AcademicYear) Name() string {
	return fmt.Sprintf("%d-%02d", y.Year, (y.Year+1)%100)
}

// Contains reports whether the given date falls inside the year's range.
func (y *AcademicYear) Contains(date time.Time) bool {
	return !date.Before(y.StartDate) && !date.After(y.EndDate)
}

// IsPast reports whether the year ended before the given date.
func (y *AcademicYear) IsPast(date time.Time) bool {
	return y.EndDate.Before(date)
}
