package models

import "time"

// Entity is an organizational unit. Its attributes live on EntityVersion
// rows; the entity row itself only carries identity.
type Entity struct {
	ID      int64   `json:"id" db:"id"`
	Website *string `json:"website,omitempty" db:"website"`
}

// EntityVersion is one time-bounded version of an entity. At most one
// version of an entity is active at any instant; EndDate nil means the
// version is still open.
type EntityVersion struct {
	ID             int64      `json:"id" db:"id"`
	EntityID       int64      `json:"entityId" db:"entity_id"`
	ParentEntityID *int64     `json:"parentEntityId,omitempty" db:"parent_entity_id"`
	Acronym        string     `json:"acronym" db:"acronym"`
	Title          string     `json:"title" db:"title"`
	EntityType     EntityType `json:"entityType" db:"entity_type"`
	StartDate      time.Time  `json:"startDate" db:"start_date"`
	EndDate        *time.Time `json:"endDate,omitempty" db:"end_date"`
}

// IsActiveOn reports whether the version covers the given date. The validity
// interval is [StartDate, EndDate); a nil EndDate never closes.
func (v *EntityVersion) IsActiveOn(date time.Time) bool {
	if date.Before(v.StartDate) {
		return false
	}
	return v.EndDate == nil || date.Before(*v.EndDate)
}
