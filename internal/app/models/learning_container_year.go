package models

import "time"

// LearningContainerYear groups the sibling snapshots of one container for one
// year: the full snapshot plus zero or more partims. Shared attributes of the
// siblings live here. Rows are keyed uniquely by (learning_container_id, year).
type LearningContainerYear struct {
	ID                    int64         `json:"id" db:"id"`
	LearningContainerID   int64         `json:"learningContainerId" db:"learning_container_id"`
	AcademicYear          int           `json:"academicYear" db:"academic_year"`
	Acronym               string        `json:"acronym" db:"acronym"`
	ContainerType         ContainerType `json:"containerType" db:"container_type"`
	CommonTitleFr         string        `json:"commonTitleFr" db:"common_title_fr"`
	CommonTitleEn         string        `json:"commonTitleEn" db:"common_title_en"`
	Team                  bool          `json:"team" db:"team"`
	IsVacant              bool          `json:"isVacant" db:"is_vacant"`
	TypeDeclarationVacant *string       `json:"typeDeclarationVacant,omitempty" db:"type_declaration_vacant"`
	Changed               time.Time     `json:"changed" db:"changed"`

	// Linked entities by role (populated when needed)
	Entities map[EntityLink]int64 `json:"entities,omitempty"`
}

// EntityContainerYear links an entity to a container year under a given role.
type EntityContainerYear struct {
	ID                      int64      `json:"id" db:"id"`
	LearningContainerYearID int64      `json:"learningContainerYearId" db:"learning_container_year_id"`
	EntityID                int64      `json:"entityId" db:"entity_id"`
	Link                    EntityLink `json:"link" db:"link"`
}
