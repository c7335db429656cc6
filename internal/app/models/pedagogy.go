package models

// TranslatedText is one pedagogy text attached to a snapshot (bibliography,
// teaching methods, evaluation methods, ...), per language. Rows follow their
// snapshot through postponement.
type TranslatedText struct {
	ID        int64  `json:"id" db:"id"`
	Reference int64  `json:"reference" db:"reference"` // learning_unit_year id
	TextLabel string `json:"textLabel" db:"text_label"`
	Language  string `json:"language" db:"language"`
	Text      string `json:"text" db:"text"`
}

// TeachingMaterial is a bibliography item of a snapshot.
type TeachingMaterial struct {
	ID                 int64  `json:"id" db:"id"`
	LearningUnitYearID int64  `json:"learningUnitYearId" db:"learning_unit_year_id"`
	Title              string `json:"title" db:"title"`
	Mandatory          bool   `json:"mandatory" db:"mandatory"`
}

// ExternalLearningUnitYear extends a snapshot taught by an external
// institution.
type ExternalLearningUnitYear struct {
	ID                 int64   `json:"id" db:"id"`
	LearningUnitYearID int64   `json:"learningUnitYearId" db:"learning_unit_year_id"`
	ExternalAcronym    string  `json:"externalAcronym" db:"external_acronym"`
	ExternalCredits    float64 `json:"externalCredits" db:"external_credits"`
	URL                *string `json:"url,omitempty" db:"url"`
}

// SnapshotUsage aggregates the references that block deletion of a snapshot.
type SnapshotUsage struct {
	Enrollments      int `json:"enrollments"`
	Attributions     int `json:"attributions"`
	GroupMemberships int `json:"groupMemberships"`
}

// Blocked reports whether any usage prevents deleting the snapshot.
func (u SnapshotUsage) Blocked() bool {
	return u.Enrollments > 0 || u.Attributions > 0 || u.GroupMemberships > 0
}
