package models

import "time"

// Student represents a learner registered at the institute. Deleted
// students keep their row (deleted_at set) so historical billing stays
// intact; full_name is unique among non-deleted students only.
type Student struct {
	ID               string     `db:"id" json:"id"`
	FullName         string     `db:"full_name" json:"full_name"`
	ParentPhone      string     `db:"parent_phone" json:"parent_phone"`
	EducationLevelID string     `db:"education_level_id" json:"education_level_id"`
	ClassLabel       *string    `db:"class_label" json:"class_label,omitempty"`
	DeletedAt        *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// Deleted reports whether the student has been soft deleted.
func (s Student) Deleted() bool {
	return s.DeletedAt != nil
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search           string
	EducationLevelID string
	ShowDeleted      bool
	Page             int
	PageSize         int
	SortBy           string
	SortOrder        string
}

// StudentDetail joins the level display names onto the student row.
type StudentDetail struct {
	Student
	LevelNameAr *string `db:"level_name_ar" json:"level_name_ar,omitempty"`
	LevelNameEn *string `db:"level_name_en" json:"level_name_en,omitempty"`
}
