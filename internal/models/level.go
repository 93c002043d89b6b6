package models

import "time"

// EducationLevel is immutable reference data describing a study stage.
// Levels are listed and (rarely) appended by admins, never updated or
// removed, so historical lessons always resolve their level.
type EducationLevel struct {
	ID        string    `db:"id" json:"id"`
	NameAr    string    `db:"name_ar" json:"name_ar"`
	NameEn    string    `db:"name_en" json:"name_en"`
	SortOrder int       `db:"sort_order" json:"sort_order"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
