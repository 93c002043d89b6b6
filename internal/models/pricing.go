package models

import "time"

// LessonType identifies the three teaching session kinds, each with its own
// pricing and approval rules.
type LessonType string

const (
	LessonTypeIndividual LessonType = "individual"
	LessonTypeGroup      LessonType = "group"
	LessonTypeRemedial   LessonType = "remedial"
)

// Valid reports whether the lesson type is one of the known kinds.
func (t LessonType) Valid() bool {
	switch t {
	case LessonTypeIndividual, LessonTypeGroup, LessonTypeRemedial:
		return true
	}
	return false
}

// PricingRule maps (education level, lesson type) to an hourly rate.
// The pair is unique; writes upsert with latest-write-wins semantics.
type PricingRule struct {
	ID               string     `db:"id" json:"id"`
	EducationLevelID string     `db:"education_level_id" json:"education_level_id"`
	LessonType       LessonType `db:"lesson_type" json:"lesson_type"`
	PricePerHour     float64    `db:"price_per_hour" json:"price_per_hour"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// GroupPricingTier prices a whole group per hour keyed by (education level,
// participant count). The pair is unique.
type GroupPricingTier struct {
	ID                string    `db:"id" json:"id"`
	EducationLevelID  string    `db:"education_level_id" json:"education_level_id"`
	StudentCount      int       `db:"student_count" json:"student_count"`
	TotalPricePerHour float64   `db:"total_price_per_hour" json:"total_price_per_hour"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// RemedialRateSettings is the single-row flat-rate pair for remedial
// lessons. A student's remedial lesson is priced at InitialRate while their
// prior approved remedial count is below LessonThreshold, SubsequentRate
// afterwards.
type RemedialRateSettings struct {
	ID              string    `db:"id" json:"id"`
	InitialRate     float64   `db:"initial_rate" json:"initial_rate"`
	SubsequentRate  float64   `db:"subsequent_rate" json:"subsequent_rate"`
	LessonThreshold int       `db:"lesson_threshold" json:"lesson_threshold"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}
