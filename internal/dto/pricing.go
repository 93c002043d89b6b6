package dto

// UpsertPricingRuleRequest writes the hourly rate for a
// (level, lesson type) pair. Upsert semantics; the last write wins.
// Remedial lessons are priced by the flat-rate settings, not by rules.
type UpsertPricingRuleRequest struct {
	EducationLevelID string  `json:"education_level_id" validate:"required,uuid4"`
	LessonType       string  `json:"lesson_type" validate:"required,oneof=individual group"`
	PricePerHour     float64 `json:"price_per_hour" validate:"required,gt=0"`
}

// CreateGroupTierRequest adds a whole-group hourly price keyed by
// (level, participant count). Duplicate pairs are rejected.
type CreateGroupTierRequest struct {
	EducationLevelID  string  `json:"education_level_id" validate:"required,uuid4"`
	StudentCount      int     `json:"student_count" validate:"required,gte=2"`
	TotalPricePerHour float64 `json:"total_price_per_hour" validate:"required,gt=0"`
}

// UpdateRemedialSettingsRequest rewrites the remedial flat-rate pair.
type UpdateRemedialSettingsRequest struct {
	InitialRate     float64 `json:"initial_rate" validate:"required,gt=0"`
	SubsequentRate  float64 `json:"subsequent_rate" validate:"required,gt=0"`
	LessonThreshold int     `json:"lesson_threshold" validate:"required,gte=1"`
}
