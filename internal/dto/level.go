package dto

// CreateLevelRequest appends an education level to the reference list.
type CreateLevelRequest struct {
	NameAr    string `json:"name_ar" validate:"required,max=120"`
	NameEn    string `json:"name_en" validate:"required,max=120"`
	SortOrder int    `json:"sort_order" validate:"gte=0"`
}
