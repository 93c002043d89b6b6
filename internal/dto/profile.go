package dto

// UpdateProfileRequest lets a signed-in user edit their own display data.
// Email and role stay fixed.
type UpdateProfileRequest struct {
	FullName string `json:"full_name" validate:"required,min=3,max=120"`
	Phone    string `json:"phone" validate:"required,saphone"`
}
