package dto

// CreateTeacherRequest provisions a teacher login account.
type CreateTeacherRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	FullName string `json:"full_name" validate:"required,min=3,max=120"`
	Phone    string `json:"phone" validate:"required,saphone"`
}

// UpdateTeacherRequest modifies a teacher account. Email is immutable.
type UpdateTeacherRequest struct {
	FullName string `json:"full_name" validate:"required,min=3,max=120"`
	Phone    string `json:"phone" validate:"required,saphone"`
	Active   *bool  `json:"active" validate:"omitempty"`
}
