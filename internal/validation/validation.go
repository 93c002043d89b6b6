package validation

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

// saphonePattern matches local mobile numbers as entered by the office
// staff: a 05 prefix followed by eight digits.
var saphonePattern = regexp.MustCompile(`^05\d{8}$`)

// New builds the validator instance shared across services with the
// domain rules registered.
func New() *validator.Validate {
	v := validator.New()
	// registration only fails for empty tags, which cannot happen here
	_ = v.RegisterValidation("saphone", func(fl validator.FieldLevel) bool {
		return saphonePattern.MatchString(fl.Field().String())
	})
	return v
}
