// internal/utils/validator.go
package utils

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

var hhmmPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

func init() {
	validate = validator.New()
	validate.RegisterValidation("strong_password", validateStrongPassword)
	validate.RegisterValidation("time_type", validateTimeType)
	validate.RegisterValidation("hhmm", validateHHMM)
	validate.RegisterValidation("role", validateRole)
	validate.RegisterValidation("single_line", validateSingleLine)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

func validateStrongPassword(fl validator.FieldLevel) bool {
	password := fl.Field().String()

	if len(password) < 8 {
		return false
	}

	var hasLetter, hasNumber bool

	for _, char := range password {
		switch {
		case unicode.IsLetter(char):
			hasLetter = true
		case unicode.IsNumber(char):
			hasNumber = true
		}
	}

	return hasLetter && hasNumber
}

func validateTimeType(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "fullDay", "particularHours":
		return true
	}
	return false
}

// validateHHMM accepts 24-hour clock times such as "09:30".
func validateHHMM(fl validator.FieldLevel) bool {
	return hhmmPattern.MatchString(fl.Field().String())
}

// validateSingleLine rejects control characters, including CR and LF.
func validateSingleLine(fl validator.FieldLevel) bool {
	return strings.IndexFunc(fl.Field().String(), unicode.IsControl) < 0
}

func validateRole(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "student", "faculty", "hod", "admin":
		return true
	}
	return false
}

// Validation tags for common fields
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		for _, e := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   strings.ToLower(e.Field()),
				Tag:     e.Tag(),
				Message: getValidationMessage(e),
			})
		}
	}

	return validationErrors
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "email":
		return "Invalid email format"
	case "min":
		return e.Field() + " must be at least " + e.Param() + " characters"
	case "max":
		return e.Field() + " must be at most " + e.Param() + " characters"
	case "strong_password":
		return "Password must be at least 8 characters and contain a letter and a number"
	case "time_type":
		return "time_type must be fullDay or particularHours"
	case "hhmm":
		return e.Field() + " must be a time in HH:MM format"
	case "role":
		return "role must be one of student, faculty, hod, admin"
	case "single_line":
		return e.Field() + " must not contain line breaks or control characters"
	default:
		return e.Field() + " is invalid"
	}
}
