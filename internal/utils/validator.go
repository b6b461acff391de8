package utils

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"campuschat/internal/models"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	registerValidations(validate)

	// Request structs bound through gin use the same custom tags.
	if engine, ok := binding.Validator.Engine().(*validator.Validate); ok {
		registerValidations(engine)
	}
}

func registerValidations(v *validator.Validate) {
	v.RegisterValidation("phone", validatePhone)
	v.RegisterValidation("message_type", validateMessageType)
	v.RegisterValidation("call_type", validateCallType)
	v.RegisterValidation("presence_status", validatePresenceStatus)
	v.RegisterValidation("day", validateDay)
}

// ValidationError represents validation error details
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// ValidateStruct validates a struct and returns user-friendly error messages
func ValidateStruct(s interface{}) []ValidationError {
	var out []ValidationError

	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	fieldErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return []ValidationError{{Field: "request", Tag: "invalid", Message: err.Error()}}
	}
	for _, fe := range fieldErrors {
		out = append(out, ValidationError{
			Field:   strings.ToLower(fe.Field()),
			Tag:     fe.Tag(),
			Value:   fe.Param(),
			Message: getErrorMessage(fe),
		})
	}

	return out
}

// ValidationDetails flattens validation errors for ValidationErrorResponse.
func ValidationDetails(errs []ValidationError) map[string]string {
	details := make(map[string]string, len(errs))
	for _, e := range errs {
		details[e.Field] = e.Message
	}
	return details
}

// BindingDetails converts an error from gin's ShouldBind* into field
// messages. Decoding errors are reported against "request".
func BindingDetails(err error) map[string]string {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return map[string]string{"request": "Malformed request body"}
	}
	details := make(map[string]string, len(fieldErrors))
	for _, fe := range fieldErrors {
		details[strings.ToLower(fe.Field())] = getErrorMessage(fe)
	}
	return details
}

var digits = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

// ValidatePhone accepts 7 to 15 digits with an optional leading plus once
// separators are stripped.
func ValidatePhone(phone string) bool {
	return digits.MatchString(models.NormalizePhone(phone))
}

// ValidateDay checks the YYYY-MM-DD presence day format.
func ValidateDay(day string) bool {
	_, err := time.Parse(models.DayFormat, day)
	return err == nil
}

func validatePhone(fl validator.FieldLevel) bool {
	return ValidatePhone(fl.Field().String())
}

func validateMessageType(fl validator.FieldLevel) bool {
	return models.MessageType(fl.Field().String()).Valid()
}

func validateCallType(fl validator.FieldLevel) bool {
	return models.CallType(fl.Field().String()).Valid()
}

func validatePresenceStatus(fl validator.FieldLevel) bool {
	return models.PresenceStatus(fl.Field().String()).Valid()
}

func validateDay(fl validator.FieldLevel) bool {
	return ValidateDay(fl.Field().String())
}

// getErrorMessage returns user-friendly error messages
func getErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "min":
		return "This field must be at least " + fe.Param() + " long"
	case "max":
		return "This field must be no more than " + fe.Param() + " long"
	case "oneof":
		return "This field must be one of: " + fe.Param()
	case "phone":
		return "Please enter a valid phone number"
	case "message_type":
		return "Message type must be text, image, audio, contact, document or location"
	case "call_type":
		return "Call type must be voice or video"
	case "presence_status":
		return "Status must be present or absent"
	case "day":
		return "Day must use the YYYY-MM-DD format"
	case "url":
		return "Please enter a valid URL"
	default:
		return "This field is invalid"
	}
}
