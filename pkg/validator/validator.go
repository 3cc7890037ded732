package validator

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/jwalitptl/personas-api/pkg/errors"
)

// phonePattern accepts 7-20 digits, spaces, dashes or parentheses with an
// optional leading +.
var phonePattern = regexp.MustCompile(`^\+?[0-9\s\-\(\)]{7,20}$`)

// MaxPhoneLength is the width of the phone column, leading + included.
const MaxPhoneLength = 20

// Validator provides validation functionality
type Validator interface {
	Validate(interface{}) error
	ValidateField(field string, value interface{}, rules ...string) error
}

type validate struct {
	v        *validator.Validate
	messages map[string]string
}

func New() Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	if err := v.RegisterValidation("phone", validatePhone); err != nil {
		panic(err)
	}

	return &validate{
		v: v,
		messages: map[string]string{
			"required": "field is required",
			"email":    "invalid email format",
			"phone":    "invalid phone format",
			"oneof":    "must be one of: %s",
			"min":      "must be at least %s characters long",
			"max":      "must not exceed %s characters",
		},
	}
}

// IsPhone reports whether s is an acceptable phone number.
func IsPhone(s string) bool {
	return len(s) <= MaxPhoneLength && phonePattern.MatchString(s)
}

func validatePhone(fl validator.FieldLevel) bool {
	return IsPhone(fl.Field().String())
}

// Validate checks a struct against its validate tags and returns a
// validation AppError listing every rejected field.
func (v *validate) Validate(obj interface{}) error {
	err := v.v.Struct(obj)
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperrors.Internal(err)
	}

	fields := make([]apperrors.FieldError, 0, len(errs))
	for _, e := range errs {
		fields = append(fields, apperrors.FieldError{
			Field:   e.Field(),
			Message: v.message(e.Tag(), e.Param()),
		})
	}
	return apperrors.Validation("invalid request payload", fields...)
}

// ValidateField checks a single value against validator rules such as
// "email" or "max=100".
func (v *validate) ValidateField(field string, value interface{}, rules ...string) error {
	if len(rules) == 0 {
		return nil
	}
	err := v.v.Var(value, strings.Join(rules, ","))
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok || len(errs) == 0 {
		return apperrors.Internal(err)
	}
	return apperrors.Validation("invalid request payload", apperrors.FieldError{
		Field:   field,
		Message: v.message(errs[0].Tag(), errs[0].Param()),
	})
}

func (v *validate) message(tag, param string) string {
	msg, ok := v.messages[tag]
	if !ok {
		return fmt.Sprintf("failed on the '%s' rule", tag)
	}
	if strings.Contains(msg, "%s") {
		return fmt.Sprintf(msg, param)
	}
	return msg
}
