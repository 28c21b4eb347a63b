// Package validation checks decoded request bodies against their
// `validate` struct tags.
package validation

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"identity-service/internal/password"
	"identity-service/pkg/apierror"
)

var (
	validate *validator.Validate
	once     sync.Once
)

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return strings.ToLower(fld.Name)
			}
			return name
		})

		// `password` applies the acceptance policy for new passwords.
		_ = validate.RegisterValidation("password", func(fl validator.FieldLevel) bool {
			return password.CheckPolicy(fl.Field().String()) == nil
		})
	})
	return validate
}

// Struct validates s and returns an *apierror.APIError listing every failing
// field, or nil.
func Struct(s any) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return apierror.New("BAD_REQUEST", "Invalid request body", "", http.StatusBadRequest)
	}

	var fields []apierror.FieldError
	index := map[string]int{}
	for _, e := range validationErrors {
		name := e.Field()
		i, seen := index[name]
		if !seen {
			i = len(fields)
			index[name] = i
			fields = append(fields, apierror.FieldError{Field: name})
		}
		fields[i].Messages = append(fields[i].Messages, message(e))
	}

	return apierror.Validation(fields)
}

func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + e.Param() + " characters"
	case "max":
		return "must be at most " + e.Param() + " characters"
	case "password":
		if value, ok := e.Value().(string); ok {
			if err := password.CheckPolicy(value); err != nil {
				return err.Error()
			}
		}
		return "does not meet the password policy"
	default:
		return "is invalid"
	}
}
