package apierror

import (
	"fmt"
	"net/http"
)

// FieldError lists the validation messages for one request field.
type FieldError struct {
	Field    string   `json:"field"`
	Messages []string `json:"messages"`
}

type APIError struct {
	Code       string       `json:"code"`
	Message    string       `json:"message"`
	Details    string       `json:"details,omitempty"`
	Fields     []FieldError `json:"errors,omitempty"`
	HTTPStatus int          `json:"-"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}

	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %s (%d fields)", e.Code, e.Message, len(e.Fields))
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(code string, message string, details string, status int) *APIError {
	return &APIError{Code: code, Message: message, Details: details, HTTPStatus: status}
}

// Validation builds the 400 returned for a request that failed field checks.
func Validation(fields []FieldError) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    "Request validation failed",
		Fields:     fields,
		HTTPStatus: http.StatusBadRequest,
	}
}
