package model

import "identity-service/pkg/apierror"

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

type APIError struct {
	Code    string                `json:"code"`
	Message string                `json:"message"`
	Details string                `json:"details,omitempty"`
	Errors  []apierror.FieldError `json:"errors,omitempty"`
}
