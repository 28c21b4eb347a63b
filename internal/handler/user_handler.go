package handler

import (
	"net/http"

	"identity-service/internal/model"
)

type UserHandler struct {
	service authService
}

func NewUserHandler(service authService) *UserHandler {
	return &UserHandler{service: service}
}

// Register creates a password user and answers 201 with {id, email}.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.RegisterRequest
	if err := decodeAndValidate(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.service.Register(r.Context(), payload.Email, payload.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, user)
}
