package validation

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"identity-service/internal/model"
	"identity-service/internal/password"
	"identity-service/pkg/apierror"
)

func fieldMessages(t *testing.T, err error) map[string][]string {
	t.Helper()

	var apiErr *apierror.APIError
	require.True(t, errors.As(err, &apiErr), "expected *apierror.APIError, got %T", err)
	assert.Equal(t, http.StatusBadRequest, apiErr.HTTPStatus)
	assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)

	out := map[string][]string{}
	for _, f := range apiErr.Fields {
		out[f.Field] = f.Messages
	}
	return out
}

func TestStruct_RegisterRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		req    model.RegisterRequest
		fields map[string][]string
	}{
		{
			name: "valid",
			req:  model.RegisterRequest{Email: "a@x.com", Password: "correcthorse1"},
		},
		{
			name: "missing everything",
			req:  model.RegisterRequest{},
			fields: map[string][]string{
				"email":    {"is required"},
				"password": {"is required"},
			},
		},
		{
			name: "bad email",
			req:  model.RegisterRequest{Email: "not-an-email", Password: "correcthorse1"},
			fields: map[string][]string{
				"email": {"must be a valid email address"},
			},
		},
		{
			name: "password too short",
			req:  model.RegisterRequest{Email: "a@x.com", Password: "short1"},
			fields: map[string][]string{
				"password": {password.ErrTooShort.Error()},
			},
		},
		{
			name: "nine characters is one short",
			req:  model.RegisterRequest{Email: "a@x.com", Password: "Passw0rd1"},
			fields: map[string][]string{
				"password": {password.ErrTooShort.Error()},
			},
		},
		{
			name: "password too long",
			req:  model.RegisterRequest{Email: "a@x.com", Password: strings.Repeat("a1", 16)},
			fields: map[string][]string{
				"password": {password.ErrTooLong.Error()},
			},
		},
		{
			name: "password without digit",
			req:  model.RegisterRequest{Email: "a@x.com", Password: "onlyletters"},
			fields: map[string][]string{
				"password": {password.ErrTooWeak.Error()},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := Struct(tt.req)
			if tt.fields == nil {
				require.NoError(t, err)
				return
			}
			assert.Equal(t, tt.fields, fieldMessages(t, err))
		})
	}
}

func TestStruct_LoginRequestSkipsPolicy(t *testing.T) {
	t.Parallel()

	require.NoError(t, Struct(model.LoginRequest{Email: "a@x.com", Password: "x"}))

	fields := fieldMessages(t, Struct(model.LoginRequest{Email: "a@x.com", Password: strings.Repeat("a", 129)}))
	assert.Equal(t, []string{"must be at most 128 characters"}, fields["password"])
}

func TestStruct_RefreshRequest(t *testing.T) {
	t.Parallel()

	fields := fieldMessages(t, Struct(model.RefreshRequest{}))
	assert.Equal(t, []string{"is required"}, fields["refresh_token"])
}
