package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
		want int
	}{
		{"nil", nil, "", http.StatusOK},
		{"auth", fmt.Errorf("save: %w", ErrAuthRequired), "auth_required", http.StatusUnauthorized},
		{"suspended", ErrAccountSuspended, "account_suspended", http.StatusForbidden},
		{"validation", Invalid("resume_text", "must be at least %d characters", 50), "validation_error", http.StatusBadRequest},
		{"upstream", Upstream("analysis", 500, "model overloaded"), "upstream_error", http.StatusBadGateway},
		{"storage", &StorageError{Op: "upload", Err: errors.New("boom")}, "storage_error", http.StatusInternalServerError},
		{"other", errors.New("x"), "internal_error", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, Code(tt.err))
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestUpstreamMessagePassesThrough(t *testing.T) {
	err := Upstream("analysis", 429, "quota exceeded for project")
	assert.Equal(t, "quota exceeded for project", err.Error())

	err = Upstream("analysis", 503, "")
	assert.Equal(t, "analysis request failed with status 503", err.Error())
}
