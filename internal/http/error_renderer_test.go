package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/target/jobstream/internal/domain/model"
	apperrors "github.com/target/jobstream/internal/errors"
)

func TestDetermineErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   apperrors.ErrorCode
	}{
		{"validation", apperrors.Validation("bad"), http.StatusBadRequest, apperrors.ErrCodeValidation},
		{"not found", apperrors.NotFound("gone"), http.StatusNotFound, apperrors.ErrCodeNotFound},
		{"wrapped conflict", fmt.Errorf("enqueue: %w", apperrors.Wrap(errors.New("exists"), apperrors.ErrCodeConflict, "job J1")), http.StatusConflict, apperrors.ErrCodeConflict},
		{"unavailable", apperrors.Unavailable("saturated"), http.StatusServiceUnavailable, apperrors.ErrCodeUnavailable},
		{"model not found", fmt.Errorf("state: %w", model.ErrJobNotFound), http.StatusNotFound, apperrors.ErrCodeNotFound},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, apperrors.ErrCodeTimeout},
		{"plain", errors.New("boom"), http.StatusInternalServerError, apperrors.ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := DetermineErrorStatus(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}
