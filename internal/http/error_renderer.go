package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/target/jobstream/internal/domain/model"
	apperrors "github.com/target/jobstream/internal/errors"
)

// statusForCode maps application error codes onto HTTP statuses.
//
//nolint:gochecknoglobals // static read-only lookup
var statusForCode = map[apperrors.ErrorCode]int{
	apperrors.ErrCodeValidation:  http.StatusBadRequest,
	apperrors.ErrCodeNotFound:    http.StatusNotFound,
	apperrors.ErrCodeConflict:    http.StatusConflict,
	apperrors.ErrCodeUnavailable: http.StatusServiceUnavailable,
	apperrors.ErrCodeTimeout:     http.StatusGatewayTimeout,
	apperrors.ErrCodeInternal:    http.StatusInternalServerError,
}

// DetermineErrorStatus returns the HTTP status and error code for err.
// Errors that carry no application code are internal.
func DetermineErrorStatus(err error) (int, apperrors.ErrorCode) {
	code := apperrors.GetCode(err)
	switch {
	case code == apperrors.ErrCodeCanceled, code == "" && errors.Is(err, context.Canceled):
		// The client went away; nobody will read the status.
		return http.StatusServiceUnavailable, apperrors.ErrCodeCanceled
	case code == "" && errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, apperrors.ErrCodeTimeout
	case code == "" && errors.Is(err, model.ErrJobNotFound):
		return http.StatusNotFound, apperrors.ErrCodeNotFound
	case code == "":
		return http.StatusInternalServerError, apperrors.ErrCodeInternal
	}
	if status, ok := statusForCode[code]; ok {
		return status, code
	}
	return http.StatusInternalServerError, apperrors.ErrCodeInternal
}

// writeServiceError renders a service error as {"error": code, "message": text}.
// Internal errors are logged and their details withheld from the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, code := DetermineErrorStatus(err)
	msg := err
	if status >= http.StatusInternalServerError && code == apperrors.ErrCodeInternal {
		if logger != nil {
			logger.ErrorContext(r.Context(), "request failed",
				"method", r.Method,
				"path", r.URL.Path,
				"error", err,
			)
		}
		msg = errors.New("internal error")
	} else {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			msg = errors.New(appErr.Message)
		}
	}
	WriteError(w, ErrorParams{Code: status, ErrCode: string(code), Err: msg, Field: apperrors.GetField(err)})
}
