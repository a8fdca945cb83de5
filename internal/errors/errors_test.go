package errors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err:  &AppError{Code: ErrCodeNotFound, Message: "job not found"},
			want: "job not found",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeUnavailable,
				Message: "store unavailable",
				Cause:   errors.New("dial tcp: refused"),
			},
			want: "store unavailable: dial tcp: refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestCodeHelpers(t *testing.T) {
	wrapped := fmt.Errorf("enqueue: %w", Validationf("unknown job type %q", "x"))

	assert.True(t, IsValidation(wrapped))
	assert.False(t, IsNotFound(wrapped))
	assert.Equal(t, ErrCodeValidation, GetCode(wrapped))
	assert.Empty(t, GetCode(errors.New("plain")))

	field := ValidationField("payload.message_id", "required")
	assert.Equal(t, "payload.message_id", GetField(field))

	assert.True(t, IsUnavailable(Unavailable("busy")))
	assert.True(t, IsNotFound(NotFoundf("job %s not found", "J1")))
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "ignored"))
}

func TestMapDBError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		code ErrorCode
	}{
		{name: "no rows", in: sql.ErrNoRows, code: ErrCodeNotFound},
		{name: "deadline", in: context.DeadlineExceeded, code: ErrCodeTimeout},
		{name: "canceled", in: context.Canceled, code: ErrCodeCanceled},
		{name: "unique", in: &pgconn.PgError{Code: pgerrcode.UniqueViolation}, code: ErrCodeConflict},
		{name: "not null", in: &pgconn.PgError{Code: pgerrcode.NotNullViolation}, code: ErrCodeValidation},
		{name: "connection failure", in: &pgconn.PgError{Code: pgerrcode.ConnectionFailure}, code: ErrCodeUnavailable},
		{name: "other pg error", in: &pgconn.PgError{Code: pgerrcode.SyntaxError}, code: ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapDBError(fmt.Errorf("query: %w", tt.in))
			assert.Equal(t, tt.code, GetCode(got))
		})
	}

	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, MapDBError(nil))
	})

	t.Run("unrecognized passes through", func(t *testing.T) {
		plain := errors.New("boom")
		assert.Same(t, plain, MapDBError(plain))
	})
}
