package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassification(t *testing.T) {
	tests := []struct {
		name          string
		err           *Error
		wantRetryable bool
	}{
		{name: "explicit retryable mark wins", err: ErrNotFound.AsRetryable(), wantRetryable: true},
		{name: "explicit fatal mark wins", err: ErrServiceUnavailable.AsFatal(), wantRetryable: false},
		{name: "cause classification propagates", err: ErrInternal.WithCause(ErrServiceUnavailable.AsRetryable()), wantRetryable: true},
		{name: "fatal cause propagates", err: ErrInternal.WithCause(ErrUnauthorized.AsFatal()), wantRetryable: false},
		{name: "validation never retries", err: ErrValidation, wantRetryable: false},
		{name: "not found never retries", err: ErrNotFound, wantRetryable: false},
		{name: "other codes default to retryable", err: ErrInternal, wantRetryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantRetryable, tt.err.IsRetryable())
			assert.Equal(t, !tt.wantRetryable, tt.err.IsFatal())
		})
	}
}

func TestWithCauseUnwraps(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := ErrServiceUnavailable.WithCause(cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "SERVICE_UNAVAILABLE")
	assert.Contains(t, err.Error(), "connection reset")

	// The sentinel itself must stay untouched.
	assert.Nil(t, ErrServiceUnavailable.Cause)
}

func TestWithDetailCopies(t *testing.T) {
	base := ErrInternal.WithDetail("actor", "FANCY BEAR")
	derived := base.WithDetail("attempt", 2)

	assert.Equal(t, "FANCY BEAR", derived.Details["actor"])
	assert.Equal(t, 2, derived.Details["attempt"])
	assert.NotContains(t, base.Details, "attempt")
}

func TestIsNotFound(t *testing.T) {
	wrapped := fmt.Errorf("fetching cluster: %w", ErrNotFound.WithDetail("id", 7))

	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsNotFound(ErrInternal))
	assert.False(t, IsNotFound(stderrors.New("not found")))
}

func TestRecoverPanic(t *testing.T) {
	assert.NoError(t, RecoverPanic(nil))

	err := func() (err error) {
		defer func() {
			err = RecoverPanic(recover())
		}()
		panic("mapper blew up")
	}()

	require.Error(t, err)
	var appErr *Error
	require.ErrorAs(t, err, &appErr)
	assert.True(t, appErr.IsFatal(), "a recovered panic must never be retried")
	assert.Contains(t, err.Error(), "mapper blew up")
	assert.NotEmpty(t, appErr.Details["stack_trace"])
}
