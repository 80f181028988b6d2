package types

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrEngineUnavailable, "engine failed").
		WithCause(root).
		WithHTTPStatus(500).
		WithRequest(http.MethodGet, "flow/about")

	if GetErrorCode(err) != ErrEngineUnavailable {
		t.Fatalf("expected code %s, got %s", ErrEngineUnavailable, GetErrorCode(err))
	}
	if IsRetryable(err) {
		t.Fatalf("engine unavailable must not be retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if !errors.Is(err, &Error{Code: ErrEngineUnavailable}) {
		t.Fatalf("expected errors.Is match on code")
	}
	assert.Contains(t, err.Error(), "GET flow/about -> 500")
}

func TestNewError_TransientIsRetryable(t *testing.T) {
	t.Parallel()

	assert.True(t, IsRetryable(NewError(ErrTransientNetwork, "reset")))
	assert.False(t, IsRetryable(NewError(ErrAuthentication, "nope")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		msg    string
		want   ErrorCode
	}{
		{"401", http.StatusUnauthorized, "", ErrAuthentication},
		{"403", http.StatusForbidden, "", ErrAuthorization},
		{"404", http.StatusNotFound, "Unable to find processor", ErrNotFound},
		{"409 plain", http.StatusConflict, "component is running", ErrConflict},
		{"409 queue", http.StatusConflict, "Cannot delete connection because its queue is not empty", ErrValidation},
		{"400 stale revision", http.StatusBadRequest,
			"Error: [1, abc, proc] is not the most up-to-date revision. This component appears to have been modified", ErrConflict},
		{"400 generic", http.StatusBadRequest, "Invalid property", ErrValidation},
		{"422", http.StatusUnprocessableEntity, "", ErrValidation},
		{"429", http.StatusTooManyRequests, "", ErrTransientNetwork},
		{"502", http.StatusBadGateway, "", ErrTransientNetwork},
		{"503", http.StatusServiceUnavailable, "", ErrTransientNetwork},
		{"504", http.StatusGatewayTimeout, "", ErrTransientNetwork},
		{"500", http.StatusInternalServerError, "boom", ErrEngineUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyStatus(tt.status, tt.msg))
		})
	}
}

func TestFromStatus_PreservesEngineMessage(t *testing.T) {
	t.Parallel()

	err := FromStatus(http.StatusConflict, "revision mismatch")
	assert.Equal(t, ErrConflict, err.Code)
	assert.Equal(t, "revision mismatch", err.Message)
	assert.Equal(t, http.StatusConflict, err.HTTPStatus)

	empty := FromStatus(http.StatusNotFound, "")
	assert.Equal(t, "Not Found", empty.Message)
}
