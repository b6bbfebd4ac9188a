package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatusError struct{ status int }

func (e *fakeStatusError) Error() string       { return fmt.Sprintf("upstream returned %d", e.status) }
func (e *fakeStatusError) UpstreamStatus() int { return e.status }

func TestNewAppError_StatusMapping(t *testing.T) {
	testCases := []struct {
		errorType ErrorType
		status    int
	}{
		{ErrorTypeValidation, http.StatusBadRequest},
		{ErrorTypeAuthentication, http.StatusUnauthorized},
		{ErrorTypeAuthorization, http.StatusForbidden},
		{ErrorTypeNotFound, http.StatusNotFound},
		{ErrorTypeRateLimit, http.StatusTooManyRequests},
		{ErrorTypeExternal, http.StatusBadGateway},
		{ErrorTypeTimeout, http.StatusGatewayTimeout},
		{ErrorTypeUnavailable, http.StatusServiceUnavailable},
		{ErrorTypeInternal, http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(string(tc.errorType), func(t *testing.T) {
			err := NewAppError(tc.errorType, "CODE", "message", nil)
			assert.Equal(t, tc.status, err.StatusCode)
		})
	}
}

func TestFromError(t *testing.T) {
	t.Run("deadline maps to timeout", func(t *testing.T) {
		appErr := FromError("dashboard", fmt.Errorf("request failed: %w", context.DeadlineExceeded))
		assert.Equal(t, ErrorTypeTimeout, appErr.Type)
		assert.Equal(t, http.StatusGatewayTimeout, appErr.StatusCode)
	})

	t.Run("upstream status maps to bad gateway with details", func(t *testing.T) {
		appErr := FromError("threats", fmt.Errorf("wrapped: %w", &fakeStatusError{status: 503}))
		assert.Equal(t, ErrorTypeExternal, appErr.Type)
		assert.Equal(t, http.StatusBadGateway, appErr.StatusCode)
		assert.Equal(t, 503, appErr.Details["upstream_status"])
	})

	t.Run("app error passes through", func(t *testing.T) {
		original := NewValidationError("bad input", nil)
		assert.Same(t, original, FromError("x", original))
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, FromError("x", nil))
	})
}

func TestAppError_IsAndUnwrap(t *testing.T) {
	cause := stderrors.New("boom")
	err := NewInternalError("failed", cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.True(t, stderrors.Is(err, NewInternalError("other message", nil)))
	assert.False(t, stderrors.Is(err, NewNotFoundError("profile")))
	assert.Contains(t, err.Error(), "caused by: boom")
}

func TestSendError(t *testing.T) {
	rec := httptest.NewRecorder()
	SendError(rec, NewNotFoundError("profile").WithRequestID("req-1"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	require.NotNil(t, body.Error)
	assert.Equal(t, "Not Found", body.Error.Error)
	assert.Equal(t, "profile not found", body.Error.Message)
	assert.Equal(t, "RESOURCE_NOT_FOUND", body.Error.Code)
	assert.Equal(t, "req-1", body.Error.RequestID)
}

func TestSendSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	SendSuccess(rec, map[string]string{"status": "ok"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":{"status":"ok"}}`, rec.Body.String())
}

func TestErrorHandler_Notifies(t *testing.T) {
	handler := NewErrorHandler(nil)
	var notified *AppError
	handler.SetNotificationFunction(func(e *AppError) { notified = e })

	handler.HandleError(stderrors.New("plain"))

	require.NotNil(t, notified)
	assert.Equal(t, ErrorTypeInternal, notified.Type)
}
