package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeAuthorization  ErrorType = "authorization"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeConflict       ErrorType = "conflict"
	ErrorTypeInternal       ErrorType = "internal"
	ErrorTypeExternal       ErrorType = "external"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeTimeout        ErrorType = "timeout"
	ErrorTypeUnavailable    ErrorType = "unavailable"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	StatusCode int                    `json:"-"`
	Timestamp  time.Time              `json:"timestamp"`
	RequestID  string                 `json:"request_id,omitempty"`
	UserID     string                 `json:"user_id,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison for errors.Is()
func (e *AppError) Is(target error) bool {
	if appErr, ok := target.(*AppError); ok {
		return e.Type == appErr.Type && e.Code == appErr.Code
	}
	return false
}

// NewAppError creates a new application error
func NewAppError(errorType ErrorType, code, message string, cause error) *AppError {
	return &AppError{
		Type:       errorType,
		Code:       code,
		Message:    message,
		Cause:      cause,
		StatusCode: getStatusCodeForErrorType(errorType),
		Timestamp:  time.Now(),
	}
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithRequestID adds request ID to the error
func (e *AppError) WithRequestID(requestID string) *AppError {
	e.RequestID = requestID
	return e
}

// WithUserID adds user ID to the error
func (e *AppError) WithUserID(userID string) *AppError {
	e.UserID = userID
	return e
}

// getStatusCodeForErrorType maps error types to HTTP status codes
func getStatusCodeForErrorType(errorType ErrorType) int {
	switch errorType {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeAuthorization:
		return http.StatusForbidden
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeConflict:
		return http.StatusConflict
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	case ErrorTypeExternal:
		return http.StatusBadGateway
	case ErrorTypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Common error constructors for frequent use cases

// NewValidationError creates a validation error
func NewValidationError(message string, details map[string]interface{}) *AppError {
	return NewAppError(ErrorTypeValidation, "VALIDATION_FAILED", message, nil).WithDetails(details)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrorTypeNotFound, "RESOURCE_NOT_FOUND", fmt.Sprintf("%s not found", resource), nil)
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeInternal, "INTERNAL_ERROR", message, cause)
}

// NewExternalError creates an external service error
func NewExternalError(service string, cause error) *AppError {
	return NewAppError(ErrorTypeExternal, "EXTERNAL_SERVICE_ERROR",
		fmt.Sprintf("External service %s failed", service), cause)
}

// NewAuthenticationError creates an authentication error
func NewAuthenticationError(message string) *AppError {
	return NewAppError(ErrorTypeAuthentication, "AUTHENTICATION_FAILED", message, nil)
}

// NewAuthorizationError creates an authorization error
func NewAuthorizationError(message string) *AppError {
	return NewAppError(ErrorTypeAuthorization, "AUTHORIZATION_FAILED", message, nil)
}

// NewUnavailableError reports a feature whose backing service is not configured
func NewUnavailableError(feature string) *AppError {
	return NewAppError(ErrorTypeUnavailable, "SERVICE_UNAVAILABLE",
		fmt.Sprintf("%s is not configured", feature), nil)
}

// upstreamStatus is implemented by errors that carry the status of a failed upstream call.
type upstreamStatus interface {
	UpstreamStatus() int
}

// FromError classifies an arbitrary error for an HTTP response. Errors that
// are already AppErrors pass through untouched.
func FromError(service string, err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return NewAppError(ErrorTypeTimeout, "UPSTREAM_TIMEOUT",
			fmt.Sprintf("External service %s timed out", service), err)
	}

	var us upstreamStatus
	if stderrors.As(err, &us) {
		return NewExternalError(service, err).WithDetails(map[string]interface{}{
			"upstream_status": us.UpstreamStatus(),
		})
	}

	return NewExternalError(service, err)
}

// ErrorHandler handles errors consistently across the application
type ErrorHandler struct {
	logger     *zap.Logger
	notifyFunc func(*AppError)
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *zap.Logger) *ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorHandler{logger: logger}
}

// SetNotificationFunction sets a function to call when errors occur
func (eh *ErrorHandler) SetNotificationFunction(fn func(*AppError)) {
	eh.notifyFunc = fn
}

// HandleError logs an error and optionally notifies
func (eh *ErrorHandler) HandleError(err error) {
	if err == nil {
		return
	}

	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		appErr = NewInternalError("Unexpected error occurred", err)
	}

	fields := []zap.Field{
		zap.String("type", string(appErr.Type)),
		zap.String("code", appErr.Code),
		zap.Int("status", appErr.StatusCode),
	}
	if appErr.RequestID != "" {
		fields = append(fields, zap.String("request_id", appErr.RequestID))
	}
	if appErr.UserID != "" {
		fields = append(fields, zap.String("user_id", appErr.UserID))
	}
	if appErr.Details != nil {
		fields = append(fields, zap.Any("details", appErr.Details))
	}
	if appErr.Cause != nil {
		fields = append(fields, zap.Error(appErr.Cause))
	}

	if appErr.StatusCode >= http.StatusInternalServerError {
		eh.logger.Error(appErr.Message, fields...)
	} else {
		eh.logger.Warn(appErr.Message, fields...)
	}

	if eh.notifyFunc != nil {
		eh.notifyFunc(appErr)
	}
}

// APIError represents a standardized API error response
type APIError struct {
	Error     string                 `json:"error"`
	Message   string                 `json:"message"`
	Code      string                 `json:"code,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	RequestID string                 `json:"request_id,omitempty"`
}

// APIResponse represents a standardized API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// SendError sends a standardized error response
func SendError(w http.ResponseWriter, appErr *AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)

	response := APIResponse{
		Success: false,
		Error: &APIError{
			Error:     http.StatusText(appErr.StatusCode),
			Message:   appErr.Message,
			Code:      appErr.Code,
			Details:   appErr.Details,
			Timestamp: appErr.Timestamp,
			RequestID: appErr.RequestID,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// SendSuccess sends a standardized success response
func SendSuccess(w http.ResponseWriter, data interface{}) {
	SendSuccessWithStatus(w, http.StatusOK, data)
}

// SendSuccessWithStatus sends a standardized success response with a custom status
func SendSuccessWithStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(APIResponse{
		Success: true,
		Data:    data,
	})
}
