// FilePath: internal/errors/errors.go
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Error types
	ErrorTypeValidation        ErrorType = "validation"
	ErrorTypeNotFound          ErrorType = "not_found"
	ErrorTypeNoTelemetry       ErrorType = "no_telemetry"
	ErrorTypeInconsistentState ErrorType = "inconsistent_state"
	ErrorTypePartialWrite      ErrorType = "partial_write"
	ErrorTypeConflict          ErrorType = "conflict"
	ErrorTypeDatabase          ErrorType = "database"
	ErrorTypeCache             ErrorType = "cache"
	ErrorTypeUnavailable       ErrorType = "service_unavailable"
	ErrorTypeInternal          ErrorType = "internal"
)

// APIError represents a structured error that crosses store, service and HTTP boundaries
type APIError struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Code      int       `json:"code"`
	RequestID string    `json:"request_id,omitempty"`
	SensorID  int64     `json:"sensor_id,omitempty"`
	Details   any       `json:"details,omitempty"`
	err       error     // Internal error for logging
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the internal cause to errors.Is / errors.As
func (e *APIError) Unwrap() error {
	return e.err
}

// WithRequestID adds a request ID to the error
func (e *APIError) WithRequestID(id string) *APIError {
	e.RequestID = id
	return e
}

// WithDetails adds additional details to the error
func (e *APIError) WithDetails(details any) *APIError {
	e.Details = details
	return e
}

// WithSensorID records the sensor the error refers to
func (e *APIError) WithSensorID(id int64) *APIError {
	e.SensorID = id
	return e
}

func newError(t ErrorType, code int, msg string, err error) *APIError {
	return &APIError{
		Type:    t,
		Message: msg,
		Code:    code,
		err:     err,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(msg string, err error) *APIError {
	return newError(ErrorTypeValidation, http.StatusBadRequest, msg, err)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(msg string, err error) *APIError {
	return newError(ErrorTypeNotFound, http.StatusNotFound, msg, err)
}

// NewNoTelemetryError reports a sensor that exists but has never reported a reading
func NewNoTelemetryError(sensorID int64, err error) *APIError {
	return newError(ErrorTypeNoTelemetry, http.StatusNotFound, "sensor has no telemetry", err).WithSensorID(sensorID)
}

// NewInconsistentStateError reports an identity whose companion records are missing
func NewInconsistentStateError(msg string, sensorID int64, err error) *APIError {
	return newError(ErrorTypeInconsistentState, http.StatusConflict, msg, err).WithSensorID(sensorID)
}

// NewPartialWriteError reports a multi-store write that stopped after some stores were changed.
// sensorID is the identity left behind.
func NewPartialWriteError(msg string, sensorID int64, err error) *APIError {
	return newError(ErrorTypePartialWrite, http.StatusInternalServerError, msg, err).WithSensorID(sensorID)
}

// NewConflictError creates a new conflict error
func NewConflictError(msg string, err error) *APIError {
	return newError(ErrorTypeConflict, http.StatusConflict, msg, err)
}

// NewDatabaseError creates a new database error
func NewDatabaseError(msg string, err error) *APIError {
	return newError(ErrorTypeDatabase, http.StatusInternalServerError, msg, err)
}

// NewCacheError creates a new cache error
func NewCacheError(msg string, err error) *APIError {
	return newError(ErrorTypeCache, http.StatusInternalServerError, msg, err)
}

// NewUnavailableError creates a new service unavailable error
func NewUnavailableError(msg string, err error) *APIError {
	return newError(ErrorTypeUnavailable, http.StatusServiceUnavailable, msg, err)
}

// NewInternalError creates a new internal server error
func NewInternalError(msg string, err error) *APIError {
	return newError(ErrorTypeInternal, http.StatusInternalServerError, msg, err)
}

// As returns the outermost APIError in err's chain
func As(err error) (*APIError, bool) {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// TypeOf returns the error type of err, or an empty type for foreign errors
func TypeOf(err error) ErrorType {
	if apiErr, ok := As(err); ok {
		return apiErr.Type
	}
	return ""
}

// SensorIDOf returns the sensor id carried by err, if any
func SensorIDOf(err error) (int64, bool) {
	if apiErr, ok := As(err); ok && apiErr.SensorID != 0 {
		return apiErr.SensorID, true
	}
	return 0, false
}

// IsNotFound checks if an error is a NotFound error
func IsNotFound(err error) bool {
	return TypeOf(err) == ErrorTypeNotFound
}

// IsNoTelemetry checks if an error is a NoTelemetry error
func IsNoTelemetry(err error) bool {
	return TypeOf(err) == ErrorTypeNoTelemetry
}

// IsInconsistentState checks if an error is an InconsistentState error
func IsInconsistentState(err error) bool {
	return TypeOf(err) == ErrorTypeInconsistentState
}

// IsPartialWrite checks if an error is a PartialWrite error
func IsPartialWrite(err error) bool {
	return TypeOf(err) == ErrorTypePartialWrite
}

// IsValidation checks if an error is a Validation error
func IsValidation(err error) bool {
	return TypeOf(err) == ErrorTypeValidation
}

// IsConflict checks if an error is a Conflict error
func IsConflict(err error) bool {
	return TypeOf(err) == ErrorTypeConflict
}

// IsUnavailable checks if an error is a ServiceUnavailable error
func IsUnavailable(err error) bool {
	return TypeOf(err) == ErrorTypeUnavailable
}

// IsLogical reports whether err describes the data rather than a failing store.
// Logical errors must never be retried.
func IsLogical(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeValidation, ErrorTypeNotFound, ErrorTypeNoTelemetry,
		ErrorTypeInconsistentState, ErrorTypeConflict:
		return true
	}
	return false
}

// StatusCode maps any error to an HTTP status
func StatusCode(err error) int {
	if apiErr, ok := As(err); ok && apiErr.Code != 0 {
		return apiErr.Code
	}
	return http.StatusInternalServerError
}
