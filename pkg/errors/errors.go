package errors

import (
	"errors"
	"fmt"
)

// Common pipeline errors
var (
	ErrSessionActive     = errors.New("a masking session is already running")
	ErrNoWorkingCopy     = errors.New("no working copy to operate on")
	ErrUnsupported       = errors.New("operation not supported by this store")
	ErrTableNotFound     = errors.New("table not found")
	ErrColumnNotFound    = errors.New("column not found")
	ErrDuplicateName     = errors.New("duplicate name")
	ErrNoBridgeResponse  = errors.New("no JSON response from synthetic generator")
	ErrMetricUnavailable = errors.New("metric unavailable")
)

// ErrorType represents the kind of a pipeline error
type ErrorType string

const (
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeStaging       ErrorType = "staging"
	ErrorTypePreparation   ErrorType = "preparation"
	ErrorTypeOperator      ErrorType = "operator"
	ErrorTypeMetric        ErrorType = "metric"
	ErrorTypeBridge        ErrorType = "bridge"
	ErrorTypeStorage       ErrorType = "storage"
)

// Fatal reports whether errors of this type abort a masking run
func (t ErrorType) Fatal() bool {
	return t != ErrorTypeMetric
}

// AppError represents a pipeline error with additional context
type AppError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details string                 `json:"details,omitempty"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Details != "" {
		msg += " - " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches another AppError of the same type and code
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// NewAppError creates a new pipeline error
func NewAppError(errType ErrorType, code, message string) *AppError {
	return &AppError{Type: errType, Code: code, Message: message}
}

// WrapError wraps an existing error with pipeline context
func WrapError(err error, errType ErrorType, code, message string) *AppError {
	return &AppError{Type: errType, Code: code, Message: message, Cause: err}
}

// NewConfigurationError reports invalid or missing operator parameters
func NewConfigurationError(code, format string, args ...interface{}) *AppError {
	return NewAppError(ErrorTypeConfiguration, code, fmt.Sprintf(format, args...))
}

// NewStagingError reports a working copy creation or teardown failure
func NewStagingError(err error, message string) *AppError {
	return WrapError(err, ErrorTypeStaging, "STAGING_FAILED", message)
}

// NewPreparationError reports an imputation entry that could not be applied
func NewPreparationError(err error, entry string) *AppError {
	return WrapError(err, ErrorTypePreparation, "PREPARATION_FAILED", fmt.Sprintf("preparation %s failed", entry)).
		WithContext("preparation", entry)
}

// NewOperatorError reports a failed masking operator
func NewOperatorError(err error, operator string) *AppError {
	return WrapError(err, ErrorTypeOperator, "OPERATOR_FAILED", fmt.Sprintf("operator %s failed", operator)).
		WithContext("operator", operator)
}

// NewMetricError reports a risk or utility metric that could not be computed
func NewMetricError(err error, metric string) *AppError {
	return WrapError(err, ErrorTypeMetric, "METRIC_UNAVAILABLE", fmt.Sprintf("metric %s unavailable", metric)).
		WithContext("metric", metric)
}

// NewBridgeError reports a failed exchange with the synthetic generator process
func NewBridgeError(err error, output string) *AppError {
	e := WrapError(err, ErrorTypeBridge, "BRIDGE_FAILED", "synthetic generator failed")
	if output != "" {
		e.Details = output
	}
	return e
}

// NewStorageError reports a failed statement against the dataset store
func NewStorageError(err error, message string) *AppError {
	return WrapError(err, ErrorTypeStorage, "STORAGE_FAILED", message)
}

// TypeOf returns the ErrorType of the first AppError in err's chain
func TypeOf(err error) (ErrorType, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type, true
	}
	return "", false
}

// IsType reports whether err carries an AppError of the given type
func IsType(err error, errType ErrorType) bool {
	t, ok := TypeOf(err)
	return ok && t == errType
}
