// Package errors defines the categorized error type used across the service.
// Each error carries a category (which drives the CLI exit code and the HTTP
// status), a code, a message for the user, an optional suggestion and free-form
// context, plus the stack captured at construction.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryFile          ErrorCategory = "file"
	CategoryParse         ErrorCategory = "parse"
	CategoryValidation    ErrorCategory = "validation"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryBackend       ErrorCategory = "backend"
	CategoryNetwork       ErrorCategory = "network"
	CategoryAuth          ErrorCategory = "auth"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// File errors
	CodeFileNotFound   ErrorCode = "file_not_found"
	CodeFilePermission ErrorCode = "file_permission"
	CodeFileCorrupted  ErrorCode = "file_corrupted"

	// Parse errors
	CodeInvalidFormat ErrorCode = "invalid_format"
	CodeEncodingError ErrorCode = "encoding_error"
	CodeSheetNotFound ErrorCode = "sheet_not_found"

	// Validation errors
	CodeInvalidDate   ErrorCode = "invalid_date"
	CodeMissingField  ErrorCode = "missing_field"
	CodeLockedField   ErrorCode = "locked_field"
	CodeRecordMissing ErrorCode = "record_missing"
	CodeNothingToDo   ErrorCode = "nothing_to_update"

	// Configuration errors
	CodeInvalidConfig  ErrorCode = "invalid_config"
	CodeMissingConfig  ErrorCode = "missing_config"
	CodeConfigConflict ErrorCode = "config_conflict"

	// Backend errors
	CodeOperationFailed ErrorCode = "operation_failed"
	CodeMalformedReply  ErrorCode = "malformed_reply"
	CodeStoreError      ErrorCode = "store_error"

	// Network errors
	CodeConnectionFailed   ErrorCode = "connection_failed"
	CodeTimeout            ErrorCode = "timeout"
	CodeServiceUnavailable ErrorCode = "service_unavailable"

	// Auth errors
	CodeBadCredentials ErrorCode = "bad_credentials"
	CodeForbidden      ErrorCode = "forbidden"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// AppError is the base error type for all application errors
type AppError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// ErrNothingToUpdate reports an edit whose change-set came out empty. It is
// not a failure: callers use it to skip the round trip to the backing store.
var ErrNothingToUpdate = New(CategoryValidation, CodeNothingToDo, "nothing to update")

// ErrOperationFailed matches every BackendError built with CodeOperationFailed.
var ErrOperationFailed = New(CategoryBackend, CodeOperationFailed, "operation did not take effect")

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches two AppErrors by category and code so that errors.Is works
// against the package sentinels.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// GetExitCode returns an appropriate exit code for the error
func (e *AppError) GetExitCode() int {
	switch e.Category {
	case CategoryFile:
		return 2
	case CategoryParse, CategoryValidation:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryBackend, CategoryInternal:
		return 5
	case CategoryNetwork:
		return 6
	case CategoryAuth:
		return 7
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *AppError) WithSuggestion(suggestion string) *AppError {
	e.Suggestion = suggestion
	return e
}

// New creates a new AppError
func New(category ErrorCategory, code ErrorCode, message string) *AppError {
	return &AppError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with AppError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}

	return &AppError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func build(category ErrorCategory, code ErrorCode, message string, err error) *AppError {
	if err != nil {
		return Wrap(err, category, code, message)
	}
	return New(category, code, message)
}

// FileError creates a file-related error
func FileError(code ErrorCode, path string, err error) *AppError {
	var message, suggestion string

	switch code {
	case CodeFileNotFound:
		message = fmt.Sprintf("file not found: %s", path)
		suggestion = "check if the file path is correct and the file exists"
	case CodeFilePermission:
		message = fmt.Sprintf("permission denied accessing file: %s", path)
		suggestion = "check file permissions and ensure you have read access"
	case CodeFileCorrupted:
		message = fmt.Sprintf("file appears to be corrupted: %s", path)
		suggestion = "export the sheet again and retry"
	default:
		message = fmt.Sprintf("file error: %s", path)
		suggestion = "check the file and try again"
	}

	return build(CategoryFile, code, message, err).
		WithSuggestion(suggestion).
		WithContext("file_path", path)
}

// ParseError creates an error for input that could not be read as a grid at
// all. Malformed delimited text never produces one; the parser degrades.
func ParseError(code ErrorCode, source string, detail string, err error) *AppError {
	var message, suggestion string

	switch code {
	case CodeEncodingError:
		message = fmt.Sprintf("encoding error in %s", source)
		suggestion = "save the export as UTF-8 or pass --encoding latin1"
	case CodeSheetNotFound:
		message = fmt.Sprintf("worksheet %q not found in %s", detail, source)
		suggestion = "check the worksheet name in the workbook"
	case CodeInvalidFormat:
		message = fmt.Sprintf("invalid format in %s: %s", source, detail)
		suggestion = "check the data format and ensure it matches the expected structure"
	default:
		message = fmt.Sprintf("parse error in %s", source)
		suggestion = "check the file format and data integrity"
	}

	return build(CategoryParse, code, message, err).
		WithSuggestion(suggestion).
		WithContext("source", source)
}

// ValidationError creates a validation-related error
func ValidationError(code ErrorCode, field string, value interface{}, err error) *AppError {
	var message, suggestion string

	switch code {
	case CodeInvalidDate:
		message = fmt.Sprintf("invalid date in field '%s': %v", field, value)
		suggestion = "use dd/mm/yyyy or yyyy-mm-dd"
	case CodeMissingField:
		message = fmt.Sprintf("required field '%s' is missing or empty", field)
		suggestion = "provide a value for this required field"
	case CodeLockedField:
		message = fmt.Sprintf("field '%s' is computed by the backing store and cannot be edited", field)
		suggestion = "remove the field from the edit"
	case CodeRecordMissing:
		message = fmt.Sprintf("no record with %s %v", field, value)
		suggestion = "reload the records and check the identifier"
	default:
		message = fmt.Sprintf("validation error in field '%s': %v", field, value)
		suggestion = "check the field value and format"
	}

	return build(CategoryValidation, code, message, err).
		WithSuggestion(suggestion).
		WithContext("field", field).
		WithContext("value", value)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *AppError {
	var message, suggestion string

	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this configuration setting or use a config file"
	case CodeConfigConflict:
		message = fmt.Sprintf("configuration conflict with setting '%s': %v", setting, value)
		suggestion = "resolve the conflicting settings or use default values"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	return build(CategoryConfiguration, code, message, err).
		WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// BackendError reports that a create, update or delete did not take effect.
// The store's own message is passed through unchanged.
func BackendError(code ErrorCode, operation string, storeMessage string, err error) *AppError {
	var message string

	switch code {
	case CodeOperationFailed:
		message = fmt.Sprintf("%s did not take effect", operation)
		if storeMessage != "" {
			message = fmt.Sprintf("%s did not take effect: %s", operation, storeMessage)
		}
	case CodeMalformedReply:
		message = fmt.Sprintf("unreadable reply to %s", operation)
	default:
		message = fmt.Sprintf("backing store error during %s", operation)
	}

	return build(CategoryBackend, code, message, err).
		WithSuggestion("try again; the change was not applied").
		WithContext("operation", operation)
}

// NetworkError creates a network-related error
func NetworkError(code ErrorCode, endpoint string, err error) *AppError {
	var message, suggestion string

	switch code {
	case CodeConnectionFailed:
		message = fmt.Sprintf("connection failed to %s", endpoint)
		suggestion = "check network connectivity and endpoint availability"
	case CodeTimeout:
		message = fmt.Sprintf("timeout connecting to %s", endpoint)
		suggestion = "increase timeout setting or check network speed"
	case CodeServiceUnavailable:
		message = fmt.Sprintf("service unavailable: %s", endpoint)
		suggestion = "try again later or contact service administrator"
	default:
		message = fmt.Sprintf("network error: %s", endpoint)
		suggestion = "check network connection and try again"
	}

	return build(CategoryNetwork, code, message, err).
		WithSuggestion(suggestion).
		WithContext("endpoint", endpoint)
}

// AuthError reports a rejected login or an action the viewer's role may
// not take. subject names the action and may be empty.
func AuthError(code ErrorCode, subject string) *AppError {
	var message, suggestion string

	switch code {
	case CodeBadCredentials:
		message = "invalid credentials"
		suggestion = "check the unit and the password"
	case CodeForbidden:
		message = fmt.Sprintf("%s requires the administrator", subject)
		suggestion = "log in as the administrator"
	default:
		message = fmt.Sprintf("access denied: %s", subject)
		suggestion = "check your role"
	}

	err := New(CategoryAuth, code, message).WithSuggestion(suggestion)
	if subject != "" {
		err.WithContext("subject", subject)
	}
	return err
}

// InternalError creates an internal error
func InternalError(code ErrorCode, operation string, err error) *AppError {
	return build(CategoryInternal, code, fmt.Sprintf("unexpected error during %s", operation), err).
		WithSuggestion("this is likely a bug - please report it with the error details").
		WithContext("operation", operation)
}

// AsAppError extracts an AppError from an error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// WrapIfNeeded wraps an error if it's not already an AppError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}
	return Wrap(err, category, code, message)
}

// IsNothingToUpdate reports whether err signals an empty change-set.
func IsNothingToUpdate(err error) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == CodeNothingToDo
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
