package errors

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"
)

// ErrorCode represents a unique error code for categorizing errors
type ErrorCode string

const (
	// Connection errors (1xxx)
	ErrCodeConnectionFailed ErrorCode = "KCDB1001"

	// Configuration errors (2xxx)
	ErrCodeConfigNotFound ErrorCode = "KCDB2001"
	ErrCodeConfigInvalid  ErrorCode = "KCDB2002"

	// Warehouse errors (4xxx)
	ErrCodeSQLExecution  ErrorCode = "KCDB4001"
	ErrCodeTableExists   ErrorCode = "KCDB4002"
	ErrCodeTableNotFound ErrorCode = "KCDB4003"
	ErrCodeLoadFailed    ErrorCode = "KCDB4004"
	ErrCodeStagingFailed ErrorCode = "KCDB4005"
	ErrCodeResultParsing ErrorCode = "KCDB4006"

	// Data errors (6xxx)
	ErrCodeSchemaViolation    ErrorCode = "KCDB6001"
	ErrCodeInvalidInput       ErrorCode = "KCDB6002"
	ErrCodeReferenceViolation ErrorCode = "KCDB6003"

	// System errors (9xxx)
	ErrCodeInternal ErrorCode = "KCDB9001"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "CRITICAL"
	SeverityError    ErrorSeverity = "ERROR"
	SeverityWarning  ErrorSeverity = "WARNING"
)

// AppError represents a structured application error with context
type AppError struct {
	Code        ErrorCode
	Message     string
	Severity    ErrorSeverity
	Context     map[string]interface{}
	Cause       error
	Stack       string
	Timestamp   time.Time
	Suggestions []string
}

// Error implements the error interface
func (e *AppError) Error() string {
	var b strings.Builder
	if strings.HasPrefix(e.Message, string(e.Severity)+":") {
		b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))
	} else {
		b.WriteString(fmt.Sprintf("[%s] %s: %s", e.Code, e.Severity, e.Message))
	}

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\nCaused by: %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\nSuggestions:")
		for i, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  %d. %s", i+1, suggestion))
		}
	}

	return b.String()
}

// Unwrap returns the cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any AppError carrying the same code
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Severity:  SeverityError,
		Context:   make(map[string]interface{}),
		Stack:     captureStack(),
		Timestamp: time.Now(),
	}
}

// Wrap wraps an existing error with AppError
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}

	return withCause(New(code, message), err)
}

// withCause attaches an optional cause. Unlike Wrap it never returns nil.
func withCause(appErr *AppError, cause error) *AppError {
	if cause == nil {
		return appErr
	}
	appErr.Cause = cause

	// Context of a wrapped AppError carries over
	var ae *AppError
	if errors.As(cause, &ae) {
		for k, v := range ae.Context {
			appErr.Context[k] = v
		}
	}
	return appErr
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSeverity sets the error severity
func (e *AppError) WithSeverity(severity ErrorSeverity) *AppError {
	e.Severity = severity
	return e
}

// WithSuggestions adds recovery suggestions
func (e *AppError) WithSuggestions(suggestions ...string) *AppError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// ContextKeys returns the context keys in sorted order
func (e *AppError) ContextKeys() []string {
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var b strings.Builder
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			b.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}

	return b.String()
}

// Common error constructors

// ConnectionError creates a connection-related error
func ConnectionError(message string, cause error) *AppError {
	return withCause(New(ErrCodeConnectionFailed, message), cause).
		WithSuggestions(
			"Check your network connection",
			"Verify the warehouse account and credentials",
			"Check the file named by KCIDB_CREDENTIALS",
		)
}

// ConfigError creates a configuration-related error
func ConfigError(message string, field string) *AppError {
	return New(ErrCodeConfigInvalid, message).
		WithContext("field", field).
		WithSuggestions(
			fmt.Sprintf("Check the '%s' configuration value", field),
			"Any key can be overridden with a KCIDB_ environment variable",
		)
}

// SQLError creates an SQL execution error
func SQLError(message string, query string, cause error) *AppError {
	return withCause(New(ErrCodeSQLExecution, message), cause).
		WithContext("query", truncateString(query, 200))
}

// TableExistsError reports a table that is already present in a dataset
func TableExistsError(dataset, table string, cause error) *AppError {
	return withCause(New(ErrCodeTableExists, fmt.Sprintf("Table %s.%s already exists", dataset, table)), cause).
		WithContext("dataset", dataset).
		WithContext("table", table).
		WithSuggestions("Run 'kcidb cleanup' first, or initialize a different dataset")
}

// TableNotFoundError reports a table missing from a dataset
func TableNotFoundError(dataset, table string, cause error) *AppError {
	return withCause(New(ErrCodeTableNotFound, fmt.Sprintf("Table %s.%s does not exist", dataset, table)), cause).
		WithContext("dataset", dataset).
		WithContext("table", table).
		WithSuggestions("Run 'kcidb init' to create the dataset tables")
}

// LoadError aggregates row-level load failures into a single error.
// The message holds one "ERROR: <message>" line per row failure.
func LoadError(table string, messages []string) *AppError {
	var b strings.Builder
	for _, msg := range messages {
		b.WriteString("ERROR: ")
		b.WriteString(msg)
		b.WriteString("\n")
	}
	return New(ErrCodeLoadFailed, strings.TrimSuffix(b.String(), "\n")).
		WithContext("table", table).
		WithContext("errors", len(messages))
}

// SchemaViolationError creates an exchange schema validation error
func SchemaViolationError(violations []string) *AppError {
	msg := "Data does not conform to the I/O schema"
	if len(violations) > 0 {
		msg += ":\n  " + strings.Join(violations, "\n  ")
	}
	return New(ErrCodeSchemaViolation, msg).
		WithContext("violations", violations)
}

// ValidationError creates an invalid input error
func ValidationError(field string, value interface{}, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Validation failed for %s: %s", field, reason)).
		WithContext("field", field).
		WithContext("value", value)
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether any AppError in err's chain carries code
func HasCode(err error, code ErrorCode) bool {
	return errors.Is(err, &AppError{Code: code})
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
