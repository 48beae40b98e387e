// Package errors defines the typed error taxonomy for statement processing.
//
// Errors are grouped into categories that mirror how failures propagate
// through the pipeline:
//
//   - document errors are fatal for the statement being parsed (no account
//     blocks found, unreadable text layer)
//   - extraction errors are recoverable gaps (a block missing its period or
//     IBAN) that downgrade the statement to partial status
//   - field errors are row-level ambiguities that flag a single transaction
//     for review and never abort the statement
//   - storage errors cover persistence concerns; a duplicate upload is
//     represented here but is not a failure — callers receive the existing
//     statement instead
//
// Every error carries a category, a specific code, optional context values
// and a human-readable suggestion.
package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryDocument      ErrorCategory = "document"
	CategoryExtraction    ErrorCategory = "extraction"
	CategoryField         ErrorCategory = "field"
	CategoryStorage       ErrorCategory = "storage"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// Document errors (parse_status=fail)
	CodeMalformedDocument ErrorCode = "malformed_document"
	CodeUnreadableText    ErrorCode = "unreadable_text"

	// Extraction errors (parse_status=partial)
	CodeMissingPeriod ErrorCode = "missing_period"
	CodeMissingIBAN   ErrorCode = "missing_iban"
	CodeEmptySection  ErrorCode = "empty_section"

	// Field errors (per-transaction needs_review)
	CodeFieldAmbiguity   ErrorCode = "field_ambiguity"
	CodeCurrencyMismatch ErrorCode = "currency_mismatch"
	CodeInvalidDate      ErrorCode = "invalid_date"

	// Storage errors
	CodeDuplicateUpload ErrorCode = "duplicate_upload"
	CodeNotFound        ErrorCode = "not_found"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeInvalidRules  ErrorCode = "invalid_rules"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// StatementError is the base error type for all application errors
type StatementError struct {
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

// Error implements the error interface
func (e *StatementError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *StatementError) Unwrap() error {
	return e.Cause
}

// GetExitCode returns an appropriate process exit code for the error
func (e *StatementError) GetExitCode() int {
	switch e.Category {
	case CategoryDocument, CategoryExtraction:
		return 2
	case CategoryField:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryStorage, CategoryInternal:
		return 5
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *StatementError) WithContext(key string, value interface{}) *StatementError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *StatementError) WithSuggestion(suggestion string) *StatementError {
	e.Suggestion = suggestion
	return e
}

// New creates a new StatementError
func New(category ErrorCategory, code ErrorCode, message string) *StatementError {
	return &StatementError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with StatementError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *StatementError {
	if err == nil {
		return nil
	}

	return &StatementError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// DocumentError creates a statement-fatal document error. The file name is
// optional; callers below the upload boundary may not know it.
func DocumentError(code ErrorCode, fileName string, err error) *StatementError {
	var message string
	var suggestion string

	switch code {
	case CodeMalformedDocument:
		message = "no account blocks found in document"
		suggestion = "verify the document is a supported account statement with a text layer"
	case CodeUnreadableText:
		message = "no readable text layer in document"
		suggestion = "image-only scans are not supported; export the statement with embedded text"
	default:
		message = "document error"
		suggestion = "check the document and try again"
	}
	if fileName != "" {
		message = fmt.Sprintf("%s %s", message, fileName)
	}

	var result *StatementError
	if err != nil {
		result = Wrap(err, CategoryDocument, code, message)
	} else {
		result = New(CategoryDocument, code, message)
	}

	result = result.WithSuggestion(suggestion)
	if fileName != "" {
		result = result.WithContext("file_name", fileName)
	}
	return result
}

// ExtractionError creates a recoverable extraction gap error. Statements
// carrying these proceed with partial status.
func ExtractionError(code ErrorCode, accountName, currency string) *StatementError {
	var message string

	switch code {
	case CodeMissingPeriod:
		message = fmt.Sprintf("account block %s (%s) has no statement period line", accountName, currency)
	case CodeMissingIBAN:
		message = fmt.Sprintf("account block %s (%s) has no IBAN", accountName, currency)
	case CodeEmptySection:
		message = fmt.Sprintf("account block %s (%s) has a transaction table header but no transactions", accountName, currency)
	default:
		message = fmt.Sprintf("extraction gap in account block %s (%s)", accountName, currency)
	}

	return New(CategoryExtraction, code, message).
		WithContext("account_name", accountName).
		WithContext("currency", currency)
}

// FieldError creates a row-level field recovery error. These mark a single
// transaction for review and never abort the statement.
func FieldError(code ErrorCode, detail string, err error) *StatementError {
	var message string

	switch code {
	case CodeFieldAmbiguity:
		message = fmt.Sprintf("could not determine amount or direction: %s", detail)
	case CodeCurrencyMismatch:
		message = fmt.Sprintf("amount currency disagrees with account block currency: %s", detail)
	case CodeInvalidDate:
		message = fmt.Sprintf("invalid transaction date: %s", detail)
	default:
		message = fmt.Sprintf("field recovery error: %s", detail)
	}

	var result *StatementError
	if err != nil {
		result = Wrap(err, CategoryField, code, message)
	} else {
		result = New(CategoryField, code, message)
	}

	return result.WithContext("detail", detail)
}

// StorageError creates a storage-related error
func StorageError(code ErrorCode, id string, err error) *StatementError {
	var message string
	var suggestion string

	switch code {
	case CodeDuplicateUpload:
		message = fmt.Sprintf("statement with identical content already exists: %s", id)
		suggestion = "re-uploads are idempotent; use the returned statement id"
	case CodeNotFound:
		message = fmt.Sprintf("record not found: %s", id)
		suggestion = "check the identifier"
	default:
		message = fmt.Sprintf("storage error for %s", id)
		suggestion = "retry the operation"
	}

	var result *StatementError
	if err != nil {
		result = Wrap(err, CategoryStorage, code, message)
	} else {
		result = New(CategoryStorage, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("id", id)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, err error) *StatementError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidRules:
		message = fmt.Sprintf("invalid categorization rules: %s", setting)
		suggestion = "fix the rules document; the previous rule set stays active until a valid one loads"
	default:
		message = fmt.Sprintf("invalid configuration: %s", setting)
		suggestion = "check the configuration documentation for valid values"
	}

	var result *StatementError
	if err != nil {
		result = Wrap(err, CategoryConfiguration, code, message)
	} else {
		result = New(CategoryConfiguration, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("setting", setting)
}

// InternalError creates an internal error
func InternalError(operation string, err error) *StatementError {
	message := fmt.Sprintf("unexpected error during %s", operation)

	var result *StatementError
	if err != nil {
		result = Wrap(err, CategoryInternal, CodeUnexpectedError, message)
	} else {
		result = New(CategoryInternal, CodeUnexpectedError, message)
	}

	return result.
		WithSuggestion("this is likely a bug - please report it with the error details").
		WithContext("operation", operation)
}

// Warnings collects recoverable problems encountered while parsing a single
// statement, in the order they occurred.
type Warnings struct {
	Items []*StatementError `json:"items"`
}

// Add appends a warning
func (w *Warnings) Add(err *StatementError) {
	w.Items = append(w.Items, err)
}

// HasCategory checks if any warning belongs to the given category
func (w *Warnings) HasCategory(category ErrorCategory) bool {
	for _, item := range w.Items {
		if item.Category == category {
			return true
		}
	}
	return false
}

// Messages returns the human-readable warning messages
func (w *Warnings) Messages() []string {
	messages := make([]string, 0, len(w.Items))
	for _, item := range w.Items {
		messages = append(messages, item.Message)
	}
	return messages
}

// String returns a single-line summary of the warnings
func (w *Warnings) String() string {
	if len(w.Items) == 0 {
		return "no warnings"
	}
	return fmt.Sprintf("%d warnings (%s)", len(w.Items), strings.Join(w.Messages(), "; "))
}

// IsStatementError checks if an error is a StatementError
func IsStatementError(err error) bool {
	_, ok := err.(*StatementError)
	return ok
}

// AsStatementError extracts a StatementError from an error chain
func AsStatementError(err error) (*StatementError, bool) {
	var statementErr *StatementError
	if errors.As(err, &statementErr) {
		return statementErr, true
	}
	return nil, false
}

// IsCode reports whether err carries the given error code
func IsCode(err error, code ErrorCode) bool {
	if statementErr, ok := AsStatementError(err); ok {
		return statementErr.Code == code
	}
	return false
}

// WrapIfNeeded wraps an error if it's not already a StatementError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *StatementError {
	if err == nil {
		return nil
	}

	if statementErr, ok := AsStatementError(err); ok {
		return statementErr
	}

	return Wrap(err, category, code, message)
}
