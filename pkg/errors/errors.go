// Package pkgerrors defines the typed error taxonomy for the identity
// registry. Services return these so transports can translate them into
// precise responses, and so deep merge/ingestion failures keep the field
// path or document index that caused them.
package pkgerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a registry error.
type Code string

const (
	// CodeInvalidInput covers malformed identifiers, malformed biometric
	// containers, and bad paths handed to the merge.
	CodeInvalidInput Code = "INVALID_INPUT"
	// CodeRecordNotFound is returned when an update targets an unknown
	// hashed identifier.
	CodeRecordNotFound Code = "RECORD_NOT_FOUND"
	// CodeSaltNotFound signals shard misconfiguration. Fatal for the
	// request; never retried.
	CodeSaltNotFound Code = "SALT_NOT_FOUND"
	// CodeStorageAccess signals the blob store is unavailable.
	CodeStorageAccess Code = "STORAGE_ACCESS_ERROR"
	// CodeProcessingFailed covers payload (de)serialization and
	// structural comparison failures.
	CodeProcessingFailed Code = "PROCESSING_FAILED"
	// CodeConflict is returned when a concurrent writer won the record
	// version race. The caller owns retry policy.
	CodeConflict Code = "CONFLICT"
	CodeInternal Code = "INTERNAL"
)

// Error carries the error kind plus the contextual path or index that
// raised it (e.g. "documents/2/value" or "identity.fullName").
type Error struct {
	Code    Code
	Message string
	Path    string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s (%s): %v", e.Code, e.Message, e.Path, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Path)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a registry error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a cause to a registry error.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WithPath returns a copy of the error annotated with the offending field
// path or document index.
func (e *Error) WithPath(path string) *Error {
	clone := *e
	clone.Path = path
	return &clone
}

// CodeOf extracts the registry code from an error chain, defaulting to
// CodeInternal for unclassified errors.
func CodeOf(err error) Code {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// ToHTTPStatus maps registry codes onto HTTP statuses for the transport
// layer's error envelopes.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeRecordNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeSaltNotFound, CodeProcessingFailed, CodeInternal:
		return http.StatusInternalServerError
	case CodeStorageAccess:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
