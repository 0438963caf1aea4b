package core

import "errors"

// Error codes surfaced to clients.
const (
	ErrCodeUnauthenticated   = "unauthenticated"
	ErrCodeRecipientNotFound = "recipient_not_found"
	ErrCodeValidationFailed  = "validation_failed"
	ErrCodePersistenceFailed = "persistence_failed"
	ErrCodeBadRequest        = "bad_request"
)

// CoreError wraps a protocol-visible code and human-readable message.
type CoreError struct {
	Code    string
	Message string
	cause   error
}

func (e *CoreError) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.cause
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

func wrapError(code, msg string, cause error) *CoreError {
	return &CoreError{Code: code, Message: msg, cause: cause}
}

// ErrCode extracts the protocol code from an error chain, or "" if the error
// did not originate in the core.
func ErrCode(err error) string {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
