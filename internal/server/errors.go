package server

import (
	"github.com/localforge/memorybank/internal/errortypes"
)

// Response error codes surfaced in tool responses
const (
	StatusCodeValidationError = "VALIDATION_ERROR"
	StatusCodeDatabaseError   = "DATABASE_ERROR"
	StatusCodeAPIError        = "API_ERROR"
	StatusCodeInternalError   = "INTERNAL_ERROR"
)

// codeForError maps an application error to a response error code.
func codeForError(err error) string {
	switch {
	case errortypes.IsValidationError(err):
		return StatusCodeValidationError
	case errortypes.IsDatabaseError(err):
		return StatusCodeDatabaseError
	default:
		return StatusCodeInternalError
	}
}

// describeFailure logs a failed operation with structured context and
// returns the message placed in the response's Error field. Failures are
// folded into responses rather than returned as protocol errors so a single
// bad operation never tears down the MCP session.
func describeFailure(operation string, err error) string {
	appErr := errortypes.InternalError(err, "operation failed").
		WithField("operation", operation).
		WithField("error_code", codeForError(err))
	errortypes.LogError(nil, appErr)

	return err.Error()
}
