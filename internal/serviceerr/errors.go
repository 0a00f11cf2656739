package serviceerr

import "errors"

type Code string

const (
	CodeNotFound           Code = "not_found"
	CodeNotPersisted       Code = "not_persisted"
	CodeSessionUnavailable Code = "session_unavailable"
	CodeUnauthorized       Code = "unauthorized"
	CodeMalformedResponse  Code = "malformed_response"
)

// Error is a session lifecycle error with a stable code.
type Error struct {
	Err         Code
	Description string
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Err)
	}

	return string(e.Err) + ": " + e.Description
}

var (
	// ErrNotFound is returned by credential backends for missing keys.
	ErrNotFound = &Error{Err: CodeNotFound, Description: "not found"}

	// ErrNotPersisted means a new session could not be written to any scope.
	ErrNotPersisted = &Error{Err: CodeNotPersisted, Description: "credentials could not be stored"}

	// ErrSessionUnavailable means there is no usable credential and it could not be renewed.
	ErrSessionUnavailable = &Error{Err: CodeSessionUnavailable, Description: "session unavailable"}

	// ErrUnauthorized means the server kept rejecting the credential after the retry.
	ErrUnauthorized = &Error{Err: CodeUnauthorized, Description: "credential rejected by the server"}

	ErrMalformedResponse = &Error{Err: CodeMalformedResponse, Description: "malformed response body"}
)

// IsSessionEnding reports whether err ended the local session.
func IsSessionEnding(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	return e.Err == CodeSessionUnavailable || e.Err == CodeUnauthorized
}
