// Package errors provides custom error types for the msgdash application.
//
// This package defines the error taxonomy of the dashboard data layer. Every
// error produced by the backend client or by user input maps to one of these
// types, and the session converts all of them into a single display-level
// notification at the operation boundary.
//
// Taxonomy:
//   - NetworkError: request rejected or non-2xx response
//   - MalformedResponseError: response body does not match the expected shape
//     (classified as a network failure)
//   - NotFoundError: the backend does not know the requested resource
//   - UserInputError: invalid file or server path supplied by the user
//   - TerminalJobError: the processing job finished in the error state
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrPollTimeout is reported when the poller's safety timeout elapses before
// the job reaches a terminal status.
var ErrPollTimeout = stderrors.New("processing status polling timed out")

// ErrSessionClosed is returned by session operations after Close.
var ErrSessionClosed = stderrors.New("session closed")

// NetworkError indicates that a backend request failed.
//
// This error is returned when:
//   - The HTTP request could not be sent (connection refused, timeout)
//   - The backend answered with a non-2xx status code
//
// StatusCode is zero when no response was received.
type NetworkError struct {
	Op         string
	StatusCode int
	Detail     string
	Err        error
}

func (e *NetworkError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Detail != "":
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Detail)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op + ": request failed"
}

// Unwrap returns the wrapped error for error chain inspection
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a network error for a failed request
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err}
}

// NewStatusError creates a network error for a non-2xx response
func NewStatusError(op string, statusCode int, detail string) *NetworkError {
	return &NetworkError{Op: op, StatusCode: statusCode, Detail: detail}
}

// MalformedResponseError indicates that a response body could not be decoded
// or failed validation at the API boundary.
type MalformedResponseError struct {
	Op  string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response: %v", e.Op, e.Err)
}

// Unwrap returns the wrapped error for error chain inspection
func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// NewMalformedResponseError creates a malformed response error with context
func NewMalformedResponseError(op string, err error) *MalformedResponseError {
	return &MalformedResponseError{Op: op, Err: err}
}

// NotFoundError indicates that the backend does not know a resource id.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// NewNotFoundError creates a not found error for a resource id
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// UserInputError indicates invalid input supplied by the user, such as a
// non-JSON upload or an empty server path.
//
// Recovery strategy: none, the user corrects the input.
type UserInputError struct {
	Message string
}

func (e *UserInputError) Error() string {
	return e.Message
}

// NewUserInputError creates a user input error
func NewUserInputError(format string, args ...any) *UserInputError {
	return &UserInputError{Message: fmt.Sprintf(format, args...)}
}

// TerminalJobError indicates that a processing job ended in the error state.
// The dashboard still refreshes so partially succeeded records are visible.
type TerminalJobError struct {
	Total     int
	Processed int
	Succeeded int
	Failed    int
}

func (e *TerminalJobError) Error() string {
	return fmt.Sprintf("processing failed after %d/%d records (%d succeeded, %d failed)",
		e.Processed, e.Total, e.Succeeded, e.Failed)
}

// IsNetworkFailure reports whether err is a network error or a malformed
// response, which the dashboard treats the same way.
func IsNetworkFailure(err error) bool {
	var netErr *NetworkError
	var malformed *MalformedResponseError
	return stderrors.As(err, &netErr) || stderrors.As(err, &malformed)
}

// IsMalformedResponse checks if the error is a malformed response error
func IsMalformedResponse(err error) bool {
	var malformed *MalformedResponseError
	return stderrors.As(err, &malformed)
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return stderrors.As(err, &notFound)
}

// IsUserInput checks if the error is a user input error
func IsUserInput(err error) bool {
	var input *UserInputError
	return stderrors.As(err, &input)
}

// IsTerminalJob checks if the error is a terminal job error
func IsTerminalJob(err error) bool {
	var job *TerminalJobError
	return stderrors.As(err, &job)
}

// StatusCode returns the HTTP status code carried by a network error, or 0.
func StatusCode(err error) int {
	var netErr *NetworkError
	if stderrors.As(err, &netErr) {
		return netErr.StatusCode
	}
	return 0
}
