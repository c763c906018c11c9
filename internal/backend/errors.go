package backend

import (
	"errors"
	"fmt"
)

// NetworkError means the backend could not be reached or answered with
// something that is not a valid response
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// BackendError means the backend was reached but reported a failure
type BackendError struct {
	Status int
	Detail string
}

func (e *BackendError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("backend returned %d: %s", e.Status, e.Detail)
	}
	return "backend failure: " + e.Detail
}

// IsNetworkError reports whether err is a *NetworkError
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsBackendError reports whether err is a *BackendError
func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

// AsBackendError extracts a *BackendError from err
func AsBackendError(err error) (*BackendError, bool) {
	var be *BackendError
	ok := errors.As(err, &be)
	return be, ok
}
