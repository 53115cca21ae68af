package client

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrDaemonNotRunning is returned when the daemon is not running
	ErrDaemonNotRunning = errors.New("daemon not running")

	// ErrPermissionDenied is returned when the user does not have permission to perform the requested action
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound is returned when 404 is returned from the daemon
	ErrNotFound = errors.New("404 not found")
)

// StatusError is a non-2xx answer from the daemon.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("got %d: %s", e.Code, e.Message())
}

// Message returns the error text the daemon sent, without JSON quoting.
func (e *StatusError) Message() string {
	var s string
	if err := json.Unmarshal([]byte(e.Body), &s); err == nil {
		return s
	}
	return e.Body
}
