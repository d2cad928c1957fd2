package main

import (
	"errors"
	"fmt"
)

// Exit codes of the bitzero command.
const (
	exitSuccess = 0
	// exitFailure is returned when the interpreted code faults.
	exitFailure = 1
	// exitCommandError is returned for invalid input, such as a missing
	// file or malformed bitcode.
	exitCommandError = 2
)

// exitError carries the exit code of a failed command.
type exitError struct {
	code    int
	message string
	err     error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}
	return e.message
}

func (e *exitError) Unwrap() error { return e.err }

func newExitError(code int, message string) *exitError {
	return &exitError{code: code, message: message}
}

func wrapExitError(code int, message string, err error) *exitError {
	return &exitError{code: code, message: message, err: err}
}

// exitCode extracts the exit code of err. Errors raised by cobra itself,
// like unknown flags, are command errors.
func exitCode(err error) int {
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	return exitCommandError
}
