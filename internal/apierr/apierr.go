// Package apierr translates failures from the Google Calendar API and its
// OAuth transport into a small set of caller-facing error categories, each
// carrying a message that tells the caller what to do next.
package apierr

import (
	"errors"
	"fmt"
)

// Category is the caller-facing class of a failure.
type Category string

const (
	// InvalidInput means caller-supplied identifiers are empty or unusable.
	InvalidInput Category = "invalid_input"
	// NotFound means a calendar name could not be matched to any known calendar.
	NotFound Category = "not_found"
	// Auth means the stored credential is invalid or expired.
	Auth Category = "auth"
	// InvalidRequest covers malformed requests, permission denied, missing
	// resources and any unclassified 4xx response.
	InvalidRequest Category = "invalid_request"
	// RateLimit means a quota or throughput limit was exceeded.
	RateLimit Category = "rate_limit"
	// Internal covers server-side and unknown faults.
	Internal Category = "internal"
)

// Error is a classified, caller-facing error. It is terminal: it is surfaced
// to the caller as-is and never retried.
type Error struct {
	Category Category
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Errorf builds a classified error with a formatted message.
func Errorf(category Category, format string, args ...any) *Error {
	return &Error{Category: category, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under category, keeping its text as the message.
func Wrap(category Category, err error) *Error {
	return &Error{Category: category, Message: err.Error(), Cause: err}
}

// CategoryOf returns the category of err if it is (or wraps) a classified
// error, and false otherwise.
func CategoryOf(err error) (Category, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Category, true
	}
	return "", false
}
