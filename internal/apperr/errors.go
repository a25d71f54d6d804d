// Package apperr defines the error kinds shared by the chat core, the auth
// service and the transport layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation marks malformed input that is recovered locally.
	ErrValidation = errors.New("validation error")
	// ErrAuth marks failed sign-in, sign-up or reset attempts.
	ErrAuth = errors.New("auth error")
	// ErrNotFound marks a missing user, chat or message.
	ErrNotFound = errors.New("not found")
	// ErrSubscription marks a failed live query.
	ErrSubscription = errors.New("subscription error")
	// ErrWrite marks a failed send or read-mark.
	ErrWrite = errors.New("write error")
)

func Validation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

func Auth(msg string) error {
	return fmt.Errorf("%w: %s", ErrAuth, msg)
}

func NotFound(msg string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, msg)
}

// Subscription wraps a live query failure.
func Subscription(err error) error {
	if err == nil || errors.Is(err, ErrSubscription) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrSubscription, err)
}

// Write wraps a failed store write. Validation and not-found errors pass
// through unchanged so callers still see the more specific kind.
func Write(err error) error {
	if err == nil || errors.Is(err, ErrWrite) || errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrWrite, err)
}

// KindOf returns a short name for the error kind, or "internal".
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrSubscription):
		return "subscription"
	case errors.Is(err, ErrWrite):
		return "write"
	default:
		return "internal"
	}
}

// HTTPStatus maps an error kind to a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case "validation":
		return http.StatusBadRequest
	case "auth":
		return http.StatusUnauthorized
	case "not_found":
		return http.StatusNotFound
	case "subscription":
		return http.StatusServiceUnavailable
	case "write":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
