package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for missing resources and resources owned by someone else
	ErrNotFound = errors.New("resource not found")
	// ErrConflict is returned when a unique field is already taken
	ErrConflict = errors.New("resource already exists")
	// ErrInvalidCredentials is returned when login fails
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrUnauthorized is returned for missing, expired or forged tokens
	ErrUnauthorized = errors.New("unauthorized")
	// ErrQueueFull is returned when the synthesis queue cannot take another job
	ErrQueueFull = errors.New("synthesis queue is full, try again later")
)

// ValidationError describes a rejected request field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
