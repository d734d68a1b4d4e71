package store

import (
	"errors"
	"fmt"
)

// RuntimeError is reported when a commit or dispatch cannot be carried out.
//
// The store never panics with a RuntimeError. It is logged, delivered to the
// observer as an EventReport and returned to the caller, who may ignore it.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Name is the mutation or action that was requested.
	Name string

	// Message is a human-readable description.
	Message string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnknownMutation indicates Commit was called with an unregistered name.
	ErrCodeUnknownMutation RuntimeErrorCode = "UNKNOWN_MUTATION"

	// ErrCodeUnknownAction indicates Dispatch was called with an unregistered name.
	ErrCodeUnknownAction RuntimeErrorCode = "UNKNOWN_ACTION"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s: %s (name=%s)", e.Code, e.Message, e.Name)
}

// NewUnknownMutationError creates a RuntimeError for an unregistered mutation.
func NewUnknownMutationError(name string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnknownMutation,
		Name:    name,
		Message: fmt.Sprintf("unknown mutation type: %s", name),
	}
}

// NewUnknownActionError creates a RuntimeError for an unregistered action.
func NewUnknownActionError(name string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnknownAction,
		Name:    name,
		Message: fmt.Sprintf("unknown action type: %s", name),
	}
}

// IsUnknownMutation returns true if err is, or wraps, an unknown mutation error.
func IsUnknownMutation(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeUnknownMutation
	}
	return false
}

// IsUnknownAction returns true if err is, or wraps, an unknown action error.
func IsUnknownAction(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeUnknownAction
	}
	return false
}

// ImmutablePropertyError is returned when a caller tries to assign a getter.
type ImmutablePropertyError struct {
	Property string
}

func (e *ImmutablePropertyError) Error() string {
	return fmt.Sprintf("cannot assign to read-only getter %q", e.Property)
}

// ErrUnknownGetter is returned by Getters.Get for names that were never registered.
var ErrUnknownGetter = errors.New("unknown getter")
