package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that a requested message was not found.
	ErrNotFound = errors.New("scheduled message not found")
	// ErrNoDueMessages indicates that no messages are currently due for delivery.
	ErrNoDueMessages = errors.New("no due messages found")
)

// ValidationError reports a rejected intake request. It is never persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
