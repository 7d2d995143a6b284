package core

import "fmt"

// NotFoundError indicates a prompt (or a specific version of it) is unknown.
type NotFoundError struct {
	ID      string
	Version string // empty means "latest"
}

func (e *NotFoundError) Error() string {
	if e.Version != "" {
		return fmt.Sprintf("prompt %s version %s not found", e.ID, e.Version)
	}
	return fmt.Sprintf("prompt %s not found", e.ID)
}

// NewNotFoundError creates a NotFoundError for the given lookup.
func NewNotFoundError(id, version string) *NotFoundError {
	return &NotFoundError{ID: id, Version: version}
}
