package storage

import "fmt"

// WriteError wraps a failed persistence write.
type WriteError struct {
	PromptID string
	Op       string
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("storage %s failed for %s: %v", e.Op, e.PromptID, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ReadError wraps a failed persistence read.
type ReadError struct {
	PromptID string
	Err      error
}

func (e *ReadError) Error() string {
	if e.PromptID == "" {
		return fmt.Sprintf("storage read failed: %v", e.Err)
	}
	return fmt.Sprintf("storage read failed for %s: %v", e.PromptID, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }
