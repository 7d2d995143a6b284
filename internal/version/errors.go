package version

import "fmt"

// ConflictError indicates a Record call that would violate version ordering
// or duplicate the latest recorded content.
type ConflictError struct {
	PromptID string
	Version  string
	Checksum string
	Msg      string
}

func (e *ConflictError) Error() string {
	if e.Checksum != "" {
		return fmt.Sprintf("version conflict for %s: content identical to latest version %s (checksum %s)", e.PromptID, e.Version, e.Checksum[:12])
	}
	return fmt.Sprintf("version conflict for %s: %s", e.PromptID, e.Msg)
}

// NotFoundError indicates an unknown prompt id or version number.
type NotFoundError struct {
	PromptID string
	Version  string
}

func (e *NotFoundError) Error() string {
	if e.Version != "" {
		return fmt.Sprintf("no version %s recorded for %s", e.Version, e.PromptID)
	}
	return fmt.Sprintf("no versions recorded for %s", e.PromptID)
}
