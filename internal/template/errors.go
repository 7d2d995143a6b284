package template

import "fmt"

// SyntaxError indicates a template body that cannot be compiled.
// A prompt carrying such a template is rejected before it is ever stored.
type SyntaxError struct {
	Offset int // byte offset of the offending token
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("template syntax error at offset %d: %s", e.Offset, e.Msg)
}

// RenderError indicates a compiled template that cannot be rendered with the
// supplied variables/partials. The caller can fix the inputs and retry.
type RenderError struct {
	Variable string // set when a required variable is missing
	Partial  string // set when a partial is unresolved or cyclic
	Msg      string
}

func (e *RenderError) Error() string {
	switch {
	case e.Variable != "":
		return fmt.Sprintf("render error: missing variable %q", e.Variable)
	case e.Partial != "":
		return fmt.Sprintf("render error: partial %q: %s", e.Partial, e.Msg)
	default:
		return fmt.Sprintf("render error: %s", e.Msg)
	}
}

func missingVariable(name string) *RenderError {
	return &RenderError{Variable: name}
}

func partialError(name, msg string) *RenderError {
	return &RenderError{Partial: name, Msg: msg}
}
