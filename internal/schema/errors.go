package schema

import (
	"fmt"
	"strings"
)

// ParseError indicates a schema definition that cannot be compiled: bad YAML,
// a structurally invalid field, an unresolved or cyclic schema reference.
type ParseError struct {
	Schema string // schema name, when known
	Field  string // field name, when the problem is field-level
	Msg    string
	Err    error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString("schema parse error")
	if e.Schema != "" {
		fmt.Fprintf(&b, " in %q", e.Schema)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " field %q", e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Msg)
	return b.String()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// FieldError is one failed check, addressed by dotted path into the payload.
// List elements carry an [i] index segment, e.g. "users[2].email".
type FieldError struct {
	Path    string
	Message string
}

func (e FieldError) String() string {
	return e.Path + ": " + e.Message
}

// ValidationError aggregates every field failure from a single Validate call.
// Validation never stops at the first problem; callers get the full list.
type ValidationError struct {
	Schema string
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 1 {
		return fmt.Sprintf("validation against %q failed: %s", e.Schema, e.Fields[0])
	}
	var b strings.Builder
	fmt.Fprintf(&b, "validation against %q failed with %d errors:", e.Schema, len(e.Fields))
	for _, fe := range e.Fields {
		b.WriteString("\n  - ")
		b.WriteString(fe.String())
	}
	return b.String()
}
