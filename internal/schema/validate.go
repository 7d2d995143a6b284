package schema

import (
	"fmt"
	"sort"
)

// Validate checks a payload against the schema and returns the normalized
// payload: defaults filled in, whole floats coerced to ints where the field
// declares integer. Every field failure is collected; the error, when
// non-nil, is a *ValidationError carrying all of them.
func (s *Compiled) Validate(data map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(data))
	errs := s.validateInto(out, data, "")
	errs = append(errs, s.applyExtras(out, data, "")...)

	if len(errs) > 0 {
		return nil, &ValidationError{Schema: s.name, Fields: errs}
	}
	return out, nil
}

// validateInto runs the field pipeline for one object level, writing
// normalized values into out. prefix is the dotted path of the enclosing
// object, empty at the top level.
func (s *Compiled) validateInto(out, data map[string]any, prefix string) []FieldError {
	var errs []FieldError

	path := func(name string) string {
		if prefix == "" {
			return name
		}
		return prefix + "." + name
	}

	for _, cf := range s.fields {
		fd := cf.def
		value, present := data[fd.Name]

		// Presence and defaults.
		if !present {
			switch {
			case fd.HasDefault:
				out[fd.Name] = fd.Default
				continue
			case fd.Required:
				errs = append(errs, FieldError{Path: path(fd.Name), Message: "required field is missing"})
				continue
			case fd.Nullable:
				out[fd.Name] = nil
				continue
			default:
				continue
			}
		}

		// Nullability.
		if value == nil {
			if fd.Nullable {
				out[fd.Name] = nil
			} else {
				errs = append(errs, FieldError{Path: path(fd.Name), Message: "field is not nullable"})
			}
			continue
		}

		// Type check with coercion. A mismatch skips the field's
		// validators; they would only produce noise on a wrong type.
		coerced, ok := coerce(value, fd.Type)
		if !ok {
			errs = append(errs, FieldError{
				Path:    path(fd.Name),
				Message: fmt.Sprintf("expected %s, got %T", fd.Type, value),
			})
			continue
		}

		errs = append(errs, cf.validateValue(coerced, path(fd.Name))...)
		out[fd.Name] = coerced

		// Recurse into structured values.
		switch fd.Type {
		case TypeList:
			items, _ := coerced.([]any)
			normalized := make([]any, len(items))
			for i, item := range items {
				itemPath := fmt.Sprintf("%s[%d]", path(fd.Name), i)
				nv, ferrs := cf.validateItem(item, itemPath)
				errs = append(errs, ferrs...)
				normalized[i] = nv
			}
			out[fd.Name] = normalized
		case TypeDict:
			if cf.nested != nil {
				obj, _ := coerced.(map[string]any)
				nestedOut := make(map[string]any, len(obj))
				errs = append(errs, cf.nested.validateInto(nestedOut, obj, path(fd.Name))...)
				errs = append(errs, cf.nested.applyExtras(nestedOut, obj, path(fd.Name))...)
				out[fd.Name] = nestedOut
			}
		}
	}

	return errs
}

// validateValue runs the field's declared validators in order.
func (cf *compiledField) validateValue(value any, path string) []FieldError {
	var errs []FieldError
	for _, check := range cf.checks {
		if ok, msg := check(value); !ok {
			errs = append(errs, FieldError{Path: path, Message: msg})
		}
	}
	return errs
}

// validateItem checks one list element against item_type or item_schema.
func (cf *compiledField) validateItem(item any, path string) (any, []FieldError) {
	fd := cf.def

	if cf.item != nil {
		obj, ok := item.(map[string]any)
		if !ok {
			return item, []FieldError{{Path: path, Message: fmt.Sprintf("expected dict, got %T", item)}}
		}
		nestedOut := make(map[string]any, len(obj))
		errs := cf.item.validateInto(nestedOut, obj, path)
		errs = append(errs, cf.item.applyExtras(nestedOut, obj, path)...)
		return nestedOut, errs
	}

	coerced, ok := coerce(item, fd.ItemType)
	if !ok {
		return item, []FieldError{{Path: path, Message: fmt.Sprintf("expected %s, got %T", fd.ItemType, item)}}
	}
	return coerced, nil
}

// applyExtras handles keys the schema does not declare. Strict mode flags
// every one of them; permissive mode carries them through untouched.
func (s *Compiled) applyExtras(out, data map[string]any, prefix string) []FieldError {
	var extras []string
	for key := range data {
		if _, known := s.byName[key]; !known {
			extras = append(extras, key)
		}
	}
	if len(extras) == 0 {
		return nil
	}
	sort.Strings(extras)

	if !s.strict {
		for _, key := range extras {
			out[key] = data[key]
		}
		return nil
	}

	errs := make([]FieldError, 0, len(extras))
	for _, key := range extras {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		errs = append(errs, FieldError{Path: path, Message: "unknown field"})
	}
	return errs
}

// coerce verifies a value against a declared type, converting where the
// conversion is lossless. JSON and YAML decoders hand integers over as
// float64 or int depending on source, so both directions are handled.
func coerce(value any, t FieldType) (any, bool) {
	switch t {
	case TypeString:
		s, ok := value.(string)
		return s, ok
	case TypeInteger:
		switch x := value.(type) {
		case int:
			return x, true
		case int64:
			return int(x), true
		case float64:
			if x == float64(int64(x)) {
				return int(x), true
			}
		}
		return nil, false
	case TypeFloat:
		switch x := value.(type) {
		case float64:
			return x, true
		case float32:
			return float64(x), true
		case int:
			return float64(x), true
		case int64:
			return float64(x), true
		}
		return nil, false
	case TypeBoolean:
		b, ok := value.(bool)
		return b, ok
	case TypeList:
		l, ok := value.([]any)
		return l, ok
	case TypeDict:
		m, ok := value.(map[string]any)
		return m, ok
	case TypeEnum:
		// Membership is the enum validator's job; the type stage only
		// rules out structured values.
		switch value.(type) {
		case string, bool, int, int64, float64:
			return value, true
		}
		return nil, false
	case TypeAny:
		return value, true
	}
	return nil, false
}
