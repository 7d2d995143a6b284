package schema

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Predicate is an injected check for "custom" validators. It must be pure:
// same value in, same verdict out, no side effects.
type Predicate func(value any) bool

// checkFunc is one compiled validator. It returns ok plus the failure message
// already rendered for the offending value.
type checkFunc func(value any) (bool, string)

// Default message templates per validator type. {field}, {min}, {max},
// {value} and {pattern} are substituted at failure time.
var defaultMessages = map[ValidatorType]string{
	ValidatorMinLength: "{field} must be at least {min} characters long",
	ValidatorMaxLength: "{field} must be at most {max} characters long",
	ValidatorLength:    "{field} length must be between {min} and {max}",
	ValidatorRange:     "{field} must be between {min} and {max}",
	ValidatorRegex:     "{field} does not match pattern {pattern}",
	ValidatorEnum:      "{field} must be one of: {values}",
	ValidatorEmail:     "{field} must be a valid email address",
	ValidatorURL:       "{field} must be a valid URL",
	ValidatorUUID:      "{field} must be a valid UUID",
	ValidatorDate:      "{field} must be a date in YYYY-MM-DD format",
	ValidatorDatetime:  "{field} must be an RFC 3339 datetime",
	ValidatorCustom:    "{field} failed check {name}",
}

// compileValidator turns a declarative validator into an executable check.
// The definition has already passed ValidatorDef.check.
func compileValidator(v *ValidatorDef, fieldName string, predicates map[string]Predicate) (checkFunc, error) {
	msg := v.Message
	if msg == "" {
		msg = defaultMessages[v.Type]
	}
	render := func() string {
		return renderMessage(msg, v, fieldName)
	}

	switch v.Type {
	case ValidatorMinLength:
		min := int(*v.MinValue)
		return func(value any) (bool, string) {
			n, ok := lengthOf(value)
			if !ok || n < min {
				return false, render()
			}
			return true, ""
		}, nil

	case ValidatorMaxLength:
		max := int(*v.MaxValue)
		return func(value any) (bool, string) {
			n, ok := lengthOf(value)
			if !ok || n > max {
				return false, render()
			}
			return true, ""
		}, nil

	case ValidatorLength:
		min, max := int(*v.MinValue), int(*v.MaxValue)
		return func(value any) (bool, string) {
			n, ok := lengthOf(value)
			if !ok || n < min || n > max {
				return false, render()
			}
			return true, ""
		}, nil

	case ValidatorRange:
		min, max := *v.MinValue, *v.MaxValue
		return func(value any) (bool, string) {
			n, ok := numberOf(value)
			if !ok || n < min || n > max {
				return false, render()
			}
			return true, ""
		}, nil

	case ValidatorRegex:
		re, err := regexp.Compile(v.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", v.Pattern, err)
		}
		return func(value any) (bool, string) {
			s, ok := value.(string)
			if !ok || !re.MatchString(s) {
				return false, render()
			}
			return true, ""
		}, nil

	case ValidatorEnum:
		allowed := v.AllowedValues
		return func(value any) (bool, string) {
			for _, a := range allowed {
				if valuesEqual(value, a) {
					return true, ""
				}
			}
			return false, render()
		}, nil

	case ValidatorEmail:
		return func(value any) (bool, string) {
			s, ok := value.(string)
			if !ok {
				return false, render()
			}
			addr, err := mail.ParseAddress(s)
			// mail.ParseAddress accepts display names; require the bare form.
			if err != nil || addr.Address != s || !strings.Contains(s, ".") {
				return false, render()
			}
			return true, ""
		}, nil

	case ValidatorURL:
		return func(value any) (bool, string) {
			s, ok := value.(string)
			if !ok {
				return false, render()
			}
			u, err := url.Parse(s)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return false, render()
			}
			return true, ""
		}, nil

	case ValidatorUUID:
		return func(value any) (bool, string) {
			s, ok := value.(string)
			if !ok {
				return false, render()
			}
			if _, err := uuid.Parse(s); err != nil {
				return false, render()
			}
			return true, ""
		}, nil

	case ValidatorDate:
		return func(value any) (bool, string) {
			s, ok := value.(string)
			if !ok {
				return false, render()
			}
			if _, err := time.Parse("2006-01-02", s); err != nil {
				return false, render()
			}
			return true, ""
		}, nil

	case ValidatorDatetime:
		return func(value any) (bool, string) {
			s, ok := value.(string)
			if !ok {
				return false, render()
			}
			if _, err := time.Parse(time.RFC3339, s); err != nil {
				return false, render()
			}
			return true, ""
		}, nil

	case ValidatorCustom:
		pred, ok := predicates[v.Name]
		if !ok {
			return nil, fmt.Errorf("unknown custom predicate %q", v.Name)
		}
		return func(value any) (bool, string) {
			if !pred(value) {
				return false, render()
			}
			return true, ""
		}, nil
	}

	return nil, fmt.Errorf("unknown validator type %q", v.Type)
}

// renderMessage substitutes the message template placeholders.
func renderMessage(msg string, v *ValidatorDef, fieldName string) string {
	r := strings.NewReplacer(
		"{field}", fieldName,
		"{min}", formatNumber(v.MinValue),
		"{max}", formatNumber(v.MaxValue),
		"{pattern}", v.Pattern,
		"{name}", v.Name,
		"{values}", formatAllowed(v.AllowedValues),
	)
	return r.Replace(msg)
}

func formatNumber(p *float64) string {
	if p == nil {
		return ""
	}
	if *p == float64(int64(*p)) {
		return strconv.FormatInt(int64(*p), 10)
	}
	return strconv.FormatFloat(*p, 'g', -1, 64)
}

func formatAllowed(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%v", v)
	}
	return strings.Join(parts, ", ")
}

// lengthOf measures strings and lists; anything else has no length.
func lengthOf(value any) (int, bool) {
	switch x := value.(type) {
	case string:
		return len([]rune(x)), true
	case []any:
		return len(x), true
	case map[string]any:
		return len(x), true
	}
	return 0, false
}

// numberOf widens any numeric value to float64.
func numberOf(value any) (float64, bool) {
	switch x := value.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case float32:
		return float64(x), true
	}
	return 0, false
}

// valuesEqual compares an input value with an enum candidate, treating
// numerically equal ints and floats as the same value.
func valuesEqual(a, b any) bool {
	if na, aok := numberOf(a); aok {
		if nb, bok := numberOf(b); bok {
			return na == nb
		}
		return false
	}
	return a == b
}
