// Package schema implements declarative validation of prompt variables and
// model outputs. Schemas are data, not code: a closed set of field types and
// validators loaded from YAML documents, compiled once, then applied to
// arbitrary map payloads.
package schema

import "regexp"

// FieldType is the declared type of a schema field.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeFloat   FieldType = "float"
	TypeBoolean FieldType = "boolean"
	TypeList    FieldType = "list"
	TypeDict    FieldType = "dict"
	TypeEnum    FieldType = "enum"
	TypeAny     FieldType = "any"
)

func (t FieldType) valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeFloat, TypeBoolean, TypeList, TypeDict, TypeEnum, TypeAny:
		return true
	}
	return false
}

// ValidatorType names one of the closed set of field validators.
type ValidatorType string

const (
	ValidatorMinLength ValidatorType = "min_length"
	ValidatorMaxLength ValidatorType = "max_length"
	ValidatorLength    ValidatorType = "length"
	ValidatorRange     ValidatorType = "range"
	ValidatorRegex     ValidatorType = "regex"
	ValidatorEnum      ValidatorType = "enum"
	ValidatorEmail     ValidatorType = "email"
	ValidatorURL       ValidatorType = "url"
	ValidatorUUID      ValidatorType = "uuid"
	ValidatorDate      ValidatorType = "date"
	ValidatorDatetime  ValidatorType = "datetime"
	ValidatorCustom    ValidatorType = "custom"
)

// ValidatorDef is the declarative form of one validator attached to a field.
// Which parameters are required depends on Type; Compile enforces that.
type ValidatorDef struct {
	Type          ValidatorType `yaml:"type" json:"type"`
	MinValue      *float64      `yaml:"min_value,omitempty" json:"min_value,omitempty"`
	MaxValue      *float64      `yaml:"max_value,omitempty" json:"max_value,omitempty"`
	Pattern       string        `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	AllowedValues []any         `yaml:"allowed_values,omitempty" json:"allowed_values,omitempty"`
	Name          string        `yaml:"name,omitempty" json:"name,omitempty"`       // custom predicate name
	Message       string        `yaml:"message,omitempty" json:"message,omitempty"` // overrides the default message template
}

// FieldDef is the declarative form of one schema field.
type FieldDef struct {
	Name         string         `yaml:"name" json:"name"`
	Type         FieldType      `yaml:"type" json:"type"`
	Description  string         `yaml:"description,omitempty" json:"description,omitempty"`
	Required     bool           `yaml:"required" json:"required"`
	Nullable     bool           `yaml:"nullable,omitempty" json:"nullable,omitempty"`
	Default      any            `yaml:"default,omitempty" json:"default,omitempty"`
	HasDefault   bool           `yaml:"-" json:"-"` // set by the loader; distinguishes default:null from absent
	ItemType     FieldType      `yaml:"item_type,omitempty" json:"item_type,omitempty"`
	ItemSchema   string         `yaml:"item_schema,omitempty" json:"item_schema,omitempty"`
	NestedSchema string         `yaml:"nested_schema,omitempty" json:"nested_schema,omitempty"`
	Validators   []ValidatorDef `yaml:"validators,omitempty" json:"validators,omitempty"`
}

// Definition is the declarative form of a whole schema.
type Definition struct {
	Name        string     `yaml:"name" json:"name"`
	Version     string     `yaml:"version,omitempty" json:"version,omitempty"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Strict      bool       `yaml:"strict,omitempty" json:"strict,omitempty"`
	AllowExtra  bool       `yaml:"allow_extra,omitempty" json:"allow_extra,omitempty"`
	Fields      []FieldDef `yaml:"fields" json:"fields"`
}

// Document is the top-level shape of a schema YAML file.
type Document struct {
	Version string       `yaml:"version,omitempty" json:"version,omitempty"`
	Schemas []Definition `yaml:"schemas" json:"schemas"`
}

var (
	schemaNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)
	fieldNamePattern  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)
)

// check verifies the definition's structural invariants, independent of any
// other schema it may reference.
func (d *Definition) check() error {
	if !schemaNamePattern.MatchString(d.Name) {
		return &ParseError{Schema: d.Name, Msg: "invalid schema name"}
	}
	if d.Strict && d.AllowExtra {
		return &ParseError{Schema: d.Name, Msg: "strict and allow_extra are mutually exclusive"}
	}
	if len(d.Fields) == 0 {
		return &ParseError{Schema: d.Name, Msg: "schema must declare at least one field"}
	}

	seen := make(map[string]bool, len(d.Fields))
	for i := range d.Fields {
		f := &d.Fields[i]
		if !fieldNamePattern.MatchString(f.Name) {
			return &ParseError{Schema: d.Name, Field: f.Name, Msg: "invalid field name"}
		}
		if seen[f.Name] {
			return &ParseError{Schema: d.Name, Field: f.Name, Msg: "field names must be unique"}
		}
		seen[f.Name] = true

		if err := f.check(d.Name); err != nil {
			return err
		}
	}
	return nil
}

func (f *FieldDef) check(schemaName string) error {
	if !f.Type.valid() {
		return &ParseError{Schema: schemaName, Field: f.Name, Msg: "unknown field type: " + string(f.Type)}
	}
	if !f.Required && !f.Nullable && !f.HasDefault {
		return &ParseError{Schema: schemaName, Field: f.Name, Msg: "optional field needs a default value or nullable: true"}
	}
	if f.Type == TypeList {
		if f.ItemType == "" && f.ItemSchema == "" {
			return &ParseError{Schema: schemaName, Field: f.Name, Msg: "list field needs item_type or item_schema"}
		}
		if f.ItemType != "" && f.ItemSchema != "" {
			return &ParseError{Schema: schemaName, Field: f.Name, Msg: "item_type and item_schema are mutually exclusive"}
		}
		if f.ItemType != "" && !f.ItemType.valid() {
			return &ParseError{Schema: schemaName, Field: f.Name, Msg: "unknown item type: " + string(f.ItemType)}
		}
	} else if f.ItemType != "" || f.ItemSchema != "" {
		return &ParseError{Schema: schemaName, Field: f.Name, Msg: "item_type/item_schema only apply to list fields"}
	}
	if f.NestedSchema != "" && f.Type != TypeDict {
		return &ParseError{Schema: schemaName, Field: f.Name, Msg: "nested_schema only applies to dict fields"}
	}
	if f.Type == TypeEnum {
		found := false
		for i := range f.Validators {
			if f.Validators[i].Type == ValidatorEnum {
				found = true
				break
			}
		}
		if !found {
			return &ParseError{Schema: schemaName, Field: f.Name, Msg: "enum field needs an enum validator"}
		}
	}

	for i := range f.Validators {
		if err := f.Validators[i].check(schemaName, f.Name); err != nil {
			return err
		}
	}
	return nil
}

func (v *ValidatorDef) check(schemaName, fieldName string) error {
	fail := func(msg string) error {
		return &ParseError{Schema: schemaName, Field: fieldName, Msg: string(v.Type) + " validator " + msg}
	}
	switch v.Type {
	case ValidatorMinLength:
		if v.MinValue == nil {
			return fail("needs min_value")
		}
	case ValidatorMaxLength:
		if v.MaxValue == nil {
			return fail("needs max_value")
		}
	case ValidatorLength, ValidatorRange:
		if v.MinValue == nil || v.MaxValue == nil {
			return fail("needs min_value and max_value")
		}
		if *v.MinValue > *v.MaxValue {
			return fail("has min_value greater than max_value")
		}
	case ValidatorRegex:
		if v.Pattern == "" {
			return fail("needs pattern")
		}
	case ValidatorEnum:
		if len(v.AllowedValues) == 0 {
			return fail("needs allowed_values")
		}
	case ValidatorCustom:
		if v.Name == "" {
			return fail("needs name")
		}
	case ValidatorEmail, ValidatorURL, ValidatorUUID, ValidatorDate, ValidatorDatetime:
		// no parameters
	default:
		return &ParseError{Schema: schemaName, Field: fieldName, Msg: "unknown validator type: " + string(v.Type)}
	}
	return nil
}
