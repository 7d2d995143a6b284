package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// metaSchema is the JSON Schema every schema document must satisfy before
// its contents are compiled. Catching shape problems here gives file/line
// independent, uniform errors instead of scattered decode failures.
const metaSchema = `{
  "type": "object",
  "required": ["schemas"],
  "properties": {
    "version": {"type": "string"},
    "schemas": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "fields"],
        "properties": {
          "name": {"type": "string"},
          "version": {"type": "string"},
          "description": {"type": "string"},
          "strict": {"type": "boolean"},
          "allow_extra": {"type": "boolean"},
          "fields": {
            "type": "array",
            "minItems": 1,
            "items": {
              "type": "object",
              "required": ["name", "type"],
              "properties": {
                "name": {"type": "string"},
                "type": {"type": "string", "enum": ["string", "integer", "float", "boolean", "list", "dict", "enum", "any"]},
                "description": {"type": "string"},
                "required": {"type": "boolean"},
                "nullable": {"type": "boolean"},
                "item_type": {"type": "string"},
                "item_schema": {"type": "string"},
                "nested_schema": {"type": "string"},
                "validators": {
                  "type": "array",
                  "items": {
                    "type": "object",
                    "required": ["type"],
                    "properties": {
                      "type": {"type": "string"},
                      "min_value": {"type": "number"},
                      "max_value": {"type": "number"},
                      "pattern": {"type": "string"},
                      "allowed_values": {"type": "array"},
                      "name": {"type": "string"},
                      "message": {"type": "string"}
                    }
                  }
                }
              }
            }
          }
        }
      }
    }
  }
}`

// UnmarshalYAML records whether the document carried an explicit default,
// even default: null, which plain struct decoding cannot distinguish from an
// absent key.
func (f *FieldDef) UnmarshalYAML(value *yaml.Node) error {
	type plain FieldDef
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*f = FieldDef(p)

	for i := 0; i+1 < len(value.Content); i += 2 {
		if value.Content[i].Value == "default" {
			f.HasDefault = true
			break
		}
	}
	return nil
}

// Loader reads schema documents from YAML files and compiles them.
type Loader struct {
	compiler *Compiler
}

// NewLoader returns a loader feeding the given compiler's cache.
func NewLoader(c *Compiler) *Loader {
	return &Loader{compiler: c}
}

// LoadBytes parses, meta-validates, and compiles one schema document.
// source names the document in error messages.
func (l *Loader) LoadBytes(data []byte, source string) (map[string]*Compiled, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, &ParseError{Msg: "empty schema document: " + source}
	}

	// Meta-validate the raw document shape first.
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ParseError{Msg: fmt.Sprintf("%s: %v", source, err), Err: err}
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(metaSchema),
		gojsonschema.NewGoLoader(raw),
	)
	if err != nil {
		return nil, &ParseError{Msg: fmt.Sprintf("%s: %v", source, err), Err: err}
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return nil, &ParseError{Msg: fmt.Sprintf("%s: invalid schema document: %s", source, strings.Join(msgs, "; "))}
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Msg: fmt.Sprintf("%s: %v", source, err), Err: err}
	}

	return l.compiler.CompileBatch(doc.Schemas)
}

// LoadFile loads a single schema YAML file.
func (l *Loader) LoadFile(path string) (map[string]*Compiled, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Msg: err.Error(), Err: err}
	}
	return l.LoadBytes(data, filepath.Base(path))
}

// LoadDirectory loads every .yaml/.yml file in a directory, in lexical
// order, merging the results. Files load independently; a reference from one
// file to another works only if the referenced file sorts earlier.
func (l *Loader) LoadDirectory(dir string) (map[string]*Compiled, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &ParseError{Msg: err.Error(), Err: err}
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	merged := make(map[string]*Compiled)
	for _, name := range files {
		loaded, err := l.LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		for k, v := range loaded {
			merged[k] = v
		}
	}
	return merged, nil
}
