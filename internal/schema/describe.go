package schema

import (
	"fmt"
	"strings"
)

// DescribeInput renders the schema as a human-readable block suitable for
// prepending to a prompt, telling the model what fields the caller supplied.
func (s *Compiled) DescribeInput() string {
	var b strings.Builder
	b.WriteString("# Input Requirements\n\n")
	if s.description != "" {
		b.WriteString(s.description)
		b.WriteString("\n\n")
	}
	b.WriteString("Expected input fields:\n")
	for _, cf := range s.fields {
		fd := cf.def
		req := "optional"
		if fd.Required {
			req = "required"
		}
		desc := fd.Description
		if desc == "" {
			desc = "No description"
		}
		fmt.Fprintf(&b, "- %s (%s, %s): %s\n", fd.Name, fd.Type, req, desc)
	}
	return strings.TrimRight(b.String(), "\n")
}

// DescribeOutput renders the schema as structured-output instructions with a
// JSON skeleton, suitable for appending to a prompt.
func (s *Compiled) DescribeOutput() string {
	var b strings.Builder
	b.WriteString("# Output Requirements\n\n")
	b.WriteString("You MUST respond with valid JSON matching this exact structure:\n\n")
	if s.description != "" {
		b.WriteString(s.description)
		b.WriteString("\n\n")
	}
	b.WriteString("Required JSON format:\n```json\n{\n")
	for i, cf := range s.fields {
		fd := cf.def
		req := "optional"
		if fd.Required {
			req = "required"
		}
		desc := fd.Description
		if desc == "" {
			desc = "No description"
		}

		var example string
		switch fd.Type {
		case TypeString:
			example = fmt.Sprintf("%q", "your "+fd.Name+" here")
		case TypeInteger:
			example = "0"
		case TypeFloat:
			example = "0.0"
		case TypeBoolean:
			example = "true"
		case TypeList:
			example = "[]"
		case TypeDict:
			example = "{}"
		case TypeEnum:
			example = `"enum value"`
			for _, vd := range fd.Validators {
				if vd.Type == ValidatorEnum && len(vd.AllowedValues) > 0 {
					if s, ok := vd.AllowedValues[0].(string); ok {
						example = fmt.Sprintf("%q", s)
					} else {
						example = fmt.Sprintf("%v", vd.AllowedValues[0])
					}
					break
				}
			}
		default:
			example = "null"
		}

		fmt.Fprintf(&b, "  %q: %s  // %s - %s", fd.Name, example, req, desc)
		if i < len(s.fields)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("}\n```\n\n")
	b.WriteString("IMPORTANT: Return ONLY the JSON object, no additional text or explanation.")
	return b.String()
}
