package core

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Format identifies how a prompt's template payload is shaped.
type Format string

const (
	FormatText        Format = "text"
	FormatChat        Format = "chat"
	FormatCompletion  Format = "completion"
	FormatInstruction Format = "instruction"
)

// Status tracks where a prompt sits in its lifecycle.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusActive     Status = "active"
	StatusDeprecated Status = "deprecated"
	StatusArchived   Status = "archived"
)

// Role is the speaker of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one role-tagged entry of a chat template.
type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
	Name    string `json:"name,omitempty" yaml:"name,omitempty"` // Optional: tool/function name
}

// Validate checks that the message has a known role and non-blank content.
func (m Message) Validate() error {
	switch m.Role {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
	default:
		return fmt.Errorf("invalid message role: %s", m.Role)
	}
	if strings.TrimSpace(m.Content) == "" {
		return fmt.Errorf("message content must not be blank")
	}
	return nil
}

// Template is a flat template body plus locally defined partials.
type Template struct {
	Content  string            `json:"content" yaml:"content"`
	Partials map[string]string `json:"partials,omitempty" yaml:"partials,omitempty"`
}

// ChatTemplate is an ordered sequence of role-tagged message templates.
type ChatTemplate struct {
	Messages []Message         `json:"messages" yaml:"messages"`
	Partials map[string]string `json:"partials,omitempty" yaml:"partials,omitempty"`
}

// Metadata holds free-form descriptive data attached to a prompt.
type Metadata struct {
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Tags        []string          `json:"tags,omitempty" yaml:"tags,omitempty"`
	Author      string            `json:"author,omitempty" yaml:"author,omitempty"`
	Custom      map[string]string `json:"custom,omitempty" yaml:"custom,omitempty"`
}

// NormalizeTags lowercases and trims tags, dropping empties.
func (m *Metadata) NormalizeTags() {
	out := m.Tags[:0]
	for _, t := range m.Tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	m.Tags = out
}

// HasTag reports whether the metadata carries the given (normalized) tag.
func (m *Metadata) HasTag(tag string) bool {
	tag = strings.ToLower(strings.TrimSpace(tag))
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Prompt is a versioned, optionally schema-bound template definition.
// Exactly one of Template / ChatTemplate is set, matching Format.
type Prompt struct {
	ID           string        `json:"id" yaml:"id"`
	Version      string        `json:"version" yaml:"version"`
	Format       Format        `json:"format" yaml:"format"`
	Status       Status        `json:"status" yaml:"status"`
	Template     *Template     `json:"template,omitempty" yaml:"template,omitempty"`
	ChatTemplate *ChatTemplate `json:"chat_template,omitempty" yaml:"chat_template,omitempty"`
	InputSchema  string        `json:"input_schema,omitempty" yaml:"input_schema,omitempty"`
	OutputSchema string        `json:"output_schema,omitempty" yaml:"output_schema,omitempty"`
	Metadata     Metadata      `json:"metadata" yaml:"metadata"`
	CreatedAt    time.Time     `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" yaml:"updated_at"`
}

// idPattern matches stable prompt slugs: lowercase alphanumerics, '_' and '-'.
var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Validate checks the prompt's structural invariants.
func (p *Prompt) Validate() error {
	if !idPattern.MatchString(p.ID) {
		return fmt.Errorf("invalid prompt id %q: must match %s", p.ID, idPattern.String())
	}

	switch p.Format {
	case FormatText, FormatChat, FormatCompletion, FormatInstruction:
	default:
		return fmt.Errorf("prompt %s: invalid format: %s", p.ID, p.Format)
	}

	switch p.Status {
	case StatusDraft, StatusActive, StatusDeprecated, StatusArchived:
	default:
		return fmt.Errorf("prompt %s: invalid status: %s", p.ID, p.Status)
	}

	// Exactly one template representation, and it must match the format.
	if p.Template != nil && p.ChatTemplate != nil {
		return fmt.Errorf("prompt %s: template and chat_template are mutually exclusive", p.ID)
	}
	if p.Format == FormatChat {
		if p.ChatTemplate == nil {
			return fmt.Errorf("prompt %s: chat format requires chat_template", p.ID)
		}
		if len(p.ChatTemplate.Messages) == 0 {
			return fmt.Errorf("prompt %s: chat_template must contain at least one message", p.ID)
		}
		for i, msg := range p.ChatTemplate.Messages {
			if err := msg.Validate(); err != nil {
				return fmt.Errorf("prompt %s: message %d: %w", p.ID, i, err)
			}
		}
	} else {
		if p.Template == nil {
			return fmt.Errorf("prompt %s: %s format requires template", p.ID, p.Format)
		}
		if strings.TrimSpace(p.Template.Content) == "" {
			return fmt.Errorf("prompt %s: template content must not be blank", p.ID)
		}
	}

	return nil
}

// Clone returns a deep copy so callers can mutate safely.
func (p *Prompt) Clone() *Prompt {
	cp := *p
	if p.Template != nil {
		t := *p.Template
		t.Partials = copyStringMap(p.Template.Partials)
		cp.Template = &t
	}
	if p.ChatTemplate != nil {
		ct := ChatTemplate{
			Messages: append([]Message(nil), p.ChatTemplate.Messages...),
			Partials: copyStringMap(p.ChatTemplate.Partials),
		}
		cp.ChatTemplate = &ct
	}
	cp.Metadata.Tags = append([]string(nil), p.Metadata.Tags...)
	cp.Metadata.Custom = copyStringMap(p.Metadata.Custom)
	return &cp
}

// Partials returns the prompt's local partial table, whichever payload holds it.
func (p *Prompt) Partials() map[string]string {
	if p.Template != nil {
		return p.Template.Partials
	}
	if p.ChatTemplate != nil {
		return p.ChatTemplate.Partials
	}
	return nil
}

func copyStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
