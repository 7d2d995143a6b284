package version

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/promptvault/promptvault/internal/core"
)

// Checksum computes the content fingerprint of a prompt. Two prompts whose
// rendering-relevant content is the same hash identically: fields are written
// in a fixed order and template whitespace is normalized, so formatting churn
// does not produce a new fingerprint. Metadata and status are excluded.
func Checksum(p *core.Prompt) string {
	h := sha256.New()

	writeField(h, "format", string(p.Format))
	if p.Template != nil {
		writeField(h, "template", normalizeWhitespace(p.Template.Content))
		writePartials(h, p.Template.Partials)
	}
	if p.ChatTemplate != nil {
		for i, msg := range p.ChatTemplate.Messages {
			writeField(h, fmt.Sprintf("message.%d.role", i), string(msg.Role))
			writeField(h, fmt.Sprintf("message.%d.content", i), normalizeWhitespace(msg.Content))
			if msg.Name != "" {
				writeField(h, fmt.Sprintf("message.%d.name", i), msg.Name)
			}
		}
		writePartials(h, p.ChatTemplate.Partials)
	}
	writeField(h, "input_schema", p.InputSchema)
	writeField(h, "output_schema", p.OutputSchema)

	return hex.EncodeToString(h.Sum(nil))
}

func writeField(w io.Writer, key, value string) {
	// Length-prefixed so adjacent fields cannot collide across boundaries.
	fmt.Fprintf(w, "%s:%d:%s\n", key, len(value), value)
}

func writePartials(w io.Writer, partials map[string]string) {
	names := make([]string, 0, len(partials))
	for name := range partials {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		writeField(w, "partial."+name, normalizeWhitespace(partials[name]))
	}
}

// normalizeWhitespace collapses runs of spaces and tabs and trims line ends,
// keeping line structure intact.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	// Drop leading and trailing blank lines.
	start, end := 0, len(lines)
	for start < end && lines[start] == "" {
		start++
	}
	for end > start && lines[end-1] == "" {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}
