// Package template implements the constrained prompt templating language:
// {{name}} substitutes a variable (HTML-escaped), {{{name}}} substitutes it
// raw, and {{>name}} includes a named partial. There are no conditionals,
// loops, or helpers; that restriction is the safety boundary that keeps
// templates free of executable logic.
package template

import (
	"errors"
	"regexp"
	"sort"
	"strings"
)

// MaxDepth bounds partial expansion. Exceeding it is a RenderError, not a crash.
const MaxDepth = 32

type nodeKind int

const (
	nodeLiteral nodeKind = iota
	nodeVariable
	nodeRawVariable
	nodePartial
)

type node struct {
	kind nodeKind
	text string // literal text, variable name, or partial name
}

// Compiled is the parsed form of a template body plus its local partials.
// It is immutable after Compile and safe for concurrent Render calls.
type Compiled struct {
	source   string
	nodes    []node
	partials map[string]*Compiled // locally defined partials, precompiled
}

// Source returns the original template body.
func (c *Compiled) Source() string {
	return c.source
}

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Compile parses a template body with no local partials.
func Compile(body string) (*Compiled, error) {
	return CompileWithPartials(body, nil)
}

// CompileWithPartials parses a template body and its local partial table.
// Partial bodies are compiled eagerly and cycles among local partials are
// rejected here so they can never surface at render time.
func CompileWithPartials(body string, partials map[string]string) (*Compiled, error) {
	nodes, err := scan(body)
	if err != nil {
		return nil, err
	}

	c := &Compiled{source: body, nodes: nodes}

	if len(partials) > 0 {
		c.partials = make(map[string]*Compiled, len(partials))
		for name, pbody := range partials {
			pnodes, err := scan(pbody)
			if err != nil {
				return nil, &SyntaxError{Offset: 0, Msg: "partial " + name + ": " + syntaxMsg(err)}
			}
			c.partials[name] = &Compiled{source: pbody, nodes: pnodes}
		}
		if cycle := findPartialCycle(c.partials); cycle != "" {
			return nil, &SyntaxError{Offset: 0, Msg: "partial cycle involving " + cycle}
		}
	}

	return c, nil
}

// syntaxMsg extracts the message from a scan failure. scan only produces
// *SyntaxError, but wrapping keeps that assumption out of the callers.
func syntaxMsg(err error) string {
	var serr *SyntaxError
	if errors.As(err, &serr) {
		return serr.Msg
	}
	return err.Error()
}

// scan splits a body into a flat literal/placeholder node sequence in a
// single pass. Unterminated or empty placeholders are syntax errors.
func scan(body string) ([]node, error) {
	var nodes []node
	rest := body
	base := 0

	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			if rest != "" {
				nodes = append(nodes, node{kind: nodeLiteral, text: rest})
			}
			return nodes, nil
		}
		if open > 0 {
			nodes = append(nodes, node{kind: nodeLiteral, text: rest[:open]})
		}

		tag := rest[open:]
		tagStart := base + open

		switch {
		case strings.HasPrefix(tag, "{{{"):
			end := strings.Index(tag, "}}}")
			if end < 0 {
				return nil, &SyntaxError{Offset: tagStart, Msg: "unterminated raw placeholder"}
			}
			name := strings.TrimSpace(tag[3:end])
			if !namePattern.MatchString(name) {
				return nil, &SyntaxError{Offset: tagStart, Msg: "invalid variable name in raw placeholder: " + strings.TrimSpace(name)}
			}
			nodes = append(nodes, node{kind: nodeRawVariable, text: name})
			rest = tag[end+3:]
			base = tagStart + end + 3

		case strings.HasPrefix(tag, "{{>"):
			end := strings.Index(tag, "}}")
			if end < 0 {
				return nil, &SyntaxError{Offset: tagStart, Msg: "unterminated partial reference"}
			}
			name := strings.TrimSpace(tag[3:end])
			if !namePattern.MatchString(name) {
				return nil, &SyntaxError{Offset: tagStart, Msg: "invalid partial name: " + name}
			}
			nodes = append(nodes, node{kind: nodePartial, text: name})
			rest = tag[end+2:]
			base = tagStart + end + 2

		default:
			end := strings.Index(tag, "}}")
			if end < 0 {
				return nil, &SyntaxError{Offset: tagStart, Msg: "unterminated placeholder"}
			}
			name := strings.TrimSpace(tag[2:end])
			if !namePattern.MatchString(name) {
				return nil, &SyntaxError{Offset: tagStart, Msg: "invalid variable name: " + name}
			}
			nodes = append(nodes, node{kind: nodeVariable, text: name})
			rest = tag[end+2:]
			base = tagStart + end + 2
		}
	}
}

// ExtractVariables returns the sorted, deduplicated variable names referenced
// by a template body. It is pure: a syntactically invalid body yields the
// compile error, never a partial result.
func ExtractVariables(body string) ([]string, error) {
	nodes, err := scan(body)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var names []string
	for _, n := range nodes {
		if n.kind != nodeVariable && n.kind != nodeRawVariable {
			continue
		}
		if !seen[n.text] {
			seen[n.text] = true
			names = append(names, n.text)
		}
	}
	sort.Strings(names)
	return names, nil
}

// findPartialCycle looks for a reference cycle among local partials.
// Returns the name of a partial on the cycle, or "" if acyclic.
// References to partials outside the local table are ignored here; they are
// resolved (and cycle-guarded again) at render time.
func findPartialCycle(partials map[string]*Compiled) string {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	state := make(map[string]int, len(partials))

	var visit func(name string) string
	visit = func(name string) string {
		p, ok := partials[name]
		if !ok {
			return ""
		}
		switch state[name] {
		case grey:
			return name
		case black:
			return ""
		}
		state[name] = grey
		for _, n := range p.nodes {
			if n.kind != nodePartial {
				continue
			}
			if hit := visit(n.text); hit != "" {
				return hit
			}
		}
		state[name] = black
		return ""
	}

	names := make([]string, 0, len(partials))
	for name := range partials {
		names = append(names, name)
	}
	sort.Strings(names) // deterministic error reporting
	for _, name := range names {
		if hit := visit(name); hit != "" {
			return hit
		}
	}
	return ""
}
