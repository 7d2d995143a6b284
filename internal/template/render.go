package template

import (
	"fmt"
	"html"
	"strconv"
	"strings"
)

// Render expands the compiled template with the given variables and an
// optional table of externally supplied partial bodies. Local partials
// (compiled alongside the template) shadow supplied ones. A variable that is
// referenced but absent from vars is a RenderError; a nil value renders as
// the empty string.
func (c *Compiled) Render(vars map[string]any, partials map[string]string) (string, error) {
	supplied, err := compileSupplied(partials)
	if err != nil {
		return "", err
	}

	st := &renderState{
		vars:     vars,
		local:    c.partials,
		supplied: supplied,
		visited:  make(map[string]bool),
	}

	var b strings.Builder
	if err := st.renderNodes(&b, c.nodes, 0); err != nil {
		return "", err
	}
	return b.String(), nil
}

// compileSupplied parses caller-supplied partial bodies up front. The table
// is small in practice, so lazy compilation is not worth the bookkeeping.
func compileSupplied(partials map[string]string) (map[string]*Compiled, error) {
	if len(partials) == 0 {
		return nil, nil
	}
	out := make(map[string]*Compiled, len(partials))
	for name, body := range partials {
		nodes, err := scan(body)
		if err != nil {
			return nil, partialError(name, syntaxMsg(err))
		}
		out[name] = &Compiled{source: body, nodes: nodes}
	}
	return out, nil
}

type renderState struct {
	vars     map[string]any
	local    map[string]*Compiled
	supplied map[string]*Compiled
	visited  map[string]bool
}

func (st *renderState) renderNodes(b *strings.Builder, nodes []node, depth int) error {
	if depth > MaxDepth {
		return &RenderError{Msg: fmt.Sprintf("partial expansion exceeds depth %d", MaxDepth)}
	}

	for _, n := range nodes {
		switch n.kind {
		case nodeLiteral:
			b.WriteString(n.text)

		case nodeVariable:
			val, ok := st.vars[n.text]
			if !ok {
				return missingVariable(n.text)
			}
			b.WriteString(html.EscapeString(formatValue(val)))

		case nodeRawVariable:
			val, ok := st.vars[n.text]
			if !ok {
				return missingVariable(n.text)
			}
			b.WriteString(formatValue(val))

		case nodePartial:
			p := st.lookupPartial(n.text)
			if p == nil {
				return partialError(n.text, "not found")
			}
			if st.visited[n.text] {
				return partialError(n.text, "cyclic reference")
			}
			st.visited[n.text] = true
			err := st.renderNodes(b, p.nodes, depth+1)
			delete(st.visited, n.text)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// lookupPartial resolves a partial name, local table first.
func (st *renderState) lookupPartial(name string) *Compiled {
	if p, ok := st.local[name]; ok {
		return p
	}
	if p, ok := st.supplied[name]; ok {
		return p
	}
	return nil
}

// formatValue turns a variable value into template output. Floats drop the
// trailing .0 when they are whole so numeric substitutions read naturally.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return formatValue(float64(x))
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}
