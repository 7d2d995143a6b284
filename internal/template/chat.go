package template

import (
	"errors"
	"fmt"
	"sort"

	"github.com/promptvault/promptvault/internal/core"
)

// CompiledChat holds one compiled body per chat message, in message order.
type CompiledChat struct {
	roles    []core.Role
	names    []string
	bodies   []*Compiled
	partials map[string]*Compiled
}

// CompileChat compiles every message of a chat template against a shared
// local partial table. Any message failing to compile fails the whole
// template, with the message index in the error.
func CompileChat(ct *core.ChatTemplate) (*CompiledChat, error) {
	shared, err := CompileWithPartials("", ct.Partials)
	if err != nil {
		return nil, err
	}

	cc := &CompiledChat{
		roles:    make([]core.Role, 0, len(ct.Messages)),
		names:    make([]string, 0, len(ct.Messages)),
		bodies:   make([]*Compiled, 0, len(ct.Messages)),
		partials: shared.partials,
	}
	for i, msg := range ct.Messages {
		nodes, err := scan(msg.Content)
		if err != nil {
			var serr *SyntaxError
			if !errors.As(err, &serr) {
				serr = &SyntaxError{Msg: err.Error()}
			}
			return nil, &SyntaxError{Offset: serr.Offset, Msg: fmt.Sprintf("message %d: %s", i, serr.Msg)}
		}
		cc.roles = append(cc.roles, msg.Role)
		cc.names = append(cc.names, msg.Name)
		cc.bodies = append(cc.bodies, &Compiled{source: msg.Content, nodes: nodes, partials: shared.partials})
	}
	return cc, nil
}

// Render expands every message body with the same variables, preserving
// message order and roles.
func (cc *CompiledChat) Render(vars map[string]any, partials map[string]string) ([]core.Message, error) {
	out := make([]core.Message, 0, len(cc.bodies))
	for i, body := range cc.bodies {
		content, err := body.Render(vars, partials)
		if err != nil {
			return nil, err
		}
		out = append(out, core.Message{Role: cc.roles[i], Content: content, Name: cc.names[i]})
	}
	return out, nil
}

// Variables returns the sorted union of variables referenced across all
// message bodies.
func (cc *CompiledChat) Variables() []string {
	seen := make(map[string]bool)
	var names []string
	for _, body := range cc.bodies {
		for _, n := range body.nodes {
			if n.kind != nodeVariable && n.kind != nodeRawVariable {
				continue
			}
			if !seen[n.text] {
				seen[n.text] = true
				names = append(names, n.text)
			}
		}
	}
	sort.Strings(names)
	return names
}
