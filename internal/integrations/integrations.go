// Package integrations converts rendered prompts into the request shapes
// of LLM client libraries. Adapters do format conversion only; they never
// touch the network.
package integrations

import (
	"context"

	"github.com/promptvault/promptvault/internal/core"
	"github.com/promptvault/promptvault/internal/manager"
)

// Plugin adapts a rendered prompt to one provider's message format.
type Plugin interface {
	// Name identifies the plugin, e.g. "openai".
	Name() string
	// Render renders the prompt through the manager and converts the
	// result to the provider's native type.
	Render(ctx context.Context, m *manager.Manager, promptID string, vars map[string]any) (any, error)
}

// Registry is the plugin table keyed by name.
type Registry struct {
	plugins map[string]Plugin
}

// NewRegistry returns a registry preloaded with the given plugins.
func NewRegistry(plugins ...Plugin) *Registry {
	r := &Registry{plugins: make(map[string]Plugin, len(plugins))}
	for _, p := range plugins {
		r.plugins[p.Name()] = p
	}
	return r
}

// Register adds or replaces a plugin.
func (r *Registry) Register(p Plugin) {
	r.plugins[p.Name()] = p
}

// Get returns the named plugin, or nil.
func (r *Registry) Get(name string) Plugin {
	return r.plugins[name]
}

// Names lists the registered plugin names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	return names
}

// asMessages normalizes a rendered output to a message list: chat renders
// pass through, text renders become a single user message.
func asMessages(out *manager.RenderedOutput) []core.Message {
	if len(out.Messages) > 0 {
		return out.Messages
	}
	return []core.Message{{Role: core.RoleUser, Content: out.Text}}
}
