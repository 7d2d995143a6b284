// Package storage persists prompts. Three backends share one interface:
// memory for tests and ephemeral use, a JSON file tree, and SQLite.
package storage

import (
	"context"

	"github.com/promptvault/promptvault/internal/core"
)

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Tag    string
	Status core.Status
}

// Store is a versioned prompt repository. Load with an empty version
// resolves the latest by semver. Delete with an empty version removes every
// version of the prompt.
type Store interface {
	Save(ctx context.Context, p *core.Prompt) error
	Load(ctx context.Context, id, version string) (*core.Prompt, error)
	Delete(ctx context.Context, id, version string) error
	List(ctx context.Context, f Filter) ([]*core.Prompt, error)
	Versions(ctx context.Context, id string) ([]string, error)
	Exists(ctx context.Context, id, version string) (bool, error)
	Close() error
}

func matches(p *core.Prompt, f Filter) bool {
	if f.Tag != "" && !p.Metadata.HasTag(f.Tag) {
		return false
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	return true
}
