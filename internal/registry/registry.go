// Package registry is the in-memory catalog of prompts: every stored
// version of every prompt, latest-version resolution, filtered iteration,
// and full-text search.
package registry

import (
	"fmt"
	"iter"
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/promptvault/promptvault/internal/core"
)

// Filter narrows Find results. Zero values match everything.
type Filter struct {
	Tag    string
	Status core.Status
}

// Registry stores prompts keyed by (id, version). All methods are safe for
// concurrent use. Returned prompts are deep copies; mutating them does not
// affect the registry.
type Registry struct {
	mu      sync.RWMutex
	prompts map[string]map[string]*core.Prompt // id -> version -> prompt
	search  *searchIndex
}

// New returns an empty registry with a memory-only search index.
func New() (*Registry, error) {
	idx, err := newSearchIndex()
	if err != nil {
		return nil, fmt.Errorf("creating search index: %w", err)
	}
	return &Registry{
		prompts: make(map[string]map[string]*core.Prompt),
		search:  idx,
	}, nil
}

// Close releases the search index.
func (r *Registry) Close() error {
	return r.search.close()
}

// Upsert stores a prompt version, replacing any existing entry with the same
// id and version, and refreshes the prompt's search document.
func (r *Registry) Upsert(p *core.Prompt) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if _, err := semver.StrictNewVersion(p.Version); err != nil {
		return fmt.Errorf("prompt %s: invalid version %q: %w", p.ID, p.Version, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byVersion, ok := r.prompts[p.ID]
	if !ok {
		byVersion = make(map[string]*core.Prompt)
		r.prompts[p.ID] = byVersion
	}
	byVersion[p.Version] = p.Clone()

	// The search document reflects the latest non-archived version, the
	// same one Get and Find resolve. A fully archived prompt stays out of
	// the index so Search never surfaces an id Get would then miss.
	if latest := latestOf(byVersion, true); latest != nil {
		return r.search.index(latest)
	}
	return r.search.remove(p.ID)
}

// Get returns one prompt version. An empty version resolves to the latest
// non-archived version; asking for an explicit version returns it even when
// archived.
func (r *Registry) Get(id, version string) (*core.Prompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byVersion, ok := r.prompts[id]
	if !ok {
		return nil, core.NewNotFoundError(id, version)
	}

	if version == "" {
		latest := latestOf(byVersion, true)
		if latest == nil {
			return nil, core.NewNotFoundError(id, "")
		}
		return latest.Clone(), nil
	}

	p, ok := byVersion[version]
	if !ok {
		return nil, core.NewNotFoundError(id, version)
	}
	return p.Clone(), nil
}

// Find iterates the latest non-archived version of every prompt matching the
// filter, in id order. The sequence is restartable: each range loop walks a
// snapshot taken when Find was called.
func (r *Registry) Find(f Filter) iter.Seq[*core.Prompt] {
	r.mu.RLock()
	snapshot := make([]*core.Prompt, 0, len(r.prompts))
	for _, byVersion := range r.prompts {
		latest := latestOf(byVersion, true)
		if latest == nil {
			continue
		}
		if f.Tag != "" && !latest.Metadata.HasTag(f.Tag) {
			continue
		}
		if f.Status != "" && latest.Status != f.Status {
			continue
		}
		snapshot = append(snapshot, latest.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].ID < snapshot[j].ID })

	return func(yield func(*core.Prompt) bool) {
		for _, p := range snapshot {
			if !yield(p) {
				return
			}
		}
	}
}

// Remove archives every version of a prompt. History stays intact and
// explicit Get calls still return the archived versions; the prompt simply
// stops resolving as a latest version and leaves the search index.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	byVersion, ok := r.prompts[id]
	if !ok {
		return core.NewNotFoundError(id, "")
	}
	for _, p := range byVersion {
		p.Status = core.StatusArchived
	}
	return r.search.remove(id)
}

// Versions returns the stored version numbers for a prompt in ascending
// semver order.
func (r *Registry) Versions(id string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byVersion, ok := r.prompts[id]
	if !ok {
		return nil, core.NewNotFoundError(id, "")
	}
	return sortedVersions(byVersion), nil
}

// latestOf picks the highest semver version in the map. With skipArchived
// set, archived versions are ignored entirely.
func latestOf(byVersion map[string]*core.Prompt, skipArchived bool) *core.Prompt {
	var best *core.Prompt
	var bestV *semver.Version
	for number, p := range byVersion {
		if skipArchived && p.Status == core.StatusArchived {
			continue
		}
		v, err := semver.StrictNewVersion(number)
		if err != nil {
			continue
		}
		if bestV == nil || v.GreaterThan(bestV) {
			best, bestV = p, v
		}
	}
	return best
}

func sortedVersions(byVersion map[string]*core.Prompt) []string {
	parsed := make([]*semver.Version, 0, len(byVersion))
	for number := range byVersion {
		if v, err := semver.StrictNewVersion(number); err == nil {
			parsed = append(parsed, v)
		}
	}
	sort.Sort(semver.Collection(parsed))
	out := make([]string, len(parsed))
	for i, v := range parsed {
		out[i] = v.String()
	}
	return out
}
