package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/promptvault/promptvault/internal/core"
)

// Memory is an in-process Store. Prompts are deep-copied on the way in and
// out, so callers never share state with the store.
type Memory struct {
	mu      sync.RWMutex
	prompts map[string]map[string]*core.Prompt // id -> version -> prompt
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{prompts: make(map[string]map[string]*core.Prompt)}
}

func (m *Memory) Save(ctx context.Context, p *core.Prompt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	byVersion, ok := m.prompts[p.ID]
	if !ok {
		byVersion = make(map[string]*core.Prompt)
		m.prompts[p.ID] = byVersion
	}
	byVersion[p.Version] = p.Clone()
	return nil
}

func (m *Memory) Load(ctx context.Context, id, version string) (*core.Prompt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	byVersion, ok := m.prompts[id]
	if !ok || len(byVersion) == 0 {
		return nil, core.NewNotFoundError(id, version)
	}

	if version == "" {
		version = latestVersion(versionNumbers(byVersion))
		if version == "" {
			return nil, core.NewNotFoundError(id, "")
		}
	}

	p, ok := byVersion[version]
	if !ok {
		return nil, core.NewNotFoundError(id, version)
	}
	return p.Clone(), nil
}

func (m *Memory) Delete(ctx context.Context, id, version string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	byVersion, ok := m.prompts[id]
	if !ok {
		return core.NewNotFoundError(id, version)
	}
	if version == "" {
		delete(m.prompts, id)
		return nil
	}
	if _, ok := byVersion[version]; !ok {
		return core.NewNotFoundError(id, version)
	}
	delete(byVersion, version)
	if len(byVersion) == 0 {
		delete(m.prompts, id)
	}
	return nil
}

func (m *Memory) List(ctx context.Context, f Filter) ([]*core.Prompt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*core.Prompt
	for _, byVersion := range m.prompts {
		latest := latestVersion(versionNumbers(byVersion))
		if latest == "" {
			continue
		}
		p := byVersion[latest]
		if !matches(p, f) {
			continue
		}
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Versions(ctx context.Context, id string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	byVersion, ok := m.prompts[id]
	if !ok {
		return nil, core.NewNotFoundError(id, "")
	}
	return sortVersions(versionNumbers(byVersion)), nil
}

func (m *Memory) Exists(ctx context.Context, id, version string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	byVersion, ok := m.prompts[id]
	if !ok {
		return false, nil
	}
	if version == "" {
		return len(byVersion) > 0, nil
	}
	_, ok = byVersion[version]
	return ok, nil
}

func (m *Memory) Close() error { return nil }

func versionNumbers(byVersion map[string]*core.Prompt) []string {
	out := make([]string, 0, len(byVersion))
	for v := range byVersion {
		out = append(out, v)
	}
	return out
}

// latestVersion picks the highest parseable semver number, or "".
func latestVersion(numbers []string) string {
	var best *semver.Version
	for _, n := range numbers {
		v, err := semver.StrictNewVersion(n)
		if err != nil {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
		}
	}
	if best == nil {
		return ""
	}
	return best.String()
}

// sortVersions returns the parseable numbers in ascending semver order.
func sortVersions(numbers []string) []string {
	parsed := make([]*semver.Version, 0, len(numbers))
	for _, n := range numbers {
		if v, err := semver.StrictNewVersion(n); err == nil {
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
