package manager

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/promptvault/promptvault/internal/template"
)

// renderKey fingerprints one render request. encoding/json sorts map keys,
// so equal variable maps produce equal keys regardless of insertion order.
func renderKey(id, version string, vars map[string]any) (string, error) {
	canonical, err := json.Marshal(vars)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(id))
	h.Write([]byte{0})
	h.Write([]byte(version))
	h.Write([]byte{0})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// renderCache stores finished renders grouped by prompt id so recording a
// new version can drop exactly that prompt's entries.
type renderCache struct {
	mu       sync.RWMutex
	byPrompt map[string]map[string]*RenderedOutput
}

func newRenderCache() *renderCache {
	return &renderCache{byPrompt: make(map[string]map[string]*RenderedOutput)}
}

func (c *renderCache) get(promptID, key string) (*RenderedOutput, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entries, ok := c.byPrompt[promptID]
	if !ok {
		return nil, false
	}
	out, ok := entries[key]
	return out, ok
}

func (c *renderCache) put(promptID, key string, out *RenderedOutput) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, ok := c.byPrompt[promptID]
	if !ok {
		entries = make(map[string]*RenderedOutput)
		c.byPrompt[promptID] = entries
	}
	entries[key] = out
}

func (c *renderCache) invalidate(promptID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byPrompt, promptID)
}

// compiledEntry is a prompt version's template in executable form. Exactly
// one of text/chat is set, mirroring the prompt's format.
type compiledEntry struct {
	text *template.Compiled
	chat *template.CompiledChat
}

// templateCache keeps compiled templates keyed by id@version. Versions are
// immutable once recorded, so entries never go stale; invalidation exists
// for upserts that overwrite a version in place.
type templateCache struct {
	mu      sync.RWMutex
	entries map[string]*compiledEntry
}

func newTemplateCache() *templateCache {
	return &templateCache{entries: make(map[string]*compiledEntry)}
}

func (c *templateCache) key(id, version string) string {
	return id + "@" + version
}

func (c *templateCache) get(id, version string) (*compiledEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[c.key(id, version)]
	return e, ok
}

func (c *templateCache) put(id, version string, e *compiledEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.key(id, version)] = e
}

func (c *templateCache) invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := id + "@"
	for k := range c.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(c.entries, k)
		}
	}
}
