// Package manager ties the engine together: it owns the registry, the
// version store, the schema compiler, and the caches, and drives the full
// prompt lifecycle from creation through rendering to archival.
package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/promptvault/promptvault/internal/core"
	"github.com/promptvault/promptvault/internal/registry"
	"github.com/promptvault/promptvault/internal/schema"
	"github.com/promptvault/promptvault/internal/storage"
	"github.com/promptvault/promptvault/internal/template"
	"github.com/promptvault/promptvault/internal/version"
)

// Execution is the record of one manager operation on a prompt.
type Execution struct {
	ID        string        `json:"id"`
	PromptID  string        `json:"prompt_id"`
	Version   string        `json:"version"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	CacheHit  bool          `json:"cache_hit"`
	Success   bool          `json:"success"`
}

// RenderedOutput is the result of a render: text for TEXT-family formats,
// ordered messages for CHAT.
type RenderedOutput struct {
	PromptID  string         `json:"prompt_id"`
	Version   string         `json:"version"`
	Format    core.Format    `json:"format"`
	Text      string         `json:"text,omitempty"`
	Messages  []core.Message `json:"messages,omitempty"`
	Execution *Execution     `json:"execution"`
}

// RenderOptions tunes one Render call.
type RenderOptions struct {
	// Partials supplements the prompt's own partial table. Local partials
	// win on name collisions.
	Partials map[string]string
	// InjectSchemas prepends the input schema description and appends the
	// output schema instructions to the rendered result.
	InjectSchemas bool
	// NoCache bypasses the render cache for this call: no lookup, no store.
	NoCache bool
}

// Manager is the lifecycle engine. All methods are safe for concurrent use.
type Manager struct {
	registry *registry.Registry
	versions *version.Store
	schemas  *schema.Compiler
	store    storage.Store // optional write-through persistence
	hooks    Hooks
	metrics  Metrics
	renders  *renderCache
	compiled *templateCache
}

// Option configures a Manager.
type Option func(*Manager)

// WithHooks attaches lifecycle observers.
func WithHooks(hooks ...Hook) Option {
	return func(m *Manager) { m.hooks = append(m.hooks, hooks...) }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(mx Metrics) Option {
	return func(m *Manager) { m.metrics = mx }
}

// WithStore attaches write-through persistence: every created or updated
// version is saved to the store as well as the registry.
func WithStore(s storage.Store) Option {
	return func(m *Manager) { m.store = s }
}

// WithSchemaCompiler shares a schema compiler (and its cache of loaded
// schemas) with the manager. Without it the manager starts with an empty
// compiler and schema-bound prompts fail to resolve their schemas.
func WithSchemaCompiler(c *schema.Compiler) Option {
	return func(m *Manager) { m.schemas = c }
}

// New builds a Manager.
func New(opts ...Option) (*Manager, error) {
	reg, err := registry.New()
	if err != nil {
		return nil, err
	}
	m := &Manager{
		registry: reg,
		versions: version.NewStore(),
		schemas:  schema.NewCompiler(),
		renders:  newRenderCache(),
		compiled: newTemplateCache(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Close releases the registry's search index and the store, if any.
func (m *Manager) Close() error {
	err := m.registry.Close()
	if m.store != nil {
		if cerr := m.store.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Schemas exposes the manager's schema compiler so callers can load schema
// documents or register custom predicates.
func (m *Manager) Schemas() *schema.Compiler { return m.schemas }

// LoadStore hydrates the registry and version history from the attached
// store. Prompts keep their stored version numbers; no new version records
// are created. Unreadable entries are skipped, not fatal. Returns the number
// of versions loaded.
func (m *Manager) LoadStore(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, fmt.Errorf("no store attached")
	}
	prompts, err := m.store.List(ctx, storage.Filter{})
	if err != nil {
		return 0, err
	}

	loaded := 0
	for _, latest := range prompts {
		numbers, err := m.store.Versions(ctx, latest.ID)
		if err != nil {
			return loaded, err
		}
		for _, num := range numbers {
			p, err := m.store.Load(ctx, latest.ID, num)
			if err != nil {
				log.Printf("⚠️  Skipping %s@%s: %v", latest.ID, num, err)
				continue
			}
			if _, err := m.versions.Adopt(p); err != nil {
				return loaded, err
			}
			if err := m.registry.Upsert(p); err != nil {
				return loaded, err
			}
			loaded++
		}
	}
	return loaded, nil
}

// Watch starts a filesystem watcher over the attached file store and folds
// changed prompts back into the registry. Returns a stop function.
func (m *Manager) Watch() (func() error, error) {
	fileStore, ok := m.store.(*storage.File)
	if !ok {
		return nil, fmt.Errorf("watching requires a file store")
	}
	w, err := storage.NewWatcher(fileStore)
	if err != nil {
		return nil, err
	}
	w.OnChange(m.reload)
	if err := w.Start(); err != nil {
		return nil, err
	}
	return w.Stop, nil
}

// reload picks up on-disk changes for the given prompt ids: versions the
// registry has not seen yet are adopted, and the prompts' caches flushed.
func (m *Manager) reload(ids []string) {
	ctx := context.Background()
	for _, id := range ids {
		numbers, err := m.store.Versions(ctx, id)
		if err != nil {
			log.Printf("⚠️  Reloading %s: %v", id, err)
			continue
		}
		for _, num := range numbers {
			if _, err := m.registry.Get(id, num); err == nil {
				continue
			}
			p, err := m.store.Load(ctx, id, num)
			if err != nil {
				log.Printf("⚠️  Reloading %s@%s: %v", id, num, err)
				continue
			}
			if _, err := m.versions.Adopt(p); err != nil {
				log.Printf("⚠️  Reloading %s@%s: %v", id, num, err)
				continue
			}
			if err := m.registry.Upsert(p); err != nil {
				log.Printf("⚠️  Reloading %s@%s: %v", id, num, err)
				continue
			}
			log.Printf("📝 Reloaded prompt %s@%s from disk", id, num)
		}
		m.renders.invalidate(id)
		m.compiled.invalidate(id)
	}
}

// Create registers a brand-new prompt. The prompt's templates and schema
// references are checked before anything is stored; the recorded version is
// 1.0.0 unless the prompt carries an explicit version.
func (m *Manager) Create(ctx context.Context, p *core.Prompt, changelog string) (*core.Prompt, error) {
	if err := m.checkPrompt(p); err != nil {
		return nil, err
	}

	v, err := m.versions.Record(ctx, p, version.RecordOptions{
		Explicit:  p.Version,
		Changelog: changelog,
	})
	if err != nil {
		return nil, err
	}

	stored := v.Snapshot.Clone()
	if stored.Status == "" {
		stored.Status = core.StatusDraft
	}
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	if err := m.commit(ctx, stored); err != nil {
		return nil, err
	}

	log.Printf("📝 Created prompt %s@%s", stored.ID, stored.Version)
	m.hooks.OnPromptCreated(ctx, &Execution{
		ID:        uuid.NewString(),
		PromptID:  stored.ID,
		Version:   stored.Version,
		StartedAt: now,
		Success:   true,
	})
	return stored.Clone(), nil
}

// Update records a new version of an existing prompt and refreshes the
// registry. Caches for the prompt are invalidated so the next render sees
// the new content.
func (m *Manager) Update(ctx context.Context, p *core.Prompt, changelog string, bump version.Bump) (*core.Prompt, error) {
	if err := m.checkPrompt(p); err != nil {
		return nil, err
	}
	// Update targets an existing prompt; a missing one is a caller error.
	current, err := m.registry.Get(p.ID, "")
	if err != nil {
		return nil, err
	}

	v, err := m.versions.Record(ctx, p, version.RecordOptions{
		Bump:      bump,
		Changelog: changelog,
	})
	if err != nil {
		return nil, err
	}

	stored := v.Snapshot.Clone()
	if stored.Status == "" {
		stored.Status = current.Status
	}
	stored.CreatedAt = current.CreatedAt
	stored.UpdatedAt = time.Now().UTC()

	if err := m.commit(ctx, stored); err != nil {
		return nil, err
	}

	m.renders.invalidate(stored.ID)
	m.compiled.invalidate(stored.ID)

	log.Printf("📝 Updated prompt %s to %s", stored.ID, stored.Version)
	m.hooks.OnPromptUpdated(ctx, &Execution{
		ID:        uuid.NewString(),
		PromptID:  stored.ID,
		Version:   stored.Version,
		StartedAt: stored.UpdatedAt,
		Success:   true,
	})
	return stored.Clone(), nil
}

// Get returns one prompt version; empty version means latest non-archived.
func (m *Manager) Get(id, ver string) (*core.Prompt, error) {
	return m.registry.Get(id, ver)
}

// Find proxies the registry's filtered iteration.
func (m *Manager) Find(f registry.Filter) iter.Seq[*core.Prompt] {
	return m.registry.Find(f)
}

// Search proxies the registry's full-text search.
func (m *Manager) Search(query string, limit int) ([]registry.SearchResult, error) {
	return m.registry.Search(query, limit)
}

// History returns the recorded versions of a prompt, oldest first.
func (m *Manager) History(id string) ([]*version.Version, error) {
	return m.versions.History(id)
}

// Archive marks every version of a prompt archived. History and explicit
// version lookups keep working; renders of "latest" stop resolving.
func (m *Manager) Archive(ctx context.Context, id string) error {
	if err := m.registry.Remove(id); err != nil {
		return err
	}
	m.renders.invalidate(id)
	m.compiled.invalidate(id)
	log.Printf("🗄️  Archived prompt %s", id)
	m.hooks.OnPromptArchived(ctx, id)
	return nil
}

// Render resolves, validates, and renders a prompt version.
//
// Pipeline: registry lookup, render cache check, input schema validation,
// template compile (cached), render, cache store. Hooks observe start,
// completion, and errors; metrics record duration and cache traffic.
func (m *Manager) Render(ctx context.Context, id, ver string, vars map[string]any, opts RenderOptions) (*RenderedOutput, error) {
	ex := &Execution{
		ID:        uuid.NewString(),
		PromptID:  id,
		Version:   ver,
		StartedAt: time.Now().UTC(),
	}
	m.hooks.OnRenderStart(ctx, ex)

	out, err := m.render(ctx, id, ver, vars, opts, ex)
	ex.Duration = time.Since(ex.StartedAt)

	if m.metrics != nil {
		m.metrics.RecordRender(id, ex.Version, float64(ex.Duration.Milliseconds()), err == nil)
	}
	if err != nil {
		m.hooks.OnRenderError(ctx, ex, err)
		return nil, err
	}
	ex.Success = true
	m.hooks.OnRenderComplete(ctx, ex)
	return out, nil
}

func (m *Manager) render(ctx context.Context, id, ver string, vars map[string]any, opts RenderOptions, ex *Execution) (*RenderedOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := m.registry.Get(id, ver)
	if err != nil {
		return nil, err
	}
	ex.Version = p.Version

	var key string
	if !opts.NoCache {
		key, err = renderKey(p.ID, p.Version, map[string]any{
			"vars":     vars,
			"partials": opts.Partials,
			"inject":   opts.InjectSchemas,
		})
		if err != nil {
			return nil, fmt.Errorf("fingerprinting render request: %w", err)
		}

		if cached, ok := m.renders.get(p.ID, key); ok {
			ex.CacheHit = true
			if m.metrics != nil {
				m.metrics.RecordCacheHit(p.ID)
			}
			m.hooks.OnCacheHit(ctx, ex)
			return cached.withExecution(ex), nil
		}
		if m.metrics != nil {
			m.metrics.RecordCacheMiss(p.ID)
		}
	}

	normalized, err := m.validateInput(p, vars)
	if err != nil {
		return nil, err
	}

	entry, err := m.compile(p)
	if err != nil {
		return nil, err
	}

	out := &RenderedOutput{PromptID: p.ID, Version: p.Version, Format: p.Format}
	switch {
	case entry.chat != nil:
		msgs, err := entry.chat.Render(normalized, opts.Partials)
		if err != nil {
			return nil, err
		}
		if opts.InjectSchemas {
			msgs = m.injectChat(p, msgs)
		}
		out.Messages = msgs
	default:
		text, err := entry.text.Render(normalized, opts.Partials)
		if err != nil {
			return nil, err
		}
		if opts.InjectSchemas {
			text = m.injectText(p, text)
		}
		out.Text = text
	}

	if !opts.NoCache {
		m.renders.put(p.ID, key, out)
	}
	return out.withExecution(ex), nil
}

// withExecution attaches an execution record to a copy of the output, so
// cached entries stay free of per-call state.
func (o *RenderedOutput) withExecution(ex *Execution) *RenderedOutput {
	cp := *o
	cp.Messages = append([]core.Message(nil), o.Messages...)
	cp.Execution = ex
	return &cp
}

// validateInput applies the prompt's input schema, when bound, and returns
// the normalized variable map.
func (m *Manager) validateInput(p *core.Prompt, vars map[string]any) (map[string]any, error) {
	if p.InputSchema == "" {
		return vars, nil
	}
	s, ok := m.schemas.LookupByName(p.InputSchema)
	if !ok {
		return nil, fmt.Errorf("prompt %s: input schema %q is not loaded", p.ID, p.InputSchema)
	}
	if vars == nil {
		vars = map[string]any{}
	}
	return s.Validate(vars)
}

// ValidateOutput checks a model response against the prompt's output
// schema. The payload may be a JSON string or an already-decoded map.
func (m *Manager) ValidateOutput(ctx context.Context, id, ver string, payload any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := m.registry.Get(id, ver)
	if err != nil {
		return nil, err
	}
	if p.OutputSchema == "" {
		return nil, fmt.Errorf("prompt %s has no output schema bound", p.ID)
	}
	s, ok := m.schemas.LookupByName(p.OutputSchema)
	if !ok {
		return nil, fmt.Errorf("prompt %s: output schema %q is not loaded", p.ID, p.OutputSchema)
	}

	var data map[string]any
	switch x := payload.(type) {
	case map[string]any:
		data = x
	case string:
		if err := json.Unmarshal([]byte(x), &data); err != nil {
			return nil, fmt.Errorf("output is not valid JSON: %w", err)
		}
	case []byte:
		if err := json.Unmarshal(x, &data); err != nil {
			return nil, fmt.Errorf("output is not valid JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported output payload type %T", payload)
	}
	return s.Validate(data)
}

// compile returns the prompt version's compiled template, building and
// caching it on first use.
func (m *Manager) compile(p *core.Prompt) (*compiledEntry, error) {
	if entry, ok := m.compiled.get(p.ID, p.Version); ok {
		return entry, nil
	}

	entry := &compiledEntry{}
	if p.ChatTemplate != nil {
		cc, err := template.CompileChat(p.ChatTemplate)
		if err != nil {
			return nil, fmt.Errorf("prompt %s@%s: %w", p.ID, p.Version, err)
		}
		entry.chat = cc
	} else {
		c, err := template.CompileWithPartials(p.Template.Content, p.Template.Partials)
		if err != nil {
			return nil, fmt.Errorf("prompt %s@%s: %w", p.ID, p.Version, err)
		}
		entry.text = c
	}
	m.compiled.put(p.ID, p.Version, entry)
	return entry, nil
}

// checkPrompt validates the model, compiles the templates, and resolves the
// schema bindings so broken prompts never reach the registry.
func (m *Manager) checkPrompt(p *core.Prompt) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ChatTemplate != nil {
		if _, err := template.CompileChat(p.ChatTemplate); err != nil {
			return fmt.Errorf("prompt %s: %w", p.ID, err)
		}
	} else {
		if _, err := template.CompileWithPartials(p.Template.Content, p.Template.Partials); err != nil {
			return fmt.Errorf("prompt %s: %w", p.ID, err)
		}
	}
	for _, name := range []string{p.InputSchema, p.OutputSchema} {
		if name == "" {
			continue
		}
		if _, ok := m.schemas.LookupByName(name); !ok {
			return fmt.Errorf("prompt %s: schema %q is not loaded", p.ID, name)
		}
	}
	return nil
}

// commit writes a prompt version to the registry and, when configured, the
// persistent store.
func (m *Manager) commit(ctx context.Context, p *core.Prompt) error {
	if err := m.registry.Upsert(p); err != nil {
		return err
	}
	if m.store != nil {
		if err := m.store.Save(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// injectText wraps rendered text with the bound schemas' descriptions.
func (m *Manager) injectText(p *core.Prompt, content string) string {
	parts := make([]string, 0, 3)
	if p.InputSchema != "" {
		if s, ok := m.schemas.LookupByName(p.InputSchema); ok {
			parts = append(parts, s.DescribeInput())
		}
	}
	parts = append(parts, content)
	if p.OutputSchema != "" {
		if s, ok := m.schemas.LookupByName(p.OutputSchema); ok {
			parts = append(parts, s.DescribeOutput())
		}
	}
	return strings.Join(parts, "\n\n")
}

// injectChat carries the schema descriptions into a message list: the input
// block joins the leading system message (or becomes one), the output block
// lands in a trailing system message.
func (m *Manager) injectChat(p *core.Prompt, msgs []core.Message) []core.Message {
	if p.InputSchema != "" {
		if s, ok := m.schemas.LookupByName(p.InputSchema); ok {
			desc := s.DescribeInput()
			if len(msgs) > 0 && msgs[0].Role == core.RoleSystem {
				msgs[0].Content = desc + "\n\n" + msgs[0].Content
			} else {
				msgs = append([]core.Message{{Role: core.RoleSystem, Content: desc}}, msgs...)
			}
		}
	}
	if p.OutputSchema != "" {
		if s, ok := m.schemas.LookupByName(p.OutputSchema); ok {
			msgs = append(msgs, core.Message{Role: core.RoleSystem, Content: s.DescribeOutput()})
		}
	}
	return msgs
}
