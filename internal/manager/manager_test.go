package manager

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/promptvault/promptvault/internal/core"
	"github.com/promptvault/promptvault/internal/registry"
	"github.com/promptvault/promptvault/internal/schema"
	"github.com/promptvault/promptvault/internal/storage"
	"github.com/promptvault/promptvault/internal/template"
	"github.com/promptvault/promptvault/internal/version"
)

func newManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	m, err := New(opts...)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func draft(id, content string) *core.Prompt {
	return &core.Prompt{
		ID:       id,
		Format:   core.FormatText,
		Status:   core.StatusActive,
		Template: &core.Template{Content: content},
	}
}

func TestCreateAndRender(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	created, err := m.Create(ctx, draft("greeting", "Hello {{name}}!"), "initial")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if created.Version != "1.0.0" {
		t.Errorf("Version = %s, want 1.0.0", created.Version)
	}

	out, err := m.Render(ctx, "greeting", "", map[string]any{"name": "Ada"}, RenderOptions{})
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if out.Text != "Hello Ada!" {
		t.Errorf("Text = %q", out.Text)
	}
	if out.Version != "1.0.0" {
		t.Errorf("rendered version = %s", out.Version)
	}
	if out.Execution == nil || out.Execution.ID == "" {
		t.Error("execution record missing")
	}
	if out.Execution.CacheHit {
		t.Error("first render reported a cache hit")
	}
}

func TestCreateRejectsBrokenTemplates(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	if _, err := m.Create(ctx, draft("p", "Hello {{name"), ""); err == nil {
		t.Error("unterminated template accepted")
	}
	var serr *template.SyntaxError
	_, err := m.Create(ctx, draft("p", "{{1bad}}"), "")
	if !errors.As(err, &serr) {
		t.Errorf("expected *template.SyntaxError, got %v", err)
	}
}

func TestCreateRejectsUnknownSchema(t *testing.T) {
	m := newManager(t)
	p := draft("p", "body {{x}}")
	p.InputSchema = "not_loaded"

	if _, err := m.Create(context.Background(), p, ""); err == nil {
		t.Error("prompt with unresolved schema accepted")
	}
}

func TestRenderMissingVariable(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	if _, err := m.Create(ctx, draft("p", "Hello {{name}}"), ""); err != nil {
		t.Fatal(err)
	}

	_, err := m.Render(ctx, "p", "", nil, RenderOptions{})
	var rerr *template.RenderError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *template.RenderError, got %v", err)
	}
	if rerr.Variable != "name" {
		t.Errorf("Variable = %q", rerr.Variable)
	}
}

func TestRenderUnknownPrompt(t *testing.T) {
	m := newManager(t)

	_, err := m.Render(context.Background(), "ghost", "", nil, RenderOptions{})
	var nferr *core.NotFoundError
	if !errors.As(err, &nferr) {
		t.Fatalf("expected *core.NotFoundError, got %v", err)
	}
}

func TestRenderCacheHitAndInvalidation(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	vars := map[string]any{"name": "Ada"}

	if _, err := m.Create(ctx, draft("p", "Hello {{name}}"), ""); err != nil {
		t.Fatal(err)
	}

	first, err := m.Render(ctx, "p", "", vars, RenderOptions{})
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.Render(ctx, "p", "", vars, RenderOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !second.Execution.CacheHit {
		t.Error("second identical render was not a cache hit")
	}
	if second.Text != first.Text {
		t.Errorf("cached text %q != original %q", second.Text, first.Text)
	}

	// Different variables miss the cache.
	third, err := m.Render(ctx, "p", "", map[string]any{"name": "Grace"}, RenderOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if third.Execution.CacheHit {
		t.Error("different variables reported a cache hit")
	}

	// Recording a new version drops the prompt's cache entries.
	if _, err := m.Update(ctx, draft("p", "Hi {{name}}"), "rewrite", version.BumpMinor); err != nil {
		t.Fatalf("Update error: %v", err)
	}
	fourth, err := m.Render(ctx, "p", "", vars, RenderOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if fourth.Execution.CacheHit {
		t.Error("render after update reported a cache hit")
	}
	if fourth.Text != "Hi Ada" {
		t.Errorf("Text = %q, want new template output", fourth.Text)
	}
}

func TestUpdateRequiresExistingPrompt(t *testing.T) {
	m := newManager(t)

	_, err := m.Update(context.Background(), draft("ghost", "body"), "", version.BumpPatch)
	var nferr *core.NotFoundError
	if !errors.As(err, &nferr) {
		t.Errorf("expected *core.NotFoundError, got %v", err)
	}
}

func TestUpdateDuplicateContentConflicts(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	if _, err := m.Create(ctx, draft("p", "same"), ""); err != nil {
		t.Fatal(err)
	}
	_, err := m.Update(ctx, draft("p", "same"), "", version.BumpPatch)
	var cerr *version.ConflictError
	if !errors.As(err, &cerr) {
		t.Errorf("expected *version.ConflictError, got %v", err)
	}
}

func TestHistory(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	if _, err := m.Create(ctx, draft("p", "v1"), "first"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Update(ctx, draft("p", "v2"), "second", version.BumpMajor); err != nil {
		t.Fatal(err)
	}

	history, err := m.History("p")
	if err != nil {
		t.Fatalf("History error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("got %d versions", len(history))
	}
	if history[0].Number != "1.0.0" || history[1].Number != "2.0.0" {
		t.Errorf("versions = %s, %s", history[0].Number, history[1].Number)
	}
	if history[1].Changelog != "second" {
		t.Errorf("changelog = %q", history[1].Changelog)
	}
}

func TestArchive(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	if _, err := m.Create(ctx, draft("p", "body"), ""); err != nil {
		t.Fatal(err)
	}
	if err := m.Archive(ctx, "p"); err != nil {
		t.Fatalf("Archive error: %v", err)
	}

	var nferr *core.NotFoundError
	if _, err := m.Render(ctx, "p", "", nil, RenderOptions{}); !errors.As(err, &nferr) {
		t.Errorf("render of archived prompt: %v", err)
	}
	// Explicit version access still works.
	if _, err := m.Get("p", "1.0.0"); err != nil {
		t.Errorf("explicit Get after archive: %v", err)
	}
}

func loadSchemas(t *testing.T, m *Manager, doc string) {
	t.Helper()
	loader := schema.NewLoader(m.Schemas())
	if _, err := loader.LoadBytes([]byte(doc), "test.yaml"); err != nil {
		t.Fatalf("loading schemas: %v", err)
	}
}

func TestRenderValidatesInputSchema(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	loadSchemas(t, m, `
schemas:
  - name: ticket_input
    fields:
      - name: customer
        type: string
        required: true
      - name: severity
        type: integer
        required: false
        default: 3
`)

	p := draft("ticket", "Customer {{customer}}, severity {{severity}}")
	p.InputSchema = "ticket_input"
	if _, err := m.Create(ctx, p, ""); err != nil {
		t.Fatal(err)
	}

	// Defaults flow into the render.
	out, err := m.Render(ctx, "ticket", "", map[string]any{"customer": "Ada"}, RenderOptions{})
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if out.Text != "Customer Ada, severity 3" {
		t.Errorf("Text = %q", out.Text)
	}

	// Schema violations fail the render before templating.
	_, err = m.Render(ctx, "ticket", "", map[string]any{}, RenderOptions{})
	var verr *schema.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *schema.ValidationError, got %v", err)
	}
}

func TestValidateOutput(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	loadSchemas(t, m, `
schemas:
  - name: verdict
    fields:
      - name: answer
        type: string
        required: true
      - name: confidence
        type: float
        required: true
`)

	p := draft("qa", "Answer: {{question}}")
	p.OutputSchema = "verdict"
	if _, err := m.Create(ctx, p, ""); err != nil {
		t.Fatal(err)
	}

	// JSON string payloads decode before validation.
	out, err := m.ValidateOutput(ctx, "qa", "", `{"answer": "42", "confidence": 0.9}`)
	if err != nil {
		t.Fatalf("ValidateOutput error: %v", err)
	}
	if out["answer"] != "42" {
		t.Errorf("answer = %v", out["answer"])
	}

	if _, err := m.ValidateOutput(ctx, "qa", "", `{"answer": "42"}`); err == nil {
		t.Error("missing field accepted")
	}
	if _, err := m.ValidateOutput(ctx, "qa", "", "not json"); err == nil {
		t.Error("non-JSON payload accepted")
	}
}

func TestSchemaInjection(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	loadSchemas(t, m, `
schemas:
  - name: q_input
    fields:
      - name: question
        type: string
        required: true
  - name: q_output
    fields:
      - name: answer
        type: string
        required: true
`)

	p := draft("qa", "Q: {{question}}")
	p.InputSchema = "q_input"
	p.OutputSchema = "q_output"
	if _, err := m.Create(ctx, p, ""); err != nil {
		t.Fatal(err)
	}

	out, err := m.Render(ctx, "qa", "", map[string]any{"question": "why"}, RenderOptions{InjectSchemas: true})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.Text, "# Input Requirements") {
		t.Error("input requirements block missing")
	}
	if !strings.Contains(out.Text, "Q: why") {
		t.Error("rendered body missing")
	}
	if !strings.Contains(out.Text, "# Output Requirements") {
		t.Error("output requirements block missing")
	}
	if !strings.Contains(out.Text, `"answer"`) {
		t.Error("JSON skeleton missing")
	}

	// Without the flag the blocks stay out.
	plain, err := m.Render(ctx, "qa", "", map[string]any{"question": "why"}, RenderOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(plain.Text, "# Input Requirements") {
		t.Error("injection happened without the flag")
	}
}

func TestChatRenderAndInjection(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	loadSchemas(t, m, `
schemas:
  - name: chat_out
    fields:
      - name: reply
        type: string
        required: true
`)

	p := &core.Prompt{
		ID:     "chat",
		Format: core.FormatChat,
		Status: core.StatusActive,
		ChatTemplate: &core.ChatTemplate{
			Messages: []core.Message{
				{Role: core.RoleSystem, Content: "You are {{persona}}."},
				{Role: core.RoleUser, Content: "{{question}}"},
			},
		},
		OutputSchema: "chat_out",
	}
	if _, err := m.Create(ctx, p, ""); err != nil {
		t.Fatal(err)
	}

	out, err := m.Render(ctx, "chat", "", map[string]any{
		"persona":  "terse",
		"question": "why",
	}, RenderOptions{InjectSchemas: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Messages) != 3 {
		t.Fatalf("got %d messages, want 3 (output block appended)", len(out.Messages))
	}
	if out.Messages[0].Content != "You are terse." {
		t.Errorf("system message = %q", out.Messages[0].Content)
	}
	last := out.Messages[len(out.Messages)-1]
	if last.Role != core.RoleSystem || !strings.Contains(last.Content, "# Output Requirements") {
		t.Errorf("trailing message = %+v", last)
	}
}

type recordingHook struct {
	NopHook
	mu        sync.Mutex
	started   int
	completed int
	failed    int
	cacheHits int
}

func (h *recordingHook) OnRenderStart(ctx context.Context, ex *Execution) {
	h.mu.Lock()
	h.started++
	h.mu.Unlock()
}
func (h *recordingHook) OnRenderComplete(ctx context.Context, ex *Execution) {
	h.mu.Lock()
	h.completed++
	h.mu.Unlock()
}
func (h *recordingHook) OnRenderError(ctx context.Context, ex *Execution, err error) {
	h.mu.Lock()
	h.failed++
	h.mu.Unlock()
}
func (h *recordingHook) OnCacheHit(ctx context.Context, ex *Execution) {
	h.mu.Lock()
	h.cacheHits++
	h.mu.Unlock()
}

type panickyHook struct{ NopHook }

func (panickyHook) OnRenderStart(context.Context, *Execution) { panic("bad observer") }

func TestHooksObserveRenders(t *testing.T) {
	rec := &recordingHook{}
	// The panicking hook runs first and must not break anything.
	m := newManager(t, WithHooks(panickyHook{}, rec))
	ctx := context.Background()

	if _, err := m.Create(ctx, draft("p", "Hello {{name}}"), ""); err != nil {
		t.Fatal(err)
	}

	vars := map[string]any{"name": "Ada"}
	if _, err := m.Render(ctx, "p", "", vars, RenderOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Render(ctx, "p", "", vars, RenderOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Render(ctx, "p", "", nil, RenderOptions{}); err == nil {
		t.Fatal("expected render error")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.started != 3 {
		t.Errorf("started = %d, want 3", rec.started)
	}
	if rec.completed != 2 {
		t.Errorf("completed = %d, want 2", rec.completed)
	}
	if rec.failed != 1 {
		t.Errorf("failed = %d, want 1", rec.failed)
	}
	if rec.cacheHits != 1 {
		t.Errorf("cacheHits = %d, want 1", rec.cacheHits)
	}
}

type countingMetrics struct {
	mu      sync.Mutex
	renders int
	hits    int
	misses  int
}

func (c *countingMetrics) RecordRender(promptID, version string, durationMs float64, success bool) {
	c.mu.Lock()
	c.renders++
	c.mu.Unlock()
}
func (c *countingMetrics) RecordCacheHit(promptID string) {
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
}
func (c *countingMetrics) RecordCacheMiss(promptID string) {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}

func TestMetricsRecorded(t *testing.T) {
	mx := &countingMetrics{}
	m := newManager(t, WithMetrics(mx))
	ctx := context.Background()

	if _, err := m.Create(ctx, draft("p", "Hello {{name}}"), ""); err != nil {
		t.Fatal(err)
	}
	vars := map[string]any{"name": "Ada"}
	for i := 0; i < 3; i++ {
		if _, err := m.Render(ctx, "p", "", vars, RenderOptions{}); err != nil {
			t.Fatal(err)
		}
	}

	mx.mu.Lock()
	defer mx.mu.Unlock()
	if mx.renders != 3 {
		t.Errorf("renders = %d", mx.renders)
	}
	if mx.misses != 1 || mx.hits != 2 {
		t.Errorf("hits/misses = %d/%d, want 2/1", mx.hits, mx.misses)
	}
}

func TestWriteThroughStore(t *testing.T) {
	store := storage.NewMemory()
	m := newManager(t, WithStore(store))
	ctx := context.Background()

	if _, err := m.Create(ctx, draft("p", "v1 {{x}}"), ""); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Update(ctx, draft("p", "v2 {{x}}"), "", version.BumpMinor); err != nil {
		t.Fatal(err)
	}

	versions, err := store.Versions(ctx, "p")
	if err != nil {
		t.Fatalf("store.Versions error: %v", err)
	}
	if len(versions) != 2 {
		t.Errorf("persisted versions = %v", versions)
	}
	p, err := store.Load(ctx, "p", "")
	if err != nil {
		t.Fatal(err)
	}
	if p.Version != "1.1.0" {
		t.Errorf("persisted latest = %s", p.Version)
	}
}

func TestFindAndSearchProxies(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	a := draft("alpha", "does something")
	a.Metadata.Tags = []string{"demo"}
	a.Metadata.Description = "summarizes customer feedback"
	if _, err := m.Create(ctx, a, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Create(ctx, draft("beta", "other thing"), ""); err != nil {
		t.Fatal(err)
	}

	var ids []string
	for p := range m.Find(registry.Filter{Tag: "demo"}) {
		ids = append(ids, p.ID)
	}
	if len(ids) != 1 || ids[0] != "alpha" {
		t.Errorf("Find = %v", ids)
	}

	hits, err := m.Search("customer feedback", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) == 0 || hits[0].ID != "alpha" {
		t.Errorf("Search = %+v", hits)
	}
}

func TestLoadStoreHydratesRegistry(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()

	// Populate the store through one manager, then rebuild from scratch.
	first := newManager(t, WithStore(store))
	if _, err := first.Create(ctx, draft("seeded", "v1 {{x}}"), "initial"); err != nil {
		t.Fatal(err)
	}
	if _, err := first.Update(ctx, draft("seeded", "v2 {{x}}"), "", version.BumpMinor); err != nil {
		t.Fatal(err)
	}

	second := newManager(t, WithStore(store))
	n, err := second.LoadStore(ctx)
	if err != nil {
		t.Fatalf("LoadStore error: %v", err)
	}
	if n != 2 {
		t.Errorf("loaded = %d, want 2", n)
	}

	p, err := second.Get("seeded", "")
	if err != nil {
		t.Fatal(err)
	}
	if p.Version != "1.1.0" {
		t.Errorf("latest = %s, want 1.1.0", p.Version)
	}

	history, err := second.History("seeded")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[1].Parent != "1.0.0" {
		t.Errorf("history = %+v", history)
	}

	out, err := second.Render(ctx, "seeded", "", map[string]any{"x": "hi"}, RenderOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if out.Text != "v2 hi" {
		t.Errorf("Text = %q", out.Text)
	}
}

func TestLoadStoreWithoutStore(t *testing.T) {
	m := newManager(t)
	if _, err := m.LoadStore(context.Background()); err == nil {
		t.Error("expected error without an attached store")
	}
}

func TestRenderNoCacheBypass(t *testing.T) {
	mx := &countingMetrics{}
	m := newManager(t, WithMetrics(mx))
	ctx := context.Background()

	if _, err := m.Create(ctx, draft("bypass", "Hi {{x}}"), ""); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		out, err := m.Render(ctx, "bypass", "", map[string]any{"x": "a"}, RenderOptions{NoCache: true})
		if err != nil {
			t.Fatal(err)
		}
		if out.Execution.CacheHit {
			t.Errorf("render %d hit the cache despite NoCache", i)
		}
	}
	if mx.hits != 0 || mx.misses != 0 {
		t.Errorf("hits/misses = %d/%d, want 0/0", mx.hits, mx.misses)
	}

	// A cached render afterwards still works and hits on the second call.
	if _, err := m.Render(ctx, "bypass", "", map[string]any{"x": "a"}, RenderOptions{}); err != nil {
		t.Fatal(err)
	}
	out, err := m.Render(ctx, "bypass", "", map[string]any{"x": "a"}, RenderOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Execution.CacheHit {
		t.Error("expected a cache hit")
	}
}
