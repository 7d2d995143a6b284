package manager

import "context"

// Hook observes prompt lifecycle events. Implementations must not block;
// the manager calls them inline on the render path.
type Hook interface {
	OnPromptCreated(ctx context.Context, ex *Execution)
	OnPromptUpdated(ctx context.Context, ex *Execution)
	OnRenderStart(ctx context.Context, ex *Execution)
	OnRenderComplete(ctx context.Context, ex *Execution)
	OnRenderError(ctx context.Context, ex *Execution, err error)
	OnCacheHit(ctx context.Context, ex *Execution)
	OnPromptArchived(ctx context.Context, promptID string)
}

// NopHook lets you implement only the hooks you need.
type NopHook struct{}

func (NopHook) OnPromptCreated(context.Context, *Execution)        {}
func (NopHook) OnPromptUpdated(context.Context, *Execution)        {}
func (NopHook) OnRenderStart(context.Context, *Execution)          {}
func (NopHook) OnRenderComplete(context.Context, *Execution)       {}
func (NopHook) OnRenderError(context.Context, *Execution, error)   {}
func (NopHook) OnCacheHit(context.Context, *Execution)             {}
func (NopHook) OnPromptArchived(context.Context, string)           {}

// Hooks fans out to a list of hooks in order. A panicking hook is contained
// so one bad observer cannot take down a render.
type Hooks []Hook

func (hs Hooks) each(fn func(h Hook)) {
	for _, h := range hs {
		func() {
			defer func() { _ = recover() }()
			fn(h)
		}()
	}
}

func (hs Hooks) OnPromptCreated(ctx context.Context, ex *Execution) {
	hs.each(func(h Hook) { h.OnPromptCreated(ctx, ex) })
}
func (hs Hooks) OnPromptUpdated(ctx context.Context, ex *Execution) {
	hs.each(func(h Hook) { h.OnPromptUpdated(ctx, ex) })
}
func (hs Hooks) OnRenderStart(ctx context.Context, ex *Execution) {
	hs.each(func(h Hook) { h.OnRenderStart(ctx, ex) })
}
func (hs Hooks) OnRenderComplete(ctx context.Context, ex *Execution) {
	hs.each(func(h Hook) { h.OnRenderComplete(ctx, ex) })
}
func (hs Hooks) OnRenderError(ctx context.Context, ex *Execution, err error) {
	hs.each(func(h Hook) { h.OnRenderError(ctx, ex, err) })
}
func (hs Hooks) OnCacheHit(ctx context.Context, ex *Execution) {
	hs.each(func(h Hook) { h.OnCacheHit(ctx, ex) })
}
func (hs Hooks) OnPromptArchived(ctx context.Context, promptID string) {
	hs.each(func(h Hook) { h.OnPromptArchived(ctx, promptID) })
}

// Metrics records quantitative render outcomes. A nil Metrics is valid and
// records nothing.
type Metrics interface {
	RecordRender(promptID, version string, durationMs float64, success bool)
	RecordCacheHit(promptID string)
	RecordCacheMiss(promptID string)
}
