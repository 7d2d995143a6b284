package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/promptvault/promptvault/internal/core"
)

func TestWatcherReportsChangedPrompts(t *testing.T) {
	ctx := context.Background()
	store, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	// An existing prompt directory so the watcher covers it from the start.
	if err := store.Save(ctx, testPrompt("existing", "1.0.0", core.StatusActive)); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(store)
	if err != nil {
		t.Fatal(err)
	}
	w.debounceTime = 50 * time.Millisecond

	var (
		mu   sync.Mutex
		seen = map[string]bool{}
	)
	w.OnChange(func(ids []string) {
		mu.Lock()
		for _, id := range ids {
			seen[id] = true
		}
		mu.Unlock()
	})

	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := store.Save(ctx, testPrompt("existing", "1.1.0", core.StatusActive)); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(3 * time.Second)
	for {
		mu.Lock()
		ok := seen["existing"]
		mu.Unlock()
		if ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("watcher never reported the changed prompt")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestWatcherStops(t *testing.T) {
	store, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	w, err := NewWatcher(store)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
