package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	ignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/sync/errgroup"

	"github.com/promptvault/promptvault/internal/core"
)

// File persists prompts as a JSON tree: <base>/<id>/<version>.json.
// A .promptignore file at the base (gitignore syntax) excludes entries from
// scans, so scratch copies and editor droppings never surface as prompts.
type File struct {
	base    string
	ignorer *ignore.GitIgnore
}

// NewFile opens (creating if needed) a file store rooted at base.
func NewFile(base string) (*File, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, &WriteError{Op: "init", Err: err}
	}

	f := &File{base: base}
	ignorePath := filepath.Join(base, ".promptignore")
	if _, err := os.Stat(ignorePath); err == nil {
		ignorer, err := ignore.CompileIgnoreFile(ignorePath)
		if err != nil {
			return nil, &ReadError{Err: fmt.Errorf("parsing .promptignore: %w", err)}
		}
		f.ignorer = ignorer
	}
	return f, nil
}

// Base returns the store's root directory.
func (f *File) Base() string { return f.base }

func (f *File) ignored(relPath string) bool {
	return f.ignorer != nil && f.ignorer.MatchesPath(relPath)
}

func (f *File) promptPath(id, version string) string {
	return filepath.Join(f.base, id, version+".json")
}

func (f *File) Save(ctx context.Context, p *core.Prompt) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Join(f.base, p.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &WriteError{PromptID: p.ID, Op: "save", Err: err}
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return &WriteError{PromptID: p.ID, Op: "save", Err: err}
	}

	// Write to a temp file then rename so readers never see a torn write.
	path := f.promptPath(p.ID, p.Version)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &WriteError{PromptID: p.ID, Op: "save", Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &WriteError{PromptID: p.ID, Op: "save", Err: err}
	}
	return nil
}

func (f *File) Load(ctx context.Context, id, version string) (*core.Prompt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if version == "" {
		numbers, err := f.versionsOf(id)
		if err != nil {
			return nil, err
		}
		version = latestVersion(numbers)
		if version == "" {
			return nil, core.NewNotFoundError(id, "")
		}
	}

	data, err := os.ReadFile(f.promptPath(id, version))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, core.NewNotFoundError(id, version)
		}
		return nil, &ReadError{PromptID: id, Err: err}
	}

	var p core.Prompt
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &ReadError{PromptID: id, Err: fmt.Errorf("decoding %s@%s: %w", id, version, err)}
	}
	return &p, nil
}

func (f *File) Delete(ctx context.Context, id, version string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Join(f.base, id)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return core.NewNotFoundError(id, version)
	}

	if version == "" {
		if err := os.RemoveAll(dir); err != nil {
			return &WriteError{PromptID: id, Op: "delete", Err: err}
		}
		return nil
	}

	path := f.promptPath(id, version)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return core.NewNotFoundError(id, version)
		}
		return &WriteError{PromptID: id, Op: "delete", Err: err}
	}

	// Drop the directory once the last version is gone.
	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		os.Remove(dir)
	}
	return nil
}

// List loads the latest version of every prompt under the base directory,
// in parallel, and filters the results. Unreadable entries are skipped, not
// fatal: one corrupt file must not hide the rest of the store.
func (f *File) List(ctx context.Context, filter Filter) ([]*core.Prompt, error) {
	entries, err := os.ReadDir(f.base)
	if err != nil {
		return nil, &ReadError{Err: err}
	}

	var (
		mu  sync.Mutex
		out []*core.Prompt
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for _, entry := range entries {
		if !entry.IsDir() || f.ignored(entry.Name()) {
			continue
		}
		id := entry.Name()
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := f.Load(ctx, id, "")
			if err != nil {
				return nil // skip unreadable prompt directories
			}
			if !matches(p, filter) {
				return nil
			}
			mu.Lock()
			out = append(out, p)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *File) Versions(ctx context.Context, id string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	numbers, err := f.versionsOf(id)
	if err != nil {
		return nil, err
	}
	return sortVersions(numbers), nil
}

func (f *File) Exists(ctx context.Context, id, version string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if version != "" {
		_, err := os.Stat(f.promptPath(id, version))
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return err == nil, err
	}
	numbers, err := f.versionsOf(id)
	if err != nil {
		var nferr *core.NotFoundError
		if errors.As(err, &nferr) {
			return false, nil
		}
		return false, err
	}
	return len(numbers) > 0, nil
}

func (f *File) Close() error { return nil }

// versionsOf lists the version numbers stored for a prompt id, ignoring
// anything .promptignore matches and files that are not version JSON.
func (f *File) versionsOf(id string) ([]string, error) {
	dir := filepath.Join(f.base, id)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, core.NewNotFoundError(id, "")
		}
		return nil, &ReadError{PromptID: id, Err: err}
	}

	var numbers []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if f.ignored(filepath.Join(id, name)) {
			continue
		}
		numbers = append(numbers, strings.TrimSuffix(name, ".json"))
	}
	return numbers, nil
}
