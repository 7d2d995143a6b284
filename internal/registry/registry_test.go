package registry

import (
	"errors"
	"testing"

	"github.com/promptvault/promptvault/internal/core"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := New()
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func prompt(id, version string, status core.Status, tags ...string) *core.Prompt {
	return &core.Prompt{
		ID:       id,
		Version:  version,
		Format:   core.FormatText,
		Status:   status,
		Template: &core.Template{Content: "body of " + id + " " + version},
		Metadata: core.Metadata{Tags: tags},
	}
}

func TestUpsertAndGet(t *testing.T) {
	r := newRegistry(t)

	if err := r.Upsert(prompt("greeting", "1.0.0", core.StatusActive)); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}

	got, err := r.Get("greeting", "1.0.0")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.ID != "greeting" || got.Version != "1.0.0" {
		t.Errorf("got %s@%s", got.ID, got.Version)
	}

	// Returned prompt is a copy.
	got.Template.Content = "mutated"
	again, _ := r.Get("greeting", "1.0.0")
	if again.Template.Content == "mutated" {
		t.Error("Get returned shared state")
	}

	var nferr *core.NotFoundError
	if _, err := r.Get("ghost", ""); !errors.As(err, &nferr) {
		t.Errorf("expected *core.NotFoundError, got %v", err)
	}
}

func TestUpsertRejectsInvalid(t *testing.T) {
	r := newRegistry(t)

	if err := r.Upsert(prompt("p", "not-semver", core.StatusActive)); err == nil {
		t.Error("invalid version accepted")
	}
	if err := r.Upsert(prompt("Bad ID", "1.0.0", core.StatusActive)); err == nil {
		t.Error("invalid id accepted")
	}
}

func TestGetLatestSkipsArchived(t *testing.T) {
	r := newRegistry(t)

	for _, p := range []*core.Prompt{
		prompt("p", "1.0.0", core.StatusActive),
		prompt("p", "1.1.0", core.StatusActive),
		prompt("p", "2.0.0", core.StatusArchived),
	} {
		if err := r.Upsert(p); err != nil {
			t.Fatal(err)
		}
	}

	got, err := r.Get("p", "")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Version != "1.1.0" {
		t.Errorf("latest = %s, want 1.1.0 (archived 2.0.0 skipped)", got.Version)
	}

	// Explicit version still reaches the archived entry.
	got, err = r.Get("p", "2.0.0")
	if err != nil {
		t.Fatalf("Get explicit error: %v", err)
	}
	if got.Status != core.StatusArchived {
		t.Errorf("status = %s", got.Status)
	}
}

func TestSemverOrderingNotLexical(t *testing.T) {
	r := newRegistry(t)

	for _, v := range []string{"1.9.0", "1.10.0", "1.2.0"} {
		if err := r.Upsert(prompt("p", v, core.StatusActive)); err != nil {
			t.Fatal(err)
		}
	}

	got, err := r.Get("p", "")
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != "1.10.0" {
		t.Errorf("latest = %s, want 1.10.0", got.Version)
	}

	versions, err := r.Versions("p")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"1.2.0", "1.9.0", "1.10.0"}
	for i, v := range versions {
		if v != want[i] {
			t.Errorf("versions[%d] = %s, want %s", i, v, want[i])
		}
	}
}

func TestFindFilters(t *testing.T) {
	r := newRegistry(t)

	for _, p := range []*core.Prompt{
		prompt("a", "1.0.0", core.StatusActive, "support"),
		prompt("b", "1.0.0", core.StatusActive, "billing"),
		prompt("c", "1.0.0", core.StatusDraft, "support"),
	} {
		if err := r.Upsert(p); err != nil {
			t.Fatal(err)
		}
	}

	collect := func(f Filter) []string {
		var ids []string
		for p := range r.Find(f) {
			ids = append(ids, p.ID)
		}
		return ids
	}

	if got := collect(Filter{}); len(got) != 3 {
		t.Errorf("unfiltered = %v", got)
	}
	if got := collect(Filter{Tag: "support"}); len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Errorf("tag filter = %v", got)
	}
	if got := collect(Filter{Status: core.StatusDraft}); len(got) != 1 || got[0] != "c" {
		t.Errorf("status filter = %v", got)
	}
	if got := collect(Filter{Tag: "support", Status: core.StatusActive}); len(got) != 1 || got[0] != "a" {
		t.Errorf("combined filter = %v", got)
	}
}

func TestFindIsRestartable(t *testing.T) {
	r := newRegistry(t)
	for _, id := range []string{"a", "b", "c"} {
		if err := r.Upsert(prompt(id, "1.0.0", core.StatusActive)); err != nil {
			t.Fatal(err)
		}
	}

	seq := r.Find(Filter{})

	// First pass stops early; second pass must start over.
	count := 0
	for range seq {
		count++
		if count == 1 {
			break
		}
	}

	total := 0
	for range seq {
		total++
	}
	if total != 3 {
		t.Errorf("second iteration saw %d prompts, want 3", total)
	}
}

func TestRemoveArchives(t *testing.T) {
	r := newRegistry(t)

	if err := r.Upsert(prompt("p", "1.0.0", core.StatusActive)); err != nil {
		t.Fatal(err)
	}
	if err := r.Upsert(prompt("p", "1.1.0", core.StatusActive)); err != nil {
		t.Fatal(err)
	}

	if err := r.Remove("p"); err != nil {
		t.Fatalf("Remove error: %v", err)
	}

	// No latest version resolves any more.
	var nferr *core.NotFoundError
	if _, err := r.Get("p", ""); !errors.As(err, &nferr) {
		t.Errorf("expected not-found for latest after Remove, got %v", err)
	}

	// History stays reachable.
	got, err := r.Get("p", "1.0.0")
	if err != nil {
		t.Fatalf("Get after Remove error: %v", err)
	}
	if got.Status != core.StatusArchived {
		t.Errorf("status = %s, want archived", got.Status)
	}

	if err := r.Remove("ghost"); err == nil {
		t.Error("Remove of unknown prompt succeeded")
	}
}

func TestSearch(t *testing.T) {
	r := newRegistry(t)

	support := prompt("support_reply", "1.0.0", core.StatusActive, "support")
	support.Metadata.Description = "Drafts a reply to a customer support ticket"
	support.Template.Content = "Respond politely to {{customer}} about {{issue}}"

	recipe := prompt("recipe_writer", "1.0.0", core.StatusActive, "cooking")
	recipe.Metadata.Description = "Writes a recipe from a list of ingredients"

	for _, p := range []*core.Prompt{support, recipe} {
		if err := r.Upsert(p); err != nil {
			t.Fatal(err)
		}
	}

	hits, err := r.Search("customer support", 5)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(hits) == 0 || hits[0].ID != "support_reply" {
		t.Errorf("hits = %+v, want support_reply first", hits)
	}

	// Removed prompts leave the index.
	if err := r.Remove("support_reply"); err != nil {
		t.Fatal(err)
	}
	hits, err = r.Search("customer support", 5)
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range hits {
		if h.ID == "support_reply" {
			t.Error("archived prompt still in search index")
		}
	}
}

func TestUpsertArchivedStaysOutOfSearch(t *testing.T) {
	r := newRegistry(t)

	p := prompt("retired", "1.0.0", core.StatusActive, "old")
	p.Metadata.Description = "Summarizes quarterly revenue reports"
	if err := r.Upsert(p); err != nil {
		t.Fatal(err)
	}
	if err := r.Remove("retired"); err != nil {
		t.Fatal(err)
	}

	// Re-upserting an archived version must not resurrect the search
	// document for a prompt Get(id, "") cannot resolve.
	archived := prompt("retired", "1.0.0", core.StatusArchived, "old")
	archived.Metadata.Description = "Summarizes quarterly revenue reports"
	if err := r.Upsert(archived); err != nil {
		t.Fatal(err)
	}

	hits, err := r.Search("quarterly revenue", 5)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	for _, h := range hits {
		if h.ID == "retired" {
			t.Fatalf("archived prompt surfaced in search: %+v", h)
		}
	}
	if _, err := r.Get("retired", ""); err == nil {
		t.Error("expected latest lookup to miss a fully archived prompt")
	}

	// A new active version brings the prompt back.
	revived := prompt("retired", "1.1.0", core.StatusActive, "old")
	revived.Metadata.Description = "Summarizes quarterly revenue reports"
	if err := r.Upsert(revived); err != nil {
		t.Fatal(err)
	}
	hits, err = r.Search("quarterly revenue", 5)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, h := range hits {
		if h.ID == "retired" {
			found = true
		}
	}
	if !found {
		t.Errorf("revived prompt missing from search: %+v", hits)
	}
}
