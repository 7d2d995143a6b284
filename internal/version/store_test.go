package version

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/promptvault/promptvault/internal/core"
)

func textPrompt(id, content string) *core.Prompt {
	return &core.Prompt{
		ID:       id,
		Format:   core.FormatText,
		Status:   core.StatusDraft,
		Template: &core.Template{Content: content},
	}
}

func TestRecordFirstVersion(t *testing.T) {
	s := NewStore()

	v, err := s.Record(context.Background(), textPrompt("greeting", "Hello {{name}}"), RecordOptions{Changelog: "initial"})
	if err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if v.Number != "1.0.0" {
		t.Errorf("Number = %s, want 1.0.0", v.Number)
	}
	if v.Parent != "" {
		t.Errorf("Parent = %q, want empty", v.Parent)
	}
	if v.Checksum == "" {
		t.Error("checksum not set")
	}
	if v.Snapshot.Version != "1.0.0" {
		t.Errorf("snapshot version = %s", v.Snapshot.Version)
	}
}

func TestRecordBumps(t *testing.T) {
	tests := []struct {
		name string
		bump Bump
		want string
	}{
		{"patch", BumpPatch, "1.0.1"},
		{"minor", BumpMinor, "1.1.0"},
		{"major", BumpMajor, "2.0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			ctx := context.Background()
			if _, err := s.Record(ctx, textPrompt("p", "v1"), RecordOptions{}); err != nil {
				t.Fatalf("first Record error: %v", err)
			}
			v, err := s.Record(ctx, textPrompt("p", "v2"), RecordOptions{Bump: tt.bump})
			if err != nil {
				t.Fatalf("second Record error: %v", err)
			}
			if v.Number != tt.want {
				t.Errorf("Number = %s, want %s", v.Number, tt.want)
			}
			if v.Parent != "1.0.0" {
				t.Errorf("Parent = %s, want 1.0.0", v.Parent)
			}
		})
	}
}

func TestRecordExplicitVersion(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	v, err := s.Record(ctx, textPrompt("p", "v1"), RecordOptions{Explicit: "0.5.0"})
	if err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if v.Number != "0.5.0" {
		t.Errorf("Number = %s, want 0.5.0", v.Number)
	}

	// Explicit numbers must move forward.
	_, err = s.Record(ctx, textPrompt("p", "v2"), RecordOptions{Explicit: "0.4.0"})
	var cerr *ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *ConflictError, got %v", err)
	}

	// Malformed numbers are rejected.
	if _, err := s.Record(ctx, textPrompt("p", "v3"), RecordOptions{Explicit: "not-semver"}); err == nil {
		t.Error("malformed explicit version accepted")
	}
}

func TestRecordDuplicateOfLatest(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if _, err := s.Record(ctx, textPrompt("p", "same content"), RecordOptions{}); err != nil {
		t.Fatalf("Record error: %v", err)
	}

	_, err := s.Record(ctx, textPrompt("p", "same content"), RecordOptions{})
	var cerr *ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *ConflictError for duplicate content, got %v", err)
	}
	if cerr.PromptID != "p" {
		t.Errorf("ConflictError.PromptID = %s", cerr.PromptID)
	}
}

func TestRecordDuplicateOfOlderVersion(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if _, err := s.Record(ctx, textPrompt("p", "original"), RecordOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Record(ctx, textPrompt("p", "changed"), RecordOptions{}); err != nil {
		t.Fatal(err)
	}

	// Rolling back to older content is a new version, not a conflict.
	v, err := s.Record(ctx, textPrompt("p", "original"), RecordOptions{})
	if err != nil {
		t.Fatalf("rollback Record error: %v", err)
	}
	if v.Number != "1.0.2" {
		t.Errorf("Number = %s, want 1.0.2", v.Number)
	}
}

func TestChecksumIgnoresWhitespaceChurn(t *testing.T) {
	a := Checksum(textPrompt("p", "Hello   {{name}}  \n\n"))
	b := Checksum(textPrompt("p", "Hello {{name}}"))
	if a != b {
		t.Error("whitespace-only difference changed the checksum")
	}

	c := Checksum(textPrompt("p", "Hello {{title}}"))
	if a == c {
		t.Error("content difference did not change the checksum")
	}
}

func TestChecksumCoversSchemas(t *testing.T) {
	p := textPrompt("p", "body")
	a := Checksum(p)

	p.InputSchema = "user_input"
	b := Checksum(p)
	if a == b {
		t.Error("input schema binding did not change the checksum")
	}
}

func TestHistoryAndLookups(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if _, err := s.Record(ctx, textPrompt("p", fmt.Sprintf("content %d", i)), RecordOptions{}); err != nil {
			t.Fatal(err)
		}
	}

	history, err := s.History("p")
	if err != nil {
		t.Fatalf("History error: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("got %d versions, want 3", len(history))
	}
	want := []string{"1.0.0", "1.0.1", "1.0.2"}
	for i, v := range history {
		if v.Number != want[i] {
			t.Errorf("history[%d] = %s, want %s", i, v.Number, want[i])
		}
	}

	latest, err := s.Latest("p")
	if err != nil {
		t.Fatalf("Latest error: %v", err)
	}
	if latest.Number != "1.0.2" {
		t.Errorf("Latest = %s", latest.Number)
	}

	v, err := s.Get("p", "1.0.1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if v.Snapshot.Template.Content != "content 2" {
		t.Errorf("snapshot content = %q", v.Snapshot.Template.Content)
	}

	var nferr *NotFoundError
	if _, err := s.Get("p", "9.9.9"); !errors.As(err, &nferr) {
		t.Errorf("expected *NotFoundError, got %v", err)
	}
	if _, err := s.History("ghost"); !errors.As(err, &nferr) {
		t.Errorf("expected *NotFoundError for unknown prompt, got %v", err)
	}
}

func TestConcurrentRecordsStayLinear(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Unique content per goroutine so no record conflicts.
			_, err := s.Record(ctx, textPrompt("p", fmt.Sprintf("content %d", i)), RecordOptions{})
			if err != nil {
				t.Errorf("Record error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	history, err := s.History("p")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != n {
		t.Fatalf("got %d versions, want %d", len(history), n)
	}
	// Lineage must be a single chain.
	for i := 1; i < len(history); i++ {
		if history[i].Parent != history[i-1].Number {
			t.Errorf("history[%d].Parent = %s, want %s", i, history[i].Parent, history[i-1].Number)
		}
	}
}

func TestAdoptRestoresHistory(t *testing.T) {
	s := NewStore()

	for _, num := range []string{"1.0.0", "1.1.0", "2.0.0"} {
		p := textPrompt("restored", "body for "+num)
		p.Version = num
		if _, err := s.Adopt(p); err != nil {
			t.Fatalf("Adopt %s: %v", num, err)
		}
	}

	history, err := s.History("restored")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Fatalf("got %d versions", len(history))
	}
	if history[2].Number != "2.0.0" || history[2].Parent != "1.1.0" {
		t.Errorf("latest = %s parent %s", history[2].Number, history[2].Parent)
	}

	// A recorded version after adoption continues the lineage.
	v, err := s.Record(context.Background(), textPrompt("restored", "new body"), RecordOptions{Bump: BumpPatch})
	if err != nil {
		t.Fatal(err)
	}
	if v.Number != "2.0.1" || v.Parent != "2.0.0" {
		t.Errorf("recorded %s parent %s", v.Number, v.Parent)
	}
}

func TestAdoptRejectsOutOfOrder(t *testing.T) {
	s := NewStore()

	p := textPrompt("ooo", "first")
	p.Version = "2.0.0"
	if _, err := s.Adopt(p); err != nil {
		t.Fatal(err)
	}

	older := textPrompt("ooo", "second")
	older.Version = "1.5.0"
	var conflict *ConflictError
	if _, err := s.Adopt(older); !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want ConflictError", err)
	}

	malformed := textPrompt("ooo", "third")
	malformed.Version = "v3"
	if _, err := s.Adopt(malformed); !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want ConflictError", err)
	}
}
