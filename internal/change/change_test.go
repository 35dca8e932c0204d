package change

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kokistudios/specledger/internal/store"
)

func setupStore(t *testing.T) *store.Store {
	t.Helper()
	root := t.TempDir()
	if err := store.Init(root, false); err != nil {
		t.Fatalf("store.Init: %v", err)
	}
	s, err := store.Load(root)
	if err != nil {
		t.Fatalf("store.Load: %v", err)
	}
	return s
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestParseProgress(t *testing.T) {
	content := "# Tasks\n\n## 1. Setup\n- [x] 1.1 Create dir\n- [ ] 1.2 Write code\n* [X] 1.3 Review\n\nNot a task\n  - [ ] 1.4 Indented\n"
	p := ParseProgress(content)
	if p.Total != 4 {
		t.Errorf("Total = %d, want 4", p.Total)
	}
	if p.Completed != 2 {
		t.Errorf("Completed = %d, want 2", p.Completed)
	}
	if p.Incomplete() != 2 {
		t.Errorf("Incomplete() = %d, want 2", p.Incomplete())
	}
	if p.String() != "2/4 tasks" {
		t.Errorf("String() = %q", p.String())
	}
}

func TestTaskProgress_Missing(t *testing.T) {
	p, err := TaskProgress(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Total != 0 {
		t.Errorf("Total = %d, want 0", p.Total)
	}
}

func TestDeltaDocs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "specs", "billing", "spec.md"), "x")
	writeFile(t, filepath.Join(dir, "specs", "auth", "spec.md"), "x")
	writeFile(t, filepath.Join(dir, "specs", "notes.md"), "x")
	writeFile(t, filepath.Join(dir, "specs", "empty", "README.md"), "x")

	docs, err := DeltaDocs(dir)
	if err != nil {
		t.Fatalf("DeltaDocs: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("len(docs) = %d, want 2: %v", len(docs), docs)
	}
	if docs[0].Capability != "auth" || docs[1].Capability != "billing" {
		t.Errorf("capabilities = %q, %q", docs[0].Capability, docs[1].Capability)
	}
	if docs[0].Path != filepath.Join(dir, "specs", "auth", "spec.md") {
		t.Errorf("path = %s", docs[0].Path)
	}
}

func TestGetAndList(t *testing.T) {
	s := setupStore(t)
	writeFile(t, filepath.Join(s.ChangeDir("add-export"), "tasks.md"), "- [x] one\n- [ ] two\n")
	writeFile(t, filepath.Join(s.ChangeDir("add-export"), "specs", "export", "spec.md"), "## ADDED Requirements\n")
	writeFile(t, filepath.Join(s.ChangeDir("fix-auth"), "proposal.md"), "# Fix auth\n")

	c, err := Get(s, "add-export")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if c.Progress.Completed != 1 || c.Progress.Total != 2 {
		t.Errorf("Progress = %+v", c.Progress)
	}
	if len(c.Deltas) != 1 || c.Deltas[0].Capability != "export" {
		t.Errorf("Deltas = %+v", c.Deltas)
	}

	changes, err := List(s)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("len(changes) = %d, want 2 (archive excluded)", len(changes))
	}
	if changes[0].Name != "add-export" || changes[1].Name != "fix-auth" {
		t.Errorf("names = %q, %q", changes[0].Name, changes[1].Name)
	}
	if !Exists(s, "fix-auth") || Exists(s, "nope") {
		t.Error("Exists mismatch")
	}
}

func TestGet_NotFound(t *testing.T) {
	s := setupStore(t)
	for _, name := range []string{"missing", "archive", "", "../escape"} {
		if _, err := Get(s, name); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(%q) error = %v, want ErrNotFound", name, err)
		}
	}
}

func TestArchiveName(t *testing.T) {
	now := time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC)
	if got := ArchiveName("add-export", now, ""); got != "2025-01-31-add-export" {
		t.Errorf("ArchiveName() = %q", got)
	}
	if got := ArchiveName("add-export", now, "20060102"); got != "20250131-add-export" {
		t.Errorf("ArchiveName() = %q", got)
	}
}
